// Package decoder searches a linguist.SearchGraph for the best path through
// a sequence of feature frames.
package decoder

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ieee0824/dflat/acoustic"
	"github.com/ieee0824/dflat/internal/mathutil"
	"github.com/ieee0824/dflat/internal/observe"
	"github.com/ieee0824/dflat/linguist"
)

// Config holds beam search parameters.
type Config struct {
	BeamWidth       float64 `yaml:"beam_width"`        // log-domain beam width
	MaxActiveTokens int     `yaml:"max_active_tokens"` // maximum number of active hypotheses
	Workers         int     `yaml:"workers"`           // goroutines scoring senones per frame
}

// DefaultConfig returns reasonable default parameters.
func DefaultConfig() Config {
	return Config{
		BeamWidth:       200.0,
		MaxActiveTokens: 1000,
		Workers:         4,
	}
}

// Validate reports every out-of-range field.
func (c Config) Validate() error {
	var errs []error
	if !(c.BeamWidth > 0) {
		errs = append(errs, fmt.Errorf("decoder: beam_width must be positive, got %g", c.BeamWidth))
	}
	if c.MaxActiveTokens <= 0 {
		errs = append(errs, fmt.Errorf("decoder: max_active_tokens must be positive, got %d", c.MaxActiveTokens))
	}
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("decoder: workers must be positive, got %d", c.Workers))
	}
	return errors.Join(errs...)
}

// Option configures Decode.
type Option func(*search)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *search) { s.logger = l }
}

// WithMetrics sets the metric instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *search) { s.metrics = m }
}

// wordHistoryNode is a linked list node to avoid copying word history slices.
// An empty word marks a filler segment, which ends the word before it.
type wordHistoryNode struct {
	word   string
	frame  int // start frame of this word
	prev   *wordHistoryNode
	length int
}

func (n *wordHistoryNode) push(word string, frame int) *wordHistoryNode {
	next := &wordHistoryNode{word: word, frame: frame, prev: n, length: 1}
	if n != nil {
		next.length = n.length + 1
	}
	return next
}

func (n *wordHistoryNode) toSlice() ([]string, []int) {
	if n == nil {
		return nil, nil
	}
	words := make([]string, n.length)
	frames := make([]int, n.length)
	cur := n
	for i := n.length - 1; i >= 0; i-- {
		words[i] = cur.word
		frames[i] = cur.frame
		cur = cur.prev
	}
	return words, frames
}

// token represents an active hypothesis in beam search.
type token struct {
	state   *linguist.State
	score   float64
	history *wordHistoryNode
}

// closureItem is a token inside a frame's non-emitting closure, with the
// number of non-emitting states on its path.
type closureItem struct {
	tok   *token
	depth int
}

// closureQueue is a max-heap of closure items by score.
type closureQueue []closureItem

func (q closureQueue) Len() int           { return len(q) }
func (q closureQueue) Less(i, j int) bool { return q[i].tok.score > q[j].tok.score }
func (q closureQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }

func (q *closureQueue) Push(x any) { *q = append(*q, x.(closureItem)) }

func (q *closureQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

type search struct {
	cfg     Config
	logger  *slog.Logger
	metrics *observe.Metrics
}

// Decode performs Viterbi beam search over g. Tokens start in g's initial
// state, consume one frame in each emitting state they enter, and the best
// token in a final state after the last frame wins. If no token reaches a
// final state the best surviving token is returned with Final unset.
func Decode(ctx context.Context, g *linguist.SearchGraph, frames []*acoustic.Frame, cfg Config, opts ...Option) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &search{cfg: cfg}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	start := time.Now()
	res, err := s.run(ctx, g, frames)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)
	s.metrics.RecordDecode(ctx, len(frames), elapsed)
	s.logger.Debug("decoded utterance",
		"graph", g.ID(),
		"frames", len(frames),
		"text", res.Text,
		"final", res.Final,
		"duration", elapsed,
	)
	return res, nil
}

func (s *search) run(ctx context.Context, g *linguist.SearchGraph, frames []*acoustic.Frame) (*Result, error) {
	T := len(frames)
	if T == 0 {
		return &Result{}, nil
	}

	active, _ := s.grow([]*token{{state: g.InitialState()}}, 0)
	var finals []*token
	for t := 0; t < T; t++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(active) == 0 {
			break
		}
		if err := s.score(ctx, active, frames[t]); err != nil {
			return nil, err
		}
		active = pruneTokens(active, active[:0], s.cfg.BeamWidth, s.cfg.MaxActiveTokens)
		active, finals = s.grow(active, t+1)
	}

	best := bestToken(finals)
	final := best != nil
	if !final {
		best = bestToken(active)
	}
	if best == nil {
		return &Result{}, nil
	}

	entries, starts := best.history.toSlice()
	result := &Result{
		LogScore: best.score,
		Final:    final,
	}
	var words []string
	for i, w := range entries {
		if w == "" {
			continue
		}
		word := Word{Text: w, StartFrame: starts[i]}
		if i+1 < len(starts) {
			word.EndFrame = starts[i+1] - 1
		} else {
			word.EndFrame = T - 1
		}
		words = append(words, w)
		result.Words = append(result.Words, word)
	}
	result.Text = strings.Join(words, "")
	return result, nil
}

// score adds the acoustic score of f to every token. Each distinct senone
// is scored once, spread over cfg.Workers goroutines.
func (s *search) score(ctx context.Context, tokens []*token, f *acoustic.Frame) error {
	index := make(map[int64]int)
	var senones []acoustic.Senone
	for _, tok := range tokens {
		sen := tok.state.HMMState().Senone()
		if _, ok := index[sen.ID()]; !ok {
			index[sen.ID()] = len(senones)
			senones = append(senones, sen)
		}
	}
	scores := make([]float64, len(senones))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(s.cfg.Workers)
	chunk := (len(senones) + s.cfg.Workers - 1) / s.cfg.Workers
	for lo := 0; lo < len(senones); lo += chunk {
		hi := min(lo+chunk, len(senones))
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for i := lo; i < hi; i++ {
				scores[i] = senones[i].Score(f)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	for _, tok := range tokens {
		tok.score += scores[index[tok.state.HMMState().Senone().ID()]]
	}
	return nil
}

// grow moves tokens along every outgoing arc until each reaches an
// emitting state, keeping the best token per state. Non-emitting states are
// expanded best score first, so with non-positive arc scores each is
// expanded once with its best token. Entering a word start records the word
// as starting at frame. It returns the tokens in emitting states and those
// that passed through a final state.
func (s *search) grow(tokens []*token, frame int) (emitting, finals []*token) {
	next := make(map[*linguist.State]*token)
	best := make(map[*linguist.State]float64)
	var order []*linguist.State

	q := make(closureQueue, 0, len(tokens))
	for _, tok := range tokens {
		q = append(q, closureItem{tok: tok})
	}
	heap.Init(&q)
	for q.Len() > 0 {
		item := heap.Pop(&q).(closureItem)
		from := item.tok
		if b, ok := best[from.state]; ok && from.score < b {
			continue
		}
		for _, a := range from.state.Successors() {
			to := a.State
			tok := &token{state: to, score: from.score + a.Probability(), history: from.history}
			if to.IsEmitting() {
				cur, ok := next[to]
				if !ok {
					order = append(order, to)
				}
				if !ok || tok.score > cur.score {
					next[to] = tok
				}
				continue
			}
			b, seen := best[to]
			if seen && b >= tok.score {
				continue
			}
			// A path through more states than have been seen repeats one:
			// the gain came from a cycle with a positive score.
			depth := item.depth + 1
			if seen && depth > len(best) {
				continue
			}
			best[to] = tok.score
			if to.IsWordStart() {
				if w := to.Word(); w != nil {
					spelling := w.Spelling()
					if w.IsFiller() {
						spelling = ""
					}
					tok.history = tok.history.push(spelling, frame)
				}
			}
			if to.IsFinal() {
				finals = append(finals, tok)
			}
			heap.Push(&q, closureItem{tok: tok, depth: depth})
		}
	}

	emitting = make([]*token, 0, len(order))
	for _, st := range order {
		emitting = append(emitting, next[st])
	}
	return emitting, finals
}

func bestToken(tokens []*token) *token {
	var best *token
	for _, tok := range tokens {
		if best == nil || tok.score > best.score {
			best = tok
		}
	}
	return best
}

func pruneTokens(src []*token, dst []*token, beamWidth float64, maxActive int) []*token {
	if len(src) == 0 {
		return dst
	}

	// Find best score
	bestScore := src[0].score
	for _, tok := range src[1:] {
		if tok.score > bestScore {
			bestScore = tok.score
		}
	}

	// Beam pruning: reuse dst slice
	threshold := bestScore - beamWidth
	for _, tok := range src {
		if tok.score >= threshold && tok.score > mathutil.LogZero {
			dst = append(dst, tok)
		}
	}

	// Max active pruning
	if len(dst) > maxActive {
		slices.SortStableFunc(dst, func(a, b *token) int {
			switch {
			case a.score > b.score:
				return -1
			case a.score < b.score:
				return 1
			}
			return 0
		})
		dst = dst[:maxActive]
	}

	return dst
}
