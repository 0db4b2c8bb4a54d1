// Package linguist turns a grammar and an acoustic model into the search
// graph a decoder walks.
//
// The graph is expanded lazily: each state computes its successors the
// first time they are asked for and keeps them. Word-final units fan out
// over every unit that can follow the word, so the graph is
// context-dependent across word boundaries. Small closed graphs, such as a
// phone loop or a forced alignment, are built eagerly instead.
package linguist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ieee0824/dflat/acoustic"
	"github.com/ieee0824/dflat/grammar"
	"github.com/ieee0824/dflat/internal/mathutil"
)

var (
	// ErrNotAllocated is returned when a recognition starts before
	// Allocate.
	ErrNotAllocated = errors.New("linguist: not allocated")
	// ErrMissingHMM is returned when a unit used by the grammar has no
	// HMM at any word position.
	ErrMissingHMM = errors.New("linguist: unit has no hmm")
)

// Linguist compiles a grammar into a SearchGraph and recompiles it when the
// grammar is replaced. It is safe for concurrent use.
type Linguist struct {
	model AcousticModel
	opts  options

	mu          sync.Mutex
	grammar     *grammar.Grammar
	initialNode *grammar.Node
	graph       *SearchGraph
	allocated   bool
}

// New creates a linguist for g over model. Allocate must be called before
// the first recognition.
func New(model AcousticModel, g *grammar.Grammar, opts ...Option) (*Linguist, error) {
	if model == nil {
		return nil, errors.New("linguist: nil acoustic model")
	}
	if g == nil {
		return nil, errors.New("linguist: nil grammar")
	}
	o := newOptions(model, opts)
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}
	return &Linguist{model: model, opts: o, grammar: g}, nil
}

// Config returns the linguist's configuration.
func (l *Linguist) Config() Config { return l.opts.cfg }

// LogMath returns the log base of the graph's probabilities.
func (l *Linguist) LogMath() *mathutil.LogMath { return l.opts.lm }

// LogSilenceInsertionProbability returns the silence insertion probability
// in the graph's log base.
func (l *Linguist) LogSilenceInsertionProbability() float64 {
	return l.opts.lm.LinearToLog(l.opts.cfg.SilenceInsertionProbability)
}

// Allocate allocates the acoustic models and compiles the grammar.
func (l *Linguist) Allocate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.opts.logger.Info("allocating linguist")
	if err := l.model.Allocate(); err != nil {
		return fmt.Errorf("linguist: allocate acoustic model: %w", err)
	}
	if l.opts.cfg.AddOutOfGrammarBranch && l.opts.phoneLoop != l.model {
		if err := l.opts.phoneLoop.Allocate(); err != nil {
			return fmt.Errorf("linguist: allocate phone loop model: %w", err)
		}
	}
	if err := l.compile(); err != nil {
		return err
	}
	l.allocated = true
	return nil
}

// Deallocate releases the acoustic model and drops the search graph.
func (l *Linguist) Deallocate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.model.Deallocate()
	l.graph = nil
	l.initialNode = nil
	l.allocated = false
}

// SetGrammar replaces the grammar. The search graph is rebuilt at the next
// StartRecognition.
func (l *Linguist) SetGrammar(g *grammar.Grammar) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.grammar = g
}

// Grammar returns the current grammar.
func (l *Linguist) Grammar() *grammar.Grammar {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.grammar
}

// StartRecognition prepares for a recognition, recompiling the search
// graph if the grammar changed since it was last compiled.
func (l *Linguist) StartRecognition() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.allocated {
		return ErrNotAllocated
	}
	if l.initialNode == nil || l.initialNode != l.grammar.InitialNode() {
		return l.compile()
	}
	return nil
}

// StopRecognition ends a recognition.
func (l *Linguist) StopRecognition() {}

// SearchGraph returns the current search graph, nil before Allocate.
func (l *Linguist) SearchGraph() *SearchGraph {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.graph
}

// compile builds a fresh search graph. l.mu must be held.
func (l *Linguist) compile() error {
	start := time.Now()
	gr := l.grammar
	if err := l.checkUnits(gr); err != nil {
		return err
	}
	d := newDynamicGraph(gr, l.model, &l.opts)
	g := d.g

	g.mu.Lock()
	eb := newEagerBuilder(g, l.opts.phoneLoop, d.probs, "oog ", l.opts.logger)
	g.initial = g.intern(stateKey{kind: KindInitial}, func(s *State) {
		s.order = 1
		s.signature = "initialState"
	})
	arcs := []Arc{{
		State:                d.grammarState(gr.InitialNode(), acoustic.SilenceID, acoustic.AnyID),
		LanguageProbability:  mathutil.LogOne,
		InsertionProbability: mathutil.LogOne,
	}}
	if l.opts.cfg.AddOutOfGrammarBranch {
		arcs = append(arcs, eb.outOfGrammar(gr.Dictionary().Unknown()))
		eb.publish()
	}
	publish(g.initial, arcs)
	g.mu.Unlock()

	l.graph = g
	l.initialNode = gr.InitialNode()
	elapsed := time.Since(start)
	l.opts.metrics.RecordCompile(context.Background(), elapsed)
	l.opts.logger.Info("compiled search graph",
		"graph", g.ID(),
		"nodes", len(gr.Nodes()),
		"out_of_grammar", l.opts.cfg.AddOutOfGrammarBranch,
		"duration", elapsed,
	)
	return nil
}

// checkUnits fails when a unit some pronunciation of the grammar uses has
// no HMM at any word position.
func (l *Linguist) checkUnits(gr *grammar.Grammar) error {
	checked := make(map[*acoustic.Unit]bool)
	for _, w := range gr.Words() {
		for _, p := range w.Pronunciations() {
			for _, u := range p.Units() {
				if checked[u] {
					continue
				}
				checked[u] = true
				ok, err := l.hasHMM(u)
				if err != nil {
					return fmt.Errorf("linguist: word %q: %w", w.Spelling(), err)
				}
				if !ok {
					return fmt.Errorf("%w: %s in %q", ErrMissingHMM, u, w.Spelling())
				}
			}
		}
	}
	return nil
}

func (l *Linguist) hasHMM(u *acoustic.Unit) (bool, error) {
	for _, pos := range acoustic.Positions {
		h, err := l.model.LookupNearestHMM(u, pos, true)
		if err != nil {
			return false, err
		}
		if h != nil {
			return true, nil
		}
	}
	return false, nil
}
