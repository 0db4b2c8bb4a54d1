package linguist

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ieee0824/dflat/acoustic"
	"github.com/ieee0824/dflat/internal/mathutil"
	"github.com/ieee0824/dflat/lexicon"
)

// ErrEmptyGraph is returned when an eagerly built graph would have no path
// from the initial state to a final state.
var ErrEmptyGraph = errors.New("linguist: graph has no complete path")

// eagerBuilder expands every state of a small graph up front. States are
// identified by signature: asking for a signature that exists returns the
// existing state, and arcs to a state already linked are merged.
//
// The builder holds no lock; callers hold the graph lock while building.
type eagerBuilder struct {
	g      *SearchGraph
	model  AcousticModel
	probs  logProbs
	prefix string
	logger *slog.Logger
	arcs   map[*State][]Arc
}

func newEagerBuilder(g *SearchGraph, model AcousticModel, probs logProbs, prefix string, logger *slog.Logger) *eagerBuilder {
	return &eagerBuilder{
		g:      g,
		model:  model,
		probs:  probs,
		prefix: prefix,
		logger: logger,
		arcs:   make(map[*State][]Arc),
	}
}

// state returns the state named sig, creating it with init when it is new.
// created reports whether it was new.
func (b *eagerBuilder) state(kind Kind, sig string, init func(*State)) (s *State, created bool) {
	key := stateKey{kind: kind, sig: b.prefix + sig}
	s = b.g.intern(key, func(s *State) {
		created = true
		s.signature = key.sig
		if init != nil {
			init(s)
		}
	})
	if created {
		b.arcs[s] = nil
	}
	return s, created
}

func (b *eagerBuilder) link(from, to *State, lang, ins float64) {
	for _, a := range b.arcs[from] {
		if a.State == to {
			return
		}
	}
	b.arcs[from] = append(b.arcs[from], Arc{State: to, LanguageProbability: lang, InsertionProbability: ins})
}

// publish fixes the successors of every state the builder created.
func (b *eagerBuilder) publish() {
	for s, arcs := range b.arcs {
		publish(s, arcs)
	}
}

// unit adds a unit state named sig for h and expands h's states below it.
// It returns the unit state and the state of h's exit.
func (b *eagerBuilder) unit(sig string, h *acoustic.HMM) (entry, exit *State) {
	entry, created := b.state(KindUnit, sig, func(s *State) {
		s.order = 3
		s.unit = h.BaseUnit()
		s.hmm = h
	})
	var visit func(hs *acoustic.HMMState) *State
	visit = func(hs *acoustic.HMMState) *State {
		st, created := b.hmmState(sig, h, hs)
		if !created {
			return st
		}
		for _, a := range hs.Successors() {
			b.link(st, visit(a.State), mathutil.LogOne, a.LogProbability)
		}
		return st
	}
	if created {
		b.link(entry, visit(h.InitialState()), mathutil.LogOne, mathutil.LogOne)
	}
	exit, _ = b.hmmState(sig, h, h.ExitState())
	return entry, exit
}

func (b *eagerBuilder) hmmState(unitSig string, h *acoustic.HMM, hs *acoustic.HMMState) (*State, bool) {
	return b.state(KindHMMState, unitSig+"-"+hs.String(), func(s *State) {
		s.unit = h.BaseUnit()
		s.hmm = h
		s.hmmState = hs
		if hs.IsEmitting() {
			s.order = 4
		}
	})
}

// phoneLoop links entry to a loop over every context-independent unit of
// the model and the loop to final. It returns the number of units in the
// loop.
func (b *eagerBuilder) phoneLoop(entry, final *State) int {
	first, _ := b.state(KindBranch, "first-branch", func(s *State) { s.order = 2 })
	last, _ := b.state(KindBranch, "last-branch", func(s *State) { s.order = 1 })
	b.link(entry, first, mathutil.LogOne, mathutil.LogOne)
	n := 0
	for _, u := range b.model.CIUnits() {
		h, err := b.model.LookupNearestHMM(u, acoustic.Undefined, true)
		if err != nil || h == nil {
			b.logger.Debug("phone loop skips unit", "unit", u.String(), "err", err)
			continue
		}
		in, out := b.unit("unit-"+u.Name(), h)
		b.link(first, in, mathutil.LogOne, b.probs.phoneInsertion)
		b.link(out, last, mathutil.LogOne, mathutil.LogOne)
		n++
	}
	b.link(last, first, mathutil.LogOne, mathutil.LogOne)
	b.link(last, final, mathutil.LogOne, mathutil.LogOne)
	return n
}

func (b *eagerBuilder) initial() *State {
	s, _ := b.state(KindInitial, "initial", func(s *State) { s.order = 1 })
	return s
}

func (b *eagerBuilder) final() *State {
	s, _ := b.state(KindFinal, "final", func(s *State) {
		s.order = 2
		s.final = true
	})
	return s
}

// outOfGrammar adds the out-of-grammar branch and returns the arc that
// enters it: an unknown-word state followed by a phone loop.
func (b *eagerBuilder) outOfGrammar(unknown *lexicon.Word) Arc {
	unk, _ := b.state(KindPronunciation, "unknown", func(s *State) {
		s.order = 1
		s.word = unknown
	})
	if n := b.phoneLoop(unk, b.final()); n == 0 {
		b.logger.Warn("out-of-grammar branch has no units", "graph", b.g.id)
	}
	return Arc{State: unk, LanguageProbability: b.probs.outOfGrammar, InsertionProbability: mathutil.LogOne}
}

// BuildPhoneLoop builds a graph accepting any non-empty sequence of the
// model's context-independent units.
func BuildPhoneLoop(model AcousticModel, opts ...Option) (*SearchGraph, error) {
	o := newOptions(model, opts)
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}
	g := newSearchGraph(o.logger, o.metrics)
	g.mu.Lock()
	defer g.mu.Unlock()

	b := newEagerBuilder(g, model, o.logProbs(), "", o.logger)
	g.initial = b.initial()
	if b.phoneLoop(g.initial, b.final()) == 0 {
		return nil, fmt.Errorf("%w: no unit of the model has an hmm", ErrEmptyGraph)
	}
	b.publish()
	o.logger.Debug("built phone loop", "graph", g.id, "states", len(g.states))
	return g, nil
}

// BuildUnitSequence builds a linear graph through the units of prons in
// order, for aligning an utterance whose words are known. Units take their
// neighbours as contexts across word boundaries and silence at both ends.
func BuildUnitSequence(model AcousticModel, prons []*lexicon.Pronunciation, opts ...Option) (*SearchGraph, error) {
	o := newOptions(model, opts)
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}
	g := newSearchGraph(o.logger, o.metrics)
	g.mu.Lock()
	defer g.mu.Unlock()

	type slot struct {
		word  int
		unit  *acoustic.Unit
		pos   acoustic.Position
		first bool
	}
	var seq []slot
	for wi, p := range prons {
		units := p.Units()
		for i, u := range units {
			seq = append(seq, slot{word: wi, unit: u, pos: acoustic.PositionOf(i, len(units)), first: i == 0})
		}
	}
	if len(seq) == 0 {
		return nil, fmt.Errorf("%w: no units to align", ErrEmptyGraph)
	}
	plain := make([]*acoustic.Unit, len(seq))
	for i, s := range seq {
		plain[i] = s.unit
	}
	units := model.Units()
	inContext := units.InContext(plain, units.Silence(), units.Silence())

	probs := o.logProbs()
	b := newEagerBuilder(g, model, probs, "", o.logger)
	g.initial = b.initial()
	prev := g.initial
	for i, s := range seq {
		if s.first {
			p := prons[s.word]
			ws, _ := b.state(KindPronunciation, fmt.Sprintf("word%d-%s", s.word, p), func(st *State) {
				st.order = 2
				st.word = p.Word()
				st.key.pron = p
			})
			b.link(prev, ws, mathutil.LogOne, probs.wordInsertionFor(p.Word()))
			prev = ws
		}
		h, err := model.LookupNearestHMM(inContext[i], s.pos, true)
		if err != nil {
			return nil, fmt.Errorf("linguist: align unit %d %s: %w", i, inContext[i], err)
		}
		if h == nil {
			return nil, fmt.Errorf("%w: no hmm for unit %d %s at %s", ErrEmptyGraph, i, inContext[i], s.pos)
		}
		in, out := b.unit(fmt.Sprintf("unit%d-%s", i, inContext[i]), h)
		b.link(prev, in, mathutil.LogOne, probs.unitInsertionFor(h.BaseUnit()))
		prev = out
	}
	b.link(prev, b.final(), mathutil.LogOne, mathutil.LogOne)
	b.publish()
	o.logger.Debug("built unit sequence", "graph", g.id, "units", len(seq), "states", len(g.states))
	return g, nil
}
