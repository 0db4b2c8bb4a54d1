package linguist

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/ieee0824/dflat/acoustic"
	"github.com/ieee0824/dflat/grammar"
	"github.com/ieee0824/dflat/internal/mathutil"
	"github.com/ieee0824/dflat/lexicon"
)

// dynamicGraph expands a grammar into search states on demand. Grammar
// states lead to pronunciations, pronunciations to a chain of units in
// context, units to their HMM states, and HMM exit states on to the next
// unit or the next grammar nodes.
type dynamicGraph struct {
	g      *SearchGraph
	probs  logProbs
	pool   *hmmPool
	logger *slog.Logger

	// nextUnits holds, per grammar node, the sorted base ids of every unit
	// that can follow the node. They are the right contexts of a word's
	// last unit.
	nextUnits map[*grammar.Node][]int
	// entryUnits holds, per grammar node, the base ids a path through the
	// node can start with.
	entryUnits map[*grammar.Node]map[int]bool
}

func newDynamicGraph(gr *grammar.Grammar, model AcousticModel, o *options) *dynamicGraph {
	d := &dynamicGraph{
		g:          newSearchGraph(o.logger, o.metrics),
		probs:      o.logProbs(),
		pool:       newHMMPool(model, o.logger),
		logger:     o.logger,
		nextUnits:  make(map[*grammar.Node][]int),
		entryUnits: make(map[*grammar.Node]map[int]bool),
	}
	d.g.expand = d.expand
	for _, n := range gr.Nodes() {
		d.initUnitMaps(n)
	}
	return d
}

func (d *dynamicGraph) initUnitMaps(n *grammar.Node) {
	if _, ok := d.nextUnits[n]; !ok {
		visited := make(map[*grammar.Node]bool)
		set := make(map[int]bool)
		for _, a := range n.Successors() {
			collectNextUnits(a.Node, visited, set)
		}
		ids := make([]int, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		d.nextUnits[n] = ids
	}
	if _, ok := d.entryUnits[n]; !ok {
		set := make(map[int]bool)
		collectNextUnits(n, make(map[*grammar.Node]bool), set)
		d.entryUnits[n] = set
	}
}

// collectNextUnits adds the first units reachable from n to set. Empty
// nodes are passed through; a final node contributes silence.
func collectNextUnits(n *grammar.Node, visited map[*grammar.Node]bool, set map[int]bool) {
	if visited[n] {
		return
	}
	visited[n] = true
	switch {
	case n.IsFinal():
		set[acoustic.SilenceID] = true
	case !n.IsEmpty():
		for _, p := range n.Word().Pronunciations() {
			if units := p.Units(); len(units) > 0 {
				set[units[0].BaseID()] = true
			}
		}
	default:
		for _, a := range n.Successors() {
			collectNextUnits(a.Node, visited, set)
		}
	}
}

// expand runs with the graph lock held.
func (d *dynamicGraph) expand(s *State) []Arc {
	switch s.key.kind {
	case KindGrammar:
		return d.grammarSuccessors(s)
	case KindPronunciation:
		return d.unitArcs(s, s.key.parent.key.lc, 0)
	case KindUnit:
		return []Arc{{
			State:                d.hmmStateState(s, s.hmm.InitialState()),
			LanguageProbability:  mathutil.LogOne,
			InsertionProbability: mathutil.LogOne,
		}}
	case KindHMMState:
		if s.hmmState.IsExit() {
			return d.exitArcs(s.key.parent)
		}
		next := s.hmmState.Successors()
		arcs := make([]Arc, len(next))
		for i, a := range next {
			arcs[i] = Arc{
				State:                d.hmmStateState(s.key.parent, a.State),
				LanguageProbability:  mathutil.LogOne,
				InsertionProbability: a.LogProbability,
			}
		}
		return arcs
	}
	return nil
}

func (d *dynamicGraph) grammarSuccessors(s *State) []Arc {
	n := s.key.node
	switch {
	case n.IsFinal():
		return nil
	case n.IsEmpty():
		return d.nextGrammarArcs(n, s.key.lc, s.key.rc)
	}
	// Every pronunciation is entered, whatever s.key.rc asks for.
	prons := n.Word().Pronunciations()
	arcs := make([]Arc, 0, len(prons))
	for _, p := range prons {
		arcs = append(arcs, Arc{
			State:                d.pronunciationState(s, p),
			LanguageProbability:  mathutil.LogOne,
			InsertionProbability: d.probs.wordInsertionFor(p.Word()),
		})
	}
	if len(arcs) == 0 {
		d.logger.Debug("dead end: word without pronunciation", "graph", d.g.id, "word", n.Word().Spelling())
	}
	return arcs
}

// nextGrammarArcs returns arcs to the successors of n in left context lc.
// Unless nextBase is AnyID, only successors that can start with nextBase
// are kept.
func (d *dynamicGraph) nextGrammarArcs(n *grammar.Node, lc, nextBase int) []Arc {
	succ := n.Successors()
	arcs := make([]Arc, 0, len(succ))
	for _, a := range succ {
		if nextBase != acoustic.AnyID && !d.entryUnits[a.Node][nextBase] {
			continue
		}
		arcs = append(arcs, Arc{
			State:                d.grammarState(a.Node, lc, nextBase),
			LanguageProbability:  a.LogProbability * d.probs.languageWeight,
			InsertionProbability: mathutil.LogOne,
		})
	}
	return arcs
}

// unitArcs returns the arcs from pronunciation state p into unit index of
// its pronunciation with left context lc.
func (d *dynamicGraph) unitArcs(p *State, lc, index int) []Arc {
	units := p.key.pron.Units()
	if index >= len(units) {
		return nil
	}
	var rcs []int
	switch {
	case index < len(units)-1:
		rcs = []int{units[index+1].BaseID()}
	case units[index].IsFiller():
		rcs = []int{acoustic.AnyID}
	default:
		rcs = d.nextUnits[p.key.parent.key.node]
	}
	arcs := make([]Arc, 0, len(rcs))
	for _, rc := range rcs {
		u := d.unitState(p, index, lc, rc)
		if u == nil {
			continue
		}
		arcs = append(arcs, Arc{
			State:                u,
			LanguageProbability:  mathutil.LogOne,
			InsertionProbability: d.probs.unitInsertionFor(u.unit),
		})
	}
	if len(arcs) == 0 {
		d.logger.Debug("dead end: no unit in context", "graph", d.g.id, "pronunciation", p.key.pron.String(), "index", index)
	}
	return arcs
}

// exitArcs leaves unit state u: on to the next unit of the word, or to the
// grammar nodes after the word with u's right context as the required
// entry unit.
func (d *dynamicGraph) exitArcs(u *State) []Arc {
	p := u.key.parent
	nextLC := u.hmm.BaseUnit().BaseID()
	if u.key.index < len(p.key.pron.Units())-1 {
		return d.unitArcs(p, nextLC, u.key.index+1)
	}
	return d.nextGrammarArcs(u.key.node, nextLC, u.key.rc)
}

func (d *dynamicGraph) grammarState(n *grammar.Node, lc, nextBase int) *State {
	key := stateKey{kind: KindGrammar, node: n, lc: lc, rc: nextBase}
	return d.g.intern(key, func(s *State) {
		s.order = 1
		s.final = n.IsFinal()
		s.signature = fmt.Sprintf("GS %s-lc-%s-rc-%s", n, d.unitName(lc), d.unitName(nextBase))
	})
}

func (d *dynamicGraph) pronunciationState(gs *State, p *lexicon.Pronunciation) *State {
	key := stateKey{kind: KindPronunciation, parent: gs, pron: p}
	return d.g.intern(key, func(s *State) {
		s.order = 2
		s.word = p.Word()
		s.signature = "PS " + gs.signature + "-" + p.String()
	})
}

// unitState returns the state of unit index of p's pronunciation between
// lc and rc, or nil when no HMM models it.
func (d *dynamicGraph) unitState(p *State, index, lc, rc int) *State {
	pron := p.key.pron
	node := p.key.parent.key.node
	key := stateKey{kind: KindUnit, node: node, pron: pron, index: index, lc: lc, rc: rc}
	if s, ok := d.g.states[key]; ok {
		return s
	}
	units := pron.Units()
	h := d.pool.get(units[index], lc, rc, acoustic.PositionOf(index, len(units)))
	if h == nil {
		return nil
	}
	// The pronunciation state is not part of a unit's identity.
	return d.g.intern(key, func(s *State) {
		s.key.parent = p
		s.order = 3
		s.unit = h.BaseUnit()
		s.hmm = h
		s.signature = fmt.Sprintf("HSS %s%s%d-%d-%d", node, pron, index, rc, lc)
	})
}

func (d *dynamicGraph) hmmStateState(u *State, hs *acoustic.HMMState) *State {
	key := stateKey{kind: KindHMMState, parent: u, hmmState: hs}
	return d.g.intern(key, func(s *State) {
		s.unit = u.unit
		s.hmm = u.hmm
		s.hmmState = hs
		if hs.IsEmitting() {
			s.order = 4
		}
		s.signature = "HSSS " + u.signature + "-" + hs.String()
	})
}

func (d *dynamicGraph) unitName(id int) string {
	if u := d.pool.unit(id); u != nil {
		return u.Name()
	}
	return acoustic.AnyName
}
