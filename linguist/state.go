package linguist

import (
	"context"
	"sync/atomic"

	"github.com/ieee0824/dflat/acoustic"
	"github.com/ieee0824/dflat/grammar"
	"github.com/ieee0824/dflat/internal/mathutil"
	"github.com/ieee0824/dflat/lexicon"
)

// Kind identifies what a search state stands for.
type Kind uint8

const (
	// KindInitial is the single entry state of a graph.
	KindInitial Kind = iota
	// KindGrammar is a grammar node in a left context, optionally
	// restricted to paths starting with a given unit.
	KindGrammar
	// KindPronunciation is the start of one pronunciation of a word.
	KindPronunciation
	// KindUnit is a unit of a pronunciation with resolved contexts and HMM.
	KindUnit
	// KindHMMState is one state of a unit's HMM.
	KindHMMState
	// KindBranch is a non-emitting fan-in or fan-out point of an eagerly
	// built graph.
	KindBranch
	// KindFinal ends an eagerly built graph.
	KindFinal

	numKinds
)

var kindNames = [numKinds]string{
	KindInitial:       "initial",
	KindGrammar:       "grammar",
	KindPronunciation: "pronunciation",
	KindUnit:          "unit",
	KindHMMState:      "hmm_state",
	KindBranch:        "branch",
	KindFinal:         "final",
}

func (k Kind) String() string {
	if k < numKinds {
		return kindNames[k]
	}
	return "unknown"
}

// NumStateOrder is the number of distinct values State.Order returns.
// Emitting states have the highest order.
const NumStateOrder = 5

// Arc is a weighted transition to a search state. Both probabilities are in
// the log base of the acoustic model.
type Arc struct {
	State                *State
	LanguageProbability  float64
	InsertionProbability float64
}

// Probability returns the arc's total log probability.
func (a Arc) Probability() float64 { return a.LanguageProbability + a.InsertionProbability }

// stateKey is the identity of a state within one graph. Dynamic states are
// identified by their fields, eagerly built states by their signature.
type stateKey struct {
	kind     Kind
	node     *grammar.Node
	parent   *State
	pron     *lexicon.Pronunciation
	index    int
	lc, rc   int
	hmmState *acoustic.HMMState
	sig      string
}

// State is a node of a search graph. States are interned per graph, so two
// states are equal exactly when they are the same pointer. All fields are
// fixed at creation; successors are computed on first use and then cached.
type State struct {
	key       stateKey
	graph     *SearchGraph
	signature string
	order     int
	final     bool
	word      *lexicon.Word
	unit      *acoustic.Unit
	hmm       *acoustic.HMM
	hmmState  *acoustic.HMMState

	succ atomic.Pointer[[]Arc]
}

// Kind returns the state's kind.
func (s *State) Kind() Kind { return s.key.kind }

// Signature returns a string that uniquely names the state in its graph.
func (s *State) Signature() string { return s.signature }

// Order returns the state's rank among state kinds: 4 for emitting states,
// 0 for HMM exit states and 1 to 3 for the word and unit levels.
func (s *State) Order() int { return s.order }

// IsFinal reports whether an utterance may end in s.
func (s *State) IsFinal() bool { return s.final }

// IsEmitting reports whether s consumes a feature frame.
func (s *State) IsEmitting() bool {
	return s.hmmState != nil && s.hmmState.IsEmitting()
}

// IsWordStart reports whether entering s starts a word.
func (s *State) IsWordStart() bool { return s.key.kind == KindPronunciation }

// Word returns the word of a pronunciation state, nil otherwise.
func (s *State) Word() *lexicon.Word { return s.word }

// Pronunciation returns the pronunciation a state belongs to, if any.
func (s *State) Pronunciation() *lexicon.Pronunciation { return s.key.pron }

// GrammarNode returns the grammar node a dynamic state belongs to.
func (s *State) GrammarNode() *grammar.Node { return s.key.node }

// Unit returns the context-independent unit of a unit or HMM state.
func (s *State) Unit() *acoustic.Unit { return s.unit }

// HMM returns the HMM of a unit or HMM state.
func (s *State) HMM() *acoustic.HMM { return s.hmm }

// HMMState returns the HMM state of an HMM state.
func (s *State) HMMState() *acoustic.HMMState { return s.hmmState }

// LeftContext returns the left context base id of a grammar or unit state.
func (s *State) LeftContext() int { return s.key.lc }

// RightContext returns the right context base id of a unit state, or the
// required next base id of a grammar state. AnyID means unrestricted.
func (s *State) RightContext() int { return s.key.rc }

// Score returns the acoustic score of f in an emitting state and LogZero
// elsewhere.
func (s *State) Score(f *acoustic.Frame) float64 {
	if s.hmmState == nil {
		return mathutil.LogZero
	}
	return s.hmmState.Score(f)
}

// Successors returns the arcs leaving s. It is safe for concurrent use.
func (s *State) Successors() []Arc {
	if p := s.succ.Load(); p != nil {
		s.graph.metrics.RecordSuccessorLookup(context.Background(), true)
		return *p
	}
	return s.graph.successors(s)
}

func (s *State) String() string { return s.signature }
