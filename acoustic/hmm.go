package acoustic

import (
	"errors"
	"fmt"

	"github.com/ieee0824/dflat/internal/mathutil"
)

// ErrBadTransitionMatrix is returned for a transition matrix whose shape
// does not match the HMM's senones.
var ErrBadTransitionMatrix = errors.New("acoustic: bad transition matrix")

// HMM is the state topology of one unit at one word position.
// States 0..Order()-1 are emitting and backed by a senone; the last state is
// the non-emitting exit. The transition matrix is square, one row per
// state, in log domain. An HMM is immutable after construction.
type HMM struct {
	unit     *Unit
	position Position
	senones  []Senone
	tmat     mathutil.Mat
	states   []*HMMState
}

// HMMState is one state of an HMM.
type HMMState struct {
	hmm    *HMM
	index  int
	senone Senone
	arcs   []HMMStateArc
}

// HMMStateArc is a transition to another state of the same HMM.
type HMMStateArc struct {
	State          *HMMState
	LogProbability float64
}

// NewHMM creates an HMM. tmat must be square with one more row than there
// are senones.
func NewHMM(unit *Unit, position Position, senones []Senone, tmat mathutil.Mat) (*HMM, error) {
	if len(senones) == 0 {
		return nil, fmt.Errorf("%w: %s has no senones", ErrBadTransitionMatrix, unit)
	}
	if len(tmat) != len(senones)+1 || !mathutil.IsSquare(tmat) {
		return nil, fmt.Errorf("%w: %s needs %dx%d for %d senones", ErrBadTransitionMatrix,
			unit, len(senones)+1, len(senones)+1, len(senones))
	}
	for i, s := range senones {
		if s == nil {
			return nil, fmt.Errorf("acoustic: %s senone %d is nil", unit, i)
		}
	}
	h := &HMM{
		unit:     unit,
		position: position,
		senones:  append([]Senone(nil), senones...),
		tmat:     tmat,
		states:   make([]*HMMState, len(tmat)),
	}
	for i := range h.states {
		st := &HMMState{hmm: h, index: i}
		if i < len(senones) {
			st.senone = senones[i]
		}
		h.states[i] = st
	}
	// The exit row is ignored; the exit state has no successors.
	for i := 0; i < len(senones); i++ {
		for j, p := range tmat[i] {
			if p > mathutil.LogZero {
				h.states[i].arcs = append(h.states[i].arcs, HMMStateArc{State: h.states[j], LogProbability: p})
			}
		}
	}
	return h, nil
}

// LeftToRight returns the transition matrix of a left-to-right topology with
// n emitting states, each looping to itself with probability selfLoop and
// moving forward otherwise. Values are in lm's base; a nil lm uses natural
// logs.
func LeftToRight(n int, selfLoop float64, lm *mathutil.LogMath) mathutil.Mat {
	if lm == nil {
		lm = mathutil.Natural()
	}
	tmat := mathutil.NewMatFill(n+1, n+1, mathutil.LogZero)
	stay := lm.LinearToLog(selfLoop)
	move := lm.LinearToLog(1 - selfLoop)
	for i := 0; i < n; i++ {
		tmat[i][i] = stay
		tmat[i][i+1] = move
	}
	return tmat
}

// Unit returns the unit this HMM models.
func (h *HMM) Unit() *Unit { return h.unit }

// BaseUnit returns the context-independent unit.
func (h *HMM) BaseUnit() *Unit { return h.unit.Base() }

// Position returns the word position this HMM models.
func (h *HMM) Position() Position { return h.position }

// Order returns the number of emitting states.
func (h *HMM) Order() int { return len(h.senones) }

// InitialState returns the entry state.
func (h *HMM) InitialState() *HMMState { return h.states[0] }

// ExitState returns the non-emitting exit state.
func (h *HMM) ExitState() *HMMState { return h.states[len(h.states)-1] }

// State returns state i.
func (h *HMM) State(i int) *HMMState { return h.states[i] }

// States returns all states, exit state last.
func (h *HMM) States() []*HMMState { return h.states }

// Senones returns the senone of each emitting state.
func (h *HMM) Senones() []Senone { return h.senones }

// TransitionMatrix returns the log transition matrix.
func (h *HMM) TransitionMatrix() mathutil.Mat { return h.tmat }

func (h *HMM) String() string {
	return fmt.Sprintf("HMM(%s %s)", h.unit, h.position)
}

// HMM returns the owning HMM.
func (s *HMMState) HMM() *HMM { return s.hmm }

// Index returns the state's index in its HMM.
func (s *HMMState) Index() int { return s.index }

// IsEmitting reports whether the state is backed by a senone.
func (s *HMMState) IsEmitting() bool { return s.senone != nil }

// IsExit reports whether s is the HMM's exit state.
func (s *HMMState) IsExit() bool { return s.index == len(s.hmm.states)-1 }

// Senone returns the state's senone, nil for the exit state.
func (s *HMMState) Senone() Senone { return s.senone }

// Successors returns the state's outgoing transitions.
func (s *HMMState) Successors() []HMMStateArc { return s.arcs }

// Score returns the senone score for f, LogZero for the exit state.
func (s *HMMState) Score(f *Frame) float64 {
	if s.senone == nil {
		return mathutil.LogZero
	}
	return s.senone.Score(f)
}

func (s *HMMState) String() string {
	return fmt.Sprintf("HMMS %s state %d", s.hmm, s.index)
}
