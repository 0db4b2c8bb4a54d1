package acoustic

import (
	"errors"
	"fmt"
	"iter"
	"sync"
)

// ErrDuplicateHMM is returned by Put when an HMM is already registered for
// the same unit and position.
var ErrDuplicateHMM = errors.New("acoustic: duplicate HMM")

// HMMManager maps (position, unit) to HMMs. It is safe for concurrent use.
type HMMManager struct {
	mu    sync.RWMutex
	hmms  []*HMM
	byPos map[Position]map[*Unit]*HMM
}

// NewHMMManager creates an empty manager.
func NewHMMManager() *HMMManager {
	m := &HMMManager{byPos: make(map[Position]map[*Unit]*HMM, len(Positions))}
	for _, p := range Positions {
		m.byPos[p] = make(map[*Unit]*HMM)
	}
	return m
}

// Put registers h under its own position and unit.
func (m *HMMManager) Put(h *HMM) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	units := m.byPos[h.position]
	if units == nil {
		return fmt.Errorf("acoustic: %s has invalid position %d", h.unit, int(h.position))
	}
	if _, ok := units[h.unit]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateHMM, h)
	}
	units[h.unit] = h
	m.hmms = append(m.hmms, h)
	return nil
}

// Get returns the HMM for unit at pos, or nil.
func (m *HMMManager) Get(pos Position, unit *Unit) *HMM {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byPos[pos][unit]
}

// Lookup implements HMMSource; an absent HMM is not an error.
func (m *HMMManager) Lookup(pos Position, unit *Unit) (*HMM, error) {
	return m.Get(pos, unit), nil
}

// HMMs returns every registered HMM in insertion order.
func (m *HMMManager) HMMs() []*HMM {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*HMM(nil), m.hmms...)
}

// All iterates over a snapshot of the registered HMMs in insertion order.
func (m *HMMManager) All() iter.Seq[*HMM] {
	hmms := m.HMMs()
	return func(yield func(*HMM) bool) {
		for _, h := range hmms {
			if !yield(h) {
				return
			}
		}
	}
}

// Len returns the number of registered HMMs.
func (m *HMMManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.hmms)
}

// HMMSource resolves HMMs by position and unit. A nil HMM with a nil error
// means the HMM is absent.
type HMMSource interface {
	Lookup(pos Position, unit *Unit) (*HMM, error)
}
