package acoustic

import (
	"errors"
	"fmt"
	"slices"
)

// PdfClassKey is the event key holding the pdf class (HMM state position).
const PdfClassKey = -1

// ErrUnresolvableEvent is returned when an event map has no answer for an
// event.
var ErrUnresolvableEvent = errors.New("acoustic: unresolvable event")

// Event is a context triple plus the pdf class being asked about. Keys 0, 1
// and 2 address the left, center and right phone ids.
type Event struct {
	PdfClass int
	Phones   [3]int
}

// Value returns the value stored under key.
func (e Event) Value(key int) (int, bool) {
	switch {
	case key == PdfClassKey:
		return e.PdfClass, true
	case key >= 0 && key < len(e.Phones):
		return e.Phones[key], true
	}
	return 0, false
}

// EventMap is a decision tree mapping events to pdf ids.
type EventMap interface {
	Map(e Event) (int, error)
}

// ConstantEventMap is a leaf.
type ConstantEventMap struct {
	Value int
}

// Map implements EventMap.
func (m ConstantEventMap) Map(Event) (int, error) { return m.Value, nil }

// SplitEventMap branches on whether the event's value for Key is in Yes.
type SplitEventMap struct {
	Key   int
	Yes   []int // sorted
	YesTo EventMap
	NoTo  EventMap
}

// NewSplitEventMap creates a split node; yes need not be sorted.
func NewSplitEventMap(key int, yes []int, yesTo, noTo EventMap) *SplitEventMap {
	s := slices.Clone(yes)
	slices.Sort(s)
	return &SplitEventMap{Key: key, Yes: s, YesTo: yesTo, NoTo: noTo}
}

// Map implements EventMap.
func (m *SplitEventMap) Map(e Event) (int, error) {
	v, ok := e.Value(m.Key)
	if !ok {
		return 0, fmt.Errorf("%w: no key %d", ErrUnresolvableEvent, m.Key)
	}
	if _, found := slices.BinarySearch(m.Yes, v); found {
		return m.YesTo.Map(e)
	}
	return m.NoTo.Map(e)
}

// TableEventMap indexes Table by the event's value for Key. Nil entries are
// holes.
type TableEventMap struct {
	Key   int
	Table []EventMap
}

// Map implements EventMap.
func (m *TableEventMap) Map(e Event) (int, error) {
	v, ok := e.Value(m.Key)
	if !ok {
		return 0, fmt.Errorf("%w: no key %d", ErrUnresolvableEvent, m.Key)
	}
	if v < 0 || v >= len(m.Table) || m.Table[v] == nil {
		return 0, fmt.Errorf("%w: key %d value %d outside table", ErrUnresolvableEvent, m.Key, v)
	}
	return m.Table[v].Map(e)
}
