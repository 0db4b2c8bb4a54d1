package acoustic

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Reserved base unit ids.
const (
	AnyID     = 0
	SilenceID = 1
)

// Reserved unit names.
const (
	AnyName     = "*"
	SilenceName = "SIL"
)

// ErrUnknownUnit is returned when a unit name is not registered.
var ErrUnknownUnit = errors.New("acoustic: unknown unit")

// Unit is a phonetic unit, optionally in a left/right context.
// Units are interned by a UnitManager and compared by pointer.
//
// Context-dependent units print in triphone form "left-center+right",
// e.g. "i-k+u".
type Unit struct {
	name   string
	baseID int
	filler bool
	base   *Unit
	left   *Unit
	right  *Unit
	key    string
}

// Name returns the base unit name.
func (u *Unit) Name() string { return u.name }

// BaseID returns the id of the context-independent base unit.
func (u *Unit) BaseID() int { return u.baseID }

// Base returns the context-independent unit, u itself when u has no context.
func (u *Unit) Base() *Unit { return u.base }

// IsFiller reports whether u is a filler such as silence or noise.
func (u *Unit) IsFiller() bool { return u.filler }

// IsSilence reports whether u is the silence unit.
func (u *Unit) IsSilence() bool { return u.baseID == SilenceID }

// IsContextDependent reports whether u carries a left or right context.
func (u *Unit) IsContextDependent() bool { return u.left != nil || u.right != nil }

// Left returns the left context unit or nil.
func (u *Unit) Left() *Unit { return u.left }

// Right returns the right context unit or nil.
func (u *Unit) Right() *Unit { return u.right }

func (u *Unit) String() string { return u.key }

func triphoneKey(left, center, right string) string {
	return left + "-" + center + "+" + right
}

// SplitTriphone splits "left-center+right" into its parts. A plain name is
// returned as the center with ok == false.
func SplitTriphone(s string) (left, center, right string, ok bool) {
	dash := strings.IndexByte(s, '-')
	plus := strings.LastIndexByte(s, '+')
	if dash < 0 || plus <= dash {
		return "", s, "", false
	}
	return s[:dash], s[dash+1 : plus], s[plus+1:], true
}

// UnitManager interns units. It is safe for concurrent use.
type UnitManager struct {
	mu     sync.Mutex
	ci     []*Unit
	byName map[string]*Unit
	cd     map[string]*Unit
	any    *Unit
	sil    *Unit
}

// NewUnitManager creates a manager holding the any-unit (id 0) and silence
// (id 1).
func NewUnitManager() *UnitManager {
	m := &UnitManager{
		byName: make(map[string]*Unit),
		cd:     make(map[string]*Unit),
	}
	m.any = m.Get(AnyName, false)
	m.sil = m.Get(SilenceName, true)
	return m
}

// Get returns the context-independent unit called name, registering it
// under the next base id when it is new.
func (m *UnitManager) Get(name string, filler bool) *Unit {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byName[name]; ok {
		return u
	}
	u := &Unit{name: name, baseID: len(m.ci), filler: filler, key: name}
	u.base = u
	m.ci = append(m.ci, u)
	m.byName[name] = u
	return u
}

// GetCD returns base in the given context. Nil contexts are written as the
// any-unit; when both are nil the base unit itself is returned.
func (m *UnitManager) GetCD(base, left, right *Unit) *Unit {
	base = base.base
	if left == nil && right == nil {
		return base
	}
	ln, rn := AnyName, AnyName
	if left != nil {
		ln = left.name
	}
	if right != nil {
		rn = right.name
	}
	key := triphoneKey(ln, base.name, rn)

	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.cd[key]; ok {
		return u
	}
	u := &Unit{
		name:   base.name,
		baseID: base.baseID,
		filler: base.filler,
		base:   base,
		left:   left,
		right:  right,
		key:    key,
	}
	m.cd[key] = u
	return u
}

// Lookup returns the context-independent unit called name.
func (m *UnitManager) Lookup(name string) (*Unit, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byName[name]
	return u, ok
}

// ByBaseID returns the context-independent unit with the given id.
func (m *UnitManager) ByBaseID(id int) (*Unit, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id < 0 || id >= len(m.ci) {
		return nil, false
	}
	return m.ci[id], true
}

// NumBaseUnits returns the number of base ids in use, the any-unit included.
func (m *UnitManager) NumBaseUnits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ci)
}

// CIUnits returns every context-independent unit except the any-unit, in id
// order.
func (m *UnitManager) CIUnits() []*Unit {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Unit(nil), m.ci[AnyID+1:]...)
}

// Any returns the wildcard unit.
func (m *UnitManager) Any() *Unit { return m.any }

// Silence returns the silence unit.
func (m *UnitManager) Silence() *Unit { return m.sil }

// Parse resolves "center" or "left-center+right" to an interned unit. All
// names must already be registered.
func (m *UnitManager) Parse(s string) (*Unit, error) {
	l, c, r, ok := SplitTriphone(s)
	base, found := m.Lookup(c)
	if !found {
		return nil, fmt.Errorf("%w: %q", ErrUnknownUnit, c)
	}
	if !ok {
		return base, nil
	}
	ctx := func(name string) (*Unit, error) {
		if name == AnyName {
			return nil, nil
		}
		u, found := m.Lookup(name)
		if !found {
			return nil, fmt.Errorf("%w: %q in %q", ErrUnknownUnit, name, s)
		}
		return u, nil
	}
	left, err := ctx(l)
	if err != nil {
		return nil, err
	}
	right, err := ctx(r)
	if err != nil {
		return nil, err
	}
	return m.GetCD(base, left, right), nil
}

// InContext converts a unit sequence to context-dependent units, using left
// and right as the outer contexts.
// Example: [i, k, u] with SIL on both sides gives [SIL-i+k, i-k+u, k-u+SIL].
func (m *UnitManager) InContext(seq []*Unit, left, right *Unit) []*Unit {
	out := make([]*Unit, len(seq))
	for i, u := range seq {
		l, r := left, right
		if i > 0 {
			l = seq[i-1].base
		}
		if i < len(seq)-1 {
			r = seq[i+1].base
		}
		if u.filler {
			out[i] = u.base
			continue
		}
		out[i] = m.GetCD(u, l, r)
	}
	return out
}
