package acoustic

import (
	"errors"
	"fmt"
	"iter"
)

var (
	// ErrSparsePut is returned by Pool.Put for an id beyond the end of the pool.
	ErrSparsePut = errors.New("acoustic: sparse pool put")
	// ErrOutOfRange is returned by Pool.Get for an id not present in the pool.
	ErrOutOfRange = errors.New("acoustic: pool id out of range")
)

// Feature names a count attached to a pool for load-time consistency checks.
type Feature int

const (
	NumSenones Feature = iota
	NumGaussiansPerState
	NumStreams
)

func (f Feature) String() string {
	switch f {
	case NumSenones:
		return "NumSenones"
	case NumGaussiansPerState:
		return "NumGaussiansPerState"
	case NumStreams:
		return "NumStreams"
	}
	return fmt.Sprintf("Feature(%d)", int(f))
}

// Pool is a dense, 0-based store of shared model data addressed by id.
// A Pool is filled once at load time and read-only afterwards; it is not
// safe for concurrent mutation.
type Pool[T any] struct {
	name     string
	items    []T
	features map[Feature]int
}

// NewPool creates an empty pool.
func NewPool[T any](name string) *Pool[T] {
	return &Pool[T]{name: name, features: make(map[Feature]int)}
}

// Name returns the pool's name.
func (p *Pool[T]) Name() string { return p.name }

// Size returns the number of objects in the pool.
func (p *Pool[T]) Size() int { return len(p.items) }

// Put appends o when id == Size() and replaces the object at id when
// id < Size(). Any other id is rejected.
func (p *Pool[T]) Put(id int, o T) error {
	switch {
	case id == len(p.items):
		p.items = append(p.items, o)
	case id >= 0 && id < len(p.items):
		p.items[id] = o
	default:
		return fmt.Errorf("%w: %s put id %d with size %d", ErrSparsePut, p.name, id, len(p.items))
	}
	return nil
}

// Get returns the object at id.
func (p *Pool[T]) Get(id int) (T, error) {
	if id < 0 || id >= len(p.items) {
		var zero T
		return zero, fmt.Errorf("%w: %s id %d with size %d", ErrOutOfRange, p.name, id, len(p.items))
	}
	return p.items[id], nil
}

// MustGet is like Get but panics when id is out of range.
func (p *Pool[T]) MustGet(id int) T {
	o, err := p.Get(id)
	if err != nil {
		panic(err)
	}
	return o
}

// IndexFunc returns the id of the first object for which eq returns true,
// or -1. It is a linear scan meant for load time only.
func (p *Pool[T]) IndexFunc(eq func(T) bool) int {
	for i, o := range p.items {
		if eq(o) {
			return i
		}
	}
	return -1
}

// IndexOf returns the id of the first object equal to o, or -1.
func IndexOf[T comparable](p *Pool[T], o T) int {
	return p.IndexFunc(func(v T) bool { return v == o })
}

// SetFeature attaches a named count to the pool.
func (p *Pool[T]) SetFeature(f Feature, v int) { p.features[f] = v }

// Feature returns the named count, or def when it was never set.
func (p *Pool[T]) Feature(f Feature, def int) int {
	if v, ok := p.features[f]; ok {
		return v
	}
	return def
}

// All iterates over the pool in id order.
func (p *Pool[T]) All() iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		for i, o := range p.items {
			if !yield(i, o) {
				return
			}
		}
	}
}

func (p *Pool[T]) String() string {
	return fmt.Sprintf("Pool %s Entries: %d", p.name, len(p.items))
}
