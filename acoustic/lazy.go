package acoustic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/ieee0824/dflat/internal/mathutil"
	"github.com/ieee0824/dflat/internal/observe"
)

// ErrUnknownSymbol is returned when a unit name is missing from the phone
// symbol table of a lazily resolved model.
var ErrUnknownSymbol = errors.New("acoustic: unknown phone symbol")

// TransitionModel supplies the topology of a phone's HMM.
type TransitionModel interface {
	// Topology returns the log transition matrix for the phone with the
	// given symbol id. Its size fixes the number of pdf classes.
	Topology(phone int) (mathutil.Mat, error)
}

// FixedTopology gives every phone the same transition matrix.
type FixedTopology struct {
	TMat mathutil.Mat
}

// Topology implements TransitionModel.
func (t FixedTopology) Topology(int) (mathutil.Mat, error) {
	if len(t.TMat) < 2 || !mathutil.IsSquare(t.TMat) {
		return nil, ErrBadTransitionMatrix
	}
	return t.TMat, nil
}

// LazyHMMManager is an HMMManager that builds a missing HMM on first
// lookup by walking a context decision tree. Concurrent first lookups of
// the same key share a single build.
type LazyHMMManager struct {
	*HMMManager

	tree     EventMap
	symbols  map[string]int
	senones  *Pool[Senone]
	topology TransitionModel

	group   singleflight.Group
	builds  atomic.Int64
	logger  *slog.Logger
	metrics *observe.Metrics
}

// LazyOption configures a LazyHMMManager.
type LazyOption func(*LazyHMMManager)

// WithLazyLogger sets the logger.
func WithLazyLogger(l *slog.Logger) LazyOption {
	return func(m *LazyHMMManager) { m.logger = l }
}

// WithLazyMetrics sets the metrics sink.
func WithLazyMetrics(mt *observe.Metrics) LazyOption {
	return func(m *LazyHMMManager) { m.metrics = mt }
}

// NewLazyHMMManager creates a manager resolving pdf ids through tree and
// phone ids through symbols.
func NewLazyHMMManager(tree EventMap, symbols map[string]int, senones *Pool[Senone], topology TransitionModel, opts ...LazyOption) *LazyHMMManager {
	m := &LazyHMMManager{
		HMMManager: NewHMMManager(),
		tree:       tree,
		symbols:    symbols,
		senones:    senones,
		topology:   topology,
		logger:     slog.Default(),
		metrics:    observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Lookup returns the HMM for unit at pos, building and registering it when
// absent.
func (m *LazyHMMManager) Lookup(pos Position, unit *Unit) (*HMM, error) {
	if h := m.HMMManager.Get(pos, unit); h != nil {
		return h, nil
	}
	key := pos.String() + "/" + unit.String()
	v, err, _ := m.group.Do(key, func() (any, error) {
		// Double-check inside the flight.
		if h := m.HMMManager.Get(pos, unit); h != nil {
			return h, nil
		}
		h, err := m.build(pos, unit)
		if err != nil {
			return nil, err
		}
		if err := m.Put(h); err != nil {
			return nil, err
		}
		m.builds.Add(1)
		m.metrics.LazyHMMBuilds.Add(context.Background(), 1)
		m.logger.Debug("built hmm", "unit", unit.String(), "position", pos.String())
		return h, nil
	})
	if err != nil {
		return nil, fmt.Errorf("resolving %s at %s: %w", unit, pos, err)
	}
	h, ok := v.(*HMM)
	if !ok {
		return nil, fmt.Errorf("acoustic: unexpected type from lazy hmm group: %T", v)
	}
	return h, nil
}

// Builds returns how many HMMs were built on demand.
func (m *LazyHMMManager) Builds() int64 { return m.builds.Load() }

func (m *LazyHMMManager) symbol(u *Unit) (int, error) {
	name := SilenceName
	if u != nil {
		name = u.Name()
	}
	id, ok := m.symbols[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownSymbol, name)
	}
	return id, nil
}

func (m *LazyHMMManager) build(pos Position, unit *Unit) (*HMM, error) {
	var ev Event
	var err error
	if ev.Phones[1], err = m.symbol(unit); err != nil {
		return nil, err
	}
	// Context-independent units are resolved between silences.
	if ev.Phones[0], err = m.symbol(unit.Left()); err != nil {
		return nil, err
	}
	if ev.Phones[2], err = m.symbol(unit.Right()); err != nil {
		return nil, err
	}

	tmat, err := m.topology.Topology(ev.Phones[1])
	if err != nil {
		return nil, err
	}
	senones := make([]Senone, len(tmat)-1)
	for i := range senones {
		ev.PdfClass = i
		pdf, err := m.tree.Map(ev)
		if err != nil {
			return nil, err
		}
		if senones[i], err = m.senones.Get(pdf); err != nil {
			return nil, err
		}
	}
	return NewHMM(unit, pos, senones, tmat)
}
