package linguist

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/ieee0824/dflat/internal/observe"
)

// SearchGraph owns the states reachable from one initial state. A graph is
// discarded and rebuilt when its grammar changes; it is never mutated in
// place other than by expanding states on demand.
//
// A SearchGraph is safe for concurrent use. Expansion is serialised by the
// graph; states that are already expanded are read without locking.
type SearchGraph struct {
	id      uuid.UUID
	initial *State
	logger  *slog.Logger
	metrics *observe.Metrics

	// expand computes the successors of a state that has none cached. It
	// runs with mu held. Nil for eagerly built graphs.
	expand func(*State) []Arc

	mu     sync.Mutex
	states map[stateKey]*State
	counts [numKinds]int
}

func newSearchGraph(logger *slog.Logger, metrics *observe.Metrics) *SearchGraph {
	return &SearchGraph{
		id:      uuid.New(),
		logger:  logger,
		metrics: metrics,
		states:  make(map[stateKey]*State),
	}
}

// ID returns the graph's generation id, unique per compilation.
func (g *SearchGraph) ID() uuid.UUID { return g.id }

// InitialState returns the state every search starts in.
func (g *SearchGraph) InitialState() *State { return g.initial }

// NumStateOrder returns the number of distinct state orders.
func (g *SearchGraph) NumStateOrder() int { return NumStateOrder }

// NumStates returns how many states have been created so far.
func (g *SearchGraph) NumStates() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.states)
}

// Count returns how many states of kind k have been created so far.
func (g *SearchGraph) Count(k Kind) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if k >= numKinds {
		return 0
	}
	return g.counts[k]
}

// Walk visits every state reachable from the initial state exactly once,
// breadth first, expanding states as it goes. It stops when fn returns
// false.
func (g *SearchGraph) Walk(fn func(*State) bool) {
	seen := map[*State]bool{g.initial: true}
	queue := []*State{g.initial}
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		if !fn(s) {
			return
		}
		for _, a := range s.Successors() {
			if !seen[a.State] {
				seen[a.State] = true
				queue = append(queue, a.State)
			}
		}
	}
}

// intern returns the state for key, creating it with init when it does not
// exist yet. g.mu must be held.
func (g *SearchGraph) intern(key stateKey, init func(*State)) *State {
	if s, ok := g.states[key]; ok {
		return s
	}
	s := &State{key: key, graph: g}
	init(s)
	g.states[key] = s
	g.counts[key.kind]++
	g.metrics.RecordState(context.Background(), key.kind.String())
	return s
}

// successors expands s under the graph lock and publishes the result.
func (g *SearchGraph) successors(s *State) []Arc {
	g.mu.Lock()
	defer g.mu.Unlock()
	if p := s.succ.Load(); p != nil {
		g.metrics.RecordSuccessorLookup(context.Background(), true)
		return *p
	}
	g.metrics.RecordSuccessorLookup(context.Background(), false)
	var arcs []Arc
	if g.expand != nil {
		arcs = g.expand(s)
	}
	s.succ.Store(&arcs)
	return arcs
}

// publish fixes the successors of s. g.mu must be held.
func publish(s *State, arcs []Arc) {
	s.succ.Store(&arcs)
}
