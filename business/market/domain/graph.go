package domain

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is an immutable point-in-time view of the market graph. Readers
// hold a snapshot for the whole duration of a search so every quote inside
// one discovery pass prices against the same state.
type Snapshot struct {
	byToken map[string][]Edge
	edges   int
	maxRate decimal.Decimal
	takenAt time.Time
}

// Neighbors returns the outgoing edges from token. The returned slice is
// shared and must not be mutated.
func (s *Snapshot) Neighbors(token string) []Edge {
	return s.byToken[token]
}

// EdgeCount returns the number of edges in the snapshot.
func (s *Snapshot) EdgeCount() int {
	return s.edges
}

// MaxSpotRate returns the largest pre-fee spot rate across all edges. It
// bounds how much any single remaining hop can multiply an amount.
func (s *Snapshot) MaxSpotRate() decimal.Decimal {
	return s.maxRate
}

// TakenAt returns when the snapshot was built.
func (s *Snapshot) TakenAt() time.Time {
	return s.takenAt
}

// Graph holds the live market state. Each venue owns its edge batch and
// replaces it wholesale; readers always see a complete, consistent snapshot
// via an atomic pointer swap, with no per-edge locking.
type Graph struct {
	mu     sync.Mutex
	venues map[string][]Edge
	snap   atomic.Pointer[Snapshot]
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	g := &Graph{
		venues: make(map[string][]Edge),
	}
	g.snap.Store(buildSnapshot(g.venues, time.Now()))
	return g
}

// Apply replaces venue's edge batch and publishes a new snapshot. An empty
// batch removes the venue's liquidity from the graph.
func (g *Graph) Apply(venue string, edges []Edge) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(edges) == 0 {
		delete(g.venues, venue)
	} else {
		batch := make([]Edge, len(edges))
		copy(batch, edges)
		g.venues[venue] = batch
	}

	g.snap.Store(buildSnapshot(g.venues, time.Now()))
}

// Snapshot returns the current immutable view.
func (g *Graph) Snapshot() *Snapshot {
	return g.snap.Load()
}

// Venues returns the venues currently contributing edges.
func (g *Graph) Venues() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]string, 0, len(g.venues))
	for v := range g.venues {
		out = append(out, v)
	}
	return out
}

func buildSnapshot(venues map[string][]Edge, now time.Time) *Snapshot {
	s := &Snapshot{
		byToken: make(map[string][]Edge),
		takenAt: now,
	}

	for _, batch := range venues {
		for _, e := range batch {
			s.byToken[e.In] = append(s.byToken[e.In], e)
			s.edges++
			if r := e.SpotRate(); r.GreaterThan(s.maxRate) {
				s.maxRate = r
			}
		}
	}

	return s
}
