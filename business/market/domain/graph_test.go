package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func testEdge(venue, in, out, rate string) Edge {
	r, _ := decimal.NewFromString(rate)
	return Edge{
		Venue:     venue,
		In:        in,
		Out:       out,
		Kind:      KindLinearRate,
		Rate:      r,
		Depth:     decimal.NewFromInt(1000000),
		UpdatedAt: time.Now(),
	}
}

func TestGraph_Apply_ReplacesVenueBatch(t *testing.T) {
	g := NewGraph()

	g.Apply("venueA", []Edge{
		testEdge("venueA", "WETH", "USDC", "2000"),
		testEdge("venueA", "USDC", "WETH", "0.0005"),
	})
	g.Apply("venueB", []Edge{
		testEdge("venueB", "USDC", "DAI", "1.0"),
	})

	snap := g.Snapshot()
	if snap.EdgeCount() != 3 {
		t.Fatalf("expected 3 edges, got %d", snap.EdgeCount())
	}
	if got := len(snap.Neighbors("USDC")); got != 2 {
		t.Fatalf("expected 2 edges out of USDC, got %d", got)
	}

	// Replacing venueA's batch drops its old edges entirely.
	g.Apply("venueA", []Edge{
		testEdge("venueA", "WETH", "DAI", "2001"),
	})

	snap = g.Snapshot()
	if snap.EdgeCount() != 2 {
		t.Fatalf("expected 2 edges after replacement, got %d", snap.EdgeCount())
	}
	if got := len(snap.Neighbors("USDC")); got != 1 {
		t.Errorf("venueA's USDC edge should be gone, got %d edges", got)
	}
}

// Re-applying an identical batch must leave graph contents unchanged.
func TestGraph_Apply_Idempotent(t *testing.T) {
	g := NewGraph()
	batch := []Edge{
		testEdge("venueA", "WETH", "USDC", "2000"),
		testEdge("venueA", "USDC", "WETH", "0.0005"),
	}

	g.Apply("venueA", batch)
	first := g.Snapshot()

	g.Apply("venueA", batch)
	second := g.Snapshot()

	if first.EdgeCount() != second.EdgeCount() {
		t.Fatalf("edge count changed: %d -> %d", first.EdgeCount(), second.EdgeCount())
	}
	for token, edges := range first.byToken {
		if len(second.Neighbors(token)) != len(edges) {
			t.Errorf("neighbor set for %s changed size", token)
		}
	}
}

func TestGraph_Apply_EmptyBatchRemovesVenue(t *testing.T) {
	g := NewGraph()
	g.Apply("venueA", []Edge{testEdge("venueA", "WETH", "USDC", "2000")})
	g.Apply("venueA", nil)

	if got := g.Snapshot().EdgeCount(); got != 0 {
		t.Fatalf("expected empty graph, got %d edges", got)
	}
	if got := len(g.Venues()); got != 0 {
		t.Fatalf("expected no venues, got %d", got)
	}
}

func TestGraph_Snapshot_IsolatedFromLaterApplies(t *testing.T) {
	g := NewGraph()
	g.Apply("venueA", []Edge{testEdge("venueA", "WETH", "USDC", "2000")})

	snap := g.Snapshot()
	g.Apply("venueA", nil)

	// The held snapshot still sees the original edge.
	if got := len(snap.Neighbors("WETH")); got != 1 {
		t.Fatalf("held snapshot changed underfoot: %d edges", got)
	}
}

func TestGraph_MaxSpotRate(t *testing.T) {
	g := NewGraph()
	g.Apply("venueA", []Edge{
		testEdge("venueA", "WETH", "USDC", "2000"),
		testEdge("venueA", "USDC", "WETH", "0.0005"),
	})

	want, _ := decimal.NewFromString("2000")
	if got := g.Snapshot().MaxSpotRate(); !got.Equal(want) {
		t.Errorf("MaxSpotRate = %s, want %s", got, want)
	}
}
