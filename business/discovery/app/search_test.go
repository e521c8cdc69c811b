package app

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	marketDomain "github.com/jtoledo/cycle-bot/business/market/domain"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func edge(venue, in, out, rate string, age time.Duration) marketDomain.Edge {
	r, _ := decimal.NewFromString(rate)
	return marketDomain.Edge{
		Venue:     venue,
		In:        in,
		Out:       out,
		Kind:      marketDomain.KindLinearRate,
		Rate:      r,
		Depth:     decimal.NewFromInt(1000000),
		UpdatedAt: time.Now().Add(-age),
	}
}

func snapshotOf(edges ...marketDomain.Edge) *marketDomain.Snapshot {
	g := marketDomain.NewGraph()
	byVenue := make(map[string][]marketDomain.Edge)
	for _, e := range edges {
		byVenue[e.Venue] = append(byVenue[e.Venue], e)
	}
	for venue, batch := range byVenue {
		g.Apply(venue, batch)
	}
	return g.Snapshot()
}

func newSearcher(t *testing.T, maxHops int) *Searcher {
	t.Helper()
	s, err := NewSearcher(SearchConfig{
		MaxHops:        maxHops,
		MaxCandidates:  16,
		StalenessBound: 2 * time.Second,
		ProbeSize:      decimal.NewFromInt(1),
	})
	if err != nil {
		t.Fatalf("NewSearcher failed: %v", err)
	}
	return s
}

func TestSearcher_FindsTriangularCycle(t *testing.T) {
	snap := snapshotOf(
		edge("venueA", "WETH", "USDC", "2000", 0),
		edge("venueB", "USDC", "DAI", "1", 0),
		edge("venueC", "DAI", "WETH", "0.000525", 0),
		// A losing two-hop route through a second venue.
		edge("venueB", "USDC", "WETH", "0.00049", 0),
	)

	cycles := newSearcher(t, 3).FindCycles(context.Background(), snap, "WETH")
	if len(cycles) != 2 {
		t.Fatalf("expected 2 cycles, got %d", len(cycles))
	}

	// Ranked by simulated output: the profitable triangle first.
	best := cycles[0]
	if best.Hops() != 3 {
		t.Fatalf("best cycle hops = %d, want 3", best.Hops())
	}
	if got := best.Route(); got != "WETH>USDC>DAI>WETH" {
		t.Errorf("route = %s", got)
	}
	// 1 * 2000 * 1 * 0.000525 = 1.05
	if got := best.AmountOut.StringFixed(2); got != "1.05" {
		t.Errorf("simulated output = %s, want 1.05", got)
	}
	if !best.AmountOut.GreaterThan(cycles[1].AmountOut) {
		t.Error("cycles not ranked by output")
	}
}

// Both directions over one pool share liquidity, so a cycle may use only one.
func TestSearcher_AntiCircularReuse(t *testing.T) {
	snap := snapshotOf(
		edge("venueA", "WETH", "USDC", "2000", 0),
		edge("venueA", "USDC", "WETH", "0.00051", 0),
	)

	cycles := newSearcher(t, 3).FindCycles(context.Background(), snap, "WETH")
	if len(cycles) != 0 {
		t.Fatalf("expected no cycles through a single pool, got %d", len(cycles))
	}

	for _, c := range cycles {
		if c.HasDuplicateLeg() {
			t.Errorf("cycle %s reuses a pool", c.Route())
		}
	}
}

func TestSearcher_HopCapBoundsDepth(t *testing.T) {
	snap := snapshotOf(
		edge("venueA", "WETH", "USDC", "2000", 0),
		edge("venueB", "USDC", "DAI", "1", 0),
		edge("venueC", "DAI", "WETH", "0.000525", 0),
	)

	cycles := newSearcher(t, 2).FindCycles(context.Background(), snap, "WETH")
	if len(cycles) != 0 {
		t.Fatalf("3-hop cycle must not appear with maxHops=2, got %d cycles", len(cycles))
	}
}

func TestSearcher_StaleEdgesExcluded(t *testing.T) {
	snap := snapshotOf(
		edge("venueA", "WETH", "USDC", "2000", 0),
		edge("venueB", "USDC", "DAI", "1", 3*time.Second), // past the 2s bound
		edge("venueC", "DAI", "WETH", "0.000525", 0),
	)

	cycles := newSearcher(t, 3).FindCycles(context.Background(), snap, "WETH")
	if len(cycles) != 0 {
		t.Fatalf("cycle through a stale edge must be excluded, got %d", len(cycles))
	}
}

func TestSearcher_EmptySnapshotIsNormal(t *testing.T) {
	snap := snapshotOf()

	cycles := newSearcher(t, 3).FindCycles(context.Background(), snap, "WETH")
	if cycles != nil && len(cycles) != 0 {
		t.Fatalf("expected empty result, got %d", len(cycles))
	}
}

func TestSearcher_CandidateCapHolds(t *testing.T) {
	// Many parallel venues each offering the same two-hop route.
	var edges []marketDomain.Edge
	venues := []string{"v1", "v2", "v3", "v4", "v5", "v6"}
	for _, v := range venues {
		edges = append(edges,
			edge(v, "WETH", "USDC", "2000", 0),
			edge(v+"x", "USDC", "WETH", "0.00051", 0),
		)
	}
	snap := snapshotOf(edges...)

	s, err := NewSearcher(SearchConfig{
		MaxHops:        2,
		MaxCandidates:  4,
		StalenessBound: 2 * time.Second,
		ProbeSize:      decimal.NewFromInt(1),
	})
	if err != nil {
		t.Fatalf("NewSearcher failed: %v", err)
	}

	cycles := s.FindCycles(context.Background(), snap, "WETH")
	if len(cycles) > 4 {
		t.Fatalf("candidate cap exceeded: %d", len(cycles))
	}
}
