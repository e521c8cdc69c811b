package app

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/jtoledo/cycle-bot/business/discovery/domain"
	marketDomain "github.com/jtoledo/cycle-bot/business/market/domain"
)

const (
	tracerName = "discovery"
	meterName  = "discovery"
)

// SearchConfig bounds the cycle search.
type SearchConfig struct {
	MaxHops        int
	MaxCandidates  int
	StalenessBound time.Duration
	// ProbeSize is the input used while searching. Validation re-prices at
	// the configured trade sizes.
	ProbeSize decimal.Decimal
}

// searchMetrics holds OTEL metric instruments.
type searchMetrics struct {
	searchesTotal   metric.Int64Counter
	candidatesFound metric.Int64Counter
	searchLatency   metric.Float64Histogram
}

// Searcher finds closed cycles through the market snapshot with bounded
// depth-first traversal.
type Searcher struct {
	cfg     SearchConfig
	tracer  trace.Tracer
	metrics *searchMetrics
}

// NewSearcher creates a searcher.
func NewSearcher(cfg SearchConfig) (*Searcher, error) {
	s := &Searcher{
		cfg:    cfg,
		tracer: otel.Tracer(tracerName),
	}
	if err := s.initMetrics(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Searcher) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	s.metrics = &searchMetrics{}

	s.metrics.searchesTotal, err = meter.Int64Counter(
		"discovery_searches_total",
		metric.WithDescription("Total cycle searches"),
	)
	if err != nil {
		return err
	}

	s.metrics.candidatesFound, err = meter.Int64Counter(
		"discovery_candidates_total",
		metric.WithDescription("Total candidate cycles found"),
	)
	if err != nil {
		return err
	}

	s.metrics.searchLatency, err = meter.Float64Histogram(
		"discovery_search_latency_ms",
		metric.WithDescription("Cycle search latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	return nil
}

// searchState carries one DFS path.
type searchState struct {
	snap      *marketDomain.Snapshot
	now       time.Time
	base      string
	edges     []marketDomain.Edge
	usedPairs map[string]struct{}
	visited   map[string]struct{}
	found     []domain.CandidateCycle
}

// FindCycles returns candidate cycles from base back to base, at most MaxHops
// legs deep, ranked by simulated output and capped at MaxCandidates. An empty
// result is the normal case, not an error.
func (s *Searcher) FindCycles(ctx context.Context, snap *marketDomain.Snapshot, base string) []domain.CandidateCycle {
	ctx, span := s.tracer.Start(ctx, "discovery.find_cycles",
		trace.WithAttributes(
			attribute.String("base", base),
			attribute.Int("snapshot_edges", snap.EdgeCount()),
		),
	)
	defer span.End()

	start := time.Now()
	s.metrics.searchesTotal.Add(ctx, 1)

	st := &searchState{
		snap:      snap,
		now:       time.Now(),
		base:      base,
		usedPairs: make(map[string]struct{}),
		visited:   map[string]struct{}{base: {}},
	}

	s.walk(st, base, s.cfg.ProbeSize, 0)

	sort.Slice(st.found, func(i, j int) bool {
		return st.found[i].AmountOut.GreaterThan(st.found[j].AmountOut)
	})
	if len(st.found) > s.cfg.MaxCandidates {
		st.found = st.found[:s.cfg.MaxCandidates]
	}

	s.metrics.candidatesFound.Add(ctx, int64(len(st.found)))
	s.metrics.searchLatency.Record(ctx, float64(time.Since(start).Milliseconds()))
	span.SetAttributes(attribute.Int("candidates", len(st.found)))

	return st.found
}

// walk extends the current path from token with zeroFeeAmount being the
// optimistic fee-free running output.
func (s *Searcher) walk(st *searchState, token string, zeroFeeAmount decimal.Decimal, depth int) {
	if depth >= s.cfg.MaxHops {
		return
	}

	// Optimistic bound: even fee-free, impact-free hops at the snapshot's
	// best rate cannot lift this path above its input. Abandon early.
	remaining := s.cfg.MaxHops - depth
	best := st.snap.MaxSpotRate()
	if best.IsPositive() {
		ceiling := zeroFeeAmount.Mul(best.Pow(decimal.NewFromInt(int64(remaining))))
		if !ceiling.GreaterThan(s.cfg.ProbeSize) {
			return
		}
	}

	for _, e := range st.snap.Neighbors(token) {
		if !e.Fresh(st.now, s.cfg.StalenessBound) {
			continue
		}
		if _, used := st.usedPairs[e.PairKey()]; used {
			continue
		}

		zfOut, _, err := e.QuoteZeroFee(zeroFeeAmount)
		if err != nil {
			continue
		}

		if e.Out == st.base {
			// Cycles of one hop would reuse the same pool both ways.
			if depth >= 1 {
				s.close(st, e)
			}
			continue
		}

		if _, seen := st.visited[e.Out]; seen {
			continue
		}

		st.edges = append(st.edges, e)
		st.usedPairs[e.PairKey()] = struct{}{}
		st.visited[e.Out] = struct{}{}

		s.walk(st, e.Out, zfOut, depth+1)

		delete(st.visited, e.Out)
		delete(st.usedPairs, e.PairKey())
		st.edges = st.edges[:len(st.edges)-1]
	}
}

// close completes the current path with the closing edge and records the
// simulated cycle.
func (s *Searcher) close(st *searchState, closing marketDomain.Edge) {
	route := make([]marketDomain.Edge, 0, len(st.edges)+1)
	route = append(route, st.edges...)
	route = append(route, closing)

	cycle, err := domain.Simulate(st.base, route, s.cfg.ProbeSize, st.snap.TakenAt())
	if err != nil {
		return
	}
	st.found = append(st.found, cycle)
}
