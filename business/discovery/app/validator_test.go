package app

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jtoledo/cycle-bot/business/discovery/domain"
	marketDomain "github.com/jtoledo/cycle-bot/business/market/domain"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, args ...any)         {}
func (m *mockLogger) Info(ctx context.Context, msg string, args ...any)          {}
func (m *mockLogger) Warn(ctx context.Context, msg string, args ...any)          {}
func (m *mockLogger) Error(ctx context.Context, msg string, args ...any)         {}
func (m *mockLogger) Debugc(ctx context.Context, c int, msg string, args ...any) {}
func (m *mockLogger) Infoc(ctx context.Context, c int, msg string, args ...any)  {}
func (m *mockLogger) Warnc(ctx context.Context, c int, msg string, args ...any)  {}
func (m *mockLogger) Errorc(ctx context.Context, c int, msg string, args ...any) {}

type fakeCosts struct {
	cost decimal.Decimal
}

func (f *fakeCosts) EstimateCycleCost(ctx context.Context, hops int) (decimal.Decimal, error) {
	return f.cost, nil
}

type fakeHealth struct {
	rate decimal.Decimal
}

func (f *fakeHealth) SuccessRate(venue string) decimal.Decimal {
	return f.rate
}

type fakeRisk struct {
	halted   bool
	inFlight map[string]bool
}

func (f *fakeRisk) TradingAllowed() bool { return !f.halted }
func (f *fakeRisk) InFlight(fp string) bool {
	return f.inFlight[fp]
}

// depthEdge builds a linear edge with an explicit depth cap.
func depthEdge(venue, in, out, rate, depth string) marketDomain.Edge {
	r, _ := decimal.NewFromString(rate)
	d, _ := decimal.NewFromString(depth)
	return marketDomain.Edge{
		Venue:     venue,
		In:        in,
		Out:       out,
		Kind:      marketDomain.KindLinearRate,
		Rate:      r,
		Depth:     d,
		UpdatedAt: time.Now(),
	}
}

// profitableCycle yields 1.0445 out per 1 in with worst-leg utilization 0.5.
func profitableCycle(t *testing.T) domain.CandidateCycle {
	t.Helper()
	edges := []marketDomain.Edge{
		depthEdge("venueA", "WETH", "USDC", "2000", "2"),
		depthEdge("venueB", "USDC", "DAI", "1", "8000"),
		depthEdge("venueC", "DAI", "WETH", "0.00052225", "8000"),
	}
	c, err := domain.Simulate("WETH", edges, decimal.NewFromInt(1), time.Now())
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}
	return c
}

func testValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		MinProfitAbs:     decimal.RequireFromString("0.002"),
		MinProfitBps:     decimal.RequireFromString("10"),
		SlippageCoeff:    decimal.RequireFromString("0.001"),
		SlippageExponent: 1,
		StalenessBound:   2 * time.Second,
		TradeSizes:       []decimal.Decimal{decimal.NewFromInt(1)},
	}
}

func newTestValidator(cfg ValidatorConfig, risk *fakeRisk, cost string) *Validator {
	if risk.inFlight == nil {
		risk.inFlight = make(map[string]bool)
	}
	return NewValidator(cfg,
		&fakeCosts{cost: decimal.RequireFromString(cost)},
		&fakeHealth{rate: decimal.NewFromInt(1)},
		risk,
		&mockLogger{},
	)
}

func TestValidator_ProfitArithmetic(t *testing.T) {
	v := newTestValidator(testValidatorConfig(), &fakeRisk{}, "0")
	cycle := profitableCycle(t)

	opp, reason, err := v.Validate(context.Background(), cycle)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if opp == nil {
		t.Fatalf("expected pass, got reject %s", reason)
	}

	// gross = 1.0445 - 1, reserve = 1 * 0.001 * 0.5 = 0.0005
	if got := opp.GrossProfit.StringFixed(4); got != "0.0445" {
		t.Errorf("gross = %s, want 0.0445", got)
	}
	if got := opp.SlippageReserve.StringFixed(4); got != "0.0005" {
		t.Errorf("reserve = %s, want 0.0005", got)
	}
	if got := opp.NetProfit.StringFixed(4); got != "0.0440" {
		t.Errorf("net = %s, want 0.0440", got)
	}
	if got := opp.NetBps.StringFixed(0); got != "440" {
		t.Errorf("net bps = %s, want 440", got)
	}
}

func TestValidator_QuadraticSlippageExponent(t *testing.T) {
	cfg := testValidatorConfig()
	cfg.SlippageExponent = 2
	v := newTestValidator(cfg, &fakeRisk{}, "0")

	opp, _, err := v.Validate(context.Background(), profitableCycle(t))
	if err != nil || opp == nil {
		t.Fatalf("expected pass, got opp=%v err=%v", opp, err)
	}

	// reserve = 1 * 0.001 * 0.5^2 = 0.00025
	if got := opp.SlippageReserve.StringFixed(5); got != "0.00025" {
		t.Errorf("reserve = %s, want 0.00025", got)
	}
}

func TestValidator_DualFloor(t *testing.T) {
	tests := []struct {
		name        string
		minAbs      string
		minBps      string
		networkCost string
		wantReason  domain.RejectReason
	}{
		{
			name:        "clears_both_floors",
			minAbs:      "0.002",
			minBps:      "10",
			networkCost: "0",
			wantReason:  domain.RejectNone,
		},
		{
			name:        "fails_absolute_floor",
			minAbs:      "0.05",
			minBps:      "10",
			networkCost: "0",
			wantReason:  domain.RejectBelowAbsoluteFloor,
		},
		{
			name:        "fails_relative_floor",
			minAbs:      "0.002",
			minBps:      "500",
			networkCost: "0",
			wantReason:  domain.RejectBelowRelativeFloor,
		},
		{
			name:        "network_cost_pushes_below_floor",
			minAbs:      "0.002",
			minBps:      "10",
			networkCost: "0.043",
			wantReason:  domain.RejectBelowAbsoluteFloor,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testValidatorConfig()
			cfg.MinProfitAbs = decimal.RequireFromString(tt.minAbs)
			cfg.MinProfitBps = decimal.RequireFromString(tt.minBps)
			v := newTestValidator(cfg, &fakeRisk{}, tt.networkCost)

			opp, reason, err := v.Validate(context.Background(), profitableCycle(t))
			if err != nil {
				t.Fatalf("Validate failed: %v", err)
			}

			if tt.wantReason == domain.RejectNone {
				if opp == nil {
					t.Fatalf("expected pass, got reject %s", reason)
				}
				return
			}
			if opp != nil {
				t.Fatalf("expected reject %s, got pass with net %s", tt.wantReason, opp.NetProfit)
			}
			if reason != tt.wantReason {
				t.Errorf("reason = %s, want %s", reason, tt.wantReason)
			}
		})
	}
}

func TestValidator_InFlightRejected(t *testing.T) {
	cycle := profitableCycle(t)
	risk := &fakeRisk{inFlight: map[string]bool{cycle.Fingerprint(): true}}
	v := newTestValidator(testValidatorConfig(), risk, "0")

	opp, reason, err := v.Validate(context.Background(), cycle)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if opp != nil || reason != domain.RejectInFlight {
		t.Fatalf("expected in-flight reject, got opp=%v reason=%s", opp, reason)
	}
}

func TestValidator_TradingHalted(t *testing.T) {
	v := newTestValidator(testValidatorConfig(), &fakeRisk{halted: true}, "0")

	opp, reason, err := v.Validate(context.Background(), profitableCycle(t))
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if opp != nil || reason != domain.RejectTradingHalted {
		t.Fatalf("expected halted reject, got opp=%v reason=%s", opp, reason)
	}
}

func TestValidator_OversizedTradeRejected(t *testing.T) {
	cfg := testValidatorConfig()
	// Both sizes blow through venueA's 2-unit depth cap.
	cfg.TradeSizes = []decimal.Decimal{decimal.NewFromInt(3), decimal.NewFromInt(5)}
	v := newTestValidator(cfg, &fakeRisk{}, "0")

	opp, reason, err := v.Validate(context.Background(), profitableCycle(t))
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if opp != nil || reason != domain.RejectInsufficientLiquidity {
		t.Fatalf("expected liquidity reject, got opp=%v reason=%s", opp, reason)
	}
}

func TestValidator_StaleCycleRejected(t *testing.T) {
	edges := []marketDomain.Edge{
		depthEdge("venueA", "WETH", "USDC", "2000", "2"),
		depthEdge("venueB", "USDC", "WETH", "0.00052225", "8000"),
	}
	edges[1].UpdatedAt = time.Now().Add(-3 * time.Second)

	cycle, err := domain.Simulate("WETH", edges, decimal.NewFromInt(1), time.Now())
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}

	v := newTestValidator(testValidatorConfig(), &fakeRisk{}, "0")
	opp, reason, verr := v.Validate(context.Background(), cycle)
	if verr != nil {
		t.Fatalf("Validate failed: %v", verr)
	}
	if opp != nil || reason != domain.RejectStale {
		t.Fatalf("expected stale reject, got opp=%v reason=%s", opp, reason)
	}
}

func TestValidator_ExpiryFromOldestEdge(t *testing.T) {
	cycle := profitableCycle(t)
	v := newTestValidator(testValidatorConfig(), &fakeRisk{}, "0")

	opp, _, err := v.Validate(context.Background(), cycle)
	if err != nil || opp == nil {
		t.Fatalf("expected pass, got %v %v", opp, err)
	}

	want := cycle.OldestEdge().Add(2 * time.Second)
	if !opp.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", opp.ExpiresAt, want)
	}
	if !opp.Expired(want) {
		t.Error("opportunity must be expired exactly at its deadline")
	}
	if opp.Expired(want.Add(-time.Millisecond)) {
		t.Error("opportunity must be live just before its deadline")
	}
}
