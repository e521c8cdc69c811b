package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func TestEdge_Quote_ConstantProduct(t *testing.T) {
	tests := []struct {
		name      string
		reserveIn string
		reserveOut string
		feeBps    int64
		amountIn  string
		wantOut   string // expected to 6 decimal places
		wantErr   bool
	}{
		{
			name:       "small_trade_near_spot",
			reserveIn:  "1000",
			reserveOut: "2000000",
			feeBps:     0,
			amountIn:   "1",
			// 2000000*1/(1000+1) = 1998.001998...
			wantOut: "1998.001998",
		},
		{
			name:       "fee_reduces_output",
			reserveIn:  "1000",
			reserveOut: "2000000",
			feeBps:     30,
			amountIn:   "1",
			// effIn = 0.997, 2000000*0.997/(1000.997) = 1992.014...
			wantOut: "1992.014072",
		},
		{
			name:       "large_trade_heavy_impact",
			reserveIn:  "1000",
			reserveOut: "2000000",
			feeBps:     0,
			amountIn:   "1000",
			// doubles the reserve, output is half the out-side
			wantOut: "1000000.000000",
		},
		{
			name:       "zero_amount_rejected",
			reserveIn:  "1000",
			reserveOut: "2000000",
			amountIn:   "0",
			wantErr:    true,
		},
		{
			name:       "empty_reserves_rejected",
			reserveIn:  "0",
			reserveOut: "0",
			amountIn:   "1",
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := Edge{
				Venue:      "univ2",
				In:         "WETH",
				Out:        "USDC",
				Kind:       KindConstantProduct,
				FeeBps:     tt.feeBps,
				ReserveIn:  dec(t, tt.reserveIn),
				ReserveOut: dec(t, tt.reserveOut),
			}

			out, impact, err := e.Quote(dec(t, tt.amountIn))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Quote failed: %v", err)
			}

			if got := out.StringFixed(6); got != tt.wantOut {
				t.Errorf("out = %s, want %s", got, tt.wantOut)
			}
			if impact.IsNegative() {
				t.Errorf("impact should never be negative, got %s", impact)
			}
		})
	}
}

func TestEdge_Quote_LinearRate(t *testing.T) {
	e := Edge{
		Venue:  "aggrest",
		In:     "USDC",
		Out:    "WETH",
		Kind:   KindLinearRate,
		FeeBps: 25,
		Rate:   dec(t, "0.0005"),
		Depth:  dec(t, "10000"),
	}

	out, impact, err := e.Quote(dec(t, "2000"))
	if err != nil {
		t.Fatalf("Quote failed: %v", err)
	}
	// 2000 * 0.0005 * 0.9975 = 0.9975
	if got := out.StringFixed(6); got != "0.997500" {
		t.Errorf("out = %s, want 0.997500", got)
	}
	if !impact.IsZero() {
		t.Errorf("linear edges carry no impact, got %s", impact)
	}

	// Over the depth cap the edge refuses the trade.
	if _, _, err := e.Quote(dec(t, "10001")); err == nil {
		t.Error("expected insufficient liquidity error over depth cap")
	}
}

// A zero-fee pair of inverse linear edges must round-trip an amount exactly.
func TestEdge_ZeroFeeInverseRoundTrip(t *testing.T) {
	rate := dec(t, "1987.654321")
	fwd := Edge{Venue: "v", In: "WETH", Out: "USDC", Kind: KindLinearRate, Rate: rate}
	rev := Edge{Venue: "v", In: "USDC", Out: "WETH", Kind: KindLinearRate, Rate: decimal.NewFromInt(1).Div(rate)}

	in := dec(t, "3.5")
	mid, _, err := fwd.QuoteZeroFee(in)
	if err != nil {
		t.Fatalf("forward quote failed: %v", err)
	}
	back, _, err := rev.QuoteZeroFee(mid)
	if err != nil {
		t.Fatalf("reverse quote failed: %v", err)
	}

	if diff := back.Sub(in).Abs(); diff.GreaterThan(dec(t, "0.000000001")) {
		t.Errorf("round trip drifted by %s (in=%s back=%s)", diff, in, back)
	}
}

func TestEdge_Fresh_BoundIsExclusive(t *testing.T) {
	now := time.Now()
	bound := 2 * time.Second

	tests := []struct {
		name string
		age  time.Duration
		want bool
	}{
		{"just_updated", 0, true},
		{"inside_bound", bound - time.Millisecond, true},
		{"exactly_at_bound", bound, false},
		{"past_bound", bound + time.Millisecond, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := Edge{UpdatedAt: now.Add(-tt.age)}
			if got := e.Fresh(now, bound); got != tt.want {
				t.Errorf("Fresh(age=%s) = %v, want %v", tt.age, got, tt.want)
			}
		})
	}
}

func TestEdge_PairKey_Unordered(t *testing.T) {
	a := Edge{Venue: "univ2", In: "WETH", Out: "USDC"}
	b := Edge{Venue: "univ2", In: "USDC", Out: "WETH"}
	c := Edge{Venue: "aggrest", In: "WETH", Out: "USDC"}

	if a.PairKey() != b.PairKey() {
		t.Errorf("both directions over one pool must share a PairKey: %s != %s", a.PairKey(), b.PairKey())
	}
	if a.PairKey() == c.PairKey() {
		t.Error("different venues must not share a PairKey")
	}
	if a.Key() == b.Key() {
		t.Error("directed keys must differ by direction")
	}
}
