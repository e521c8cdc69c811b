// Package domain contains the market graph model: venue edges and snapshots.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/jtoledo/cycle-bot/internal/apperror"
)

// Kind identifies the pricing function of an edge.
type Kind int

const (
	// KindConstantProduct prices against x*y=k pool reserves.
	KindConstantProduct Kind = iota
	// KindLinearRate prices at a fixed rate up to a depth cap.
	KindLinearRate
)

var bpsDivisor = decimal.NewFromInt(10000)

// Edge is a directed swap leg on a single venue. Edges are immutable values;
// venues publish whole replacement batches rather than mutating in place.
type Edge struct {
	Venue  string
	Pool   common.Address
	In     string // input token symbol
	Out    string // output token symbol
	Kind   Kind
	FeeBps int64

	// Constant-product reserves, in human units.
	ReserveIn  decimal.Decimal
	ReserveOut decimal.Decimal

	// Linear-rate quote and its depth cap in input units.
	Rate  decimal.Decimal
	Depth decimal.Decimal

	UpdatedAt time.Time
}

// Key identifies the directed edge: venue plus ordered token pair.
func (e Edge) Key() string {
	return e.Venue + "|" + e.In + ">" + e.Out
}

// PairKey identifies the venue liquidity the edge draws on: venue plus
// unordered token pair. Two edges with the same PairKey share one pool, so a
// cycle may traverse at most one of them.
func (e Edge) PairKey() string {
	a, b := e.In, e.Out
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return e.Venue + "|" + a + "-" + b
}

// SpotRate returns the marginal zero-size exchange rate before fees.
func (e Edge) SpotRate() decimal.Decimal {
	if e.Kind == KindConstantProduct {
		if e.ReserveIn.IsZero() {
			return decimal.Zero
		}
		return e.ReserveOut.Div(e.ReserveIn)
	}
	return e.Rate
}

// MaxInput returns the largest input the edge can absorb at its quoted
// pricing. Constant-product edges absorb any size at worsening rates, so the
// cap there is the input-side reserve.
func (e Edge) MaxInput() decimal.Decimal {
	if e.Kind == KindConstantProduct {
		return e.ReserveIn
	}
	return e.Depth
}

// Quote simulates swapping amountIn through the edge. It returns the output
// amount net of the venue fee and the price impact relative to the spot rate
// (0 = none, 1 = total).
func (e Edge) Quote(amountIn decimal.Decimal) (out, impact decimal.Decimal, err error) {
	out, impact, err = e.quote(amountIn, e.feeMultiplier())
	return out, impact, err
}

// QuoteZeroFee simulates the swap with the venue fee stripped. Used for
// optimistic search bounds.
func (e Edge) QuoteZeroFee(amountIn decimal.Decimal) (out, impact decimal.Decimal, err error) {
	return e.quote(amountIn, decimal.NewFromInt(1))
}

func (e Edge) quote(amountIn, feeMult decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	if !amountIn.IsPositive() {
		return decimal.Zero, decimal.Zero, apperror.New(apperror.CodeInvalidTradeSize,
			apperror.WithContext(fmt.Sprintf("amount in must be positive, got %s", amountIn)))
	}

	switch e.Kind {
	case KindConstantProduct:
		if !e.ReserveIn.IsPositive() || !e.ReserveOut.IsPositive() {
			return decimal.Zero, decimal.Zero, apperror.New(apperror.CodeInsufficientLiquidity,
				apperror.WithContext("pool has empty reserves"))
		}
		effIn := amountIn.Mul(feeMult)
		out := e.ReserveOut.Mul(effIn).Div(e.ReserveIn.Add(effIn))
		// Impact is the realized-vs-spot rate shortfall on the fee-adjusted input.
		spot := e.ReserveOut.Div(e.ReserveIn)
		realized := out.Div(effIn)
		impact := decimal.NewFromInt(1).Sub(realized.Div(spot))
		return out, impact, nil

	case KindLinearRate:
		if !e.Rate.IsPositive() {
			return decimal.Zero, decimal.Zero, apperror.New(apperror.CodeInsufficientLiquidity,
				apperror.WithContext("edge has no rate"))
		}
		if e.Depth.IsPositive() && amountIn.GreaterThan(e.Depth) {
			return decimal.Zero, decimal.Zero, apperror.New(apperror.CodeInsufficientLiquidity,
				apperror.WithContext(fmt.Sprintf("amount %s exceeds depth %s", amountIn, e.Depth)))
		}
		return amountIn.Mul(e.Rate).Mul(feeMult), decimal.Zero, nil

	default:
		return decimal.Zero, decimal.Zero, apperror.New(apperror.CodeInvalidState,
			apperror.WithContext(fmt.Sprintf("unknown edge kind %d", e.Kind)))
	}
}

// Age returns how long ago the edge was last refreshed.
func (e Edge) Age(now time.Time) time.Duration {
	return now.Sub(e.UpdatedAt)
}

// Fresh reports whether the edge is inside the staleness bound. The bound is
// exclusive: an edge whose age equals the bound is already stale.
func (e Edge) Fresh(now time.Time, bound time.Duration) bool {
	return e.Age(now) < bound
}

func (e Edge) feeMultiplier() decimal.Decimal {
	return decimal.NewFromInt(1).Sub(decimal.NewFromInt(e.FeeBps).Div(bpsDivisor))
}
