package domain

import (
	"github.com/shopspring/decimal"

	discoveryDomain "github.com/jtoledo/cycle-bot/business/discovery/domain"
	marketDomain "github.com/jtoledo/cycle-bot/business/market/domain"
)

// PlannedStep is one leg ready for submission.
type PlannedStep struct {
	Edge     marketDomain.Edge
	AmountIn decimal.Decimal
	// MinAmountOut is the simulated output less the per-leg share of the
	// slippage reserve. A fill below it fails the leg.
	MinAmountOut decimal.Decimal
}

// TradePlan is an opportunity translated into submittable legs plus the
// priority tip.
type TradePlan struct {
	Opportunity discoveryDomain.ValidatedOpportunity
	Steps       []PlannedStep
	Tip         decimal.Decimal
}

// NewTradePlan builds the plan for an opportunity. The slippage reserve is
// spread evenly across legs as output tolerance.
func NewTradePlan(opp discoveryDomain.ValidatedOpportunity, tip decimal.Decimal) TradePlan {
	steps := make([]PlannedStep, len(opp.Cycle.Steps))

	hops := decimal.NewFromInt(int64(len(opp.Cycle.Steps)))
	for i, s := range opp.Cycle.Steps {
		tolerance := decimal.Zero
		if hops.IsPositive() && s.AmountIn.IsPositive() {
			// Scale the per-leg reserve share into this leg's output units.
			share := opp.SlippageReserve.Div(hops)
			tolerance = share.Mul(s.AmountOut).Div(s.AmountIn)
		}
		steps[i] = PlannedStep{
			Edge:         s.Edge,
			AmountIn:     s.AmountIn,
			MinAmountOut: s.AmountOut.Sub(tolerance),
		}
	}

	return TradePlan{
		Opportunity: opp,
		Steps:       steps,
		Tip:         tip,
	}
}

// Fingerprint returns the underlying route fingerprint.
func (p TradePlan) Fingerprint() string {
	return p.Opportunity.Fingerprint()
}
