package app

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jtoledo/cycle-bot/business/discovery/domain"
	"github.com/jtoledo/cycle-bot/internal/logger"
)

var (
	one        = decimal.NewFromInt(1)
	bpsPerUnit = decimal.NewFromInt(10000)
)

// ValidatorConfig holds the profitability policy.
type ValidatorConfig struct {
	// MinProfitAbs and MinProfitBps form a dual floor: a candidate must
	// clear both.
	MinProfitAbs decimal.Decimal
	MinProfitBps decimal.Decimal

	// Slippage reserve = notional * coeff * utilization^exponent.
	SlippageCoeff    decimal.Decimal
	SlippageExponent int

	StalenessBound time.Duration
	TradeSizes     []decimal.Decimal
}

// Validator turns candidates into executable opportunities or reject reasons.
type Validator struct {
	cfg    ValidatorConfig
	costs  NetworkCostEstimator
	health VenueHealthView
	risk   RiskView
	logger logger.LoggerInterface
	tracer trace.Tracer
}

// NewValidator creates a validator.
func NewValidator(cfg ValidatorConfig, costs NetworkCostEstimator, health VenueHealthView, risk RiskView, log logger.LoggerInterface) *Validator {
	return &Validator{
		cfg:    cfg,
		costs:  costs,
		health: health,
		risk:   risk,
		logger: log,
		tracer: otel.Tracer(tracerName),
	}
}

// Validate prices the candidate at every configured trade size and returns
// the best passing opportunity, or the reject reason of the closest miss.
func (v *Validator) Validate(ctx context.Context, cycle domain.CandidateCycle) (*domain.ValidatedOpportunity, domain.RejectReason, error) {
	ctx, span := v.tracer.Start(ctx, "discovery.validate",
		trace.WithAttributes(
			attribute.String("route", cycle.Route()),
			attribute.Int("hops", cycle.Hops()),
		),
	)
	defer span.End()

	if !v.risk.TradingAllowed() {
		return nil, domain.RejectTradingHalted, nil
	}
	if v.risk.InFlight(cycle.Fingerprint()) {
		return nil, domain.RejectInFlight, nil
	}
	if cycle.HasDuplicateLeg() {
		return nil, domain.RejectDuplicateLeg, nil
	}

	// The cycle is as fresh as its stalest leg; the bound is exclusive.
	now := time.Now()
	if !now.Before(cycle.OldestEdge().Add(v.cfg.StalenessBound)) {
		return nil, domain.RejectStale, nil
	}

	cost, err := v.costs.EstimateCycleCost(ctx, cycle.Hops())
	if err != nil {
		return nil, domain.RejectNone, err
	}

	var best *domain.ValidatedOpportunity
	reason := domain.RejectBelowAbsoluteFloor

	for _, size := range v.cfg.TradeSizes {
		sized, err := cycle.Resimulate(size)
		if err != nil {
			reason = domain.RejectInsufficientLiquidity
			continue
		}

		opp, r := v.validateSized(sized, cost, now)
		if r != domain.RejectNone {
			reason = r
			continue
		}

		if best == nil || opp.NetProfit.GreaterThan(best.NetProfit) {
			best = opp
		}
	}

	if best == nil {
		span.SetAttributes(attribute.String("reject_reason", string(reason)))
		return nil, reason, nil
	}

	span.SetAttributes(attribute.String("net_profit", best.NetProfit.String()))
	v.logger.Debug(ctx, "opportunity validated",
		"route", cycle.Route(),
		"net_profit", best.NetProfit.String(),
		"net_bps", best.NetBps.String(),
		"confidence", best.Confidence.String(),
	)

	return best, domain.RejectNone, nil
}

func (v *Validator) validateSized(cycle domain.CandidateCycle, networkCost decimal.Decimal, now time.Time) (*domain.ValidatedOpportunity, domain.RejectReason) {
	utilization := cycle.DepthUtilization()
	if !utilization.LessThan(one) {
		return nil, domain.RejectInsufficientLiquidity
	}

	gross := cycle.GrossProfit()
	reserve := cycle.AmountIn.
		Mul(v.cfg.SlippageCoeff).
		Mul(utilization.Pow(decimal.NewFromInt(int64(v.cfg.SlippageExponent))))

	net := gross.Sub(reserve).Sub(networkCost)
	netBps := decimal.Zero
	if cycle.AmountIn.IsPositive() {
		netBps = net.Div(cycle.AmountIn).Mul(bpsPerUnit)
	}

	// Dual floor: both the absolute and the relative threshold must clear.
	if net.LessThan(v.cfg.MinProfitAbs) {
		return nil, domain.RejectBelowAbsoluteFloor
	}
	if netBps.LessThan(v.cfg.MinProfitBps) {
		return nil, domain.RejectBelowRelativeFloor
	}

	return &domain.ValidatedOpportunity{
		Cycle:           cycle,
		GrossProfit:     gross,
		SlippageReserve: reserve,
		NetworkCost:     networkCost,
		NetProfit:       net,
		NetBps:          netBps,
		Confidence:      v.confidence(cycle, utilization),
		ValidatedAt:     now,
		ExpiresAt:       cycle.OldestEdge().Add(v.cfg.StalenessBound),
	}, domain.RejectNone
}

// confidence blends depth margin, venue reliability, and inverse price
// impact into [0,1]. Each input moves the score the same direction it moves
// real fill probability.
func (v *Validator) confidence(cycle domain.CandidateCycle, utilization decimal.Decimal) decimal.Decimal {
	depthMargin := one.Sub(utilization)
	if depthMargin.IsNegative() {
		depthMargin = decimal.Zero
	}

	venueScore := one
	for _, venue := range cycle.Venues() {
		if r := v.health.SuccessRate(venue); r.LessThan(venueScore) {
			venueScore = r
		}
	}

	impactScore := one.Sub(cycle.MaxImpact())
	if impactScore.IsNegative() {
		impactScore = decimal.Zero
	}

	three := decimal.NewFromInt(3)
	return depthMargin.Add(venueScore).Add(impactScore).Div(three)
}
