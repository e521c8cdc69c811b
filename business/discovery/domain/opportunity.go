package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RejectReason says why a candidate failed validation.
type RejectReason string

const (
	RejectNone                  RejectReason = ""
	RejectBelowAbsoluteFloor    RejectReason = "below_absolute_floor"
	RejectBelowRelativeFloor    RejectReason = "below_relative_floor"
	RejectInsufficientLiquidity RejectReason = "insufficient_liquidity"
	RejectStale                 RejectReason = "stale"
	RejectInFlight              RejectReason = "in_flight"
	RejectTradingHalted         RejectReason = "trading_halted"
	RejectDuplicateLeg          RejectReason = "duplicate_leg"
)

// ValidatedOpportunity is a candidate that cleared every profitability check
// and is ready for execution.
type ValidatedOpportunity struct {
	Cycle CandidateCycle

	GrossProfit     decimal.Decimal
	SlippageReserve decimal.Decimal
	NetworkCost     decimal.Decimal
	NetProfit       decimal.Decimal
	NetBps          decimal.Decimal

	// Confidence in [0,1], monotonic in depth margin, venue health, and
	// inverse price impact.
	Confidence decimal.Decimal

	ValidatedAt time.Time
	ExpiresAt   time.Time
}

// Fingerprint returns the underlying route fingerprint.
func (o ValidatedOpportunity) Fingerprint() string {
	return o.Cycle.Fingerprint()
}

// Expired reports whether the opportunity may no longer be executed. The
// deadline is exclusive: at exactly ExpiresAt the opportunity is gone.
func (o ValidatedOpportunity) Expired(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}
