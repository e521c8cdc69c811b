package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// StepResult is the realized outcome of one leg.
type StepResult struct {
	Venue     string
	Route     string // "IN>OUT"
	Requested decimal.Decimal
	Realized  decimal.Decimal
	Success   bool
}

// RealizedSlippage returns requested minus realized output. Positive means
// the fill came in under simulation.
func (r StepResult) RealizedSlippage() decimal.Decimal {
	return r.Requested.Sub(r.Realized)
}

// ExecutionRecord is the immutable account of one execution attempt. Records
// feed the risk governor and the execution ledger.
type ExecutionRecord struct {
	Fingerprint string
	Route       string
	State       State
	Steps       []StepResult

	// NetPnL is realized profit in base units: negative for losses,
	// including partial failures and tips paid.
	NetPnL decimal.Decimal
	Tip    decimal.Decimal

	// DeviatedFromPlan marks confirmed trades whose realized output missed
	// simulation by more than the reserve. They count as wins with a flag.
	DeviatedFromPlan bool

	SubmittedAt time.Time
	CompletedAt time.Time
	Err         string
}

// Latency returns submission-to-settlement duration.
func (r ExecutionRecord) Latency() time.Duration {
	return r.CompletedAt.Sub(r.SubmittedAt)
}

// Loss reports whether the attempt lost money.
func (r ExecutionRecord) Loss() bool {
	return r.NetPnL.IsNegative()
}
