// Package app contains the execution coordinator and its port definitions.
package app

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/jtoledo/cycle-bot/business/execution/domain"
	riskDomain "github.com/jtoledo/cycle-bot/business/risk/domain"
)

// BundleReceipt is the outcome of an atomic bundle submission.
type BundleReceipt struct {
	// Included is false when the relay dropped the bundle; no funds moved.
	Included bool
	// Realized holds per-step realized outputs, aligned with the plan.
	Realized []decimal.Decimal
}

// StepReceipt is the confirmed outcome of one sequential leg.
type StepReceipt struct {
	Realized decimal.Decimal
}

// Submitter sends trades out of the process. Implementations either land
// whole plans atomically (MEV relay) or one leg at a time (wallet).
type Submitter interface {
	Name() string

	// SupportsBundles reports whether SubmitBundle is usable.
	SupportsBundles() bool

	// SubmitBundle submits every leg as one atomic unit and waits for
	// inclusion. A CodeChannelTimeout error means the outcome is unknown.
	SubmitBundle(ctx context.Context, plan domain.TradePlan) (*BundleReceipt, error)

	// SubmitStep submits one leg and waits for its confirmation. An error
	// means the leg did not execute.
	SubmitStep(ctx context.Context, step domain.PlannedStep) (StepReceipt, error)
}

// BalanceReader reads on-chain balances for sizing and reconciliation.
type BalanceReader interface {
	Balance(ctx context.Context, token string) (decimal.Decimal, error)
}

// Ledger persists settled execution records and risk snapshots.
type Ledger interface {
	Append(ctx context.Context, rec domain.ExecutionRecord) error
	SnapshotRisk(ctx context.Context, state riskDomain.RiskState) error
}

// Governor is the slice of the risk governor execution needs: the route
// lock and outcome accounting.
type Governor interface {
	TryLock(fingerprint string, notional decimal.Decimal) bool
	Release(fingerprint string)
	RecordOutcome(rec domain.ExecutionRecord)
	State() riskDomain.RiskState
}

// Reporter publishes settled executions and risk state.
type Reporter interface {
	ReportExecution(rec *domain.ExecutionRecord)
	UpdateRiskState(state riskDomain.RiskState)
}
