// Package app contains application services and port definitions for the discovery context.
package app

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/jtoledo/cycle-bot/business/discovery/domain"
	executionDomain "github.com/jtoledo/cycle-bot/business/execution/domain"
	riskDomain "github.com/jtoledo/cycle-bot/business/risk/domain"
)

// NetworkCostEstimator prices the chain-side cost of landing a cycle, in
// base asset units.
type NetworkCostEstimator interface {
	EstimateCycleCost(ctx context.Context, hops int) (decimal.Decimal, error)
}

// RiskView is the slice of the risk governor discovery consults. Discovery
// never claims locks; it only avoids wasting work on halted trading or
// routes already in flight.
type RiskView interface {
	TradingAllowed() bool
	InFlight(fingerprint string) bool
}

// VenueHealthView exposes per-venue reliability for confidence scoring.
type VenueHealthView interface {
	SuccessRate(venue string) decimal.Decimal
}

// Executor hands a validated opportunity to the execution pipeline.
type Executor interface {
	Execute(ctx context.Context, opp domain.ValidatedOpportunity)
}

// Reporter publishes pipeline activity for display.
type Reporter interface {
	// Start initializes the reporter.
	Start(ctx context.Context) error

	// ReportOpportunity publishes a validated opportunity.
	ReportOpportunity(opp *domain.ValidatedOpportunity)

	// ReportExecution publishes a settled execution attempt.
	ReportExecution(rec *executionDomain.ExecutionRecord)

	// UpdateRiskState publishes the governor's current state.
	UpdateRiskState(state riskDomain.RiskState)

	// UpdateVenueStatus publishes a venue's liveness and edge count.
	UpdateVenueStatus(venue string, healthy bool, edges int)

	// Stop gracefully shuts down the reporter.
	Stop() error
}
