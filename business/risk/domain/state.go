// Package domain contains the risk governor's published state.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RiskState is a point-in-time snapshot of the governor, published to
// reporters and persisted alongside execution records.
type RiskState struct {
	TradingAllowed    bool
	HaltReason        string
	DailyPnL          decimal.Decimal
	Day               time.Time
	ConsecutiveLosses int
	InFlight          int
	Exposure          decimal.Decimal
	TakenAt           time.Time
}
