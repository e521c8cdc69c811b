// Package ui provides the Bubble Tea TUI for the cycle bot.
package ui

import (
	discoveryDomain "github.com/jtoledo/cycle-bot/business/discovery/domain"
	executionDomain "github.com/jtoledo/cycle-bot/business/execution/domain"
	riskDomain "github.com/jtoledo/cycle-bot/business/risk/domain"
)

// Message types for TUI updates

// OpportunityMsg is sent when a cycle clears validation.
type OpportunityMsg struct {
	Opportunity *discoveryDomain.ValidatedOpportunity
}

// ExecutionMsg is sent when an execution attempt settles.
type ExecutionMsg struct {
	Record *executionDomain.ExecutionRecord
}

// RiskMsg is sent when the risk governor's state changes.
type RiskMsg struct {
	State riskDomain.RiskState
}

// VenueStatusMsg is sent on each venue refresh outcome.
type VenueStatusMsg struct {
	Venue   string
	Healthy bool
	Edges   int
}

// ErrorMsg is sent when an error occurs.
type ErrorMsg struct {
	Error error
}

// TickMsg is sent periodically for UI updates.
type TickMsg struct{}

// WelcomeCompleteMsg signals the welcome screen is done (timeout or keypress).
type WelcomeCompleteMsg struct{}

// StartModulesMsg signals that modules should start loading.
type StartModulesMsg struct{}

// LogMsg is sent to display a log message in the UI.
type LogMsg struct {
	Level   string // "info", "warn", "error"
	Message string
}

// StartupMsg is sent during application startup to show progress.
type StartupMsg struct {
	Step    string // Current step name
	Status  string // "connecting", "connected", "failed"
	Message string // Optional message
}
