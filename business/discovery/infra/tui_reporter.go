package infra

import (
	"context"

	"github.com/jtoledo/cycle-bot/business/discovery/app"
	"github.com/jtoledo/cycle-bot/business/discovery/domain"
	executionDomain "github.com/jtoledo/cycle-bot/business/execution/domain"
	riskDomain "github.com/jtoledo/cycle-bot/business/risk/domain"
	"github.com/jtoledo/cycle-bot/pkg/ui"
)

// Ensure TUIReporter implements Reporter.
var _ app.Reporter = (*TUIReporter)(nil)

// TUIReporter forwards pipeline activity to the Bubble Tea program.
type TUIReporter struct{}

// NewTUIReporter creates a new TUIReporter.
func NewTUIReporter() *TUIReporter {
	return &TUIReporter{}
}

// Start is a no-op: the TUI program is run by main before modules start.
func (r *TUIReporter) Start(ctx context.Context) error {
	return nil
}

// ReportOpportunity sends a validated cycle to the TUI.
func (r *TUIReporter) ReportOpportunity(opp *domain.ValidatedOpportunity) {
	ui.Send(ui.OpportunityMsg{Opportunity: opp})
}

// ReportExecution sends a settled execution attempt to the TUI.
func (r *TUIReporter) ReportExecution(rec *executionDomain.ExecutionRecord) {
	ui.Send(ui.ExecutionMsg{Record: rec})
}

// UpdateRiskState sends governor state to the TUI.
func (r *TUIReporter) UpdateRiskState(state riskDomain.RiskState) {
	ui.Send(ui.RiskMsg{State: state})
}

// UpdateVenueStatus sends venue liveness to the TUI.
func (r *TUIReporter) UpdateVenueStatus(venue string, healthy bool, edges int) {
	ui.Send(ui.VenueStatusMsg{Venue: venue, Healthy: healthy, Edges: edges})
}

// Stop is a no-op: main owns the program lifecycle.
func (r *TUIReporter) Stop() error {
	return nil
}
