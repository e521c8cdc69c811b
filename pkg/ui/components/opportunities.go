// Package components provides reusable TUI components.
package components

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
)

// OpportunityRow represents a validated cycle in the list.
type OpportunityRow struct {
	Timestamp  string
	Route      string
	Hops       int
	Size       decimal.Decimal
	NetProfit  decimal.Decimal
	NetBps     decimal.Decimal
	Confidence decimal.Decimal
}

// OpportunitiesComponent renders the validated opportunities list.
type OpportunitiesComponent struct {
	rows    []OpportunityRow
	maxRows int
	offset  int
}

// NewOpportunitiesComponent creates a new opportunities component.
func NewOpportunitiesComponent(maxRows int) *OpportunitiesComponent {
	return &OpportunitiesComponent{
		rows:    make([]OpportunityRow, 0),
		maxRows: maxRows,
	}
}

// Add adds a new opportunity to the top of the list.
func (o *OpportunitiesComponent) Add(row OpportunityRow) {
	o.rows = append([]OpportunityRow{row}, o.rows...)
	if len(o.rows) > o.maxRows {
		o.rows = o.rows[:o.maxRows]
	}
}

// Clear clears all opportunities.
func (o *OpportunitiesComponent) Clear() {
	o.rows = make([]OpportunityRow, 0)
	o.offset = 0
}

// ScrollUp moves the view window up one row.
func (o *OpportunitiesComponent) ScrollUp() {
	if o.offset > 0 {
		o.offset--
	}
}

// ScrollDown moves the view window down one row.
func (o *OpportunitiesComponent) ScrollDown() {
	if o.offset < len(o.rows)-1 {
		o.offset++
	}
}

// View renders the opportunities component.
func (o *OpportunitiesComponent) View() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	profitStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	mutedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))

	result := headerStyle.Render("VALIDATED OPPORTUNITIES") + "\n\n"
	if len(o.rows) == 0 {
		return result + mutedStyle.Render("  No opportunities validated yet...")
	}

	result += fmt.Sprintf("  %-8s %-28s %4s %8s %10s %7s %5s\n",
		"Time", "Route", "Hops", "Size", "Net", "Bps", "Conf")

	visible := o.rows[o.offset:]
	if len(visible) > 10 {
		visible = visible[:10]
	}
	for _, row := range visible {
		result += fmt.Sprintf("  %-8s %-28s %4d %8s %10s %7s %5s\n",
			row.Timestamp,
			truncate(row.Route, 28),
			row.Hops,
			row.Size.StringFixed(2),
			profitStyle.Render(row.NetProfit.StringFixed(6)),
			row.NetBps.StringFixed(1),
			row.Confidence.StringFixed(2),
		)
	}

	return result
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
