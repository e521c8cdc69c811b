package components

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
)

// ExecutionRow represents one settled execution attempt.
type ExecutionRow struct {
	Timestamp string
	Route     string
	State     string
	NetPnL    decimal.Decimal
	LatencyMs int64
	Deviated  bool
}

// ExecutionsComponent renders the recent execution attempts.
type ExecutionsComponent struct {
	rows    []ExecutionRow
	maxRows int
}

// NewExecutionsComponent creates a new executions component.
func NewExecutionsComponent(maxRows int) *ExecutionsComponent {
	return &ExecutionsComponent{
		rows:    make([]ExecutionRow, 0),
		maxRows: maxRows,
	}
}

// Add adds a settled execution to the top of the list.
func (e *ExecutionsComponent) Add(row ExecutionRow) {
	e.rows = append([]ExecutionRow{row}, e.rows...)
	if len(e.rows) > e.maxRows {
		e.rows = e.rows[:e.maxRows]
	}
}

// View renders the executions component.
func (e *ExecutionsComponent) View() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	winStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	lossStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	warnStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	mutedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))

	result := headerStyle.Render("EXECUTIONS") + "\n\n"
	if len(e.rows) == 0 {
		return result + mutedStyle.Render("  No executions yet...")
	}

	result += fmt.Sprintf("  %-8s %-24s %-16s %10s %7s\n",
		"Time", "Route", "State", "PnL", "ms")

	for _, row := range e.rows {
		pnlStyle := winStyle
		if row.NetPnL.IsNegative() {
			pnlStyle = lossStyle
		}
		state := row.State
		if row.Deviated {
			state += " *"
		}
		stateStyle := mutedStyle
		switch row.State {
		case "confirmed":
			stateStyle = winStyle
		case "partially_failed":
			stateStyle = lossStyle
		case "rejected":
			stateStyle = warnStyle
		}

		result += fmt.Sprintf("  %-8s %-24s %s %10s %7d\n",
			row.Timestamp,
			truncate(row.Route, 24),
			stateStyle.Render(fmt.Sprintf("%-16s", state)),
			pnlStyle.Render(row.NetPnL.StringFixed(6)),
			row.LatencyMs,
		)
	}

	return result
}
