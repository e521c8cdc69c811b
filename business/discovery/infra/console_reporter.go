// Package infra contains infrastructure adapters for the discovery context.
package infra

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jtoledo/cycle-bot/business/discovery/app"
	"github.com/jtoledo/cycle-bot/business/discovery/domain"
	executionDomain "github.com/jtoledo/cycle-bot/business/execution/domain"
	riskDomain "github.com/jtoledo/cycle-bot/business/risk/domain"
)

// Ensure ConsoleReporter implements Reporter.
var _ app.Reporter = (*ConsoleReporter)(nil)

var hundred = decimal.NewFromInt(100)

// ConsoleReporter implements Reporter for CLI output.
type ConsoleReporter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsoleReporter creates a new ConsoleReporter.
func NewConsoleReporter() *ConsoleReporter {
	return &ConsoleReporter{
		out: os.Stdout,
	}
}

// Start initializes the console reporter.
func (r *ConsoleReporter) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, "Cycle Bot Started")
	fmt.Fprintln(r.out, "=================")
	return nil
}

// ReportOpportunity outputs a validated cycle to the console.
func (r *ConsoleReporter) ReportOpportunity(opp *domain.ValidatedOpportunity) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintln(r.out, "")
	fmt.Fprintln(r.out, "================================================================================")
	fmt.Fprintln(r.out, "CYCLE OPPORTUNITY VALIDATED")
	fmt.Fprintln(r.out, "================================================================================")
	fmt.Fprintf(r.out, "Route:          %s\n", opp.Cycle.Route())
	fmt.Fprintf(r.out, "Fingerprint:    %s\n", opp.Cycle.Fingerprint())
	fmt.Fprintf(r.out, "Validated:      %s\n", opp.ValidatedAt.Format(time.RFC3339))
	fmt.Fprintf(r.out, "Expires:        %s\n", opp.ExpiresAt.Format(time.RFC3339))
	fmt.Fprintln(r.out, "--------------------------------------------------------------------------------")
	fmt.Fprintln(r.out, "LEGS")
	for i, step := range opp.Cycle.Steps {
		fmt.Fprintf(r.out, "  %d. %-12s %s>%s  in %s  out %s  impact %s%%\n",
			i+1,
			step.Edge.Venue,
			step.Edge.In, step.Edge.Out,
			step.AmountIn.StringFixed(6),
			step.AmountOut.StringFixed(6),
			step.Impact.Mul(hundred).StringFixed(3),
		)
	}
	fmt.Fprintln(r.out, "--------------------------------------------------------------------------------")
	fmt.Fprintln(r.out, "PROFIT")
	fmt.Fprintf(r.out, "  Size:           %s\n", opp.Cycle.AmountIn.StringFixed(4))
	fmt.Fprintf(r.out, "  Gross:          %s\n", opp.GrossProfit.StringFixed(6))
	fmt.Fprintf(r.out, "  Slippage rsv:   %s\n", opp.SlippageReserve.StringFixed(6))
	fmt.Fprintf(r.out, "  Network cost:   %s\n", opp.NetworkCost.StringFixed(6))
	fmt.Fprintf(r.out, "  Net:            %s (%s bps)\n", opp.NetProfit.StringFixed(6), opp.NetBps.StringFixed(1))
	fmt.Fprintf(r.out, "  Confidence:     %s\n", opp.Confidence.StringFixed(2))
	fmt.Fprintln(r.out, "================================================================================")
}

// ReportExecution outputs a settled execution attempt.
func (r *ConsoleReporter) ReportExecution(rec *executionDomain.ExecutionRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	flag := ""
	if rec.DeviatedFromPlan {
		flag = " [deviated]"
	}
	fmt.Fprintf(r.out, "[%s] execution %s: %s%s pnl=%s tip=%s latency=%s\n",
		rec.CompletedAt.Format("15:04:05"),
		rec.Route,
		rec.State,
		flag,
		rec.NetPnL.StringFixed(6),
		rec.Tip.StringFixed(6),
		rec.Latency().Round(time.Millisecond),
	)
	for _, step := range rec.Steps {
		status := "ok"
		if !step.Success {
			status = "FAILED"
		}
		fmt.Fprintf(r.out, "    %-12s %-16s requested=%s realized=%s %s\n",
			step.Venue, step.Route,
			step.Requested.StringFixed(6), step.Realized.StringFixed(6), status)
	}
	if rec.Err != "" {
		fmt.Fprintf(r.out, "    error: %s\n", rec.Err)
	}
}

// UpdateRiskState outputs governor state changes.
func (r *ConsoleReporter) UpdateRiskState(state riskDomain.RiskState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := "trading"
	if !state.TradingAllowed {
		status = "HALTED (" + state.HaltReason + ")"
	}
	fmt.Fprintf(r.out, "[%s] risk: %s daily_pnl=%s losses=%d in_flight=%d\n",
		state.TakenAt.Format("15:04:05"),
		status,
		state.DailyPnL.StringFixed(6),
		state.ConsecutiveLosses,
		state.InFlight,
	)
}

// UpdateVenueStatus outputs venue refresh outcomes.
func (r *ConsoleReporter) UpdateVenueStatus(venue string, healthy bool, edges int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := "down"
	if healthy {
		status = fmt.Sprintf("up (%d edges)", edges)
	}
	fmt.Fprintf(r.out, "[%s] venue %s: %s\n", time.Now().Format("15:04:05"), venue, status)
}

// Stop gracefully shuts down the console reporter.
func (r *ConsoleReporter) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, "")
	fmt.Fprintln(r.out, "Cycle Bot Stopped")
	return nil
}
