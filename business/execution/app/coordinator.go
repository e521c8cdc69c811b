package app

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	discoveryDomain "github.com/jtoledo/cycle-bot/business/discovery/domain"
	"github.com/jtoledo/cycle-bot/business/execution/domain"
	"github.com/jtoledo/cycle-bot/internal/apperror"
	"github.com/jtoledo/cycle-bot/internal/logger"
)

const (
	tracerName = "execution"
	meterName  = "execution"
)

// CoordinatorConfig holds submission policy.
type CoordinatorConfig struct {
	// UseBundles prefers atomic submission when the submitter supports it.
	UseBundles bool

	SubmitTimeout  time.Duration
	ConfirmTimeout time.Duration

	// Tip = clamp(TipCoefficient * net profit, MinTip, MaxTipFraction * net
	// profit). The fraction cap wins over the minimum: the bot never bids
	// away more than that share of the edge.
	TipCoefficient decimal.Decimal
	MinTip         decimal.Decimal
	MaxTipFraction decimal.Decimal
}

type coordinatorMetrics struct {
	executionsTotal metric.Int64Counter
	lockContention  metric.Int64Counter
	expiredTotal    metric.Int64Counter
	settleLatency   metric.Float64Histogram
}

// Coordinator turns validated opportunities into settled execution records.
// It owns the full lifecycle: lock claim, plan and tip, submission, and the
// terminal accounting that feeds risk and the ledger.
type Coordinator struct {
	cfg       CoordinatorConfig
	submitter Submitter
	balances  BalanceReader
	ledger    Ledger
	governor  Governor
	reporter  Reporter
	logger    logger.LoggerInterface

	tracer  trace.Tracer
	metrics *coordinatorMetrics
}

// NewCoordinator creates the execution coordinator.
func NewCoordinator(cfg CoordinatorConfig, submitter Submitter, balances BalanceReader, ledger Ledger, governor Governor, reporter Reporter, log logger.LoggerInterface) (*Coordinator, error) {
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 30 * time.Second
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 60 * time.Second
	}

	c := &Coordinator{
		cfg:       cfg,
		submitter: submitter,
		balances:  balances,
		ledger:    ledger,
		governor:  governor,
		reporter:  reporter,
		logger:    log,
		tracer:    otel.Tracer(tracerName),
	}

	if err := c.initMetrics(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Coordinator) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	c.metrics = &coordinatorMetrics{}

	c.metrics.executionsTotal, err = meter.Int64Counter(
		"execution_attempts_total",
		metric.WithDescription("Total execution attempts by terminal state"),
	)
	if err != nil {
		return err
	}

	c.metrics.lockContention, err = meter.Int64Counter(
		"execution_lock_contention_total",
		metric.WithDescription("Total opportunities discarded on lock contention"),
	)
	if err != nil {
		return err
	}

	c.metrics.expiredTotal, err = meter.Int64Counter(
		"execution_expired_total",
		metric.WithDescription("Total opportunities expired before the lock claim"),
	)
	if err != nil {
		return err
	}

	c.metrics.settleLatency, err = meter.Float64Histogram(
		"execution_settle_latency_ms",
		metric.WithDescription("Submission-to-settlement latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Execute runs one opportunity end to end. It never returns an error: every
// outcome is a settled record. Discards before the lock claim stay silent;
// the next snapshot rediscovers anything still live.
func (c *Coordinator) Execute(ctx context.Context, opp discoveryDomain.ValidatedOpportunity) {
	ctx, span := c.tracer.Start(ctx, "execution.execute",
		trace.WithAttributes(
			attribute.String("route", opp.Cycle.Route()),
			attribute.String("fingerprint", opp.Fingerprint()),
		),
	)
	defer span.End()

	fp := opp.Fingerprint()

	// Expiry re-check at claim time: queued opportunities age.
	if opp.Expired(time.Now()) {
		c.metrics.expiredTotal.Add(ctx, 1)
		c.logger.Debug(ctx, "opportunity expired before claim", "route", opp.Cycle.Route())
		return
	}

	if !c.governor.TryLock(fp, opp.Cycle.AmountIn) {
		c.metrics.lockContention.Add(ctx, 1)
		c.logger.Debug(ctx, "route lock contention, discarding", "route", opp.Cycle.Route())
		return
	}
	defer c.governor.Release(fp)

	tip := c.tip(opp.NetProfit)
	plan := domain.NewTradePlan(opp, tip)

	rec := domain.ExecutionRecord{
		Fingerprint: fp,
		Route:       opp.Cycle.Route(),
		State:       domain.StateDiscovered,
		Tip:         tip,
	}
	c.transition(ctx, &rec, domain.StateLocked)

	if c.cfg.UseBundles && c.submitter.SupportsBundles() {
		c.runBundle(ctx, plan, &rec)
	} else {
		c.runSequential(ctx, plan, &rec)
	}

	rec.CompletedAt = time.Now()
	c.settle(ctx, &rec)

	span.SetAttributes(
		attribute.String("state", string(rec.State)),
		attribute.String("net_pnl", rec.NetPnL.String()),
	)
}

// tip prices the priority fee for an expected net profit.
func (c *Coordinator) tip(netProfit decimal.Decimal) decimal.Decimal {
	tip := c.cfg.TipCoefficient.Mul(netProfit)
	if tip.LessThan(c.cfg.MinTip) {
		tip = c.cfg.MinTip
	}
	if cap := c.cfg.MaxTipFraction.Mul(netProfit); tip.GreaterThan(cap) {
		tip = cap
	}
	if tip.IsNegative() {
		tip = decimal.Zero
	}
	return tip
}

// runBundle submits the whole plan atomically.
func (c *Coordinator) runBundle(ctx context.Context, plan domain.TradePlan, rec *domain.ExecutionRecord) {
	opp := plan.Opportunity

	// Pre-submission balance anchors timeout reconciliation.
	preBalance, preErr := c.balances.Balance(ctx, opp.Cycle.Base)

	rec.SubmittedAt = time.Now()
	c.transition(ctx, rec, domain.StateSubmitted)

	subCtx, cancel := context.WithTimeout(ctx, c.cfg.SubmitTimeout)
	receipt, err := c.submitter.SubmitBundle(subCtx, plan)
	cancel()

	switch {
	case err == nil && receipt.Included:
		for i, step := range plan.Steps {
			realized := decimal.Zero
			if i < len(receipt.Realized) {
				realized = receipt.Realized[i]
			}
			rec.Steps = append(rec.Steps, domain.StepResult{
				Venue:     step.Edge.Venue,
				Route:     step.Edge.In + ">" + step.Edge.Out,
				Requested: opp.Cycle.Steps[i].AmountOut,
				Realized:  realized,
				Success:   true,
			})
		}
		realizedOut := decimal.Zero
		if n := len(receipt.Realized); n > 0 {
			realizedOut = receipt.Realized[n-1]
		}
		c.confirm(ctx, plan, rec, realizedOut)

	case err == nil && !receipt.Included:
		// Dropped bundle: atomic, so no funds moved.
		rec.Err = "bundle not included"
		c.transition(ctx, rec, domain.StateRejected)

	case apperror.GetCode(err) == apperror.CodeChannelTimeout || errors.Is(err, context.DeadlineExceeded):
		c.reconcile(ctx, plan, rec, preBalance, preErr == nil)

	default:
		rec.Err = err.Error()
		c.transition(ctx, rec, domain.StateRejected)
	}
}

// runSequential submits legs one at a time, each waiting for the previous
// confirmation, aborting on the first failure.
func (c *Coordinator) runSequential(ctx context.Context, plan domain.TradePlan, rec *domain.ExecutionRecord) {
	opp := plan.Opportunity

	rec.SubmittedAt = time.Now()
	c.transition(ctx, rec, domain.StateSubmitted)

	holding := opp.Cycle.AmountIn
	for i, step := range plan.Steps {
		// Later legs spend what the previous leg actually filled.
		step.AmountIn = holding

		// Pre-leg output balance anchors timeout reconciliation.
		preOut, preErr := c.balances.Balance(ctx, step.Edge.Out)

		stepCtx, cancel := context.WithTimeout(ctx, c.cfg.ConfirmTimeout)
		receipt, err := c.submitter.SubmitStep(stepCtx, step)
		cancel()

		if err != nil {
			// A timed-out leg left the process; its fate is unknown until
			// the output balance says otherwise.
			if apperror.GetCode(err) == apperror.CodeChannelTimeout || errors.Is(err, context.DeadlineExceeded) {
				if realized, landed := c.reconcileStep(ctx, step, preOut, preErr == nil); landed {
					c.logger.Info(ctx, "timed-out leg reconciled as filled",
						"route", rec.Route,
						"leg", i+1,
						"realized", realized.String(),
					)
					rec.Steps = append(rec.Steps, domain.StepResult{
						Venue:     step.Edge.Venue,
						Route:     step.Edge.In + ">" + step.Edge.Out,
						Requested: opp.Cycle.Steps[i].AmountOut,
						Realized:  realized,
						Success:   true,
					})
					holding = realized
					continue
				}
			}

			rec.Steps = append(rec.Steps, domain.StepResult{
				Venue:     step.Edge.Venue,
				Route:     step.Edge.In + ">" + step.Edge.Out,
				Requested: opp.Cycle.Steps[i].AmountOut,
				Realized:  decimal.Zero,
				Success:   false,
			})
			rec.Err = err.Error()

			if i == 0 {
				// First leg never moved funds: opportunity cost only.
				c.transition(ctx, rec, domain.StateRejected)
				return
			}

			// Funds are stranded mid-cycle. Write the input off until the
			// inventory is recovered manually; never unwind automatically.
			rec.NetPnL = opp.Cycle.AmountIn.Neg()
			c.transition(ctx, rec, domain.StatePartiallyFailed)
			c.logger.Error(ctx, "cycle failed mid-route, inventory stranded",
				"route", rec.Route,
				"failed_leg", i+1,
				"holding", holding.String(),
				"token", step.Edge.In,
			)
			return
		}

		rec.Steps = append(rec.Steps, domain.StepResult{
			Venue:     step.Edge.Venue,
			Route:     step.Edge.In + ">" + step.Edge.Out,
			Requested: opp.Cycle.Steps[i].AmountOut,
			Realized:  receipt.Realized,
			Success:   true,
		})
		holding = receipt.Realized
	}

	c.confirm(ctx, plan, rec, holding)
}

// confirm settles a fully executed cycle.
func (c *Coordinator) confirm(ctx context.Context, plan domain.TradePlan, rec *domain.ExecutionRecord, realizedOut decimal.Decimal) {
	opp := plan.Opportunity

	rec.NetPnL = realizedOut.Sub(opp.Cycle.AmountIn).Sub(plan.Tip)

	// A confirmed fill that missed simulation by more than the reserve is a
	// win with an asterisk; risk accounting wants to know.
	floor := opp.Cycle.AmountOut.Sub(opp.SlippageReserve)
	if realizedOut.LessThan(floor) {
		rec.DeviatedFromPlan = true
	}

	c.transition(ctx, rec, domain.StateConfirmed)
}

// reconcile resolves an unknown submission outcome from the balance delta.
// Success is never assumed: only an observed balance increase confirms.
func (c *Coordinator) reconcile(ctx context.Context, plan domain.TradePlan, rec *domain.ExecutionRecord, preBalance decimal.Decimal, preKnown bool) {
	opp := plan.Opportunity
	rec.Err = apperror.New(apperror.CodeChannelTimeout).Message

	if !preKnown {
		c.logger.Error(ctx, "cannot reconcile, pre-submission balance unknown", "route", rec.Route)
		c.transition(ctx, rec, domain.StateRejected)
		return
	}

	readCtx, cancel := context.WithTimeout(ctx, c.cfg.ConfirmTimeout)
	postBalance, err := c.balances.Balance(readCtx, opp.Cycle.Base)
	cancel()
	if err != nil {
		c.logger.Error(ctx, "reconciliation balance read failed", "route", rec.Route, "error", err)
		c.transition(ctx, rec, domain.StateRejected)
		return
	}

	delta := postBalance.Sub(preBalance)
	if delta.IsPositive() {
		// The bundle landed after all. The delta is the realized profit,
		// already net of the tip.
		rec.NetPnL = delta
		rec.Err = ""
		if delta.LessThan(opp.NetProfit.Sub(opp.SlippageReserve)) {
			rec.DeviatedFromPlan = true
		}
		c.transition(ctx, rec, domain.StateConfirmed)
		c.logger.Info(ctx, "timed-out bundle reconciled as landed",
			"route", rec.Route, "delta", delta.String())
		return
	}

	// Atomic bundle, no balance change: it never landed.
	c.transition(ctx, rec, domain.StateRejected)
}

// reconcileStep resolves a timed-out leg from its output token balance.
// Only an observed increase confirms the fill; anything else settles the
// leg as failed.
func (c *Coordinator) reconcileStep(ctx context.Context, step domain.PlannedStep, pre decimal.Decimal, preKnown bool) (decimal.Decimal, bool) {
	if !preKnown {
		return decimal.Zero, false
	}

	readCtx, cancel := context.WithTimeout(ctx, c.cfg.ConfirmTimeout)
	post, err := c.balances.Balance(readCtx, step.Edge.Out)
	cancel()
	if err != nil {
		c.logger.Error(ctx, "leg reconciliation balance read failed",
			"pair", step.Edge.In+">"+step.Edge.Out, "error", err)
		return decimal.Zero, false
	}

	delta := post.Sub(pre)
	if delta.IsPositive() {
		return delta, true
	}
	return decimal.Zero, false
}

// settle records the terminal outcome everywhere it matters. The route lock
// release is handled by Execute's defer on every path.
func (c *Coordinator) settle(ctx context.Context, rec *domain.ExecutionRecord) {
	c.metrics.executionsTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("state", string(rec.State))))
	c.metrics.settleLatency.Record(ctx, float64(rec.Latency().Milliseconds()))

	if err := c.ledger.Append(ctx, *rec); err != nil {
		c.logger.Error(ctx, "ledger append failed", "route", rec.Route, "error", err)
	}

	c.governor.RecordOutcome(*rec)

	state := c.governor.State()
	if err := c.ledger.SnapshotRisk(ctx, state); err != nil {
		c.logger.Warn(ctx, "risk snapshot write failed", "error", err)
	}

	c.reporter.ReportExecution(rec)
	c.reporter.UpdateRiskState(state)

	c.logger.Info(ctx, "execution settled",
		"route", rec.Route,
		"state", string(rec.State),
		"net_pnl", rec.NetPnL.String(),
		"latency_ms", rec.Latency().Milliseconds(),
	)
}

// transition advances the record's state machine, logging any illegal move
// instead of panicking.
func (c *Coordinator) transition(ctx context.Context, rec *domain.ExecutionRecord, next domain.State) {
	if !rec.State.CanTransitionTo(next) {
		c.logger.Error(ctx, "illegal execution state transition",
			"from", string(rec.State), "to", string(next),
			"route", rec.Route,
		)
	}
	rec.State = next
}
