// Package app contains the risk governor service.
package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	executionDomain "github.com/jtoledo/cycle-bot/business/execution/domain"
	"github.com/jtoledo/cycle-bot/business/risk/domain"
	"github.com/jtoledo/cycle-bot/internal/circuitbreaker"
	"github.com/jtoledo/cycle-bot/internal/logger"
)

const meterName = "risk"

const (
	haltReasonLossStreak = "consecutive_losses"
	haltReasonDailyLoss  = "daily_loss_limit"
)

var errLoss = errors.New("losing trade")

// Config holds the governor's limits.
type Config struct {
	// MaxPositionSize caps total base asset exposure across concurrent
	// trades.
	MaxPositionSize decimal.Decimal

	// DailyLossLimit is a positive magnitude; trading halts for the rest of
	// the day once cumulative losses reach it.
	DailyLossLimit decimal.Decimal

	// ConsecutiveLosses trips the loss breaker; Cooldown is how long it
	// stays open.
	ConsecutiveLosses int
	Cooldown          time.Duration
}

type governorMetrics struct {
	locksGranted  metric.Int64Counter
	locksDenied   metric.Int64Counter
	outcomesTotal metric.Int64Counter
	dailyPnL      metric.Float64Gauge
}

// Governor is the single authority on whether and how much the bot may
// trade. It owns the route lock set, so a fingerprint can never be in
// flight twice, and the loss limits that halt trading.
type Governor struct {
	cfg    Config
	logger logger.LoggerInterface

	// The loss streak lives in the breaker: every recorded outcome passes
	// through it, losses as failures. Cooldown is the breaker's open
	// timeout.
	breaker *circuitbreaker.CircuitBreaker[struct{}]

	mu         sync.Mutex
	inFlight   map[string]decimal.Decimal // fingerprint -> locked notional
	exposure   decimal.Decimal
	dailyPnL   decimal.Decimal
	day        time.Time
	lossStreak int
	dailyHalt  bool

	metrics *governorMetrics
}

// NewGovernor creates a governor with the given limits.
func NewGovernor(cfg Config, log logger.LoggerInterface) (*Governor, error) {
	if cfg.ConsecutiveLosses <= 0 {
		cfg.ConsecutiveLosses = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}

	g := &Governor{
		cfg:      cfg,
		logger:   log,
		inFlight: make(map[string]decimal.Decimal),
		day:      dayOf(time.Now()),
		breaker: circuitbreaker.New[struct{}](circuitbreaker.Config{
			Name:        "risk-governor",
			MaxRequests: 1,
			Timeout:     cfg.Cooldown,
			TripAfter:   uint32(cfg.ConsecutiveLosses),
		}),
	}

	if err := g.initMetrics(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Governor) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	g.metrics = &governorMetrics{}

	g.metrics.locksGranted, err = meter.Int64Counter(
		"risk_locks_granted_total",
		metric.WithDescription("Total route locks granted"),
	)
	if err != nil {
		return err
	}

	g.metrics.locksDenied, err = meter.Int64Counter(
		"risk_locks_denied_total",
		metric.WithDescription("Total route lock claims denied"),
	)
	if err != nil {
		return err
	}

	g.metrics.outcomesTotal, err = meter.Int64Counter(
		"risk_outcomes_total",
		metric.WithDescription("Total execution outcomes recorded"),
	)
	if err != nil {
		return err
	}

	g.metrics.dailyPnL, err = meter.Float64Gauge(
		"risk_daily_pnl",
		metric.WithDescription("Cumulative realized PnL for the current day"),
	)
	if err != nil {
		return err
	}

	return nil
}

// TryLock atomically claims the route lock for a fingerprint, reserving
// notional against the position cap. It returns false without side effects
// when trading is halted, the fingerprint is already in flight, or the
// reservation would breach the cap.
func (g *Governor) TryLock(fingerprint string, notional decimal.Decimal) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	ctx := context.Background()
	g.rolloverLocked(time.Now())

	if !g.tradingAllowedLocked() {
		g.metrics.locksDenied.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "halted")))
		return false
	}
	if _, exists := g.inFlight[fingerprint]; exists {
		g.metrics.locksDenied.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "in_flight")))
		return false
	}
	if g.cfg.MaxPositionSize.IsPositive() && g.exposure.Add(notional).GreaterThan(g.cfg.MaxPositionSize) {
		g.metrics.locksDenied.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "position_cap")))
		return false
	}

	g.inFlight[fingerprint] = notional
	g.exposure = g.exposure.Add(notional)
	g.metrics.locksGranted.Add(ctx, 1)
	return true
}

// Release returns a route lock. Releasing an unheld lock is a no-op.
func (g *Governor) Release(fingerprint string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	notional, ok := g.inFlight[fingerprint]
	if !ok {
		return
	}
	delete(g.inFlight, fingerprint)
	g.exposure = g.exposure.Sub(notional)
}

// InFlight reports whether a fingerprint currently holds the route lock.
func (g *Governor) InFlight(fingerprint string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.inFlight[fingerprint]
	return ok
}

// RecordOutcome folds a settled execution into the loss limits.
func (g *Governor) RecordOutcome(rec executionDomain.ExecutionRecord) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ctx := context.Background()
	now := time.Now()
	g.rolloverLocked(now)

	g.dailyPnL = g.dailyPnL.Add(rec.NetPnL)
	g.metrics.outcomesTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("state", string(rec.State))))
	pnl, _ := g.dailyPnL.Float64()
	g.metrics.dailyPnL.Record(ctx, pnl)

	// A rejected attempt never moved funds. It is neutral: neither a loss
	// that extends the streak nor a win that resets it.
	if rec.State != executionDomain.StateRejected || !rec.NetPnL.IsZero() {
		if rec.Loss() {
			g.lossStreak++
		} else {
			g.lossStreak = 0
		}

		// A loss is a breaker failure; a win resets the streak inside
		// gobreaker the same way it resets our counter.
		_, _ = g.breaker.Execute(func() (struct{}, error) {
			if rec.Loss() {
				return struct{}{}, errLoss
			}
			return struct{}{}, nil
		})
	}

	if g.cfg.DailyLossLimit.IsPositive() && g.dailyPnL.LessThanOrEqual(g.cfg.DailyLossLimit.Neg()) {
		if !g.dailyHalt {
			g.logger.Warn(ctx, "daily loss limit reached, halting",
				"daily_pnl", g.dailyPnL.String())
		}
		g.dailyHalt = true
	}
}

// TradingAllowed reports whether new trades may start.
func (g *Governor) TradingAllowed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rolloverLocked(time.Now())
	return g.tradingAllowedLocked()
}

// State returns a point-in-time snapshot for reporters and the ledger.
func (g *Governor) State() domain.RiskState {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := time.Now()
	g.rolloverLocked(now)

	return domain.RiskState{
		TradingAllowed:    g.tradingAllowedLocked(),
		HaltReason:        g.haltReasonLocked(),
		DailyPnL:          g.dailyPnL,
		Day:               g.day,
		ConsecutiveLosses: g.lossStreak,
		InFlight:          len(g.inFlight),
		Exposure:          g.exposure,
		TakenAt:           now,
	}
}

// tradingAllowedLocked must be called with g.mu held.
func (g *Governor) tradingAllowedLocked() bool {
	return !g.dailyHalt && !g.breaker.IsOpen()
}

// haltReasonLocked must be called with g.mu held.
func (g *Governor) haltReasonLocked() string {
	switch {
	case g.dailyHalt:
		return haltReasonDailyLoss
	case g.breaker.IsOpen():
		return haltReasonLossStreak
	}
	return ""
}

// rolloverLocked resets daily accounting at the UTC day boundary. Must be
// called with g.mu held.
func (g *Governor) rolloverLocked(now time.Time) {
	today := dayOf(now)
	if today.Equal(g.day) {
		return
	}
	g.day = today
	g.dailyPnL = decimal.Zero
	g.dailyHalt = false
}

func dayOf(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}

// BreakerState exposes the loss breaker's state for health reporting.
func (g *Governor) BreakerState() gobreaker.State {
	return g.breaker.State()
}
