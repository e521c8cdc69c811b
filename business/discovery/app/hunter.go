package app

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/jtoledo/cycle-bot/business/discovery/domain"
	marketApp "github.com/jtoledo/cycle-bot/business/market/app"
	"github.com/jtoledo/cycle-bot/internal/logger"
)

// HunterConfig holds discovery loop settings.
type HunterConfig struct {
	BaseAsset string
	// Workers bounds concurrent execution attempts. Queued opportunities
	// past the buffer are dropped; the next snapshot rediscovers anything
	// still live.
	Workers int
}

// hunterMetrics holds OTEL metric instruments.
type hunterMetrics struct {
	passesTotal     metric.Int64Counter
	validatedTotal  metric.Int64Counter
	rejectedTotal   metric.Int64Counter
	droppedTotal    metric.Int64Counter
}

// Hunter drives the pipeline: on every venue refresh it searches one
// snapshot, validates candidates against the same snapshot, and feeds
// passing opportunities to a bounded pool of execution workers.
type Hunter struct {
	cfg       HunterConfig
	feed      *marketApp.FeedService
	searcher  *Searcher
	validator *Validator
	executor  Executor
	reporter  Reporter
	logger    logger.LoggerInterface

	jobs    chan domain.ValidatedOpportunity
	metrics *hunterMetrics
}

// NewHunter creates the discovery loop.
func NewHunter(cfg HunterConfig, feed *marketApp.FeedService, searcher *Searcher, validator *Validator, executor Executor, reporter Reporter, log logger.LoggerInterface) (*Hunter, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}

	h := &Hunter{
		cfg:       cfg,
		feed:      feed,
		searcher:  searcher,
		validator: validator,
		executor:  executor,
		reporter:  reporter,
		logger:    log,
		jobs:      make(chan domain.ValidatedOpportunity, cfg.Workers*2),
	}

	if err := h.initMetrics(); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Hunter) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	h.metrics = &hunterMetrics{}

	h.metrics.passesTotal, err = meter.Int64Counter(
		"discovery_passes_total",
		metric.WithDescription("Total discovery passes over snapshots"),
	)
	if err != nil {
		return err
	}

	h.metrics.validatedTotal, err = meter.Int64Counter(
		"discovery_validated_total",
		metric.WithDescription("Total opportunities that cleared validation"),
	)
	if err != nil {
		return err
	}

	h.metrics.rejectedTotal, err = meter.Int64Counter(
		"discovery_rejected_total",
		metric.WithDescription("Total candidates rejected by validation"),
	)
	if err != nil {
		return err
	}

	h.metrics.droppedTotal, err = meter.Int64Counter(
		"discovery_dropped_total",
		metric.WithDescription("Total opportunities dropped by a full worker queue"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Start launches the discovery loop and the execution workers.
func (h *Hunter) Start(ctx context.Context) error {
	if err := h.reporter.Start(ctx); err != nil {
		return err
	}

	for i := 0; i < h.cfg.Workers; i++ {
		go h.worker(ctx)
	}
	go h.run(ctx)

	h.logger.Info(ctx, "hunter started",
		"base", h.cfg.BaseAsset,
		"workers", h.cfg.Workers,
	)
	return nil
}

// Stop shuts the reporter down.
func (h *Hunter) Stop() error {
	return h.reporter.Stop()
}

func (h *Hunter) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.logger.Info(ctx, "hunter stopping", "reason", ctx.Err())
			return
		case venue := <-h.feed.Updates():
			h.pass(ctx, venue)
		}
	}
}

// pass runs search and validation against one consistent snapshot.
func (h *Hunter) pass(ctx context.Context, venue string) {
	h.metrics.passesTotal.Add(ctx, 1)

	snap := h.feed.Graph().Snapshot()
	h.reporter.UpdateVenueStatus(venue, true, snap.EdgeCount())

	candidates := h.searcher.FindCycles(ctx, snap, h.cfg.BaseAsset)
	if len(candidates) == 0 {
		// Normal outcome; nothing cleared the search bounds.
		return
	}

	for _, cycle := range candidates {
		opp, reason, err := h.validator.Validate(ctx, cycle)
		if err != nil {
			h.logger.Warn(ctx, "validation error", "route", cycle.Route(), "error", err)
			continue
		}
		if opp == nil {
			h.metrics.rejectedTotal.Add(ctx, 1)
			h.logger.Debug(ctx, "candidate rejected",
				"route", cycle.Route(), "reason", string(reason))
			continue
		}

		h.metrics.validatedTotal.Add(ctx, 1)
		h.reporter.ReportOpportunity(opp)

		select {
		case h.jobs <- *opp:
		default:
			h.metrics.droppedTotal.Add(ctx, 1)
			h.logger.Debug(ctx, "worker queue full, opportunity dropped",
				"route", cycle.Route())
		}
	}
}

func (h *Hunter) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case opp := <-h.jobs:
			h.executor.Execute(ctx, opp)
		}
	}
}
