package app

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/jtoledo/cycle-bot/business/market/domain"
	"github.com/jtoledo/cycle-bot/internal/apperror"
	"github.com/jtoledo/cycle-bot/internal/logger"
	"github.com/jtoledo/cycle-bot/internal/ratelimit"
)

const (
	tracerName = "market"
	meterName  = "market"

	maxFetchAttempts = 3
	fetchTimeout     = 10 * time.Second
	retryBackoff     = 500 * time.Millisecond
	rateLimitBackoff = 5 * time.Second
)

// feedMetrics holds OTEL metric instruments.
type feedMetrics struct {
	refreshesTotal metric.Int64Counter
	refreshErrors  metric.Int64Counter
	edgesApplied   metric.Int64Counter
	fetchLatency   metric.Float64Histogram
}

// FeedService keeps the market graph current. Each venue gets its own
// refresh worker paced by the venue's rate limit, so one slow or failing
// venue never stalls the others.
type FeedService struct {
	graph   *domain.Graph
	sources []VenueSource
	health  *VenueHealth
	logger  logger.LoggerInterface
	updates chan string

	tracer  trace.Tracer
	metrics *feedMetrics
}

// NewFeedService creates a feed over the given venue sources.
func NewFeedService(graph *domain.Graph, sources []VenueSource, health *VenueHealth, log logger.LoggerInterface) (*FeedService, error) {
	s := &FeedService{
		graph:   graph,
		sources: sources,
		health:  health,
		logger:  log,
		updates: make(chan string, 64),
		tracer:  otel.Tracer(tracerName),
	}

	if err := s.initMetrics(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FeedService) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	s.metrics = &feedMetrics{}

	s.metrics.refreshesTotal, err = meter.Int64Counter(
		"market_refreshes_total",
		metric.WithDescription("Total venue refresh attempts"),
	)
	if err != nil {
		return err
	}

	s.metrics.refreshErrors, err = meter.Int64Counter(
		"market_refresh_errors_total",
		metric.WithDescription("Total venue refresh failures"),
	)
	if err != nil {
		return err
	}

	s.metrics.edgesApplied, err = meter.Int64Counter(
		"market_edges_applied_total",
		metric.WithDescription("Total edges applied to the graph"),
	)
	if err != nil {
		return err
	}

	s.metrics.fetchLatency, err = meter.Float64Histogram(
		"market_fetch_latency_ms",
		metric.WithDescription("Venue fetch latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Graph returns the live graph.
func (s *FeedService) Graph() *domain.Graph {
	return s.graph
}

// Health returns the venue health tracker.
func (s *FeedService) Health() *VenueHealth {
	return s.health
}

// Updates emits a venue name after each successful batch apply. The channel
// is best-effort: a slow consumer loses notifications, never edges.
func (s *FeedService) Updates() <-chan string {
	return s.updates
}

// Start launches one refresh worker per venue. Workers stop when ctx is done.
func (s *FeedService) Start(ctx context.Context) error {
	if len(s.sources) == 0 {
		return apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("no venue sources enabled"))
	}

	for _, src := range s.sources {
		go s.runVenue(ctx, src)
	}

	s.logger.Info(ctx, "market feed started", "venues", len(s.sources))
	return nil
}

func (s *FeedService) runVenue(ctx context.Context, src VenueSource) {
	limiter := ratelimit.New(src.RequestsPerMinute())

	for {
		if err := limiter.Wait(ctx); err != nil {
			s.logger.Info(ctx, "venue worker stopping", "venue", src.Name(), "reason", ctx.Err())
			return
		}

		s.refreshVenue(ctx, src)
	}
}

// refreshVenue fetches one batch with bounded retries and applies the result.
// Hard failure clears the venue's edges so stale liquidity never lingers in
// the graph as tradable.
func (s *FeedService) refreshVenue(ctx context.Context, src VenueSource) {
	ctx, span := s.tracer.Start(ctx, "market.refresh_venue",
		trace.WithAttributes(attribute.String("venue", src.Name())),
	)
	defer span.End()

	start := time.Now()
	s.metrics.refreshesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("venue", src.Name())))

	edges, err := s.fetchWithRetry(ctx, src)

	s.metrics.fetchLatency.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(attribute.String("venue", src.Name())))

	switch {
	case err == nil:
		s.health.RecordOK(src.Name())
		s.graph.Apply(src.Name(), edges)
		s.metrics.edgesApplied.Add(ctx, int64(len(edges)),
			metric.WithAttributes(attribute.String("venue", src.Name())))
		s.notify(src.Name())

	case apperror.GetCode(err) == apperror.CodeVenueMalformedData:
		// Drop the batch but keep the previous one; it ages out on its own.
		s.health.RecordMalformed(src.Name())
		s.metrics.refreshErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("venue", src.Name())))
		s.logger.Warn(ctx, "venue returned malformed data", "venue", src.Name(), "error", err)

	case apperror.GetCode(err) == apperror.CodeVenueRateLimited:
		s.health.RecordError(src.Name())
		s.metrics.refreshErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("venue", src.Name())))
		s.logger.Warn(ctx, "venue rate limited, backing off", "venue", src.Name())
		select {
		case <-ctx.Done():
		case <-time.After(rateLimitBackoff):
		}

	default:
		s.health.RecordError(src.Name())
		s.graph.Apply(src.Name(), nil)
		s.metrics.refreshErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("venue", src.Name())))
		s.logger.Warn(ctx, "venue refresh failed, edges cleared", "venue", src.Name(), "error", err)
	}
}

func (s *FeedService) fetchWithRetry(ctx context.Context, src VenueSource) ([]domain.Edge, error) {
	var lastErr error
	backoff := retryBackoff

	for attempt := 1; attempt <= maxFetchAttempts; attempt++ {
		fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
		edges, err := src.FetchEdges(fetchCtx)
		cancel()

		if err == nil {
			return edges, nil
		}
		lastErr = err

		// Only timeouts are worth retrying inside one refresh window.
		if !errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
		}
	}

	return nil, lastErr
}

func (s *FeedService) notify(venue string) {
	select {
	case s.updates <- venue:
	default:
	}
}
