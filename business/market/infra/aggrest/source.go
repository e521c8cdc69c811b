// Package aggrest adapts a REST quote-aggregator API into market edges.
package aggrest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jtoledo/cycle-bot/business/market/app"
	"github.com/jtoledo/cycle-bot/business/market/domain"
	"github.com/jtoledo/cycle-bot/internal/apperror"
	"github.com/jtoledo/cycle-bot/internal/config"
	"github.com/jtoledo/cycle-bot/internal/httpclient"
	"github.com/jtoledo/cycle-bot/internal/logger"
)

const tracerName = "aggrest"

// Ensure Source implements VenueSource.
var _ app.VenueSource = (*Source)(nil)

// marketEntry is one two-sided quote from the aggregator.
type marketEntry struct {
	Base       string `json:"base"`
	Quote      string `json:"quote"`
	Bid        string `json:"bid"`
	Ask        string `json:"ask"`
	DepthBase  string `json:"depth_base"`
	DepthQuote string `json:"depth_quote"`
}

type marketsResponse struct {
	Markets []marketEntry `json:"markets"`
}

// Source polls the aggregator's markets endpoint and converts each two-sided
// quote into a pair of linear-rate edges.
type Source struct {
	client httpclient.Client
	cfg    config.AggRestVenueConfig
	logger logger.LoggerInterface
	tracer trace.Tracer
}

// NewSource creates the REST aggregator venue.
func NewSource(cfg config.AggRestVenueConfig, log logger.LoggerInterface) (*Source, error) {
	client, err := httpclient.NewInstrumentedClient(
		httpclient.WithProviderName(cfg.Name),
		httpclient.WithBaseURL(cfg.BaseURL),
		httpclient.WithRequestTimeout(cfg.RequestTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http client: %w", err)
	}

	return &Source{
		client: client,
		cfg:    cfg,
		logger: log,
		tracer: otel.Tracer(tracerName),
	}, nil
}

// Name returns the venue identifier.
func (s *Source) Name() string {
	return s.cfg.Name
}

// RequestsPerMinute returns the venue refresh budget.
func (s *Source) RequestsPerMinute() int {
	return s.cfg.RequestsPerMinute
}

// FetchEdges polls the markets endpoint once.
func (s *Source) FetchEdges(ctx context.Context) ([]domain.Edge, error) {
	ctx, span := s.tracer.Start(ctx, "aggrest.fetch_edges")
	defer span.End()

	var result marketsResponse
	resp, err := s.client.NewRequest().
		SetResult(&result).
		Get(ctx, "/v1/markets")
	if err != nil {
		span.SetStatus(codes.Error, "request failed")
		return nil, apperror.New(apperror.CodeVenueConnectionFailed,
			apperror.WithCause(err),
			apperror.WithContext("markets request failed"))
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		span.SetStatus(codes.Error, "rate limited")
		return nil, apperror.New(apperror.CodeVenueRateLimited,
			apperror.WithContext(s.cfg.Name))
	}
	if resp.IsError() {
		span.SetStatus(codes.Error, "bad status")
		return nil, apperror.New(apperror.CodeVenueConnectionFailed,
			apperror.WithContext(fmt.Sprintf("markets request returned %d", resp.StatusCode)))
	}

	now := time.Now()
	edges := make([]domain.Edge, 0, len(result.Markets)*2)

	for _, m := range result.Markets {
		pair, err := s.marketEdges(m, now)
		if err != nil {
			span.SetStatus(codes.Error, "malformed market")
			return nil, err
		}
		edges = append(edges, pair...)
	}

	span.SetAttributes(attribute.Int("edges", len(edges)))
	span.SetStatus(codes.Ok, "batch complete")

	s.logger.Debug(ctx, "aggregator markets fetched",
		"venue", s.cfg.Name,
		"markets", len(result.Markets),
	)

	return edges, nil
}

func (s *Source) marketEdges(m marketEntry, now time.Time) ([]domain.Edge, error) {
	bid, err := decimal.NewFromString(m.Bid)
	if err != nil {
		return nil, malformed(m, "bid", err)
	}
	ask, err := decimal.NewFromString(m.Ask)
	if err != nil {
		return nil, malformed(m, "ask", err)
	}
	depthBase, err := decimal.NewFromString(m.DepthBase)
	if err != nil {
		return nil, malformed(m, "depth_base", err)
	}
	depthQuote, err := decimal.NewFromString(m.DepthQuote)
	if err != nil {
		return nil, malformed(m, "depth_quote", err)
	}

	if m.Base == "" || m.Quote == "" || !bid.IsPositive() || !ask.IsPositive() || bid.GreaterThan(ask) {
		return nil, malformed(m, "quote", fmt.Errorf("inconsistent market entry"))
	}

	return []domain.Edge{
		{
			Venue:     s.cfg.Name,
			In:        m.Base,
			Out:       m.Quote,
			Kind:      domain.KindLinearRate,
			FeeBps:    s.cfg.FeeBps,
			Rate:      bid,
			Depth:     depthBase,
			UpdatedAt: now,
		},
		{
			Venue:     s.cfg.Name,
			In:        m.Quote,
			Out:       m.Base,
			Kind:      domain.KindLinearRate,
			FeeBps:    s.cfg.FeeBps,
			Rate:      decimal.NewFromInt(1).Div(ask),
			Depth:     depthQuote,
			UpdatedAt: now,
		},
	}, nil
}

func malformed(m marketEntry, field string, err error) error {
	return apperror.New(apperror.CodeVenueMalformedData,
		apperror.WithCause(err),
		apperror.WithContext(fmt.Sprintf("market %s/%s field %s", m.Base, m.Quote, field)))
}
