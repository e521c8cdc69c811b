// Package stream maintains market edges from a venue's WebSocket update feed.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jtoledo/cycle-bot/business/market/app"
	"github.com/jtoledo/cycle-bot/business/market/domain"
	"github.com/jtoledo/cycle-bot/internal/apperror"
	"github.com/jtoledo/cycle-bot/internal/config"
	"github.com/jtoledo/cycle-bot/internal/logger"
	"github.com/jtoledo/cycle-bot/internal/wsconn"
)

// Ensure Source implements VenueSource.
var _ app.VenueSource = (*Source)(nil)

// bookUpdate is one streamed two-sided quote.
type bookUpdate struct {
	Base       string `json:"base"`
	Quote      string `json:"quote"`
	Bid        string `json:"bid"`
	Ask        string `json:"ask"`
	DepthBase  string `json:"depth_base"`
	DepthQuote string `json:"depth_quote"`
	TsMs       int64  `json:"ts"`
}

type subscribeRequest struct {
	Method string   `json:"method"`
	Pairs  []string `json:"pairs"`
}

// Source keeps the venue's latest book state updated from the stream. The
// feed service polls FetchEdges to snapshot that state into the graph, so the
// stream venue plugs into the same refresh pipeline as polling venues.
type Source struct {
	cfg    config.StreamVenueConfig
	client *wsconn.Client
	logger logger.LoggerInterface

	mu        sync.RWMutex
	edges     map[string][]domain.Edge // by pair key "BASE/QUOTE"
	malformed int64
}

// NewSource creates the streaming venue.
func NewSource(cfg config.StreamVenueConfig, log logger.LoggerInterface) (*Source, error) {
	client, err := wsconn.New(wsconn.DefaultConfig(cfg.WebSocketURL, cfg.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to create ws client: %w", err)
	}

	s := &Source{
		cfg:    cfg,
		client: client,
		logger: log,
		edges:  make(map[string][]domain.Edge),
	}

	client.OnMessage(s.handleMessage)
	client.OnStateChange(func(state wsconn.State, err error) {
		if err != nil {
			log.Warn(context.Background(), "stream state change",
				"venue", cfg.Name, "state", string(state), "error", err)
		}
	})

	return s, nil
}

// Connect dials the stream and subscribes to the configured pairs.
func (s *Source) Connect(ctx context.Context) error {
	if err := s.client.Connect(ctx); err != nil {
		return apperror.New(apperror.CodeVenueConnectionFailed,
			apperror.WithCause(err),
			apperror.WithContext(s.cfg.Name))
	}

	if len(s.cfg.Pairs) > 0 {
		if err := s.client.SendJSON(ctx, subscribeRequest{Method: "subscribe", Pairs: s.cfg.Pairs}); err != nil {
			return apperror.New(apperror.CodeWebSocketSendError,
				apperror.WithCause(err),
				apperror.WithContext("subscribe failed"))
		}
	}

	s.logger.Info(ctx, "stream venue connected", "venue", s.cfg.Name, "pairs", len(s.cfg.Pairs))
	return nil
}

// Close shuts the stream down.
func (s *Source) Close() error {
	return s.client.Close()
}

// Name returns the venue identifier.
func (s *Source) Name() string {
	return s.cfg.Name
}

// RequestsPerMinute paces how often the feed snapshots stream state into the
// graph. State updates arrive continuously regardless.
func (s *Source) RequestsPerMinute() int {
	return 120
}

// FetchEdges snapshots the current book state. It never blocks on the
// network; a disconnected stream surfaces as a venue error so the feed
// clears the venue's edges.
func (s *Source) FetchEdges(ctx context.Context) ([]domain.Edge, error) {
	if !s.client.IsConnected() {
		return nil, apperror.New(apperror.CodeVenueConnectionFailed,
			apperror.WithContext(fmt.Sprintf("stream %s is %s", s.cfg.Name, s.client.State())))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Edge, 0, len(s.edges)*2)
	for _, pair := range s.edges {
		out = append(out, pair...)
	}
	return out, nil
}

func (s *Source) handleMessage(ctx context.Context, msg []byte) {
	var update bookUpdate
	if err := json.Unmarshal(msg, &update); err != nil {
		s.recordMalformed(ctx, "invalid json", err)
		return
	}

	edges, err := s.updateEdges(update)
	if err != nil {
		s.recordMalformed(ctx, fmt.Sprintf("pair %s/%s", update.Base, update.Quote), err)
		return
	}

	key := update.Base + "/" + update.Quote
	s.mu.Lock()
	s.edges[key] = edges
	s.mu.Unlock()
}

func (s *Source) updateEdges(u bookUpdate) ([]domain.Edge, error) {
	if u.Base == "" || u.Quote == "" {
		return nil, fmt.Errorf("missing pair")
	}

	bid, err := decimal.NewFromString(u.Bid)
	if err != nil {
		return nil, fmt.Errorf("bad bid: %w", err)
	}
	ask, err := decimal.NewFromString(u.Ask)
	if err != nil {
		return nil, fmt.Errorf("bad ask: %w", err)
	}
	depthBase, err := decimal.NewFromString(u.DepthBase)
	if err != nil {
		return nil, fmt.Errorf("bad depth_base: %w", err)
	}
	depthQuote, err := decimal.NewFromString(u.DepthQuote)
	if err != nil {
		return nil, fmt.Errorf("bad depth_quote: %w", err)
	}
	if !bid.IsPositive() || !ask.IsPositive() || bid.GreaterThan(ask) {
		return nil, fmt.Errorf("inconsistent book")
	}

	updatedAt := time.UnixMilli(u.TsMs)
	if u.TsMs == 0 {
		updatedAt = time.Now()
	}

	return []domain.Edge{
		{
			Venue:     s.cfg.Name,
			In:        u.Base,
			Out:       u.Quote,
			Kind:      domain.KindLinearRate,
			FeeBps:    s.cfg.FeeBps,
			Rate:      bid,
			Depth:     depthBase,
			UpdatedAt: updatedAt,
		},
		{
			Venue:     s.cfg.Name,
			In:        u.Quote,
			Out:       u.Base,
			Kind:      domain.KindLinearRate,
			FeeBps:    s.cfg.FeeBps,
			Rate:      decimal.NewFromInt(1).Div(ask),
			Depth:     depthQuote,
			UpdatedAt: updatedAt,
		},
	}, nil
}

func (s *Source) recordMalformed(ctx context.Context, detail string, err error) {
	s.mu.Lock()
	s.malformed++
	n := s.malformed
	s.mu.Unlock()

	s.logger.Warn(ctx, "stream update dropped",
		"venue", s.cfg.Name, "detail", detail, "error", err, "dropped_total", n)
}
