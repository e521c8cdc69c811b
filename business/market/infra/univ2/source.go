// Package univ2 reads constant-product pool reserves on-chain and exposes
// them as market edges.
package univ2

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/jtoledo/cycle-bot/business/market/app"
	"github.com/jtoledo/cycle-bot/business/market/domain"
	"github.com/jtoledo/cycle-bot/internal/apperror"
	"github.com/jtoledo/cycle-bot/internal/asset"
	"github.com/jtoledo/cycle-bot/internal/circuitbreaker"
	"github.com/jtoledo/cycle-bot/internal/config"
	"github.com/jtoledo/cycle-bot/internal/logger"
)

const (
	tracerName = "univ2"
	meterName  = "univ2"
)

// Ensure Source implements VenueSource.
var _ app.VenueSource = (*Source)(nil)

// poolTokens caches a pool's immutable token ordering.
type poolTokens struct {
	token0 *asset.Asset
	token1 *asset.Asset
}

// sourceMetrics holds OTEL metric instruments.
type sourceMetrics struct {
	readsTotal  metric.Int64Counter
	readErrors  metric.Int64Counter
	readLatency metric.Float64Histogram
}

// Source is the on-chain constant-product venue.
type Source struct {
	client  *ethclient.Client
	pairABI abi.ABI
	cfg     config.UniV2VenueConfig
	chainID uint64

	registry *asset.Registry
	logger   logger.LoggerInterface
	cb       *circuitbreaker.CircuitBreaker[[]byte]

	mu     sync.Mutex
	tokens map[common.Address]poolTokens

	tracer  trace.Tracer
	metrics *sourceMetrics
}

// NewSource creates the venue over the configured pools.
func NewSource(client *ethclient.Client, cfg config.UniV2VenueConfig, chainID uint64, registry *asset.Registry, log logger.LoggerInterface) (*Source, error) {
	parsedABI, err := abi.JSON(strings.NewReader(PairABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pair ABI: %w", err)
	}

	s := &Source{
		client:   client,
		pairABI:  parsedABI,
		cfg:      cfg,
		chainID:  chainID,
		registry: registry,
		logger:   log,
		tokens:   make(map[common.Address]poolTokens),
		tracer:   otel.Tracer(tracerName),
	}

	cbCfg := circuitbreaker.DefaultConfig("univ2-" + cfg.Name)
	s.cb = circuitbreaker.New[[]byte](cbCfg)

	if err := s.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}

	return s, nil
}

func (s *Source) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	s.metrics = &sourceMetrics{}

	s.metrics.readsTotal, err = meter.Int64Counter(
		"univ2_pool_reads_total",
		metric.WithDescription("Total pool reserve reads"),
	)
	if err != nil {
		return err
	}

	s.metrics.readErrors, err = meter.Int64Counter(
		"univ2_pool_read_errors_total",
		metric.WithDescription("Total pool reserve read failures"),
	)
	if err != nil {
		return err
	}

	s.metrics.readLatency, err = meter.Float64Histogram(
		"univ2_pool_read_latency_ms",
		metric.WithDescription("Pool reserve read latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Name returns the venue identifier.
func (s *Source) Name() string {
	return s.cfg.Name
}

// RequestsPerMinute returns the venue refresh budget.
func (s *Source) RequestsPerMinute() int {
	return s.cfg.RequestsPerMinute
}

// FetchEdges reads every configured pool and returns both directed edges per
// pool. A single unreadable pool fails the whole batch; the feed treats that
// as a venue failure rather than trading on half a venue.
func (s *Source) FetchEdges(ctx context.Context) ([]domain.Edge, error) {
	ctx, span := s.tracer.Start(ctx, "univ2.fetch_edges",
		trace.WithAttributes(attribute.Int("pools", len(s.cfg.PoolAddresses))),
	)
	defer span.End()

	now := time.Now()
	edges := make([]domain.Edge, 0, len(s.cfg.PoolAddresses)*2)

	for _, pool := range s.cfg.PoolAddressesHex() {
		pair, err := s.poolEdges(ctx, pool, now)
		if err != nil {
			span.SetStatus(codes.Error, "pool read failed")
			return nil, err
		}
		edges = append(edges, pair...)
	}

	span.SetAttributes(attribute.Int("edges", len(edges)))
	span.SetStatus(codes.Ok, "batch complete")
	return edges, nil
}

func (s *Source) poolEdges(ctx context.Context, pool common.Address, now time.Time) ([]domain.Edge, error) {
	start := time.Now()
	s.metrics.readsTotal.Add(ctx, 1)

	tokens, err := s.poolTokens(ctx, pool)
	if err != nil {
		s.metrics.readErrors.Add(ctx, 1)
		return nil, err
	}

	reserve0, reserve1, err := s.getReserves(ctx, pool)
	if err != nil {
		s.metrics.readErrors.Add(ctx, 1)
		return nil, err
	}

	s.metrics.readLatency.Record(ctx, float64(time.Since(start).Milliseconds()))

	r0 := decimal.NewFromBigInt(reserve0, -int32(tokens.token0.Decimals()))
	r1 := decimal.NewFromBigInt(reserve1, -int32(tokens.token1.Decimals()))

	s.logger.Debug(ctx, "pool reserves read",
		"pool", pool.Hex(),
		"token0", tokens.token0.Symbol(),
		"token1", tokens.token1.Symbol(),
		"reserve0", r0.String(),
		"reserve1", r1.String(),
	)

	return []domain.Edge{
		{
			Venue:      s.cfg.Name,
			Pool:       pool,
			In:         tokens.token0.Symbol(),
			Out:        tokens.token1.Symbol(),
			Kind:       domain.KindConstantProduct,
			FeeBps:     s.cfg.FeeBps,
			ReserveIn:  r0,
			ReserveOut: r1,
			UpdatedAt:  now,
		},
		{
			Venue:      s.cfg.Name,
			Pool:       pool,
			In:         tokens.token1.Symbol(),
			Out:        tokens.token0.Symbol(),
			Kind:       domain.KindConstantProduct,
			FeeBps:     s.cfg.FeeBps,
			ReserveIn:  r1,
			ReserveOut: r0,
			UpdatedAt:  now,
		},
	}, nil
}

// poolTokens resolves and caches the pool's token pair. Token ordering never
// changes for a deployed pair, so two contract calls per pool suffice for the
// process lifetime.
func (s *Source) poolTokens(ctx context.Context, pool common.Address) (poolTokens, error) {
	s.mu.Lock()
	cached, ok := s.tokens[pool]
	s.mu.Unlock()
	if ok {
		return cached, nil
	}

	addr0, err := s.callAddress(ctx, pool, "token0")
	if err != nil {
		return poolTokens{}, err
	}
	addr1, err := s.callAddress(ctx, pool, "token1")
	if err != nil {
		return poolTokens{}, err
	}

	tokens := poolTokens{
		token0: s.resolveAsset(addr0),
		token1: s.resolveAsset(addr1),
	}

	s.mu.Lock()
	s.tokens[pool] = tokens
	s.mu.Unlock()

	return tokens, nil
}

func (s *Source) getReserves(ctx context.Context, pool common.Address) (*big.Int, *big.Int, error) {
	result, err := s.call(ctx, pool, "getReserves")
	if err != nil {
		return nil, nil, err
	}

	outputs, err := s.pairABI.Unpack("getReserves", result)
	if err != nil {
		return nil, nil, apperror.New(apperror.CodeVenueMalformedData,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("failed to decode reserves for pool %s", pool.Hex())))
	}
	if len(outputs) < 2 {
		return nil, nil, apperror.New(apperror.CodeVenueMalformedData,
			apperror.WithContext(fmt.Sprintf("unexpected getReserves output length %d", len(outputs))))
	}

	return outputs[0].(*big.Int), outputs[1].(*big.Int), nil
}

func (s *Source) callAddress(ctx context.Context, pool common.Address, method string) (common.Address, error) {
	result, err := s.call(ctx, pool, method)
	if err != nil {
		return common.Address{}, err
	}

	outputs, err := s.pairABI.Unpack(method, result)
	if err != nil || len(outputs) < 1 {
		return common.Address{}, apperror.New(apperror.CodeVenueMalformedData,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("failed to decode %s for pool %s", method, pool.Hex())))
	}

	return outputs[0].(common.Address), nil
}

func (s *Source) call(ctx context.Context, pool common.Address, method string) ([]byte, error) {
	callData, err := s.pairABI.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s call: %w", method, err)
	}

	result, err := s.cb.Execute(func() ([]byte, error) {
		return s.client.CallContract(ctx, ethereum.CallMsg{
			To:   &pool,
			Data: callData,
		}, nil)
	})
	if err != nil {
		return nil, apperror.New(apperror.CodePoolReadFailed,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("%s call failed for pool %s", method, pool.Hex())))
	}

	return result, nil
}

// resolveAsset attempts to find the asset in the registry.
func (s *Source) resolveAsset(addr common.Address) *asset.Asset {
	if a, ok := s.registry.GetToken(s.chainID, addr); ok {
		return a
	}
	// Fall back to a generic ERC20 identity if unregistered.
	return asset.NewAsset(
		asset.NewTokenAssetID(s.chainID, addr),
		addr.Hex()[:8],
		18,
	)
}
