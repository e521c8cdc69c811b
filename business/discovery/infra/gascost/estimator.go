// Package gascost prices the chain-side cost of landing a cycle.
package gascost

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/jtoledo/cycle-bot/business/discovery/app"
	"github.com/jtoledo/cycle-bot/internal/apperror"
	"github.com/jtoledo/cycle-bot/internal/cache"
	"github.com/jtoledo/cycle-bot/internal/circuitbreaker"
	"github.com/jtoledo/cycle-bot/internal/logger"
)

const (
	tracerName = "gascost"
	meterName  = "gascost"
)

// Ensure Estimator implements NetworkCostEstimator.
var _ app.NetworkCostEstimator = (*Estimator)(nil)

// Config holds gas estimator settings.
type Config struct {
	// CacheTTL bounds how stale a cached gas price may be.
	CacheTTL time.Duration

	// MaxGasPrice caps runaway fee spikes.
	MaxGasPrice *big.Int

	// OverheadGas covers the fixed transaction cost; PerHopGas covers one
	// swap leg.
	OverheadGas uint64
	PerHopGas   uint64
}

// DefaultConfig returns settings tuned for a single EVM chain.
func DefaultConfig() Config {
	maxGas := new(big.Int)
	maxGas.SetString("500000000000", 10) // 500 gwei

	return Config{
		CacheTTL:    12 * time.Second, // ~1 block
		MaxGasPrice: maxGas,
		OverheadGas: 80000,
		PerHopGas:   120000,
	}
}

type estimatorMetrics struct {
	priceFetches metric.Int64Counter
	priceGwei    metric.Float64Gauge
	cacheHits    metric.Int64Counter
	cacheMisses  metric.Int64Counter
}

// Estimator converts the node's suggested gas price into a per-cycle cost in
// base asset units. The base asset is assumed to be the chain's wrapped
// native token, so wei converts directly.
type Estimator struct {
	cfg    Config
	client *ethclient.Client
	logger logger.LoggerInterface

	priceCache *cache.Cache[string, *big.Int]
	cb         *circuitbreaker.CircuitBreaker[*big.Int]

	tracer  trace.Tracer
	metrics *estimatorMetrics
}

// NewEstimator creates a gas cost estimator over a connected client.
func NewEstimator(cfg Config, client *ethclient.Client, log logger.LoggerInterface) (*Estimator, error) {
	e := &Estimator{
		cfg:        cfg,
		client:     client,
		logger:     log,
		priceCache: cache.New[string, *big.Int](5 * time.Minute),
		cb:         circuitbreaker.New[*big.Int](circuitbreaker.DefaultConfig("gas-price")),
		tracer:     otel.Tracer(tracerName),
	}

	if err := e.initMetrics(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Estimator) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	e.metrics = &estimatorMetrics{}

	e.metrics.priceFetches, err = meter.Int64Counter(
		"gas_price_fetches_total",
		metric.WithDescription("Total gas price fetch attempts"),
	)
	if err != nil {
		return err
	}

	e.metrics.priceGwei, err = meter.Float64Gauge(
		"gas_price_gwei",
		metric.WithDescription("Current gas price in gwei"),
		metric.WithUnit("gwei"),
	)
	if err != nil {
		return err
	}

	e.metrics.cacheHits, err = meter.Int64Counter(
		"gas_cache_hits_total",
		metric.WithDescription("Gas price cache hits"),
	)
	if err != nil {
		return err
	}

	e.metrics.cacheMisses, err = meter.Int64Counter(
		"gas_cache_misses_total",
		metric.WithDescription("Gas price cache misses"),
	)
	if err != nil {
		return err
	}

	return nil
}

// EstimateCycleCost prices an n-hop cycle in base asset units.
func (e *Estimator) EstimateCycleCost(ctx context.Context, hops int) (decimal.Decimal, error) {
	ctx, span := e.tracer.Start(ctx, "gascost.estimate_cycle",
		trace.WithAttributes(attribute.Int("hops", hops)),
	)
	defer span.End()

	wei, err := e.gasPrice(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "price fetch failed")
		return decimal.Zero, err
	}

	gasUnits := e.cfg.OverheadGas + e.cfg.PerHopGas*uint64(hops)
	costWei := new(big.Int).Mul(wei, new(big.Int).SetUint64(gasUnits))

	// wei -> native units
	cost := decimal.NewFromBigInt(costWei, -18)

	span.SetAttributes(attribute.String("cost", cost.String()))
	return cost, nil
}

func (e *Estimator) gasPrice(ctx context.Context) (*big.Int, error) {
	if wei, found := e.priceCache.Get("current"); found {
		e.metrics.cacheHits.Add(ctx, 1)
		return wei, nil
	}

	e.metrics.cacheMisses.Add(ctx, 1)
	e.metrics.priceFetches.Add(ctx, 1)

	wei, err := e.cb.Execute(func() (*big.Int, error) {
		return e.client.SuggestGasPrice(ctx)
	})
	if err != nil {
		return nil, apperror.New(apperror.CodeGasEstimationFailed,
			apperror.WithCause(err),
			apperror.WithContext("failed to get gas price"))
	}

	if e.cfg.MaxGasPrice != nil && wei.Cmp(e.cfg.MaxGasPrice) > 0 {
		e.logger.Warn(ctx, "gas price exceeds max, capping", "wei", wei.String())
		wei = e.cfg.MaxGasPrice
	}

	e.priceCache.Set("current", wei, e.cfg.CacheTTL)

	gwei := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(1e9))
	gweiFloat, _ := gwei.Float64()
	e.metrics.priceGwei.Record(ctx, gweiFloat)

	return wei, nil
}

// Close releases the estimator's cache sweeper. The shared client is owned
// by the caller.
func (e *Estimator) Close() error {
	e.priceCache.Close()
	return nil
}
