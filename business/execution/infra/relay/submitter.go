// Package relay submits trade bundles to a private MEV relay over JSON-RPC.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/jtoledo/cycle-bot/business/execution/app"
	"github.com/jtoledo/cycle-bot/business/execution/domain"
	"github.com/jtoledo/cycle-bot/internal/apperror"
	"github.com/jtoledo/cycle-bot/internal/circuitbreaker"
	"github.com/jtoledo/cycle-bot/internal/httpclient"
	"github.com/jtoledo/cycle-bot/internal/logger"
)

const (
	tracerName = "relay"
	meterName  = "relay"
)

// Ensure Submitter implements the port.
var _ app.Submitter = (*Submitter)(nil)

// rpcRequest is the eth_sendBundle-shaped envelope the relay accepts.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type bundleParams struct {
	Legs         []bundleLeg `json:"legs"`
	MaxTimestamp int64       `json:"maxTimestamp"`
	Tip          string      `json:"tip"`
}

type bundleLeg struct {
	Venue        string `json:"venue"`
	Pool         string `json:"pool,omitempty"`
	TokenIn      string `json:"tokenIn"`
	TokenOut     string `json:"tokenOut"`
	AmountIn     string `json:"amountIn"`
	MinAmountOut string `json:"minAmountOut"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type bundleResult struct {
	Included bool     `json:"included"`
	Realized []string `json:"realized"`
}

type rpcResponse struct {
	Result *bundleResult `json:"result"`
	Error  *rpcError     `json:"error"`
}

type submitterMetrics struct {
	bundlesTotal  metric.Int64Counter
	bundleErrors  metric.Int64Counter
	submitLatency metric.Float64Histogram
}

// Config holds relay settings.
type Config struct {
	URL            string
	RequestTimeout time.Duration
}

// Submitter lands whole plans atomically through the relay. The relay
// answers a submission only after the target block settles, so a response
// carries the final inclusion outcome.
type Submitter struct {
	cfg    Config
	client httpclient.Client
	logger logger.LoggerInterface
	cb     *circuitbreaker.CircuitBreaker[*rpcResponse]
	nextID atomic.Uint64

	tracer  trace.Tracer
	metrics *submitterMetrics
}

// NewSubmitter creates the relay adapter.
func NewSubmitter(cfg Config, log logger.LoggerInterface) (*Submitter, error) {
	client, err := httpclient.NewInstrumentedClient(
		httpclient.WithProviderName("relay"),
		httpclient.WithBaseURL(cfg.URL),
		httpclient.WithRequestTimeout(cfg.RequestTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http client: %w", err)
	}

	s := &Submitter{
		cfg:    cfg,
		client: client,
		logger: log,
		cb:     circuitbreaker.New[*rpcResponse](circuitbreaker.DefaultConfig("relay")),
		tracer: otel.Tracer(tracerName),
	}

	if err := s.initMetrics(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Submitter) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	s.metrics = &submitterMetrics{}

	s.metrics.bundlesTotal, err = meter.Int64Counter(
		"relay_bundles_total",
		metric.WithDescription("Total bundles submitted to the relay"),
	)
	if err != nil {
		return err
	}

	s.metrics.bundleErrors, err = meter.Int64Counter(
		"relay_bundle_errors_total",
		metric.WithDescription("Total failed bundle submissions"),
	)
	if err != nil {
		return err
	}

	s.metrics.submitLatency, err = meter.Float64Histogram(
		"relay_submit_latency_ms",
		metric.WithDescription("Bundle submission round-trip latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Name returns the submitter identifier.
func (s *Submitter) Name() string {
	return "relay"
}

// SupportsBundles reports atomic submission capability.
func (s *Submitter) SupportsBundles() bool {
	return true
}

// SubmitBundle posts the plan and waits for the relay's inclusion verdict.
// A timed-out request returns CodeChannelTimeout: the bundle may still land.
func (s *Submitter) SubmitBundle(ctx context.Context, plan domain.TradePlan) (*app.BundleReceipt, error) {
	ctx, span := s.tracer.Start(ctx, "relay.submit_bundle",
		trace.WithAttributes(
			attribute.String("route", plan.Opportunity.Cycle.Route()),
			attribute.Int("legs", len(plan.Steps)),
		),
	)
	defer span.End()

	start := time.Now()
	s.metrics.bundlesTotal.Add(ctx, 1)

	legs := make([]bundleLeg, len(plan.Steps))
	for i, step := range plan.Steps {
		pool := ""
		if step.Edge.Pool != (common.Address{}) {
			pool = step.Edge.Pool.Hex()
		}
		legs[i] = bundleLeg{
			Venue:        step.Edge.Venue,
			Pool:         pool,
			TokenIn:      step.Edge.In,
			TokenOut:     step.Edge.Out,
			AmountIn:     step.AmountIn.String(),
			MinAmountOut: step.MinAmountOut.String(),
		}
	}

	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      s.nextID.Add(1),
		Method:  "eth_sendBundle",
		Params: []any{bundleParams{
			Legs:         legs,
			MaxTimestamp: plan.Opportunity.ExpiresAt.Unix(),
			Tip:          plan.Tip.String(),
		}},
	}

	rpcResp, err := s.cb.Execute(func() (*rpcResponse, error) {
		var result rpcResponse
		resp, err := s.client.NewRequest().
			SetBody(req).
			SetResult(&result).
			Post(ctx, "/")
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, fmt.Errorf("relay returned status %d", resp.StatusCode)
		}
		return &result, nil
	})

	s.metrics.submitLatency.Record(ctx, float64(time.Since(start).Milliseconds()))

	if err != nil {
		s.metrics.bundleErrors.Add(ctx, 1)
		span.RecordError(err)

		// A timeout after the request left the process means the outcome is
		// unknown, not failed.
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			span.SetStatus(codes.Error, "channel timeout")
			return nil, apperror.New(apperror.CodeChannelTimeout,
				apperror.WithCause(err),
				apperror.WithContext("relay did not answer in time"))
		}

		span.SetStatus(codes.Error, "submission failed")
		return nil, apperror.New(apperror.CodeSubmissionFailed,
			apperror.WithCause(err),
			apperror.WithContext("bundle submission failed"))
	}

	if rpcResp.Error != nil {
		s.metrics.bundleErrors.Add(ctx, 1)
		span.SetStatus(codes.Error, "rpc error")
		return nil, apperror.New(apperror.CodeSubmissionFailed,
			apperror.WithContext(fmt.Sprintf("relay error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)))
	}
	if rpcResp.Result == nil {
		s.metrics.bundleErrors.Add(ctx, 1)
		span.SetStatus(codes.Error, "empty result")
		return nil, apperror.New(apperror.CodeSubmissionFailed,
			apperror.WithContext("relay returned no result"))
	}

	realized := make([]decimal.Decimal, 0, len(rpcResp.Result.Realized))
	for i, raw := range rpcResp.Result.Realized {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, apperror.New(apperror.CodeSubmissionFailed,
				apperror.WithCause(err),
				apperror.WithContext(fmt.Sprintf("unparseable realized amount for leg %d", i+1)))
		}
		realized = append(realized, d)
	}

	span.SetAttributes(attribute.Bool("included", rpcResp.Result.Included))
	span.SetStatus(codes.Ok, "submitted")

	s.logger.Info(ctx, "bundle settled",
		"route", plan.Opportunity.Cycle.Route(),
		"included", rpcResp.Result.Included,
	)

	return &app.BundleReceipt{
		Included: rpcResp.Result.Included,
		Realized: realized,
	}, nil
}

// SubmitStep is unsupported: the relay only takes whole bundles.
func (s *Submitter) SubmitStep(ctx context.Context, step domain.PlannedStep) (app.StepReceipt, error) {
	return app.StepReceipt{}, apperror.New(apperror.CodeSubmissionFailed,
		apperror.WithContext("relay does not accept single legs"))
}
