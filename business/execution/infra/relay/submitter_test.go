package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	discoveryDomain "github.com/jtoledo/cycle-bot/business/discovery/domain"
	"github.com/jtoledo/cycle-bot/business/execution/domain"
	marketDomain "github.com/jtoledo/cycle-bot/business/market/domain"
	"github.com/jtoledo/cycle-bot/internal/apperror"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, args ...any)         {}
func (m *mockLogger) Info(ctx context.Context, msg string, args ...any)          {}
func (m *mockLogger) Warn(ctx context.Context, msg string, args ...any)          {}
func (m *mockLogger) Error(ctx context.Context, msg string, args ...any)         {}
func (m *mockLogger) Debugc(ctx context.Context, c int, msg string, args ...any) {}
func (m *mockLogger) Infoc(ctx context.Context, c int, msg string, args ...any)  {}
func (m *mockLogger) Warnc(ctx context.Context, c int, msg string, args ...any)  {}
func (m *mockLogger) Errorc(ctx context.Context, c int, msg string, args ...any) {}

func testPlan(t *testing.T) domain.TradePlan {
	t.Helper()
	edges := []marketDomain.Edge{
		{
			Venue: "venueA", In: "WETH", Out: "USDC",
			Kind: marketDomain.KindLinearRate,
			Rate: decimal.NewFromInt(2000), Depth: decimal.NewFromInt(1000000),
			UpdatedAt: time.Now(),
		},
		{
			Venue: "venueB", In: "USDC", Out: "WETH",
			Kind: marketDomain.KindLinearRate,
			Rate: decimal.RequireFromString("0.000525"), Depth: decimal.NewFromInt(1000000),
			UpdatedAt: time.Now(),
		},
	}
	cycle, err := discoveryDomain.Simulate("WETH", edges, decimal.NewFromInt(1), time.Now())
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}
	opp := discoveryDomain.ValidatedOpportunity{
		Cycle:           cycle,
		GrossProfit:     decimal.RequireFromString("0.05"),
		SlippageReserve: decimal.RequireFromString("0.001"),
		NetProfit:       decimal.RequireFromString("0.049"),
		ValidatedAt:     time.Now(),
		ExpiresAt:       time.Now().Add(2 * time.Second),
	}
	return domain.NewTradePlan(opp, decimal.RequireFromString("0.001"))
}

func newTestSubmitter(t *testing.T, url string, timeout time.Duration) *Submitter {
	t.Helper()
	s, err := NewSubmitter(Config{URL: url, RequestTimeout: timeout}, &mockLogger{})
	if err != nil {
		t.Fatalf("NewSubmitter failed: %v", err)
	}
	return s
}

func TestSubmitter_BundleIncluded(t *testing.T) {
	var got rpcRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"included":true,"realized":["2000","1.05"]}}`))
	}))
	defer server.Close()

	s := newTestSubmitter(t, server.URL, 5*time.Second)
	plan := testPlan(t)

	receipt, err := s.SubmitBundle(context.Background(), plan)
	if err != nil {
		t.Fatalf("SubmitBundle failed: %v", err)
	}
	if !receipt.Included {
		t.Error("expected bundle to be included")
	}
	if len(receipt.Realized) != 2 {
		t.Fatalf("expected 2 realized amounts, got %d", len(receipt.Realized))
	}
	if got := receipt.Realized[1].String(); got != "1.05" {
		t.Errorf("final realized = %s, want 1.05", got)
	}

	if got.Method != "eth_sendBundle" {
		t.Errorf("method = %s, want eth_sendBundle", got.Method)
	}
	raw, _ := json.Marshal(got.Params[0])
	var params bundleParams
	if err := json.Unmarshal(raw, &params); err != nil {
		t.Fatalf("failed to decode params: %v", err)
	}
	if len(params.Legs) != 2 {
		t.Fatalf("expected 2 legs, got %d", len(params.Legs))
	}
	if params.Legs[0].Venue != "venueA" || params.Legs[0].TokenIn != "WETH" {
		t.Errorf("unexpected first leg: %+v", params.Legs[0])
	}
	if params.Tip != "0.001" {
		t.Errorf("tip = %s, want 0.001", params.Tip)
	}
}

func TestSubmitter_BundleNotIncluded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"included":false,"realized":[]}}`))
	}))
	defer server.Close()

	s := newTestSubmitter(t, server.URL, 5*time.Second)

	receipt, err := s.SubmitBundle(context.Background(), testPlan(t))
	if err != nil {
		t.Fatalf("SubmitBundle failed: %v", err)
	}
	if receipt.Included {
		t.Error("expected bundle not to be included")
	}
}

func TestSubmitter_RPCError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"bundle rejected"}}`))
	}))
	defer server.Close()

	s := newTestSubmitter(t, server.URL, 5*time.Second)

	_, err := s.SubmitBundle(context.Background(), testPlan(t))
	if err == nil {
		t.Fatal("expected error")
	}
	if code := apperror.GetCode(err); code != apperror.CodeSubmissionFailed {
		t.Errorf("error code = %s, want %s", code, apperror.CodeSubmissionFailed)
	}
}

func TestSubmitter_ServerErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	s := newTestSubmitter(t, server.URL, 5*time.Second)

	_, err := s.SubmitBundle(context.Background(), testPlan(t))
	if err == nil {
		t.Fatal("expected error")
	}
	if code := apperror.GetCode(err); code != apperror.CodeSubmissionFailed {
		t.Errorf("error code = %s, want %s", code, apperror.CodeSubmissionFailed)
	}
}

func TestSubmitter_TimeoutIsChannelTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	s := newTestSubmitter(t, server.URL, 5*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := s.SubmitBundle(ctx, testPlan(t))
	if err == nil {
		t.Fatal("expected error")
	}
	if code := apperror.GetCode(err); code != apperror.CodeChannelTimeout {
		t.Errorf("error code = %s, want %s", code, apperror.CodeChannelTimeout)
	}
}

func TestSubmitter_SubmitStepUnsupported(t *testing.T) {
	s := newTestSubmitter(t, "http://localhost:0", time.Second)

	if s.SupportsBundles() != true {
		t.Error("relay must support bundles")
	}
	if _, err := s.SubmitStep(context.Background(), domain.PlannedStep{}); err == nil {
		t.Error("expected SubmitStep to fail")
	}
}
