package aggrest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jtoledo/cycle-bot/business/market/domain"
	"github.com/jtoledo/cycle-bot/internal/apperror"
	"github.com/jtoledo/cycle-bot/internal/config"
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

func newTestSource(t *testing.T, serverURL string) *Source {
	t.Helper()
	src, err := NewSource(config.AggRestVenueConfig{
		Name:              "aggrest",
		BaseURL:           serverURL,
		FeeBps:            25,
		RequestsPerMinute: 60,
		RequestTimeout:    2 * time.Second,
	}, &mockLogger{})
	if err != nil {
		t.Fatalf("NewSource failed: %v", err)
	}
	return src
}

func TestSource_FetchEdges(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/markets" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"markets":[
			{"base":"WETH","quote":"USDC","bid":"1999.5","ask":"2000.5","depth_base":"120","depth_quote":"240000"}
		]}`))
	}))
	defer server.Close()

	src := newTestSource(t, server.URL)

	edges, err := src.FetchEdges(context.Background())
	if err != nil {
		t.Fatalf("FetchEdges failed: %v", err)
	}
	if len(edges) != 2 {
		t.Fatalf("expected 2 edges, got %d", len(edges))
	}

	fwd := edges[0]
	if fwd.In != "WETH" || fwd.Out != "USDC" {
		t.Errorf("forward edge direction wrong: %s -> %s", fwd.In, fwd.Out)
	}
	if fwd.Kind != domain.KindLinearRate {
		t.Error("aggregator edges must be linear-rate")
	}
	if got := fwd.Rate.StringFixed(1); got != "1999.5" {
		t.Errorf("forward rate = %s, want 1999.5", got)
	}

	rev := edges[1]
	if rev.In != "USDC" || rev.Out != "WETH" {
		t.Errorf("reverse edge direction wrong: %s -> %s", rev.In, rev.Out)
	}
	// 1/2000.5 = 0.000499875...
	if got := rev.Rate.StringFixed(9); got != "0.000499875" {
		t.Errorf("reverse rate = %s, want 0.000499875", got)
	}
}

func TestSource_FetchEdges_Malformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"markets":[
			{"base":"WETH","quote":"USDC","bid":"not-a-number","ask":"2000.5","depth_base":"1","depth_quote":"1"}
		]}`))
	}))
	defer server.Close()

	src := newTestSource(t, server.URL)

	_, err := src.FetchEdges(context.Background())
	if err == nil {
		t.Fatal("expected error for malformed bid")
	}
	if apperror.GetCode(err) != apperror.CodeVenueMalformedData {
		t.Errorf("code = %s, want %s", apperror.GetCode(err), apperror.CodeVenueMalformedData)
	}
}

func TestSource_FetchEdges_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	src := newTestSource(t, server.URL)

	_, err := src.FetchEdges(context.Background())
	if err == nil {
		t.Fatal("expected rate limit error")
	}
	if apperror.GetCode(err) != apperror.CodeVenueRateLimited {
		t.Errorf("code = %s, want %s", apperror.GetCode(err), apperror.CodeVenueRateLimited)
	}
}

func TestSource_FetchEdges_CrossedQuoteRejected(t *testing.T) {
	// bid > ask is a broken book; the whole batch is dropped as malformed.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"markets":[
			{"base":"WETH","quote":"USDC","bid":"2001","ask":"2000","depth_base":"1","depth_quote":"1"}
		]}`))
	}))
	defer server.Close()

	src := newTestSource(t, server.URL)

	_, err := src.FetchEdges(context.Background())
	if apperror.GetCode(err) != apperror.CodeVenueMalformedData {
		t.Fatalf("expected malformed data error, got %v", err)
	}
}
