package stream

import (
	"context"
	"testing"

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

func newTestStream(t *testing.T) *Source {
	t.Helper()
	src, err := NewSource(config.StreamVenueConfig{
		Name:         "stream",
		WebSocketURL: "ws://localhost:0",
		Pairs:        []string{"WETH/USDC"},
		FeeBps:       30,
	}, &mockLogger{})
	if err != nil {
		t.Fatalf("NewSource failed: %v", err)
	}
	return src
}

func TestSource_HandleMessage_UpdatesBook(t *testing.T) {
	src := newTestStream(t)
	ctx := context.Background()

	src.handleMessage(ctx, []byte(`{"base":"WETH","quote":"USDC","bid":"1999","ask":"2001","depth_base":"50","depth_quote":"100000","ts":1700000000000}`))

	src.mu.RLock()
	edges := src.edges["WETH/USDC"]
	src.mu.RUnlock()

	if len(edges) != 2 {
		t.Fatalf("expected 2 edges, got %d", len(edges))
	}
	if got := edges[0].Rate.StringFixed(0); got != "1999" {
		t.Errorf("forward rate = %s, want 1999", got)
	}
	if edges[0].UpdatedAt.UnixMilli() != 1700000000000 {
		t.Errorf("edge timestamp should come from the update, got %v", edges[0].UpdatedAt)
	}
}

func TestSource_HandleMessage_MalformedDropped(t *testing.T) {
	src := newTestStream(t)
	ctx := context.Background()

	src.handleMessage(ctx, []byte(`not json`))
	src.handleMessage(ctx, []byte(`{"base":"WETH","quote":"USDC","bid":"x","ask":"2001","depth_base":"1","depth_quote":"1"}`))
	// Crossed book.
	src.handleMessage(ctx, []byte(`{"base":"WETH","quote":"USDC","bid":"2002","ask":"2001","depth_base":"1","depth_quote":"1"}`))

	src.mu.RLock()
	defer src.mu.RUnlock()

	if len(src.edges) != 0 {
		t.Errorf("malformed updates must not create edges, got %d pairs", len(src.edges))
	}
	if src.malformed != 3 {
		t.Errorf("malformed counter = %d, want 3", src.malformed)
	}
}

func TestSource_FetchEdges_RequiresConnection(t *testing.T) {
	src := newTestStream(t)

	if _, err := src.FetchEdges(context.Background()); err == nil {
		t.Fatal("expected error while disconnected")
	}
}
