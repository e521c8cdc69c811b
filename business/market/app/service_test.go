package app

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jtoledo/cycle-bot/business/market/domain"
	"github.com/jtoledo/cycle-bot/internal/apperror"
)

// mockLogger implements logger.LoggerInterface for tests.
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, args ...any)              {}
func (m *mockLogger) Info(ctx context.Context, msg string, args ...any)               {}
func (m *mockLogger) Warn(ctx context.Context, msg string, args ...any)               {}
func (m *mockLogger) Error(ctx context.Context, msg string, args ...any)              {}
func (m *mockLogger) Debugc(ctx context.Context, c int, msg string, args ...any)      {}
func (m *mockLogger) Infoc(ctx context.Context, c int, msg string, args ...any)       {}
func (m *mockLogger) Warnc(ctx context.Context, c int, msg string, args ...any)       {}
func (m *mockLogger) Errorc(ctx context.Context, c int, msg string, args ...any)      {}

// fakeSource returns scripted batches or errors, one per call.
type fakeSource struct {
	name    string
	batches [][]domain.Edge
	errs    []error
	calls   int
}

func (f *fakeSource) Name() string           { return f.name }
func (f *fakeSource) RequestsPerMinute() int { return 6000 }

func (f *fakeSource) FetchEdges(ctx context.Context) ([]domain.Edge, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.batches) {
		return f.batches[i], nil
	}
	return nil, nil
}

func linearEdge(venue, in, out string, rate string) domain.Edge {
	r, _ := decimal.NewFromString(rate)
	return domain.Edge{
		Venue:     venue,
		In:        in,
		Out:       out,
		Kind:      domain.KindLinearRate,
		Rate:      r,
		Depth:     decimal.NewFromInt(1000000),
		UpdatedAt: time.Now(),
	}
}

func newTestFeed(t *testing.T, src VenueSource) *FeedService {
	t.Helper()
	svc, err := NewFeedService(domain.NewGraph(), []VenueSource{src}, NewVenueHealth(), &mockLogger{})
	if err != nil {
		t.Fatalf("NewFeedService failed: %v", err)
	}
	return svc
}

func TestFeedService_RefreshAppliesBatch(t *testing.T) {
	src := &fakeSource{
		name:    "venueA",
		batches: [][]domain.Edge{{linearEdge("venueA", "WETH", "USDC", "2000")}},
	}
	svc := newTestFeed(t, src)

	svc.refreshVenue(context.Background(), src)

	if got := svc.Graph().Snapshot().EdgeCount(); got != 1 {
		t.Fatalf("expected 1 edge applied, got %d", got)
	}

	select {
	case venue := <-svc.Updates():
		if venue != "venueA" {
			t.Errorf("update for wrong venue: %s", venue)
		}
	default:
		t.Error("expected an update notification")
	}

	if rate := svc.Health().SuccessRate("venueA"); !rate.Equal(decimal.NewFromInt(1)) {
		t.Errorf("success rate = %s, want 1", rate)
	}
}

func TestFeedService_HardFailureClearsVenueEdges(t *testing.T) {
	src := &fakeSource{
		name: "venueA",
		batches: [][]domain.Edge{
			{linearEdge("venueA", "WETH", "USDC", "2000")},
		},
		errs: []error{
			nil,
			apperror.New(apperror.CodeVenueConnectionFailed),
		},
	}
	svc := newTestFeed(t, src)
	ctx := context.Background()

	svc.refreshVenue(ctx, src)
	if got := svc.Graph().Snapshot().EdgeCount(); got != 1 {
		t.Fatalf("setup: expected 1 edge, got %d", got)
	}

	svc.refreshVenue(ctx, src)
	if got := svc.Graph().Snapshot().EdgeCount(); got != 0 {
		t.Fatalf("failed venue must contribute zero edges, got %d", got)
	}
}

func TestFeedService_MalformedKeepsPreviousBatch(t *testing.T) {
	src := &fakeSource{
		name: "venueA",
		batches: [][]domain.Edge{
			{linearEdge("venueA", "WETH", "USDC", "2000")},
		},
		errs: []error{
			nil,
			apperror.New(apperror.CodeVenueMalformedData),
		},
	}
	svc := newTestFeed(t, src)
	ctx := context.Background()

	svc.refreshVenue(ctx, src)
	svc.refreshVenue(ctx, src)

	// Malformed data is dropped; the earlier batch stays and ages out.
	if got := svc.Graph().Snapshot().EdgeCount(); got != 1 {
		t.Fatalf("expected previous batch retained, got %d edges", got)
	}

	rate := svc.Health().SuccessRate("venueA")
	want, _ := decimal.NewFromString("0.5")
	if !rate.Equal(want) {
		t.Errorf("success rate = %s, want 0.5", rate)
	}
}

func TestFeedService_StartRequiresSources(t *testing.T) {
	svc, err := NewFeedService(domain.NewGraph(), nil, NewVenueHealth(), &mockLogger{})
	if err != nil {
		t.Fatalf("NewFeedService failed: %v", err)
	}
	if err := svc.Start(context.Background()); err == nil {
		t.Fatal("expected error when no sources are enabled")
	}
}

func TestVenueHealth_SuccessRate(t *testing.T) {
	h := NewVenueHealth()

	if rate := h.SuccessRate("unknown"); !rate.Equal(decimal.NewFromInt(1)) {
		t.Errorf("unknown venue rate = %s, want 1", rate)
	}

	h.RecordOK("v")
	h.RecordOK("v")
	h.RecordError("v")
	h.RecordMalformed("v")

	want, _ := decimal.NewFromString("0.5")
	if rate := h.SuccessRate("v"); !rate.Equal(want) {
		t.Errorf("rate = %s, want 0.5", rate)
	}
}
