package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jtoledo/cycle-bot/business/execution/domain"
	riskDomain "github.com/jtoledo/cycle-bot/business/risk/domain"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func testRecord(fingerprint string, state domain.State, pnl string, completed time.Time) domain.ExecutionRecord {
	return domain.ExecutionRecord{
		Fingerprint: fingerprint,
		Route:       "WETH>USDC>WETH",
		State:       state,
		NetPnL:      decimal.RequireFromString(pnl),
		Tip:         decimal.RequireFromString("0.001"),
		Steps: []domain.StepResult{
			{
				Venue:     "univ2",
				Route:     "WETH>USDC",
				Requested: decimal.RequireFromString("2000"),
				Realized:  decimal.RequireFromString("1998.5"),
				Success:   true,
			},
		},
		SubmittedAt: completed.Add(-2 * time.Second),
		CompletedAt: completed,
	}
}

func TestLedger_AppendAndRecent(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	first := testRecord("fp-1", domain.StateConfirmed, "0.025", now.Add(-time.Minute))
	second := testRecord("fp-2", domain.StateRejected, "0", now)
	second.Err = "bundle not included"

	if err := l.Append(ctx, first); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := l.Append(ctx, second); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	records, err := l.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	// Newest first.
	if records[0].Fingerprint != "fp-2" {
		t.Errorf("first record = %s, want fp-2", records[0].Fingerprint)
	}
	if records[0].Err != "bundle not included" {
		t.Errorf("err = %q, want preserved error text", records[0].Err)
	}

	got := records[1]
	if got.State != domain.StateConfirmed {
		t.Errorf("state = %s, want %s", got.State, domain.StateConfirmed)
	}
	if !got.NetPnL.Equal(decimal.RequireFromString("0.025")) {
		t.Errorf("net pnl = %s, want 0.025", got.NetPnL)
	}
	if len(got.Steps) != 1 {
		t.Fatalf("expected 1 step, got %d", len(got.Steps))
	}
	if !got.Steps[0].Realized.Equal(decimal.RequireFromString("1998.5")) {
		t.Errorf("realized = %s, want 1998.5", got.Steps[0].Realized)
	}
}

func TestLedger_RecentLimit(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		rec := testRecord("fp", domain.StateConfirmed, "0.01", now.Add(time.Duration(i)*time.Second))
		if err := l.Append(ctx, rec); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	records, err := l.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(records) != 3 {
		t.Errorf("expected 3 records, got %d", len(records))
	}
}

func TestLedger_PnLSince(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	old := testRecord("fp-old", domain.StateConfirmed, "5", now.Add(-48*time.Hour))
	win := testRecord("fp-win", domain.StateConfirmed, "0.03", now.Add(-time.Hour))
	loss := testRecord("fp-loss", domain.StatePartiallyFailed, "-1", now)

	for _, rec := range []domain.ExecutionRecord{old, win, loss} {
		if err := l.Append(ctx, rec); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	total, err := l.PnLSince(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PnLSince failed: %v", err)
	}
	if !total.Equal(decimal.RequireFromString("-0.97")) {
		t.Errorf("pnl = %s, want -0.97", total)
	}
}

func TestLedger_RecentCorruptStepAmount(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	now := time.Now().UTC()
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO executions
			(fingerprint, route, state, net_pnl, tip, deviated, steps, err, submitted_at, completed_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, '', ?, ?)`,
		"fp-bad", "WETH>USDC>WETH", string(domain.StateConfirmed), "0.01", "0.001",
		`[{"venue":"univ2","route":"WETH>USDC","requested":"not-a-number","realized":"1998.5","success":true}]`,
		now.Add(-time.Second), now,
	)
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	if _, err := l.Recent(ctx, 10); err == nil {
		t.Fatal("corrupt step amount must surface as an error, not a panic")
	}
}

func TestLedger_SnapshotRisk(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	state := riskDomain.RiskState{
		TradingAllowed:    false,
		HaltReason:        "daily_loss_limit",
		DailyPnL:          decimal.RequireFromString("-1.5"),
		Day:               time.Now().UTC().Truncate(24 * time.Hour),
		ConsecutiveLosses: 2,
		InFlight:          1,
		Exposure:          decimal.RequireFromString("0.5"),
		TakenAt:           time.Now().UTC(),
	}
	if err := l.SnapshotRisk(ctx, state); err != nil {
		t.Fatalf("SnapshotRisk failed: %v", err)
	}

	var count int
	if err := l.db.QueryRow(`SELECT COUNT(*) FROM risk_snapshots`).Scan(&count); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 snapshot, got %d", count)
	}
}
