// Package ledger persists execution outcomes and risk snapshots to SQLite.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/jtoledo/cycle-bot/business/execution/app"
	"github.com/jtoledo/cycle-bot/business/execution/domain"
	riskDomain "github.com/jtoledo/cycle-bot/business/risk/domain"
	"github.com/jtoledo/cycle-bot/internal/apperror"
)

const schema = `
CREATE TABLE IF NOT EXISTS executions (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    fingerprint  TEXT     NOT NULL,
    route        TEXT     NOT NULL,
    state        TEXT     NOT NULL,
    net_pnl      TEXT     NOT NULL,
    tip          TEXT     NOT NULL,
    deviated     INTEGER  NOT NULL DEFAULT 0,
    steps        TEXT     NOT NULL DEFAULT '[]',
    err          TEXT     NOT NULL DEFAULT '',
    submitted_at DATETIME NOT NULL,
    completed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS risk_snapshots (
    id                 INTEGER PRIMARY KEY AUTOINCREMENT,
    taken_at           DATETIME NOT NULL,
    trading_allowed    INTEGER  NOT NULL,
    halt_reason        TEXT     NOT NULL DEFAULT '',
    daily_pnl          TEXT     NOT NULL,
    day                DATETIME NOT NULL,
    consecutive_losses INTEGER  NOT NULL DEFAULT 0,
    in_flight          INTEGER  NOT NULL DEFAULT 0,
    exposure           TEXT     NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_exec_completed ON executions(completed_at DESC);
CREATE INDEX IF NOT EXISTS idx_exec_route     ON executions(route);
CREATE INDEX IF NOT EXISTS idx_risk_taken     ON risk_snapshots(taken_at DESC);
`

// stepRow is the JSON shape one leg takes inside the steps column.
type stepRow struct {
	Venue     string `json:"venue"`
	Route     string `json:"route"`
	Requested string `json:"requested"`
	Realized  string `json:"realized"`
	Success   bool   `json:"success"`
}

// Ensure Ledger implements the port.
var _ app.Ledger = (*Ledger)(nil)

// Ledger is an append-only store of execution attempts. Amounts are stored
// as decimal strings, never floats.
type Ledger struct {
	db *sql.DB
}

// Open creates or opens the ledger database at path and applies the schema.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply ledger schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Append writes one settled execution.
func (l *Ledger) Append(ctx context.Context, rec domain.ExecutionRecord) error {
	rows := make([]stepRow, len(rec.Steps))
	for i, s := range rec.Steps {
		rows[i] = stepRow{
			Venue:     s.Venue,
			Route:     s.Route,
			Requested: s.Requested.String(),
			Realized:  s.Realized.String(),
			Success:   s.Success,
		}
	}
	steps, err := json.Marshal(rows)
	if err != nil {
		return apperror.New(apperror.CodeLedgerWriteFailed, apperror.WithCause(err))
	}

	deviated := 0
	if rec.DeviatedFromPlan {
		deviated = 1
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO executions
			(fingerprint, route, state, net_pnl, tip, deviated, steps, err, submitted_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Fingerprint, rec.Route, string(rec.State),
		rec.NetPnL.String(), rec.Tip.String(), deviated,
		string(steps), rec.Err,
		rec.SubmittedAt.UTC(), rec.CompletedAt.UTC(),
	)
	if err != nil {
		return apperror.New(apperror.CodeLedgerWriteFailed, apperror.WithCause(err))
	}
	return nil
}

// SnapshotRisk writes one governor state snapshot.
func (l *Ledger) SnapshotRisk(ctx context.Context, state riskDomain.RiskState) error {
	allowed := 0
	if state.TradingAllowed {
		allowed = 1
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO risk_snapshots
			(taken_at, trading_allowed, halt_reason, daily_pnl, day, consecutive_losses, in_flight, exposure)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		state.TakenAt.UTC(), allowed, state.HaltReason,
		state.DailyPnL.String(), state.Day.UTC(),
		state.ConsecutiveLosses, state.InFlight, state.Exposure.String(),
	)
	if err != nil {
		return apperror.New(apperror.CodeLedgerWriteFailed, apperror.WithCause(err))
	}
	return nil
}

// Recent returns up to limit executions, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]domain.ExecutionRecord, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT fingerprint, route, state, net_pnl, tip, deviated, steps, err, submitted_at, completed_at
		FROM executions
		ORDER BY completed_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer rows.Close()

	var records []domain.ExecutionRecord
	for rows.Next() {
		var (
			rec      domain.ExecutionRecord
			state    string
			netPnL   string
			tip      string
			deviated int
			steps    string
		)
		if err := rows.Scan(&rec.Fingerprint, &rec.Route, &state, &netPnL, &tip,
			&deviated, &steps, &rec.Err, &rec.SubmittedAt, &rec.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan execution row: %w", err)
		}

		rec.State = domain.State(state)
		rec.NetPnL, err = decimal.NewFromString(netPnL)
		if err != nil {
			return nil, fmt.Errorf("corrupt net_pnl %q: %w", netPnL, err)
		}
		rec.Tip, err = decimal.NewFromString(tip)
		if err != nil {
			return nil, fmt.Errorf("corrupt tip %q: %w", tip, err)
		}
		rec.DeviatedFromPlan = deviated != 0

		var stepRows []stepRow
		if err := json.Unmarshal([]byte(steps), &stepRows); err != nil {
			return nil, fmt.Errorf("corrupt steps column: %w", err)
		}
		for _, s := range stepRows {
			requested, err := decimal.NewFromString(s.Requested)
			if err != nil {
				return nil, fmt.Errorf("corrupt step requested %q: %w", s.Requested, err)
			}
			realized, err := decimal.NewFromString(s.Realized)
			if err != nil {
				return nil, fmt.Errorf("corrupt step realized %q: %w", s.Realized, err)
			}
			rec.Steps = append(rec.Steps, domain.StepResult{
				Venue:     s.Venue,
				Route:     s.Route,
				Requested: requested,
				Realized:  realized,
				Success:   s.Success,
			})
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// PnLSince sums realized PnL over executions completed at or after cutoff.
func (l *Ledger) PnLSince(ctx context.Context, cutoff time.Time) (decimal.Decimal, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT net_pnl FROM executions WHERE completed_at >= ?`, cutoff.UTC())
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query pnl: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return decimal.Zero, err
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, fmt.Errorf("corrupt net_pnl %q: %w", raw, err)
		}
		total = total.Add(d)
	}
	return total, rows.Err()
}

// Close releases the database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}
