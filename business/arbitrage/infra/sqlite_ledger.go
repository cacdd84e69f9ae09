package infra

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/fd1az/triarb-bot/business/arbitrage/domain"
	exchangeDomain "github.com/fd1az/triarb-bot/business/exchange/domain"
)

// Amounts are stored as TEXT so no precision is lost.
const schema = `
CREATE TABLE IF NOT EXISTS evaluations (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    cycle_id        TEXT     NOT NULL,
    direction       TEXT     NOT NULL,
    evaluated_at    DATETIME NOT NULL,
    profitable      INTEGER  NOT NULL DEFAULT 0,
    no_opportunity  TEXT     NOT NULL DEFAULT '',
    investment      TEXT     NOT NULL DEFAULT '0',
    invested        TEXT     NOT NULL DEFAULT '0',
    expected_return TEXT     NOT NULL DEFAULT '0',
    net_profit_pct  TEXT     NOT NULL DEFAULT '0',
    legs            TEXT     NOT NULL DEFAULT '[]',
    refinements     INTEGER  NOT NULL DEFAULT 0,
    duration_us     INTEGER  NOT NULL DEFAULT 0,
    executed        INTEGER  NOT NULL DEFAULT 0,
    operation_id    TEXT     NOT NULL DEFAULT '',
    executed_return TEXT     NOT NULL DEFAULT '0'
);

CREATE TABLE IF NOT EXISTS operations (
    id          TEXT PRIMARY KEY,
    cycle_id    TEXT     NOT NULL,
    direction   TEXT     NOT NULL,
    started_at  DATETIME NOT NULL,
    duration_ms INTEGER  NOT NULL DEFAULT 0,
    completed   INTEGER  NOT NULL DEFAULT 0,
    invested    TEXT     NOT NULL,
    returned    TEXT     NOT NULL,
    pnl         TEXT     NOT NULL,
    legs        TEXT     NOT NULL,
    unwinds     TEXT     NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS leg_events (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    operation_id TEXT     NOT NULL,
    cycle_id     TEXT     NOT NULL,
    leg_index    INTEGER  NOT NULL,
    order_id     TEXT     NOT NULL DEFAULT '',
    symbol       TEXT     NOT NULL,
    side         TEXT     NOT NULL,
    state        TEXT     NOT NULL,
    status       TEXT     NOT NULL DEFAULT '',
    price        TEXT     NOT NULL DEFAULT '0',
    amount       TEXT     NOT NULL DEFAULT '0',
    filled       TEXT     NOT NULL DEFAULT '0',
    cost         TEXT     NOT NULL DEFAULT '0',
    fee          TEXT     NOT NULL DEFAULT '0',
    fee_asset    TEXT     NOT NULL DEFAULT '',
    average      TEXT     NOT NULL DEFAULT '0',
    error        TEXT     NOT NULL DEFAULT '',
    recorded_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_eval_cycle    ON evaluations(cycle_id, evaluated_at DESC);
CREATE INDEX IF NOT EXISTS idx_ops_started   ON operations(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_legs_op       ON leg_events(operation_id, id);
`

// SQLiteLedger is an append-only execution ledger on SQLite (pure Go).
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLiteLedger opens or creates the database at path.
func NewSQLiteLedger(path string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ledger.NewSQLiteLedger: open %q: %w", path, err)
	}
	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger.NewSQLiteLedger: apply schema: %w", err)
	}
	return &SQLiteLedger{db: db}, nil
}

// Close closes the database.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

// Ping checks the database is usable.
func (l *SQLiteLedger) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

// AppendLeg records one leg transition.
func (l *SQLiteLedger) AppendLeg(ctx context.Context, operationID, cycleID string, leg domain.LegResult) error {
	at := leg.UpdatedAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO leg_events (operation_id, cycle_id, leg_index, order_id, symbol, side, state, status,
			price, amount, filled, cost, fee, fee_asset, average, error, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		operationID, cycleID, leg.Index, leg.OrderID, leg.Symbol.String(), string(leg.Side),
		string(leg.State), string(leg.Status),
		leg.Price.String(), leg.Amount.String(), leg.Filled.String(), leg.Cost.String(),
		leg.Fee.String(), leg.FeeAsset, leg.Average.String(), leg.Error, at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("ledger.AppendLeg: insert: %w", err)
	}
	return nil
}

// SaveOperation writes the final operation record. A record is written once;
// saving the same id again fails.
func (l *SQLiteLedger) SaveOperation(ctx context.Context, op domain.OperationRecord) error {
	legs, err := json.Marshal(op.Legs)
	if err != nil {
		return fmt.Errorf("ledger.SaveOperation: encode legs: %w", err)
	}
	unwinds := []byte("[]")
	if len(op.Unwinds) > 0 {
		if unwinds, err = json.Marshal(op.Unwinds); err != nil {
			return fmt.Errorf("ledger.SaveOperation: encode unwinds: %w", err)
		}
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO operations (id, cycle_id, direction, started_at, duration_ms, completed,
			invested, returned, pnl, legs, unwinds)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		op.ID, op.CycleID, string(op.Direction), op.StartedAt.UTC(), op.Duration.Milliseconds(),
		boolInt(op.Completed()), op.Invested.String(), op.Returned.String(), op.PnL.String(),
		string(legs), string(unwinds),
	)
	if err != nil {
		return fmt.Errorf("ledger.SaveOperation: insert: %w", err)
	}
	return nil
}

// evaluatedLeg is the stored shape of one leg quote.
type evaluatedLeg struct {
	Symbol string          `json:"symbol"`
	Side   string          `json:"side"`
	Price  decimal.Decimal `json:"price"`
	Amount decimal.Decimal `json:"amount"`
	Cost   decimal.Decimal `json:"cost"`
}

// SaveEvaluation writes one evaluation, with or without opportunity.
func (l *SQLiteLedger) SaveEvaluation(ctx context.Context, rec domain.EvaluationRecord) error {
	var (
		profitable  bool
		investment  = decimal.Zero
		invested    = decimal.Zero
		expected    = decimal.Zero
		pct         = decimal.Zero
		legs        = []evaluatedLeg{}
		refinements int
		duration    time.Duration
	)
	if ev := rec.Evaluation; ev != nil {
		profitable = ev.IsProfitable()
		investment = ev.Investment
		invested = ev.Invested()
		expected = ev.Return()
		pct = ev.Profit.NetProfitPct
		refinements = ev.Refinements
		duration = ev.Duration
		for _, q := range ev.Legs {
			legs = append(legs, evaluatedLeg{
				Symbol: q.Symbol.String(),
				Side:   string(q.Side),
				Price:  q.Price,
				Amount: q.Amount,
				Cost:   q.Cost,
			})
		}
	}
	encoded, err := json.Marshal(legs)
	if err != nil {
		return fmt.Errorf("ledger.SaveEvaluation: encode legs: %w", err)
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO evaluations (cycle_id, direction, evaluated_at, profitable, no_opportunity,
			investment, invested, expected_return, net_profit_pct, legs, refinements, duration_us,
			executed, operation_id, executed_return)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.CycleID, string(rec.Direction), rec.Timestamp.UTC(), boolInt(profitable), rec.NoOpportunity,
		investment.String(), invested.String(), expected.String(), pct.String(), string(encoded),
		refinements, duration.Microseconds(),
		boolInt(rec.Executed), rec.OperationID, rec.ExecutedReturn.String(),
	)
	if err != nil {
		return fmt.Errorf("ledger.SaveEvaluation: insert: %w", err)
	}
	return nil
}

// RecentOperations returns up to limit operations, newest first.
func (l *SQLiteLedger) RecentOperations(ctx context.Context, limit int) ([]domain.OperationRecord, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, cycle_id, direction, started_at, duration_ms, invested, returned, pnl, legs, unwinds
		FROM operations ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger.RecentOperations: query: %w", err)
	}
	defer rows.Close()

	var out []domain.OperationRecord
	for rows.Next() {
		var (
			op                      domain.OperationRecord
			direction               string
			durationMS              int64
			invested, returned, pnl string
			legs, unwinds           string
		)
		if err := rows.Scan(&op.ID, &op.CycleID, &direction, &op.StartedAt, &durationMS,
			&invested, &returned, &pnl, &legs, &unwinds); err != nil {
			return nil, fmt.Errorf("ledger.RecentOperations: scan: %w", err)
		}
		op.Direction = domain.Direction(direction)
		op.Duration = time.Duration(durationMS) * time.Millisecond
		if op.Invested, err = decimal.NewFromString(invested); err != nil {
			return nil, fmt.Errorf("ledger.RecentOperations: invested: %w", err)
		}
		if op.Returned, err = decimal.NewFromString(returned); err != nil {
			return nil, fmt.Errorf("ledger.RecentOperations: returned: %w", err)
		}
		if op.PnL, err = decimal.NewFromString(pnl); err != nil {
			return nil, fmt.Errorf("ledger.RecentOperations: pnl: %w", err)
		}
		if err := json.Unmarshal([]byte(legs), &op.Legs); err != nil {
			return nil, fmt.Errorf("ledger.RecentOperations: decode legs: %w", err)
		}
		if err := json.Unmarshal([]byte(unwinds), &op.Unwinds); err != nil {
			return nil, fmt.Errorf("ledger.RecentOperations: decode unwinds: %w", err)
		}
		out = append(out, op)
	}
	return out, rows.Err()
}

// LegEvents returns the recorded transitions of an operation in order.
func (l *SQLiteLedger) LegEvents(ctx context.Context, operationID string) ([]domain.LegResult, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT leg_index, order_id, symbol, side, state, status, price, amount, filled, cost,
			fee, fee_asset, average, error, recorded_at
		FROM leg_events WHERE operation_id = ? ORDER BY id`, operationID)
	if err != nil {
		return nil, fmt.Errorf("ledger.LegEvents: query: %w", err)
	}
	defer rows.Close()

	var out []domain.LegResult
	for rows.Next() {
		var (
			leg                                       domain.LegResult
			symbol, side, state, status               string
			price, amount, filled, cost, fee, average string
		)
		if err := rows.Scan(&leg.Index, &leg.OrderID, &symbol, &side, &state, &status,
			&price, &amount, &filled, &cost, &fee, &leg.FeeAsset, &average, &leg.Error, &leg.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ledger.LegEvents: scan: %w", err)
		}
		if leg.Symbol, err = exchangeDomain.ParseSymbol(symbol); err != nil {
			return nil, fmt.Errorf("ledger.LegEvents: symbol: %w", err)
		}
		leg.Side = exchangeDomain.Side(side)
		leg.State = domain.LegState(state)
		leg.Status = exchangeDomain.OrderStatus(status)
		for _, f := range []struct {
			dst *decimal.Decimal
			src string
		}{
			{&leg.Price, price}, {&leg.Amount, amount}, {&leg.Filled, filled},
			{&leg.Cost, cost}, {&leg.Fee, fee}, {&leg.Average, average},
		} {
			if *f.dst, err = decimal.NewFromString(f.src); err != nil {
				return nil, fmt.Errorf("ledger.LegEvents: decimal %q: %w", f.src, err)
			}
		}
		out = append(out, leg)
	}
	return out, rows.Err()
}

// CountEvaluations returns the number of stored evaluations and how many
// of them were profitable.
func (l *SQLiteLedger) CountEvaluations(ctx context.Context) (total, profitable int, err error) {
	err = l.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(profitable), 0) FROM evaluations`).Scan(&total, &profitable)
	if err != nil {
		return 0, 0, fmt.Errorf("ledger.CountEvaluations: %w", err)
	}
	return total, profitable, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
