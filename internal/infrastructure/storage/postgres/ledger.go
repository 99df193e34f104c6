package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"farb/internal/application/port"
	"farb/internal/domain/model"
)

// Ledger is the postgres-backed position store, for deployments where
// the sqlite file is not durable enough. Same contract as the sqlite
// ledger.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

func New(dsn string) (*Ledger, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	l := &Ledger{db: db, now: time.Now}
	if err := l.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) Close() error { return l.db.Close() }

func (l *Ledger) migrate(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS positions (
  id BIGSERIAL PRIMARY KEY,
  position_id TEXT UNIQUE NOT NULL,
  token_symbol TEXT NOT NULL,
  token_address TEXT NOT NULL,
  position_type TEXT NOT NULL CHECK (position_type IN ('LONG', 'SHORT')),
  entry_price DOUBLE PRECISION NOT NULL,
  quantity DOUBLE PRECISION NOT NULL,
  hedge_quantity DOUBLE PRECISION NOT NULL,
  hedge_token_symbol TEXT NOT NULL,
  hedge_token_address TEXT NOT NULL,
  funding_rate DOUBLE PRECISION NOT NULL,
  funding_end_time BIGINT NOT NULL,
  close_time BIGINT NOT NULL,
  status TEXT NOT NULL DEFAULT 'OPEN' CHECK (status IN ('OPEN', 'CLOSED', 'CANCELLED')),
  pnl DOUBLE PRECISION NOT NULL DEFAULT 0.0,
  created_at BIGINT NOT NULL,
  updated_at BIGINT NOT NULL,
  exchange TEXT NOT NULL,
  strategy_name TEXT NOT NULL,
  notes TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status);
CREATE INDEX IF NOT EXISTS idx_positions_close_time ON positions(close_time);
CREATE INDEX IF NOT EXISTS idx_positions_token ON positions(token_symbol);

CREATE TABLE IF NOT EXISTS position_history (
  id BIGSERIAL PRIMARY KEY,
  position_id TEXT NOT NULL REFERENCES positions(position_id) ON DELETE CASCADE,
  action TEXT NOT NULL CHECK (action IN ('OPEN', 'CLOSE', 'UPDATE', 'HEDGE')),
  price DOUBLE PRECISION,
  quantity DOUBLE PRECISION,
  timestamp BIGINT NOT NULL,
  tx_hash TEXT,
  gas_used DOUBLE PRECISION,
  gas_price DOUBLE PRECISION,
  notes TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_history_position ON position_history(position_id);
`)
	return err
}

const positionCols = `position_id, token_symbol, token_address, position_type,
  entry_price, quantity, hedge_quantity, hedge_token_symbol, hedge_token_address,
  funding_rate, funding_end_time, close_time, status, pnl, created_at, updated_at,
  exchange, strategy_name, notes`

func (l *Ledger) Create(ctx context.Context, p *model.Position) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}

	now := l.now().UnixMilli()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO positions(`+positionCols+`)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`, p.ID, p.TokenSymbol, p.TokenAddress, string(p.PositionType),
		p.EntryPrice, p.Quantity, p.HedgeQuantity, p.HedgeTokenSymbol, p.HedgeTokenAddr,
		p.FundingRate, p.FundingEndTime.UnixMilli(), p.CloseTime.UnixMilli(),
		string(model.StatusOpen), 0.0, now, now,
		p.Exchange, p.StrategyName, p.Notes)
	if err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("%w: %s", model.ErrConflict, p.ID)
		}
		return "", err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO position_history(position_id, action, price, quantity, timestamp, tx_hash, notes)
		VALUES($1, $2, $3, $4, $5, $6, $7)
	`, p.ID, string(model.ActionOpen), p.EntryPrice, p.Quantity, now, "", "position opened")
	if err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return p.ID, nil
}

func (l *Ledger) ClosePosition(ctx context.Context, id string, closePrice, pnl float64, txHash, notes string) (bool, error) {
	if notes == "" {
		notes = "position closed"
	}
	return l.terminate(ctx, id, string(model.StatusClosed), closePrice, pnl, txHash, notes)
}

func (l *Ledger) CancelPosition(ctx context.Context, id string, reason string) (bool, error) {
	if reason == "" {
		reason = "position cancelled"
	}
	return l.terminate(ctx, id, string(model.StatusCancelled), 0, 0, "", reason)
}

func (l *Ledger) terminate(ctx context.Context, id, status string, closePrice, pnl float64, txHash, notes string) (bool, error) {
	now := l.now().UnixMilli()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE positions SET status = $1, pnl = $2, updated_at = $3
		WHERE position_id = $4 AND status = 'OPEN'
	`, status, pnl, now, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO position_history(position_id, action, price, quantity, timestamp, tx_hash, notes)
		VALUES($1, $2, $3, $4, $5, $6, $7)
	`, id, string(model.ActionClose), closePrice, 0.0, now, txHash, notes)
	if err != nil {
		return false, err
	}

	return true, tx.Commit()
}

func (l *Ledger) GetOpen(ctx context.Context) ([]*model.Position, error) {
	return l.queryPositions(ctx, `
		SELECT `+positionCols+` FROM positions
		WHERE status = 'OPEN'
		ORDER BY created_at DESC`)
}

func (l *Ledger) GetDueForClose(ctx context.Context, now time.Time) ([]*model.Position, error) {
	return l.queryPositions(ctx, `
		SELECT `+positionCols+` FROM positions
		WHERE status = 'OPEN' AND close_time <= $1
		ORDER BY close_time ASC`, now.UnixMilli())
}

func (l *Ledger) GetByID(ctx context.Context, id string) (*model.Position, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT `+positionCols+` FROM positions WHERE position_id = $1`, id)
	p, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", model.ErrNotFound, id)
	}
	return p, err
}

func (l *Ledger) Update(ctx context.Context, id string, u model.PartialUpdate) (bool, error) {
	if u.IsEmpty() {
		return false, nil
	}

	set := make([]string, 0, 7)
	args := make([]any, 0, 8)
	add := func(col string, v any) {
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if u.FundingRate != nil {
		add("funding_rate", *u.FundingRate)
	}
	if u.Quantity != nil {
		add("quantity", *u.Quantity)
	}
	if u.HedgeQuantity != nil {
		add("hedge_quantity", *u.HedgeQuantity)
	}
	if u.FundingEndTime != nil {
		add("funding_end_time", u.FundingEndTime.UnixMilli())
	}
	if u.CloseTime != nil {
		add("close_time", u.CloseTime.UnixMilli())
	}
	if u.Notes != nil {
		add("notes", *u.Notes)
	}

	now := l.now().UnixMilli()
	add("updated_at", now)
	args = append(args, id)

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE positions SET %s WHERE position_id = $%d`, strings.Join(set, ", "), len(args)), args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO position_history(position_id, action, timestamp, notes)
		VALUES($1, $2, $3, $4)
	`, id, string(model.ActionUpdate), now, "updated: "+strings.Join(u.Fields(), ", "))
	if err != nil {
		return false, err
	}

	return true, tx.Commit()
}

func (l *Ledger) RecordHedge(ctx context.Context, id string, price, quantity float64, txHash, notes string) (bool, error) {
	var exists int
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM positions WHERE position_id = $1`, id).Scan(&exists)
	if err != nil {
		return false, err
	}
	if exists == 0 {
		return false, nil
	}

	if notes == "" {
		notes = "hedge leg filled"
	}
	_, err = l.db.ExecContext(ctx, `
		INSERT INTO position_history(position_id, action, price, quantity, timestamp, tx_hash, notes)
		VALUES($1, $2, $3, $4, $5, $6, $7)
	`, id, string(model.ActionHedge), price, quantity, l.now().UnixMilli(), txHash, notes)
	return err == nil, err
}

func (l *Ledger) History(ctx context.Context, id string) ([]*model.HistoryEntry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, position_id, action, price, quantity, timestamp, tx_hash, gas_used, gas_price, notes
		FROM position_history
		WHERE position_id = $1
		ORDER BY timestamp DESC, id DESC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.HistoryEntry
	for rows.Next() {
		var (
			e        model.HistoryEntry
			action   string
			price    sql.NullFloat64
			quantity sql.NullFloat64
			ts       int64
			txHash   sql.NullString
			gasUsed  sql.NullFloat64
			gasPrice sql.NullFloat64
		)
		if err := rows.Scan(&e.ID, &e.PositionID, &action, &price, &quantity, &ts, &txHash, &gasUsed, &gasPrice, &e.Notes); err != nil {
			return nil, err
		}
		e.Action = model.HistoryAction(action)
		e.Timestamp = time.UnixMilli(ts)
		if price.Valid {
			e.Price = &price.Float64
		}
		if quantity.Valid {
			e.Quantity = &quantity.Float64
		}
		if txHash.Valid {
			e.TxHash = txHash.String
		}
		if gasUsed.Valid {
			e.GasUsed = &gasUsed.Float64
		}
		if gasPrice.Valid {
			e.GasPrice = &gasPrice.Float64
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (l *Ledger) Statistics(ctx context.Context) (*model.Statistics, error) {
	var (
		st    model.Statistics
		total sql.NullFloat64
		avg   sql.NullFloat64
	)
	err := l.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(CASE WHEN status = 'OPEN' THEN 1 END),
			COUNT(CASE WHEN status = 'CLOSED' THEN 1 END),
			COUNT(CASE WHEN status = 'CANCELLED' THEN 1 END),
			SUM(CASE WHEN status = 'CLOSED' THEN pnl ELSE 0 END),
			AVG(CASE WHEN status = 'CLOSED' THEN pnl ELSE NULL END)
		FROM positions
	`).Scan(&st.TotalPositions, &st.OpenPositions, &st.ClosedPositions, &st.CancelledPositions, &total, &avg)
	if err != nil {
		return nil, err
	}
	st.TotalPnL = total.Float64
	st.AvgPnL = avg.Float64

	rows, err := l.db.QueryContext(ctx, `
		SELECT token_symbol, COUNT(*), SUM(CASE WHEN status = 'CLOSED' THEN pnl ELSE 0 END)
		FROM positions
		GROUP BY token_symbol
		ORDER BY SUM(CASE WHEN status = 'CLOSED' THEN pnl ELSE 0 END) DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ts  model.TokenStats
			pnl sql.NullFloat64
		)
		if err := rows.Scan(&ts.TokenSymbol, &ts.PositionCount, &pnl); err != nil {
			return nil, err
		}
		ts.TotalPnL = pnl.Float64
		st.TokenStats = append(st.TokenStats, ts)
	}
	return &st, rows.Err()
}

func (l *Ledger) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := l.now().AddDate(0, 0, -retentionDays).UnixMilli()

	// history cascades via the foreign key
	res, err := l.db.ExecContext(ctx, `
		DELETE FROM positions WHERE status = 'CLOSED' AND updated_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (l *Ledger) queryPositions(ctx context.Context, query string, args ...any) ([]*model.Position, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(row rowScanner) (*model.Position, error) {
	var (
		p                                       model.Position
		ptype, status                           string
		fundingEnd, closeTime, created, updated int64
	)
	err := row.Scan(&p.ID, &p.TokenSymbol, &p.TokenAddress, &ptype,
		&p.EntryPrice, &p.Quantity, &p.HedgeQuantity, &p.HedgeTokenSymbol, &p.HedgeTokenAddr,
		&p.FundingRate, &fundingEnd, &closeTime, &status, &p.PnL, &created, &updated,
		&p.Exchange, &p.StrategyName, &p.Notes)
	if err != nil {
		return nil, err
	}
	p.PositionType = model.PositionType(ptype)
	p.Status = model.PositionStatus(status)
	p.FundingEndTime = time.UnixMilli(fundingEnd)
	p.CloseTime = time.UnixMilli(closeTime)
	p.CreatedAt = time.UnixMilli(created)
	p.UpdatedAt = time.UnixMilli(updated)
	return &p, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ port.PositionLedger = (*Ledger)(nil)
