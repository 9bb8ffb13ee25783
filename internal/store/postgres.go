package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/pointsmarket/engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
  username       TEXT PRIMARY KEY,
  password_hash  TEXT NOT NULL DEFAULT '',
  balance_points NUMERIC NOT NULL CHECK (balance_points >= 0),
  role           TEXT NOT NULL DEFAULT 'user',
  created_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS markets (
  id          TEXT PRIMARY KEY,
  question    TEXT NOT NULL,
  closes_at   TIMESTAMPTZ NOT NULL,
  status      TEXT NOT NULL DEFAULT 'open',
  winner      TEXT NOT NULL DEFAULT '',
  yes_reserve NUMERIC NOT NULL,
  no_reserve  NUMERIC NOT NULL,
  price_yes   NUMERIC NOT NULL,
  created_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
  market_id  TEXT NOT NULL REFERENCES markets(id) ON DELETE CASCADE,
  username   TEXT NOT NULL REFERENCES users(username),
  yes_shares NUMERIC NOT NULL DEFAULT 0,
  no_shares  NUMERIC NOT NULL DEFAULT 0,
  PRIMARY KEY (market_id, username)
);

CREATE TABLE IF NOT EXISTS trades (
  id            TEXT PRIMARY KEY,
  market_id     TEXT NOT NULL REFERENCES markets(id) ON DELETE CASCADE,
  username      TEXT NOT NULL,
  side          TEXT NOT NULL CHECK (side IN ('YES','NO')),
  spend_points  NUMERIC NOT NULL,
  filled_shares NUMERIC NOT NULL,
  price         NUMERIC NOT NULL,
  created_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS trades_market_idx ON trades (market_id, created_at);
CREATE INDEX IF NOT EXISTS trades_user_idx ON trades (username, created_at);
`

// EnsureSchema creates tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// --- Markets ---

func (s *PostgresStore) CreateMarket(ctx context.Context, m *model.Market) error {
	ct, err := s.pool.Exec(ctx,
		`INSERT INTO markets (id, question, closes_at, status, winner, yes_reserve, no_reserve, price_yes, created_at)
		 VALUES ($1, $2, $3, $4, '', $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8)
		 ON CONFLICT (id) DO NOTHING`,
		m.ID, m.Question, m.ClosesAt, string(m.Status),
		m.YesReserve.String(), m.NoReserve.String(), m.PriceYes.String(),
		m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create market %s: %w", m.ID, err)
	}
	if ct.RowsAffected() == 0 {
		return ErrMarketExists
	}
	return nil
}

const marketColumns = `id, question, closes_at, status, winner,
       yes_reserve::TEXT, no_reserve::TEXT, price_yes::TEXT, created_at`

func scanMarket(row pgx.Row) (*model.Market, error) {
	var m model.Market
	var status, winner, yesRes, noRes, priceYes string

	err := row.Scan(&m.ID, &m.Question, &m.ClosesAt, &status, &winner,
		&yesRes, &noRes, &priceYes, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	m.Status = model.Status(status)
	m.Winner = model.Side(winner)
	m.YesReserve, _ = decimal.NewFromString(yesRes)
	m.NoReserve, _ = decimal.NewFromString(noRes)
	m.PriceYes, _ = decimal.NewFromString(priceYes)
	return &m, nil
}

func (s *PostgresStore) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketColumns+` FROM markets WHERE id = $1`, id)
	return scanMarket(row)
}

func (s *PostgresStore) ListMarkets(ctx context.Context, status model.Status) ([]model.Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += ` ORDER BY closes_at ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var markets []model.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		markets = append(markets, *m)
	}
	return markets, rows.Err()
}

func (s *PostgresStore) CloseMarket(ctx context.Context, id string) error {
	ct, err := s.pool.Exec(ctx,
		`UPDATE markets SET status = 'closed' WHERE id = $1 AND status = 'open'`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	return s.transitionError(ctx, id, ErrAlreadyClosed)
}

func (s *PostgresStore) MarkSettled(ctx context.Context, id string, winner model.Side) error {
	ct, err := s.pool.Exec(ctx,
		`UPDATE markets
		 SET status = 'settled', winner = $2, yes_reserve = 0, no_reserve = 0
		 WHERE id = $1 AND status = 'closed'`,
		id, string(winner))
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	return s.transitionError(ctx, id, ErrNotClosed)
}

// transitionError maps a failed guarded UPDATE to the precise sentinel.
func (s *PostgresStore) transitionError(ctx context.Context, id string, fallback error) error {
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM markets WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if model.Status(status) == model.StatusSettled {
		return ErrAlreadySettled
	}
	return fallback
}

func (s *PostgresStore) DeleteMarket(ctx context.Context, id string) error {
	ct, err := s.pool.Exec(ctx,
		`DELETE FROM markets WHERE id = $1 AND status = 'settled'`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil // positions and trades cascade
	}

	var status string
	err = s.pool.QueryRow(ctx, `SELECT status FROM markets WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return ErrNotSettled
}

// --- Users ---

func (s *PostgresStore) CreateUser(ctx context.Context, u *model.User) error {
	ct, err := s.pool.Exec(ctx,
		`INSERT INTO users (username, password_hash, balance_points, role, created_at)
		 VALUES ($1, $2, $3::NUMERIC, $4, $5)
		 ON CONFLICT (username) DO NOTHING`,
		u.Username, u.PasswordHash, u.Balance.String(), u.Role, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("create user %s: %w", u.Username, err)
	}
	if ct.RowsAffected() == 0 {
		return ErrUserExists
	}
	return nil
}

func (s *PostgresStore) GetUser(ctx context.Context, username string) (*model.User, error) {
	var u model.User
	var balance string

	err := s.pool.QueryRow(ctx,
		`SELECT username, password_hash, balance_points::TEXT, role, created_at
		 FROM users WHERE username = $1`, username).
		Scan(&u.Username, &u.PasswordHash, &balance, &u.Role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user %s: %w", username, err)
	}
	u.Balance, _ = decimal.NewFromString(balance)
	return &u, nil
}

func (s *PostgresStore) ListUsersByBalance(ctx context.Context, limit int) ([]model.User, error) {
	query := `SELECT username, password_hash, balance_points::TEXT, role, created_at
	          FROM users ORDER BY balance_points DESC, username ASC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		var balance string
		if err := rows.Scan(&u.Username, &u.PasswordHash, &balance, &u.Role, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.Balance, _ = decimal.NewFromString(balance)
		users = append(users, u)
	}
	return users, rows.Err()
}

// --- Trade application ---

// ApplyTrade commits the trade in a single transaction. The balance debit is
// a conditional UPDATE (atomic check-and-debit, no stale-read overdraft) and
// the reserve write is guarded on status = 'open'.
func (s *PostgresStore) ApplyTrade(ctx context.Context, t *model.Trade, newYes, newNo, newPriceYes decimal.Decimal) (decimal.Decimal, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	defer tx.Rollback(ctx)

	var balStr string
	err = tx.QueryRow(ctx,
		`UPDATE users SET balance_points = balance_points - $2::NUMERIC
		 WHERE username = $1 AND balance_points >= $2::NUMERIC
		 RETURNING balance_points::TEXT`,
		t.Username, t.SpendPoints.String()).Scan(&balStr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, s.debitFailure(ctx, tx, t.Username)
		}
		return decimal.Zero, err
	}

	ct, err := tx.Exec(ctx,
		`UPDATE markets
		 SET yes_reserve = $2::NUMERIC, no_reserve = $3::NUMERIC, price_yes = $4::NUMERIC
		 WHERE id = $1 AND status = 'open'`,
		t.MarketID, newYes.String(), newNo.String(), newPriceYes.String())
	if err != nil {
		return decimal.Zero, err
	}
	if ct.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM markets WHERE id = $1)`, t.MarketID).Scan(&exists); err != nil {
			return decimal.Zero, err
		}
		if !exists {
			return decimal.Zero, ErrNotFound
		}
		return decimal.Zero, ErrMarketNotTradable
	}

	yesShares, noShares := t.FilledShares, decimal.Zero
	if t.Side == model.SideNo {
		yesShares, noShares = decimal.Zero, t.FilledShares
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO positions (market_id, username, yes_shares, no_shares)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC)
		 ON CONFLICT (market_id, username) DO UPDATE
		 SET yes_shares = positions.yes_shares + EXCLUDED.yes_shares,
		     no_shares  = positions.no_shares  + EXCLUDED.no_shares`,
		t.MarketID, t.Username, yesShares.String(), noShares.String())
	if err != nil {
		return decimal.Zero, err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO trades (id, market_id, username, side, spend_points, filled_shares, price, created_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8)`,
		t.ID, t.MarketID, t.Username, string(t.Side),
		t.SpendPoints.String(), t.FilledShares.String(), t.Price.String(),
		t.CreatedAt)
	if err != nil {
		return decimal.Zero, err
	}

	if err := tx.Commit(ctx); err != nil {
		return decimal.Zero, err
	}

	balance, _ := decimal.NewFromString(balStr)
	return balance, nil
}

// debitFailure distinguishes an unknown user from an overdraft attempt.
func (s *PostgresStore) debitFailure(ctx context.Context, tx pgx.Tx, username string) error {
	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`, username).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrInsufficientBalance
}

// --- Positions ---

func (s *PostgresStore) GetPosition(ctx context.Context, username, marketID string) (*model.Position, error) {
	var p model.Position
	var yes, no string

	err := s.pool.QueryRow(ctx,
		`SELECT market_id, username, yes_shares::TEXT, no_shares::TEXT
		 FROM positions WHERE market_id = $1 AND username = $2`,
		marketID, username).
		Scan(&p.MarketID, &p.Username, &yes, &no)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &model.Position{Username: username, MarketID: marketID}, nil
		}
		return nil, err
	}
	p.YesShares, _ = decimal.NewFromString(yes)
	p.NoShares, _ = decimal.NewFromString(no)
	return &p, nil
}

func (s *PostgresStore) ListPositionsByUser(ctx context.Context, username string) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT market_id, username, yes_shares::TEXT, no_shares::TEXT
		 FROM positions WHERE username = $1 ORDER BY market_id`, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPositions(rows)
}

func (s *PostgresStore) ListPositionsByMarket(ctx context.Context, marketID string) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT market_id, username, yes_shares::TEXT, no_shares::TEXT
		 FROM positions WHERE market_id = $1 ORDER BY username`, marketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPositions(rows)
}

func scanPositions(rows pgx.Rows) ([]model.Position, error) {
	var positions []model.Position
	for rows.Next() {
		var p model.Position
		var yes, no string
		if err := rows.Scan(&p.MarketID, &p.Username, &yes, &no); err != nil {
			return nil, err
		}
		p.YesShares, _ = decimal.NewFromString(yes)
		p.NoShares, _ = decimal.NewFromString(no)
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// PayoutPosition credits the balance and zeroes the position in one
// transaction. Safe to retry: a zeroed position pays nothing again because
// the caller recomputes the amount from stored shares.
func (s *PostgresStore) PayoutPosition(ctx context.Context, username, marketID string, amount decimal.Decimal) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if amount.IsPositive() {
		ct, err := tx.Exec(ctx,
			`UPDATE users SET balance_points = balance_points + $2::NUMERIC WHERE username = $1`,
			username, amount.String())
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return ErrNotFound
		}
	}

	_, err = tx.Exec(ctx,
		`UPDATE positions SET yes_shares = 0, no_shares = 0
		 WHERE market_id = $1 AND username = $2`,
		marketID, username)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// --- Trade ledger reads ---

const tradeColumns = `id, market_id, username, side,
       spend_points::TEXT, filled_shares::TEXT, price::TEXT, created_at`

func (s *PostgresStore) ListTradesByUser(ctx context.Context, username string) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE username = $1 ORDER BY created_at DESC`,
		username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrades(rows)
}

func (s *PostgresStore) ListTradesByMarket(ctx context.Context, marketID string) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE market_id = $1 ORDER BY created_at ASC`,
		marketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrades(rows)
}

func (s *PostgresStore) ListTrades(ctx context.Context, limit int) ([]model.Trade, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeColumns+` FROM trades ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrades(rows)
}

func scanTrades(rows pgx.Rows) ([]model.Trade, error) {
	var trades []model.Trade
	for rows.Next() {
		var t model.Trade
		var side, spend, filled, price string

		if err := rows.Scan(&t.ID, &t.MarketID, &t.Username, &side,
			&spend, &filled, &price, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Side = model.Side(side)
		t.SpendPoints, _ = decimal.NewFromString(spend)
		t.FilledShares, _ = decimal.NewFromString(filled)
		t.Price, _ = decimal.NewFromString(price)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
