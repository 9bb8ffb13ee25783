// Package store defines the persistence interface for the market engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/pointsmarket/engine/internal/model"
)

var (
	// ErrNotFound is returned for an unknown market or user.
	ErrNotFound = errors.New("store: not found")

	// ErrMarketExists is returned when creating a market with a taken ID.
	ErrMarketExists = errors.New("store: market already exists")

	// ErrUserExists is returned when creating a user with a taken username.
	ErrUserExists = errors.New("store: username already exists")

	// ErrInsufficientBalance is returned when a debit would overdraw the
	// user's balance. The check-and-debit is a single atomic step.
	ErrInsufficientBalance = errors.New("store: insufficient balance")

	// ErrMarketNotTradable is returned when a trade targets a market that
	// is closed or settled.
	ErrMarketNotTradable = errors.New("store: market is not open for trading")

	// ErrAlreadyClosed is returned when closing a market twice.
	ErrAlreadyClosed = errors.New("store: market already closed")

	// ErrAlreadySettled is returned for any transition out of settled.
	ErrAlreadySettled = errors.New("store: market already settled")

	// ErrNotClosed is returned when settling a market that is still open.
	ErrNotClosed = errors.New("store: market must be closed before settlement")

	// ErrNotSettled is returned when deleting a market before settlement.
	ErrNotSettled = errors.New("store: market must be settled before deletion")
)

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer. Reads return copies — callers
// never observe a reserve update that is still mid-transaction.
type Store interface {
	// --- Market lifecycle ---

	// CreateMarket persists a new market in the open state.
	CreateMarket(ctx context.Context, m *model.Market) error

	// GetMarket retrieves a market snapshot by ID.
	GetMarket(ctx context.Context, id string) (*model.Market, error)

	// ListMarkets returns markets, optionally filtered by status ("" = all).
	ListMarkets(ctx context.Context, status model.Status) ([]model.Market, error)

	// CloseMarket moves open → closed. Guarded: one-way, never revisited.
	CloseMarket(ctx context.Context, id string) error

	// MarkSettled moves closed → settled, records the winner, and clears
	// the reserves. Guarded against open (ErrNotClosed) and double
	// settlement (ErrAlreadySettled).
	MarkSettled(ctx context.Context, id string, winner model.Side) error

	// DeleteMarket removes a settled market and all dependent positions
	// and trades. Fails with ErrNotSettled before settlement.
	DeleteMarket(ctx context.Context, id string) error

	// --- Users ---

	// CreateUser persists a new user with its starting balance.
	CreateUser(ctx context.Context, u *model.User) error

	// GetUser retrieves a user by username.
	GetUser(ctx context.Context, username string) (*model.User, error)

	// ListUsersByBalance returns users ordered by balance descending.
	// limit <= 0 means no limit.
	ListUsersByBalance(ctx context.Context, limit int) ([]model.User, error)

	// --- Trade application (atomic unit) ---

	// ApplyTrade atomically debits the spender, writes the new reserves
	// and price to the market, credits the filled shares to the user's
	// position, and appends the trade record. Either all four sub-effects
	// land or none do. Returns the user's new balance.
	ApplyTrade(ctx context.Context, t *model.Trade, newYes, newNo, newPriceYes decimal.Decimal) (decimal.Decimal, error)

	// --- Positions ---

	// GetPosition returns the user's position in a market, or a zero
	// position if none exists yet.
	GetPosition(ctx context.Context, username, marketID string) (*model.Position, error)

	// ListPositionsByUser returns all positions held by a user.
	ListPositionsByUser(ctx context.Context, username string) ([]model.Position, error)

	// ListPositionsByMarket returns all positions in a market.
	ListPositionsByMarket(ctx context.Context, marketID string) ([]model.Position, error)

	// PayoutPosition atomically credits amount to the user's balance and
	// zeroes both sides of their position in the market. amount may be
	// zero (losing side); the position is zeroed regardless.
	PayoutPosition(ctx context.Context, username, marketID string, amount decimal.Decimal) error

	// --- Trade ledger reads ---

	// ListTradesByUser returns a user's trades, most recent first.
	ListTradesByUser(ctx context.Context, username string) ([]model.Trade, error)

	// ListTradesByMarket returns a market's trades in execution order.
	ListTradesByMarket(ctx context.Context, marketID string) ([]model.Trade, error)

	// ListTrades returns the most recent trades across all markets.
	ListTrades(ctx context.Context, limit int) ([]model.Trade, error)
}
