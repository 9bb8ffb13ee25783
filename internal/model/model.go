// Package model defines the core domain types shared across the market engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is one of the two outcomes of a binary market.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// Valid reports whether s is YES or NO.
func (s Side) Valid() bool {
	return s == SideYes || s == SideNo
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// Status is a market lifecycle state. Transitions are one-way:
// open → closed → settled.
type Status string

const (
	StatusOpen    Status = "open"
	StatusClosed  Status = "closed"
	StatusSettled Status = "settled"
)

// Market is a binary-outcome prediction market priced by a constant-product
// pool over YES/NO reserves. Reserves are seeded at creation and stay
// strictly positive while the market is open; settlement freezes them.
type Market struct {
	ID         string          `json:"id" db:"id"`
	Question   string          `json:"question" db:"question"`
	ClosesAt   time.Time       `json:"closes_at" db:"closes_at"`
	Status     Status          `json:"status" db:"status"`
	Winner     Side            `json:"winner,omitempty" db:"winner"` // empty until settled
	YesReserve decimal.Decimal `json:"yes_reserve" db:"yes_reserve"`
	NoReserve  decimal.Decimal `json:"no_reserve" db:"no_reserve"`
	PriceYes   decimal.Decimal `json:"price_yes" db:"price_yes"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

// Tradable reports whether the market accepts trades.
func (m *Market) Tradable() bool {
	return m.Status == StatusOpen
}

// User holds the balance ledger entry for one account.
// Balance never goes negative as a result of any engine operation.
type User struct {
	Username     string          `json:"username" db:"username"`
	PasswordHash string          `json:"-" db:"password_hash"`
	Balance      decimal.Decimal `json:"balance_points" db:"balance_points"`
	Role         string          `json:"role" db:"role"` // "user" or "admin"
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Position is a user's share holdings in one market. Created lazily on the
// first trade, zeroed (never deleted) by settlement payout.
type Position struct {
	Username  string          `json:"username" db:"username"`
	MarketID  string          `json:"market_id" db:"market_id"`
	YesShares decimal.Decimal `json:"yes_shares" db:"yes_shares"`
	NoShares  decimal.Decimal `json:"no_shares" db:"no_shares"`
}

// Shares returns the holdings on the given side.
func (p *Position) Shares(side Side) decimal.Decimal {
	if side == SideYes {
		return p.YesShares
	}
	return p.NoShares
}

// Trade is an immutable record of an executed buy. Once created, these are
// never modified or deleted; they form an append-only ledger per market.
type Trade struct {
	ID           string          `json:"id" db:"id"`
	MarketID     string          `json:"market_id" db:"market_id"`
	Username     string          `json:"username" db:"username"`
	Side         Side            `json:"side" db:"side"`
	SpendPoints  decimal.Decimal `json:"spend_points" db:"spend_points"`
	FilledShares decimal.Decimal `json:"filled_shares" db:"filled_shares"`
	Price        decimal.Decimal `json:"price" db:"price"` // average fill price
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}
