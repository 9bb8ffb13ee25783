// Package ledger is the only place balances and positions are mutated.
// It applies quoted trades as a single atomic unit and credits settlement
// payouts idempotently.
package ledger

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/pointsmarket/engine/internal/cpmm"
	"github.com/pointsmarket/engine/internal/model"
	"github.com/pointsmarket/engine/internal/store"
)

// Service applies trades and payouts against the store. Atomicity is
// delegated to the store (one lock in memory, one transaction in Postgres);
// this layer owns the business sequencing and validation.
type Service struct {
	store store.Store
}

// NewService creates a ledger service.
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// ApplyTrade commits a quoted trade: debit spend, credit filled shares,
// write the post-trade reserves, append the trade record. Either all four
// sub-effects land or none do. The caller must hold the market's trade
// lock so the quote's reserves are still current at commit time.
func (s *Service) ApplyTrade(ctx context.Context, t *model.Trade, q cpmm.Quote) (decimal.Decimal, error) {
	newBalance, err := s.store.ApplyTrade(ctx, t, q.NewYesReserve, q.NewNoReserve, q.NewPriceYes)
	if err != nil {
		return decimal.Zero, err
	}

	slog.Info("trade applied",
		"trade_id", t.ID,
		"market_id", t.MarketID,
		"user", t.Username,
		"side", t.Side,
		"spend", t.SpendPoints.String(),
		"filled", t.FilledShares.String(),
		"new_price_yes", q.NewPriceYes.String(),
	)
	return newBalance, nil
}

// Payout credits shares-on-side × pointsPerShare to the user's balance and
// zeroes their position in the market. Idempotent per (user, market): the
// amount is computed from the stored position, so a second call after
// zeroing pays nothing and returns zero.
func (s *Service) Payout(ctx context.Context, username, marketID string, side model.Side, pointsPerShare decimal.Decimal) (decimal.Decimal, error) {
	p, err := s.store.GetPosition(ctx, username, marketID)
	if err != nil {
		return decimal.Zero, err
	}

	amount := p.Shares(side).Mul(pointsPerShare)
	if err := s.store.PayoutPosition(ctx, username, marketID, amount); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}
