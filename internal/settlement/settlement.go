// Package settlement performs the terminal payout pass for a market: every
// winning share pays exactly 1 point, losing positions are zeroed, and the
// market is frozen.
package settlement

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/pointsmarket/engine/internal/ledger"
	"github.com/pointsmarket/engine/internal/model"
	"github.com/pointsmarket/engine/internal/store"
)

// PointsPerWinningShare is the payout rate at settlement: a share is a claim
// on exactly 1 point if its side wins.
var PointsPerWinningShare = decimal.NewFromInt(1)

// Engine settles markets. The caller must hold the market's trade lock so
// no trade can be admitted between the closed check and the settled write.
type Engine struct {
	store  store.Store
	ledger *ledger.Service
}

// NewEngine creates a settlement engine.
func NewEngine(st store.Store, lg *ledger.Service) *Engine {
	return &Engine{store: st, ledger: lg}
}

// Settle pays out a closed market and marks it settled. Requires status ==
// closed (store.ErrNotClosed / store.ErrAlreadySettled otherwise; a second
// invocation always fails with ErrAlreadySettled and pays nothing).
//
// The pass is retry-safe rather than all-or-nothing across users: each
// position payout is individually atomic and idempotent, so if the pass is
// interrupted before the settled write, re-invoking it pays already-zeroed
// positions nothing and completes the remainder.
func (e *Engine) Settle(ctx context.Context, marketID string, winner model.Side) (decimal.Decimal, error) {
	m, err := e.store.GetMarket(ctx, marketID)
	if err != nil {
		return decimal.Zero, err
	}
	switch m.Status {
	case model.StatusSettled:
		return decimal.Zero, store.ErrAlreadySettled
	case model.StatusOpen:
		return decimal.Zero, store.ErrNotClosed
	}

	positions, err := e.store.ListPositionsByMarket(ctx, marketID)
	if err != nil {
		return decimal.Zero, err
	}

	totalPaid := decimal.Zero
	for _, p := range positions {
		// Losing-side holders go through the same path: their payout is
		// zero and their position is zeroed without credit.
		paid, err := e.ledger.Payout(ctx, p.Username, marketID, winner, PointsPerWinningShare)
		if err != nil {
			return decimal.Zero, err
		}
		totalPaid = totalPaid.Add(paid)
	}

	if err := e.store.MarkSettled(ctx, marketID, winner); err != nil {
		return decimal.Zero, err
	}

	slog.Info("market settled",
		"market_id", marketID,
		"winner", winner,
		"positions", len(positions),
		"total_paid", totalPaid.String(),
	)
	return totalPaid, nil
}
