// Package cpmm implements a constant-product automated market maker for
// binary-outcome markets (Uniswap-style x*y = k over virtual share reserves).
//
// Buying YES pushes spend into the NO reserve and withdraws YES shares so
// that the product of the reserves is preserved:
//
//	newNo  = no + spend
//	newYes = k / newNo
//	filled = yes - newYes
//
// The spot price price_yes = no / (yes + no) therefore moves toward the side
// being bought, with diminishing shares per unit spend (slippage by
// construction). Buying NO is symmetric.
//
// All monetary values use shopspring/decimal — never float64 for money.
// The maker is stateless: reserves are passed as arguments, not stored.
package cpmm

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/pointsmarket/engine/internal/model"
)

var (
	// ErrInvalidAmount is returned when spend (or shares) is not positive,
	// or is so small that it would fill zero shares.
	ErrInvalidAmount = errors.New("cpmm: amount must be positive")

	// ErrInsufficientLiquidity is returned when a trade would drain the
	// opposing reserve below the minimum floor.
	ErrInsufficientLiquidity = errors.New("cpmm: trade would exhaust a reserve")

	// ErrInvalidReserves is returned when a reserve is not strictly positive.
	ErrInvalidReserves = errors.New("cpmm: reserves must be positive")

	// ErrInvalidFee is returned when the trading fee is outside [0, 1).
	ErrInvalidFee = errors.New("cpmm: fee must be in [0, 1)")

	// MinReserve is the floor below which a reserve may not be pushed.
	// Keeps prices strictly inside (0, 1) and divisions well-defined.
	MinReserve = decimal.NewFromFloat(0.000001)

	// PriceScale is the number of decimal places for price rounding.
	PriceScale int32 = 8
)

var one = decimal.NewFromInt(1)

// Maker quotes trades against a constant-product pool. An optional trading
// fee f ∈ [0,1) is skimmed from spend before it enters the pool; fee revenue
// accumulates with the caller and is never returned to traders.
type Maker struct {
	fee decimal.Decimal
}

// NewMaker creates a market maker with the given trading fee.
func NewMaker(fee decimal.Decimal) (*Maker, error) {
	if fee.IsNegative() || fee.GreaterThanOrEqual(one) {
		return nil, ErrInvalidFee
	}
	return &Maker{fee: fee}, nil
}

// Fee returns the configured trading fee.
func (m *Maker) Fee() decimal.Decimal {
	return m.fee
}

// Quote is the result of pricing a buy. Quoting does not mutate state; the
// caller must commit NewYesReserve/NewNoReserve transactionally.
type Quote struct {
	FilledShares  decimal.Decimal // shares credited to the trader
	NewYesReserve decimal.Decimal
	NewNoReserve  decimal.Decimal
	NewPriceYes   decimal.Decimal
	Price         decimal.Decimal // average fill price = spend / filled
	FeePoints     decimal.Decimal // points retained as fee revenue
}

// QuoteBuy prices spending `spend` points on `side` against the given
// reserves. Pure function; rejects rather than returning degenerate fills.
func (m *Maker) QuoteBuy(yes, no decimal.Decimal, side model.Side, spend decimal.Decimal) (Quote, error) {
	if yes.LessThanOrEqual(decimal.Zero) || no.LessThanOrEqual(decimal.Zero) {
		return Quote{}, ErrInvalidReserves
	}
	if spend.LessThanOrEqual(decimal.Zero) {
		return Quote{}, ErrInvalidAmount
	}

	feePoints := spend.Mul(m.fee)
	effective := spend.Sub(feePoints)

	k := yes.Mul(no)

	var newYes, newNo, filled decimal.Decimal
	if side == model.SideYes {
		newNo = no.Add(effective)
		newYes = k.Div(newNo)
		filled = yes.Sub(newYes)
	} else {
		newYes = yes.Add(effective)
		newNo = k.Div(newYes)
		filled = no.Sub(newNo)
	}

	if newYes.LessThan(MinReserve) || newNo.LessThan(MinReserve) {
		return Quote{}, ErrInsufficientLiquidity
	}
	if filled.LessThanOrEqual(decimal.Zero) {
		return Quote{}, ErrInvalidAmount
	}

	return Quote{
		FilledShares:  filled,
		NewYesReserve: newYes,
		NewNoReserve:  newNo,
		NewPriceYes:   PriceYes(newYes, newNo),
		Price:         spend.Div(filled).Round(PriceScale),
		FeePoints:     feePoints,
	}, nil
}

// SellQuote is the result of pricing the reverse trade: returning shares to
// the pool in exchange for points. Not exposed over the wire; used to verify
// the no-free-arbitrage property of the curve.
type SellQuote struct {
	Proceeds      decimal.Decimal // points paid out, net of fee
	NewYesReserve decimal.Decimal
	NewNoReserve  decimal.Decimal
	NewPriceYes   decimal.Decimal
}

// QuoteSell prices returning `shares` of `side` to the pool. Selling YES
// pushes the shares back into the YES reserve and withdraws points from the
// NO reserve, preserving k.
func (m *Maker) QuoteSell(yes, no decimal.Decimal, side model.Side, shares decimal.Decimal) (SellQuote, error) {
	if yes.LessThanOrEqual(decimal.Zero) || no.LessThanOrEqual(decimal.Zero) {
		return SellQuote{}, ErrInvalidReserves
	}
	if shares.LessThanOrEqual(decimal.Zero) {
		return SellQuote{}, ErrInvalidAmount
	}

	k := yes.Mul(no)

	var newYes, newNo, gross decimal.Decimal
	if side == model.SideYes {
		newYes = yes.Add(shares)
		newNo = k.Div(newYes)
		gross = no.Sub(newNo)
	} else {
		newNo = no.Add(shares)
		newYes = k.Div(newNo)
		gross = yes.Sub(newYes)
	}

	if newYes.LessThan(MinReserve) || newNo.LessThan(MinReserve) {
		return SellQuote{}, ErrInsufficientLiquidity
	}

	return SellQuote{
		Proceeds:      gross.Sub(gross.Mul(m.fee)),
		NewYesReserve: newYes,
		NewNoReserve:  newNo,
		NewPriceYes:   PriceYes(newYes, newNo),
	}, nil
}

// PriceYes computes the spot price of a YES share from the reserves:
//
//	price_yes = no / (yes + no)
//
// Strictly inside (0, 1) for positive reserves.
func PriceYes(yes, no decimal.Decimal) decimal.Decimal {
	return no.Div(yes.Add(no)).Round(PriceScale)
}

// Odds reports each pool's fraction of total liquidity, keyed by side.
// Note odds["yes"] is the YES pool share, i.e. 1 - price_yes.
func Odds(yes, no decimal.Decimal) map[string]decimal.Decimal {
	total := yes.Add(no)
	if total.LessThanOrEqual(decimal.Zero) {
		half := decimal.NewFromFloat(0.5)
		return map[string]decimal.Decimal{"yes": half, "no": half}
	}
	return map[string]decimal.Decimal{
		"yes": yes.Div(total).Round(PriceScale),
		"no":  no.Div(total).Round(PriceScale),
	}
}

// ImpliedPayout returns the spot payout multiple per 1 point on each side:
// 1/price_yes and 1/price_no. Display helper; actual profit depends on the
// average fill.
func ImpliedPayout(yes, no decimal.Decimal) map[string]decimal.Decimal {
	pYes := PriceYes(yes, no)
	pNo := one.Sub(pYes)
	if pYes.LessThanOrEqual(decimal.Zero) || pNo.LessThanOrEqual(decimal.Zero) {
		return map[string]decimal.Decimal{"yes": decimal.Zero, "no": decimal.Zero}
	}
	return map[string]decimal.Decimal{
		"yes": one.Div(pYes).Round(PriceScale),
		"no":  one.Div(pNo).Round(PriceScale),
	}
}
