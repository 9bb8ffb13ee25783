package store

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/pointsmarket/engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	markets   map[string]*model.Market
	users     map[string]*model.User
	positions map[string]map[string]*model.Position // marketID → username → position
	trades    []model.Trade
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		markets:   make(map[string]*model.Market),
		users:     make(map[string]*model.User),
		positions: make(map[string]map[string]*model.Position),
	}
}

// --- Markets ---

func (s *MemoryStore) CreateMarket(_ context.Context, m *model.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.markets[m.ID]; ok {
		return ErrMarketExists
	}
	cp := *m
	s.markets[m.ID] = &cp
	return nil
}

func (s *MemoryStore) GetMarket(_ context.Context, id string) (*model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.markets[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) ListMarkets(_ context.Context, status model.Status) ([]model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	markets := make([]model.Market, 0, len(s.markets))
	for _, m := range s.markets {
		if status != "" && m.Status != status {
			continue
		}
		markets = append(markets, *m)
	}
	sort.Slice(markets, func(i, j int) bool {
		return markets[i].ClosesAt.Before(markets[j].ClosesAt)
	})
	return markets, nil
}

func (s *MemoryStore) CloseMarket(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[id]
	if !ok {
		return ErrNotFound
	}
	switch m.Status {
	case model.StatusSettled:
		return ErrAlreadySettled
	case model.StatusClosed:
		return ErrAlreadyClosed
	}
	m.Status = model.StatusClosed
	return nil
}

func (s *MemoryStore) MarkSettled(_ context.Context, id string, winner model.Side) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[id]
	if !ok {
		return ErrNotFound
	}
	switch m.Status {
	case model.StatusSettled:
		return ErrAlreadySettled
	case model.StatusOpen:
		return ErrNotClosed
	}
	m.Status = model.StatusSettled
	m.Winner = winner
	m.YesReserve = decimal.Zero
	m.NoReserve = decimal.Zero
	return nil
}

func (s *MemoryStore) DeleteMarket(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[id]
	if !ok {
		return ErrNotFound
	}
	if m.Status != model.StatusSettled {
		return ErrNotSettled
	}

	delete(s.markets, id)
	delete(s.positions, id)

	kept := s.trades[:0]
	for _, t := range s.trades {
		if t.MarketID != id {
			kept = append(kept, t)
		}
	}
	s.trades = kept
	return nil
}

// --- Users ---

func (s *MemoryStore) CreateUser(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[u.Username]; ok {
		return ErrUserExists
	}
	cp := *u
	s.users[u.Username] = &cp
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, username string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[username]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) ListUsersByBalance(_ context.Context, limit int) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool {
		if !users[i].Balance.Equal(users[j].Balance) {
			return users[i].Balance.GreaterThan(users[j].Balance)
		}
		return users[i].Username < users[j].Username
	})
	if limit > 0 && len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

// --- Trade application ---

// ApplyTrade performs the whole trade commit under one lock so the balance
// check-and-debit, reserve write, position credit, and ledger append are a
// single atomic unit.
func (s *MemoryStore) ApplyTrade(_ context.Context, t *model.Trade, newYes, newNo, newPriceYes decimal.Decimal) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[t.MarketID]
	if !ok {
		return decimal.Zero, ErrNotFound
	}
	u, ok := s.users[t.Username]
	if !ok {
		return decimal.Zero, ErrNotFound
	}

	// Balance first, then tradability: the Postgres path runs the debit
	// before the guarded market update, so surface the same error.
	if u.Balance.LessThan(t.SpendPoints) {
		return decimal.Zero, ErrInsufficientBalance
	}
	if m.Status != model.StatusOpen {
		return decimal.Zero, ErrMarketNotTradable
	}

	u.Balance = u.Balance.Sub(t.SpendPoints)
	m.YesReserve = newYes
	m.NoReserve = newNo
	m.PriceYes = newPriceYes

	byUser, ok := s.positions[t.MarketID]
	if !ok {
		byUser = make(map[string]*model.Position)
		s.positions[t.MarketID] = byUser
	}
	p, ok := byUser[t.Username]
	if !ok {
		p = &model.Position{Username: t.Username, MarketID: t.MarketID}
		byUser[t.Username] = p
	}
	if t.Side == model.SideYes {
		p.YesShares = p.YesShares.Add(t.FilledShares)
	} else {
		p.NoShares = p.NoShares.Add(t.FilledShares)
	}

	s.trades = append(s.trades, *t)
	return u.Balance, nil
}

// --- Positions ---

func (s *MemoryStore) GetPosition(_ context.Context, username, marketID string) (*model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.positions[marketID][username]; ok {
		cp := *p
		return &cp, nil
	}
	return &model.Position{Username: username, MarketID: marketID}, nil
}

func (s *MemoryStore) ListPositionsByUser(_ context.Context, username string) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Position
	for _, byUser := range s.positions {
		if p, ok := byUser[username]; ok {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarketID < out[j].MarketID })
	return out, nil
}

func (s *MemoryStore) ListPositionsByMarket(_ context.Context, marketID string) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Position
	for _, p := range s.positions[marketID] {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *MemoryStore) PayoutPosition(_ context.Context, username, marketID string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[username]
	if !ok {
		return ErrNotFound
	}
	if amount.IsPositive() {
		u.Balance = u.Balance.Add(amount)
	}
	if p, ok := s.positions[marketID][username]; ok {
		p.YesShares = decimal.Zero
		p.NoShares = decimal.Zero
	}
	return nil
}

// --- Trade ledger reads ---

func (s *MemoryStore) ListTradesByUser(_ context.Context, username string) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Trade
	for i := len(s.trades) - 1; i >= 0; i-- {
		if s.trades[i].Username == username {
			out = append(out, s.trades[i])
		}
	}
	return out, nil
}

func (s *MemoryStore) ListTradesByMarket(_ context.Context, marketID string) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Trade
	for _, t := range s.trades {
		if t.MarketID == marketID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListTrades(_ context.Context, limit int) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Trade
	for i := len(s.trades) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, s.trades[i])
	}
	return out, nil
}
