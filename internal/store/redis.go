package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/pointsmarket/engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write paths (write to primary, invalidate cache) ---

func (s *CachedStore) CreateMarket(ctx context.Context, m *model.Market) error {
	if err := s.primary.CreateMarket(ctx, m); err != nil {
		return err
	}
	s.cacheMarket(ctx, m)
	return nil
}

func (s *CachedStore) CloseMarket(ctx context.Context, id string) error {
	if err := s.primary.CloseMarket(ctx, id); err != nil {
		return err
	}
	s.rdb.Del(ctx, marketKey(id))
	return nil
}

func (s *CachedStore) MarkSettled(ctx context.Context, id string, winner model.Side) error {
	if err := s.primary.MarkSettled(ctx, id, winner); err != nil {
		return err
	}
	s.rdb.Del(ctx, marketKey(id))
	return nil
}

func (s *CachedStore) DeleteMarket(ctx context.Context, id string) error {
	if err := s.primary.DeleteMarket(ctx, id); err != nil {
		return err
	}
	s.rdb.Del(ctx, marketKey(id), leaderboardKey)
	return nil
}

func (s *CachedStore) CreateUser(ctx context.Context, u *model.User) error {
	if err := s.primary.CreateUser(ctx, u); err != nil {
		return err
	}
	s.rdb.Del(ctx, leaderboardKey)
	return nil
}

func (s *CachedStore) ApplyTrade(ctx context.Context, t *model.Trade, newYes, newNo, newPriceYes decimal.Decimal) (decimal.Decimal, error) {
	balance, err := s.primary.ApplyTrade(ctx, t, newYes, newNo, newPriceYes)
	if err != nil {
		return decimal.Zero, err
	}
	// Invalidate; next read re-populates from the committed state.
	s.rdb.Del(ctx, marketKey(t.MarketID), positionsKey(t.Username), leaderboardKey)
	return balance, nil
}

func (s *CachedStore) PayoutPosition(ctx context.Context, username, marketID string, amount decimal.Decimal) error {
	if err := s.primary.PayoutPosition(ctx, username, marketID, amount); err != nil {
		return err
	}
	s.rdb.Del(ctx, positionsKey(username), leaderboardKey)
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	data, err := s.rdb.Get(ctx, marketKey(id)).Bytes()
	if err == nil {
		var m model.Market
		if json.Unmarshal(data, &m) == nil {
			return &m, nil
		}
	}

	m, err := s.primary.GetMarket(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheMarket(ctx, m)
	return m, nil
}

func (s *CachedStore) ListPositionsByUser(ctx context.Context, username string) ([]model.Position, error) {
	data, err := s.rdb.Get(ctx, positionsKey(username)).Bytes()
	if err == nil {
		var positions []model.Position
		if json.Unmarshal(data, &positions) == nil {
			return positions, nil
		}
	}

	positions, err := s.primary.ListPositionsByUser(ctx, username)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(positions); err == nil {
		s.rdb.Set(ctx, positionsKey(username), data, s.ttl)
	}
	return positions, nil
}

func (s *CachedStore) ListUsersByBalance(ctx context.Context, limit int) ([]model.User, error) {
	// Only the default leaderboard read is cached.
	if limit > 0 {
		return s.primary.ListUsersByBalance(ctx, limit)
	}

	data, err := s.rdb.Get(ctx, leaderboardKey).Bytes()
	if err == nil {
		var users []model.User
		if json.Unmarshal(data, &users) == nil {
			return users, nil
		}
	}

	users, err := s.primary.ListUsersByBalance(ctx, limit)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(users); err == nil {
		s.rdb.Set(ctx, leaderboardKey, data, s.ttl)
	}
	return users, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListMarkets(ctx context.Context, status model.Status) ([]model.Market, error) {
	return s.primary.ListMarkets(ctx, status)
}

func (s *CachedStore) GetUser(ctx context.Context, username string) (*model.User, error) {
	return s.primary.GetUser(ctx, username)
}

func (s *CachedStore) GetPosition(ctx context.Context, username, marketID string) (*model.Position, error) {
	return s.primary.GetPosition(ctx, username, marketID)
}

func (s *CachedStore) ListPositionsByMarket(ctx context.Context, marketID string) ([]model.Position, error) {
	return s.primary.ListPositionsByMarket(ctx, marketID)
}

func (s *CachedStore) ListTradesByUser(ctx context.Context, username string) ([]model.Trade, error) {
	return s.primary.ListTradesByUser(ctx, username)
}

func (s *CachedStore) ListTradesByMarket(ctx context.Context, marketID string) ([]model.Trade, error) {
	return s.primary.ListTradesByMarket(ctx, marketID)
}

func (s *CachedStore) ListTrades(ctx context.Context, limit int) ([]model.Trade, error) {
	return s.primary.ListTrades(ctx, limit)
}

// --- Cache helpers ---

func (s *CachedStore) cacheMarket(ctx context.Context, m *model.Market) {
	if data, err := json.Marshal(m); err == nil {
		s.rdb.Set(ctx, marketKey(m.ID), data, s.ttl)
	}
}

const leaderboardKey = "leaderboard"

func marketKey(id string) string          { return fmt.Sprintf("market:%s", id) }
func positionsKey(username string) string { return fmt.Sprintf("positions:%s", username) }
