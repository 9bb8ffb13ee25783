// Package trade provides the HTTP handlers and business logic for account
// registration, market management, trade execution, and settlement.
//
// All monetary values use shopspring/decimal — never float64 for money.
package trade

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pointsmarket/engine/internal/auth"
	"github.com/pointsmarket/engine/internal/cpmm"
	"github.com/pointsmarket/engine/internal/ledger"
	"github.com/pointsmarket/engine/internal/metrics"
	"github.com/pointsmarket/engine/internal/model"
	"github.com/pointsmarket/engine/internal/settlement"
	"github.com/pointsmarket/engine/internal/store"
)

// Service handles market operations. Mutations on the same market are
// serialized by a per-market lock around read-quote-commit; different
// markets proceed fully in parallel.
type Service struct {
	store   store.Store
	maker   *cpmm.Maker
	ledger  *ledger.Service
	settler *settlement.Engine
	jwt     auth.JWT

	defaultStart decimal.Decimal
	locks        marketLocks
	wsHub        *WSHub // optional WebSocket hub for real-time broadcasts
}

// NewService creates a new trade service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, maker *cpmm.Maker, jwt auth.JWT, defaultStart decimal.Decimal, hub *WSHub) *Service {
	lg := ledger.NewService(st)
	return &Service{
		store:        st,
		maker:        maker,
		ledger:       lg,
		settler:      settlement.NewEngine(st, lg),
		jwt:          jwt,
		defaultStart: defaultStart,
		wsHub:        hub,
	}
}

// ResyncOpenMarkets sets the open-markets gauge from the store. Called at
// startup so the value survives process restarts instead of resetting to
// zero.
func (s *Service) ResyncOpenMarkets(ctx context.Context) error {
	open, err := s.store.ListMarkets(ctx, model.StatusOpen)
	if err != nil {
		return err
	}
	metrics.OpenMarkets.Set(float64(len(open)))
	return nil
}

// marketLocks hands out one mutex per market ID.
type marketLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *marketLocks) get(id string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks == nil {
		l.locks = make(map[string]*sync.Mutex)
	}
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	return m
}

func (l *marketLocks) drop(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.locks, id)
}

// --- Request/Response types ---

// RegisterRequest is the JSON body for POST /auth/register.
type RegisterRequest struct {
	Username       string           `json:"username"`
	Password       string           `json:"password"`
	StartingPoints *decimal.Decimal `json:"starting_points,omitempty"`
}

// LoginRequest is the JSON body for POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse is returned from register and login.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Username    string `json:"username"`
}

// CreateMarketRequest is the JSON body for market creation.
type CreateMarketRequest struct {
	Question      string          `json:"question"`
	ClosesAt      time.Time       `json:"closes_at"`
	SeedYesPoints decimal.Decimal `json:"seed_yes_points"`
	SeedNoPoints  decimal.Decimal `json:"seed_no_points"`
}

// TradeRequest is the JSON body for POST /markets/{marketID}/trade.
type TradeRequest struct {
	Side         model.Side      `json:"side"`
	AmountPoints decimal.Decimal `json:"amount_points"`
}

// TradeResponse is the JSON body returned from a trade.
type TradeResponse struct {
	OK               bool                       `json:"ok"`
	FilledShares     decimal.Decimal            `json:"filled_shares"`
	NewPriceYes      decimal.Decimal            `json:"new_price_yes"`
	NewBalancePoints decimal.Decimal            `json:"new_balance_points"`
	Odds             map[string]decimal.Decimal `json:"odds"`
}

// MarketOut is the wire shape of a market snapshot.
type MarketOut struct {
	ID                string                     `json:"id"`
	Question          string                     `json:"question"`
	ClosesAt          time.Time                  `json:"closes_at"`
	Open              bool                       `json:"open"`
	Settled           bool                       `json:"settled"`
	Winner            model.Side                 `json:"winner,omitempty"`
	YesPoolPoints     decimal.Decimal            `json:"yes_pool_points"`
	NoPoolPoints      decimal.Decimal            `json:"no_pool_points"`
	PriceYes          decimal.Decimal            `json:"price_yes"`
	Odds              map[string]decimal.Decimal `json:"odds"`
	ImpliedPayoutPer1 map[string]decimal.Decimal `json:"implied_payout_per1"`
}

func marketOut(m *model.Market) MarketOut {
	return MarketOut{
		ID:                m.ID,
		Question:          m.Question,
		ClosesAt:          m.ClosesAt,
		Open:              m.Status == model.StatusOpen,
		Settled:           m.Status == model.StatusSettled,
		Winner:            m.Winner,
		YesPoolPoints:     m.YesReserve,
		NoPoolPoints:      m.NoReserve,
		PriceYes:          m.PriceYes,
		Odds:              cpmm.Odds(m.YesReserve, m.NoReserve),
		ImpliedPayoutPer1: cpmm.ImpliedPayout(m.YesReserve, m.NoReserve),
	}
}

// PositionOut is one row of GET /users/me/positions.
type PositionOut struct {
	MarketID       string          `json:"market_id"`
	Question       string          `json:"question"`
	ClosesAt       time.Time       `json:"closes_at"`
	Open           bool            `json:"open"`
	PriceYes       decimal.Decimal `json:"price_yes"`
	YesShares      decimal.Decimal `json:"yes_shares"`
	NoShares       decimal.Decimal `json:"no_shares"`
	EstValuePoints decimal.Decimal `json:"est_value_points"`
}

// --- Auth handlers ---

// Register handles POST /auth/register.
func (s *Service) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Username) < 3 || len(req.Username) > 32 {
		writeError(w, "username must be 3-32 characters", http.StatusBadRequest)
		return
	}
	if len(req.Password) < 3 || len(req.Password) > 128 {
		writeError(w, "password must be 3-128 characters", http.StatusBadRequest)
		return
	}

	starting := s.defaultStart
	if req.StartingPoints != nil {
		if req.StartingPoints.IsNegative() {
			writeError(w, "starting_points must be >= 0", http.StatusBadRequest)
			return
		}
		starting = *req.StartingPoints
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, "failed to hash password", http.StatusInternalServerError)
		return
	}

	user := &model.User{
		Username:     req.Username,
		PasswordHash: hash,
		Balance:      starting,
		Role:         model.RoleUser,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrUserExists) {
			writeError(w, "username already exists", http.StatusBadRequest)
			return
		}
		writeError(w, "failed to create user", http.StatusInternalServerError)
		return
	}

	slog.Info("user registered", "user", user.Username, "starting_points", starting.String())
	s.issueToken(w, user)
}

// Login handles POST /auth/login.
func (s *Service) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	user, err := s.store.GetUser(r.Context(), req.Username)
	if err != nil || user.PasswordHash == "" || !auth.CheckPassword(req.Password, user.PasswordHash) {
		writeError(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	s.issueToken(w, user)
}

func (s *Service) issueToken(w http.ResponseWriter, user *model.User) {
	token, err := s.jwt.Sign(user.Username, user.Role)
	if err != nil {
		writeError(w, "failed to issue token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		Username:    user.Username,
	})
}

// currentUser loads the authenticated user from verified claims.
func (s *Service) currentUser(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	user, err := s.store.GetUser(r.Context(), claims.Subject)
	if err != nil {
		writeError(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	return user, true
}

// --- Market handlers ---

// ListMarkets handles GET /markets?status=open|closed|settled.
func (s *Service) ListMarkets(w http.ResponseWriter, r *http.Request) {
	var status model.Status
	switch q := r.URL.Query().Get("status"); q {
	case "open", "closed", "settled":
		status = model.Status(q)
	case "":
	default:
		writeError(w, "status must be open, closed, or settled", http.StatusBadRequest)
		return
	}

	markets, err := s.store.ListMarkets(r.Context(), status)
	if err != nil {
		writeError(w, "failed to list markets", http.StatusInternalServerError)
		return
	}

	out := make([]MarketOut, 0, len(markets))
	for i := range markets {
		out = append(out, marketOut(&markets[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetMarket handles GET /markets/{marketID}.
func (s *Service) GetMarket(w http.ResponseWriter, r *http.Request) {
	m, err := s.store.GetMarket(r.Context(), chi.URLParam(r, "marketID"))
	if err != nil {
		writeError(w, "market not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, marketOut(m))
}

// GetMarketTrades handles GET /markets/{marketID}/trades.
// Returns the append-only ledger to reconstruct price history.
func (s *Service) GetMarketTrades(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")
	if _, err := s.store.GetMarket(r.Context(), marketID); err != nil {
		writeError(w, "market not found", http.StatusNotFound)
		return
	}

	trades, err := s.store.ListTradesByMarket(r.Context(), marketID)
	if err != nil {
		writeError(w, "failed to list trades", http.StatusInternalServerError)
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}
	writeJSON(w, http.StatusOK, trades)
}

// CreateMarket handles POST /markets (admin).
func (s *Service) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req CreateMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Question) < 5 || len(req.Question) > 200 {
		writeError(w, "question must be 5-200 characters", http.StatusBadRequest)
		return
	}
	if req.ClosesAt.IsZero() {
		writeError(w, "closes_at is required", http.StatusBadRequest)
		return
	}

	seedYes, seedNo := req.SeedYesPoints, req.SeedNoPoints
	if seedYes.IsZero() {
		seedYes = decimal.NewFromInt(500)
	}
	if seedNo.IsZero() {
		seedNo = decimal.NewFromInt(500)
	}
	if seedYes.LessThanOrEqual(decimal.Zero) || seedNo.LessThanOrEqual(decimal.Zero) {
		writeError(w, "seed points must be > 0", http.StatusBadRequest)
		return
	}

	m := &model.Market{
		ID:         uuid.New().String(),
		Question:   req.Question,
		ClosesAt:   req.ClosesAt.UTC(),
		Status:     model.StatusOpen,
		YesReserve: seedYes,
		NoReserve:  seedNo,
		PriceYes:   cpmm.PriceYes(seedYes, seedNo),
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.CreateMarket(r.Context(), m); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	metrics.OpenMarkets.Inc()
	slog.Info("market created",
		"market_id", m.ID,
		"question", m.Question,
		"seed_yes", seedYes.String(),
		"seed_no", seedNo.String(),
	)
	writeJSON(w, http.StatusCreated, marketOut(m))
}

// --- Trade execution ---

// ExecuteTrade handles POST /markets/{marketID}/trade.
// Quotes against the constant-product pool and commits atomically.
func (s *Service) ExecuteTrade(w http.ResponseWriter, r *http.Request) {
	user, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	marketID := chi.URLParam(r, "marketID")

	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !req.Side.Valid() {
		writeError(w, "side must be YES or NO", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	start := time.Now()

	// Per-market critical section: read reserves → quote → commit.
	mu := s.locks.get(marketID)
	mu.Lock()
	defer mu.Unlock()

	m, err := s.store.GetMarket(ctx, marketID)
	if err != nil {
		writeError(w, "market not found", http.StatusNotFound)
		return
	}
	if !m.Tradable() {
		metrics.TradeRejections.WithLabelValues("not_tradable").Inc()
		writeError(w, "market is not open for trading", http.StatusConflict)
		return
	}

	q, err := s.maker.QuoteBuy(m.YesReserve, m.NoReserve, req.Side, req.AmountPoints)
	if err != nil {
		switch {
		case errors.Is(err, cpmm.ErrInvalidAmount):
			metrics.TradeRejections.WithLabelValues("invalid_amount").Inc()
			writeError(w, "amount_points must be > 0", http.StatusBadRequest)
		case errors.Is(err, cpmm.ErrInsufficientLiquidity):
			metrics.TradeRejections.WithLabelValues("insufficient_liquidity").Inc()
			writeError(w, err.Error(), http.StatusConflict)
		default:
			writeError(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	t := &model.Trade{
		ID:           uuid.New().String(),
		MarketID:     marketID,
		Username:     user.Username,
		Side:         req.Side,
		SpendPoints:  req.AmountPoints,
		FilledShares: q.FilledShares,
		Price:        q.Price,
		CreatedAt:    time.Now().UTC(),
	}

	newBalance, err := s.ledger.ApplyTrade(ctx, t, q)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrInsufficientBalance):
			metrics.TradeRejections.WithLabelValues("insufficient_balance").Inc()
			writeError(w, "insufficient balance", http.StatusBadRequest)
		case errors.Is(err, store.ErrMarketNotTradable):
			metrics.TradeRejections.WithLabelValues("not_tradable").Inc()
			writeError(w, "market is not open for trading", http.StatusConflict)
		case errors.Is(err, store.ErrNotFound):
			writeError(w, "market or user not found", http.StatusNotFound)
		default:
			writeError(w, "failed to record trade", http.StatusInternalServerError)
		}
		return
	}

	side := string(req.Side)
	metrics.TradesTotal.WithLabelValues(side).Inc()
	metrics.TradeVolume.WithLabelValues(side).Add(req.AmountPoints.InexactFloat64())
	metrics.TradeLatency.WithLabelValues(side).Observe(time.Since(start).Seconds())

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:     "trade_executed",
			MarketID: marketID,
			PriceYes: q.NewPriceYes.String(),
			PriceNo:  decimal.NewFromInt(1).Sub(q.NewPriceYes).String(),
			Side:     side,
			Filled:   q.FilledShares.String(),
		})
	}

	writeJSON(w, http.StatusOK, TradeResponse{
		OK:               true,
		FilledShares:     q.FilledShares,
		NewPriceYes:      q.NewPriceYes,
		NewBalancePoints: newBalance,
		Odds:             cpmm.Odds(q.NewYesReserve, q.NewNoReserve),
	})
}

// --- User handlers ---

// Me handles GET /users/me.
func (s *Service) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"username":       user.Username,
		"balance_points": user.Balance,
	})
}

// MyPositions handles GET /users/me/positions.
func (s *Service) MyPositions(w http.ResponseWriter, r *http.Request) {
	user, ok := s.currentUser(w, r)
	if !ok {
		return
	}

	positions, err := s.store.ListPositionsByUser(r.Context(), user.Username)
	if err != nil {
		writeError(w, "failed to load positions", http.StatusInternalServerError)
		return
	}

	one := decimal.NewFromInt(1)
	out := make([]PositionOut, 0, len(positions))
	for _, p := range positions {
		m, err := s.store.GetMarket(r.Context(), p.MarketID)
		if err != nil {
			continue // market deleted since
		}
		// Mark-to-market: expected value at spot prices.
		est := m.PriceYes.Mul(p.YesShares).Add(one.Sub(m.PriceYes).Mul(p.NoShares))
		out = append(out, PositionOut{
			MarketID:       p.MarketID,
			Question:       m.Question,
			ClosesAt:       m.ClosesAt,
			Open:           m.Status == model.StatusOpen,
			PriceYes:       m.PriceYes,
			YesShares:      p.YesShares,
			NoShares:       p.NoShares,
			EstValuePoints: est,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// MyBets handles GET /users/me/bets.
func (s *Service) MyBets(w http.ResponseWriter, r *http.Request) {
	user, ok := s.currentUser(w, r)
	if !ok {
		return
	}

	trades, err := s.store.ListTradesByUser(r.Context(), user.Username)
	if err != nil {
		writeError(w, "failed to load trades", http.StatusInternalServerError)
		return
	}

	out := make([]map[string]any, 0, len(trades))
	for _, t := range trades {
		row := map[string]any{
			"market_id":     t.MarketID,
			"side":          t.Side,
			"spend_points":  t.SpendPoints,
			"filled_shares": t.FilledShares,
			"price":         t.Price,
			"created_at":    t.CreatedAt,
		}
		if m, err := s.store.GetMarket(r.Context(), t.MarketID); err == nil {
			row["question"] = m.Question
			row["closes_at"] = m.ClosesAt
			row["open"] = m.Status == model.StatusOpen
		}
		out = append(out, row)
	}
	writeJSON(w, http.StatusOK, out)
}

// Leaderboard handles GET /users/leaderboard.
func (s *Service) Leaderboard(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsersByBalance(r.Context(), 0)
	if err != nil {
		writeError(w, "failed to load leaderboard", http.StatusInternalServerError)
		return
	}

	out := make([]map[string]any, 0, len(users))
	for _, u := range users {
		out = append(out, map[string]any{
			"username":       u.Username,
			"balance_points": u.Balance,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// --- Admin handlers ---

// CloseMarket handles POST /admin/markets/{marketID}/close.
func (s *Service) CloseMarket(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")

	mu := s.locks.get(marketID)
	mu.Lock()
	defer mu.Unlock()

	if err := s.store.CloseMarket(r.Context(), marketID); err != nil {
		writeTransitionError(w, err)
		return
	}

	metrics.OpenMarkets.Dec()
	slog.Info("market closed", "market_id", marketID)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{Type: "market_closed", MarketID: marketID})
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// SettleMarket handles POST /admin/markets/{marketID}/settle.
func (s *Service) SettleMarket(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")

	var req struct {
		Winner model.Side `json:"winner"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !req.Winner.Valid() {
		writeError(w, "winner must be YES or NO", http.StatusBadRequest)
		return
	}

	// Same exclusion as trading: nothing trades between the closed check
	// and the settled write.
	mu := s.locks.get(marketID)
	mu.Lock()
	defer mu.Unlock()

	totalPaid, err := s.settler.Settle(r.Context(), marketID, req.Winner)
	if err != nil {
		writeTransitionError(w, err)
		return
	}

	metrics.SettlementsTotal.WithLabelValues(string(req.Winner)).Inc()
	metrics.PayoutPoints.Add(totalPaid.InexactFloat64())

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:     "market_settled",
			MarketID: marketID,
			Winner:   string(req.Winner),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":                true,
		"winner":            req.Winner,
		"total_paid_points": totalPaid,
	})
}

// DeleteMarket handles DELETE /admin/markets/{marketID}.
// Permitted only after settlement; removes the market and its dependent
// positions and trades.
func (s *Service) DeleteMarket(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")

	mu := s.locks.get(marketID)
	mu.Lock()
	defer mu.Unlock()

	if err := s.store.DeleteMarket(r.Context(), marketID); err != nil {
		writeTransitionError(w, err)
		return
	}
	s.locks.drop(marketID)

	slog.Info("market deleted", "market_id", marketID)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// AdminListUsers handles GET /admin/users.
func (s *Service) AdminListUsers(w http.ResponseWriter, r *http.Request) {
	s.Leaderboard(w, r)
}

// AdminListMarkets handles GET /admin/markets.
func (s *Service) AdminListMarkets(w http.ResponseWriter, r *http.Request) {
	s.ListMarkets(w, r)
}

// AdminListBets handles GET /admin/bets?limit=.
func (s *Service) AdminListBets(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			writeError(w, "limit must be 1-1000", http.StatusBadRequest)
			return
		}
		limit = n
	}

	trades, err := s.store.ListTrades(r.Context(), limit)
	if err != nil {
		writeError(w, "failed to load trades", http.StatusInternalServerError)
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}
	writeJSON(w, http.StatusOK, trades)
}

// AdminCreateUser handles POST /admin/users — seed an account directly.
func (s *Service) AdminCreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username       string           `json:"username"`
		StartingPoints *decimal.Decimal `json:"starting_points,omitempty"`
		Role           string           `json:"role,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Username) < 3 || len(req.Username) > 32 {
		writeError(w, "username must be 3-32 characters", http.StatusBadRequest)
		return
	}

	starting := s.defaultStart
	if req.StartingPoints != nil {
		if req.StartingPoints.IsNegative() {
			writeError(w, "starting_points must be >= 0", http.StatusBadRequest)
			return
		}
		starting = *req.StartingPoints
	}
	role := model.RoleUser
	if req.Role == model.RoleAdmin {
		role = model.RoleAdmin
	}

	user := &model.User{
		Username:  req.Username,
		Balance:   starting,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrUserExists) {
			writeError(w, "username already exists", http.StatusBadRequest)
			return
		}
		writeError(w, "failed to create user", http.StatusInternalServerError)
		return
	}

	slog.Info("user seeded", "user", user.Username, "role", role)
	writeJSON(w, http.StatusCreated, map[string]any{
		"username":       user.Username,
		"balance_points": user.Balance,
		"role":           user.Role,
	})
}

// --- Helpers ---

// writeTransitionError maps store lifecycle errors onto HTTP statuses.
func writeTransitionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, "market not found", http.StatusNotFound)
	case errors.Is(err, store.ErrAlreadyClosed):
		writeError(w, "market already closed", http.StatusConflict)
	case errors.Is(err, store.ErrAlreadySettled):
		writeError(w, "market already settled", http.StatusConflict)
	case errors.Is(err, store.ErrNotClosed):
		writeError(w, "close market before settlement", http.StatusConflict)
	case errors.Is(err, store.ErrNotSettled):
		writeError(w, "settle market before deletion", http.StatusConflict)
	default:
		writeError(w, err.Error(), http.StatusInternalServerError)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
