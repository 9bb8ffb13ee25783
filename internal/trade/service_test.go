package trade

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"github.com/pointsmarket/engine/internal/auth"
	"github.com/pointsmarket/engine/internal/cpmm"
	"github.com/pointsmarket/engine/internal/metrics"
	"github.com/pointsmarket/engine/internal/model"
	"github.com/pointsmarket/engine/internal/store"
)

const testAdminSecret = "test-admin-secret"

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// approxEqual compares decimals within a small tolerance, absorbing the
// precision of long division.
func approxEqual(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThan(d(0.0001))
}

type api struct {
	router chi.Router
	store  *store.MemoryStore
	svc    *Service
}

func newTestAPI(t *testing.T) *api {
	t.Helper()

	st := store.NewMemoryStore()
	maker, err := cpmm.NewMaker(decimal.Zero)
	if err != nil {
		t.Fatal(err)
	}
	jwtSvc := auth.JWT{Secret: []byte("test-secret-at-least-16b"), TokenTTL: time.Hour}
	svc := NewService(st, maker, jwtSvc, d(1000), nil)

	r := chi.NewRouter()
	r.Post("/auth/register", svc.Register)
	r.Post("/auth/login", svc.Login)
	r.Get("/markets", svc.ListMarkets)
	r.Get("/markets/{marketID}", svc.GetMarket)
	r.Get("/markets/{marketID}/trades", svc.GetMarketTrades)
	r.Get("/users/leaderboard", svc.Leaderboard)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(jwtSvc))
		r.Post("/markets/{marketID}/trade", svc.ExecuteTrade)
		r.Get("/users/me", svc.Me)
		r.Get("/users/me/positions", svc.MyPositions)
		r.Get("/users/me/bets", svc.MyBets)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.AdminMiddleware(jwtSvc, testAdminSecret))
		r.Post("/markets", svc.CreateMarket)
		r.Post("/admin/markets/{marketID}/close", svc.CloseMarket)
		r.Post("/admin/markets/{marketID}/settle", svc.SettleMarket)
		r.Delete("/admin/markets/{marketID}", svc.DeleteMarket)
		r.Get("/admin/users", svc.AdminListUsers)
		r.Post("/admin/users", svc.AdminCreateUser)
		r.Get("/admin/markets", svc.AdminListMarkets)
		r.Get("/admin/bets", svc.AdminListBets)
	})

	return &api{router: r, store: st, svc: svc}
}

// do issues a request against the in-process router. token sets a bearer
// header, admin sets the shared admin secret header.
func (a *api) do(t *testing.T, method, path, token string, admin bool, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if admin {
		req.Header.Set(auth.AdminHeader, testAdminSecret)
	}

	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

// meResponse is the typed shape of GET /users/me; decoding the response
// into map[string]decimal.Decimal fails on the string username field.
type meResponse struct {
	Username      string          `json:"username"`
	BalancePoints decimal.Decimal `json:"balance_points"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}

func (a *api) register(t *testing.T, username string) string {
	t.Helper()
	rec := a.do(t, "POST", "/auth/register", "", false, RegisterRequest{
		Username: username,
		Password: "hunter2!",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("register %s: %d %s", username, rec.Code, rec.Body.String())
	}
	return decode[TokenResponse](t, rec).AccessToken
}

func (a *api) createMarket(t *testing.T, seedYes, seedNo float64) MarketOut {
	t.Helper()
	rec := a.do(t, "POST", "/markets", "", true, CreateMarketRequest{
		Question:      "Will the bill pass before the recess?",
		ClosesAt:      time.Now().Add(48 * time.Hour),
		SeedYesPoints: d(seedYes),
		SeedNoPoints:  d(seedNo),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create market: %d %s", rec.Code, rec.Body.String())
	}
	return decode[MarketOut](t, rec)
}

func TestRegisterLogin_RoundTrip(t *testing.T) {
	a := newTestAPI(t)
	a.register(t, "alice")

	rec := a.do(t, "POST", "/auth/login", "", false, LoginRequest{Username: "alice", Password: "hunter2!"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: %d %s", rec.Code, rec.Body.String())
	}
	tok := decode[TokenResponse](t, rec)
	if tok.AccessToken == "" || tok.TokenType != "bearer" {
		t.Fatalf("bad token response: %+v", tok)
	}

	rec = a.do(t, "POST", "/auth/login", "", false, LoginRequest{Username: "alice", Password: "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password, got %d", rec.Code)
	}
}

func TestRegister_DuplicateUsername(t *testing.T) {
	a := newTestAPI(t)
	a.register(t, "alice")

	rec := a.do(t, "POST", "/auth/register", "", false, RegisterRequest{Username: "alice", Password: "hunter2!"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for duplicate username, got %d", rec.Code)
	}
}

func TestCreateMarket_RequiresAdmin(t *testing.T) {
	a := newTestAPI(t)
	tok := a.register(t, "alice")

	body := CreateMarketRequest{
		Question:      "Will the bill pass before the recess?",
		ClosesAt:      time.Now().Add(48 * time.Hour),
		SeedYesPoints: d(500),
		SeedNoPoints:  d(500),
	}
	rec := a.do(t, "POST", "/markets", tok, false, body)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin create, got %d", rec.Code)
	}

	rec = a.do(t, "POST", "/markets", "", false, body)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with no credentials, got %d", rec.Code)
	}
}

func TestCreateMarket_RejectsNonPositiveSeeds(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, "POST", "/markets", "", true, CreateMarketRequest{
		Question:      "Will the bill pass before the recess?",
		ClosesAt:      time.Now().Add(48 * time.Hour),
		SeedYesPoints: d(-10),
		SeedNoPoints:  d(500),
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative seed, got %d", rec.Code)
	}
}

func TestTrade_MovesPriceAndDebitsBalance(t *testing.T) {
	a := newTestAPI(t)
	tok := a.register(t, "alice")
	m := a.createMarket(t, 500, 500)

	if !m.PriceYes.Equal(d(0.5)) {
		t.Fatalf("seeded price: expected 0.5, got %s", m.PriceYes)
	}

	rec := a.do(t, "POST", "/markets/"+m.ID+"/trade", tok, false, TradeRequest{
		Side: model.SideYes, AmountPoints: d(100),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("trade: %d %s", rec.Code, rec.Body.String())
	}
	resp := decode[TradeResponse](t, rec)

	// 500*500/600 leaves ~416.6667 YES; fill is the difference.
	if !approxEqual(resp.FilledShares, d(83.33333333)) {
		t.Fatalf("filled: expected ~83.3333, got %s", resp.FilledShares)
	}
	if !approxEqual(resp.NewPriceYes, d(0.59016393)) {
		t.Fatalf("price: expected ~0.5902, got %s", resp.NewPriceYes)
	}
	if !resp.NewBalancePoints.Equal(d(900)) {
		t.Fatalf("balance: expected 900, got %s", resp.NewBalancePoints)
	}
	if !approxEqual(resp.Odds["yes"].Add(resp.Odds["no"]), d(1)) {
		t.Fatalf("odds do not sum to 1: %+v", resp.Odds)
	}

	// The market snapshot reflects the committed reserves.
	rec = a.do(t, "GET", "/markets/"+m.ID, "", false, nil)
	got := decode[MarketOut](t, rec)
	if !approxEqual(got.NoPoolPoints, d(600)) {
		t.Fatalf("no pool: expected 600, got %s", got.NoPoolPoints)
	}
	if !approxEqual(got.YesPoolPoints, d(416.66666667)) {
		t.Fatalf("yes pool: expected ~416.6667, got %s", got.YesPoolPoints)
	}
}

func TestTrade_InsufficientBalance(t *testing.T) {
	a := newTestAPI(t)
	tok := a.register(t, "pauper")
	m := a.createMarket(t, 500, 500)

	rec := a.do(t, "POST", "/markets/"+m.ID+"/trade", tok, false, TradeRequest{
		Side: model.SideYes, AmountPoints: d(2000),
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for overdraw, got %d %s", rec.Code, rec.Body.String())
	}

	// Nothing changed.
	rec = a.do(t, "GET", "/markets/"+m.ID, "", false, nil)
	got := decode[MarketOut](t, rec)
	if !got.YesPoolPoints.Equal(d(500)) || !got.NoPoolPoints.Equal(d(500)) {
		t.Fatalf("reserves changed on rejected trade: %s / %s", got.YesPoolPoints, got.NoPoolPoints)
	}
	rec = a.do(t, "GET", "/users/me", tok, false, nil)
	me := decode[meResponse](t, rec)
	if !me.BalancePoints.Equal(d(1000)) {
		t.Fatalf("balance changed on rejected trade: %s", me.BalancePoints)
	}
}

func TestTrade_ClosedMarketRejected(t *testing.T) {
	a := newTestAPI(t)
	tok := a.register(t, "alice")
	m := a.createMarket(t, 500, 500)

	rec := a.do(t, "POST", "/admin/markets/"+m.ID+"/close", "", true, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("close: %d %s", rec.Code, rec.Body.String())
	}

	rec = a.do(t, "POST", "/markets/"+m.ID+"/trade", tok, false, TradeRequest{
		Side: model.SideNo, AmountPoints: d(10),
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for closed market, got %d", rec.Code)
	}
}

func TestTrade_Validation(t *testing.T) {
	a := newTestAPI(t)
	tok := a.register(t, "alice")
	m := a.createMarket(t, 500, 500)

	rec := a.do(t, "POST", "/markets/"+m.ID+"/trade", tok, false, TradeRequest{
		Side: "MAYBE", AmountPoints: d(10),
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad side, got %d", rec.Code)
	}

	rec = a.do(t, "POST", "/markets/"+m.ID+"/trade", tok, false, TradeRequest{
		Side: model.SideYes, AmountPoints: d(0),
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero amount, got %d", rec.Code)
	}

	rec = a.do(t, "POST", "/markets/unknown/trade", tok, false, TradeRequest{
		Side: model.SideYes, AmountPoints: d(10),
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown market, got %d", rec.Code)
	}

	rec = a.do(t, "POST", "/markets/"+m.ID+"/trade", "", false, TradeRequest{
		Side: model.SideYes, AmountPoints: d(10),
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestTrade_ConcurrentBuyersNoLostUpdate(t *testing.T) {
	a := newTestAPI(t)
	tok := a.register(t, "alice")
	m := a.createMarket(t, 500, 500)

	// 4 concurrent YES buys of 50 each compose to the same end state as
	// one 200-point buy: k is preserved and every debit lands.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := a.do(t, "POST", "/markets/"+m.ID+"/trade", tok, false, TradeRequest{
				Side: model.SideYes, AmountPoints: d(50),
			})
			if rec.Code != http.StatusOK {
				t.Errorf("concurrent trade failed: %d %s", rec.Code, rec.Body.String())
			}
		}()
	}
	wg.Wait()

	rec := a.do(t, "GET", "/markets/"+m.ID, "", false, nil)
	got := decode[MarketOut](t, rec)
	if !approxEqual(got.NoPoolPoints, d(700)) {
		t.Fatalf("no pool: expected 700, got %s", got.NoPoolPoints)
	}
	if !approxEqual(got.YesPoolPoints, d(357.14285714)) {
		t.Fatalf("yes pool: expected ~357.1429, got %s", got.YesPoolPoints)
	}
	if !approxEqual(got.YesPoolPoints.Mul(got.NoPoolPoints), d(250000)) {
		t.Fatalf("k drifted: %s", got.YesPoolPoints.Mul(got.NoPoolPoints))
	}

	rec = a.do(t, "GET", "/users/me", tok, false, nil)
	me := decode[meResponse](t, rec)
	if !me.BalancePoints.Equal(d(800)) {
		t.Fatalf("balance: expected 800, got %s", me.BalancePoints)
	}

	rec = a.do(t, "GET", "/users/me/positions", tok, false, nil)
	positions := decode[[]PositionOut](t, rec)
	if len(positions) != 1 {
		t.Fatalf("expected 1 position, got %d", len(positions))
	}
	if !approxEqual(positions[0].YesShares, d(142.85714286)) {
		t.Fatalf("yes shares: expected ~142.8571, got %s", positions[0].YesShares)
	}
}

func TestSettlementFlow_EndToEnd(t *testing.T) {
	a := newTestAPI(t)
	aliceTok := a.register(t, "alice")
	bobTok := a.register(t, "bob")
	m := a.createMarket(t, 500, 500)

	rec := a.do(t, "POST", "/markets/"+m.ID+"/trade", aliceTok, false, TradeRequest{
		Side: model.SideYes, AmountPoints: d(100),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("alice trade: %d %s", rec.Code, rec.Body.String())
	}
	aliceFill := decode[TradeResponse](t, rec).FilledShares

	rec = a.do(t, "POST", "/markets/"+m.ID+"/trade", bobTok, false, TradeRequest{
		Side: model.SideNo, AmountPoints: d(50),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("bob trade: %d %s", rec.Code, rec.Body.String())
	}

	// Settle before close is rejected.
	rec = a.do(t, "POST", "/admin/markets/"+m.ID+"/settle", "", true, map[string]any{"winner": "YES"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 settling open market, got %d", rec.Code)
	}
	// Delete before settle is rejected.
	rec = a.do(t, "DELETE", "/admin/markets/"+m.ID, "", true, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 deleting unsettled market, got %d", rec.Code)
	}

	rec = a.do(t, "POST", "/admin/markets/"+m.ID+"/close", "", true, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("close: %d %s", rec.Code, rec.Body.String())
	}
	rec = a.do(t, "POST", "/admin/markets/"+m.ID+"/close", "", true, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on second close, got %d", rec.Code)
	}

	rec = a.do(t, "POST", "/admin/markets/"+m.ID+"/settle", "", true, map[string]any{"winner": "YES"})
	if rec.Code != http.StatusOK {
		t.Fatalf("settle: %d %s", rec.Code, rec.Body.String())
	}

	// Each winning share pays exactly 1 point.
	rec = a.do(t, "GET", "/users/me", aliceTok, false, nil)
	alice := decode[meResponse](t, rec)
	want := d(1000).Sub(d(100)).Add(aliceFill)
	if !approxEqual(alice.BalancePoints, want) {
		t.Fatalf("alice balance: expected %s, got %s", want, alice.BalancePoints)
	}

	// Loser keeps only what they never spent.
	rec = a.do(t, "GET", "/users/me", bobTok, false, nil)
	bob := decode[meResponse](t, rec)
	if !bob.BalancePoints.Equal(d(950)) {
		t.Fatalf("bob balance: expected 950, got %s", bob.BalancePoints)
	}

	// Second settle pays nothing.
	rec = a.do(t, "POST", "/admin/markets/"+m.ID+"/settle", "", true, map[string]any{"winner": "YES"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on second settle, got %d", rec.Code)
	}

	// Delete now succeeds and cascades.
	rec = a.do(t, "DELETE", "/admin/markets/"+m.ID, "", true, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: %d %s", rec.Code, rec.Body.String())
	}
	rec = a.do(t, "GET", "/markets/"+m.ID, "", false, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
	rec = a.do(t, "GET", "/users/me/positions", aliceTok, false, nil)
	if positions := decode[[]PositionOut](t, rec); len(positions) != 0 {
		t.Fatalf("positions not cascaded: %+v", positions)
	}
}

func TestSettle_RejectsBadWinner(t *testing.T) {
	a := newTestAPI(t)
	m := a.createMarket(t, 500, 500)
	a.do(t, "POST", "/admin/markets/"+m.ID+"/close", "", true, nil)

	rec := a.do(t, "POST", "/admin/markets/"+m.ID+"/settle", "", true, map[string]any{"winner": "MAYBE"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad winner, got %d", rec.Code)
	}
}

func TestMarketTrades_History(t *testing.T) {
	a := newTestAPI(t)
	tok := a.register(t, "alice")
	m := a.createMarket(t, 500, 500)

	for _, amt := range []float64{40, 60} {
		rec := a.do(t, "POST", "/markets/"+m.ID+"/trade", tok, false, TradeRequest{
			Side: model.SideYes, AmountPoints: d(amt),
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("trade: %d %s", rec.Code, rec.Body.String())
		}
	}

	rec := a.do(t, "GET", "/markets/"+m.ID+"/trades", "", false, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history: %d", rec.Code)
	}
	trades := decode[[]model.Trade](t, rec)
	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}
	// Oldest first, so the ledger replays in order.
	if !trades[0].SpendPoints.Equal(d(40)) || !trades[1].SpendPoints.Equal(d(60)) {
		t.Fatalf("unexpected order: %s then %s", trades[0].SpendPoints, trades[1].SpendPoints)
	}

	rec = a.do(t, "GET", "/markets/unknown/trades", "", false, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown market, got %d", rec.Code)
	}
}

func TestLeaderboard_OrdersByBalance(t *testing.T) {
	a := newTestAPI(t)
	a.register(t, "rich")
	poorTok := a.register(t, "poor")
	m := a.createMarket(t, 500, 500)

	// poor spends, rich doesn't.
	rec := a.do(t, "POST", "/markets/"+m.ID+"/trade", poorTok, false, TradeRequest{
		Side: model.SideNo, AmountPoints: d(300),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("trade: %d %s", rec.Code, rec.Body.String())
	}
	rec = a.do(t, "GET", "/users/leaderboard", "", false, nil)
	board := decode[[]map[string]any](t, rec)
	if len(board) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(board))
	}
	if board[0]["username"] != "rich" || board[1]["username"] != "poor" {
		t.Fatalf("unexpected order: %v", board)
	}
}

func TestMyBets_IncludesMarketContext(t *testing.T) {
	a := newTestAPI(t)
	tok := a.register(t, "alice")
	m := a.createMarket(t, 500, 500)

	rec := a.do(t, "POST", "/markets/"+m.ID+"/trade", tok, false, TradeRequest{
		Side: model.SideYes, AmountPoints: d(25),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("trade: %d %s", rec.Code, rec.Body.String())
	}

	rec = a.do(t, "GET", "/users/me/bets", tok, false, nil)
	bets := decode[[]map[string]any](t, rec)
	if len(bets) != 1 {
		t.Fatalf("expected 1 bet, got %d", len(bets))
	}
	if bets[0]["question"] == nil || bets[0]["market_id"] != m.ID {
		t.Fatalf("bet missing market context: %v", bets[0])
	}
}

func TestMyPositions_MarkToMarket(t *testing.T) {
	a := newTestAPI(t)
	tok := a.register(t, "alice")
	m := a.createMarket(t, 500, 500)

	rec := a.do(t, "POST", "/markets/"+m.ID+"/trade", tok, false, TradeRequest{
		Side: model.SideYes, AmountPoints: d(100),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("trade: %d %s", rec.Code, rec.Body.String())
	}
	resp := decode[TradeResponse](t, rec)

	rec = a.do(t, "GET", "/users/me/positions", tok, false, nil)
	positions := decode[[]PositionOut](t, rec)
	if len(positions) != 1 {
		t.Fatalf("expected 1 position, got %d", len(positions))
	}
	p := positions[0]
	if !p.Open {
		t.Fatal("position should report the market open")
	}
	wantEst := resp.FilledShares.Mul(resp.NewPriceYes)
	if !approxEqual(p.EstValuePoints, wantEst) {
		t.Fatalf("est value: expected %s, got %s", wantEst, p.EstValuePoints)
	}
}

func TestListMarkets_StatusFilter(t *testing.T) {
	a := newTestAPI(t)
	m1 := a.createMarket(t, 500, 500)
	a.createMarket(t, 300, 700)
	a.do(t, "POST", "/admin/markets/"+m1.ID+"/close", "", true, nil)

	rec := a.do(t, "GET", "/markets?status=open", "", false, nil)
	open := decode[[]MarketOut](t, rec)
	if len(open) != 1 {
		t.Fatalf("expected 1 open market, got %d", len(open))
	}

	rec = a.do(t, "GET", "/markets", "", false, nil)
	all := decode[[]MarketOut](t, rec)
	if len(all) != 2 {
		t.Fatalf("expected 2 markets, got %d", len(all))
	}

	rec = a.do(t, "GET", "/markets?status=bogus", "", false, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad status, got %d", rec.Code)
	}
}

func TestOpenMarketsGauge_ResyncFromStore(t *testing.T) {
	a := newTestAPI(t)
	a.createMarket(t, 500, 500)
	m := a.createMarket(t, 500, 500)
	rec := a.do(t, "POST", "/admin/markets/"+m.ID+"/close", "", true, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("close: %d", rec.Code)
	}

	// A restart loses the gauge; resync rebuilds it from the store.
	metrics.OpenMarkets.Set(0)
	if err := a.svc.ResyncOpenMarkets(context.Background()); err != nil {
		t.Fatalf("resync: %v", err)
	}
	if got := testutil.ToFloat64(metrics.OpenMarkets); got != 1 {
		t.Fatalf("expected gauge 1, got %v", got)
	}
}

func TestAdminViews(t *testing.T) {
	a := newTestAPI(t)
	tok := a.register(t, "alice")
	m := a.createMarket(t, 500, 500)

	rec := a.do(t, "POST", "/markets/"+m.ID+"/trade", tok, false, TradeRequest{
		Side: model.SideYes, AmountPoints: d(10),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("trade: %d", rec.Code)
	}

	rec = a.do(t, "GET", "/admin/users", "", true, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin users: %d", rec.Code)
	}
	rec = a.do(t, "GET", "/admin/markets", "", true, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin markets: %d", rec.Code)
	}
	rec = a.do(t, "GET", "/admin/bets?limit=10", "", true, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin bets: %d", rec.Code)
	}
	if bets := decode[[]model.Trade](t, rec); len(bets) != 1 {
		t.Fatalf("expected 1 bet, got %d", len(bets))
	}

	rec = a.do(t, "GET", "/admin/bets?limit=0", "", true, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rec.Code)
	}

	// Admin can seed accounts directly, with a role.
	rec = a.do(t, "POST", "/admin/users", "", true, map[string]any{
		"username": "oracle", "starting_points": "250", "role": "admin",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("admin create user: %d %s", rec.Code, rec.Body.String())
	}
	seeded := decode[map[string]any](t, rec)
	if seeded["role"] != "admin" {
		t.Fatalf("expected admin role, got %v", seeded["role"])
	}
}
