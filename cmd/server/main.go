package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/pointsmarket/engine/internal/auth"
	"github.com/pointsmarket/engine/internal/config"
	"github.com/pointsmarket/engine/internal/cpmm"
	"github.com/pointsmarket/engine/internal/metrics"
	"github.com/pointsmarket/engine/internal/store"
	"github.com/pointsmarket/engine/internal/trade"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)

		pg := store.NewPostgresStore(pool)
		if err := pg.EnsureSchema(context.Background()); err != nil {
			slog.Error("schema migration failed", "err", err)
			os.Exit(1)
		}
		st = pg
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.CacheTTL)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Pricing ---
	maker, err := cpmm.NewMaker(cfg.TradingFee)
	if err != nil {
		slog.Error("invalid trading fee", "err", err)
		os.Exit(1)
	}

	// --- Auth ---
	jwtSvc := auth.JWT{Secret: cfg.JWTSecret, TokenTTL: cfg.TokenTTL}

	// --- WebSocket hub ---
	wsHub := trade.NewWSHub()
	go wsHub.Run()

	// --- Trade service ---
	tradeSvc := trade.NewService(st, maker, jwtSvc, cfg.DefaultStartingPoints, wsHub)
	if err := tradeSvc.ResyncOpenMarkets(context.Background()); err != nil {
		slog.Warn("open-markets gauge resync failed", "err", err)
	}

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+auth.AdminHeader)
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"pointsmarket-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	// WebSocket endpoint for real-time price updates.
	r.Get("/ws", wsHub.HandleWS)

	// Public endpoints.
	r.Post("/auth/register", tradeSvc.Register)
	r.Post("/auth/login", tradeSvc.Login)
	r.Get("/markets", tradeSvc.ListMarkets)
	r.Get("/markets/{marketID}", tradeSvc.GetMarket)
	r.Get("/markets/{marketID}/trades", tradeSvc.GetMarketTrades)
	r.Get("/users/leaderboard", tradeSvc.Leaderboard)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(jwtSvc))
		r.Post("/markets/{marketID}/trade", tradeSvc.ExecuteTrade)
		r.Get("/users/me", tradeSvc.Me)
		r.Get("/users/me/positions", tradeSvc.MyPositions)
		r.Get("/users/me/bets", tradeSvc.MyBets)
	})

	// Admin endpoints: shared secret header or an admin-role token.
	r.Group(func(r chi.Router) {
		r.Use(auth.AdminMiddleware(jwtSvc, cfg.AdminToken))
		r.Post("/markets", tradeSvc.CreateMarket)
		r.Post("/admin/markets/{marketID}/close", tradeSvc.CloseMarket)
		r.Post("/admin/markets/{marketID}/settle", tradeSvc.SettleMarket)
		r.Delete("/admin/markets/{marketID}", tradeSvc.DeleteMarket)
		r.Get("/admin/users", tradeSvc.AdminListUsers)
		r.Post("/admin/users", tradeSvc.AdminCreateUser)
		r.Get("/admin/markets", tradeSvc.AdminListMarkets)
		r.Get("/admin/bets", tradeSvc.AdminListBets)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("pointsmarket-engine listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down pointsmarket-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("pointsmarket-engine stopped")
}
