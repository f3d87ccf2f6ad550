package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/shubhamtaywade82/dhan-scalper/internal/api"
	"github.com/shubhamtaywade82/dhan-scalper/internal/book"
	"github.com/shubhamtaywade82/dhan-scalper/internal/broker"
	"github.com/shubhamtaywade82/dhan-scalper/internal/equity"
	"github.com/shubhamtaywade82/dhan-scalper/internal/feed"
	"github.com/shubhamtaywade82/dhan-scalper/internal/journal"
	"github.com/shubhamtaywade82/dhan-scalper/internal/ledger"
	"github.com/shubhamtaywade82/dhan-scalper/internal/limits"
	"github.com/shubhamtaywade82/dhan-scalper/internal/metrics"
	"github.com/shubhamtaywade82/dhan-scalper/internal/model"
	"github.com/shubhamtaywade82/dhan-scalper/internal/risk"
	"github.com/shubhamtaywade82/dhan-scalper/internal/txn"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	sessionID := uuid.New().String()
	startingBalance := envDecimal("STARTING_BALANCE", "100000")

	// --- Journal ---
	var store journal.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		store = journal.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory journal (session record will not persist)")
		store = journal.NewMemoryStore()
	}

	// --- Idempotency ---
	var idem txn.IdempotencyStore
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		idem = txn.NewRedisIdempotencyStore(rdb)
		slog.Info("Redis idempotency store enabled")
	} else {
		idem = txn.NewMemoryIdempotencyStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Core state ---
	sessionLedger := ledger.New(startingBalance)
	positions := book.New()
	ticks := feed.NewTickCache()
	calc := equity.New(sessionLedger, positions, ticks)

	// --- Exposure limits ---
	limiter := limits.NewPositionLimiter(
		envDecimal("MAX_NOTIONAL_PER_INSTRUMENT", "0"),
		envDecimal("MAX_NOTIONAL_SESSION", "0"),
	)

	// --- Broker ---
	// Paper is the only strategy wired in; a live adapter slots in ahead
	// of it once broker credentials exist.
	br, err := broker.Connect(context.Background(), 250*time.Millisecond,
		broker.Strategy{
			Name: "paper",
			Build: func(ctx context.Context) (broker.Broker, error) {
				return broker.NewPaper(ticks), nil
			},
		},
	)
	if err != nil {
		slog.Error("broker bootstrap failed", "err", err)
		os.Exit(1)
	}

	// --- Transaction coordinator ---
	coord := txn.New(sessionID, sessionLedger, positions, store, br, idem, limiter)

	// --- WebSocket hub ---
	wsHub := api.NewWSHub()
	go wsHub.Run()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// --- Market data feed ---
	if feedURL := os.Getenv("FEED_URL"); feedURL != "" {
		wsFeed := feed.NewWebsocketFeed(feedURL, ticks, func(tk feed.Tick) {
			for _, side := range []model.Side{model.Long, model.Short} {
				positions.RefreshPrice(model.PositionKey{
					Segment:    tk.Segment,
					SecurityID: tk.SecurityID,
					Side:       side,
				}, tk.LTP)
			}
		})
		go wsFeed.Run(ctx)
		slog.Info("market data feed enabled", "url", feedURL)
	} else {
		slog.Warn("FEED_URL not set, positions mark off the risk loop only")
	}

	// --- Risk engine ---
	riskCfg := risk.Config{
		Interval:            envDuration("RISK_INTERVAL_MS", 1000) * time.Millisecond,
		MinRefreshInterval:  envDuration("MIN_REFRESH_MS", 250) * time.Millisecond,
		TakeProfitPct:       envDecimal("TP_PCT", "0.35"),
		StopLossPct:         envDecimal("SL_PCT", "0.18"),
		TrailingStopPct:     envDecimal("TRAILING_PCT", "0.10"),
		TrailingActivatePct: envDecimal("TRAILING_ACTIVATE_PCT", "0.15"),
		TimeStop:            envDuration("TIME_STOP_SECONDS", 420) * time.Second,
		MaxDailyLoss:        envDecimal("MAX_DAILY_LOSS", "2500"),
		Cooldown:            envDuration("COOLDOWN_SECONDS", 180) * time.Second,
		ExitFee:             envDecimal("FEE_PER_ORDER", "20"),
		EnableTakeProfit:    envBool("ENABLE_TP", true),
		EnableStopLoss:      envBool("ENABLE_SL", true),
		EnableTrailingStop:  envBool("ENABLE_TRAILING", true),
		EnableTimeStop:      envBool("ENABLE_TIME_STOP", true),
		EnableDailyLossCap:  envBool("ENABLE_DAILY_LOSS_CAP", true),
	}
	engine := risk.New(riskCfg, sessionID, sessionLedger, positions, calc, coord, ticks, store)
	go engine.Run(ctx)

	// --- API service ---
	svc := api.NewService(sessionID, coord, sessionLedger, positions, calc, engine, store, wsHub)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for dashboard cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"dhan-scalper"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time fill/equity updates.
		r.Get("/ws", wsHub.HandleWS)

		// Session queries.
		r.Get("/equity", svc.GetEquity)
		r.Get("/equity/curve", svc.GetEquityCurve)
		r.Get("/positions", svc.GetPositions)
		r.Get("/ledger", svc.GetLedger)
		r.Get("/session", svc.GetSession)
		r.Get("/trades", svc.GetTrades)

		// Order submission.
		r.Post("/orders/entry", svc.SubmitEntry)
		r.Post("/orders/exit", svc.SubmitExit)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("dhan-scalper listening", "port", port, "session", sessionID)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	stop() // end the risk loop and the feed before closing HTTP

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down dhan-scalper...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("dhan-scalper stopped")
}

// envDecimal reads a decimal env var, falling back to def. An
// unparseable value is a config bug, not something to trade with.
func envDecimal(key, def string) decimal.Decimal {
	raw := os.Getenv(key)
	if raw == "" {
		raw = def
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		slog.Error("invalid decimal config", "key", key, "value", raw)
		os.Exit(1)
	}
	return v
}

// envDuration reads an integer env var as a count of some unit the
// caller multiplies in, falling back to def.
func envDuration(key string, def int64) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return time.Duration(def)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		slog.Error("invalid integer config", "key", key, "value", raw)
		os.Exit(1)
	}
	return time.Duration(v)
}

func envBool(key string, def bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		slog.Error("invalid boolean config", "key", key, "value", raw)
		os.Exit(1)
	}
	return v
}
