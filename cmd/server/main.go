package main

import (
	"context"
	"flag"
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

	"github.com/offchain/fund-engine/internal/address"
	"github.com/offchain/fund-engine/internal/api"
	"github.com/offchain/fund-engine/internal/asset"
	"github.com/offchain/fund-engine/internal/config"
	"github.com/offchain/fund-engine/internal/fund"
	"github.com/offchain/fund-engine/internal/metrics"
	"github.com/offchain/fund-engine/internal/scheduler"
	"github.com/offchain/fund-engine/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	configPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if cfg.Database.URL != "" {
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		pg := store.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			slog.Error("database migration failed", "err", err)
			os.Exit(1)
		}
		st = pg
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.Redis.URL != "" {
			opt, err := redis.ParseURL(cfg.Redis.URL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.Redis.CacheTTL)
			slog.Info("Redis cache enabled", "ttl", cfg.Redis.CacheTTL)
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (journal will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Fund ---
	f, ledger, err := newFund(cfg)
	if err != nil {
		slog.Error("fund setup failed", "err", err)
		os.Exit(1)
	}

	// --- NAV snapshots ---
	sched := scheduler.NewScheduler(ctx, f, st)
	if err := sched.RegisterSnapshot(cfg.Schedule.SnapshotCron); err != nil {
		slog.Error("scheduler setup failed", "err", err)
		os.Exit(1)
	}
	sched.Start()
	defer sched.Stop()

	// --- WebSocket hub ---
	wsHub := api.NewWSHub()
	go wsHub.Run()
	defer wsHub.Close()

	svc := api.NewService(f, st, sched, wsHub)
	assets := api.NewAssetService(ledger, f)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+api.CallerHeader)
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"fund-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// The WebSocket route is long-lived; only the JSON routes get a timeout.
		r.Get("/ws", wsHub.HandleWS)
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			svc.Routes(r)
			assets.Routes(r)
		})
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("fund-engine listening", "port", cfg.Server.Port, "fund", cfg.Fund.Symbol)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down fund-engine...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("fund-engine stopped")
}

// newFund builds the fund over an in-process asset ledger and applies the
// configured whitelist.
func newFund(cfg *config.Config) (*fund.Fund, *asset.Ledger, error) {
	owner, err := address.Parse(cfg.Fund.Owner)
	if err != nil {
		return nil, nil, err
	}
	account, err := address.Parse(cfg.Fund.Account)
	if err != nil {
		return nil, nil, err
	}
	var custodian address.Address
	if cfg.Fund.Custodian != "" {
		if custodian, err = address.Parse(cfg.Fund.Custodian); err != nil {
			return nil, nil, err
		}
	}
	price, err := cfg.InitialPriceUnits()
	if err != nil {
		return nil, nil, err
	}
	capUnits, err := cfg.CapUnits()
	if err != nil {
		return nil, nil, err
	}

	ledger := asset.NewLedger(cfg.Asset.Symbol, cfg.Asset.Decimals)
	f, err := fund.New(fund.Config{
		Name:         cfg.Fund.Name,
		Symbol:       cfg.Fund.Symbol,
		Owner:        owner,
		Account:      account,
		Custodian:    custodian,
		InitialPrice: price,
		Cap:          capUnits,
	}, ledger)
	if err != nil {
		return nil, nil, err
	}

	investors, err := address.ParseList(cfg.Fund.Whitelist)
	if err != nil {
		return nil, nil, err
	}
	for _, inv := range investors {
		if _, _, err := f.AddToWhitelist(owner, inv); err != nil {
			return nil, nil, fmt.Errorf("whitelist %s: %w", inv, err)
		}
	}

	metrics.ObserveState(f.Snapshot(), f.AssetDecimals())
	slog.Info("fund ready",
		"name", cfg.Fund.Name,
		"owner", owner.Short(),
		"custodian", f.Custodian().Short(),
		"asset", cfg.Asset.Symbol,
		"asset_decimals", cfg.Asset.Decimals,
		"whitelisted", len(investors),
	)
	return f, ledger, nil
}
