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

	"github.com/assetpool/pool-engine/internal/governance"
	"github.com/assetpool/pool-engine/internal/metrics"
	"github.com/assetpool/pool-engine/internal/pool"
	"github.com/assetpool/pool-engine/internal/reward"
	"github.com/assetpool/pool-engine/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pgPool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pgPool.Close)
		st = store.NewPostgresStore(pgPool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
			opt, err := redis.ParseURL(redisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, 30*time.Second)
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

	// --- WebSocket hub ---
	hub := pool.NewHub()
	go hub.Run()

	// --- Engines ---
	poolSvc := pool.NewService(st, hub)
	govEngine := governance.NewEngine(st, poolSvc, hub)

	// --- Reward distributor ---
	interval := 60 * time.Second
	if v := os.Getenv("DISTRIBUTION_INTERVAL"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			slog.Error("invalid DISTRIBUTION_INTERVAL", "err", err)
			os.Exit(1)
		}
		interval = parsed
	}
	distributor := reward.NewDistributor(st, poolSvc, hub, interval)

	distCtx, stopDistributor := context.WithCancel(context.Background())
	defer stopDistributor()
	go distributor.Run(distCtx)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
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
		w.Write([]byte(`{"status":"ok","service":"pool-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time pool events.
		r.Get("/ws", hub.HandleWS)

		// Pool registry.
		r.Get("/pools", poolSvc.HandleListPools)
		r.Post("/pools", poolSvc.HandleCreatePool)
		r.Get("/pools/{poolID}", poolSvc.HandleGetPool)
		r.Get("/pools/{poolID}/metrics", poolSvc.HandlePoolMetrics)
		r.Post("/pools/{poolID}/status", poolSvc.HandleSetPoolStatus)
		r.Get("/pools/{poolID}/rewards", poolSvc.HandlePoolRewards)
		r.Get("/pools/{poolID}/swap-quote", poolSvc.HandleSwapQuote)

		// Liquidity.
		r.Post("/pools/{poolID}/liquidity", poolSvc.HandleAddLiquidity)
		r.Delete("/pools/{poolID}/liquidity", poolSvc.HandleRemoveLiquidity)

		// Staking.
		r.Post("/pools/{poolID}/stake", poolSvc.HandleStake)
		r.Post("/pools/{poolID}/unstake", poolSvc.HandleUnstake)

		// Yield farming.
		r.Post("/pools/{poolID}/farm", poolSvc.HandleEnterFarm)
		r.Post("/pools/{poolID}/farm/exit", poolSvc.HandleExitFarm)

		// Rewards.
		r.Post("/pools/{poolID}/claim", poolSvc.HandleClaim)

		// Governance.
		r.Get("/pools/{poolID}/proposals", govEngine.HandleListProposals)
		r.Post("/pools/{poolID}/proposals", govEngine.HandleCreateProposal)
		r.Get("/pools/{poolID}/proposals/{proposalID}", govEngine.HandleGetProposal)
		r.Post("/pools/{poolID}/proposals/{proposalID}/vote", govEngine.HandleVote)
		r.Post("/pools/{poolID}/proposals/{proposalID}/execute", govEngine.HandleExecute)

		// Positions.
		r.Get("/positions/{userAddress}", poolSvc.HandleUserPositions)
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
		slog.Info("pool-engine listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	stopDistributor()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down pool-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("pool-engine stopped")
}
