package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/atmx/portfolio-engine/internal/clients/exchangerate"
	"github.com/atmx/portfolio-engine/internal/config"
	"github.com/atmx/portfolio-engine/internal/fx"
	"github.com/atmx/portfolio-engine/internal/logging"
	"github.com/atmx/portfolio-engine/internal/metrics"
	"github.com/atmx/portfolio-engine/internal/portfolio"
	"github.com/atmx/portfolio-engine/internal/refresh"
	"github.com/atmx/portfolio-engine/internal/store"
	"github.com/atmx/portfolio-engine/internal/valuation"
)

func main() {
	configPath := flag.String("config", "portfolio.toml", "path to TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stdout)

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if dbURL := cfg.Storage.DatabaseURL; dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Database connection failed")
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		log.Info().Msg("Connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if redisURL := cfg.Storage.RedisURL; redisURL != "" {
			opt, err := redis.ParseURL(redisURL)
			if err != nil {
				log.Fatal().Err(err).Msg("Invalid redis_url")
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.Storage.GetCacheTTL())
			log.Info().Dur("ttl", cfg.Storage.GetCacheTTL()).Msg("Redis cache enabled")
		}
	} else {
		log.Warn().Msg("database_url not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Valuation ---
	resolver := fx.NewResolver(log)
	engine := valuation.NewEngine(cfg.BaseCurrency, resolver, log)

	// --- WebSocket hub ---
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	wsHub := portfolio.NewWSHub(log)
	go wsHub.Run(ctx)

	// --- Portfolio service ---
	svc := portfolio.NewService(st, engine, wsHub, log)

	// --- Background jobs ---
	sched := refresh.NewScheduler(log)
	if cfg.Refresh.Enabled {
		client := exchangerate.NewClient(log,
			exchangerate.WithBaseURL(cfg.Refresh.RatesURL),
			exchangerate.WithTimeout(cfg.Refresh.GetTimeout()),
			exchangerate.WithRateLimit(cfg.Refresh.RequestsPerSecond),
		)
		ratesJob := refresh.NewRatesJob(client, svc, 2*cfg.Refresh.GetTimeout(), log)
		if err := sched.AddJob(cfg.Refresh.Schedule, ratesJob); err != nil {
			log.Fatal().Err(err).Str("schedule", cfg.Refresh.Schedule).Msg("Invalid refresh schedule")
		}
		// Prime the live rates so the first stats request is not all identity rates.
		go func() {
			if err := sched.RunNow(ratesJob); err != nil {
				log.Warn().Err(err).Msg("Initial rate refresh failed")
			}
		}()
	}
	if cfg.Refresh.SnapshotSchedule != "" {
		snapJob := refresh.NewSnapshotJob(svc, 30*time.Second, log)
		if err := sched.AddJob(cfg.Refresh.SnapshotSchedule, snapJob); err != nil {
			log.Fatal().Err(err).Str("schedule", cfg.Refresh.SnapshotSchedule).Msg("Invalid snapshot schedule")
		}
	}
	sched.Start()

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Expose-Headers", "X-Rates-Source")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"portfolio-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time stats updates. Kept outside the
		// timeout group: the connection is long-lived.
		r.Get("/ws", wsHub.HandleWS)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			svc.Mount(r)
		})
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("base_currency", cfg.BaseCurrency).
			Msg("portfolio-engine listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down portfolio-engine...")
	sched.Stop()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}
	log.Info().Msg("portfolio-engine stopped")
}

// requestLogger logs each request with zerolog once the response is written.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("HTTP request")
		})
	}
}
