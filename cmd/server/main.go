package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/chocolingo/server/internal/api"
	"github.com/chocolingo/server/internal/auth"
	"github.com/chocolingo/server/internal/content"
	"github.com/chocolingo/server/internal/platform/cache"
	"github.com/chocolingo/server/internal/platform/config"
	"github.com/chocolingo/server/internal/platform/database"
	"github.com/chocolingo/server/internal/progress"
	"github.com/chocolingo/server/internal/quiz"
)

func main() {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.Log))
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Persistence: Postgres when configured, in-memory otherwise.
	var store quiz.Store
	var db *database.DB
	if cfg.Database.URL != "" {
		db, err = database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		pg, err := quiz.NewPostgresStore(ctx, db.Pool)
		if err != nil {
			slog.Error("failed to initialize store", "error", err)
			os.Exit(1)
		}
		store = pg
		slog.Info("using postgres store")
	} else {
		store = quiz.NewMemoryStore()
		slog.Warn("no database configured, using in-memory store")
	}

	// Cache: token store and knowledge-map cache when configured.
	var redis *cache.Cache
	var tokens auth.TokenStore
	var mapCache progress.MapCache
	if cfg.Cache.URL != "" {
		redis, err = cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			slog.Error("failed to connect to cache", "error", err)
			os.Exit(1)
		}
		defer redis.Close()
		tokens = auth.NewRedisTokenStore(redis)
		mapCache = redis
		slog.Info("using redis cache")
	} else {
		tokens = auth.NewMemoryTokenStore()
		slog.Warn("no cache configured, using in-memory tokens")
	}

	// Seed topics and questions from content packs on first boot.
	packs, err := content.LoadDir(cfg.Content.PacksDir)
	if err != nil {
		slog.Error("failed to load content packs", "dir", cfg.Content.PacksDir, "error", err)
		os.Exit(1)
	}
	if err := content.Seed(ctx, store, packs); err != nil {
		slog.Error("failed to seed content", "error", err)
		os.Exit(1)
	}

	broker := progress.NewBroker()
	progressSvc := progress.NewService(progress.ServiceConfig{
		Store:  store,
		Cache:  mapCache,
		Broker: broker,
	})
	quizSvc := quiz.NewService(quiz.ServiceConfig{
		Store:    store,
		Listener: progressSvc,
	})
	authSvc := auth.NewService(auth.ServiceConfig{
		Store:    store,
		Tokens:   tokens,
		TokenTTL: time.Duration(cfg.Auth.TokenTTL) * time.Hour,
	})

	if cfg.Auth.AdminUsername != "" {
		if err := authSvc.EnsureAdmin(ctx, cfg.Auth.AdminUsername, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
			slog.Error("failed to bootstrap admin", "error", err)
			os.Exit(1)
		}
	}

	handler := api.New(api.Config{
		Quiz:     quizSvc,
		Progress: progressSvc,
		Auth:     authSvc,
		Store:    store,
		Broker:   broker,
	})
	mux := newMux(handler, db, redis)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

// newLogger builds the process logger from the log config.
func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// newMux mounts the API routes alongside the health check endpoints.
func newMux(handler *api.Handler, db *database.DB, redis *cache.Cache) *http.ServeMux {
	mux := handler.Routes()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", handleReadyz(db, redis))
	return mux
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz reports ready once every configured backend answers a ping.
// Backends running in-memory have nothing to check.
func handleReadyz(db *database.DB, redis *cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if db != nil {
			if err := db.HealthCheck(r.Context()); err != nil {
				slog.Warn("database not ready", "error", err)
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"unavailable","reason":"database"}`))
				return
			}
		}
		if redis != nil {
			if err := redis.HealthCheck(r.Context()); err != nil {
				slog.Warn("cache not ready", "error", err)
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"unavailable","reason":"cache"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}
}
