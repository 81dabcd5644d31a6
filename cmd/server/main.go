package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/p-n-ai/pai-academy/internal/api"
	"github.com/p-n-ai/pai-academy/internal/auth"
	"github.com/p-n-ai/pai-academy/internal/course"
	"github.com/p-n-ai/pai-academy/internal/platform/config"
	"github.com/p-n-ai/pai-academy/internal/progress"
	"github.com/p-n-ai/pai-academy/internal/report"
)

func main() {
	// A missing .env file is fine; the environment may be set directly.
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

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	b, err := openBackend(ctx, cfg)
	if err != nil {
		slog.Error("failed to open storage", "storage", cfg.Storage, "error", err)
		os.Exit(1)
	}
	defer b.Close()

	if cfg.SeedCatalog {
		if _, err := course.Seed(ctx, b.courses, cfg.CatalogPath, time.Now()); err != nil {
			slog.Error("failed to seed catalog", "path", cfg.CatalogPath, "error", err)
		}
	}

	tokens, err := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.AccessTTL())
	if err != nil {
		slog.Error("failed to configure tokens", "error", err)
		os.Exit(1)
	}

	apiServer, err := api.New(api.Config{
		Auth:    auth.NewService(b.users, tokens),
		Courses: course.NewService(b.courses, b.users),
		Progress: progress.NewEngine(progress.EngineConfig{
			Users:    b.users,
			Courses:  b.courses,
			Activity: b.activity,
			Broker:   b.broker,
		}),
		Broker:  b.broker,
		Reports: report.NewGenerator(b.users, b.courses),
	})
	if err != nil {
		slog.Error("failed to build api", "error", err)
		os.Exit(1)
	}

	mux := newMux(b.checks...)
	apiServer.Register(mux)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.CORS(cfg.CORSOrigin, api.LogRequests(mux)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr, "storage", cfg.Storage, "cache", cfg.HasCache())
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

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// readinessCheck is a dependency probed by /readyz.
type readinessCheck struct {
	name  string
	check func(ctx context.Context) error
}

// newMux creates the HTTP router with health check endpoints.
func newMux(checks ...readinessCheck) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", handleReadyz(checks))
	return mux
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func handleReadyz(checks []readinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		for _, c := range checks {
			if err := c.check(ctx); err != nil {
				slog.Warn("readiness check failed", "dependency", c.name, "error", err)
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"unavailable","dependency":"` + c.name + `"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}
}
