package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/p-n-ai/pai-academy/internal/course"
	"github.com/p-n-ai/pai-academy/internal/platform/cache"
	"github.com/p-n-ai/pai-academy/internal/platform/config"
	"github.com/p-n-ai/pai-academy/internal/platform/database"
	"github.com/p-n-ai/pai-academy/internal/progress"
	"github.com/p-n-ai/pai-academy/internal/user"
)

// backend holds the stores selected by configuration.
type backend struct {
	users    user.Store
	courses  course.Store
	activity progress.ActivityLog
	broker   progress.Broker
	checks   []readinessCheck
	closers  []func()
}

// openBackend connects Postgres or in-memory stores, and layers the Redis
// course cache and event broker on top when a cache URL is configured.
func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	b := &backend{}

	switch cfg.Storage {
	case config.StorageMemory:
		b.users = user.NewMemoryStore()
		b.courses = course.NewMemoryStore()
		b.activity = progress.NewMemoryActivityLog()
		slog.Warn("using in-memory storage; data is lost on restart")

	case config.StoragePostgres:
		db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, db.Close)
		b.checks = append(b.checks, readinessCheck{name: "database", check: db.HealthCheck})

		if err := db.Migrate(ctx); err != nil {
			b.Close()
			return nil, err
		}
		if b.users, err = user.NewPostgresStore(db.Pool); err != nil {
			b.Close()
			return nil, err
		}
		if b.courses, err = course.NewPostgresStore(db.Pool); err != nil {
			b.Close()
			return nil, err
		}
		b.activity = progress.NewPostgresActivityLog(db.Pool)

	default:
		return nil, fmt.Errorf("unknown storage %q", cfg.Storage)
	}

	if !cfg.HasCache() {
		b.broker = progress.NewMemoryBroker()
		return b, nil
	}

	c, err := cache.New(ctx, cfg.Cache.URL, cfg.Cache.Prefix)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.closers = append(b.closers, func() { c.Close() })
	b.checks = append(b.checks, readinessCheck{name: "cache", check: c.HealthCheck})

	b.courses = course.NewCachedStore(b.courses, c, time.Duration(cfg.Cache.CourseTTL)*time.Second)
	b.broker = progress.NewRedisBroker(c)
	return b, nil
}

// Close releases connections in reverse order of opening.
func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}
