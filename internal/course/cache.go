package course

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/p-n-ai/pai-academy/internal/platform/cache"
)

const defaultCacheTTL = 10 * time.Minute

// CachedStore puts a Redis read-through cache in front of another Store.
// Single-course reads are cached; writes invalidate the entry. Cache errors
// are logged and fall back to the underlying store.
type CachedStore struct {
	Store
	cache *cache.Cache
	ttl   time.Duration
}

// NewCachedStore wraps next with a Redis cache. A zero ttl uses the default.
func NewCachedStore(next Store, c *cache.Cache, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachedStore{Store: next, cache: c, ttl: ttl}
}

func (s *CachedStore) Get(ctx context.Context, id string) (*Course, error) {
	key := s.cache.Key("course", id)

	data, err := s.cache.Client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var c Course
		if err := json.Unmarshal(data, &c); err == nil {
			return &c, nil
		}
		slog.Warn("discarding undecodable cached course", "course_id", id)
	case !errors.Is(err, redis.Nil):
		slog.Warn("course cache read failed", "course_id", id, "error", err)
	}

	c, err := s.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(c); err == nil {
		if err := s.cache.Client.Set(ctx, key, data, s.ttl).Err(); err != nil {
			slog.Warn("course cache write failed", "course_id", id, "error", err)
		}
	}
	return c, nil
}

func (s *CachedStore) Update(ctx context.Context, c *Course) error {
	if err := s.Store.Update(ctx, c); err != nil {
		return err
	}
	s.invalidate(ctx, c.ID)
	return nil
}

func (s *CachedStore) Delete(ctx context.Context, id string) error {
	if err := s.Store.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *CachedStore) IncrementEnrolled(ctx context.Context, id string, delta int) error {
	if err := s.Store.IncrementEnrolled(ctx, id, delta); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *CachedStore) invalidate(ctx context.Context, id string) {
	if err := s.cache.Client.Del(ctx, s.cache.Key("course", id)).Err(); err != nil {
		slog.Warn("course cache invalidation failed", "course_id", id, "error", err)
	}
}
