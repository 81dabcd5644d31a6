package course

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

// Filter narrows a course listing. Zero values match everything.
type Filter struct {
	Difficulty Difficulty
	Status     Status
	Tags       []string // matches courses sharing at least one tag
	Search     string   // case-insensitive substring of title or description
	ExcludeIDs []string
	Popular    bool // order by enrolled count instead of newest first
	Limit      int
}

// Match reports whether c passes every condition of the filter.
func (f Filter) Match(c *Course) bool {
	if f.Difficulty != "" && c.Difficulty != f.Difficulty {
		return false
	}
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	if len(f.Tags) > 0 && !slices.ContainsFunc(c.Tags, func(t string) bool { return slices.Contains(f.Tags, t) }) {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(c.Title), q) && !strings.Contains(strings.ToLower(c.Description), q) {
			return false
		}
	}
	return !slices.Contains(f.ExcludeIDs, c.ID)
}

// Store persists courses.
type Store interface {
	Create(ctx context.Context, c *Course) error
	Get(ctx context.Context, id string) (*Course, error)
	List(ctx context.Context, f Filter) ([]*Course, error)
	Update(ctx context.Context, c *Course) error
	Delete(ctx context.Context, id string) error
	IncrementEnrolled(ctx context.Context, id string, delta int) error
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	courses map[string]*Course
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory course store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		courses: make(map[string]*Course),
	}
}

func (s *MemoryStore) Create(_ context.Context, c *Course) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	s.courses[c.ID] = c.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.courses[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c.Clone(), nil
}

func (s *MemoryStore) List(_ context.Context, f Filter) ([]*Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Course
	for _, c := range s.courses {
		if f.Match(c) {
			out = append(out, c.Clone())
		}
	}

	slices.SortFunc(out, func(a, b *Course) int {
		if f.Popular && a.EnrolledCount != b.EnrolledCount {
			return b.EnrolledCount - a.EnrolledCount
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) Update(_ context.Context, c *Course) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.courses[c.ID]
	if !ok {
		return ErrNotFound
	}
	next := c.Clone()
	next.EnrolledCount = stored.EnrolledCount
	next.CreatedAt = stored.CreatedAt
	s.courses[c.ID] = next
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.courses[id]; !ok {
		return ErrNotFound
	}
	delete(s.courses, id)
	return nil
}

func (s *MemoryStore) IncrementEnrolled(_ context.Context, id string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.courses[id]
	if !ok {
		return ErrNotFound
	}
	c.EnrolledCount = max(c.EnrolledCount+delta, 0)
	return nil
}
