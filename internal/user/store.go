package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

// Store persists user documents. Reads and writes are whole-document;
// Save rejects a write whose Version no longer matches the stored one.
type Store interface {
	Create(ctx context.Context, u *User) error
	Get(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Save(ctx context.Context, u *User) error
	List(ctx context.Context) ([]*User, error)
	CountEnrolled(ctx context.Context, courseID string) (int, error)
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	users map[string]*User
	mu    sync.RWMutex
}

// NewMemoryStore creates a new in-memory user store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]*User),
	}
}

func (s *MemoryStore) Create(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Email == u.Email {
			return ErrEmailTaken
		}
	}
	u.Version = 1
	s.users[u.ID] = u.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return u.Clone(), nil
}

func (s *MemoryStore) GetByEmail(_ context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) Save(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.users[u.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != u.Version {
		return ErrVersionConflict
	}
	u.Version++
	u.UpdatedAt = time.Now()
	s.users[u.ID] = u.Clone()
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]*User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u.Clone())
	}
	slices.SortFunc(users, func(a, b *User) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return users, nil
}

func (s *MemoryStore) CountEnrolled(_ context.Context, courseID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, u := range s.users {
		if u.Enrollment(courseID) != nil {
			n++
		}
	}
	return n, nil
}

// Mutate runs a read-modify-write cycle on the user document. fn reports
// whether it changed the user; unchanged users are not saved. On a version
// conflict the cycle restarts from a fresh read, up to attempts times.
func Mutate(ctx context.Context, s Store, id string, attempts int, fn func(u *User) (bool, error)) (*User, error) {
	for attempt := 1; ; attempt++ {
		u, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}

		changed, err := fn(u)
		if err != nil {
			return nil, err
		}
		if !changed {
			return u, nil
		}

		err = s.Save(ctx, u)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, ErrVersionConflict) || attempt >= attempts {
			return nil, fmt.Errorf("save user: %w", err)
		}
		slog.Debug("user document changed concurrently, retrying", "user_id", id, "attempt", attempt)
	}
}
