// Package auth registers and authenticates users and issues their access
// tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/p-n-ai/pai-academy/internal/user"
)

const (
	avatarURL          = "https://api.dicebear.com/7.x/avataaars/svg?seed="
	defaultMaxAttempts = 3
)

// ErrInvalidCredentials is returned by Login for an unknown email or a wrong
// password. The two cases are not distinguished.
var ErrInvalidCredentials = errors.New("invalid email or password")

// Session is a user together with a freshly issued access token.
type Session struct {
	User  *user.User
	Token string
}

// Profile is the caller's own account view with derived statistics.
type Profile struct {
	*user.User
	CompletedCourses int `json:"completedCourses"`
	AverageScore     int `json:"averageScore"`
}

// Service implements registration, login and profile management.
type Service struct {
	users  user.Store
	tokens *Tokens
	now    func() time.Time
}

func NewService(users user.Store, tokens *Tokens) *Service {
	return &Service{users: users, tokens: tokens, now: time.Now}
}

// Tokens exposes the token issuer used by the service.
func (s *Service) Tokens() *Tokens {
	return s.tokens
}

// Register creates a student account and signs it in.
func (s *Service) Register(ctx context.Context, name, email, password string) (Session, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", user.ErrInvalid, err)
	}
	u, err := user.New(name, email, hash, user.RoleStudent, s.now())
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", user.ErrInvalid, err)
	}
	u.Avatar = avatarURL + url.QueryEscape(u.Email)

	if err := s.users.Create(ctx, u); err != nil {
		return Session{}, err
	}

	token, err := s.tokens.Issue(u)
	if err != nil {
		return Session{}, err
	}
	slog.Info("user registered", "user_id", u.ID)
	return Session{User: u, Token: token}, nil
}

// Login verifies credentials, applies the daily streak rule and signs the
// user in.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	normalized, err := user.NormalizeEmail(email)
	if err != nil {
		return Session{}, ErrInvalidCredentials
	}
	found, err := s.users.GetByEmail(ctx, normalized)
	if errors.Is(err, user.ErrNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, fmt.Errorf("find user: %w", err)
	}

	ok, err := CheckPassword(found.PasswordHash, password)
	if err != nil {
		return Session{}, err
	}
	if !ok {
		return Session{}, ErrInvalidCredentials
	}

	now := s.now()
	u, err := user.Mutate(ctx, s.users, found.ID, defaultMaxAttempts, func(u *user.User) (bool, error) {
		u.UpdateStreak(now)
		return true, nil
	})
	if err != nil {
		return Session{}, err
	}

	token, err := s.tokens.Issue(u)
	if err != nil {
		return Session{}, err
	}
	slog.Info("user logged in", "user_id", u.ID, "streak", u.Streak)
	return Session{User: u, Token: token}, nil
}

// Authenticate resolves a bearer token to the current user record.
func (s *Service) Authenticate(ctx context.Context, token string) (*user.User, error) {
	id, err := s.tokens.Parse(token)
	if err != nil {
		return nil, err
	}
	u, err := s.users.Get(ctx, id.UserID)
	if errors.Is(err, user.ErrNotFound) {
		return nil, fmt.Errorf("%w: user no longer exists", ErrInvalidToken)
	}
	return u, err
}

// Me returns the profile of userID.
func (s *Service) Me(ctx context.Context, userID string) (Profile, error) {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	return Profile{
		User:             u,
		CompletedCourses: u.CompletedCoursesCount(),
		AverageScore:     u.AverageScore(),
	}, nil
}

// UpdateProfile changes name, bio and location. An empty name keeps the
// current one.
func (s *Service) UpdateProfile(ctx context.Context, userID, name, bio, location string) (*user.User, error) {
	return user.Mutate(ctx, s.users, userID, defaultMaxAttempts, func(u *user.User) (bool, error) {
		if err := u.SetProfile(name, bio, location); err != nil {
			return false, fmt.Errorf("%w: %v", user.ErrInvalid, err)
		}
		return true, nil
	})
}

// SetRole changes the role of the user with the given email.
func (s *Service) SetRole(ctx context.Context, email string, role user.Role) (*user.User, error) {
	if _, err := user.ParseRole(string(role)); err != nil {
		return nil, fmt.Errorf("%w: %v", user.ErrInvalid, err)
	}
	normalized, err := user.NormalizeEmail(email)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", user.ErrInvalid, err)
	}
	found, err := s.users.GetByEmail(ctx, normalized)
	if err != nil {
		return nil, err
	}

	u, err := user.Mutate(ctx, s.users, found.ID, defaultMaxAttempts, func(u *user.User) (bool, error) {
		if u.Role == role {
			return false, nil
		}
		u.Role = role
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("user role changed", "user_id", u.ID, "role", role)
	return u, nil
}
