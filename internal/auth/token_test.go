package auth_test

import (
	"errors"
	"testing"
	"time"

	"github.com/p-n-ai/pai-academy/internal/auth"
	"github.com/p-n-ai/pai-academy/internal/user"
)

func TestTokens_RoundTrip(t *testing.T) {
	tokens, err := auth.NewTokens("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewTokens() error = %v", err)
	}
	u := &user.User{ID: "user-1", Role: user.RoleAdmin}

	token, err := tokens.Issue(u)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	id, err := tokens.Parse(token)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if id.UserID != "user-1" || id.Role != user.RoleAdmin {
		t.Errorf("Parse() = %+v, want user-1/admin", id)
	}
}

func TestTokens_Rejects(t *testing.T) {
	tokens, _ := auth.NewTokens("test-secret", time.Hour)
	other, _ := auth.NewTokens("other-secret", time.Hour)
	expired, _ := auth.NewTokens("test-secret", time.Nanosecond)

	u := &user.User{ID: "user-1", Role: user.RoleStudent}
	foreign, _ := other.Issue(u)
	stale, _ := expired.Issue(u)
	time.Sleep(1100 * time.Millisecond)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.token"},
		{"wrong secret", foreign},
		{"expired", stale},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tokens.Parse(tt.token); !errors.Is(err, auth.ErrInvalidToken) {
				t.Errorf("Parse() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestNewTokens_Validates(t *testing.T) {
	if _, err := auth.NewTokens("", time.Hour); err == nil {
		t.Error("NewTokens() should require a secret")
	}
	if _, err := auth.NewTokens("s", 0); err == nil {
		t.Error("NewTokens() should require a positive ttl")
	}
}
