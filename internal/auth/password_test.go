package auth_test

import (
	"strings"
	"testing"

	"github.com/p-n-ai/pai-academy/internal/auth"
)

func TestHashPassword(t *testing.T) {
	hash, err := auth.HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if hash == "correct horse" {
		t.Fatal("hash should not equal the plaintext")
	}

	ok, err := auth.CheckPassword(hash, "correct horse")
	if err != nil || !ok {
		t.Errorf("CheckPassword(right) = %v, %v; want true", ok, err)
	}
	ok, err = auth.CheckPassword(hash, "wrong horse")
	if err != nil || ok {
		t.Errorf("CheckPassword(wrong) = %v, %v; want false", ok, err)
	}
}

func TestHashPassword_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		password string
	}{
		{"empty", ""},
		{"too short", "short"},
		{"too long", strings.Repeat("a", 73)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := auth.HashPassword(tt.password); err == nil {
				t.Errorf("HashPassword(%q) should fail", tt.password)
			}
		})
	}
}

func TestCheckPassword_MalformedHash(t *testing.T) {
	if _, err := auth.CheckPassword("not-a-hash", "whatever1"); err == nil {
		t.Error("CheckPassword() should fail on a malformed hash")
	}
}
