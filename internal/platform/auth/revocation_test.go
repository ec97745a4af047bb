package auth

import (
	"testing"
	"time"
)

func TestTokenRevocationStore_RevokeAndCleanup(t *testing.T) {
	s := NewTokenRevocationStore(time.Hour)
	defer s.Close()

	now := time.Now()
	s.Revoke("old", "u1", now.Add(-time.Minute))
	s.Revoke("fresh", "u1", now.Add(time.Hour))
	s.Revoke("", "u1", now.Add(time.Hour))

	if s.Count() != 2 {
		t.Fatalf("expected 2 entries, got %d", s.Count())
	}
	if !s.IsRevoked("old") || !s.IsRevoked("fresh") {
		t.Error("expected both tokens revoked")
	}

	s.cleanup(now)
	if s.IsRevoked("old") {
		t.Error("expired entry should be cleaned up")
	}
	if !s.IsRevoked("fresh") {
		t.Error("unexpired entry must remain")
	}
	if s.RevokedForUser("u1") != 1 {
		t.Errorf("expected 1 revoked token for u1, got %d", s.RevokedForUser("u1"))
	}
}

func TestTokenRevocationStore_CloseTwice(t *testing.T) {
	s := NewTokenRevocationStore(time.Hour)
	s.Close()
	s.Close()
}
