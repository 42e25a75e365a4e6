package rtc

import (
	"strings"
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	b, err := NewTokenBuilder("app-1", "cert", time.Hour)
	if err != nil {
		t.Fatalf("builder: %v", err)
	}

	tok, err := b.Build("call-123", "user-1")
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	channel, identity, err := b.Verify(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if channel != "call-123" || identity != "user-1" {
		t.Fatalf("unexpected claims: %s %s", channel, identity)
	}
}

func TestTokenRejectsTampering(t *testing.T) {
	b, _ := NewTokenBuilder("app-1", "cert", time.Hour)
	tok, _ := b.Build("call-123", "user-1")

	body, sig, _ := strings.Cut(tok, ".")
	tampered := body + "x." + sig
	if _, _, err := b.Verify(tampered); err == nil {
		t.Fatalf("expected verification failure")
	}

	other, _ := NewTokenBuilder("app-1", "other-cert", time.Hour)
	if _, _, err := other.Verify(tok); err == nil {
		t.Fatalf("expected signature mismatch across certificates")
	}
}

func TestTokenExpiry(t *testing.T) {
	b, _ := NewTokenBuilder("app-1", "cert", time.Minute)
	now := time.Unix(1700000000, 0).UTC()
	b.clock = func() time.Time { return now }

	tok, _ := b.Build("call-123", "user-1")

	b.clock = func() time.Time { return now.Add(2 * time.Minute) }
	if _, _, err := b.Verify(tok); err != ErrTokenExpired {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}
