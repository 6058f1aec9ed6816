package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/dorolabs/novelverse/backend/internal/novels"
)

var testSecret = []byte("unit-test-signing-secret")

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestIssueAndValidateRoundTrip(t *testing.T) {
	now := time.Date(2026, time.May, 1, 9, 0, 0, 0, time.UTC)
	issuer := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: testSecret,
		Issuer:        "novelverse-api",
		Audience:      "novelverse-clients",
		TokenTTL:      15 * time.Minute,
		Clock:         fixedClock(now),
	})

	viewer := novels.Viewer{ID: "u1", Name: "Ada", PhotoURL: "https://img.example.com/ada.png"}
	token, expiresIn, err := issuer.IssueToken(viewer)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	if expiresIn != int64((15 * time.Minute).Seconds()) {
		t.Fatalf("unexpected expiry %d", expiresIn)
	}

	validated, err := issuer.ValidateToken(token)
	if err != nil {
		t.Fatalf("failed to validate token: %v", err)
	}
	if validated != viewer {
		t.Fatalf("viewer mismatch: got %+v, want %+v", validated, viewer)
	}
}

func TestIssueTokenRejectsAnonymousViewer(t *testing.T) {
	issuer := NewTokenIssuer(TokenIssuerConfig{SigningSecret: testSecret})
	if _, _, err := issuer.IssueToken(novels.Viewer{}); err == nil {
		t.Fatal("expected error for anonymous viewer")
	}
}

func TestValidateTokenRejectsExpiredToken(t *testing.T) {
	issued := time.Date(2026, time.May, 1, 9, 0, 0, 0, time.UTC)
	issuer := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: testSecret,
		Issuer:        "novelverse-api",
		Audience:      "novelverse-clients",
		TokenTTL:      time.Minute,
		Clock:         fixedClock(issued),
	})

	token, _, err := issuer.IssueToken(novels.Viewer{ID: "u1", Name: "Ada"})
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	later := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: testSecret,
		Issuer:        "novelverse-api",
		Audience:      "novelverse-clients",
		Clock:         fixedClock(issued.Add(2 * time.Minute)),
	})
	if _, err := later.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestValidateTokenRejectsWrongAudience(t *testing.T) {
	now := time.Date(2026, time.May, 1, 9, 0, 0, 0, time.UTC)
	issuer := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: testSecret,
		Issuer:        "novelverse-api",
		Audience:      "other-clients",
		Clock:         fixedClock(now),
	})
	token, _, err := issuer.IssueToken(novels.Viewer{ID: "u1", Name: "Ada"})
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	validator := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: testSecret,
		Issuer:        "novelverse-api",
		Audience:      "novelverse-clients",
		Clock:         fixedClock(now),
	})
	if _, err := validator.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for audience mismatch, got %v", err)
	}
}

func TestValidateTokenRejectsForgedSignature(t *testing.T) {
	now := time.Date(2026, time.May, 1, 9, 0, 0, 0, time.UTC)
	forger := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("some-other-secret"),
		Issuer:        "novelverse-api",
		Audience:      "novelverse-clients",
		Clock:         fixedClock(now),
	})
	token, _, err := forger.IssueToken(novels.Viewer{ID: "u1", Name: "Ada"})
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	validator := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: testSecret,
		Issuer:        "novelverse-api",
		Audience:      "novelverse-clients",
		Clock:         fixedClock(now),
	})
	if _, err := validator.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for forged signature, got %v", err)
	}
}
