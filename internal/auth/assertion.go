package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dorolabs/novelverse/backend/internal/novels"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingAssertionKey     = errors.New("assertion validator: signing key required")
	ErrMissingAssertionIssuer  = errors.New("assertion validator: issuer required")
	ErrMissingAssertionToken   = errors.New("assertion validator: token required")
	ErrInvalidAssertionToken   = errors.New("assertion validator: invalid token")
	ErrExpiredAssertionToken   = errors.New("assertion validator: token expired")
	ErrMissingAssertionSubject = errors.New("assertion validator: subject required")
)

// AssertionClaims mirrors the JWT payload emitted by the upstream identity
// provider after a sign-in.
type AssertionClaims struct {
	DisplayName string `json:"user_display_name"`
	PhotoURL    string `json:"user_photo_url"`
	jwt.RegisteredClaims
}

// AssertionValidatorConfig describes how to validate identity assertions.
type AssertionValidatorConfig struct {
	SigningSecret []byte
	Issuer        string
	Clock         func() time.Time
}

// AssertionValidator validates HS256 identity assertions from the external
// identity provider. Identity provisioning itself stays outside this
// repository; only the interface boundary is verified here.
type AssertionValidator struct {
	signingSecret []byte
	issuer        string
	clock         func() time.Time
}

// NewAssertionValidator constructs a validator with the provided configuration.
func NewAssertionValidator(cfg AssertionValidatorConfig) (*AssertionValidator, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingAssertionKey
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, ErrMissingAssertionIssuer
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &AssertionValidator{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        issuer,
		clock:         clock,
	}, nil
}

// Validate checks the assertion and returns the viewer it attests to.
func (v *AssertionValidator) Validate(tokenString string) (novels.Viewer, error) {
	token := strings.TrimSpace(tokenString)
	if token == "" {
		return novels.Viewer{}, ErrMissingAssertionToken
	}

	claims := &AssertionClaims{}
	parsed, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("%w: unexpected signing algorithm %s", ErrInvalidAssertionToken, t.Method.Alg())
			}
			return v.signingSecret, nil
		},
		jwt.WithTimeFunc(v.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return novels.Viewer{}, ErrExpiredAssertionToken
		}
		return novels.Viewer{}, fmt.Errorf("%w: %v", ErrInvalidAssertionToken, err)
	}
	if parsed == nil || !parsed.Valid {
		return novels.Viewer{}, ErrInvalidAssertionToken
	}
	if claims.Issuer != v.issuer {
		return novels.Viewer{}, ErrInvalidAssertionToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return novels.Viewer{}, ErrMissingAssertionSubject
	}

	return novels.Viewer{
		ID:       claims.Subject,
		Name:     claims.DisplayName,
		PhotoURL: claims.PhotoURL,
	}, nil
}
