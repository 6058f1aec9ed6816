package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dorolabs/novelverse/backend/internal/novels"
	"github.com/golang-jwt/jwt/v5"
)

const defaultTokenTTL = 30 * time.Minute

var (
	errMissingSigningSecret = errors.New("auth: signing secret must be provided")
	errMissingSubjectClaim  = errors.New("auth: subject claim must be provided")
	// ErrInvalidToken indicates a backend session token failed validation.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// ViewerClaims carries the viewer profile inside backend session tokens so
// publish operations can stamp author name and photo without a lookup.
type ViewerClaims struct {
	DisplayName string `json:"user_display_name,omitempty"`
	PhotoURL    string `json:"user_photo_url,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuerConfig configures the backend session token issuer.
type TokenIssuerConfig struct {
	SigningSecret []byte
	Issuer        string
	Audience      string
	TokenTTL      time.Duration
	Clock         func() time.Time
}

// TokenIssuer issues and validates HS256 backend session tokens.
type TokenIssuer struct {
	signingSecret []byte
	issuer        string
	audience      string
	tokenTTL      time.Duration
	clock         func() time.Time
}

// NewTokenIssuer constructs a TokenIssuer with sane defaults.
func NewTokenIssuer(cfg TokenIssuerConfig) *TokenIssuer {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TokenIssuer{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        cfg.Issuer,
		audience:      cfg.Audience,
		tokenTTL:      ttl,
		clock:         clock,
	}
}

// IssueToken produces a signed session token and its expiry in seconds for
// the validated viewer.
func (i *TokenIssuer) IssueToken(viewer novels.Viewer) (string, int64, error) {
	if len(i.signingSecret) == 0 {
		return "", 0, errMissingSigningSecret
	}
	if viewer.Anonymous() {
		return "", 0, errMissingSubjectClaim
	}

	now := i.clock().UTC()
	expiresAt := now.Add(i.tokenTTL).UTC()

	claims := ViewerClaims{
		DisplayName: viewer.Name,
		PhotoURL:    viewer.PhotoURL,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   viewer.ID,
			Issuer:    i.issuer,
			Audience:  []string{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.signingSecret)
	if err != nil {
		return "", 0, err
	}
	return signed, int64(expiresAt.Sub(now).Seconds()), nil
}

// ValidateToken checks the session token and returns the viewer it names.
func (i *TokenIssuer) ValidateToken(tokenString string) (novels.Viewer, error) {
	if len(i.signingSecret) == 0 {
		return novels.Viewer{}, errMissingSigningSecret
	}

	claims := &ViewerClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("%w: unexpected signing algorithm %s", ErrInvalidToken, token.Method.Alg())
			}
			return i.signingSecret, nil
		},
		jwt.WithAudience(i.audience),
		jwt.WithIssuer(i.issuer),
		jwt.WithTimeFunc(i.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return novels.Viewer{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return novels.Viewer{}, errMissingSubjectClaim
	}

	return novels.Viewer{
		ID:       claims.Subject,
		Name:     claims.DisplayName,
		PhotoURL: claims.PhotoURL,
	}, nil
}
