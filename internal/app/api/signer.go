package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"logview/internal/app/errors"
	"logview/internal/config"
)

// Signer augments outgoing requests with credentials
type Signer interface {
	Sign(req *http.Request) error
}

// NewSigner picks the signer matching the configured credentials
func NewSigner(cfg *config.Config) Signer {
	switch {
	case cfg.API.SigningKey != "":
		return NewJWTSigner(cfg.API.SigningKey, cfg.API.Subject, config.TokenLifetime)
	case cfg.API.Token != "":
		return TokenSigner{Token: cfg.API.Token}
	default:
		return NoopSigner{}
	}
}

// NoopSigner leaves requests untouched
type NoopSigner struct{}

func (NoopSigner) Sign(*http.Request) error { return nil }

// TokenSigner sets a static bearer token
type TokenSigner struct {
	Token string
}

func (s TokenSigner) Sign(req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+s.Token)
	return nil
}

// JWTSigner issues a short-lived HS256 token for every request
type JWTSigner struct {
	key      []byte
	subject  string
	lifetime time.Duration
	now      func() time.Time
}

// NewJWTSigner creates a signer using the shared HMAC key
func NewJWTSigner(key, subject string, lifetime time.Duration) *JWTSigner {
	return &JWTSigner{
		key:      []byte(key),
		subject:  subject,
		lifetime: lifetime,
		now:      time.Now,
	}
}

func (s *JWTSigner) Sign(req *http.Request) error {
	now := s.now()

	claims := jwt.RegisteredClaims{
		Subject:   s.subject,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.lifetime)),
		ID:        uuid.NewString(),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrFailedToSignRequest, err)
	}

	req.Header.Set("Authorization", "Bearer "+token)

	return nil
}
