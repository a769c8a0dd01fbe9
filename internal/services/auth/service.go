// Package auth issues and verifies the signed tokens players present on
// authenticate.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mcoot/arenaengine/internal/dependencies/clock"
	"github.com/mcoot/arenaengine/internal/model"
)

// RoleAdmin marks tokens allowed on the administrative endpoints
const RoleAdmin = "admin"

var ErrNotConfigured = errors.New("token secret is not configured")

// Identity is what a verified token says about its bearer
type Identity struct {
	PlayerID   model.PlayerID
	Role       string
	Attributes map[string]any
	ExpiresAt  time.Time
}

// IsAdmin returns true if the identity may use the administrative endpoints
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// Token is a freshly issued token
type Token struct {
	Value     string
	PlayerID  model.PlayerID
	ExpiresAt time.Time
}

type claims struct {
	jwt.RegisteredClaims
	Role       string         `json:"role,omitempty"`
	Attributes map[string]any `json:"attrs,omitempty"`
}

// Service handles token issue and verification
type Service struct {
	secret   []byte
	issuer   string
	tokenTTL time.Duration
	clock    clock.Clock
}

// Config holds configuration for the auth service
type Config struct {
	Secret   string
	Issuer   string
	TokenTTL time.Duration
}

// DefaultConfig returns default auth configuration
func DefaultConfig() Config {
	return Config{
		Issuer:   "arenaengine",
		TokenTTL: 24 * time.Hour,
	}
}

// New creates a new auth Service
func New(clock clock.Clock, cfg Config) *Service {
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = DefaultConfig().TokenTTL
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultConfig().Issuer
	}
	return &Service{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		tokenTTL: cfg.TokenTTL,
		clock:    clock,
	}
}

// Issue signs a token for the player
func (s *Service) Issue(playerID model.PlayerID, role string, attributes map[string]any) (Token, error) {
	if len(s.secret) == 0 {
		return Token{}, ErrNotConfigured
	}
	if strings.TrimSpace(string(playerID)) == "" {
		return Token{}, errors.New("player id is required")
	}

	now := s.clock.Now()
	expires := now.Add(s.tokenTTL)
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   string(playerID),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Role:       role,
		Attributes: attributes,
	}
	value, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return Token{}, fmt.Errorf("signing token: %w", err)
	}
	return Token{Value: value, PlayerID: playerID, ExpiresAt: expires}, nil
}

// Verify checks a token's signature, issuer and lifetime.
// Every failure wraps model.ErrAuthenticationFailed.
func (s *Service) Verify(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, fmt.Errorf("%w: token is required", model.ErrAuthenticationFailed)
	}
	if len(s.secret) == 0 {
		return Identity{}, fmt.Errorf("%w: %v", model.ErrAuthenticationFailed, ErrNotConfigured)
	}

	var parsed claims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %s", model.ErrAuthenticationFailed, describe(err))
	}
	if strings.TrimSpace(parsed.Subject) == "" {
		return Identity{}, fmt.Errorf("%w: token has no subject", model.ErrAuthenticationFailed)
	}

	return Identity{
		PlayerID:   model.PlayerID(parsed.Subject),
		Role:       parsed.Role,
		Attributes: parsed.Attributes,
		ExpiresAt:  parsed.ExpiresAt.Time,
	}, nil
}

// describe turns jwt library errors into short client-safe reasons
func describe(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "token is expired"
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return "token is not valid yet"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return "token signature is invalid"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "token issuer mismatch"
	default:
		return "token is malformed"
	}
}
