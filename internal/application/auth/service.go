// Package auth issues and verifies the bearer tokens that identify actors.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/dinesh-wex/wex-platform-2026-sub001/internal/domain/engagement"
)

const issuer = "engagement-lifecycle"

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
	ErrNoSecret     = errors.New("token secret is not configured")
)

// Claims is the JWT body. Role is one of buyer, supplier, admin, system.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Service handles authentication.
type Service struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	logger zerolog.Logger
}

// NewService creates an auth service signing with HS256.
func NewService(secret string, ttl time.Duration, logger zerolog.Logger) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
		logger: logger.With().Str("service", "auth").Logger(),
	}
}

// Issue signs a token for actor.
func (s *Service) Issue(actor engagement.Actor) (string, time.Time, error) {
	if len(s.secret) == 0 {
		return "", time.Time{}, ErrNoSecret
	}
	if _, err := engagement.ParseActorRole(string(actor.Role)); err != nil {
		return "", time.Time{}, err
	}
	if strings.TrimSpace(actor.ID) == "" {
		return "", time.Time{}, fmt.Errorf("actor id is required")
	}
	now := s.now()
	exp := now.Add(s.ttl)
	claims := Claims{
		Role: string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	s.logger.Info().Str("actor", actor.String()).Time("expires_at", exp).Msg("token issued")
	return token, exp, nil
}

// Authenticate validates a token and returns the actor it names.
func (s *Service) Authenticate(token string) (engagement.Actor, error) {
	if token == "" {
		return engagement.Actor{}, ErrMissingToken
	}
	if len(s.secret) == 0 {
		return engagement.Actor{}, ErrNoSecret
	}
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return engagement.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	role, err := engagement.ParseActorRole(claims.Role)
	if err != nil {
		return engagement.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return engagement.Actor{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return engagement.Actor{Role: role, ID: claims.Subject}, nil
}
