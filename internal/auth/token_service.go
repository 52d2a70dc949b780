package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/phrazzld/easel-api/internal/platform/logger"
)

// Claims are the validated contents of an operator token.
type Claims struct {
	Operator  string
	IssuedAt  time.Time
	ExpiresAt time.Time
	ID        string
}

// TokenService issues and validates operator bearer tokens.
type TokenService interface {
	// GenerateToken creates a signed token identifying the operator.
	GenerateToken(ctx context.Context, operator string) (string, error)

	// ValidateToken checks a token and returns its claims.
	ValidateToken(ctx context.Context, token string) (*Claims, error)
}

// hmacTokenService signs tokens with HMAC-SHA256.
type hmacTokenService struct {
	signingKey []byte
	lifetime   time.Duration
	timeFunc   func() time.Time // Injectable for testing
	clockSkew  time.Duration
}

var _ TokenService = (*hmacTokenService)(nil)

// NewTokenService creates a TokenService with the given signing secret and
// token lifetime. Secrets under 32 characters are rejected.
func NewTokenService(secret string, lifetime time.Duration) (TokenService, error) {
	if len(secret) < 32 {
		return nil, ErrShortSecret
	}
	if lifetime <= 0 {
		lifetime = 24 * time.Hour
	}

	return &hmacTokenService{
		signingKey: []byte(secret),
		lifetime:   lifetime,
		timeFunc:   time.Now,
		clockSkew:  2 * time.Minute,
	}, nil
}

func (s *hmacTokenService) GenerateToken(ctx context.Context, operator string) (string, error) {
	log := logger.FromContext(ctx)
	now := s.timeFunc()

	claims := jwt.RegisteredClaims{
		Subject:   operator,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.lifetime)),
		ID:        uuid.New().String(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		log.Error("failed to sign operator token",
			"error", err,
			"operator", operator)
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

func (s *hmacTokenService) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	log := logger.FromContext(ctx)
	now := s.timeFunc()

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithLeeway(s.clockSkew),
		jwt.WithTimeFunc(func() time.Time { return now }),
	}

	token, err := jwt.ParseWithClaims(
		tokenString,
		&jwt.RegisteredClaims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.signingKey, nil
		},
		parserOpts...)

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			log.Debug("token validation failed: expired", "error", err)
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			log.Debug("token validation failed: not yet valid", "error", err)
			return nil, ErrTokenNotYetValid
		default:
			log.Debug("token validation failed", "error", err)
			return nil, ErrInvalidToken
		}
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid || claims.Subject == "" ||
		claims.IssuedAt == nil || claims.ExpiresAt == nil {
		log.Debug("token validation failed: invalid claims")
		return nil, ErrInvalidToken
	}

	return &Claims{
		Operator:  claims.Subject,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
		ID:        claims.ID,
	}, nil
}
