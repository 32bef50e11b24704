package auth

//go:generate mockgen -destination=mocks/mock_validator.go -package=mocks -source=validator.go TokenValidator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenValidator validates a bearer token and returns its claims.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (jwt.MapClaims, error)
}

const defaultLeeway = 30 * time.Second

// HMACValidator accepts JWTs signed with a shared HMAC key.
type HMACValidator struct {
	key    []byte
	parser *jwt.Parser
}

// NewHMACValidator creates a validator for tokens signed with key. Issuer
// and audience are enforced when non-empty.
func NewHMACValidator(key []byte, issuer, audience string) (*HMACValidator, error) {
	if len(key) == 0 {
		return nil, errors.New("signing key cannot be empty")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(defaultLeeway),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}

	return &HMACValidator{key: key, parser: jwt.NewParser(opts...)}, nil
}

// ValidateToken implements TokenValidator.
func (v *HMACValidator) ValidateToken(_ context.Context, token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	return claims, nil
}
