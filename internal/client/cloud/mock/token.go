package mock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/dockeeper/internal/common"
)

// mockUser is the only account the simulated backend knows.
const mockUser = "mock-user"

// Claims are the claims of mock access and refresh tokens.
type Claims struct {
	jwt.RegisteredClaims
	Purpose string `json:"purpose"`
}

// GenerateToken signs a token for purpose valid for ttl from now.
func GenerateToken(purpose string, key []byte, now time.Time, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   mockUser,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Purpose: purpose,
	})
	return token.SignedString(key)
}

// ParseToken validates a token at now and returns its claims. Expired tokens
// yield common.ErrTokenExpired, any other failure common.ErrInvalidToken.
func ParseToken(tokenString string, key []byte, now time.Time) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(func() time.Time { return now }))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}

func (p *Provider) verify(token string) error {
	_, err := ParseToken(token, p.opts.SigningKey, p.opts.Now())
	return err
}

// issueTokens mints a fresh pair and hands it to the token store.
func (p *Provider) issueTokens(ctx context.Context) error {
	now := p.opts.Now()
	access, err := GenerateToken("access", p.opts.SigningKey, now, p.opts.AccessTokenTTL)
	if err != nil {
		return fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := GenerateToken("refresh", p.opts.SigningKey, now, p.opts.RefreshTokenTTL)
	if err != nil {
		return fmt.Errorf("sign refresh token: %w", err)
	}

	p.mu.Lock()
	p.cfg.AccessToken = access
	p.cfg.RefreshToken = refresh
	p.cfg.Expiration = now.Add(p.opts.AccessTokenTTL)
	cfg := p.cfg
	p.mu.Unlock()

	if p.tokens != nil {
		if err := p.tokens.SaveProviderConfig(ctx, cfg); err != nil {
			return fmt.Errorf("persist tokens: %w", err)
		}
	}
	return nil
}
