package auth

import (
	"fmt"
	"time"

	"github.com/go-chi/jwtauth"
	"github.com/google/uuid"
	"github.com/simaogato/tradeflow-backend/internal/domain"
)

// TokenAuthority issues and verifies HS256 bearer tokens whose subject is the user ID
type TokenAuthority struct {
	ja  *jwtauth.JWTAuth
	ttl time.Duration
	now func() time.Time
}

// NewTokenAuthority creates a new TokenAuthority signing with secret
func NewTokenAuthority(secret string, ttl time.Duration) *TokenAuthority {
	return &TokenAuthority{
		ja:  jwtauth.New("HS256", []byte(secret), nil),
		ttl: ttl,
		now: time.Now,
	}
}

// JWTAuth exposes the underlying jwtauth instance for HTTP middleware
func (a *TokenAuthority) JWTAuth() *jwtauth.JWTAuth {
	return a.ja
}

// Issue signs a token for userID, returning it with its expiry
func (a *TokenAuthority) Issue(userID uuid.UUID) (string, time.Time, error) {
	now := a.now()
	expiresAt := now.Add(a.ttl)

	claims := map[string]interface{}{
		"sub": userID.String(),
	}
	jwtauth.SetIssuedAt(claims, now)
	jwtauth.SetExpiry(claims, expiresAt)

	_, token, err := a.ja.Encode(claims)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, expiresAt, nil
}

// Verify checks signature and expiry and returns the user ID in the subject
func (a *TokenAuthority) Verify(token string) (uuid.UUID, error) {
	if token == "" {
		return uuid.Nil, domain.ErrInvalidToken
	}

	tok, err := jwtauth.VerifyToken(a.ja, token)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}

	userID, err := uuid.Parse(tok.Subject())
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad subject", domain.ErrInvalidToken)
	}
	return userID, nil
}
