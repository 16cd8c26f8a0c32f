package ws

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"actionforge.ai/internal/sim/action"
)

const DefaultTokenTTL = 24 * time.Hour

// TokenIssuer signs and checks resume tokens. A token binds a reconnecting
// client to the messenger id it was given in one world.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret []byte, ttl time.Duration) (*TokenIssuer, error) {
	if len(secret) == 0 {
		return nil, errors.New("resume token secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenIssuer{secret: secret, ttl: ttl, now: time.Now}, nil
}

func (t *TokenIssuer) Issue(worldID, sessionID string, m action.MessengerID) (string, error) {
	now := t.now()
	claims := jwt.RegisteredClaims{
		Subject:   string(m),
		Audience:  jwt.ClaimStrings{worldID},
		ID:        sessionID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign resume token: %w", err)
	}
	return signed, nil
}

// Verify returns the messenger id a token was issued for.
func (t *TokenIssuer) Verify(token, worldID string) (action.MessengerID, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(worldID),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return "", fmt.Errorf("verify resume token: %w", err)
	}
	if claims.Subject == "" {
		return "", errors.New("verify resume token: missing subject")
	}
	return action.MessengerID(claims.Subject), nil
}
