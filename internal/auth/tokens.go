package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/fleetgate/fleetgate/internal/shared"
)

// ErrInvalidToken indicates a token that failed verification.
var ErrInvalidToken = errors.New("auth: invalid token")

// Claims is the access-token payload. The subject is the user id; the tenant
// travels as a private claim so downstream layers never re-read the
// directory just to learn it.
type Claims struct {
	TenantID *uuid.UUID `json:"tid,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 access tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	issuer string
}

// NewTokenIssuer constructs a TokenIssuer.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, issuer: "fleetgate"}
}

// Issue creates a signed token for the account.
func (ti *TokenIssuer) Issue(account *Account) (string, *Claims, error) {
	now := time.Now()
	claims := &Claims{
		TenantID: account.TenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   account.ID.String(),
			Issuer:    ti.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ti.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.secret)
	if err != nil {
		return "", nil, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, claims, nil
}

// Verify parses a raw token and returns the principal it asserts.
func (ti *TokenIssuer) Verify(raw string) (*shared.Principal, *Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return ti.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, nil, ErrInvalidToken
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, nil, ErrInvalidToken
	}
	return &shared.Principal{
		UserID:   userID,
		TenantID: claims.TenantID,
		TokenID:  claims.ID,
	}, claims, nil
}
