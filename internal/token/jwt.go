package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "auth-service"

// token_use claim values. Access and refresh tokens are signed under the
// same secret, so the claim is what stops one class from passing as the
// other: a stolen refresh token must never work as a bearer access token.
const (
	useAccess  = "access"
	useRefresh = "refresh"
)

// Verification failures are split so callers can react differently: an
// expired token may be rotated, an invalid one is rejected outright.
var (
	ErrExpired = errors.New("token expired")
	ErrInvalid = errors.New("token invalid")
)

// Claims represents the JWT claims for an access token.
type Claims struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	TokenUse  string `json:"token_use"`
	jwt.RegisteredClaims
}

// RefreshClaims represents the JWT claims for a refresh token.
type RefreshClaims struct {
	AccountID string `json:"account_id"`
	TokenUse  string `json:"token_use"`
	jwt.RegisteredClaims
}

// Codec issues and verifies signed access and refresh tokens.
type Codec struct {
	secret        []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
}

// NewCodec creates a codec signing with the given secret. Access tokens are
// short-lived (minutes); refresh tokens are long-lived (days) and tracked
// server-side so they can be revoked before their signed expiry.
func NewCodec(secret string, accessExpiry, refreshExpiry time.Duration) *Codec {
	return &Codec{
		secret:        []byte(secret),
		accessExpiry:  accessExpiry,
		refreshExpiry: refreshExpiry,
	}
}

// IssueAccess creates a signed access token carrying identity claims.
func (c *Codec) IssueAccess(accountID, email, role string) (string, error) {
	now := time.Now().UTC()
	claims := &Claims{
		AccountID: accountID,
		Email:     email,
		Role:      role,
		TokenUse:  useAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.accessExpiry)),
			Issuer:    issuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}

	return signed, nil
}

// IssueRefresh creates a signed refresh token carrying only the account ID.
func (c *Codec) IssueRefresh(accountID string) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(c.refreshExpiry)
	claims := &RefreshClaims{
		AccountID: accountID,
		TokenUse:  useRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    issuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return signed, expiresAt, nil
}

// VerifyAccess parses and validates an access token. It returns ErrExpired
// for tokens whose signature checks out but whose lifetime has passed, and
// ErrInvalid for everything else, including a refresh token presented in an
// access token's place.
func (c *Codec) VerifyAccess(tokenString string) (*Claims, error) {
	var claims Claims
	if err := c.verify(tokenString, &claims); err != nil {
		return nil, err
	}
	if claims.TokenUse != useAccess {
		return nil, fmt.Errorf("%w: token_use is not access", ErrInvalid)
	}
	return &claims, nil
}

// VerifyRefresh parses and validates a refresh token with the same
// expired/invalid distinction as VerifyAccess. An access token presented as
// a refresh token is invalid.
func (c *Codec) VerifyRefresh(tokenString string) (*RefreshClaims, error) {
	var claims RefreshClaims
	if err := c.verify(tokenString, &claims); err != nil {
		return nil, err
	}
	if claims.TokenUse != useRefresh {
		return nil, fmt.Errorf("%w: token_use is not refresh", ErrInvalid)
	}
	return &claims, nil
}

// AccessExpiry returns the configured access token lifetime.
func (c *Codec) AccessExpiry() time.Duration {
	return c.accessExpiry
}

// RefreshExpiry returns the configured refresh token lifetime.
func (c *Codec) RefreshExpiry() time.Duration {
	return c.refreshExpiry
}

func (c *Codec) verify(tokenString string, claims jwt.Claims) error {
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpired
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if !parsed.Valid {
		return ErrInvalid
	}

	return nil
}
