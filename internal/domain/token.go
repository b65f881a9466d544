package domain

import "time"

// RefreshToken is the server-side record of an outstanding refresh
// credential. Only the SHA-256 hash of the bearer string is stored; the row
// is deleted on logout, rotation, or expiry sweep.
type RefreshToken struct {
	TokenHash string    `json:"-"`
	AccountID string    `json:"account_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// TokenPair bundles the credentials returned on successful authentication.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}
