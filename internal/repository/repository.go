package repository

import (
	"context"
	"time"

	"github.com/utafrali/auth-service/internal/domain"
)

// AccountRepository defines the persistence operations for accounts.
// Accounts are never deleted here; deactivation is an external concern and
// shows up only as is_active=false on reads.
type AccountRepository interface {
	// GetByEmail retrieves an account by its email address.
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)

	// GetByID retrieves an account by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.Account, error)

	// UpdatePasswordHash replaces the stored digest, used for opportunistic
	// rehash when the work factor changes.
	UpdatePasswordHash(ctx context.Context, id, hash string) error
}

// RefreshTokenRepository defines the single-row operations on stored refresh
// credentials. Multi-row writes (issuance, rotation, revoke-all) go through
// CredentialStore so they stay atomic.
type RefreshTokenRepository interface {
	// GetByHash retrieves a refresh token record by its SHA-256 hash.
	// Returns nil, nil when no row exists.
	GetByHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)

	// Delete removes a refresh token row. Returns false when no row matched.
	Delete(ctx context.Context, tokenHash string) (bool, error)

	// DeleteExpired removes all rows past their expiry, returning the count.
	DeleteExpired(ctx context.Context) (int64, error)
}

// SessionRepository defines the operations on login session records. It
// performs no authorization; ownership checks are the orchestrator's job.
type SessionRepository interface {
	// Touch updates the last-activity timestamp. A missing session is not an
	// error; callers treat Touch as best-effort.
	Touch(ctx context.Context, id string) error

	// ListByAccount returns the account's sessions, most recent activity first.
	ListByAccount(ctx context.Context, accountID string) ([]domain.Session, error)

	// Get retrieves a session by id. Returns nil, nil when no row exists.
	Get(ctx context.Context, id string) (*domain.Session, error)

	// Revoke deletes a session. Deleting an absent session is a no-op.
	Revoke(ctx context.Context, id string) error

	// SweepOlderThan deletes sessions whose last activity predates the
	// cutoff, returning the count.
	SweepOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// CredentialStore executes the multi-row credential writes inside a single
// database transaction, so a partial failure can never leave an account with
// a token but no session, or a rotation with both old and new rows alive.
type CredentialStore interface {
	// CreateAccountWithCredentials inserts the account, its first refresh
	// token, and its first session atomically. A duplicate email surfaces as
	// an error wrapping the conflict sentinel.
	CreateAccountWithCredentials(ctx context.Context, acct *domain.Account, rt *domain.RefreshToken, sess *domain.Session) error

	// IssueCredentials inserts a refresh token and session for an existing
	// account. Within the same transaction it first deletes the account's
	// expired token rows and then evicts oldest rows down to maxTokens-1,
	// bounding concurrently valid devices per account.
	IssueCredentials(ctx context.Context, rt *domain.RefreshToken, sess *domain.Session, maxTokens int) error

	// Rotate deletes the old refresh token row and inserts the replacement
	// atomically, applying the same expiry purge and cap eviction. Returns
	// an unauthorized-wrapping error when the old row vanished concurrently.
	Rotate(ctx context.Context, oldTokenHash string, rt *domain.RefreshToken, maxTokens int) error

	// RevokeAllForAccount deletes every refresh token and session for the
	// account atomically, returning the number of refresh tokens removed.
	RevokeAllForAccount(ctx context.Context, accountID string) (int64, error)
}
