package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/auth-service/internal/domain"
	"github.com/utafrali/auth-service/pkg/database"
	apperrors "github.com/utafrali/auth-service/pkg/errors"
)

const (
	insertAccountQuery = `
		INSERT INTO accounts (id, email, password_hash, first_name, last_name, role, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	insertRefreshTokenQuery = `
		INSERT INTO refresh_tokens (token_hash, account_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4)`

	insertSessionQuery = `
		INSERT INTO sessions (id, account_id, user_agent, ip, last_seen_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	purgeExpiredTokensQuery = `
		DELETE FROM refresh_tokens WHERE account_id = $1 AND expires_at <= now()`

	evictOldestTokensQuery = `
		DELETE FROM refresh_tokens
		WHERE token_hash IN (
			SELECT token_hash FROM refresh_tokens
			WHERE account_id = $1
			ORDER BY created_at DESC
			OFFSET $2
		)`
)

// CredentialStore runs the multi-row credential writes inside a single
// transaction so that token, session and account rows always land together.
type CredentialStore struct {
	pool database.DBTX
}

// NewCredentialStore creates a new PostgreSQL-backed credential store.
func NewCredentialStore(pool database.DBTX) *CredentialStore {
	return &CredentialStore{pool: pool}
}

// CreateAccountWithCredentials inserts the account, its first refresh token
// and its first session atomically.
func (s *CredentialStore) CreateAccountWithCredentials(ctx context.Context, acct *domain.Account, rt *domain.RefreshToken, sess *domain.Session) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, insertAccountQuery,
		acct.ID, acct.Email, acct.PasswordHash, acct.FirstName, acct.LastName,
		acct.Role, acct.IsActive, acct.CreatedAt, acct.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.RegistrationFailed()
		}
		return fmt.Errorf("insert account: %w", err)
	}

	if err := insertRefreshToken(ctx, tx, rt); err != nil {
		return err
	}
	if err := insertSession(ctx, tx, sess); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// IssueCredentials inserts a refresh token and session for an existing
// account, purging expired token rows and evicting the oldest beyond the cap
// in the same transaction.
func (s *CredentialStore) IssueCredentials(ctx context.Context, rt *domain.RefreshToken, sess *domain.Session, maxTokens int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := makeRoomForToken(ctx, tx, rt.AccountID, maxTokens); err != nil {
		return err
	}
	if err := insertRefreshToken(ctx, tx, rt); err != nil {
		return err
	}
	if err := insertSession(ctx, tx, sess); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// Rotate deletes the presented refresh token row and inserts its replacement
// atomically. The delete doubles as a liveness check: zero rows affected
// means another request already consumed the token.
func (s *CredentialStore) Rotate(ctx context.Context, oldTokenHash string, rt *domain.RefreshToken, maxTokens int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, `DELETE FROM refresh_tokens WHERE token_hash = $1`, oldTokenHash)
	if err != nil {
		return fmt.Errorf("delete rotated token: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.Unauthorized("invalid refresh token")
	}

	if err := makeRoomForToken(ctx, tx, rt.AccountID, maxTokens); err != nil {
		return err
	}
	if err := insertRefreshToken(ctx, tx, rt); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// RevokeAllForAccount deletes every refresh token and session for the account
// atomically, returning the number of refresh tokens removed.
func (s *CredentialStore) RevokeAllForAccount(ctx context.Context, accountID string) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, `DELETE FROM refresh_tokens WHERE account_id = $1`, accountID)
	if err != nil {
		return 0, fmt.Errorf("delete refresh tokens: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM sessions WHERE account_id = $1`, accountID); err != nil {
		return 0, fmt.Errorf("delete sessions: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}

	return ct.RowsAffected(), nil
}

// makeRoomForToken purges the account's expired token rows and then evicts
// the oldest surviving rows so that after the caller's insert at most
// maxTokens remain.
func makeRoomForToken(ctx context.Context, tx pgx.Tx, accountID string, maxTokens int) error {
	if _, err := tx.Exec(ctx, purgeExpiredTokensQuery, accountID); err != nil {
		return fmt.Errorf("purge expired tokens: %w", err)
	}

	if maxTokens > 0 {
		if _, err := tx.Exec(ctx, evictOldestTokensQuery, accountID, maxTokens-1); err != nil {
			return fmt.Errorf("evict oldest tokens: %w", err)
		}
	}

	return nil
}

func insertRefreshToken(ctx context.Context, tx pgx.Tx, rt *domain.RefreshToken) error {
	_, err := tx.Exec(ctx, insertRefreshTokenQuery, rt.TokenHash, rt.AccountID, rt.ExpiresAt, rt.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}

	return nil
}

func insertSession(ctx context.Context, tx pgx.Tx, sess *domain.Session) error {
	_, err := tx.Exec(ctx, insertSessionQuery, sess.ID, sess.AccountID, sess.UserAgent, sess.IP, sess.LastSeenAt, sess.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	return nil
}
