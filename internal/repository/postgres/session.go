package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/auth-service/internal/domain"
	"github.com/utafrali/auth-service/pkg/database"
)

// SessionRepository implements repository.SessionRepository using PostgreSQL.
type SessionRepository struct {
	pool database.DBTX
}

// NewSessionRepository creates a new PostgreSQL-backed session repository.
func NewSessionRepository(pool database.DBTX) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Touch updates the last-activity timestamp. A missing row is not an error.
func (r *SessionRepository) Touch(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE sessions SET last_seen_at = $1 WHERE id = $2`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}

	return nil
}

// Get retrieves a session by id, or nil when absent.
func (r *SessionRepository) Get(ctx context.Context, id string) (*domain.Session, error) {
	query := `
		SELECT id, account_id, user_agent, ip, last_seen_at, created_at
		FROM sessions
		WHERE id = $1`

	var s domain.Session
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID,
		&s.AccountID,
		&s.UserAgent,
		&s.IP,
		&s.LastSeenAt,
		&s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query session: %w", err)
	}

	return &s, nil
}

// ListByAccount returns the account's sessions ordered by most recent activity.
func (r *SessionRepository) ListByAccount(ctx context.Context, accountID string) ([]domain.Session, error) {
	query := `
		SELECT id, account_id, user_agent, ip, last_seen_at, created_at
		FROM sessions
		WHERE account_id = $1
		ORDER BY last_seen_at DESC`

	rows, err := r.pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var s domain.Session
		if err := rows.Scan(&s.ID, &s.AccountID, &s.UserAgent, &s.IP, &s.LastSeenAt, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

// Revoke deletes a session. Deleting an absent session is a no-op.
func (r *SessionRepository) Revoke(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}

	return nil
}

// SweepOlderThan deletes sessions whose last activity predates the cutoff.
func (r *SessionRepository) SweepOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	ct, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE last_seen_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}

	return ct.RowsAffected(), nil
}
