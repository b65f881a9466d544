// Package audit persists a structured trail of security-relevant actions.
// Recording is strictly best-effort: a failed insert is logged and swallowed,
// so an audit outage can never block logins or registrations.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/auth-service/pkg/database"
	"github.com/utafrali/auth-service/pkg/logger"
)

// Entry is a single audit trail record. AccountID is empty for actions that
// could not be tied to an account, such as a failed login on an unknown email.
type Entry struct {
	AccountID string
	Action    string
	Entity    string
	EntityID  string
	Metadata  map[string]string
	IP        string
	UserAgent string
}

// Actions recorded by the authentication flows.
const (
	ActionRegister      = "account.register"
	ActionLoginSuccess  = "auth.login.success"
	ActionLoginFailure  = "auth.login.failure"
	ActionLockout       = "auth.lockout.trip"
	ActionTokenRefresh  = "auth.token.refresh"
	ActionLogout        = "auth.logout"
	ActionLogoutAll     = "auth.logout_all"
	ActionSessionRevoke = "session.revoke"
	ActionAdminUnlock   = "admin.lockout.unlock"
)

// Recorder writes audit entries to PostgreSQL.
type Recorder struct {
	pool database.DBTX
	log  *slog.Logger
}

// NewRecorder creates a PostgreSQL-backed audit recorder.
func NewRecorder(pool database.DBTX, log *slog.Logger) *Recorder {
	return &Recorder{pool: pool, log: log}
}

// Record inserts an audit entry. It never returns an error; failures are
// logged with the entry's action so operators can spot gaps in the trail.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	var metadata []byte
	if len(e.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(e.Metadata)
		if err != nil {
			logger.WithContext(ctx, r.log).Warn("audit metadata marshal failed",
				"action", e.Action, "error", err)
			metadata = nil
		}
	}

	var accountID *string
	if e.AccountID != "" {
		accountID = &e.AccountID
	}

	query := `
		INSERT INTO audit_log (id, account_id, action, entity, entity_id, metadata, ip, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.pool.Exec(ctx, query,
		uuid.NewString(), accountID, e.Action, e.Entity, e.EntityID,
		metadata, e.IP, e.UserAgent, time.Now().UTC(),
	)
	if err != nil {
		logger.WithContext(ctx, r.log).Warn("audit record failed",
			"action", e.Action, "entity", e.Entity, "error", err)
	}
}
