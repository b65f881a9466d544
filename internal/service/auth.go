package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/utafrali/auth-service/internal/audit"
	"github.com/utafrali/auth-service/internal/csrf"
	"github.com/utafrali/auth-service/internal/domain"
	"github.com/utafrali/auth-service/internal/lockout"
	"github.com/utafrali/auth-service/internal/password"
	"github.com/utafrali/auth-service/internal/repository"
	"github.com/utafrali/auth-service/internal/token"
	apperrors "github.com/utafrali/auth-service/pkg/errors"
)

// minPasswordLength is the minimum password length required.
const minPasswordLength = 8

// LockoutGuard is the lockout tracker surface the orchestrator depends on.
type LockoutGuard interface {
	RecordFailure(ctx context.Context, email string) bool
	IsLocked(ctx context.Context, email string) lockout.Status
	Clear(ctx context.Context, email string)
	AdminUnlock(ctx context.Context, email string) error
}

// AuditSink records security-relevant actions. Implementations must be
// best-effort; Record never blocks the calling flow.
type AuditSink interface {
	Record(ctx context.Context, e audit.Entry)
}

// EventPublisher publishes account lifecycle events.
type EventPublisher interface {
	PublishAccountRegistered(ctx context.Context, acct *domain.Account) error
	PublishAccountLogin(ctx context.Context, accountID, sessionID, ip, userAgent string) error
}

// Policy holds the credential issuance knobs.
type Policy struct {
	// MaxRefreshTokens bounds concurrently valid refresh tokens per account.
	MaxRefreshTokens int
	// SessionRetention is how long an idle session row is kept before the
	// background sweep removes it.
	SessionRetention time.Duration
}

// DefaultPolicy returns the standard issuance policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxRefreshTokens: 5,
		SessionRetention: 30 * 24 * time.Hour,
	}
}

// AuthService orchestrates registration, login, token refresh and logout.
type AuthService struct {
	accountRepo repository.AccountRepository
	tokenRepo   repository.RefreshTokenRepository
	sessionRepo repository.SessionRepository
	credStore   repository.CredentialStore
	hasher      *password.Hasher
	codec       *token.Codec
	csrfGuard   *csrf.Guard
	lockout     LockoutGuard
	audit       AuditSink
	producer    EventPublisher
	metrics     *Metrics
	policy      Policy
	logger      *slog.Logger

	// dummyDigest is compared against when the email is unknown, so a login
	// on a missing account burns the same bcrypt work as one on a real
	// account. Derived from the signing secret at startup.
	dummyDigest string
}

// NewAuthService creates the auth orchestrator.
func NewAuthService(
	accountRepo repository.AccountRepository,
	tokenRepo repository.RefreshTokenRepository,
	sessionRepo repository.SessionRepository,
	credStore repository.CredentialStore,
	hasher *password.Hasher,
	codec *token.Codec,
	csrfGuard *csrf.Guard,
	lockoutGuard LockoutGuard,
	auditSink AuditSink,
	producer EventPublisher,
	metrics *Metrics,
	policy Policy,
	secret string,
	logger *slog.Logger,
) (*AuthService, error) {
	if policy.MaxRefreshTokens <= 0 {
		policy.MaxRefreshTokens = DefaultPolicy().MaxRefreshTokens
	}
	if policy.SessionRetention <= 0 {
		policy.SessionRetention = DefaultPolicy().SessionRetention
	}

	dummy, err := deriveDummyDigest(hasher, secret)
	if err != nil {
		return nil, fmt.Errorf("derive dummy digest: %w", err)
	}

	return &AuthService{
		accountRepo: accountRepo,
		tokenRepo:   tokenRepo,
		sessionRepo: sessionRepo,
		credStore:   credStore,
		hasher:      hasher,
		codec:       codec,
		csrfGuard:   csrfGuard,
		lockout:     lockoutGuard,
		audit:       auditSink,
		producer:    producer,
		metrics:     metrics,
		policy:      policy,
		logger:      logger,
		dummyDigest: dummy,
	}, nil
}

// deriveDummyDigest builds a bcrypt digest of a secret-derived value no
// client could ever present, so the comparison always fails but costs the
// same as a real one.
func deriveDummyDigest(hasher *password.Hasher, secret string) (string, error) {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("login.dummy-password.v1"))
	return hasher.Hash(hex.EncodeToString(mac.Sum(nil)))
}

// --- Input / Output types ---

// RequestMeta carries per-request client metadata into the audit trail and
// session records.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// RegisterInput holds the parameters for registering a new account.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Meta      RequestMeta
}

// LoginInput holds the parameters for account login.
type LoginInput struct {
	Email    string
	Password string
	Meta     RequestMeta
}

// Credentials bundles everything issued on a successful authentication.
type Credentials struct {
	Tokens    domain.TokenPair
	CSRF      csrf.Pair
	SessionID string
	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64
}

// --- Operations ---

// Register creates a new account with its first refresh token and session.
// The password is hashed before any existence check runs, so a duplicate
// email costs the same wall time as a fresh one, and the conflict answer is
// indistinguishable from other registration failures.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*domain.Account, *Credentials, error) {
	input.Email = normalizeEmail(input.Email)
	if input.Email == "" {
		return nil, nil, apperrors.InvalidInput("email is required")
	}
	if input.FirstName == "" {
		return nil, nil, apperrors.InvalidInput("first name is required")
	}
	if input.LastName == "" {
		return nil, nil, apperrors.InvalidInput("last name is required")
	}
	if err := validatePassword(input.Password); err != nil {
		return nil, nil, err
	}

	digest, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	acct := &domain.Account{
		ID:           uuid.New().String(),
		Email:        input.Email,
		PasswordHash: digest,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		Role:         domain.RoleUser,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	refreshToken, rt, err := s.mintRefreshToken(acct.ID)
	if err != nil {
		return nil, nil, err
	}
	sess := s.newSession(acct.ID, input.Meta, now)

	if err := s.credStore.CreateAccountWithCredentials(ctx, acct, rt, sess); err != nil {
		return nil, nil, fmt.Errorf("create account: %w", err)
	}

	creds, err := s.buildCredentials(acct, refreshToken, sess.ID)
	if err != nil {
		return nil, nil, err
	}

	s.metrics.registrations.Inc()
	s.audit.Record(ctx, audit.Entry{
		AccountID: acct.ID,
		Action:    audit.ActionRegister,
		Entity:    "account",
		EntityID:  acct.ID,
		IP:        input.Meta.IP,
		UserAgent: input.Meta.UserAgent,
	})
	if err := s.producer.PublishAccountRegistered(ctx, acct); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish account.registered event",
			slog.String("account_id", acct.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "account registered",
		slog.String("account_id", acct.ID),
		slog.String("email", acct.Email),
	)

	return acct, creds, nil
}

// Login authenticates an account with email and password. Every failure
// answers with the same generic message and increments the lockout counter;
// a locked account is refused before the stored digest is even compared.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*domain.Account, *Credentials, error) {
	input.Email = normalizeEmail(input.Email)
	if input.Email == "" {
		return nil, nil, apperrors.InvalidInput("email is required")
	}
	if input.Password == "" {
		return nil, nil, apperrors.InvalidInput("password is required")
	}

	if status := s.lockout.IsLocked(ctx, input.Email); status.Locked {
		s.metrics.loginOutcome(OutcomeLocked)
		s.logger.WarnContext(ctx, "login refused, account locked",
			slog.String("email", input.Email),
			slog.Int64("remaining_seconds", status.RemainingSeconds),
		)
		return nil, nil, apperrors.InvalidCredentials()
	}

	acct, err := s.accountRepo.GetByEmail(ctx, input.Email)
	if err != nil {
		return nil, nil, fmt.Errorf("get account: %w", err)
	}

	if acct == nil {
		// Burn the same bcrypt work as a real comparison so an unknown
		// email is not distinguishable by response time.
		s.hasher.Verify(input.Password, s.dummyDigest)
		s.recordLoginFailure(ctx, input, OutcomeUnknown, "")
		return nil, nil, apperrors.InvalidCredentials()
	}

	if !s.hasher.Verify(input.Password, acct.PasswordHash) {
		s.recordLoginFailure(ctx, input, OutcomeBadPassword, acct.ID)
		return nil, nil, apperrors.InvalidCredentials()
	}

	// A deactivated account is indistinguishable from bad credentials and
	// still feeds the failure counter.
	if !acct.IsActive {
		s.recordLoginFailure(ctx, input, OutcomeInactive, acct.ID)
		return nil, nil, apperrors.InvalidCredentials()
	}

	s.lockout.Clear(ctx, input.Email)
	s.maybeRehash(ctx, acct, input.Password)

	now := time.Now().UTC()
	refreshToken, rt, err := s.mintRefreshToken(acct.ID)
	if err != nil {
		return nil, nil, err
	}
	sess := s.newSession(acct.ID, input.Meta, now)

	if err := s.credStore.IssueCredentials(ctx, rt, sess, s.policy.MaxRefreshTokens); err != nil {
		return nil, nil, fmt.Errorf("issue credentials: %w", err)
	}

	creds, err := s.buildCredentials(acct, refreshToken, sess.ID)
	if err != nil {
		return nil, nil, err
	}

	s.metrics.loginOutcome(OutcomeSuccess)
	s.audit.Record(ctx, audit.Entry{
		AccountID: acct.ID,
		Action:    audit.ActionLoginSuccess,
		Entity:    "account",
		EntityID:  acct.ID,
		Metadata:  map[string]string{"session_id": sess.ID},
		IP:        input.Meta.IP,
		UserAgent: input.Meta.UserAgent,
	})
	if err := s.producer.PublishAccountLogin(ctx, acct.ID, sess.ID, input.Meta.IP, input.Meta.UserAgent); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish account.login event",
			slog.String("account_id", acct.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "account logged in",
		slog.String("account_id", acct.ID),
		slog.String("session_id", sess.ID),
	)

	return acct, creds, nil
}

// Refresh rotates a refresh token: the presented token is consumed and a new
// pair is issued. The stored row is looked up before the signature is
// checked, so a token that was already rotated or revoked answers the same
// way regardless of whether its signature still verifies.
func (s *AuthService) Refresh(ctx context.Context, refreshToken, sessionID string, meta RequestMeta) (*Credentials, error) {
	if refreshToken == "" {
		return nil, apperrors.InvalidInput("refresh token is required")
	}

	oldHash := HashToken(refreshToken)
	stored, err := s.tokenRepo.GetByHash(ctx, oldHash)
	if err != nil {
		return nil, fmt.Errorf("get refresh token: %w", err)
	}
	if stored == nil {
		return nil, apperrors.Unauthorized("invalid refresh token")
	}

	if _, err := s.codec.VerifyRefresh(refreshToken); err != nil {
		if errors.Is(err, token.ErrExpired) {
			s.discardToken(ctx, oldHash)
			return nil, apperrors.Unauthorized("refresh token expired")
		}
		return nil, apperrors.Unauthorized("invalid refresh token")
	}

	if time.Now().UTC().After(stored.ExpiresAt) {
		s.discardToken(ctx, oldHash)
		return nil, apperrors.Unauthorized("refresh token expired")
	}

	acct, err := s.accountRepo.GetByID(ctx, stored.AccountID)
	if err != nil {
		return nil, fmt.Errorf("get account for refresh: %w", err)
	}
	if acct == nil || !acct.IsActive {
		s.discardToken(ctx, oldHash)
		return nil, apperrors.Unauthorized("account is deactivated")
	}

	newToken, rt, err := s.mintRefreshToken(acct.ID)
	if err != nil {
		return nil, err
	}

	if err := s.credStore.Rotate(ctx, oldHash, rt, s.policy.MaxRefreshTokens); err != nil {
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	creds, err := s.buildCredentials(acct, newToken, sessionID)
	if err != nil {
		return nil, err
	}

	if sessionID != "" {
		if err := s.sessionRepo.Touch(ctx, sessionID); err != nil {
			s.logger.WarnContext(ctx, "failed to touch session",
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.metrics.rotations.Inc()
	s.audit.Record(ctx, audit.Entry{
		AccountID: acct.ID,
		Action:    audit.ActionTokenRefresh,
		Entity:    "account",
		EntityID:  acct.ID,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
	})

	s.logger.InfoContext(ctx, "tokens refreshed",
		slog.String("account_id", acct.ID),
	)

	return creds, nil
}

// Logout revokes the presented refresh token and, when known, its session.
func (s *AuthService) Logout(ctx context.Context, refreshToken, sessionID string, meta RequestMeta) error {
	if refreshToken == "" {
		return apperrors.InvalidInput("refresh token is required")
	}

	deleted, err := s.tokenRepo.Delete(ctx, HashToken(refreshToken))
	if err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	if !deleted {
		return apperrors.Gone("refresh token already invalidated")
	}

	if sessionID != "" {
		if err := s.sessionRepo.Revoke(ctx, sessionID); err != nil {
			s.logger.WarnContext(ctx, "failed to revoke session on logout",
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.metrics.revocations.Inc()
	s.audit.Record(ctx, audit.Entry{
		Action:    audit.ActionLogout,
		Entity:    "session",
		EntityID:  sessionID,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
	})

	return nil
}

// LogoutAll revokes every refresh token and session of the account, returning
// the number of tokens removed.
func (s *AuthService) LogoutAll(ctx context.Context, accountID string, meta RequestMeta) (int64, error) {
	revoked, err := s.credStore.RevokeAllForAccount(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("revoke all credentials: %w", err)
	}

	s.metrics.revocations.Add(float64(revoked))
	s.audit.Record(ctx, audit.Entry{
		AccountID: accountID,
		Action:    audit.ActionLogoutAll,
		Entity:    "account",
		EntityID:  accountID,
		Metadata:  map[string]string{"revoked": fmt.Sprintf("%d", revoked)},
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
	})

	s.logger.InfoContext(ctx, "all sessions revoked",
		slog.String("account_id", accountID),
		slog.Int64("revoked", revoked),
	)

	return revoked, nil
}

// ListSessions returns the account's sessions, most recent activity first.
func (s *AuthService) ListSessions(ctx context.Context, accountID string) ([]domain.Session, error) {
	sessions, err := s.sessionRepo.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// RevokeSession revokes one of the account's own sessions. A session that
// does not exist and a session owned by someone else answer identically, so
// session ids cannot be enumerated across accounts.
func (s *AuthService) RevokeSession(ctx context.Context, accountID, sessionID string, meta RequestMeta) error {
	sess, err := s.sessionRepo.Get(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	if sess == nil || sess.AccountID != accountID {
		return apperrors.NotFound("session", sessionID)
	}

	if err := s.sessionRepo.Revoke(ctx, sessionID); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}

	s.audit.Record(ctx, audit.Entry{
		AccountID: accountID,
		Action:    audit.ActionSessionRevoke,
		Entity:    "session",
		EntityID:  sessionID,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
	})

	return nil
}

// AdminUnlock clears an account's lockout state ahead of its natural expiry.
func (s *AuthService) AdminUnlock(ctx context.Context, actorID, email string, meta RequestMeta) error {
	if email == "" {
		return apperrors.InvalidInput("email is required")
	}

	if err := s.lockout.AdminUnlock(ctx, email); err != nil {
		return apperrors.Unavailable("lockout store unavailable")
	}

	s.audit.Record(ctx, audit.Entry{
		AccountID: actorID,
		Action:    audit.ActionAdminUnlock,
		Entity:    "account",
		EntityID:  email,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
	})

	s.logger.InfoContext(ctx, "account lockout cleared by admin",
		slog.String("actor_id", actorID),
		slog.String("email", email),
	)

	return nil
}

// VerifyAccess validates an access token, for the HTTP auth middleware.
func (s *AuthService) VerifyAccess(tokenString string) (*token.Claims, error) {
	return s.codec.VerifyAccess(tokenString)
}

// CSRFValid reports whether the token/signature pair verifies.
func (s *AuthService) CSRFValid(tokenValue, signature string) bool {
	return s.csrfGuard.Verify(tokenValue, signature)
}

// SweepExpired removes expired refresh tokens and stale sessions. It runs
// periodically from the app's background ticker.
func (s *AuthService) SweepExpired(ctx context.Context) {
	tokens, err := s.tokenRepo.DeleteExpired(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "refresh token sweep failed",
			slog.String("error", err.Error()),
		)
	}

	cutoff := time.Now().UTC().Add(-s.policy.SessionRetention)
	sessions, err := s.sessionRepo.SweepOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.ErrorContext(ctx, "session sweep failed",
			slog.String("error", err.Error()),
		)
	}

	if tokens > 0 || sessions > 0 {
		s.logger.InfoContext(ctx, "expired credentials swept",
			slog.Int64("refresh_tokens", tokens),
			slog.Int64("sessions", sessions),
		)
	}
}

// --- Helpers ---

func (s *AuthService) recordLoginFailure(ctx context.Context, input LoginInput, outcome, accountID string) {
	s.metrics.loginOutcome(outcome)

	tripped := s.lockout.RecordFailure(ctx, input.Email)

	s.audit.Record(ctx, audit.Entry{
		AccountID: accountID,
		Action:    audit.ActionLoginFailure,
		Entity:    "account",
		EntityID:  accountID,
		Metadata:  map[string]string{"outcome": outcome},
		IP:        input.Meta.IP,
		UserAgent: input.Meta.UserAgent,
	})

	if tripped {
		s.metrics.lockoutTrips.Inc()
		s.audit.Record(ctx, audit.Entry{
			AccountID: accountID,
			Action:    audit.ActionLockout,
			Entity:    "account",
			EntityID:  accountID,
			IP:        input.Meta.IP,
			UserAgent: input.Meta.UserAgent,
		})
		s.logger.WarnContext(ctx, "account locked after repeated login failures",
			slog.String("email", input.Email),
		)
	}
}

// maybeRehash upgrades the stored digest when the configured work factor has
// changed since it was written. Failures are logged; the login proceeds.
func (s *AuthService) maybeRehash(ctx context.Context, acct *domain.Account, plaintext string) {
	if !s.hasher.NeedsRehash(acct.PasswordHash) {
		return
	}

	digest, err := s.hasher.Hash(plaintext)
	if err != nil {
		s.logger.WarnContext(ctx, "password rehash failed",
			slog.String("account_id", acct.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := s.accountRepo.UpdatePasswordHash(ctx, acct.ID, digest); err != nil {
		s.logger.WarnContext(ctx, "password rehash store failed",
			slog.String("account_id", acct.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	acct.PasswordHash = digest
	s.logger.InfoContext(ctx, "password digest upgraded",
		slog.String("account_id", acct.ID),
		slog.Int("cost", s.hasher.Cost()),
	)
}

func (s *AuthService) mintRefreshToken(accountID string) (string, *domain.RefreshToken, error) {
	refreshToken, expiresAt, err := s.codec.IssueRefresh(accountID)
	if err != nil {
		return "", nil, fmt.Errorf("issue refresh token: %w", err)
	}

	return refreshToken, &domain.RefreshToken{
		TokenHash: HashToken(refreshToken),
		AccountID: accountID,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (s *AuthService) newSession(accountID string, meta RequestMeta, now time.Time) *domain.Session {
	return &domain.Session{
		ID:         uuid.New().String(),
		AccountID:  accountID,
		UserAgent:  meta.UserAgent,
		IP:         meta.IP,
		LastSeenAt: now,
		CreatedAt:  now,
	}
}

func (s *AuthService) buildCredentials(acct *domain.Account, refreshToken, sessionID string) (*Credentials, error) {
	accessToken, err := s.codec.IssueAccess(acct.ID, acct.Email, acct.Role)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	csrfPair, err := s.csrfGuard.Issue()
	if err != nil {
		return nil, fmt.Errorf("issue csrf pair: %w", err)
	}

	return &Credentials{
		Tokens: domain.TokenPair{
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
		},
		CSRF:      csrfPair,
		SessionID: sessionID,
		ExpiresIn: int64(s.codec.AccessExpiry() / time.Second),
	}, nil
}

// discardToken removes a stored refresh token row that can no longer be
// honored. Best-effort: the caller is already refusing the request.
func (s *AuthService) discardToken(ctx context.Context, tokenHash string) {
	if _, err := s.tokenRepo.Delete(ctx, tokenHash); err != nil {
		s.logger.WarnContext(ctx, "failed to discard refresh token",
			slog.String("error", err.Error()),
		)
	}
}

// HashToken returns the SHA-256 hex digest of a token string, the form in
// which refresh tokens are persisted.
func HashToken(tokenString string) string {
	sum := sha256.Sum256([]byte(tokenString))
	return hex.EncodeToString(sum[:])
}

// validatePassword enforces the password policy: minimum length with at
// least one upper case letter, one lower case letter and one digit.
func validatePassword(pw string) error {
	if len(pw) < minPasswordLength {
		return apperrors.InvalidInput(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	var hasUpper, hasLower, hasDigit bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit {
		return apperrors.InvalidInput("password must contain upper and lower case letters and a digit")
	}

	return nil
}

// normalizeEmail canonicalizes an email address so the account row, the
// lockout counter and the audit trail all key on the same value.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
