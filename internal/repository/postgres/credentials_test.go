package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/auth-service/pkg/database"
	apperrors "github.com/utafrali/auth-service/pkg/errors"
)

func newCredentialStoreFixture(t *testing.T) (*CredentialStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	store := NewCredentialStore(mock)
	return store, mock
}

func TestCredentialStore_CreateAccountWithCredentials_Success(t *testing.T) {
	store, mock := newCredentialStoreFixture(t)
	defer mock.Close()

	a := sampleAccount()
	rt := sampleRefreshToken()
	sess := sampleSession()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO accounts").
		WithArgs(a.ID, a.Email, a.PasswordHash, a.FirstName, a.LastName, a.Role, a.IsActive, a.CreatedAt, a.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO refresh_tokens").
		WithArgs(rt.TokenHash, rt.AccountID, rt.ExpiresAt, rt.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO sessions").
		WithArgs(sess.ID, sess.AccountID, sess.UserAgent, sess.IP, sess.LastSeenAt, sess.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := store.CreateAccountWithCredentials(context.Background(), a, rt, sess)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialStore_CreateAccountWithCredentials_DuplicateEmail(t *testing.T) {
	store, mock := newCredentialStoreFixture(t)
	defer mock.Close()

	a := sampleAccount()
	rt := sampleRefreshToken()
	sess := sampleSession()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO accounts").
		WithArgs(a.ID, a.Email, a.PasswordHash, a.FirstName, a.LastName, a.Role, a.IsActive, a.CreatedAt, a.UpdatedAt).
		WillReturnError(fmt.Errorf("ERROR: duplicate key value violates unique constraint (SQLSTATE 23505)"))
	mock.ExpectRollback()

	err := store.CreateAccountWithCredentials(context.Background(), a, rt, sess)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrConflict), "expected conflict, got: %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialStore_CreateAccountWithCredentials_TokenInsertFailureRollsBack(t *testing.T) {
	store, mock := newCredentialStoreFixture(t)
	defer mock.Close()

	a := sampleAccount()
	rt := sampleRefreshToken()
	sess := sampleSession()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO accounts").
		WithArgs(a.ID, a.Email, a.PasswordHash, a.FirstName, a.LastName, a.Role, a.IsActive, a.CreatedAt, a.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO refresh_tokens").
		WithArgs(rt.TokenHash, rt.AccountID, rt.ExpiresAt, rt.CreatedAt).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := store.CreateAccountWithCredentials(context.Background(), a, rt, sess)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialStore_IssueCredentials_PurgesAndEvicts(t *testing.T) {
	store, mock := newCredentialStoreFixture(t)
	defer mock.Close()

	rt := sampleRefreshToken()
	sess := sampleSession()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM refresh_tokens WHERE account_id = .+ AND expires_at").
		WithArgs(rt.AccountID).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec("DELETE FROM refresh_tokens\\s+WHERE token_hash IN").
		WithArgs(rt.AccountID, 4).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("INSERT INTO refresh_tokens").
		WithArgs(rt.TokenHash, rt.AccountID, rt.ExpiresAt, rt.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO sessions").
		WithArgs(sess.ID, sess.AccountID, sess.UserAgent, sess.IP, sess.LastSeenAt, sess.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := store.IssueCredentials(context.Background(), rt, sess, 5)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialStore_Rotate_Success(t *testing.T) {
	store, mock := newCredentialStoreFixture(t)
	defer mock.Close()

	rt := sampleRefreshToken()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM refresh_tokens WHERE token_hash =").
		WithArgs("old-hash").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("DELETE FROM refresh_tokens WHERE account_id = .+ AND expires_at").
		WithArgs(rt.AccountID).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("DELETE FROM refresh_tokens\\s+WHERE token_hash IN").
		WithArgs(rt.AccountID, 4).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("INSERT INTO refresh_tokens").
		WithArgs(rt.TokenHash, rt.AccountID, rt.ExpiresAt, rt.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := store.Rotate(context.Background(), "old-hash", rt, 5)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialStore_Rotate_AlreadyConsumed(t *testing.T) {
	store, mock := newCredentialStoreFixture(t)
	defer mock.Close()

	rt := sampleRefreshToken()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM refresh_tokens WHERE token_hash =").
		WithArgs("old-hash").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectRollback()

	err := store.Rotate(context.Background(), "old-hash", rt, 5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized), "expected unauthorized, got: %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialStore_RevokeAllForAccount(t *testing.T) {
	store, mock := newCredentialStoreFixture(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM refresh_tokens WHERE account_id =").
		WithArgs("acc-1234").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec("DELETE FROM sessions WHERE account_id =").
		WithArgs("acc-1234").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectCommit()

	n, err := store.RevokeAllForAccount(context.Background(), "acc-1234")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialStore_RevokeAllForAccount_BeginError(t *testing.T) {
	store, mock := newCredentialStoreFixture(t)
	defer mock.Close()

	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	_, err := store.RevokeAllForAccount(context.Background(), "acc-1234")
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
