package token

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-at-least-32-characters!!"

func newTestCodec() *Codec {
	return NewCodec(testSecret, 15*time.Minute, 7*24*time.Hour)
}

func TestCodec_AccessRoundTrip(t *testing.T) {
	c := newTestCodec()

	signed, err := c.IssueAccess("acct-1", "alice@example.com", "USER")
	require.NoError(t, err)

	claims, err := c.VerifyAccess(signed)
	require.NoError(t, err)
	assert.Equal(t, "acct-1", claims.AccountID)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, "USER", claims.Role)
	assert.Equal(t, "acct-1", claims.Subject)
}

func TestCodec_RefreshRoundTrip(t *testing.T) {
	c := newTestCodec()

	signed, expiresAt, err := c.IssueRefresh("acct-2")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC().Add(7*24*time.Hour), expiresAt, time.Minute)

	claims, err := c.VerifyRefresh(signed)
	require.NoError(t, err)
	assert.Equal(t, "acct-2", claims.AccountID)
}

func TestCodec_ExpiredIsDistinguishedFromInvalid(t *testing.T) {
	expired := NewCodec(testSecret, -time.Minute, -time.Minute)

	signed, err := expired.IssueAccess("acct-3", "bob@example.com", "USER")
	require.NoError(t, err)

	_, err = expired.VerifyAccess(signed)
	assert.ErrorIs(t, err, ErrExpired)
	assert.False(t, errors.Is(err, ErrInvalid))

	refresh, _, err := expired.IssueRefresh("acct-3")
	require.NoError(t, err)
	_, err = expired.VerifyRefresh(refresh)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestCodec_WrongSecretIsInvalid(t *testing.T) {
	c := newTestCodec()
	other := NewCodec("another-secret-also-32-characters!!!", 15*time.Minute, 24*time.Hour)

	signed, err := c.IssueAccess("acct-4", "eve@example.com", "USER")
	require.NoError(t, err)

	_, err = other.VerifyAccess(signed)
	assert.ErrorIs(t, err, ErrInvalid)
	assert.False(t, errors.Is(err, ErrExpired))
}

func TestCodec_GarbageIsInvalid(t *testing.T) {
	c := newTestCodec()

	_, err := c.VerifyAccess("not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = c.VerifyRefresh("")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestCodec_AccessTokenRejectedAsRefresh(t *testing.T) {
	c := newTestCodec()

	// Both classes are signed under the same secret; the token_use claim is
	// what keeps an access token from being replayed as a refresh token.
	signed, err := c.IssueAccess("acct-5", "carol@example.com", "ADMIN")
	require.NoError(t, err)

	_, err = c.VerifyRefresh(signed)
	assert.ErrorIs(t, err, ErrInvalid)
	assert.False(t, errors.Is(err, ErrExpired))
}

func TestCodec_RefreshTokenRejectedAsAccess(t *testing.T) {
	c := newTestCodec()

	// A stolen refresh token must never work as a bearer access token: its
	// days-long lifetime would outlive rotation and logout, which only touch
	// the server-side row.
	refresh, _, err := c.IssueRefresh("acct-6")
	require.NoError(t, err)

	_, err = c.VerifyAccess(refresh)
	assert.ErrorIs(t, err, ErrInvalid)
	assert.False(t, errors.Is(err, ErrExpired))
}
