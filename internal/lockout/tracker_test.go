package lockout

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/auth-service/pkg/logger"
)

func setupTracker(t *testing.T, cfg Config) (*Tracker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewTracker(client, cfg, logger.New("lockout-test", "error")), mr
}

func TestTracker_LocksAtThreshold(t *testing.T) {
	tr, _ := setupTracker(t, DefaultConfig())
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		assert.False(t, tr.RecordFailure(ctx, "alice@example.com"), "attempt %d must not lock", i)
	}
	assert.True(t, tr.RecordFailure(ctx, "alice@example.com"), "5th attempt must lock")

	status := tr.IsLocked(ctx, "alice@example.com")
	assert.True(t, status.Locked)
	assert.Positive(t, status.RemainingSeconds)
	assert.EqualValues(t, 5, status.Attempts)
}

func TestTracker_NotLockedBelowThreshold(t *testing.T) {
	tr, _ := setupTracker(t, DefaultConfig())
	ctx := context.Background()

	tr.RecordFailure(ctx, "bob@example.com")
	tr.RecordFailure(ctx, "bob@example.com")

	status := tr.IsLocked(ctx, "bob@example.com")
	assert.False(t, status.Locked)
}

func TestTracker_EmailsAreIndependent(t *testing.T) {
	tr, _ := setupTracker(t, DefaultConfig())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		tr.RecordFailure(ctx, "alice@example.com")
	}

	assert.True(t, tr.IsLocked(ctx, "alice@example.com").Locked)
	assert.False(t, tr.IsLocked(ctx, "carol@example.com").Locked)
}

func TestTracker_EmailNormalized(t *testing.T) {
	tr, _ := setupTracker(t, DefaultConfig())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		tr.RecordFailure(ctx, "  Alice@Example.COM ")
	}

	assert.True(t, tr.IsLocked(ctx, "alice@example.com").Locked)
}

func TestTracker_LockExpires(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LockDuration = time.Minute
	tr, mr := setupTracker(t, cfg)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		tr.RecordFailure(ctx, "dave@example.com")
	}
	require.True(t, tr.IsLocked(ctx, "dave@example.com").Locked)

	mr.FastForward(2 * time.Minute)

	assert.False(t, tr.IsLocked(ctx, "dave@example.com").Locked)
}

func TestTracker_LockSurvivesCounterReset(t *testing.T) {
	// The lock key is decoupled from the attempt counter: clearing the
	// counter (successful credential check) must not release an active lock.
	tr, _ := setupTracker(t, DefaultConfig())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		tr.RecordFailure(ctx, "erin@example.com")
	}
	tr.Clear(ctx, "erin@example.com")

	status := tr.IsLocked(ctx, "erin@example.com")
	assert.True(t, status.Locked)
	assert.Zero(t, status.Attempts)
}

func TestTracker_ClearResetsCounter(t *testing.T) {
	tr, _ := setupTracker(t, DefaultConfig())
	ctx := context.Background()

	tr.RecordFailure(ctx, "frank@example.com")
	tr.RecordFailure(ctx, "frank@example.com")
	tr.Clear(ctx, "frank@example.com")

	// Counter restarts from zero; four more failures stay below threshold.
	for i := 0; i < 4; i++ {
		assert.False(t, tr.RecordFailure(ctx, "frank@example.com"))
	}
}

func TestTracker_AdminUnlock(t *testing.T) {
	tr, _ := setupTracker(t, DefaultConfig())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		tr.RecordFailure(ctx, "grace@example.com")
	}
	require.True(t, tr.IsLocked(ctx, "grace@example.com").Locked)

	require.NoError(t, tr.AdminUnlock(ctx, "grace@example.com"))

	status := tr.IsLocked(ctx, "grace@example.com")
	assert.False(t, status.Locked)
	assert.False(t, tr.RecordFailure(ctx, "grace@example.com"), "counter must restart after unlock")
}

func TestTracker_AttemptWindowSlides(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Window = time.Minute
	tr, mr := setupTracker(t, cfg)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		tr.RecordFailure(ctx, "heidi@example.com")
	}

	mr.FastForward(2 * time.Minute)

	// Window elapsed: the counter restarted, so this is attempt one of five.
	assert.False(t, tr.RecordFailure(ctx, "heidi@example.com"))
}

func TestTracker_EachFailureRestartsWindow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Window = time.Minute
	tr, mr := setupTracker(t, cfg)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		tr.RecordFailure(ctx, "judy@example.com")
	}

	mr.FastForward(45 * time.Second)
	assert.False(t, tr.RecordFailure(ctx, "judy@example.com"))

	// 90s after the first failure, but only 45s after the latest one: the
	// refreshed window keeps the counter alive and this trips the lock.
	mr.FastForward(45 * time.Second)
	assert.True(t, tr.RecordFailure(ctx, "judy@example.com"))
}

func TestTracker_FailsOpenWhenStoreDown(t *testing.T) {
	tr, mr := setupTracker(t, DefaultConfig())
	ctx := context.Background()
	mr.Close()

	assert.False(t, tr.RecordFailure(ctx, "ivan@example.com"),
		"store outage must not report a lock")
	assert.False(t, tr.IsLocked(ctx, "ivan@example.com").Locked,
		"store outage must report not locked")

	// AdminUnlock surfaces the failure instead of pretending it worked.
	assert.Error(t, tr.AdminUnlock(ctx, "ivan@example.com"))
}
