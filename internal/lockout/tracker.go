package lockout

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
)

const (
	attemptsKeyPrefix = "lockout:attempts:"
	lockKeyPrefix     = "lockout:lock:"
)

// Config holds the lockout policy knobs.
type Config struct {
	// Threshold is the number of failed attempts within the window that
	// trips a lock.
	Threshold int
	// Window is the sliding expiry of the attempt counter.
	Window time.Duration
	// LockDuration is how long a tripped lock holds. The lock key has its
	// own expiry so it persists even if the attempt window resets.
	LockDuration time.Duration
}

// DefaultConfig returns the standard policy: 5 attempts / 15 minutes,
// 15 minute lock.
func DefaultConfig() Config {
	return Config{
		Threshold:    5,
		Window:       15 * time.Minute,
		LockDuration: 15 * time.Minute,
	}
}

// Status describes the lock state of one account.
type Status struct {
	Locked           bool  `json:"locked"`
	RemainingSeconds int64 `json:"remaining_seconds,omitempty"`
	Attempts         int64 `json:"attempts,omitempty"`
}

// Tracker counts failed login attempts per account in Redis and enforces a
// temporary lock once the threshold is reached.
//
// Every Redis call runs through a circuit breaker and fails OPEN: when the
// store is unreachable the tracker reports "not locked" and records nothing,
// trading a small security degradation for availability. Each such decision
// is logged as a degraded-security warning.
type Tracker struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker[any]
	cfg     Config
	logger  *slog.Logger
}

// NewTracker creates a tracker with the given policy.
func NewTracker(client *redis.Client, cfg Config, logger *slog.Logger) *Tracker {
	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "lockout-redis",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
		},
	})

	return &Tracker{
		client:  client,
		breaker: breaker,
		cfg:     cfg,
		logger:  logger,
	}
}

// RecordFailure increments the attempt counter for the email and returns true
// if this failure tripped (or renewed) the lock.
func (t *Tracker) RecordFailure(ctx context.Context, email string) bool {
	email = normalize(email)

	res, err := t.breaker.Execute(func() (any, error) {
		count, err := t.client.Incr(ctx, attemptsKeyPrefix+email).Result()
		if err != nil {
			return nil, err
		}
		// Each failure restarts the window, so the counter only resets after
		// a full quiet window.
		if err := t.client.Expire(ctx, attemptsKeyPrefix+email, t.cfg.Window).Err(); err != nil {
			return nil, err
		}
		if count >= int64(t.cfg.Threshold) {
			if err := t.client.Set(ctx, lockKeyPrefix+email, 1, t.cfg.LockDuration).Err(); err != nil {
				return nil, err
			}
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		t.failOpen(ctx, "record failure", err)
		return false
	}

	return res.(bool)
}

// IsLocked reports the lock state for the email, including the remaining lock
// time and the current attempt count when available.
func (t *Tracker) IsLocked(ctx context.Context, email string) Status {
	email = normalize(email)

	res, err := t.breaker.Execute(func() (any, error) {
		ttl, err := t.client.PTTL(ctx, lockKeyPrefix+email).Result()
		if err != nil {
			return nil, err
		}
		if ttl <= 0 {
			// Key absent or without expiry: not locked.
			return Status{}, nil
		}

		attempts, err := t.client.Get(ctx, attemptsKeyPrefix+email).Int64()
		if err != nil && err != redis.Nil {
			return nil, err
		}

		remaining := int64(ttl / time.Second)
		if remaining < 1 {
			remaining = 1
		}

		return Status{Locked: true, RemainingSeconds: remaining, Attempts: attempts}, nil
	})
	if err != nil {
		t.failOpen(ctx, "check lock", err)
		return Status{}
	}

	return res.(Status)
}

// Clear resets the attempt counter after a successful login. The lock key is
// left untouched: an active lock holds until it expires.
func (t *Tracker) Clear(ctx context.Context, email string) {
	email = normalize(email)

	if _, err := t.breaker.Execute(func() (any, error) {
		return nil, t.client.Del(ctx, attemptsKeyPrefix+email).Err()
	}); err != nil {
		t.failOpen(ctx, "clear attempts", err)
	}
}

// AdminUnlock removes both the lock and the attempt counter. Unlike the other
// operations this surfaces the error: an administrator asking for an unlock
// must know whether it happened.
func (t *Tracker) AdminUnlock(ctx context.Context, email string) error {
	email = normalize(email)

	if _, err := t.breaker.Execute(func() (any, error) {
		return nil, t.client.Del(ctx, lockKeyPrefix+email, attemptsKeyPrefix+email).Err()
	}); err != nil {
		return fmt.Errorf("admin unlock %s: %w", email, err)
	}

	return nil
}

// Ping checks connectivity to the backing store, for readiness reporting.
func (t *Tracker) Ping(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}

func (t *Tracker) failOpen(ctx context.Context, op string, err error) {
	t.logger.WarnContext(ctx, "lockout store unavailable, failing open",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
