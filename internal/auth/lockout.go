package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/paddy-dryer-core/internal/clock"
	"github.com/nerrad567/paddy-dryer-core/internal/kvstore"
)

// AttemptsKey is the store key holding the failed-PIN record.
const AttemptsKey = "paddy_dryer_attempts"

// AttemptRecord tracks failed PIN entries. Timestamps are epoch milliseconds.
type AttemptRecord struct {
	Count int `json:"count"`

	// Timestamp is when the first failure in the current window happened.
	Timestamp int64 `json:"timestamp"`

	LockedUntil *int64 `json:"lockedUntil,omitempty"`
}

// LockoutPolicy configures LockoutGuard.
type LockoutPolicy struct {
	// MaxAttempts is the failure count at which PIN entry locks.
	MaxAttempts int

	// Duration is how long a lockout lasts. It does not grow with
	// repeated lockouts.
	Duration time.Duration

	// AttemptWindow is how long failures accumulate before the count
	// starts over.
	AttemptWindow time.Duration
}

// DefaultLockoutPolicy returns 5 attempts, a 60s lockout and a 1h window.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{
		MaxAttempts:   5,
		Duration:      60 * time.Second,
		AttemptWindow: time.Hour,
	}
}

// LockoutGuard enforces a timed PIN lockout after repeated failures.
//
// Expiry is lazy: an elapsed lockout or attempt window is cleared the next
// time the record is observed, never by a background sweep.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type LockoutGuard struct {
	mu     sync.Mutex
	store  kvstore.Store
	clock  clock.Clock
	policy LockoutPolicy
	logger Logger
}

// NewLockoutGuard creates a guard persisting its record in store.
func NewLockoutGuard(store kvstore.Store, clk clock.Clock, policy LockoutPolicy) *LockoutGuard {
	return &LockoutGuard{
		store:  store,
		clock:  clk,
		policy: policy,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the guard.
func (g *LockoutGuard) SetLogger(logger Logger) {
	g.mu.Lock()
	g.logger = logger
	g.mu.Unlock()
}

// Policy returns the guard's configuration.
func (g *LockoutGuard) Policy() LockoutPolicy {
	return g.policy
}

// RecordFailure counts one failed attempt and returns the updated record.
// If the current window is older than AttemptWindow the count restarts at 1.
func (g *LockoutGuard) RecordFailure(ctx context.Context) (AttemptRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now().UnixMilli()

	rec, ok, err := g.load(ctx)
	if err != nil {
		return AttemptRecord{}, err
	}
	if !ok || now-rec.Timestamp > g.policy.AttemptWindow.Milliseconds() {
		rec = AttemptRecord{Timestamp: now}
	}
	rec.Count++

	if err := g.save(ctx, rec); err != nil {
		return AttemptRecord{}, err
	}

	g.logger.Warn("pin attempt failed", "count", rec.Count, "max", g.policy.MaxAttempts)
	return rec, nil
}

// IsLockedOut reports whether PIN entry is currently blocked. An elapsed
// lockout is cleared as a side effect.
func (g *LockoutGuard) IsLockedOut(ctx context.Context) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok, err := g.observeLocked(ctx)
	if err != nil || !ok {
		return false, err
	}
	return rec.LockedUntil != nil, nil
}

// ObserveAndMaybeClear loads the attempt record and removes it if its
// lockout has elapsed or, when not locked, its window has passed. It
// returns the surviving record and whether one exists.
func (g *LockoutGuard) ObserveAndMaybeClear(ctx context.Context) (AttemptRecord, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.observeLocked(ctx)
}

func (g *LockoutGuard) observeLocked(ctx context.Context) (AttemptRecord, bool, error) {
	rec, ok, err := g.load(ctx)
	if err != nil || !ok {
		return AttemptRecord{}, false, err
	}

	now := g.clock.Now().UnixMilli()

	var stale bool
	if rec.LockedUntil != nil {
		stale = now > *rec.LockedUntil
	} else {
		stale = now-rec.Timestamp > g.policy.AttemptWindow.Milliseconds()
	}
	if !stale {
		return rec, true, nil
	}

	if err := g.store.Delete(ctx, AttemptsKey); err != nil {
		return AttemptRecord{}, false, fmt.Errorf("clearing attempt record: %w", err)
	}
	if rec.LockedUntil != nil {
		g.logger.Info("pin lockout expired")
	}
	return AttemptRecord{}, false, nil
}

// RemainingLockoutSeconds returns the whole seconds left on the lockout,
// rounded up, or 0 when not locked.
func (g *LockoutGuard) RemainingLockoutSeconds(ctx context.Context) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok, err := g.load(ctx)
	if err != nil || !ok || rec.LockedUntil == nil {
		return 0, err
	}
	return ceilSeconds(*rec.LockedUntil - g.clock.Now().UnixMilli()), nil
}

// TriggerLockout blocks PIN entry for d, pinning the count at MaxAttempts.
func (g *LockoutGuard) TriggerLockout(ctx context.Context, d time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now().UnixMilli()
	until := now + d.Milliseconds()

	rec, ok, err := g.load(ctx)
	if err != nil {
		return err
	}
	if !ok {
		rec = AttemptRecord{Timestamp: now}
	}
	rec.Count = g.policy.MaxAttempts
	rec.LockedUntil = &until

	if err := g.save(ctx, rec); err != nil {
		return err
	}

	g.logger.Warn("pin entry locked", "seconds", ceilSeconds(d.Milliseconds()))
	return nil
}

// Clear removes the attempt record.
func (g *LockoutGuard) Clear(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.store.Delete(ctx, AttemptsKey); err != nil {
		return fmt.Errorf("clearing attempt record: %w", err)
	}
	return nil
}

// load reads the record. A missing or unreadable record is reported as
// absent rather than as an error.
func (g *LockoutGuard) load(ctx context.Context) (AttemptRecord, bool, error) {
	data, err := g.store.Get(ctx, AttemptsKey)
	if errors.Is(err, kvstore.ErrNotFound) {
		return AttemptRecord{}, false, nil
	}
	if err != nil {
		return AttemptRecord{}, false, fmt.Errorf("loading attempt record: %w", err)
	}

	var rec AttemptRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		g.logger.Warn("discarding unreadable attempt record", "error", err)
		return AttemptRecord{}, false, nil
	}
	return rec, true, nil
}

func (g *LockoutGuard) save(ctx context.Context, rec AttemptRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding attempt record: %w", err)
	}
	if err := g.store.Set(ctx, AttemptsKey, data); err != nil {
		return fmt.Errorf("saving attempt record: %w", err)
	}
	return nil
}

// ceilSeconds converts milliseconds to whole seconds, rounding up and
// never returning a negative value.
func ceilSeconds(ms int64) int {
	if ms <= 0 {
		return 0
	}
	return int((ms + 999) / 1000) //nolint:mnd // ms per second
}
