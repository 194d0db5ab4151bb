package auth

import (
	"strings"
	"sync"
	"time"
)

// LockoutTracker counts consecutive failed sign-in attempts per account and
// locks the account once the caller's policy threshold is hit. The threshold
// and duration come in per call because they depend on the account's security
// level, which is only known after the principal resolves. Counters live in
// process memory: a restart forgives outstanding attempts but never unlocks
// an account whose stored status was flipped to locked.
type LockoutTracker struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]*lockoutEntry
}

type lockoutEntry struct {
	failures    int
	lockedUntil time.Time
}

// NewLockoutTracker builds a tracker using the given clock (nil means
// time.Now).
func NewLockoutTracker(now func() time.Time) *LockoutTracker {
	if now == nil {
		now = time.Now
	}
	return &LockoutTracker{
		now:     now,
		entries: make(map[string]*lockoutEntry),
	}
}

// Locked reports whether the account is currently locked out.
func (t *LockoutTracker) Locked(email string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := normalizeEmail(email)
	e, ok := t.entries[key]
	if !ok || e.lockedUntil.IsZero() {
		return false
	}
	if t.now().Before(e.lockedUntil) {
		return true
	}
	// Lock elapsed: reset the counter so the next failure starts fresh.
	delete(t.entries, key)
	return false
}

// RecordFailure counts a failed attempt under the given policy. Returns true
// when this failure crossed the threshold and locked the account. A
// non-positive threshold disables locking.
func (t *LockoutTracker) RecordFailure(email string, maxAttempts int, duration time.Duration) bool {
	if maxAttempts <= 0 {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	key := normalizeEmail(email)
	e, ok := t.entries[key]
	if !ok {
		e = &lockoutEntry{}
		t.entries[key] = e
	}
	e.failures++
	if e.failures >= maxAttempts && e.lockedUntil.IsZero() {
		e.lockedUntil = t.now().Add(duration)
		return true
	}
	return false
}

// RecordSuccess clears the failure counter after a successful sign-in.
func (t *LockoutTracker) RecordSuccess(email string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, normalizeEmail(email))
}

// Remaining returns how long the lock has left to run, or zero.
func (t *LockoutTracker) Remaining(email string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[normalizeEmail(email)]
	if !ok || e.lockedUntil.IsZero() {
		return 0
	}
	left := e.lockedUntil.Sub(t.now())
	if left < 0 {
		return 0
	}
	return left
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
