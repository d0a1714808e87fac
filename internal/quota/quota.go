// Package quota tracks per-user consumed-message counts against a fixed
// allowance. Counters are persisted independently of the roster and only
// ever grow; there is no in-product reset.
package quota

import (
	"context"
	"fmt"
	"sync"

	"github.com/red-ai/redterm/internal/store"
)

// counterKeyPrefix namespaces the per-username counter records.
const counterKeyPrefix = "msg_count:"

// Subject identifies an account for quota decisions.
type Subject struct {
	Username  string // Account name.
	Unlimited bool   // Roster isUnlimited flag.
}

// Tracker decides remaining allowance and records accepted messages.
type Tracker struct {
	records  *store.RecordStore
	limit    int
	reserved func(string) bool

	mu sync.Mutex
}

// NewTracker constructs a Tracker with the injected message cap and the
// reserved-identity predicate.
func NewTracker(records *store.RecordStore, limit int, reserved func(string) bool) *Tracker {
	if reserved == nil {
		reserved = func(string) bool { return false }
	}
	return &Tracker{records: records, limit: limit, reserved: reserved}
}

// Limit returns the message cap shared by all non-unlimited users.
func (t *Tracker) Limit() int { return t.limit }

// Exempt reports whether the subject bypasses quota enforcement: reserved
// identities and roster entries flagged unlimited.
func (t *Tracker) Exempt(subject Subject) bool {
	return t.reserved(subject.Username) || subject.Unlimited
}

// Used returns the persisted consumed-message count for username.
func (t *Tracker) Used(ctx context.Context, username string) (int, error) {
	var count int
	if _, errGet := t.records.Get(ctx, counterKey(username), &count); errGet != nil {
		return 0, errGet
	}
	return count, nil
}

// Remaining returns the unused allowance for the subject. Exempt subjects
// always report the full allowance.
func (t *Tracker) Remaining(ctx context.Context, subject Subject) (int, error) {
	if t.Exempt(subject) {
		return t.limit, nil
	}
	used, errUsed := t.Used(ctx, subject.Username)
	if errUsed != nil {
		return 0, errUsed
	}
	if used >= t.limit {
		return 0, nil
	}
	return t.limit - used, nil
}

// IsLimitReached reports whether the subject has exhausted its allowance.
// A reached limit is a hard stop: the caller must reject the message before
// any upstream call.
func (t *Tracker) IsLimitReached(ctx context.Context, subject Subject) (bool, error) {
	if t.Exempt(subject) {
		return false, nil
	}
	used, errUsed := t.Used(ctx, subject.Username)
	if errUsed != nil {
		return false, errUsed
	}
	return used >= t.limit, nil
}

// RecordUsage increments the subject's persisted counter by one. It must be
// called exactly once per accepted outbound message and never for exempt
// subjects; calling it for an exempt subject is a no-op.
func (t *Tracker) RecordUsage(ctx context.Context, subject Subject) error {
	if t.Exempt(subject) {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	used, errUsed := t.Used(ctx, subject.Username)
	if errUsed != nil {
		return errUsed
	}
	if errSet := t.records.Set(ctx, counterKey(subject.Username), used+1); errSet != nil {
		return fmt.Errorf("quota: record usage for %s: %w", subject.Username, errSet)
	}
	return nil
}

// Clear removes the persisted counter for username. Used when an account is
// deleted so no orphaned counter lingers.
func (t *Tracker) Clear(ctx context.Context, username string) error {
	return t.records.Remove(ctx, counterKey(username))
}

// counterKey returns the storage key for a username's counter.
func counterKey(username string) string {
	return counterKeyPrefix + username
}
