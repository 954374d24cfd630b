// Package store holds subscription records. The Store interface is the
// injection point: the bot runs on the in-memory implementation by default
// and on SQLite when an operator wants records to survive a restart. Armed
// expiry timers and in-flight payment watches are process-memory regardless
// of the backing store and are rebuilt from nothing after a restart; callers
// must not assume otherwise.
package store

import "github.com/dukerupert/gatekeep/internal/model"

// Store is the subscription record backend. Implementations hold at most one
// record per principal; Put overwrites. Deactivate on an absent or already
// inactive principal is a no-op, not an error. Stores are pure data: expiry
// evaluation and timer bookkeeping live in the subscription service.
type Store interface {
	// Get returns the record for the principal, or nil if none exists.
	Get(principal int64) (*model.Subscription, error)
	// Put creates or overwrites the principal's record.
	Put(sub model.Subscription) error
	// Deactivate flips the record inactive. Idempotent.
	Deactivate(principal int64) error
}
