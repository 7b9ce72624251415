// Package grace tracks the short-lived flag set after a successful consent
// submission. The flag only tells the acceptance view that the persisted record
// may not be visible yet; it never changes an authorization decision.
package grace

import (
	"context"
	"time"
)

// Store records and checks grace flags per user session.
type Store interface {
	// Set marks the session as inside its grace window.
	Set(ctx context.Context, userID, sessionID string) error
	// Active reports whether the session is still inside its grace window.
	Active(ctx context.Context, userID, sessionID string) (bool, error)
	// Close releases resources held by the store.
	Close()
}

// Key returns the storage key of a session's grace flag.
func Key(userID, sessionID string) string {
	return "grace:" + userID + ":" + sessionID
}

// normalizeTTL falls back to a one second window for non-positive durations.
func normalizeTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return time.Second
	}
	return ttl
}
