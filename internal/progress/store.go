// Package progress persists in-flight session snapshots so a session can be
// resumed after a reload or reconnect. The controller writes on a fixed
// interval and reads exactly once, at initialization.
package progress

import "context"

// Snapshot is the serializable portion of a session's state. Questions and
// phase are intentionally absent: questions are re-fetched on load and the
// phase is re-derived as ACTIVE.
type Snapshot struct {
	Answers              map[string]string `json:"answers"`
	Bookmarked           map[string]bool   `json:"bookmarked"`
	Visited              map[string]bool   `json:"visited"`
	CurrentIndex         int               `json:"current_index"`
	TimeRemainingSeconds int               `json:"time_remaining_seconds"`
}

// Store is the narrow persistence port the session controller depends on.
// Saves are idempotent and overwrite in place.
type Store interface {
	// Save writes the snapshot under the session's key.
	Save(ctx context.Context, sessionID string, snap *Snapshot) error
	// Load returns the stored snapshot, or (nil, nil) if absent.
	Load(ctx context.Context, sessionID string) (*Snapshot, error)
	// Clear deletes the stored snapshot. Clearing an absent key is a no-op.
	Clear(ctx context.Context, sessionID string) error
}
