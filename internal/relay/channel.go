package relay

import "context"

// Channel is the durable, at-least-once message store between the CRUD
// services and the fan-out consumer. It owns record persistence, the append
// offset, per-subscription cursors, and lease-based delivery claims.
type Channel interface {
	// Append stores one record at its offset. Appending an offset that
	// already holds a record is an idempotent no-op for the caller.
	Append(ctx context.Context, rec Record) error

	// Load retrieves records from fromOffset onward, in offset order,
	// capped at limit.
	Load(ctx context.Context, fromOffset uint64, limit int) ([]Record, error)

	// NextOffset returns the current append position.
	NextOffset(ctx context.Context) (uint64, error)

	// CommitOffset advances the append position. Commits are monotonic;
	// a stale offset is silently ignored.
	CommitOffset(offset uint64) error

	// GetCursor returns the read position for a subscription, 0 for a
	// subscription that has never committed.
	GetCursor(ctx context.Context, sub string) (uint64, error)

	// CommitCursor advances a subscription's read position. Commits are
	// monotonic; a stale offset is silently ignored.
	CommitCursor(sub string, offset uint64) error

	// Acquire claims a record for exclusive processing. Returns the
	// storage layer's document-exists error when another worker already
	// holds the claim.
	Acquire(ctx context.Context, sub, recordID string, offset uint64) error

	// Release drops a claim. Safe to call for a claim that no longer
	// exists.
	Release(ctx context.Context, sub, recordID string) error
}
