package types

import "errors"

var (
	// ErrStoreUnavailable is returned when durable storage cannot be reached.
	// It is transient: the engine retries it.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrTransactionConflict is returned by backends with optimistic concurrency when a
	// concurrent writer raced on the same key. It is transient: the engine retries it
	// with a freshly selected shard.
	ErrTransactionConflict = errors.New("transaction conflict")

	// ErrInvalidCounterName is returned for empty or malformed names before any store access.
	ErrInvalidCounterName = errors.New("invalid counter name")

	// ErrInvalidShardCount is returned for shard counts below 1 or shard indices below 0.
	ErrInvalidShardCount = errors.New("invalid shard count")

	// ErrUnknownCounter is returned when a config is required but was never created.
	ErrUnknownCounter = errors.New("unknown counter")
)

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrTransactionConflict)
}
