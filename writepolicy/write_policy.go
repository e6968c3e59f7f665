package writepolicy

import (
	"context"

	"github.com/krisalay/sharded-counter/types"
)

/*
This file defines what a "write policy" is.

The in-memory stores are the fast path. A write policy decides how a committed value
reaches durable storage:
- Write-through: persist before the value becomes visible (durable, slower)
- Write-back: persist later from a background worker (fast, may lose the last window on crash)
*/

/*
WritePolicy is the contract the stores call for every shard or config change.

OnWrite is called BEFORE the new value becomes visible in memory. If it returns an error
the store abandons the write, so a failed persist never partially applies an increment.
*/
type WritePolicy interface {
	OnWrite(ctx context.Context, rec types.Record) error

	// Close flushes pending work. It is safe to call more than once.
	Close() error
}
