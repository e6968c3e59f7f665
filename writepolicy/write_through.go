package writepolicy

import (
	"context"
	"fmt"

	"github.com/krisalay/sharded-counter/types"
)

/*
WriteThroughPolicy forwards every record to the sink synchronously.

So the flow is: store write → sink write → value visible in memory.
*/
type WriteThroughPolicy struct {
	sink types.Sink
}

func NewWriteThroughPolicy(sink types.Sink) *WriteThroughPolicy {
	return &WriteThroughPolicy{sink: sink}
}

// OnWrite persists rec. Sink failures are reported as ErrStoreUnavailable so the engine
// treats them as transient.
func (w *WriteThroughPolicy) OnWrite(ctx context.Context, rec types.Record) error {
	if err := w.sink.Put(ctx, rec); err != nil {
		return fmt.Errorf("%w: persist %s: %w", types.ErrStoreUnavailable, rec.Key(), err)
	}
	return nil
}

// Close has nothing to flush.
func (w *WriteThroughPolicy) Close() error { return nil }
