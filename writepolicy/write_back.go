package writepolicy

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/krisalay/sharded-counter/types"
)

// This file implements the "write-back" policy.

// flushConcurrency bounds the Puts one flush keeps in flight.
const flushConcurrency = 64

/*
WriteBackPolicy persists records asynchronously.

Records carry absolute values, so only the latest record per key matters. Instead of a
queue that has to drop under pressure, pending records are coalesced in a map keyed by
Record.Key: a hot shard written a thousand times between flushes costs one sink write.
*/
type WriteBackPolicy struct {
	sink   types.Sink
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]types.Record
	closed  bool

	// wake has capacity 1; a pending signal is enough to make the worker drain everything.
	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// NewWriteBackPolicy creates a write-back policy and starts its worker.
func NewWriteBackPolicy(sink types.Sink, logger *slog.Logger) *WriteBackPolicy {
	if logger == nil {
		logger = slog.Default()
	}
	w := &WriteBackPolicy{
		sink:    sink,
		logger:  logger,
		pending: make(map[string]types.Record),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	w.wg.Add(1)
	go w.worker()

	return w
}

// OnWrite queues rec and returns immediately. It only fails after Close.
func (w *WriteBackPolicy) OnWrite(_ context.Context, rec types.Record) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return errors.New("write-back policy closed")
	}
	w.merge(rec)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
		// a wakeup is already pending
	}
	return nil
}

// merge keeps the larger value per key. Caller holds w.mu.
func (w *WriteBackPolicy) merge(rec types.Record) {
	key := rec.Key()
	if old, ok := w.pending[key]; ok && old.Value >= rec.Value {
		return
	}
	w.pending[key] = rec
}

// Pending returns how many keys are waiting to be flushed.
func (w *WriteBackPolicy) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

func (w *WriteBackPolicy) worker() {
	defer w.wg.Done()

	for {
		select {
		case <-w.wake:
			w.flush()
		case <-w.done:
			w.flush()
			return
		}
	}
}

/*
flush swaps the pending map out and writes it. Records are put concurrently so a sink
that group-commits persists the whole batch in a few syncs. Failed records go back into
pending unless a newer value arrived meanwhile; they are retried on the next wakeup.
*/
func (w *WriteBackPolicy) flush() error {
	w.mu.Lock()
	batch := w.pending
	w.pending = make(map[string]types.Record, len(batch))
	w.mu.Unlock()

	var (
		g      errgroup.Group
		errsMu sync.Mutex
		errs   []error
	)
	g.SetLimit(flushConcurrency)
	for _, rec := range batch {
		g.Go(func() error {
			if err := w.sink.Put(context.Background(), rec); err != nil {
				w.logger.Warn("write-back flush failed", "key", rec.Key(), "error", err)

				errsMu.Lock()
				errs = append(errs, err)
				errsMu.Unlock()

				w.mu.Lock()
				w.merge(rec)
				w.mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	return errors.Join(errs...)
}

/*
Close stops accepting records, waits for the worker and flushes whatever is left.
The returned error reports records that could not be persisted.
*/
func (w *WriteBackPolicy) Close() error {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()

		close(w.done)
		w.wg.Wait()

		// Anything re-queued by a failed final flush gets one more try.
		if w.Pending() > 0 {
			w.closeErr = w.flush()
		}
	})
	return w.closeErr
}
