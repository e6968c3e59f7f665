package shard_test

import (
	"context"
	"sync"

	"github.com/krisalay/sharded-counter/types"
)

// recordingPolicy remembers every record and can fail the next write.
type recordingPolicy struct {
	mu       sync.Mutex
	records  []types.Record
	failNext error
	closed   int
}

func (p *recordingPolicy) OnWrite(_ context.Context, rec types.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failNext; err != nil {
		p.failNext = nil
		return err
	}
	p.records = append(p.records, rec)
	return nil
}

func (p *recordingPolicy) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

func (p *recordingPolicy) failOnce(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failNext = err
}

func (p *recordingPolicy) snapshot() []types.Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]types.Record(nil), p.records...)
}

func inc(n int64) int64 { return n + 1 }
