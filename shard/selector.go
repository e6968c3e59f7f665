package shard

import (
	"math/rand/v2"
	"sync"
)

/*
This file decides WHICH shard an increment lands on.

Uniform random selection is the whole load-balancing story: with n shards the expected
contention on any one shard is writeRate / n. Keys play no part; every increment of the
same counter is free to land anywhere in [0, n).
*/

// Selector picks a shard index in [0, n). n is always ≥ 1.
type Selector interface {
	Select(n int) int
}

/*
RandomSelector picks uniformly at random.

Without a source it uses the runtime's goroutine-safe generator, which has no shared lock.
With an explicit source (seeded, for reproducible runs) calls are serialized, because
*rand.Rand is not safe for concurrent use.
*/
type RandomSelector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandomSelector(src rand.Source) *RandomSelector {
	if src == nil {
		return &RandomSelector{}
	}
	return &RandomSelector{rng: rand.New(src)}
}

func (r *RandomSelector) Select(n int) int {
	if n <= 1 {
		return 0
	}
	if r.rng == nil {
		return rand.IntN(n)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.IntN(n)
}

// SequenceSelector replays a fixed sequence of indices, wrapping around at the end.
// Each value is reduced modulo n so the shard bound always holds.
type SequenceSelector struct {
	mu   sync.Mutex
	seq  []int
	next int
}

func NewSequenceSelector(seq ...int) *SequenceSelector {
	return &SequenceSelector{seq: seq}
}

func (s *SequenceSelector) Select(n int) int {
	if n <= 1 || len(s.seq) == 0 {
		return 0
	}

	s.mu.Lock()
	v := s.seq[s.next%len(s.seq)]
	s.next++
	s.mu.Unlock()

	if v < 0 {
		v = -v
	}
	return v % n
}
