package shard

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

/*
This file defines the in-memory layout of one counter's shards.

	namespace (one per counter name)
	  └── slots: index → *slot   (copy-on-write map, lock-free reads)
	        └── slot: mutex + count

Writers of DIFFERENT indices never share a lock: each slot has its own mutex.
The namespace mutex is only taken the first time an index is written.
*/

// slot holds the committed count of one shard.
type slot struct {
	mu    sync.Mutex
	count int64

	// Neighbouring slots are allocated together; keep their mutexes off one cache line.
	_ cpu.CacheLinePad
}

func (s *slot) load() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

type namespace struct {
	// mu serializes slot creation only.
	mu sync.Mutex

	// slots is replaced wholesale on every slot creation.
	slots atomic.Pointer[map[int]*slot]
}

func newNamespace() *namespace {
	ns := &namespace{}
	m := make(map[int]*slot)
	ns.slots.Store(&m)
	return ns
}

func (ns *namespace) snapshot() map[int]*slot {
	return *ns.slots.Load()
}

func (ns *namespace) lookup(index int) (*slot, bool) {
	sl, ok := ns.snapshot()[index]
	return sl, ok
}

/*
getOrCreate returns the slot for index, creating it on first use.

1. Fast path: lock-free lookup in the current snapshot
2. Slow path: under mu, copy the map, add the slot, swap the pointer
*/
func (ns *namespace) getOrCreate(index int) *slot {
	if sl, ok := ns.lookup(index); ok {
		return sl
	}

	ns.mu.Lock()
	defer ns.mu.Unlock()

	old := ns.snapshot()
	if sl, ok := old[index]; ok {
		return sl
	}

	n := make(map[int]*slot, len(old)+1)
	for k, v := range old {
		n[k] = v
	}
	sl := &slot{}
	n[index] = sl
	ns.slots.Store(&n)

	return sl
}
