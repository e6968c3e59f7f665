package eviction

import "fmt"

/*
This file defines how a total cache bucket picks a victim when it is full.

Policies are NOT safe for concurrent use; the bucket that owns one calls it under its lock.
*/
type Policy interface {

	// OnGet is called when a cached total is served.
	OnGet(string)

	// OnPut is called when a counter name is inserted. Re-inserting a tracked name is a no-op.
	OnPut(string)

	// Remove forgets a name that left the bucket for another reason (expiry).
	Remove(string)

	// Evict picks a victim, forgets it and returns it. "" means nothing is tracked.
	Evict() string
}

// PolicyType names a supported eviction strategy.
type PolicyType string

const (
	// LRU evicts the total that was served least recently.
	LRU PolicyType = "LRU"

	// LFU evicts the total that was served the fewest times.
	LFU PolicyType = "LFU"

	// FIFO evicts the oldest inserted total.
	FIFO PolicyType = "FIFO"
)

// Valid reports whether t names a known policy.
func (t PolicyType) Valid() bool {
	switch t {
	case LRU, LFU, FIFO:
		return true
	}
	return false
}

// NewEvictionPolicy builds the policy for t. Callers validate t first.
func NewEvictionPolicy(t PolicyType) Policy {
	switch t {
	case LRU:
		return newLRU()
	case LFU:
		return newLFU()
	case FIFO:
		return newFIFO()
	default:
		panic(fmt.Sprintf("unknown eviction policy %q", t))
	}
}
