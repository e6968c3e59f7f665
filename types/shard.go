package types

import (
	"fmt"
	"time"
)

/*
This file defines the records the counter persists and caches.

A logical counter is never stored as one number. It is the sum of its shards:

	total(name) = sum(shard.Count for every shard of name)

Shards and configs are created lazily and never deleted.
*/

// Shard is one physical partition of a logical counter.
type Shard struct {
	Counter string
	Index   int
	Count   int64
}

// ShardConfig tracks how many shards new increments may be spread over.
// ShardCount never decreases over the lifetime of a counter name.
type ShardConfig struct {
	Counter    string
	ShardCount int
}

// RecordKind tells a Sink which logical table a Record belongs to.
type RecordKind uint8

const (
	KindShard RecordKind = iota + 1
	KindConfig
)

func (k RecordKind) String() string {
	switch k {
	case KindShard:
		return "shard"
	case KindConfig:
		return "config"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

/*
Record is the unit handed to write policies and sinks.

Value is always ABSOLUTE (the shard count or the shard count of a config), never a delta.
Both tables only ever grow, so a sink may keep max(old, new) per key and replaying
records in any order converges to the same state.
*/
type Record struct {
	Kind    RecordKind
	Counter string
	Index   int // only meaningful for KindShard
	Value   int64
}

// ShardRecord builds the record for a committed shard count.
func ShardRecord(counter string, index int, count int64) Record {
	return Record{Kind: KindShard, Counter: counter, Index: index, Value: count}
}

// ConfigRecord builds the record for a shard config.
func ConfigRecord(counter string, shardCount int) Record {
	return Record{Kind: KindConfig, Counter: counter, Value: int64(shardCount)}
}

// Key identifies the logical row a record overwrites.
func (r Record) Key() string {
	if r.Kind == KindShard {
		return fmt.Sprintf("%s/%s/%d", r.Kind, r.Counter, r.Index)
	}
	return fmt.Sprintf("%s/%s", r.Kind, r.Counter)
}

// TotalEntry is one cached aggregate inside a total cache.
// ExpireAt is always set; totals never live forever.
type TotalEntry struct {
	Counter   string
	Value     int64
	CreatedAt time.Time
	ExpireAt  time.Time
}
