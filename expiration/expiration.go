// This file defines how cached totals expire.

package expiration

import (
	"time"

	"github.com/krisalay/sharded-counter/types"
)

/*
Strategy decides when a cached total stops being served.

There is no read hook. Reads never extend an entry's lifetime, so the TTL is also the
upper bound on how stale a served total can be.
*/
type Strategy interface {

	// IsExpired reports whether ent must no longer be served at now.
	IsExpired(ent *types.TotalEntry, now time.Time) bool

	// OnWrite stamps a freshly inserted entry.
	OnWrite(ent *types.TotalEntry, now time.Time)
}
