package expiration

import (
	"time"

	"github.com/krisalay/sharded-counter/types"
)

/*
ExpireAfterWrite gives every entry a fixed lifetime starting when it was inserted.
Increments applied to a live entry do not extend it.
*/
type ExpireAfterWrite struct {

	// TTL is used when the writer did not set ExpireAt itself.
	TTL time.Duration
}

// IsExpired treats the deadline itself as expired.
func (e *ExpireAfterWrite) IsExpired(ent *types.TotalEntry, now time.Time) bool {
	return !ent.ExpireAt.IsZero() && !now.Before(ent.ExpireAt)
}

// OnWrite records the creation time and sets ExpireAt unless the caller chose one.
func (e *ExpireAfterWrite) OnWrite(ent *types.TotalEntry, now time.Time) {
	ent.CreatedAt = now
	if ent.ExpireAt.IsZero() {
		ent.ExpireAt = now.Add(e.TTL)
	}
}
