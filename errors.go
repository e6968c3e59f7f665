package counter

import "fmt"

// OpError is returned by every ShardedCounter operation. It unwraps to the underlying
// cause, so callers test it with errors.Is(err, types.ErrStoreUnavailable) and friends.
type OpError struct {
	Op       string
	Counter  string
	Attempts int // 0 when the call was rejected before touching a store
	Err      error
}

func (e *OpError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("%s %q failed after %d attempts: %v", e.Op, e.Counter, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", e.Op, e.Counter, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }
