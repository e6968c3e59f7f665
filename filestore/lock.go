package filestore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// ErrLockHeld is returned when another Store (in this or another process) owns the log.
var ErrLockHeld = errors.New("record log lock already held")

/*
acquireLock creates "<path>.lock" exclusively and returns a function that removes it.

O_EXCL makes creation atomic across processes. The lock file holds the owner's pid for
humans; it is never read back. A crashed owner leaves a stale lock that must be removed by hand.
*/
func acquireLock(path string) (func(), error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve log path: %w", err)
	}
	lockPath := abs + ".lock"

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrLockHeld, lockPath)
		}
		return nil, fmt.Errorf("create lock file: %w", err)
	}
	_, werr := f.WriteString(strconv.Itoa(os.Getpid()))
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		os.Remove(lockPath)
		return nil, fmt.Errorf("write lock file: %w", werr)
	}

	return func() { os.Remove(lockPath) }, nil
}
