/*
Package filestore persists counter records in an append-only log file.

Put appends and returns once the record is on stable storage. Puts do not take turns on
the disk: they queue records into the open batch and a single committer goroutine writes
each batch with one append and one fsync (group commit). Open compacts the log to one line
per key.
*/
package filestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/krisalay/sharded-counter/types"
)

var errClosed = errors.New("filestore closed")

// Store implements types.Sink on top of a log file it owns exclusively.
type Store struct {
	path   string
	unlock func()

	// file, size and syncFile are only touched by the committer after Open.
	file *os.File
	size int64

	// syncFile flushes the log to stable storage.
	syncFile func(*os.File) error

	mu sync.Mutex

	// records holds the committed view of the log.
	records map[string]types.Record

	// pending collects records for the next commit; nil when empty.
	pending *batch
	closed  bool

	// kick has capacity 1; one pending signal makes the committer take everything queued.
	kick chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

// batch is one group commit. done is closed once err is set.
type batch struct {
	records map[string]types.Record
	done    chan struct{}
	err     error
}

var _ types.Sink = (*Store)(nil)

// Open locks path, loads and compacts the log in it, and starts the committer.
// A missing file is an empty store.
func Open(path string) (*Store, error) {
	unlock, err := acquireLock(path)
	if err != nil {
		return nil, err
	}

	records, err := readLog(path)
	if err != nil {
		unlock()
		return nil, err
	}
	if err := compact(path, records); err != nil {
		unlock()
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		unlock()
		return nil, fmt.Errorf("open log: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		unlock()
		return nil, fmt.Errorf("stat log: %w", err)
	}

	s := &Store{
		path:     path,
		unlock:   unlock,
		file:     f,
		size:     st.Size(),
		syncFile: (*os.File).Sync,
		records:  records,
		kick:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	s.wg.Add(1)
	go s.committer()

	return s, nil
}

func readLog(path string) (map[string]types.Record, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]types.Record), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	return decodeLog(f)
}

// compact rewrites path with one line per key through a temporary file and a rename.
func compact(path string, records map[string]types.Record) error {
	tmp := path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create compacted log: %w", err)
	}
	err = encodeHeader(f)
	if err == nil {
		err = encodeRecords(f, sortedRecords(records))
	}
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp, path)
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("compact log: %w", err)
	}
	return nil
}

/*
Put appends rec unless an equal or larger value is already committed for its key,
and waits until the batch holding it is synced. A failed commit fails every Put in
the batch and leaves the committed view unchanged.
*/
func (s *Store) Put(ctx context.Context, rec types.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errClosed
	}
	if old, ok := s.records[rec.Key()]; ok && old.Value >= rec.Value {
		s.mu.Unlock()
		return nil
	}
	if s.pending == nil {
		s.pending = &batch{records: make(map[string]types.Record), done: make(chan struct{})}
	}
	b := s.pending
	mergeRecord(b.records, rec)
	s.mu.Unlock()

	select {
	case s.kick <- struct{}{}:
	default:
	}

	<-b.done
	return b.err
}

func (s *Store) committer() {
	defer s.wg.Done()

	for {
		select {
		case <-s.kick:
			s.commit()
		case <-s.done:
			s.commit()
			return
		}
	}
}

// commit takes the pending batch, appends it and publishes the outcome.
func (s *Store) commit() {
	s.mu.Lock()
	b := s.pending
	s.pending = nil
	s.mu.Unlock()

	if b == nil {
		return
	}

	err := s.appendBatch(b.records)

	if err == nil {
		s.mu.Lock()
		for _, rec := range b.records {
			mergeRecord(s.records, rec)
		}
		s.mu.Unlock()
	}

	b.err = err
	close(b.done)
}

func (s *Store) appendBatch(records map[string]types.Record) error {
	var buf bytes.Buffer
	if err := encodeRecords(&buf, sortedRecords(records)); err != nil {
		return err
	}

	n, err := s.file.Write(buf.Bytes())
	if err != nil {
		err = fmt.Errorf("append log: %w", err)
	} else if err = s.syncFile(s.file); err != nil {
		err = fmt.Errorf("sync log: %w", err)
	}
	if err != nil {
		// Cut off whatever made it to the file so the next batch starts on a clean line.
		if terr := s.file.Truncate(s.size); terr != nil {
			return errors.Join(err, fmt.Errorf("truncate log: %w", terr))
		}
		return err
	}

	s.size += int64(n)
	return nil
}

// Load returns every committed record ordered by key.
func (s *Store) Load(ctx context.Context) ([]types.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errClosed
	}
	return sortedRecords(s.records), nil
}

// Close commits what is queued, closes the log and releases the lock. Further calls are no-ops.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)
	s.wg.Wait()

	err := s.file.Close()
	s.unlock()
	return err
}
