package filestore

import (
	"bufio"
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/krisalay/sharded-counter/types"
)

/*
The file is a record log:

	{"version":2,"magic":"SHARDED_COUNTER","created":"..."}   header, one line
	{"kind":"shard","counter":"FOO","index":3,"value":12}     one record per line
	{"kind":"config","counter":"FOO","value":50}

Records are only ever appended. A key may appear many times; the largest value wins.
*/

const (
	logVersion = 2
	logMagic   = "SHARDED_COUNTER"
)

type jsonHeader struct {
	Version int    `json:"version"`
	Magic   string `json:"magic"`
	Created string `json:"created"`
}

type jsonRecord struct {
	Kind    string `json:"kind"`
	Counter string `json:"counter"`
	Index   int    `json:"index,omitempty"`
	Value   int64  `json:"value"`
}

func (hdr *jsonHeader) validate() error {
	if hdr.Magic != logMagic {
		return fmt.Errorf("invalid magic: %q", hdr.Magic)
	}
	if hdr.Version != logVersion {
		return fmt.Errorf("unsupported version: %d", hdr.Version)
	}
	return nil
}

func parseKind(s string) (types.RecordKind, error) {
	switch s {
	case types.KindShard.String():
		return types.KindShard, nil
	case types.KindConfig.String():
		return types.KindConfig, nil
	}
	return 0, fmt.Errorf("unknown record kind %q", s)
}

func decodeRecord(line []byte) (types.Record, error) {
	var jr jsonRecord
	if err := json.Unmarshal(line, &jr); err != nil {
		return types.Record{}, err
	}
	kind, err := parseKind(jr.Kind)
	if err != nil {
		return types.Record{}, err
	}
	if jr.Counter == "" || jr.Value < 0 || jr.Index < 0 {
		return types.Record{}, fmt.Errorf("malformed %s record for %q", jr.Kind, jr.Counter)
	}
	rec := types.Record{Kind: kind, Counter: jr.Counter, Index: jr.Index, Value: jr.Value}
	if kind == types.KindConfig {
		rec.Index = 0
	}
	return rec, nil
}

// mergeRecord keeps the larger value per key.
func mergeRecord(records map[string]types.Record, rec types.Record) {
	key := rec.Key()
	if old, ok := records[key]; ok && old.Value >= rec.Value {
		return
	}
	records[key] = rec
}

/*
decodeLog reads a whole log. An unterminated last line that does not parse is the tail
of an append cut short by a crash; it was never acknowledged and is dropped. Any other
bad line is an error.
*/
func decodeLog(r io.Reader) (map[string]types.Record, error) {
	br := bufio.NewReader(r)
	records := make(map[string]types.Record)

	line, err := br.ReadBytes('\n')
	if len(line) == 0 && errors.Is(err, io.EOF) {
		return records, nil
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read header: %w", err)
	}
	var hdr jsonHeader
	if err := json.Unmarshal(line, &hdr); err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}
	if err := hdr.validate(); err != nil {
		return nil, fmt.Errorf("invalid header: %w", err)
	}

	for n := 2; ; n++ {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			rec, perr := decodeRecord(line)
			switch {
			case perr == nil:
				mergeRecord(records, rec)
			case line[len(line)-1] != '\n':
				// torn tail
			default:
				return nil, fmt.Errorf("line %d: %w", n, perr)
			}
		}
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", n, err)
		}
	}
}

func encodeHeader(w io.Writer) error {
	hdr := jsonHeader{
		Version: logVersion,
		Magic:   logMagic,
		Created: time.Now().UTC().Format(time.RFC3339),
	}
	if err := json.NewEncoder(w).Encode(hdr); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	return nil
}

// encodeRecords writes one line per record.
func encodeRecords(w io.Writer, records []types.Record) error {
	enc := json.NewEncoder(w)
	for _, rec := range records {
		jr := jsonRecord{
			Kind:    rec.Kind.String(),
			Counter: rec.Counter,
			Index:   rec.Index,
			Value:   rec.Value,
		}
		if err := enc.Encode(jr); err != nil {
			return fmt.Errorf("encode %s: %w", rec.Key(), err)
		}
	}
	return nil
}

func sortedRecords(records map[string]types.Record) []types.Record {
	out := make([]types.Record, 0, len(records))
	for _, rec := range records {
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b types.Record) int { return cmp.Compare(a.Key(), b.Key()) })
	return out
}
