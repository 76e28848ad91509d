package store

import (
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
)

// normalize converts v to the shape it has after a JSON round trip, so that
// an int filter value equals the float64 decoded from storage.
func normalize(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}

	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}

	return out
}

func matches(rec Record, match Filter) bool {
	for k, want := range match {
		got, ok := rec[k]
		if !ok {
			return false
		}

		if !reflect.DeepEqual(normalize(got), normalize(want)) {
			return false
		}
	}

	return true
}

// merged returns a copy of base with every field of update applied.
func merged(base Record, update Record) Record {
	out := make(Record, len(base)+len(update))
	maps.Copy(out, base)
	maps.Copy(out, update)

	return out
}

func newRecord(record Record, match Filter) Record {
	out := make(Record, len(record)+len(match))
	maps.Copy(out, match)
	maps.Copy(out, record)

	return out
}

func encodeRecord(rec Record) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}

	return data, nil
}

func decodeRecord(data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}

	return rec, nil
}
