package recordstore

import (
	"encoding/json"
	"fmt"
)

// Normalize round-trips fields through JSON so that every backend holds the
// same value kinds (string, float64, bool, nil, map, slice) and callers can
// no longer mutate what was stored.
func Normalize(fields map[string]any) (Record, error) {
	b, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	var out Record
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	if out == nil {
		out = Record{}
	}
	return out, nil
}

// Encode converts a typed value into a Record using its JSON field names.
func Encode[T any](v T) (Record, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	var out Record
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return out, nil
}

// Decode converts a Record into a typed value.
func Decode[T any](rec Record) (T, error) {
	var target T
	b, err := json.Marshal(rec)
	if err != nil {
		return target, fmt.Errorf("decode record: %w", err)
	}
	if err := json.Unmarshal(b, &target); err != nil {
		return target, fmt.Errorf("decode record: %w", err)
	}
	return target, nil
}

// DecodeAll decodes a slice of records, stopping at the first failure.
func DecodeAll[T any](recs []Record) ([]T, error) {
	out := make([]T, 0, len(recs))
	for _, r := range recs {
		v, err := Decode[T](r)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", r.ID(), err)
		}
		out = append(out, v)
	}
	return out, nil
}
