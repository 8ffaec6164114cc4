package db

import (
	"encoding/json"
	"fmt"
)

// The mutable array fields on intake.candidates are stored as jsonb. These
// helpers keep the encoding in one place; empty slices round-trip as '[]',
// never as SQL NULL.

func EncodeStringArray(values []string) (json.RawMessage, error) {
	if values == nil {
		values = []string{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("encode string array: %w", err)
	}
	return raw, nil
}

func DecodeStringArray(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return []string{}, nil
	}
	var values []string
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("decode string array: %w", err)
	}
	if values == nil {
		values = []string{}
	}
	return values, nil
}

func EncodeIDArray(ids []int64) (json.RawMessage, error) {
	if ids == nil {
		ids = []int64{}
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("encode id array: %w", err)
	}
	return raw, nil
}

// EncodeHistoryEntry marshals one application history entry for a jsonb
// append. The value must decode as a single-element array so `||` extends the
// stored list instead of nesting it.
func EncodeHistoryEntry(entry any) (json.RawMessage, error) {
	raw, err := json.Marshal([]any{entry})
	if err != nil {
		return nil, fmt.Errorf("encode history entry: %w", err)
	}
	return raw, nil
}

func DecodeIDArray(raw []byte) ([]int64, error) {
	if len(raw) == 0 {
		return []int64{}, nil
	}
	var ids []int64
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("decode id array: %w", err)
	}
	if ids == nil {
		ids = []int64{}
	}
	return ids, nil
}
