// Package answers converts selected-answer indices between the in-memory
// 0-based form and the stored form.
//
// Attempt rows have historically held bare JSON arrays that were mostly
// 1-based but sometimes 0-based. New rows are written as a tagged record,
// {"version":1,"values":[...]}, so reading them never has to guess. Bare
// arrays still go through the FromStorage heuristic.
package answers

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"slices"
)

// Record versions.
const (
	// VersionLegacy marks an untagged bare array.
	VersionLegacy = 0
	// VersionOneBased records hold 1-based values.
	VersionOneBased = 1
	// VersionZeroBased records hold 0-based values.
	VersionZeroBased = 2
)

// Record is the stored shape of a selection.
type Record struct {
	Version int   `json:"version"`
	Values  []int `json:"values"`
}

// ToStorage maps each 0-based index i to i+1.
func ToStorage(selection []int) []int {
	out := make([]int, len(selection))
	for i, v := range selection {
		out[i] = v + 1
	}
	return out
}

// FromStorage maps stored values back to 0-based indices. Values above zero
// are treated as 1-based; anything else is passed through as legacy 0-based
// data. A stored 1 is always read as index 0.
func FromStorage(stored []int) []int {
	out := make([]int, len(stored))
	for i, v := range stored {
		if v > 0 {
			out[i] = v - 1
		} else {
			out[i] = v
		}
	}
	return out
}

// Encode returns the tagged record for a 0-based selection. Values are sorted
// and deduplicated; negative indices are dropped.
func Encode(selection []int) (string, error) {
	rec := Record{Version: VersionOneBased, Values: ToStorage(clean(selection))}
	data, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Decode parses a stored selection into sorted, unique 0-based indices.
// It never fails: empty or malformed input yields an empty selection.
func Decode(raw string) []int {
	vals, _ := DecodeVersion(raw)
	return vals
}

// DecodeVersion is Decode that also reports which encoding was found.
func DecodeVersion(raw string) ([]int, int) {
	data := bytes.TrimSpace([]byte(raw))
	if len(data) == 0 {
		return []int{}, VersionLegacy
	}

	switch data[0] {
	case '{':
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			slog.Warn("malformed stored answers", "raw", raw, "error", err)
			return []int{}, VersionLegacy
		}
		switch rec.Version {
		case VersionOneBased:
			out := make([]int, 0, len(rec.Values))
			for _, v := range rec.Values {
				// 0 or below cannot be a 1-based index.
				if v > 0 {
					out = append(out, v-1)
				}
			}
			return clean(out), rec.Version
		case VersionZeroBased:
			return clean(rec.Values), rec.Version
		default:
			slog.Warn("unknown stored answers version", "version", rec.Version)
			return []int{}, rec.Version
		}
	case '[':
		var legacy []int
		if err := json.Unmarshal(data, &legacy); err != nil {
			slog.Warn("malformed legacy answers", "raw", raw, "error", err)
			return []int{}, VersionLegacy
		}
		return clean(FromStorage(legacy)), VersionLegacy
	default:
		slog.Warn("malformed stored answers", "raw", raw)
		return []int{}, VersionLegacy
	}
}

// clean sorts, deduplicates and drops negative indices.
func clean(vals []int) []int {
	out := make([]int, 0, len(vals))
	for _, v := range vals {
		if v >= 0 {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
