// Package record models the loosely-shaped run documents returned by the
// LangSmith query API and the lookup/parsing helpers the pipeline uses to
// read them without panicking on missing or mistyped fields.
package record

import (
	"time"
)

// Run is a raw run document as decoded from the API response. Field presence
// and types are never guaranteed; use Dig and friends to read nested values.
type Run map[string]any

// ID returns the run's id field, or "" when absent.
func (r Run) ID() string {
	s, _ := r["id"].(string)
	return s
}

// ThreadID returns the run's thread_id field, or "" when absent or not a string.
func (r Run) ThreadID() string {
	s, _ := r["thread_id"].(string)
	return s
}

// StartTime returns the raw start_time string, or "" when absent.
func (r Run) StartTime() string {
	s, _ := r["start_time"].(string)
	return s
}

// Clone returns a deep copy of the run. Nested maps and slices are copied so
// mutating the clone never touches the original.
func (r Run) Clone() Run {
	if r == nil {
		return nil
	}
	return Run(cloneMap(map[string]any(r)))
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// Dig walks a path of keys through nested maps. It returns (nil, false) as
// soon as a step is missing or the current value is not a map.
func Dig(m map[string]any, path ...string) (any, bool) {
	var cur any = m
	for _, key := range path {
		node, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = node[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// DigString is Dig for string leaves. Non-string values report absent.
func DigString(m map[string]any, path ...string) (string, bool) {
	v, ok := Dig(m, path...)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// DigSlice is Dig for sequence leaves. Non-slice values report absent.
func DigSlice(m map[string]any, path ...string) ([]any, bool) {
	v, ok := Dig(m, path...)
	if !ok {
		return nil, false
	}
	s, ok := v.([]any)
	return s, ok
}

// timestampLayouts are tried in order. The API emits RFC 3339 with or without
// fractional seconds, and occasionally naive timestamps with no offset.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp parses an ISO-8601 timestamp string. The second return value
// reports whether the input was parseable; callers decide whether an invalid
// timestamp degrades to earliest-possible (dedup) or to a skip (simplification).
// Naive timestamps (no offset) are interpreted as UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
