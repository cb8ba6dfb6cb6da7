// Package transform reshapes upstream log records into the wire format the
// ingestion API accepts.
package transform

import (
	"encoding/json"
	"time"
)

// Schema identifies the wire format version of every record we emit.
const Schema = "https://raw.githubusercontent.com/austindbirch/logframe-schema/v4.1.0/schema.json"

// Upstream field names.
const (
	ReservedKey  = "logframe" // pre-shaped wire fragment
	TimestampKey = "@timestamp"
	VersionKey   = "@version"
	HostKey      = "host"
	MessageKey   = "message"
)

// Wire field names.
const (
	SchemaKey = "$schema"
	DTKey     = "dt"
	MetaKey   = "meta"
)

var hostnamePath = []string{"context", "system", "hostname"}

// consumed lists the upstream fields that never end up under meta.
var consumed = []string{VersionKey, ReservedKey, TimestampKey, HostKey, MessageKey}

// Record is one structured event as handed to us by the upstream pipeline.
type Record map[string]any

// WireRecord is the canonical shape sent to the ingestion API.
type WireRecord map[string]any

// Transform converts rec into its wire representation. It never fails and
// never modifies rec; malformed optional fields are skipped or passed through.
//
// Values seeded by the reserved fragment win over the explicit upstream
// fields, so every later step only writes keys that are still absent.
func Transform(rec Record) WireRecord {
	out := WireRecord{SchemaKey: Schema}

	if fragment, ok := asMap(rec[ReservedKey]); ok {
		for k, v := range fragment {
			out[k] = deepCopy(v)
		}
	}

	if ts, ok := present(rec, TimestampKey); ok {
		if dt := formatTimestamp(ts); dt != nil {
			setIfAbsent(out, DTKey, dt)
		}
	}
	if host, ok := present(rec, HostKey); ok {
		setPathIfAbsent(out, hostnamePath, deepCopy(host))
	}
	if msg, ok := present(rec, MessageKey); ok {
		setIfAbsent(out, MessageKey, msg)
	}

	rest := make(map[string]any, len(rec))
	for k, v := range rec {
		rest[k] = v
	}
	for _, k := range consumed {
		delete(rest, k)
	}
	if len(rest) == 0 {
		return out
	}

	existing, ok := present(out, MetaKey)
	if !ok {
		meta := make(map[string]any, len(rest))
		for k, v := range rest {
			meta[k] = deepCopy(v)
		}
		out[MetaKey] = meta
		return out
	}
	// a non-mapping meta seeded by the fragment is kept as is
	if meta, ok := asMap(existing); ok {
		for k, v := range rest {
			setIfAbsent(meta, k, deepCopy(v))
		}
	}
	return out
}

// Batch transforms every record in order.
func Batch(recs []Record) []WireRecord {
	out := make([]WireRecord, 0, len(recs))
	for _, r := range recs {
		out = append(out, Transform(r))
	}
	return out
}

// present reports whether key is set to a non-nil value.
func present[M ~map[string]any](m M, key string) (any, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func setIfAbsent[M ~map[string]any](m M, key string, v any) {
	if _, ok := present(m, key); ok {
		return
	}
	m[key] = v
}

// setPathIfAbsent writes v at the nested path, creating intermediate maps.
// A non-map value along the path is left alone and nothing is written.
func setPathIfAbsent(m map[string]any, path []string, v any) {
	cur := m
	for _, k := range path[:len(path)-1] {
		next, ok := present(cur, k)
		if !ok {
			child := map[string]any{}
			cur[k] = child
			cur = child
			continue
		}
		child, ok := asMap(next)
		if !ok {
			return
		}
		cur = child
	}
	setIfAbsent(cur, path[len(path)-1], v)
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Record:
		return m, true
	case WireRecord:
		return m, true
	}
	return nil, false
}

// deepCopy clones nested maps and slices so the output never aliases the
// caller's record.
func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		c := make(map[string]any, len(t))
		for k, vv := range t {
			c[k] = deepCopy(vv)
		}
		return c
	case Record:
		return deepCopy(map[string]any(t))
	case WireRecord:
		return deepCopy(map[string]any(t))
	case []any:
		c := make([]any, len(t))
		for i, vv := range t {
			c[i] = deepCopy(vv)
		}
		return c
	}
	return v
}

func formatTimestamp(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case *time.Time:
		if t == nil {
			return nil
		}
		return t.UTC().Format(time.RFC3339Nano)
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return t
		}
		return parsed.UTC().Format(time.RFC3339Nano)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return t
		}
		return fromUnix(f)
	case float64:
		return fromUnix(t)
	case int64:
		return time.Unix(t, 0).UTC().Format(time.RFC3339Nano)
	case int:
		return time.Unix(int64(t), 0).UTC().Format(time.RFC3339Nano)
	}
	return v
}

func fromUnix(secs float64) string {
	whole := int64(secs)
	nanos := int64((secs - float64(whole)) * float64(time.Second))
	return time.Unix(whole, nanos).UTC().Format(time.RFC3339Nano)
}
