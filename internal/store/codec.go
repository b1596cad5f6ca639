package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// TimestampLayout is the fixed-width UTC form timestamps take inside JSON
// encoded documents. Lexical order of encoded values matches time order.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTimestamp encodes t with TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp decodes a timestamp produced by FormatTimestamp. Any
// RFC 3339 value is accepted as well.
func ParseTimestamp(s string) (time.Time, bool) {
	if t, err := time.Parse(TimestampLayout, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

// Resolve returns a copy of fields with every ServerTimestamp replaced by now.
func Resolve(fields Fields, now time.Time) Fields {
	out := fields.Clone()
	for k, v := range out {
		if v == ServerTimestamp {
			out[k] = now.UTC()
		}
	}
	return out
}

// EncodeFields serializes fields as a JSON object. time.Time values are
// written with TimestampLayout. Unresolved ServerTimestamp values are an error.
func EncodeFields(fields Fields) ([]byte, error) {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		val, err := encodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode field %s: %w", k, err)
		}
		out[k] = val
	}
	return json.Marshal(out)
}

// EncodeValue serializes a single field value as JSON.
func EncodeValue(v any) ([]byte, error) {
	val, err := encodeValue(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(val)
}

func encodeValue(v any) (any, error) {
	switch val := v.(type) {
	case serverTimestamp:
		return nil, fmt.Errorf("unresolved server timestamp")
	case time.Time:
		return FormatTimestamp(val), nil
	default:
		return v, nil
	}
}

// DecodeFields parses a JSON object produced by EncodeFields. Timestamps
// come back as strings; callers convert them with ParseTimestamp.
func DecodeFields(data []byte) (Fields, error) {
	var fields Fields
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode fields: %w", err)
	}
	if fields == nil {
		fields = Fields{}
	}
	return fields, nil
}

// DecodeValue parses a single JSON value produced by EncodeValue.
func DecodeValue(data []byte) (any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to decode value: %w", err)
	}
	return v, nil
}

// CompareValues orders two field values. Missing or nil values sort first.
// Timestamps compare by time whether stored as time.Time or encoded strings.
func CompareValues(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}

	if ta, ok := asTime(a); ok {
		if tb, ok := asTime(b); ok {
			return ta.Compare(tb)
		}
	}
	if fa, ok := asFloat(a); ok {
		if fb, ok := asFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func asTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, true
	case string:
		return ParseTimestamp(val)
	}
	return time.Time{}, false
}

func asFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	}
	return 0, false
}
