package store

import (
	"strings"
	"testing"
	"time"
)

func TestFormatTimestamp_FixedWidth(t *testing.T) {
	a := FormatTimestamp(time.Date(2026, 3, 1, 10, 0, 5, 100000000, time.UTC))
	b := FormatTimestamp(time.Date(2026, 3, 1, 10, 0, 5, 120000000, time.UTC))

	if len(a) != len(b) {
		t.Fatalf("Expected equal widths, got %d and %d", len(a), len(b))
	}
	if !(a < b) {
		t.Errorf("Expected %s to sort before %s", a, b)
	}
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2026, 3, 1, 10, 0, 5, 123456789, time.UTC)

	tests := []struct {
		name  string
		input string
		ok    bool
	}{
		{name: "fixed width", input: FormatTimestamp(want), ok: true},
		{name: "rfc3339 nano", input: want.Format(time.RFC3339Nano), ok: true},
		{name: "garbage", input: "yesterday", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseTimestamp(tt.input)
			if ok != tt.ok {
				t.Fatalf("Expected ok = %v, got %v", tt.ok, ok)
			}
			if ok && !got.Equal(want) {
				t.Errorf("Expected %v, got %v", want, got)
			}
		})
	}
}

func TestEncodeDecodeFields(t *testing.T) {
	ts := time.Date(2026, 3, 1, 10, 0, 5, 0, time.UTC)
	data, err := EncodeFields(Fields{"lat": 7.46, "lon": nil, "sos": 1, "createdAt": ts})
	if err != nil {
		t.Fatalf("EncodeFields() failed: %v", err)
	}

	fields, err := DecodeFields(data)
	if err != nil {
		t.Fatalf("DecodeFields() failed: %v", err)
	}

	if fields["lat"] != 7.46 {
		t.Errorf("Expected lat 7.46, got %v", fields["lat"])
	}
	if v, ok := fields["lon"]; !ok || v != nil {
		t.Errorf("Expected lon present and nil, got %v", v)
	}
	if fields["sos"] != 1.0 {
		t.Errorf("Expected sos 1, got %v", fields["sos"])
	}
	if fields["createdAt"] != FormatTimestamp(ts) {
		t.Errorf("Expected encoded timestamp, got %v", fields["createdAt"])
	}
}

func TestEncodeFields_UnresolvedServerTimestamp(t *testing.T) {
	_, err := EncodeFields(Fields{"updatedAt": ServerTimestamp})
	if err == nil {
		t.Fatal("Expected error for unresolved server timestamp")
	}
	if !strings.Contains(err.Error(), "updatedAt") {
		t.Errorf("Expected error to name the field, got %v", err)
	}
}

func TestResolve(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	in := Fields{"a": 1.0, "updatedAt": ServerTimestamp}

	out := Resolve(in, now)
	if out["updatedAt"] != now {
		t.Errorf("Expected updatedAt %v, got %v", now, out["updatedAt"])
	}
	if in["updatedAt"] != ServerTimestamp {
		t.Error("Expected input fields to be left untouched")
	}
}

func TestCompareValues(t *testing.T) {
	early := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(time.Millisecond)

	tests := []struct {
		name     string
		a, b     any
		expected int
	}{
		{name: "times", a: early, b: late, expected: -1},
		{name: "time against encoded string", a: FormatTimestamp(late), b: early, expected: 1},
		{name: "numbers", a: 2.0, b: 1, expected: 1},
		{name: "equal numbers", a: 1.0, b: 1.0, expected: 0},
		{name: "nil sorts first", a: nil, b: early, expected: -1},
		{name: "both nil", a: nil, b: nil, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CompareValues(tt.a, tt.b); got != tt.expected {
				t.Errorf("Expected %d, got %d", tt.expected, got)
			}
		})
	}
}
