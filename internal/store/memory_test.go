package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

// steppingClock returns a clock that advances by one second per reading.
func steppingClock(start time.Time) func() time.Time {
	current := start
	return func() time.Time {
		current = current.Add(time.Second)
		return current
	}
}

func TestMemory_GetDocument_NotFound(t *testing.T) {
	m := NewMemory()

	doc, err := m.GetDocument(context.Background(), "boats/missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
	if doc != nil {
		t.Errorf("Expected nil document, got %v", doc)
	}
}

func TestMemory_SetDocument_Merge(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.SetDocument(ctx, "boats/boat_1", Fields{"lat": 7.46, "bat1": 88.5}); err != nil {
		t.Fatalf("SetDocument() failed: %v", err)
	}
	if err := m.SetDocument(ctx, "boats/boat_1", Fields{"bat1": 80.0, "bat2": nil}); err != nil {
		t.Fatalf("SetDocument() failed: %v", err)
	}

	doc, err := m.GetDocument(ctx, "boats/boat_1")
	if err != nil {
		t.Fatalf("GetDocument() failed: %v", err)
	}

	if doc["lat"] != 7.46 {
		t.Errorf("Expected lat to survive merge, got %v", doc["lat"])
	}
	if doc["bat1"] != 80.0 {
		t.Errorf("Expected bat1 = 80.0, got %v", doc["bat1"])
	}
	if v, ok := doc["bat2"]; !ok || v != nil {
		t.Errorf("Expected bat2 present and nil, got %v (present=%v)", v, ok)
	}
}

func TestMemory_SetDocument_Replace(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.SetDocument(ctx, "k", Fields{"a": 1.0, "b": 2.0}); err != nil {
		t.Fatalf("SetDocument() failed: %v", err)
	}
	if err := m.SetDocument(ctx, "k", Fields{"b": 3.0}, WithReplace()); err != nil {
		t.Fatalf("SetDocument() failed: %v", err)
	}

	doc, _ := m.GetDocument(ctx, "k")
	if _, ok := doc["a"]; ok {
		t.Error("Expected field a to be removed by replace")
	}
	if doc["b"] != 3.0 {
		t.Errorf("Expected b = 3.0, got %v", doc["b"])
	}
}

func TestMemory_ServerTimestamp(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemoryWithClock(steppingClock(start))
	ctx := context.Background()

	if err := m.SetDocument(ctx, "k", Fields{"updatedAt": ServerTimestamp}); err != nil {
		t.Fatalf("SetDocument() failed: %v", err)
	}
	if _, err := m.AppendToSubcollection(ctx, "k", "history", Fields{"createdAt": ServerTimestamp}); err != nil {
		t.Fatalf("AppendToSubcollection() failed: %v", err)
	}

	doc, _ := m.GetDocument(ctx, "k")
	updatedAt, ok := doc["updatedAt"].(time.Time)
	if !ok {
		t.Fatalf("Expected updatedAt to be a time.Time, got %T", doc["updatedAt"])
	}
	if !updatedAt.Equal(start.Add(time.Second)) {
		t.Errorf("Expected updatedAt %v, got %v", start.Add(time.Second), updatedAt)
	}

	entries, _ := m.QuerySubcollection(ctx, "k", "history", Query{OrderBy: "createdAt"})
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	createdAt := entries[0]["createdAt"].(time.Time)
	if !createdAt.After(updatedAt) {
		t.Errorf("Expected history stamp %v to be taken after snapshot stamp %v", createdAt, updatedAt)
	}
}

func TestMemory_QuerySubcollection(t *testing.T) {
	m := NewMemoryWithClock(steppingClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		if _, err := m.AppendToSubcollection(ctx, "k", "history", Fields{
			"n":         float64(i),
			"createdAt": ServerTimestamp,
		}); err != nil {
			t.Fatalf("AppendToSubcollection() failed: %v", err)
		}
	}

	tests := []struct {
		name     string
		query    Query
		expected []float64
	}{
		{
			name:     "descending with limit",
			query:    Query{OrderBy: "createdAt", Direction: Descending, Limit: 2},
			expected: []float64{5, 4},
		},
		{
			name:     "ascending without limit",
			query:    Query{OrderBy: "createdAt", Direction: Ascending},
			expected: []float64{1, 2, 3, 4, 5},
		},
		{
			name:     "limit larger than collection",
			query:    Query{OrderBy: "createdAt", Limit: 50},
			expected: []float64{5, 4, 3, 2, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := m.QuerySubcollection(ctx, "k", "history", tt.query)
			if err != nil {
				t.Fatalf("QuerySubcollection() failed: %v", err)
			}
			if len(entries) != len(tt.expected) {
				t.Fatalf("Expected %d entries, got %d", len(tt.expected), len(entries))
			}
			for i, want := range tt.expected {
				if entries[i]["n"] != want {
					t.Errorf("Entry %d: expected n = %v, got %v", i, want, entries[i]["n"])
				}
			}
		})
	}
}

func TestMemory_QuerySubcollection_Empty(t *testing.T) {
	m := NewMemory()

	entries, err := m.QuerySubcollection(context.Background(), "k", "history", Query{OrderBy: "createdAt", Limit: 30})
	if err != nil {
		t.Fatalf("QuerySubcollection() failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected no entries, got %d", len(entries))
	}
}

func TestMemory_CancelledContext(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := m.SetDocument(ctx, "k", Fields{"a": 1.0}); err == nil {
		t.Error("Expected error for cancelled context")
	}
	if _, err := m.GetDocument(ctx, "k"); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("Expected context error, got %v", err)
	}
}

func TestMemory_ReturnsCopies(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_ = m.SetDocument(ctx, "k", Fields{"a": 1.0})
	doc, _ := m.GetDocument(ctx, "k")
	doc["a"] = 2.0

	again, _ := m.GetDocument(ctx, "k")
	if again["a"] != 1.0 {
		t.Errorf("Expected stored document to be unaffected, got %v", again["a"])
	}
}
