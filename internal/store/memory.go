package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryEntry struct {
	id     string
	fields Fields
}

// Memory is a process-local DocumentStore. It backs the memory backend and
// is the fake store used across the test suites.
type Memory struct {
	mu          sync.RWMutex
	docs        map[string]Fields
	collections map[string][]memoryEntry
	now         func() time.Time
}

// NewMemory creates an empty in-memory store using the wall clock.
func NewMemory() *Memory {
	return NewMemoryWithClock(time.Now)
}

// NewMemoryWithClock creates an empty in-memory store that stamps
// ServerTimestamp fields with now.
func NewMemoryWithClock(now func() time.Time) *Memory {
	return &Memory{
		docs:        make(map[string]Fields),
		collections: make(map[string][]memoryEntry),
		now:         now,
	}
}

// SetDocument stores fields under key
func (m *Memory) SetDocument(ctx context.Context, key string, fields Fields, opts ...SetOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	merge := ApplySetOptions(opts)

	m.mu.Lock()
	defer m.mu.Unlock()

	resolved := Resolve(fields, m.now())
	existing, ok := m.docs[key]
	if !ok || !merge {
		m.docs[key] = resolved
		return nil
	}
	for k, v := range resolved {
		existing[k] = v
	}
	return nil
}

// GetDocument returns a copy of the document under key
func (m *Memory) GetDocument(ctx context.Context, key string) (Fields, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.docs[key]
	if !ok {
		return nil, ErrNotFound
	}
	return doc.Clone(), nil
}

// AppendToSubcollection appends an entry to the subcollection
func (m *Memory) AppendToSubcollection(ctx context.Context, key, sub string, fields Fields) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	path := subcollectionPath(key, sub)
	m.collections[path] = append(m.collections[path], memoryEntry{
		id:     id,
		fields: Resolve(fields, m.now()),
	})
	return id, nil
}

// QuerySubcollection returns copies of the subcollection entries in query order
func (m *Memory) QuerySubcollection(ctx context.Context, key, sub string, q Query) ([]Fields, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	entries := m.collections[subcollectionPath(key, sub)]
	out := make([]Fields, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.fields.Clone())
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		c := CompareValues(out[i][q.OrderBy], out[j][q.OrderBy])
		if q.Direction == Ascending {
			return c < 0
		}
		return c > 0
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Close is a no-op for the in-memory store
func (m *Memory) Close() error {
	return nil
}

// subcollectionPath joins a document key and subcollection name.
func subcollectionPath(key, sub string) string {
	return key + "/" + sub
}

var _ DocumentStore = (*Memory)(nil)
