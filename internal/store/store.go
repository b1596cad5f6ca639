// Package store defines the document store contract used by the telemetry
// services and an in-memory implementation of it.
//
// A document is a flat set of named fields stored under a key. Each document
// may own any number of append-only subcollections that can be read back in
// a caller-chosen order.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by GetDocument when no document exists for the key.
var ErrNotFound = errors.New("document not found")

// Fields holds the named values of a document or subcollection entry.
// Values are nil, bool, float64, int, string, time.Time or ServerTimestamp.
type Fields map[string]any

// Clone returns a shallow copy of the fields.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

type serverTimestamp struct{}

// ServerTimestamp is a placeholder value. A store replaces it with its own
// clock reading at the moment the write is applied.
var ServerTimestamp any = serverTimestamp{}

// CreatedAtField names the entry field holding the append time. Stores keep
// subcollection entries in this order, so a query ordered by it is served
// from storage order and reads at most Limit entries.
const CreatedAtField = "createdAt"

// Direction is the sort direction of a subcollection query.
type Direction int

const (
	Descending Direction = iota
	Ascending
)

// Query selects entries of a subcollection.
type Query struct {
	OrderBy   string
	Direction Direction
	Limit     int // 0 means no limit
}

// setOptions carries the write policy of SetDocument.
type setOptions struct {
	replace bool
}

// SetOption changes how SetDocument applies fields.
type SetOption func(*setOptions)

// WithReplace makes SetDocument replace the whole document instead of
// merging the supplied fields into it.
func WithReplace() SetOption {
	return func(o *setOptions) { o.replace = true }
}

// ApplySetOptions resolves the write policy for SetDocument implementations.
// It reports true when the write must merge.
func ApplySetOptions(opts []SetOption) (merge bool) {
	var o setOptions
	for _, opt := range opts {
		opt(&o)
	}
	return !o.replace
}

// DocumentStore is the storage contract consumed by the telemetry services.
type DocumentStore interface {
	// SetDocument writes fields under key. By default fields are merged:
	// supplied fields replace stored ones and the others survive.
	SetDocument(ctx context.Context, key string, fields Fields, opts ...SetOption) error

	// GetDocument returns the document under key, or ErrNotFound.
	GetDocument(ctx context.Context, key string) (Fields, error)

	// AppendToSubcollection adds an immutable entry to the named
	// subcollection of key and returns the generated entry ID.
	AppendToSubcollection(ctx context.Context, key, sub string, fields Fields) (string, error)

	// QuerySubcollection returns entries of the named subcollection of key
	// ordered by q.OrderBy.
	QuerySubcollection(ctx context.Context, key, sub string, q Query) ([]Fields, error)

	// Close releases the underlying client.
	Close() error
}
