package store

import (
	"context"
	"errors"
	"time"

	"github.com/saviobatista/vessel-tracker/internal/metrics"
)

// instrumented wraps a DocumentStore and records per-operation metrics.
type instrumented struct {
	next    DocumentStore
	backend string
}

// Instrument decorates s so every call is timed and failures are counted
// under the given backend label.
func Instrument(s DocumentStore, backend string) DocumentStore {
	return &instrumented{next: s, backend: backend}
}

func (i *instrumented) record(op string, start time.Time, err error) {
	// A missing document is a normal answer, not a store failure
	if errors.Is(err, ErrNotFound) {
		err = nil
	}
	metrics.RecordStoreOperation(i.backend, op, time.Since(start), err)
}

func (i *instrumented) SetDocument(ctx context.Context, key string, fields Fields, opts ...SetOption) error {
	start := time.Now()
	err := i.next.SetDocument(ctx, key, fields, opts...)
	i.record("set_document", start, err)
	return err
}

func (i *instrumented) GetDocument(ctx context.Context, key string) (Fields, error) {
	start := time.Now()
	doc, err := i.next.GetDocument(ctx, key)
	i.record("get_document", start, err)
	return doc, err
}

func (i *instrumented) AppendToSubcollection(ctx context.Context, key, sub string, fields Fields) (string, error) {
	start := time.Now()
	id, err := i.next.AppendToSubcollection(ctx, key, sub, fields)
	i.record("append_subcollection", start, err)
	return id, err
}

func (i *instrumented) QuerySubcollection(ctx context.Context, key, sub string, q Query) ([]Fields, error) {
	start := time.Now()
	entries, err := i.next.QuerySubcollection(ctx, key, sub, q)
	i.record("query_subcollection", start, err)
	return entries, err
}

func (i *instrumented) Close() error {
	return i.next.Close()
}
