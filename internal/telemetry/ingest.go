// Package telemetry implements the ingest and query services for the
// tracked vessel on top of a document store.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/saviobatista/vessel-tracker/internal/parser"
	"github.com/saviobatista/vessel-tracker/internal/stats"
	"github.com/saviobatista/vessel-tracker/internal/store"
	"github.com/saviobatista/vessel-tracker/internal/types"
)

// Ingester writes incoming samples as the vessel's latest snapshot and
// appends them to its history.
type Ingester struct {
	store    store.DocumentStore
	vesselID string
	stats    *stats.Stats
}

// NewIngester creates an ingest service for vesselID. When st is nil a
// private Stats is used.
func NewIngester(s store.DocumentStore, vesselID string, st *stats.Stats) *Ingester {
	if st == nil {
		st = stats.New()
	}
	return &Ingester{
		store:    s,
		vesselID: vesselID,
		stats:    st,
	}
}

// Ingest normalizes raw and writes it through to the store: the snapshot
// is merged first, then the history entry is appended. The two writes are
// not atomic. When the append fails the snapshot change remains and the
// returned error wraps ErrHistoryNotRecorded.
func (i *Ingester) Ingest(ctx context.Context, raw map[string]any) error {
	start := time.Now()
	i.stats.IncrementReceivedSamples()
	defer func() { i.stats.AddIngestTime(time.Since(start)) }()

	sample := parser.ParseSample(raw)
	key := types.VesselKey(i.vesselID)

	// Snapshot: merged so fields a caller does not send survive
	snapshot := sample.Fields()
	snapshot[types.FieldUpdatedAt] = store.ServerTimestamp
	if err := i.store.SetDocument(ctx, key, snapshot); err != nil {
		i.stats.IncrementSnapshotFailures()
		return fmt.Errorf("%w: %w", ErrSnapshotWrite, err)
	}

	// History: stamped independently of the snapshot
	entry := sample.Fields()
	entry[types.FieldUpdatedAt] = store.ServerTimestamp
	entry[types.FieldCreatedAt] = store.ServerTimestamp
	if _, err := i.store.AppendToSubcollection(ctx, key, types.HistorySubcollection, entry); err != nil {
		i.stats.IncrementHistoryFailures()
		return fmt.Errorf("%w: %w", ErrHistoryNotRecorded, err)
	}

	i.stats.IncrementStoredSamples()
	return nil
}

// VesselID returns the identifier of the tracked vessel
func (i *Ingester) VesselID() string {
	return i.vesselID
}
