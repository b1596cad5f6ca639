package telemetry

import (
	"context"
	"errors"
	"fmt"

	"github.com/saviobatista/vessel-tracker/internal/stats"
	"github.com/saviobatista/vessel-tracker/internal/store"
	"github.com/saviobatista/vessel-tracker/internal/types"
)

// Default history window bounds
const (
	DefaultHistoryLimit = 30
	MaxHistoryLimit     = 500
)

// QueryOptions bounds the history window served to readers
type QueryOptions struct {
	DefaultLimit int
	MaxLimit     int
}

// Querier serves the latest snapshot and recent history of the vessel
type Querier struct {
	store    store.DocumentStore
	vesselID string
	opts     QueryOptions
	stats    *stats.Stats
}

// NewQuerier creates a query service for vesselID. Zero option values fall
// back to DefaultHistoryLimit and MaxHistoryLimit.
func NewQuerier(s store.DocumentStore, vesselID string, opts QueryOptions, st *stats.Stats) *Querier {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = DefaultHistoryLimit
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = MaxHistoryLimit
	}
	if opts.DefaultLimit > opts.MaxLimit {
		opts.DefaultLimit = opts.MaxLimit
	}
	if st == nil {
		st = stats.New()
	}
	return &Querier{
		store:    s,
		vesselID: vesselID,
		opts:     opts,
		stats:    st,
	}
}

// Latest returns the current snapshot view. A vessel that never reported
// yields the empty view, not an error.
func (q *Querier) Latest(ctx context.Context) (*types.SnapshotView, error) {
	q.stats.IncrementLatestQueries()

	doc, err := q.store.GetDocument(ctx, types.VesselKey(q.vesselID))
	if errors.Is(err, store.ErrNotFound) {
		return types.EmptySnapshotView(), nil
	}
	if err != nil {
		q.stats.IncrementQueryFailures()
		return nil, fmt.Errorf("%w: failed to get vessel snapshot: %w", ErrStoreUnavailable, err)
	}

	return types.NewSnapshotView(types.SampleFromFields(doc, types.FieldUpdatedAt)), nil
}

// History returns up to limit history entries, most recent first
func (q *Querier) History(ctx context.Context, limit int) (*types.HistoryPage, error) {
	q.stats.IncrementHistoryQueries()

	entries, err := q.store.QuerySubcollection(ctx, types.VesselKey(q.vesselID), types.HistorySubcollection, store.Query{
		OrderBy:   types.FieldCreatedAt,
		Direction: store.Descending,
		Limit:     q.EffectiveLimit(limit),
	})
	if err != nil {
		q.stats.IncrementQueryFailures()
		return nil, fmt.Errorf("%w: failed to query vessel history: %w", ErrStoreUnavailable, err)
	}

	page := &types.HistoryPage{Items: make([]types.HistoryEntry, 0, len(entries))}
	for _, fields := range entries {
		page.Items = append(page.Items, types.NewHistoryEntry(types.SampleFromFields(fields, types.FieldCreatedAt)))
	}
	return page, nil
}

// EffectiveLimit maps a requested limit onto the configured window: zero
// or negative selects the default, anything above the cap is clamped.
func (q *Querier) EffectiveLimit(limit int) int {
	switch {
	case limit <= 0:
		return q.opts.DefaultLimit
	case limit > q.opts.MaxLimit:
		return q.opts.MaxLimit
	default:
		return limit
	}
}
