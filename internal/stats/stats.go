package stats

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Stats tracks telemetry ingest and query statistics
type Stats struct {
	// Ingest counts
	ReceivedSamples  uint64
	StoredSamples    uint64
	SnapshotFailures uint64
	HistoryFailures  uint64
	RejectedPayloads uint64

	// Query counts
	LatestQueries  uint64
	HistoryQueries uint64
	QueryFailures  uint64

	// Timing
	StartedAt      time.Time
	LastSampleTime time.Time
	IngestTime     time.Duration

	mu sync.RWMutex
}

// New creates a new Stats instance
func New() *Stats {
	return &Stats{
		StartedAt: time.Now(),
	}
}

// IncrementReceivedSamples increments the received samples counter
func (s *Stats) IncrementReceivedSamples() {
	atomic.AddUint64(&s.ReceivedSamples, 1)
}

// IncrementStoredSamples increments the stored samples counter and records the sample time
func (s *Stats) IncrementStoredSamples() {
	atomic.AddUint64(&s.StoredSamples, 1)
	s.mu.Lock()
	s.LastSampleTime = time.Now()
	s.mu.Unlock()
}

// IncrementSnapshotFailures increments the failed snapshot writes counter
func (s *Stats) IncrementSnapshotFailures() {
	atomic.AddUint64(&s.SnapshotFailures, 1)
}

// IncrementHistoryFailures increments the failed history appends counter
func (s *Stats) IncrementHistoryFailures() {
	atomic.AddUint64(&s.HistoryFailures, 1)
}

// IncrementRejectedPayloads increments the undecodable payloads counter
func (s *Stats) IncrementRejectedPayloads() {
	atomic.AddUint64(&s.RejectedPayloads, 1)
}

// IncrementLatestQueries increments the latest snapshot queries counter
func (s *Stats) IncrementLatestQueries() {
	atomic.AddUint64(&s.LatestQueries, 1)
}

// IncrementHistoryQueries increments the history queries counter
func (s *Stats) IncrementHistoryQueries() {
	atomic.AddUint64(&s.HistoryQueries, 1)
}

// IncrementQueryFailures increments the failed queries counter
func (s *Stats) IncrementQueryFailures() {
	atomic.AddUint64(&s.QueryFailures, 1)
}

// AddIngestTime adds to the total ingest time
func (s *Stats) AddIngestTime(duration time.Duration) {
	s.mu.Lock()
	s.IngestTime += duration
	s.mu.Unlock()
}

// GetStats returns a copy of the current statistics
func (s *Stats) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]interface{}{
		"received_samples":  atomic.LoadUint64(&s.ReceivedSamples),
		"stored_samples":    atomic.LoadUint64(&s.StoredSamples),
		"snapshot_failures": atomic.LoadUint64(&s.SnapshotFailures),
		"history_failures":  atomic.LoadUint64(&s.HistoryFailures),
		"rejected_payloads": atomic.LoadUint64(&s.RejectedPayloads),
		"latest_queries":    atomic.LoadUint64(&s.LatestQueries),
		"history_queries":   atomic.LoadUint64(&s.HistoryQueries),
		"query_failures":    atomic.LoadUint64(&s.QueryFailures),
		"last_sample_time":  s.LastSampleTime,
		"ingest_time":       s.IngestTime,
		"uptime":            time.Since(s.StartedAt),
	}
}

// String returns a string representation of the statistics
func (s *Stats) String() string {
	stats := s.GetStats()

	lastSample := "never"
	if ts := stats["last_sample_time"].(time.Time); !ts.IsZero() {
		lastSample = ts.UTC().Format(time.RFC3339)
	}

	return fmt.Sprintf(
		"Received Samples: %d\n"+
			"Stored Samples: %d\n"+
			"Snapshot Failures: %d\n"+
			"History Failures: %d\n"+
			"Rejected Payloads: %d\n"+
			"Latest Queries: %d\n"+
			"History Queries: %d\n"+
			"Query Failures: %d\n"+
			"Last Sample Time: %s\n"+
			"Ingest Time: %s\n"+
			"Uptime: %s",
		stats["received_samples"],
		stats["stored_samples"],
		stats["snapshot_failures"],
		stats["history_failures"],
		stats["rejected_payloads"],
		stats["latest_queries"],
		stats["history_queries"],
		stats["query_failures"],
		lastSample,
		stats["ingest_time"],
		stats["uptime"],
	)
}

// StartReporting periodically passes the statistics summary to report until ctx is done
func (s *Stats) StartReporting(ctx context.Context, interval time.Duration, report func(*Stats)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final summary before shutdown
			report(s)
			return
		case <-ticker.C:
			report(s)
		}
	}
}
