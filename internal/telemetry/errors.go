package telemetry

import "errors"

var (
	// ErrSnapshotWrite means the vessel snapshot could not be written.
	// Nothing was changed and no history entry was attempted.
	ErrSnapshotWrite = errors.New("failed to write vessel snapshot")

	// ErrHistoryNotRecorded means the snapshot was updated but the history
	// entry for the same sample could not be appended. The new snapshot
	// stays visible to readers.
	ErrHistoryNotRecorded = errors.New("snapshot updated but history entry not recorded")

	// ErrStoreUnavailable wraps any document store failure on the read path.
	ErrStoreUnavailable = errors.New("document store unavailable")
)
