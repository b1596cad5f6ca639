package migrations

// HistoryIndexes adds the index serving the recent-history query
var HistoryIndexes = &Migration{
	Name: "002_history_indexes",
	UpSQL: `
		CREATE INDEX IF NOT EXISTS idx_subcollection_entries_created_at
			ON subcollection_entries (doc_key, collection, (fields -> 'createdAt') DESC NULLS LAST);
	`,
	DownSQL: `
		DROP INDEX IF EXISTS idx_subcollection_entries_created_at;
	`,
}
