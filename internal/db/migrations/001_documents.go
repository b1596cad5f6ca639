package migrations

// DocumentsSchema creates the document and subcollection tables
var DocumentsSchema = &Migration{
	Name: "001_documents",
	UpSQL: `
		CREATE TABLE IF NOT EXISTS documents (
			key TEXT PRIMARY KEY,
			fields JSONB NOT NULL DEFAULT '{}'::jsonb,
			updated_at TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS subcollection_entries (
			id UUID PRIMARY KEY,
			doc_key TEXT NOT NULL,
			collection TEXT NOT NULL,
			fields JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_subcollection_entries_parent
			ON subcollection_entries (doc_key, collection, created_at DESC);
	`,
	DownSQL: `
		DROP TABLE IF EXISTS subcollection_entries;
		DROP TABLE IF EXISTS documents;
	`,
}
