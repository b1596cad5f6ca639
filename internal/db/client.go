// Package db implements the document store on PostgreSQL. Documents and
// subcollection entries are kept as JSONB so merge writes map onto the
// jsonb concatenation operator.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/saviobatista/vessel-tracker/internal/store"
)

const (
	mergeDocumentQuery = `
		INSERT INTO documents (key, fields, updated_at)
		VALUES ($1, $2::jsonb, $3)
		ON CONFLICT (key) DO UPDATE SET
			fields = documents.fields || EXCLUDED.fields,
			updated_at = EXCLUDED.updated_at
	`

	replaceDocumentQuery = `
		INSERT INTO documents (key, fields, updated_at)
		VALUES ($1, $2::jsonb, $3)
		ON CONFLICT (key) DO UPDATE SET
			fields = EXCLUDED.fields,
			updated_at = EXCLUDED.updated_at
	`

	getDocumentQuery = `SELECT fields FROM documents WHERE key = $1`

	appendEntryQuery = `
		INSERT INTO subcollection_entries (id, doc_key, collection, fields, created_at)
		VALUES ($1, $2, $3, $4::jsonb, $5)
	`

	// Ordering uses jsonb comparison so numbers sort numerically and
	// encoded timestamps sort chronologically. LIMIT NULL means no limit.
	queryEntriesTemplate = `
		SELECT fields FROM subcollection_entries
		WHERE doc_key = $1 AND collection = $2
		ORDER BY fields -> $3::text %[1]s, created_at %[1]s
		LIMIT $4
	`
)

// Client is a DocumentStore backed by PostgreSQL
type Client struct {
	db  *sql.DB
	now func() time.Time
}

// New opens a PostgreSQL document store
func New(connStr string) (*Client, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return NewWithDB(db), nil
}

// NewWithDB wraps an existing connection pool
func NewWithDB(db *sql.DB) *Client {
	return &Client{db: db, now: time.Now}
}

// DB returns the underlying connection pool
func (c *Client) DB() *sql.DB {
	return c.db
}

// Ping verifies the database is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes the database connection
func (c *Client) Close() error {
	return c.db.Close()
}

// SetDocument upserts the document under key
func (c *Client) SetDocument(ctx context.Context, key string, fields store.Fields, opts ...store.SetOption) error {
	now := c.now().UTC()
	data, err := store.EncodeFields(store.Resolve(fields, now))
	if err != nil {
		return err
	}

	query := replaceDocumentQuery
	if store.ApplySetOptions(opts) {
		query = mergeDocumentQuery
	}

	if _, err := c.db.ExecContext(ctx, query, key, string(data), now); err != nil {
		return fmt.Errorf("failed to set document %s: %w", key, err)
	}
	return nil
}

// GetDocument returns the document under key
func (c *Client) GetDocument(ctx context.Context, key string) (store.Fields, error) {
	var data []byte
	err := c.db.QueryRowContext(ctx, getDocumentQuery, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", key, err)
	}
	return store.DecodeFields(data)
}

// AppendToSubcollection inserts a new entry and returns its ID
func (c *Client) AppendToSubcollection(ctx context.Context, key, sub string, fields store.Fields) (string, error) {
	now := c.now().UTC()
	data, err := store.EncodeFields(store.Resolve(fields, now))
	if err != nil {
		return "", err
	}

	id := uuid.New().String()
	if _, err := c.db.ExecContext(ctx, appendEntryQuery, id, key, sub, string(data), now); err != nil {
		return "", fmt.Errorf("failed to append to %s/%s: %w", key, sub, err)
	}
	return id, nil
}

// QuerySubcollection returns entries ordered by q.OrderBy
func (c *Client) QuerySubcollection(ctx context.Context, key, sub string, q store.Query) ([]store.Fields, error) {
	direction := "DESC NULLS LAST"
	if q.Direction == store.Ascending {
		direction = "ASC NULLS FIRST"
	}

	limit := sql.NullInt64{Int64: int64(q.Limit), Valid: q.Limit > 0}
	rows, err := c.db.QueryContext(ctx, fmt.Sprintf(queryEntriesTemplate, direction), key, sub, q.OrderBy, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s/%s: %w", key, sub, err)
	}
	defer rows.Close()

	entries := []store.Fields{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		fields, err := store.DecodeFields(data)
		if err != nil {
			return nil, err
		}
		entries = append(entries, fields)
	}
	return entries, rows.Err()
}

var _ store.DocumentStore = (*Client)(nil)
