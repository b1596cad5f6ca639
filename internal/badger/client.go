// Package badger implements the document store on an embedded BadgerDB.
// Documents are JSON values under "doc/<key>"; subcollection entries are
// keyed by their createdAt time so a prefix scan returns them in that order.
package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/saviobatista/vessel-tracker/internal/store"
)

const (
	documentPrefix = "doc/"
	entryPrefix    = "sub/"

	maxConflictRetries = 5
)

// Client is a DocumentStore backed by BadgerDB
type Client struct {
	db  *badger.DB
	now func() time.Time
}

// Open opens (or creates) a store in dir
func Open(dir string) (*Client, error) {
	opts := badger.DefaultOptions(dir).WithLogger(logger{})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %s: %w", dir, err)
	}
	return NewWithDB(db), nil
}

// OpenInMemory opens a store that keeps everything in memory
func OpenInMemory() (*Client, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(logger{})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory badger: %w", err)
	}
	return NewWithDB(db), nil
}

// NewWithDB wraps an open database
func NewWithDB(db *badger.DB) *Client {
	return &Client{db: db, now: time.Now}
}

// Close closes the database
func (c *Client) Close() error {
	return c.db.Close()
}

// SetDocument merges or replaces the document under key. Concurrent
// writers to the same document are retried on transaction conflict.
func (c *Client) SetDocument(ctx context.Context, key string, fields store.Fields, opts ...store.SetOption) error {
	merge := store.ApplySetOptions(opts)

	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		err = c.db.Update(func(txn *badger.Txn) error {
			doc := store.Fields{}
			if merge {
				existing, err := getDocument(txn, key)
				if err != nil && !errors.Is(err, store.ErrNotFound) {
					return err
				}
				if existing != nil {
					doc = existing
				}
			}
			for name, value := range store.Resolve(fields, c.now()) {
				doc[name] = value
			}

			data, err := store.EncodeFields(doc)
			if err != nil {
				return err
			}
			return txn.Set([]byte(documentPrefix+key), data)
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("failed to set document %s: %w", key, err)
	}
	return nil
}

// GetDocument returns the document under key
func (c *Client) GetDocument(ctx context.Context, key string) (store.Fields, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var doc store.Fields
	err := c.db.View(func(txn *badger.Txn) error {
		var err error
		doc, err = getDocument(txn, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func getDocument(txn *badger.Txn, key string) (store.Fields, error) {
	item, err := txn.Get([]byte(documentPrefix + key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", key, err)
	}

	var doc store.Fields
	err = item.Value(func(val []byte) error {
		var err error
		doc, err = store.DecodeFields(val)
		return err
	})
	return doc, err
}

// AppendToSubcollection stores a new entry and returns its ID
func (c *Client) AppendToSubcollection(ctx context.Context, key, sub string, fields store.Fields) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	now := c.now()
	resolved := store.Resolve(fields, now)
	data, err := store.EncodeFields(resolved)
	if err != nil {
		return "", err
	}

	stamp := now
	if createdAt, ok := resolved[store.CreatedAtField].(time.Time); ok {
		stamp = createdAt
	}
	id := uuid.New().String()
	entryKey := subcollectionPrefix(key, sub) + store.FormatTimestamp(stamp) + "/" + id
	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(entryKey), data)
	})
	if err != nil {
		return "", fmt.Errorf("failed to append to %s/%s: %w", key, sub, err)
	}
	return id, nil
}

// QuerySubcollection returns entries ordered by q.OrderBy. Queries ordered
// by CreatedAtField, or unordered, walk the keys and stop after q.Limit
// entries. Other orders load the subcollection and sort it; entries with
// equal values keep insertion order.
func (c *Client) QuerySubcollection(ctx context.Context, key, sub string, q store.Query) ([]store.Fields, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	keyOrder := q.OrderBy == "" || q.OrderBy == store.CreatedAtField
	limit := 0
	if keyOrder {
		limit = q.Limit
	}

	entries := []store.Fields{}
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = q.Direction == store.Descending
		opts.Prefix = []byte(subcollectionPrefix(key, sub))
		if limit > 0 && limit < opts.PrefetchSize {
			opts.PrefetchSize = limit
		}
		it := txn.NewIterator(opts)
		defer it.Close()

		start := opts.Prefix
		if opts.Reverse {
			// Reverse iteration seeks to the last key at or before start
			start = append(append([]byte{}, opts.Prefix...), 0xFF)
		}
		for it.Seek(start); it.ValidForPrefix(opts.Prefix); it.Next() {
			if limit > 0 && len(entries) == limit {
				break
			}
			err := it.Item().Value(func(val []byte) error {
				fields, err := store.DecodeFields(val)
				if err != nil {
					return err
				}
				entries = append(entries, fields)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query %s/%s: %w", key, sub, err)
	}

	if !keyOrder {
		sort.SliceStable(entries, func(i, j int) bool {
			cmp := store.CompareValues(entries[i][q.OrderBy], entries[j][q.OrderBy])
			if q.Direction == store.Descending {
				return cmp > 0
			}
			return cmp < 0
		})
	}

	if q.Limit > 0 && len(entries) > q.Limit {
		entries = entries[:q.Limit]
	}
	return entries, nil
}

func subcollectionPrefix(key, sub string) string {
	return entryPrefix + key + "/" + sub + "/"
}

var _ store.DocumentStore = (*Client)(nil)

