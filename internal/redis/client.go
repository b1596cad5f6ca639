// Package redis implements the document store on Redis. A document is a
// hash with one JSON encoded value per field, so merge writes are a plain
// HSET. Subcollections are streams.
package redis

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/saviobatista/vessel-tracker/internal/store"
)

const (
	documentPrefix = "doc:"
	streamPrefix   = "sub:"

	entryIDField     = "id"
	entryFieldsField = "fields"
)

// RedisClientInterface defines the Redis operations used by our client
type RedisClientInterface interface {
	Ping(ctx context.Context) *redis.StatusCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XRange(ctx context.Context, stream, start, stop string) *redis.XMessageSliceCmd
	XRangeN(ctx context.Context, stream, start, stop string, count int64) *redis.XMessageSliceCmd
	XRevRangeN(ctx context.Context, stream, start, stop string, count int64) *redis.XMessageSliceCmd
	TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
	Close() error
}

// Client is a DocumentStore backed by Redis
type Client struct {
	client RedisClientInterface
	now    func() time.Time
}

// New creates a new Redis client
func New(addr, password string) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewWithClient(client), nil
}

// NewWithClient creates a new Redis client with a custom RedisClientInterface (useful for testing)
func NewWithClient(client RedisClientInterface) *Client {
	return &Client{client: client, now: time.Now}
}

// Ping verifies Redis is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.client.Close()
}

// SetDocument writes fields into the document hash. A replace deletes the
// hash and writes the new fields in one MULTI/EXEC transaction.
func (c *Client) SetDocument(ctx context.Context, key string, fields store.Fields, opts ...store.SetOption) error {
	resolved := store.Resolve(fields, c.now())
	hashKey := documentPrefix + key

	values := make([]interface{}, 0, len(resolved)*2)
	for name, value := range resolved {
		data, err := store.EncodeValue(value)
		if err != nil {
			return fmt.Errorf("failed to encode field %s: %w", name, err)
		}
		values = append(values, name, string(data))
	}

	if !store.ApplySetOptions(opts) {
		_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, hashKey)
			if len(values) > 0 {
				pipe.HSet(ctx, hashKey, values...)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to replace document %s: %w", key, err)
		}
		return nil
	}

	// HSET needs at least one field
	if len(values) == 0 {
		return nil
	}

	if err := c.client.HSet(ctx, hashKey, values...).Err(); err != nil {
		return fmt.Errorf("failed to set document %s: %w", key, err)
	}
	return nil
}

// GetDocument returns the document under key
func (c *Client) GetDocument(ctx context.Context, key string) (store.Fields, error) {
	raw, err := c.client.HGetAll(ctx, documentPrefix+key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", key, err)
	}
	if len(raw) == 0 {
		return nil, store.ErrNotFound
	}

	fields := make(store.Fields, len(raw))
	for name, data := range raw {
		value, err := store.DecodeValue([]byte(data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode field %s: %w", name, err)
		}
		fields[name] = value
	}
	return fields, nil
}

// AppendToSubcollection adds an entry to the subcollection stream
func (c *Client) AppendToSubcollection(ctx context.Context, key, sub string, fields store.Fields) (string, error) {
	data, err := store.EncodeFields(store.Resolve(fields, c.now()))
	if err != nil {
		return "", err
	}

	id := uuid.New().String()
	err = c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey(key, sub),
		Values: map[string]interface{}{
			entryIDField:     id,
			entryFieldsField: string(data),
		},
	}).Err()
	if err != nil {
		return "", fmt.Errorf("failed to append to %s/%s: %w", key, sub, err)
	}
	return id, nil
}

// QuerySubcollection reads the subcollection stream. Queries ordered by
// CreatedAtField, or unordered, follow stream order and read at most
// q.Limit entries. Other orders read the whole stream and sort it; entries
// without the field keep stream order.
func (c *Client) QuerySubcollection(ctx context.Context, key, sub string, q store.Query) ([]store.Fields, error) {
	stream := streamKey(key, sub)
	streamOrder := q.OrderBy == "" || q.OrderBy == store.CreatedAtField
	descending := q.Direction == store.Descending

	var messages []redis.XMessage
	var err error
	switch {
	case streamOrder && q.Limit > 0 && descending:
		messages, err = c.client.XRevRangeN(ctx, stream, "+", "-", int64(q.Limit)).Result()
	case streamOrder && q.Limit > 0:
		messages, err = c.client.XRangeN(ctx, stream, "-", "+", int64(q.Limit)).Result()
	default:
		messages, err = c.client.XRange(ctx, stream, "-", "+").Result()
		if descending {
			// Newest stream entries first so ties resolve to insertion order
			for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
				messages[i], messages[j] = messages[j], messages[i]
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query %s/%s: %w", key, sub, err)
	}

	entries := make([]store.Fields, 0, len(messages))
	for _, msg := range messages {
		data, ok := msg.Values[entryFieldsField].(string)
		if !ok {
			return nil, fmt.Errorf("stream entry %s has no fields", msg.ID)
		}
		fields, err := store.DecodeFields([]byte(data))
		if err != nil {
			return nil, err
		}
		entries = append(entries, fields)
	}

	if !streamOrder {
		sort.SliceStable(entries, func(i, j int) bool {
			cmp := store.CompareValues(entries[i][q.OrderBy], entries[j][q.OrderBy])
			if descending {
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

func streamKey(key, sub string) string {
	return streamPrefix + key + ":" + sub
}

var _ store.DocumentStore = (*Client)(nil)
