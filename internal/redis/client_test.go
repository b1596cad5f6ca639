package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/saviobatista/vessel-tracker/internal/store"
)

// MockRedisClient is an in-memory RedisClientInterface
type MockRedisClient struct {
	hashes  map[string]map[string]string
	streams map[string][]redis.XMessage
	seq     int

	hsetError  error
	hgetError  error
	xaddError  error
	xrangeErr  error
	execError  error
	closeCalls int
	txCalls    int

	// entriesRead counts stream entries returned by range commands
	entriesRead int
}

func NewMockRedisClient() *MockRedisClient {
	return &MockRedisClient{
		hashes:  make(map[string]map[string]string),
		streams: make(map[string][]redis.XMessage),
	}
}

func (m *MockRedisClient) Ping(ctx context.Context) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("PONG")
	return cmd
}

func (m *MockRedisClient) HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if m.hsetError != nil {
		cmd.SetErr(m.hsetError)
		return cmd
	}
	hash, ok := m.hashes[key]
	if !ok {
		hash = make(map[string]string)
		m.hashes[key] = hash
	}
	for i := 0; i+1 < len(values); i += 2 {
		hash[fmt.Sprint(values[i])] = fmt.Sprint(values[i+1])
	}
	cmd.SetVal(int64(len(values) / 2))
	return cmd
}

func (m *MockRedisClient) HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd {
	cmd := redis.NewMapStringStringCmd(ctx)
	if m.hgetError != nil {
		cmd.SetErr(m.hgetError)
		return cmd
	}
	out := make(map[string]string)
	for k, v := range m.hashes[key] {
		out[k] = v
	}
	cmd.SetVal(out)
	return cmd
}

func (m *MockRedisClient) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	var n int64
	for _, key := range keys {
		if _, ok := m.hashes[key]; ok {
			delete(m.hashes, key)
			n++
		}
	}
	cmd.SetVal(n)
	return cmd
}

func (m *MockRedisClient) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	if m.xaddError != nil {
		cmd.SetErr(m.xaddError)
		return cmd
	}
	m.seq++
	id := fmt.Sprintf("%d-0", m.seq)
	values := make(map[string]interface{})
	for k, v := range a.Values.(map[string]interface{}) {
		values[k] = fmt.Sprint(v)
	}
	m.streams[a.Stream] = append(m.streams[a.Stream], redis.XMessage{ID: id, Values: values})
	cmd.SetVal(id)
	return cmd
}

func (m *MockRedisClient) XRange(ctx context.Context, stream, start, stop string) *redis.XMessageSliceCmd {
	return m.XRangeN(ctx, stream, start, stop, 0)
}

func (m *MockRedisClient) XRangeN(ctx context.Context, stream, start, stop string, count int64) *redis.XMessageSliceCmd {
	return m.readStream(ctx, m.streams[stream], count)
}

func (m *MockRedisClient) XRevRangeN(ctx context.Context, stream, start, stop string, count int64) *redis.XMessageSliceCmd {
	messages := m.streams[stream]
	reversed := make([]redis.XMessage, 0, len(messages))
	for i := len(messages) - 1; i >= 0; i-- {
		reversed = append(reversed, messages[i])
	}
	return m.readStream(ctx, reversed, count)
}

func (m *MockRedisClient) readStream(ctx context.Context, messages []redis.XMessage, count int64) *redis.XMessageSliceCmd {
	cmd := redis.NewXMessageSliceCmd(ctx)
	if m.xrangeErr != nil {
		cmd.SetErr(m.xrangeErr)
		return cmd
	}
	if count > 0 && int64(len(messages)) > count {
		messages = messages[:count]
	}
	m.entriesRead += len(messages)
	cmd.SetVal(append([]redis.XMessage(nil), messages...))
	return cmd
}

// TxPipelined applies the queued commands only when the transaction succeeds
func (m *MockRedisClient) TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error) {
	m.txCalls++
	pipe := &mockPipeline{mock: m}
	if err := fn(pipe); err != nil {
		return nil, err
	}
	if m.execError != nil {
		return nil, m.execError
	}
	for _, apply := range pipe.queued {
		apply()
	}
	return nil, nil
}

// mockPipeline queues the commands SetDocument sends inside MULTI/EXEC
type mockPipeline struct {
	redis.Pipeliner
	mock   *MockRedisClient
	queued []func()
}

func (p *mockPipeline) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	p.queued = append(p.queued, func() { p.mock.Del(ctx, keys...) })
	return redis.NewIntCmd(ctx)
}

func (p *mockPipeline) HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	p.queued = append(p.queued, func() { p.mock.HSet(ctx, key, values...) })
	return redis.NewIntCmd(ctx)
}

func (m *MockRedisClient) Close() error {
	m.closeCalls++
	return nil
}

func newTestClient() (*Client, *MockRedisClient) {
	mock := NewMockRedisClient()
	client := NewWithClient(mock)
	current := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	client.now = func() time.Time {
		current = current.Add(time.Second)
		return current
	}
	return client, mock
}

func TestNew_InvalidAddress(t *testing.T) {
	client, err := New("invalid:address:12345", "")
	if err == nil {
		t.Error("New() should fail with invalid address")
		client.Close()
		return
	}
	if client != nil {
		t.Error("New() should return nil client on error")
	}
}

func TestClient_PingAndClose(t *testing.T) {
	client, mock := newTestClient()

	if err := client.Ping(context.Background()); err != nil {
		t.Errorf("Ping() failed: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() failed: %v", err)
	}
	if mock.closeCalls != 1 {
		t.Errorf("Expected 1 close call, got %d", mock.closeCalls)
	}
}

func TestClient_SetDocument_Merge(t *testing.T) {
	client, mock := newTestClient()
	ctx := context.Background()

	if err := client.SetDocument(ctx, "boats/boat_1", store.Fields{"lat": 7.46, "name": "Bangka"}); err != nil {
		t.Fatalf("SetDocument() failed: %v", err)
	}
	if err := client.SetDocument(ctx, "boats/boat_1", store.Fields{"lat": 8.0, "lon": nil, "updatedAt": store.ServerTimestamp}); err != nil {
		t.Fatalf("SetDocument() failed: %v", err)
	}

	hash := mock.hashes["doc:boats/boat_1"]
	expected := map[string]string{
		"lat":       "8",
		"lon":       "null",
		"name":      `"Bangka"`,
		"updatedAt": `"2026-10-01T12:00:02.000000000Z"`,
	}
	if len(hash) != len(expected) {
		t.Fatalf("Expected %d hash fields, got %v", len(expected), hash)
	}
	for field, value := range expected {
		if hash[field] != value {
			t.Errorf("Expected %s = %s, got %s", field, value, hash[field])
		}
	}

	doc, err := client.GetDocument(ctx, "boats/boat_1")
	if err != nil {
		t.Fatalf("GetDocument() failed: %v", err)
	}
	if doc["lat"] != 8.0 || doc["lon"] != nil || doc["name"] != "Bangka" {
		t.Errorf("Unexpected document %v", doc)
	}
	if _, ok := doc["lon"]; !ok {
		t.Error("Expected explicit null field to be present")
	}
}

func TestClient_SetDocument_Replace(t *testing.T) {
	client, mock := newTestClient()
	ctx := context.Background()

	_ = client.SetDocument(ctx, "k", store.Fields{"a": 1, "b": 2})
	if err := client.SetDocument(ctx, "k", store.Fields{"c": 3}, store.WithReplace()); err != nil {
		t.Fatalf("SetDocument() failed: %v", err)
	}

	hash := mock.hashes["doc:k"]
	if len(hash) != 1 || hash["c"] != "3" {
		t.Errorf("Expected only field c, got %v", hash)
	}
	if mock.txCalls != 1 {
		t.Errorf("Expected replace to run in 1 transaction, got %d", mock.txCalls)
	}

	if err := client.SetDocument(ctx, "k", store.Fields{}, store.WithReplace()); err != nil {
		t.Fatalf("SetDocument() failed: %v", err)
	}
	if _, err := client.GetDocument(ctx, "k"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected empty replace to remove the document, got %v", err)
	}
}

func TestClient_SetDocument_ReplaceAborted(t *testing.T) {
	client, mock := newTestClient()
	ctx := context.Background()

	_ = client.SetDocument(ctx, "k", store.Fields{"a": 1, "b": 2})

	mock.execError = redis.TxFailedErr
	err := client.SetDocument(ctx, "k", store.Fields{"c": 3}, store.WithReplace())
	if !errors.Is(err, redis.TxFailedErr) {
		t.Fatalf("Expected TxFailedErr, got %v", err)
	}

	hash := mock.hashes["doc:k"]
	if len(hash) != 2 || hash["a"] != "1" || hash["b"] != "2" {
		t.Errorf("Expected the old document to survive a failed replace, got %v", hash)
	}
}

func TestClient_SetDocument_Errors(t *testing.T) {
	client, mock := newTestClient()
	ctx := context.Background()

	mock.hsetError = errors.New("READONLY")
	if err := client.SetDocument(ctx, "k", store.Fields{"a": 1}); err == nil {
		t.Error("Expected HSET error, got none")
	}

	mock.hsetError = nil
	if err := client.SetDocument(ctx, "k", store.Fields{"ch": make(chan int)}); err == nil {
		t.Error("Expected encode error, got none")
	}
}

func TestClient_GetDocument_Missing(t *testing.T) {
	client, mock := newTestClient()

	if _, err := client.GetDocument(context.Background(), "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	mock.hgetError = errors.New("connection reset")
	_, err := client.GetDocument(context.Background(), "nope")
	if err == nil || errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected connection error, got %v", err)
	}
}

func TestClient_Subcollection(t *testing.T) {
	client, mock := newTestClient()
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		id, err := client.AppendToSubcollection(ctx, "boats/boat_1", "history",
			store.Fields{"bat1": float64(i), "createdAt": store.ServerTimestamp})
		if err != nil {
			t.Fatalf("AppendToSubcollection() failed: %v", err)
		}
		if len(id) != 36 {
			t.Errorf("Expected UUID entry ID, got %q", id)
		}
	}

	if len(mock.streams["sub:boats/boat_1:history"]) != 4 {
		t.Fatalf("Expected 4 stream entries, got %d", len(mock.streams["sub:boats/boat_1:history"]))
	}

	tests := []struct {
		name     string
		query    store.Query
		expected []float64
	}{
		{name: "newest first", query: store.Query{OrderBy: "createdAt", Limit: 2}, expected: []float64{4, 3}},
		{name: "oldest first", query: store.Query{OrderBy: "createdAt", Direction: store.Ascending}, expected: []float64{1, 2, 3, 4}},
		{name: "by value", query: store.Query{OrderBy: "bat1", Limit: 1}, expected: []float64{4}},
		{name: "stream order", query: store.Query{Direction: store.Descending}, expected: []float64{4, 3, 2, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := client.QuerySubcollection(ctx, "boats/boat_1", "history", tt.query)
			if err != nil {
				t.Fatalf("QuerySubcollection() failed: %v", err)
			}
			if len(entries) != len(tt.expected) {
				t.Fatalf("Expected %d entries, got %d", len(tt.expected), len(entries))
			}
			for i, value := range tt.expected {
				if entries[i]["bat1"] != value {
					t.Errorf("Entry %d: expected bat1 %v, got %v", i, value, entries[i]["bat1"])
				}
			}
		})
	}
}

func TestClient_Subcollection_BoundedRead(t *testing.T) {
	client, mock := newTestClient()
	ctx := context.Background()

	const total = 500
	for i := 1; i <= total; i++ {
		if _, err := client.AppendToSubcollection(ctx, "boats/boat_1", "history",
			store.Fields{"bat1": float64(i), "createdAt": store.ServerTimestamp}); err != nil {
			t.Fatalf("AppendToSubcollection() failed: %v", err)
		}
	}

	tests := []struct {
		name     string
		query    store.Query
		expected []float64
		read     int
	}{
		{name: "newest", query: store.Query{OrderBy: "createdAt", Limit: 1}, expected: []float64{total}, read: 1},
		{name: "newest page", query: store.Query{OrderBy: "createdAt", Limit: 3}, expected: []float64{total, total - 1, total - 2}, read: 3},
		{name: "oldest", query: store.Query{OrderBy: "createdAt", Direction: store.Ascending, Limit: 2}, expected: []float64{1, 2}, read: 2},
		{name: "by value reads everything", query: store.Query{OrderBy: "bat1", Limit: 1}, expected: []float64{total}, read: total},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock.entriesRead = 0
			entries, err := client.QuerySubcollection(ctx, "boats/boat_1", "history", tt.query)
			if err != nil {
				t.Fatalf("QuerySubcollection() failed: %v", err)
			}
			if mock.entriesRead != tt.read {
				t.Errorf("Expected %d stream entries read, got %d", tt.read, mock.entriesRead)
			}
			if len(entries) != len(tt.expected) {
				t.Fatalf("Expected %d entries, got %d", len(tt.expected), len(entries))
			}
			for i, value := range tt.expected {
				if entries[i]["bat1"] != value {
					t.Errorf("Entry %d: expected bat1 %v, got %v", i, value, entries[i]["bat1"])
				}
			}
		})
	}
}

func TestClient_Subcollection_Errors(t *testing.T) {
	client, mock := newTestClient()
	ctx := context.Background()

	mock.xaddError = errors.New("OOM")
	if _, err := client.AppendToSubcollection(ctx, "k", "history", store.Fields{}); err == nil {
		t.Error("Expected XADD error, got none")
	}

	mock.xrangeErr = errors.New("timeout")
	if _, err := client.QuerySubcollection(ctx, "k", "history", store.Query{}); err == nil {
		t.Error("Expected XRANGE error, got none")
	}

	mock.xrangeErr = nil
	mock.streams["sub:k:history"] = []redis.XMessage{{ID: "1-0", Values: map[string]interface{}{"id": "x"}}}
	if _, err := client.QuerySubcollection(ctx, "k", "history", store.Query{}); err == nil {
		t.Error("Expected malformed entry error, got none")
	}
}

func TestClient_Subcollection_Empty(t *testing.T) {
	client, _ := newTestClient()

	entries, err := client.QuerySubcollection(context.Background(), "k", "history", store.Query{OrderBy: "createdAt", Limit: 30})
	if err != nil {
		t.Fatalf("QuerySubcollection() failed: %v", err)
	}
	if entries == nil || len(entries) != 0 {
		t.Errorf("Expected empty non-nil result, got %#v", entries)
	}
}
