// Package testutil 提供 C1-C6 测试共用的 Mock 对象
package testutil

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/veilnet/node/pkg/interfaces/infrastructure/log"
	"github.com/veilnet/node/pkg/interfaces/infrastructure/storage"
)

// MockLogger 最小日志Mock实现：所有方法均为空操作
type MockLogger struct{}

func (m *MockLogger) Debug(msg string)                          {}
func (m *MockLogger) Debugf(format string, args ...interface{}) {}
func (m *MockLogger) Info(msg string)                           {}
func (m *MockLogger) Infof(format string, args ...interface{})  {}
func (m *MockLogger) Warn(msg string)                           {}
func (m *MockLogger) Warnf(format string, args ...interface{})  {}
func (m *MockLogger) Error(msg string)                          {}
func (m *MockLogger) Errorf(format string, args ...interface{}) {}
func (m *MockLogger) Fatal(msg string)                          {}
func (m *MockLogger) Fatalf(format string, args ...interface{}) {}
func (m *MockLogger) With(args ...interface{}) log.Logger       { return m }
func (m *MockLogger) Sync() error                               { return nil }
func (m *MockLogger) GetZapLogger() *zap.Logger                 { return zap.NewNop() }

// MockClock 可手动推进的时钟，用于确定性地测试冷却计算
type MockClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockClock 构造一个从给定时间起步的时钟
func NewMockClock(start time.Time) *MockClock { return &MockClock{now: start} }

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *MockClock) Since(t time.Time) time.Duration { return c.Now().Sub(t) }
func (c *MockClock) Unix() int64                     { return c.Now().Unix() }
func (c *MockClock) UnixNano() int64                 { return c.Now().UnixNano() }

// Advance 把时钟向前推进 d
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// MockBadgerStore 是 storage.BadgerStore 的纯内存实现，用于测试
// 不依赖真实磁盘。TTL 被忽略——测试里冷却条目的淘汰通过
// bigcache 的读穿层覆盖，不依赖持久层的真实过期。
type MockBadgerStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMockBadgerStore 构造一个空的内存存储
func NewMockBadgerStore() *MockBadgerStore {
	return &MockBadgerStore{data: make(map[string][]byte)}
}

func (s *MockBadgerStore) Close() error { return nil }

func (s *MockBadgerStore) Get(ctx context.Context, key []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[string(key)], nil
}

func (s *MockBadgerStore) Set(ctx context.Context, key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[string(key)] = value
	return nil
}

func (s *MockBadgerStore) SetWithTTL(ctx context.Context, key, value []byte, ttl time.Duration) error {
	return s.Set(ctx, key, value)
}

func (s *MockBadgerStore) Delete(ctx context.Context, key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, string(key))
	return nil
}

func (s *MockBadgerStore) Exists(ctx context.Context, key []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[string(key)]
	return ok, nil
}

func (s *MockBadgerStore) GetMany(ctx context.Context, keys [][]byte) (map[string][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]byte)
	for _, k := range keys {
		if v, ok := s.data[string(k)]; ok {
			out[string(k)] = v
		}
	}
	return out, nil
}

func (s *MockBadgerStore) SetMany(ctx context.Context, entries map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range entries {
		s.data[k] = v
	}
	return nil
}

func (s *MockBadgerStore) DeleteMany(ctx context.Context, keys [][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.data, string(k))
	}
	return nil
}

func (s *MockBadgerStore) PrefixScan(ctx context.Context, prefix []byte) (map[string][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]byte)
	for k, v := range s.data {
		if len(k) >= len(prefix) && k[:len(prefix)] == string(prefix) {
			out[k] = v
		}
	}
	return out, nil
}

func (s *MockBadgerStore) RangeScan(ctx context.Context, startKey, endKey []byte) (map[string][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]byte)
	for k, v := range s.data {
		if k >= string(startKey) && (len(endKey) == 0 || k < string(endKey)) {
			out[k] = v
		}
	}
	return out, nil
}

func (s *MockBadgerStore) RunInTransaction(ctx context.Context, fn func(tx storage.BadgerTransaction) error) error {
	return fn(&mockTx{store: s})
}

type mockTx struct {
	store *MockBadgerStore
}

func (t *mockTx) Get(key []byte) ([]byte, error)      { return t.store.Get(context.Background(), key) }
func (t *mockTx) Set(key, value []byte) error         { return t.store.Set(context.Background(), key, value) }
func (t *mockTx) SetWithTTL(key, value []byte, ttl time.Duration) error {
	return t.store.Set(context.Background(), key, value)
}
func (t *mockTx) Delete(key []byte) error { return t.store.Delete(context.Background(), key) }
func (t *mockTx) Exists(key []byte) (bool, error) {
	return t.store.Exists(context.Background(), key)
}
func (t *mockTx) Merge(key, value []byte, mergeFunc func(existingVal, newVal []byte) []byte) error {
	existing, _ := t.Get(key)
	return t.Set(key, mergeFunc(existing, value))
}
