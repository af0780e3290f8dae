// Package geocode 将位置键（CEP）解析为坐标，带多级缓存
package geocode

import (
	"context"
	"sync"

	"github.com/paiban/courierplan/pkg/model"
)

// Entry 缓存条目，Found=false 表示查询过但无结果
type Entry struct {
	Location model.Location `json:"location"`
	Found    bool           `json:"found"`
}

// Store 缓存层
type Store interface {
	Name() string
	// Get 返回条目及是否命中
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, e Entry) error
}

// BatchStore 支持批量读取的缓存层
type BatchStore interface {
	Store
	GetMany(ctx context.Context, keys []string) (map[string]Entry, error)
}

// MemoryStore 进程内缓存
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryStore 创建进程内缓存
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

// Name 层级名称
func (s *MemoryStore) Name() string { return "memory" }

// Get 读取
func (s *MemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e, ok, nil
}

// Set 写入
func (s *MemoryStore) Set(_ context.Context, key string, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = e
	return nil
}

// Len 条目数
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// HealthChecker 外部缓存层连通性检查
type HealthChecker interface {
	Health(ctx context.Context) error
}
