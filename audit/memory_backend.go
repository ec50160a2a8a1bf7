package audit

import (
	"context"
	"sync"
)

// MemoryBackend 把事件保存在内存环中, 供测试与开发环境使用。
// 容量满时淘汰最旧的 10%。
type MemoryBackend struct {
	mu      sync.RWMutex
	events  []*Event
	maxSize int
}

// NewMemoryBackend 创建内存后端。maxSize 非正时取 4096。
func NewMemoryBackend(maxSize int) *MemoryBackend {
	if maxSize <= 0 {
		maxSize = 4096
	}
	return &MemoryBackend{maxSize: maxSize}
}

// Write 实现 Backend.Write
func (m *MemoryBackend) Write(_ context.Context, ev *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.events) >= m.maxSize {
		evict := m.maxSize / 10
		if evict < 1 {
			evict = 1
		}
		m.events = m.events[evict:]
	}
	m.events = append(m.events, ev)
	return nil
}

// Query 实现 Backend.Query
func (m *MemoryBackend) Query(_ context.Context, filter Filter) ([]*Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Event
	for _, ev := range m.events {
		if filter.matches(ev) {
			out = append(out, ev)
		}
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[len(out)-filter.Limit:]
	}
	return out, nil
}

// Len 返回当前事件数。
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}

// Close 实现 Backend.Close
func (m *MemoryBackend) Close() error {
	return nil
}
