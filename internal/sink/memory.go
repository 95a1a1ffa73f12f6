package sink

import (
	"context"
	"sync"

	"oip/txguard/internal/model"
)

// MemorySink 内存下游（测试与进程内消费）
type MemorySink struct {
	mu     sync.Mutex
	events []model.AnomalyEvent
}

// NewMemorySink 创建内存下游
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Name() string { return "memory" }

func (s *MemorySink) Publish(_ context.Context, ev model.AnomalyEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

// Events 已接收事件的副本
func (s *MemorySink) Events() []model.AnomalyEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.AnomalyEvent, len(s.events))
	copy(out, s.events)
	return out
}

// Len 已接收事件数
func (s *MemorySink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}
