package sink

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/atomic"

	"oip/txguard/internal/model"
	"oip/txguard/pkg/logger"
)

// Multi 扇出到多个下游，单个下游失败不影响其他下游
type Multi struct {
	sinks  []EventSink
	logger logger.Logger
	errors atomic.Int64
}

// NewMulti 创建扇出下游
func NewMulti(log logger.Logger, sinks ...EventSink) *Multi {
	return &Multi{sinks: sinks, logger: log}
}

func (m *Multi) Name() string { return "multi" }

// Add 追加下游（仅在启动前调用）
func (m *Multi) Add(s EventSink) {
	m.sinks = append(m.sinks, s)
}

// Names 所有下游名称
func (m *Multi) Names() []string {
	names := make([]string, 0, len(m.sinks))
	for _, s := range m.sinks {
		names = append(names, s.Name())
	}
	return names
}

func (m *Multi) Publish(ctx context.Context, ev model.AnomalyEvent) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Publish(ctx, ev); err != nil {
			m.errors.Inc()
			m.logger.Errorf(ctx, "[Sink] %s publish event %s failed: %v", s.Name(), ev.ID, err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Errors 累计发布失败次数
func (m *Multi) Errors() int64 {
	return m.errors.Load()
}
