package sink

import (
	"context"
	"fmt"

	"oip/txguard/internal/ingest"
	"oip/txguard/internal/model"
	"oip/txguard/pkg/errorutil"
)

// Publisher 队列发布接口（*lmstfy.Client 实现）
type Publisher interface {
	Publish(queue string, data []byte, ttl, delay uint32) (string, error)
}

// LmstfySink 以标准 Job 格式投递到回调队列
type LmstfySink struct {
	publisher Publisher
	queue     string
}

// NewLmstfySink 创建 Lmstfy 下游
func NewLmstfySink(publisher Publisher, queue string) *LmstfySink {
	return &LmstfySink{publisher: publisher, queue: queue}
}

func (s *LmstfySink) Name() string { return "lmstfy" }

func (s *LmstfySink) Publish(_ context.Context, ev model.AnomalyEvent) error {
	data, err := ingest.NewJob(ingest.ActionAnomalyEvent, ev.ID, ev)
	if err != nil {
		return fmt.Errorf("build anomaly job failed: %w", err)
	}
	// ttl=0 永不过期，delay=0 立即可用
	if _, err := s.publisher.Publish(s.queue, data, 0, 0); err != nil {
		return errorutil.Transient(err, "publish anomaly job failed")
	}
	return nil
}
