package sink

import (
	"context"

	"oip/txguard/internal/model"
	"oip/txguard/pkg/errorutil"
)

// EventStore 事件持久化接口（*mysql.AnomalyDAO 实现）
type EventStore interface {
	Save(ctx context.Context, runID string, ev model.AnomalyEvent) error
}

// MySQLSink 持久化事件
type MySQLSink struct {
	store EventStore
	runID string
}

// NewMySQLSink 创建 MySQL 下游
func NewMySQLSink(store EventStore, runID string) *MySQLSink {
	return &MySQLSink{store: store, runID: runID}
}

func (s *MySQLSink) Name() string { return "mysql" }

func (s *MySQLSink) Publish(ctx context.Context, ev model.AnomalyEvent) error {
	if err := s.store.Save(ctx, s.runID, ev); err != nil {
		return errorutil.Transient(err, "persist anomaly event failed")
	}
	return nil
}
