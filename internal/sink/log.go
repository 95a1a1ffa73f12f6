package sink

import (
	"context"

	"go.uber.org/zap"

	"oip/txguard/internal/model"
)

// LogSink 以结构化日志输出事件
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink 创建日志下游
func NewLogSink(l *zap.Logger) *LogSink {
	if l == nil {
		l = zap.NewNop()
	}
	return &LogSink{logger: l.Named("anomaly")}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Publish(_ context.Context, ev model.AnomalyEvent) error {
	s.logger.Warn("anomaly detected",
		zap.String("event_id", ev.ID),
		zap.String("rule", ev.Rule),
		zap.Int("account_id", ev.AccountID),
		zap.String("transaction_id", ev.TransactionID),
		zap.Int64("amount", ev.Amount),
		zap.Int64("count", ev.Count),
		zap.String("severity", string(ev.Severity)),
		zap.Int("worker_id", ev.WorkerID),
		zap.String("reason", ev.Reason),
	)
	return nil
}
