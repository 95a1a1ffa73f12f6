package sink

import (
	"context"

	"oip/txguard/internal/model"
	"oip/txguard/pkg/errorutil"
	"oip/txguard/pkg/infra/redis"
)

// Notifier Redis 通知接口（*redis.PubSub 实现）
type Notifier interface {
	PublishAnomaly(ctx context.Context, channel string, n *redis.AnomalyNotification) error
}

// RedisSink 通过 Redis pub/sub 广播事件
type RedisSink struct {
	notifier Notifier
	channel  string
}

// NewRedisSink 创建 Redis 下游
func NewRedisSink(notifier Notifier, channel string) *RedisSink {
	return &RedisSink{notifier: notifier, channel: channel}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Publish(ctx context.Context, ev model.AnomalyEvent) error {
	n := &redis.AnomalyNotification{
		EventID:       ev.ID,
		Rule:          ev.Rule,
		AccountID:     ev.AccountID,
		TransactionID: ev.TransactionID,
		Amount:        ev.Amount,
		Severity:      string(ev.Severity),
		Reason:        ev.Reason,
		Timestamp:     ev.DetectedAt.Unix(),
	}
	if err := s.notifier.PublishAnomaly(ctx, s.channel, n); err != nil {
		return errorutil.Transient(err, "redis notify failed")
	}
	return nil
}
