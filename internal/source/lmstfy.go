package source

import (
	"context"
	"time"

	"oip/txguard/internal/ingest"
	"oip/txguard/internal/model"
	"oip/txguard/pkg/errorutil"
	"oip/txguard/pkg/lmstfy"
	"oip/txguard/pkg/logger"
)

// Consumer 队列消费接口（*lmstfy.Client 实现）
type Consumer interface {
	Consume(queue string, timeout time.Duration, ttr time.Duration) (*lmstfy.Message, error)
	Ack(queue string, jobID string) error
}

// LmstfyConfig Lmstfy 数据源配置
type LmstfyConfig struct {
	QueueName string
	Timeout   time.Duration // 单次拉取超时（长轮询）
	TTR       time.Duration // Time-To-Run：未 ACK 时重新投递的时间
	Accounts  int
}

// Lmstfy 从 lmstfy 队列实时消费 transaction_ingest Job
type Lmstfy struct {
	cfg      LmstfyConfig
	consumer Consumer
	logger   logger.Logger
}

// NewLmstfy 创建 Lmstfy 数据源
func NewLmstfy(cfg LmstfyConfig, consumer Consumer, log logger.Logger) *Lmstfy {
	return &Lmstfy{cfg: cfg, consumer: consumer, logger: log}
}

// Next 拉取下一笔交易
// 拉取失败返回可重试错误；无法解析的 Job 直接 ACK 丢弃，避免反复投递。
func (s *Lmstfy) Next(ctx context.Context) (model.Transaction, error) {
	for {
		if err := ctx.Err(); err != nil {
			return model.Transaction{}, err
		}

		msg, err := s.consumer.Consume(s.cfg.QueueName, s.cfg.Timeout, s.cfg.TTR)
		if err != nil {
			return model.Transaction{}, errorutil.Transient(err, "consume from lmstfy failed")
		}
		if msg == nil {
			continue
		}

		tx, meta, err := ingest.DecodeTransaction(msg.Data, s.cfg.Accounts)
		if err != nil {
			s.logger.Warnf(ctx, "[LmstfySource] Dropping job %s: %v", msg.ID, err)
			s.ack(ctx, msg)
			continue
		}

		s.ack(ctx, msg)
		s.logger.Debugf(ctx, "[LmstfySource] Received tx %s, request_id=%s", tx.ID, meta.RequestID)
		return tx, nil
	}
}

func (s *Lmstfy) ack(ctx context.Context, msg *lmstfy.Message) {
	if err := s.consumer.Ack(s.cfg.QueueName, msg.ID); err != nil {
		// ACK 失败只会导致 TTR 后重复投递
		s.logger.Errorf(ctx, "[LmstfySource] Failed to ACK job %s: %v", msg.ID, err)
	}
}
