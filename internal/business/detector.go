package business

import (
	"context"

	"oip/txguard/internal/model"
	"oip/txguard/internal/rules"
	"oip/txguard/internal/sink"
	"oip/txguard/pkg/logger"
)

// Detector 检测服务：规则评估 → 统计 → 事件下发
// 下游失败只计数，不影响检测结论。
type Detector struct {
	rules  *rules.RuleSet
	sink   sink.EventSink
	stats  *Stats
	logger logger.Logger
}

// NewDetector 创建检测服务；es 可为 nil
func NewDetector(rs *rules.RuleSet, es sink.EventSink, stats *Stats, log logger.Logger) *Detector {
	if stats == nil {
		stats = NewStats()
	}
	return &Detector{
		rules:  rs,
		sink:   es,
		stats:  stats,
		logger: log,
	}
}

// Stats 检测统计
func (d *Detector) Stats() *Stats {
	return d.stats
}

// Handle 处理单笔交易（注入到 Processor）
func (d *Detector) Handle(ctx context.Context, workerID int, tx model.Transaction) {
	ctx = logger.WithWorkerID(ctx, workerID)
	ctx = logger.WithAccountID(ctx, tx.AccountID)

	verdict, err := d.Evaluate(ctx, tx)
	if err != nil {
		return
	}

	if verdict.IsAnomalous() {
		d.logger.Debugf(ctx, "[Detector] tx %s hit %d rules, risk %.1f", tx.ID, len(verdict.Events), verdict.RiskScore)
	}
	d.publish(ctx, verdict.Events)
}

// Evaluate 评估并记录统计，不下发事件
func (d *Detector) Evaluate(ctx context.Context, tx model.Transaction) (*model.Verdict, error) {
	verdict, err := d.rules.Apply(ctx, tx)
	if err != nil {
		d.stats.RecordFailure()
		d.logger.Errorf(ctx, "[Detector] Evaluate tx %s failed: %v", tx.ID, err)
		return nil, err
	}
	d.stats.Record(verdict)
	return verdict, nil
}

func (d *Detector) publish(ctx context.Context, events []model.AnomalyEvent) {
	if d.sink == nil {
		return
	}
	for _, ev := range events {
		if err := d.sink.Publish(logger.WithRule(ctx, ev.Rule), ev); err != nil {
			d.stats.RecordSinkError()
			d.logger.Warnf(ctx, "[Detector] Publish event %s failed: %v", ev.ID, err)
		}
	}
}
