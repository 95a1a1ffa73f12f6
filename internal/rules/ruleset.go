package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"oip/txguard/internal/model"
	"oip/txguard/pkg/logger"
)

// RuleSet 规则集合：每笔交易对每条规则恰好评估一次
type RuleSet struct {
	rules   []Rule
	counter *Counter
	now     func() time.Time
}

// NewRuleSet 创建规则集
func NewRuleSet(counter *Counter, rules ...Rule) *RuleSet {
	return &RuleSet{rules: rules, counter: counter, now: time.Now}
}

// Names 已启用的规则
func (s *RuleSet) Names() []string {
	names := make([]string, 0, len(s.rules))
	for _, r := range s.rules {
		names = append(names, r.Name())
	}
	return names
}

// Counter 共享的异常计数器
func (s *RuleSet) Counter() *Counter {
	return s.counter
}

// Apply 评估所有规则，为每个命中事件累加一次计数
// 规则之间相互独立，评估顺序不影响结果；任一规则出错时不计数。
func (s *RuleSet) Apply(ctx context.Context, tx model.Transaction) (*model.Verdict, error) {
	verdict := &model.Verdict{Transaction: tx}
	workerID := logger.WorkerIDFrom(ctx)

	for _, r := range s.rules {
		event, err := r.Evaluate(ctx, tx)
		if err != nil {
			return nil, fmt.Errorf("rule %s failed on %q: %w", r.Name(), tx.ID, err)
		}
		if event == nil {
			continue
		}

		event.ID = uuid.NewString()
		event.TransactionID = tx.ID
		event.WorkerID = workerID
		event.DetectedAt = s.now()
		verdict.Events = append(verdict.Events, *event)
	}

	// 全部规则评估成功后才计数，失败的交易不留下计数
	if s.counter != nil {
		for _, ev := range verdict.Events {
			s.counter.Inc(ev.Rule)
		}
	}

	verdict.RiskScore = model.RiskScore(verdict.Events)
	return verdict, nil
}
