package rules

import (
	"context"

	"oip/txguard/internal/model"
)

// Rule 检测规则
// Evaluate 命中时返回事件，未命中返回 nil；事件 ID 与时间由 RuleSet 统一填充。
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, tx model.Transaction) (*model.AnomalyEvent, error)
}

// amountSeverity 按金额分级
func amountSeverity(amount int64) model.Severity {
	switch {
	case amount > 20000:
		return model.SeverityCritical
	case amount > 10000:
		return model.SeverityHigh
	default:
		return model.SeverityMedium
	}
}
