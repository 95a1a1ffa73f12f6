package rules

import (
	"context"
	"fmt"

	"oip/txguard/internal/model"
)

// DefaultLargeAmountThreshold 大额阈值（最小货币单位）
const DefaultLargeAmountThreshold int64 = 5000

// LargeAmountRule 金额严格大于阈值即命中，只依赖交易本身
type LargeAmountRule struct {
	Threshold int64
}

// NewLargeAmountRule 创建大额规则
func NewLargeAmountRule(threshold int64) *LargeAmountRule {
	return &LargeAmountRule{Threshold: threshold}
}

func (r *LargeAmountRule) Name() string {
	return model.RuleLargeAmount
}

func (r *LargeAmountRule) Evaluate(_ context.Context, tx model.Transaction) (*model.AnomalyEvent, error) {
	if tx.Amount <= r.Threshold {
		return nil, nil
	}
	return &model.AnomalyEvent{
		Rule:      r.Name(),
		AccountID: tx.AccountID,
		Amount:    tx.Amount,
		Severity:  amountSeverity(tx.Amount),
		Reason:    fmt.Sprintf("Large amount: %d exceeds threshold %d", tx.Amount, r.Threshold),
	}, nil
}
