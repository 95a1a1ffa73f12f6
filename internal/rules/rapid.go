package rules

import (
	"context"
	"fmt"
	"time"

	"oip/txguard/internal/model"
)

// DefaultRapidThreshold 近期交易数阈值
const DefaultRapidThreshold int64 = 2

// HistoryStore 账户历史（读取并递增为原子操作）
type HistoryStore interface {
	Bump(accountID int, at time.Time) (int64, error)
}

// RapidTransactionRule 账户此前的交易数超过阈值即命中
// 每次评估都会记录本笔交易，无论是否命中。
type RapidTransactionRule struct {
	Threshold int64
	Store     HistoryStore
	now       func() time.Time
}

// NewRapidTransactionRule 创建高频规则
func NewRapidTransactionRule(threshold int64, store HistoryStore) *RapidTransactionRule {
	return &RapidTransactionRule{Threshold: threshold, Store: store, now: time.Now}
}

func (r *RapidTransactionRule) Name() string {
	return model.RuleRapidTransactions
}

func (r *RapidTransactionRule) Evaluate(_ context.Context, tx model.Transaction) (*model.AnomalyEvent, error) {
	at := tx.Timestamp
	if at.IsZero() {
		at = r.now()
	}

	prev, err := r.Store.Bump(tx.AccountID, at)
	if err != nil {
		return nil, fmt.Errorf("bump history failed: %w", err)
	}
	if prev <= r.Threshold {
		return nil, nil
	}
	return &model.AnomalyEvent{
		Rule:      r.Name(),
		AccountID: tx.AccountID,
		Amount:    tx.Amount,
		Count:     prev,
		Severity:  model.SeverityMedium,
		Reason:    fmt.Sprintf("Rapid transactions: %d prior transactions exceed threshold %d", prev, r.Threshold),
	}, nil
}
