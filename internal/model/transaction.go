package model

import (
	"errors"
	"fmt"
	"time"
)

// Classification 生成阶段打上的标签（仅用于测试与评估，与检测结论无关）
type Classification string

const (
	ClassificationNormal    Classification = "NORMAL"
	ClassificationAnomalous Classification = "ANOMALOUS"
)

var (
	// ErrAccountOutOfRange 账户 ID 不在 [0, A) 范围内
	ErrAccountOutOfRange = errors.New("account id out of range")
	// ErrNegativeAmount 金额为负
	ErrNegativeAmount = errors.New("amount must be >= 0")
	// ErrBadClassification 未知分类标签
	ErrBadClassification = errors.New("unknown classification")
)

// Transaction 交易记录，创建后不可变，按值在流水线中传递
type Transaction struct {
	ID             string         `json:"id"`
	AccountID      int            `json:"account_id"`
	Amount         int64          `json:"amount"` // 最小货币单位
	Classification Classification `json:"classification"`
	Timestamp      time.Time      `json:"timestamp"`
}

// Validate 校验交易是否落在 accounts 个账户的空间内
func (t Transaction) Validate(accounts int) error {
	if t.AccountID < 0 || t.AccountID >= accounts {
		return fmt.Errorf("%w: %d not in [0,%d)", ErrAccountOutOfRange, t.AccountID, accounts)
	}
	if t.Amount < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeAmount, t.Amount)
	}
	switch t.Classification {
	case "", ClassificationNormal, ClassificationAnomalous:
	default:
		return fmt.Errorf("%w: %q", ErrBadClassification, t.Classification)
	}
	return nil
}

// Normalize 补齐缺省字段（分类默认为 NORMAL）
func (t Transaction) Normalize() Transaction {
	if t.Classification == "" {
		t.Classification = ClassificationNormal
	}
	return t
}

// IsLabeledAnomalous 生成时是否标记为异常
func (t Transaction) IsLabeledAnomalous() bool {
	return t.Classification == ClassificationAnomalous
}
