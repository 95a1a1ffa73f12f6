package source

import (
	"context"
	"fmt"
	"io"
	"time"

	"oip/txguard/internal/model"
)

// Sequence 确定性参考序列：第 i 笔交易 account = i mod A，amount = (i mod 7) * 1000
// 只允许单个 Generator 读取。
type Sequence struct {
	total     int
	accounts  int
	threshold int64
	base      time.Time
	next      int
}

// NewSequence 创建参考序列；amount 超过 labelThreshold 的交易标记为 ANOMALOUS
func NewSequence(total, accounts int, labelThreshold int64) *Sequence {
	return &Sequence{
		total:     total,
		accounts:  accounts,
		threshold: labelThreshold,
		base:      time.Now(),
	}
}

// Next 返回下一笔交易，序列结束返回 io.EOF
func (s *Sequence) Next(ctx context.Context) (model.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return model.Transaction{}, err
	}
	if s.next >= s.total {
		return model.Transaction{}, io.EOF
	}

	i := s.next
	s.next++

	tx := model.Transaction{
		ID:             fmt.Sprintf("tx-%06d", i),
		AccountID:      i % s.accounts,
		Amount:         int64(i%7) * 1000,
		Classification: model.ClassificationNormal,
		Timestamp:      s.base.Add(time.Duration(i) * time.Millisecond),
	}
	if tx.Amount > s.threshold {
		tx.Classification = model.ClassificationAnomalous
	}
	return tx, nil
}
