package source

import (
	"context"
	"io"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"oip/txguard/internal/model"
)

// 模拟金额区间
const (
	normalMinAmount    int64 = 10
	normalMaxAmount    int64 = 1000
	anomalousMinAmount int64 = 5000
	anomalousMaxAmount int64 = 50000
)

// Simulator 带随机种子的合成交易流
// 正常交易金额 10-1000；异常交易一半为大额（5000-50000），一半为同一账户的连续突发。
type Simulator struct {
	total       int
	accounts    int
	anomalyRate float64
	rng         *rand.Rand
	clock       time.Time
	emitted     int
	lastAccount int
}

// NewSimulator 创建模拟器，相同 seed 产生相同序列（ID 除外）
func NewSimulator(total, accounts int, seed int64, anomalyRate float64) *Simulator {
	return &Simulator{
		total:       total,
		accounts:    accounts,
		anomalyRate: anomalyRate,
		rng:         rand.New(rand.NewSource(seed)),
		clock:       time.Now(),
	}
}

// Next 返回下一笔模拟交易
func (s *Simulator) Next(ctx context.Context) (model.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return model.Transaction{}, err
	}
	if s.emitted >= s.total {
		return model.Transaction{}, io.EOF
	}
	s.emitted++

	tx := model.Transaction{
		ID:             uuid.NewString()[:8],
		AccountID:      s.rng.Intn(s.accounts),
		Amount:         normalMinAmount + s.rng.Int63n(normalMaxAmount-normalMinAmount+1),
		Classification: model.ClassificationNormal,
	}

	// 时间单调推进，突发交易间隔更短
	if s.rng.Float64() < s.anomalyRate {
		tx.Classification = model.ClassificationAnomalous
		if s.rng.Intn(2) == 0 {
			tx.Amount = anomalousMinAmount + s.rng.Int63n(anomalousMaxAmount-anomalousMinAmount+1)
		} else {
			tx.AccountID = s.lastAccount
			s.clock = s.clock.Add(time.Duration(s.rng.Intn(5)+1) * time.Second)
		}
	} else {
		s.clock = s.clock.Add(time.Duration(s.rng.Intn(600)+60) * time.Second)
	}

	tx.Timestamp = s.clock
	s.lastAccount = tx.AccountID
	return tx, nil
}
