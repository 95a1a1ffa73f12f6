package model

import "time"

// Severity 异常级别
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// 规则名称常量
const (
	RuleLargeAmount       = "large_amount"
	RuleRapidTransactions = "rapid_transactions"
)

// AnomalyEvent 单条规则命中后产生的检测事件（对外输出）
type AnomalyEvent struct {
	ID            string    `json:"id"`
	Rule          string    `json:"rule"`
	AccountID     int       `json:"account_id"`
	Amount        int64     `json:"amount"`
	Count         int64     `json:"count,omitempty"` // rapid 规则：命中前的近期交易数
	Severity      Severity  `json:"severity"`
	Reason        string    `json:"reason"`
	TransactionID string    `json:"transaction_id,omitempty"`
	WorkerID      int       `json:"worker_id"`
	DetectedAt    time.Time `json:"detected_at"`
}

// Verdict 单笔交易的检测结论
type Verdict struct {
	Transaction Transaction    `json:"transaction"`
	Events      []AnomalyEvent `json:"events"`
	RiskScore   float64        `json:"risk_score"`
}

// IsAnomalous 是否至少命中一条规则
func (v *Verdict) IsAnomalous() bool {
	return len(v.Events) > 0
}

var severityWeights = map[Severity]float64{
	SeverityCritical: 1.0,
	SeverityHigh:     0.7,
	SeverityMedium:   0.4,
	SeverityLow:      0.2,
}

// RiskScore 按级别加权计算风险分（0-100）
func RiskScore(events []AnomalyEvent) float64 {
	total := 0.0
	for _, e := range events {
		w, ok := severityWeights[e.Severity]
		if !ok {
			w = 0.5
		}
		total += w * 25
	}
	if total > 100 {
		return 100
	}
	return total
}
