package mysql

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"oip/txguard/internal/model"
)

// AnomalyEventRecord 异常事件持久化实体
type AnomalyEventRecord struct {
	ID            string `gorm:"column:id;primaryKey;type:varchar(64)"`
	RunID         string `gorm:"column:run_id;type:varchar(64);index:idx_run"`
	Rule          string `gorm:"column:rule;type:varchar(32);not null;index:idx_account_rule"`
	AccountID     int    `gorm:"column:account_id;not null;index:idx_account_rule"`
	TransactionID string `gorm:"column:transaction_id;type:varchar(64)"`
	Amount        int64  `gorm:"column:amount;not null"`
	Severity      string `gorm:"column:severity;type:varchar(16);not null"`

	// 规则命中详情（原始事件）
	Details datatypes.JSON `gorm:"column:details;type:json"`

	DetectedAt time.Time `gorm:"column:detected_at;not null;index:idx_detected_at"`
	CreatedAt  time.Time `gorm:"column:created_at;not null"`
}

// TableName 指定表名
func (AnomalyEventRecord) TableName() string {
	return "anomaly_events"
}

// NewAnomalyEventRecord 由检测事件构造持久化实体
func NewAnomalyEventRecord(runID string, ev model.AnomalyEvent) (*AnomalyEventRecord, error) {
	details, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return &AnomalyEventRecord{
		ID:            ev.ID,
		RunID:         runID,
		Rule:          ev.Rule,
		AccountID:     ev.AccountID,
		TransactionID: ev.TransactionID,
		Amount:        ev.Amount,
		Severity:      string(ev.Severity),
		Details:       datatypes.JSON(details),
		DetectedAt:    ev.DetectedAt,
	}, nil
}
