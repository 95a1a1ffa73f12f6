package mysql

import (
	"context"
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"oip/txguard/internal/model"
)

// AnomalyDAO 异常事件数据访问对象
type AnomalyDAO struct {
	db *gorm.DB
}

// RuleCount 按规则聚合的命中数
type RuleCount struct {
	Rule  string `gorm:"column:rule"`
	Total int64  `gorm:"column:total"`
}

// NewAnomalyDAO 创建 AnomalyDAO 实例
func NewAnomalyDAO(dsn string) (*AnomalyDAO, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewAnomalyDAOWithDB(db), nil
}

// NewAnomalyDAOWithDB 使用已有连接创建（测试或共享连接池）
func NewAnomalyDAOWithDB(db *gorm.DB) *AnomalyDAO {
	return &AnomalyDAO{db: db}
}

// AutoMigrate 创建或更新 anomaly_events 表
func (dao *AnomalyDAO) AutoMigrate() error {
	if err := dao.db.AutoMigrate(&AnomalyEventRecord{}); err != nil {
		return fmt.Errorf("failed to migrate anomaly_events: %w", err)
	}
	return nil
}

// Save 写入一条异常事件
func (dao *AnomalyDAO) Save(ctx context.Context, runID string, ev model.AnomalyEvent) error {
	record, err := NewAnomalyEventRecord(runID, ev)
	if err != nil {
		return fmt.Errorf("failed to marshal anomaly event: %w", err)
	}

	if err := dao.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to insert anomaly event: %w", err)
	}
	return nil
}

// ListByAccount 按检测时间倒序查询账户的异常事件
func (dao *AnomalyDAO) ListByAccount(ctx context.Context, accountID int, limit int) ([]AnomalyEventRecord, error) {
	var records []AnomalyEventRecord
	result := dao.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("detected_at DESC").
		Limit(limit).
		Find(&records)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list anomaly events: %w", result.Error)
	}
	return records, nil
}

// CountByRule 统计某次运行各规则的命中数
func (dao *AnomalyDAO) CountByRule(ctx context.Context, runID string) ([]RuleCount, error) {
	var counts []RuleCount
	result := dao.db.WithContext(ctx).
		Model(&AnomalyEventRecord{}).
		Select("rule, COUNT(*) AS total").
		Where("run_id = ?", runID).
		Group("rule").
		Scan(&counts)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to count anomaly events: %w", result.Error)
	}
	return counts, nil
}

// Close 关闭数据库连接
func (dao *AnomalyDAO) Close() error {
	sqlDB, err := dao.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
