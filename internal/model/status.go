package model

// QueueStatus 队列观测值
type QueueStatus struct {
	Len      int   `json:"len"`
	Cap      int   `json:"cap"`
	Closed   bool  `json:"closed"`
	Enqueued int64 `json:"enqueued"`
	Dequeued int64 `json:"dequeued"`
}

// WorkerStatus 单个 Processor 的状态
type WorkerStatus struct {
	ID        int    `json:"id"`
	State     string `json:"state"`
	Processed int64  `json:"processed"`
}

// GeneratorStatus Generator 状态
type GeneratorStatus struct {
	State    string `json:"state"`
	Emitted  int64  `json:"emitted"`
	Rejected int64  `json:"rejected"`
}

// AnomalyStatus 异常计数
type AnomalyStatus struct {
	Total  int64            `json:"total"`
	ByRule map[string]int64 `json:"by_rule"`
}

// LockStatus 账户历史锁的观测值
type LockStatus struct {
	States     []int32 `json:"states"`
	Violations int64   `json:"violations"`
}

// DetectionStats 检测统计（对照生成标签）
type DetectionStats struct {
	Processed      int64   `json:"processed"`
	Anomalous      int64   `json:"anomalous"`
	TruePositives  int64   `json:"true_positives"`
	FalsePositives int64   `json:"false_positives"`
	FalseNegatives int64   `json:"false_negatives"`
	TrueNegatives  int64   `json:"true_negatives"`
	Precision      float64 `json:"precision"`
	Recall         float64 `json:"recall"`
	F1             float64 `json:"f1"`
	Failed         int64   `json:"failed"` // 规则评估出错的交易
	SinkErrors     int64   `json:"sink_errors"`
}

// PipelineStatus 流水线整体快照（诊断接口使用）
type PipelineStatus struct {
	RunID     string          `json:"run_id"`
	Running   bool            `json:"running"`
	Queue     QueueStatus     `json:"queue"`
	Generator GeneratorStatus `json:"generator"`
	Workers   []WorkerStatus  `json:"workers"`
	Anomalies AnomalyStatus   `json:"anomalies"`
	Locks     LockStatus      `json:"locks"`
	Stats     DetectionStats  `json:"stats"`
}
