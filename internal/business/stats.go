package business

import (
	"go.uber.org/atomic"

	"oip/txguard/internal/model"
)

// Stats 检测统计：以生成阶段的标签为基准计算混淆矩阵
type Stats struct {
	processed  atomic.Int64
	anomalous  atomic.Int64
	tp         atomic.Int64
	fp         atomic.Int64
	fn         atomic.Int64
	tn         atomic.Int64
	failed     atomic.Int64
	sinkErrors atomic.Int64
}

// NewStats 创建统计
func NewStats() *Stats {
	return &Stats{}
}

// Record 记录一笔交易的检测结论
func (s *Stats) Record(v *model.Verdict) {
	s.processed.Inc()

	detected := v.IsAnomalous()
	labeled := v.Transaction.IsLabeledAnomalous()
	if detected {
		s.anomalous.Inc()
	}

	switch {
	case detected && labeled:
		s.tp.Inc()
	case detected && !labeled:
		s.fp.Inc()
	case !detected && labeled:
		s.fn.Inc()
	default:
		s.tn.Inc()
	}
}

// RecordFailure 规则评估失败
func (s *Stats) RecordFailure() {
	s.failed.Inc()
}

// RecordSinkError 下游发布失败
func (s *Stats) RecordSinkError() {
	s.sinkErrors.Inc()
}

// Snapshot 当前统计与 precision/recall/F1
func (s *Stats) Snapshot() model.DetectionStats {
	out := model.DetectionStats{
		Processed:      s.processed.Load(),
		Anomalous:      s.anomalous.Load(),
		TruePositives:  s.tp.Load(),
		FalsePositives: s.fp.Load(),
		FalseNegatives: s.fn.Load(),
		TrueNegatives:  s.tn.Load(),
		Failed:         s.failed.Load(),
		SinkErrors:     s.sinkErrors.Load(),
	}

	tp := float64(out.TruePositives)
	if d := tp + float64(out.FalsePositives); d > 0 {
		out.Precision = tp / d
	}
	if d := tp + float64(out.FalseNegatives); d > 0 {
		out.Recall = tp / d
	}
	if d := out.Precision + out.Recall; d > 0 {
		out.F1 = 2 * out.Precision * out.Recall / d
	}
	return out
}
