package sink

import (
	"context"

	"oip/txguard/internal/model"
)

// EventSink 检测事件下游
// 发布失败不影响检测结果，只被记录与计数。
type EventSink interface {
	Name() string
	Publish(ctx context.Context, ev model.AnomalyEvent) error
}
