package framework

import (
	"context"

	"oip/txguard/internal/model"
)

// Source 交易来源（合成、回放或实时流）
// 数据耗尽时返回 io.EOF。
type Source interface {
	Next(ctx context.Context) (model.Transaction, error)
}

// ClosableSource 可主动结束的数据源（关闭后读完缓冲再返回 io.EOF）
type ClosableSource interface {
	Source
	Close()
}

// Logger 日志接口
type Logger interface {
	Debugf(ctx context.Context, format string, args ...interface{})
	Infof(ctx context.Context, format string, args ...interface{})
	Warnf(ctx context.Context, format string, args ...interface{})
	Errorf(ctx context.Context, format string, args ...interface{})
}

// HandleFunc 单笔交易的处理函数（规则评估 + 下游投递）
type HandleFunc func(ctx context.Context, workerID int, tx model.Transaction)
