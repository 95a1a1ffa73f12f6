package source

import (
	"context"
	"errors"
	"io"
	"sync"

	"go.uber.org/atomic"

	"oip/txguard/internal/model"
)

// ErrFeedClosed Feed 已关闭，不再接收交易
var ErrFeedClosed = errors.New("feed closed")

// Feed 进程内交易入口（HTTP 接入等外部调用方通过 Push 写入）
type Feed struct {
	ch        chan model.Transaction
	done      chan struct{}
	closeOnce sync.Once
	accepted  atomic.Int64
	delivered atomic.Int64
}

// NewFeed 创建带缓冲的 Feed
func NewFeed(buffer int) *Feed {
	if buffer < 0 {
		buffer = 0
	}
	return &Feed{
		ch:   make(chan model.Transaction, buffer),
		done: make(chan struct{}),
	}
}

// Push 写入一笔交易，缓冲满时阻塞
func (f *Feed) Push(ctx context.Context, tx model.Transaction) error {
	select {
	case <-f.done:
		return ErrFeedClosed
	default:
	}

	select {
	case f.ch <- tx:
		f.accepted.Inc()
		return nil
	case <-f.done:
		return ErrFeedClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close 关闭 Feed；已缓冲的交易仍会被读出，之后 Next 返回 io.EOF
func (f *Feed) Close() {
	f.closeOnce.Do(func() {
		close(f.done)
	})
}

// Closed 是否已关闭
func (f *Feed) Closed() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Accepted Push 成功写入的交易数
func (f *Feed) Accepted() int64 {
	return f.accepted.Load()
}

// Pending 已写入但尚未被读出的交易数
func (f *Feed) Pending() int64 {
	return f.accepted.Load() - f.delivered.Load()
}

// Next 读取下一笔交易
func (f *Feed) Next(ctx context.Context) (model.Transaction, error) {
	select {
	case tx := <-f.ch:
		f.delivered.Inc()
		return tx, nil
	case <-f.done:
		select {
		case tx := <-f.ch:
			f.delivered.Inc()
			return tx, nil
		default:
			return model.Transaction{}, io.EOF
		}
	case <-ctx.Done():
		return model.Transaction{}, ctx.Err()
	}
}
