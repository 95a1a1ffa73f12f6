package framework

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/atomic"
)

var (
	// ErrQueueClosed 队列已关闭：不再接受新元素；消费端在取空后收到该错误
	ErrQueueClosed = errors.New("queue closed")
	// ErrQueueShutdown 队列被强制终止：所有阻塞的生产者与消费者立即返回
	ErrQueueShutdown = errors.New("queue shutdown")
	// ErrInvalidCapacity 容量必须为正
	ErrInvalidCapacity = errors.New("queue capacity must be > 0")
)

// Queue 有界 FIFO 队列（竞争消费者语义）
// 满时 Enqueue 阻塞，空时 Dequeue 阻塞；每个元素恰好被一个消费者取走。
type Queue[T any] struct {
	items    chan T
	abort    chan struct{}
	mu       sync.Mutex
	closed   bool
	senders  sync.WaitGroup
	stopOnce sync.Once
	enqueued atomic.Int64
	dequeued atomic.Int64
}

// NewQueue 创建容量为 capacity 的队列
func NewQueue[T any](capacity int) (*Queue[T], error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &Queue[T]{
		items: make(chan T, capacity),
		abort: make(chan struct{}),
	}, nil
}

// Enqueue 追加到队尾，队列满时阻塞
func (q *Queue[T]) Enqueue(ctx context.Context, v T) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.senders.Add(1)
	q.mu.Unlock()
	defer q.senders.Done()

	// 已 Shutdown 时不再写入，避免与 select 的随机选择竞争
	select {
	case <-q.abort:
		return ErrQueueShutdown
	default:
	}

	select {
	case q.items <- v:
		q.enqueued.Inc()
		return nil
	case <-q.abort:
		return ErrQueueShutdown
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue 取出队头，队列空时阻塞
func (q *Queue[T]) Dequeue(ctx context.Context) (T, error) {
	var zero T

	select {
	case <-q.abort:
		return zero, ErrQueueShutdown
	default:
	}

	select {
	case v, ok := <-q.items:
		if !ok {
			return zero, ErrQueueClosed
		}
		q.dequeued.Inc()
		return v, nil
	case <-q.abort:
		return zero, ErrQueueShutdown
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// TryDequeue 非阻塞取出；队列为空、已关闭取空或已 Shutdown 时返回 false
func (q *Queue[T]) TryDequeue() (T, bool) {
	var zero T

	select {
	case <-q.abort:
		return zero, false
	default:
	}

	select {
	case v, ok := <-q.items:
		if !ok {
			return zero, false
		}
		q.dequeued.Inc()
		return v, true
	default:
		return zero, false
	}
}

// Close 发出“不会再有新元素”的信号
// 等待进行中的 Enqueue 返回后关闭底层 channel；重复调用无副作用。
func (q *Queue[T]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	q.senders.Wait()
	close(q.items)
}

// Shutdown 强制终止，唤醒所有阻塞方；缓冲中的元素被放弃
func (q *Queue[T]) Shutdown() {
	q.stopOnce.Do(func() {
		close(q.abort)
	})
}

// IsShutdown 是否已强制终止
func (q *Queue[T]) IsShutdown() bool {
	select {
	case <-q.abort:
		return true
	default:
		return false
	}
}

// Closed 是否已调用 Close
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len 当前缓冲的元素数
func (q *Queue[T]) Len() int {
	return len(q.items)
}

// Cap 队列容量
func (q *Queue[T]) Cap() int {
	return cap(q.items)
}

// Enqueued 累计成功入队数
func (q *Queue[T]) Enqueued() int64 {
	return q.enqueued.Load()
}

// Dequeued 累计成功出队数
func (q *Queue[T]) Dequeued() int64 {
	return q.dequeued.Load()
}
