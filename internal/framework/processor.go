package framework

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/atomic"

	"oip/txguard/internal/model"
	"oip/txguard/pkg/logger"
)

// workerSlot 单个处理协程的可观测状态
type workerSlot struct {
	id        int
	state     atomic.Int32
	processed atomic.Int64
}

// Processor 处理器：N 个协程竞争消费队列，调用业务处理函数
type Processor struct {
	cfg          *ProcessorConfig
	queue        *Queue[model.Transaction]
	handle       HandleFunc
	logger       Logger
	shutdownCh   chan struct{} // 专门的退出信号通道
	shutdownOnce sync.Once
	recvCancel   context.CancelFunc
	slots        []*workerSlot
	wg           sync.WaitGroup
}

// NewProcessor 创建处理器
func NewProcessor(cfg *ProcessorConfig, queue *Queue[model.Transaction], handle HandleFunc, log Logger) *Processor {
	slots := make([]*workerSlot, cfg.Concurrency)
	for i := range slots {
		slots[i] = &workerSlot{id: i}
	}
	return &Processor{
		cfg:        cfg,
		queue:      queue,
		handle:     handle,
		logger:     log,
		shutdownCh: make(chan struct{}),
		slots:      slots,
	}
}

// Start 启动处理协程
func (p *Processor) Start(ctx context.Context) error {
	if p.cfg.Concurrency <= 0 {
		return fmt.Errorf("processor concurrency must be > 0, got %d", p.cfg.Concurrency)
	}
	p.logger.Infof(ctx, "[Processor] Starting with %d workers, quota %d", p.cfg.Concurrency, p.cfg.Quota)

	// 接收阶段使用独立的 Context：SignalShutdown 只打断阻塞中的 Dequeue，不影响正在评估的交易
	recvCtx, cancel := context.WithCancel(ctx)
	p.recvCancel = cancel

	for _, slot := range p.slots {
		p.wg.Add(1)
		go p.loop(ctx, recvCtx, slot)
	}

	return nil
}

// SignalShutdown 通知 Processor 准备退出（进入 Drain 模式）
func (p *Processor) SignalShutdown() {
	p.shutdownOnce.Do(func() {
		p.logger.Infof(context.Background(), "[Processor] Shutdown signal received")
		close(p.shutdownCh)
		if p.recvCancel != nil {
			p.recvCancel()
		}
	})
}

// Wait 等待所有处理协程退出
func (p *Processor) Wait() {
	p.wg.Wait()
	if p.recvCancel != nil {
		p.recvCancel()
	}
	p.logger.Infof(context.Background(), "[Processor] All workers exited")
}

// States 返回每个处理协程的状态快照
func (p *Processor) States() []model.WorkerStatus {
	out := make([]model.WorkerStatus, 0, len(p.slots))
	for _, s := range p.slots {
		out = append(out, model.WorkerStatus{
			ID:        s.id,
			State:     WorkerState(s.state.Load()).String(),
			Processed: s.processed.Load(),
		})
	}
	return out
}

// Processed 所有协程累计处理数
func (p *Processor) Processed() int64 {
	var total int64
	for _, s := range p.slots {
		total += s.processed.Load()
	}
	return total
}

// AllDone 是否所有协程都已进入 DONE
func (p *Processor) AllDone() bool {
	for _, s := range p.slots {
		if WorkerState(s.state.Load()) != StateDone {
			return false
		}
	}
	return true
}

func (p *Processor) underQuota(s *workerSlot) bool {
	return p.cfg.Quota <= 0 || s.processed.Load() < int64(p.cfg.Quota)
}

func (p *Processor) draining() bool {
	select {
	case <-p.shutdownCh:
		return true
	default:
		return false
	}
}

// loop 处理循环（单个 Worker）
func (p *Processor) loop(ctx, recvCtx context.Context, s *workerSlot) {
	defer p.wg.Done()
	defer s.state.Store(int32(StateDone))

	ctx = logger.WithWorkerID(ctx, s.id)
	p.logger.Debugf(ctx, "[Processor-%d] Started", s.id)

	for p.underQuota(s) {
		s.state.Store(int32(StateReceiving))

		tx, err := p.queue.Dequeue(recvCtx)
		if err != nil {
			switch {
			case errors.Is(err, ErrQueueClosed):
				p.logger.Infof(ctx, "[Processor-%d] Queue closed and drained, processed %d", s.id, s.processed.Load())
			case errors.Is(err, ErrQueueShutdown):
				p.logger.Warnf(ctx, "[Processor-%d] Queue shutdown, processed %d", s.id, s.processed.Load())
			case p.draining():
				p.drain(ctx, s)
			default:
				p.logger.Warnf(ctx, "[Processor-%d] Context cancelled: %v", s.id, err)
			}
			return
		}

		p.process(ctx, s, tx)
	}

	p.logger.Infof(ctx, "[Processor-%d] Quota reached: %d", s.id, s.processed.Load())
}

// drain Drain 模式：处理完已缓冲的消息再退出
func (p *Processor) drain(ctx context.Context, s *workerSlot) {
	p.logger.Infof(ctx, "[Processor-%d] Entering DRAIN mode", s.id)
	count := 0
	for p.underQuota(s) {
		tx, ok := p.queue.TryDequeue()
		if !ok {
			break
		}
		p.process(ctx, s, tx)
		count++
	}
	p.logger.Infof(ctx, "[Processor-%d] Drained %d transactions, exiting", s.id, count)
}

// process 处理单笔交易；出队后的交易总是被完整评估
func (p *Processor) process(ctx context.Context, s *workerSlot, tx model.Transaction) {
	s.state.Store(int32(StateEvaluating))
	p.handle(ctx, s.id, tx)
	s.processed.Inc()
	s.state.Store(int32(StateReady))
}
