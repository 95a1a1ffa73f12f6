package framework

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/atomic"

	"oip/txguard/internal/model"
	"oip/txguard/pkg/errorutil"
)

// Generator 生产者：从 Source 拉取交易并写入队列，结束时关闭队列
type Generator struct {
	cfg        *GeneratorConfig
	source     Source
	queue      *Queue[model.Transaction]
	logger     Logger
	state      atomic.Int32
	emitted    atomic.Int64
	rejected   atomic.Int64
	cancelFunc context.CancelFunc
	startOnce  sync.Once
	done       chan struct{}
	err        error
}

// NewGenerator 创建生产者
func NewGenerator(cfg *GeneratorConfig, source Source, queue *Queue[model.Transaction], log Logger) *Generator {
	return &Generator{
		cfg:    cfg,
		source: source,
		queue:  queue,
		logger: log,
		done:   make(chan struct{}),
	}
}

// Start 在独立协程中开始生产
func (g *Generator) Start(parentCtx context.Context) {
	g.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(parentCtx)
		g.cancelFunc = cancel

		go func() {
			defer close(g.done)
			g.err = g.run(ctx)
			cancel()
		}()
	})
}

// Run 同步执行，直到配额用尽、数据源耗尽或被停止
func (g *Generator) Run(ctx context.Context) error {
	g.Start(ctx)
	return g.Wait()
}

// Stop 停止生产（不再拉取新交易），队列随后被关闭
func (g *Generator) Stop() {
	g.logger.Infof(context.Background(), "[Generator] Stopping...")
	if g.cancelFunc != nil {
		g.cancelFunc()
	}
}

// Wait 等待生产协程退出，返回其错误
func (g *Generator) Wait() error {
	<-g.done
	return g.err
}

// Done 生产结束时关闭的通道
func (g *Generator) Done() <-chan struct{} {
	return g.done
}

// State 当前状态
func (g *Generator) State() GeneratorState {
	return GeneratorState(g.state.Load())
}

// Emitted 成功入队的交易数
func (g *Generator) Emitted() int64 {
	return g.emitted.Load()
}

// Rejected 校验失败被丢弃的交易数
func (g *Generator) Rejected() int64 {
	return g.rejected.Load()
}

func (g *Generator) underQuota() bool {
	return g.cfg.Quota <= 0 || g.emitted.Load() < int64(g.cfg.Quota)
}

// run 生产循环
func (g *Generator) run(ctx context.Context) error {
	defer func() {
		// 完成信号：关闭队列，消费者取空后退出
		g.queue.Close()
		g.state.Store(int32(GeneratorDone))
		g.logger.Infof(ctx, "[Generator] Done, emitted %d, rejected %d", g.emitted.Load(), g.rejected.Load())
	}()

	g.state.Store(int32(GeneratorEmitting))
	g.logger.Infof(ctx, "[Generator] Emitting, quota %d", g.cfg.Quota)

	for g.underQuota() {
		// 1. 拉取交易
		tx, err := g.source.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				g.logger.Infof(ctx, "[Generator] Source exhausted")
				return nil
			}
			if ctx.Err() != nil {
				g.logger.Infof(ctx, "[Generator] Context cancelled, exiting")
				return nil
			}
			if errorutil.IsRetryable(err) {
				// 容错：临时故障不退出，退避后重试
				g.logger.Warnf(ctx, "[Generator] Source error: %v, retrying...", err)
				if !g.backoff(ctx) {
					return nil
				}
				continue
			}
			return fmt.Errorf("source failed: %w", err)
		}

		// 2. 校验，非法交易不入队
		tx = tx.Normalize()
		if g.cfg.Accounts > 0 {
			if err := tx.Validate(g.cfg.Accounts); err != nil {
				g.rejected.Inc()
				g.logger.Warnf(ctx, "[Generator] Rejecting transaction %q: %v", tx.ID, err)
				continue
			}
		}

		// 3. 入队（满时阻塞）
		if err := g.queue.Enqueue(ctx, tx); err != nil {
			switch {
			case errors.Is(err, ErrQueueShutdown):
				g.logger.Warnf(ctx, "[Generator] Queue shutdown, dropping %q", tx.ID)
				return nil
			case ctx.Err() != nil:
				g.logger.Warnf(ctx, "[Generator] Dropping transaction due to shutdown: %q", tx.ID)
				return nil
			default:
				return fmt.Errorf("enqueue failed: %w", err)
			}
		}
		g.emitted.Inc()
	}

	g.logger.Infof(ctx, "[Generator] Quota reached")
	return nil
}

// backoff 错误退避，期间收到取消返回 false
func (g *Generator) backoff(ctx context.Context) bool {
	if g.cfg.ErrorBackoff <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(g.cfg.ErrorBackoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
