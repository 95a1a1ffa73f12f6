package worker

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/atomic"

	"oip/txguard/internal/framework"
	"oip/txguard/internal/model"
	"oip/txguard/pkg/logger"
)

// Pipeline 一条完整的流水线：Generator → Queue → Processor
type Pipeline struct {
	name      string
	source    framework.Source
	queue     *framework.Queue[model.Transaction]
	generator *framework.Generator
	processor *framework.Processor
	logger    logger.Logger

	procDone     chan struct{}
	done         chan struct{}
	started      atomic.Bool
	startOnce    sync.Once
	shutdownOnce sync.Once
	genErr       error
}

// NewPipeline 创建流水线
func NewPipeline(
	name string,
	capacity int,
	genCfg *framework.GeneratorConfig,
	procCfg *framework.ProcessorConfig,
	source framework.Source,
	handle framework.HandleFunc, // 注入 Detector.Handle
	log logger.Logger,
) (*Pipeline, error) {
	queue, err := framework.NewQueue[model.Transaction](capacity)
	if err != nil {
		return nil, fmt.Errorf("create queue failed: %w", err)
	}

	return &Pipeline{
		name:      name,
		source:    source,
		queue:     queue,
		generator: framework.NewGenerator(genCfg, source, queue, log),
		processor: framework.NewProcessor(procCfg, queue, handle, log),
		logger:    log,
		procDone:  make(chan struct{}),
		done:      make(chan struct{}),
	}, nil
}

// Start 启动流水线（先启动消费方，再启动生产方）
func (p *Pipeline) Start(ctx context.Context) error {
	var err error
	p.startOnce.Do(func() {
		p.logger.Infof(ctx, "[Pipeline] %s started", p.name)

		// 1. 启动 Processor
		if err = p.processor.Start(ctx); err != nil {
			return
		}

		// 2. 启动 Generator
		p.generator.Start(ctx)
		p.started.Store(true)

		go func() {
			p.processor.Wait()
			close(p.procDone)
			<-p.generator.Done()
			close(p.done)
		}()
	})
	return err
}

// Done Generator 与所有 Processor 都退出后关闭
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}

// ProcessorsDone 所有 Processor 退出后关闭
func (p *Pipeline) ProcessorsDone() <-chan struct{} {
	return p.procDone
}

// Abort 强制终止队列，唤醒阻塞的 Generator；缓冲中的交易不再投递
func (p *Pipeline) Abort() {
	p.logger.Warnf(context.Background(), "[Pipeline] %s aborting queue, %d transactions undelivered", p.name, p.queue.Len())
	p.queue.Shutdown()
}

// Shutdown 优雅退出（4 步链路），返回 Generator 的错误
func (p *Pipeline) Shutdown() error {
	if !p.started.Load() {
		return nil
	}
	p.shutdownOnce.Do(func() {
		ctx := context.Background()
		p.logger.Infof(ctx, "[Pipeline] %s began to close", p.name)

		// 【第 1 步】停止生产新交易
		// 可关闭的数据源先关闭入口，Generator 读完已接收的交易后自然退出
		if src, ok := p.source.(framework.ClosableSource); ok {
			src.Close()
			p.awaitGenerator(ctx)
		} else {
			p.generator.Stop()
		}

		// 【第 2 步】等待 Generator 完全退出（退出时关闭队列）
		p.genErr = p.generator.Wait()

		// 【第 3 步】通知 Processor 进入 Drain 模式
		p.processor.SignalShutdown()

		// 【第 4 步】等待 Processor 处理完剩余交易
		p.processor.Wait()

		p.logger.Infof(ctx, "[Pipeline] %s shutdown complete", p.name)
	})
	return p.genErr
}

// awaitGenerator 等待 Generator 读到 EOF；Processor 先行结束时终止队列
func (p *Pipeline) awaitGenerator(ctx context.Context) {
	select {
	case <-p.generator.Done():
	case <-p.procDone:
		select {
		case <-p.generator.Done():
		default:
			p.logger.Warnf(ctx, "[Pipeline] %s processors finished before source drained", p.name)
			p.Abort()
		}
	}
}

// Queue 底层队列
func (p *Pipeline) Queue() *framework.Queue[model.Transaction] {
	return p.queue
}

// Generator 生产者
func (p *Pipeline) Generator() *framework.Generator {
	return p.generator
}

// Processor 处理器
func (p *Pipeline) Processor() *framework.Processor {
	return p.processor
}

// Name 流水线名称
func (p *Pipeline) Name() string {
	return p.name
}
