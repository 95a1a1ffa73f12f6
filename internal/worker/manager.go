package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"oip/txguard/internal/business"
	"oip/txguard/internal/framework"
	"oip/txguard/internal/history"
	"oip/txguard/internal/model"
	"oip/txguard/internal/monitor"
	"oip/txguard/internal/rules"
	"oip/txguard/internal/sink"
	"oip/txguard/internal/source"
	"oip/txguard/pkg/config"
	"oip/txguard/pkg/infra/mysql"
	"oip/txguard/pkg/infra/redis"
	"oip/txguard/pkg/lmstfy"
	"oip/txguard/pkg/logger"
)

var (
	// ErrAlreadyRunning Run 只能调用一次
	ErrAlreadyRunning = errors.New("manager already started")
	// ErrIngestDisabled 当前数据源不接受外部写入
	ErrIngestDisabled = errors.New("ingest is only available with the feed source")
)

// Result 一次运行的最终统计
type Result struct {
	RunID         string               `json:"run_id"`
	Accepted      int64                `json:"accepted,omitempty"` // feed 数据源：Submit 成功的交易
	Emitted       int64                `json:"emitted"`
	Rejected      int64                `json:"rejected"`
	Processed     int64                `json:"processed"`
	PerWorker     []model.WorkerStatus `json:"per_worker"`
	Anomalies     int64                `json:"anomalies"`
	ByRule        map[string]int64     `json:"by_rule"`
	AccountCounts []history.Entry      `json:"account_counts"`
	Undelivered   int64                `json:"undelivered"` // 已接收但未被处理的交易
	Stats         model.DetectionStats `json:"stats"`
	Monitor       monitor.Report       `json:"monitor"`
	Duration      time.Duration        `json:"duration"`
}

// Option Manager 可选项
type Option func(*Manager)

// WithSource 使用外部数据源（忽略 source.kind）
func WithSource(src framework.Source) Option {
	return func(m *Manager) { m.source = src }
}

// WithSink 追加事件下游
func WithSink(s sink.EventSink) Option {
	return func(m *Manager) { m.extraSinks = append(m.extraSinks, s) }
}

// Manager 组装并运行流水线
type Manager struct {
	cfg    *config.Config
	runID  string
	logger logger.Logger

	source     framework.Source
	feed       *source.Feed
	extraSinks []sink.EventSink
	sinks      *sink.Multi
	closers    []func() error

	store    *history.Store
	counter  *rules.Counter
	detector *business.Detector
	pipeline *Pipeline
	monitor  *monitor.Monitor

	started    *atomic.Bool
	running    *atomic.Bool
	closing    *atomic.Bool
	shutdownCh chan struct{}
	stopped    chan struct{}
	closeOnce  sync.Once
}

// NewManager 按配置创建所有组件（不启动任何 goroutine）
func NewManager(cfg *config.Config, log logger.Logger, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:        cfg,
		runID:      uuid.New().String(),
		logger:     log,
		started:    atomic.NewBool(false),
		running:    atomic.NewBool(false),
		closing:    atomic.NewBool(false),
		shutdownCh: make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	ctx := logger.WithRunID(context.Background(), m.runID)
	if err := m.build(ctx); err != nil {
		m.closeResources(ctx)
		return nil, err
	}

	log.Infof(ctx, "[Manager] Initialized: accounts=%d workers=%d quota=%d capacity=%d source=%s sinks=%v",
		cfg.Pipeline.Accounts, cfg.Pipeline.Workers, cfg.Pipeline.Quota, cfg.Pipeline.QueueCapacity,
		cfg.Source.Kind, m.sinks.Names())
	return m, nil
}

func (m *Manager) build(ctx context.Context) error {
	p := m.cfg.Pipeline

	// 1. 账户历史与规则集
	store, err := history.New(p.Accounts, p.HistoryShards, p.RapidWindow)
	if err != nil {
		return fmt.Errorf("failed to create history store: %w", err)
	}
	m.store = store
	m.counter = rules.NewCounter()

	ruleSet, err := rules.Build(m.cfg.Rules, store, m.counter)
	if err != nil {
		return fmt.Errorf("failed to build rules: %w", err)
	}

	// 2. 事件下游
	if err := m.buildSinks(ctx); err != nil {
		return err
	}

	// 3. 数据源
	if m.source == nil {
		if err := m.buildSource(); err != nil {
			return err
		}
	}

	// 4. 流水线
	m.detector = business.NewDetector(ruleSet, m.sinks, business.NewStats(), m.logger)
	m.pipeline, err = NewPipeline(
		m.cfg.App.Name,
		p.QueueCapacity,
		&framework.GeneratorConfig{
			Quota:        m.cfg.Source.Total,
			Accounts:     p.Accounts,
			ErrorBackoff: m.cfg.Source.ErrorBackoff,
		},
		&framework.ProcessorConfig{
			Concurrency: p.Workers,
			Quota:       p.Quota,
		},
		m.source,
		m.detector.Handle,
		m.logger,
	)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	// 5. 不变量巡检
	m.monitor = monitor.New(m.pipeline.Queue(), store, m.counter, m.logger)
	return nil
}

func (m *Manager) buildSinks(ctx context.Context) error {
	m.sinks = sink.NewMulti(m.logger)
	sc := m.cfg.Sinks

	if sc.Log {
		var zl *zap.Logger
		if z, ok := m.logger.(interface{ Zap() *zap.Logger }); ok {
			zl = z.Zap()
		}
		m.sinks.Add(sink.NewLogSink(zl))
	}

	if sc.Redis {
		pubsub, err := redis.NewPubSub(m.cfg.Redis.Addr, m.cfg.Redis.Password, m.cfg.Redis.DB)
		if err != nil {
			return fmt.Errorf("failed to create redis sink: %w", err)
		}
		m.closers = append(m.closers, pubsub.Close)
		m.sinks.Add(sink.NewRedisSink(pubsub, sc.RedisChannel))
	}

	if sc.MySQL {
		dao, err := mysql.NewAnomalyDAO(m.cfg.MySQL.DSN)
		if err != nil {
			return fmt.Errorf("failed to create mysql sink: %w", err)
		}
		m.closers = append(m.closers, dao.Close)
		if sc.AutoMigrate {
			if err := dao.AutoMigrate(); err != nil {
				return err
			}
		}
		m.sinks.Add(sink.NewMySQLSink(dao, m.runID))
	}

	if sc.Lmstfy {
		client, err := m.lmstfyClient()
		if err != nil {
			return err
		}
		m.sinks.Add(sink.NewLmstfySink(client, sc.LmstfyQueue))
	}

	for _, s := range m.extraSinks {
		m.sinks.Add(s)
	}

	m.logger.Debugf(ctx, "[Manager] Sinks ready: %v", m.sinks.Names())
	return nil
}

func (m *Manager) buildSource() error {
	sc := m.cfg.Source
	accounts := m.cfg.Pipeline.Accounts

	switch sc.Kind {
	case config.SourceSequence:
		m.source = source.NewSequence(m.cfg.EffectiveTotal(), accounts, m.cfg.Rules.LargeAmount.Threshold)
	case config.SourceSimulator:
		m.source = source.NewSimulator(m.cfg.EffectiveTotal(), accounts, sc.Seed, sc.AnomalyRate)
	case config.SourceLmstfy:
		client, err := m.lmstfyClient()
		if err != nil {
			return err
		}
		m.source = source.NewLmstfy(source.LmstfyConfig{
			QueueName: sc.QueueName,
			Timeout:   sc.Timeout,
			TTR:       sc.TTR,
			Accounts:  accounts,
		}, client, m.logger)
	case config.SourceFeed:
		m.feed = source.NewFeed(sc.FeedBuffer)
		m.source = m.feed
	default:
		return fmt.Errorf("unknown source kind %q", sc.Kind)
	}
	return nil
}

func (m *Manager) lmstfyClient() (*lmstfy.Client, error) {
	lc := m.cfg.Lmstfy
	client, err := lmstfy.NewClient(lc.Host, lc.Port, lc.Namespace, lc.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create lmstfy client: %w", err)
	}
	return client, nil
}

// Run 启动流水线并阻塞到结束：自然完成、显式 Shutdown、ctx 取消或不变量被破坏
func (m *Manager) Run(ctx context.Context) (*Result, error) {
	if !m.started.CAS(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer close(m.stopped)

	start := time.Now()
	ctx = logger.WithRunID(ctx, m.runID)
	m.logger.Infof(ctx, "[Manager] Starting...")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := m.pipeline.Start(runCtx); err != nil {
		m.closeResources(ctx)
		return nil, fmt.Errorf("failed to start pipeline: %w", err)
	}
	m.running.Store(true)

	monCtx, monCancel := context.WithCancel(context.Background())
	defer monCancel()
	monErr := make(chan error, 1)
	go func() {
		monErr <- m.monitor.Run(logger.WithRunID(monCtx, m.runID), m.cfg.Pipeline.MonitorInterval)
	}()

	monDone, runErr := m.wait(ctx, monErr)

	// 优雅退出：关闭入口 → 读完已接收的交易 → Drain → 等待
	if m.feed != nil {
		m.feed.Close()
	}
	if err := m.pipeline.Shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	m.running.Store(false)

	monCancel()
	if !monDone {
		if err := <-monErr; err != nil && runErr == nil {
			runErr = err
		}
	}

	m.closeResources(ctx)
	result := m.result(start)
	m.logger.Infof(ctx, "[Manager] Run finished: processed=%d anomalies=%d undelivered=%d duration=%s",
		result.Processed, result.Anomalies, result.Undelivered, result.Duration)
	return result, runErr
}

// wait 等待结束条件；monDone 表示巡检协程是否已退出
func (m *Manager) wait(ctx context.Context, monErr <-chan error) (monDone bool, err error) {
	procDone := m.pipeline.ProcessorsDone()
	for {
		select {
		case <-m.pipeline.Done():
			m.logger.Infof(ctx, "[Manager] Pipeline completed")
			return false, nil

		case <-procDone:
			procDone = nil
			// 所有 Processor 已结束而 Generator 仍在生产（可能阻塞在满队列上）
			if !m.pipeline.Queue().Closed() {
				m.pipeline.Abort()
			}

		case <-m.shutdownCh:
			m.logger.Infof(ctx, "[Manager] Shutdown requested")
			return false, nil

		case <-ctx.Done():
			m.logger.Warnf(ctx, "[Manager] Context cancelled: %v", ctx.Err())
			return false, nil

		case err = <-monErr:
			// 巡检只在违规或 ctx 取消时返回
			m.logger.Errorf(ctx, "[Manager] Stopping on invariant violation: %v", err)
			return true, err
		}
	}
}

// Shutdown 请求退出并等待 Run 返回（可重复调用）
func (m *Manager) Shutdown() {
	if m.closing.CAS(false, true) {
		m.logger.Infof(context.Background(), "[Manager] Began to close")
		close(m.shutdownCh)
	}
	if m.started.Load() {
		<-m.stopped
	}
}

func (m *Manager) closeResources(ctx context.Context) {
	m.closeOnce.Do(func() {
		for _, closeFn := range m.closers {
			if err := closeFn(); err != nil {
				m.logger.Warnf(ctx, "[Manager] Close resource failed: %v", err)
			}
		}
	})
}

func (m *Manager) result(start time.Time) *Result {
	gen := m.pipeline.Generator()
	proc := m.pipeline.Processor()

	processed := proc.Processed()
	undelivered := gen.Emitted() - processed
	var accepted int64
	if m.feed != nil {
		// 已接收但未入队（仍在 Feed 缓冲或入队时被丢弃）的交易同样计为未投递
		accepted = m.feed.Accepted()
		undelivered = accepted - gen.Rejected() - processed
	}
	if undelivered < 0 {
		undelivered = 0
	}

	return &Result{
		RunID:         m.runID,
		Accepted:      accepted,
		Emitted:       gen.Emitted(),
		Rejected:      gen.Rejected(),
		Processed:     processed,
		PerWorker:     proc.States(),
		Anomalies:     m.counter.Value(),
		ByRule:        m.counter.ByRule(),
		AccountCounts: m.store.Snapshot(),
		Undelivered:   undelivered,
		Stats:         m.detector.Stats().Snapshot(),
		Monitor:       m.monitor.Report(),
		Duration:      time.Since(start),
	}
}

// RunID 本次运行 ID
func (m *Manager) RunID() string {
	return m.runID
}

// Status 流水线快照
func (m *Manager) Status() model.PipelineStatus {
	q := m.pipeline.Queue()
	gen := m.pipeline.Generator()

	return model.PipelineStatus{
		RunID:   m.runID,
		Running: m.running.Load(),
		Queue: model.QueueStatus{
			Len:      q.Len(),
			Cap:      q.Cap(),
			Closed:   q.Closed(),
			Enqueued: q.Enqueued(),
			Dequeued: q.Dequeued(),
		},
		Generator: model.GeneratorStatus{
			State:    gen.State().String(),
			Emitted:  gen.Emitted(),
			Rejected: gen.Rejected(),
		},
		Workers: m.pipeline.Processor().States(),
		Anomalies: model.AnomalyStatus{
			Total:  m.counter.Value(),
			ByRule: m.counter.ByRule(),
		},
		Locks: model.LockStatus{
			States:     m.store.LockStates(),
			Violations: m.store.Violations(),
		},
		Stats: m.detector.Stats().Snapshot(),
	}
}

// AccountCount 账户累计交易数
func (m *Manager) AccountCount(accountID int) (int64, error) {
	return m.store.Count(accountID)
}

// Submit 通过 Feed 写入一笔交易
func (m *Manager) Submit(ctx context.Context, tx model.Transaction) error {
	if m.feed == nil {
		return ErrIngestDisabled
	}
	tx = tx.Normalize()
	if err := tx.Validate(m.cfg.Pipeline.Accounts); err != nil {
		return err
	}
	return m.feed.Push(ctx, tx)
}
