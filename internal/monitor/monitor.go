package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/atomic"

	"oip/txguard/pkg/errorutil"
	"oip/txguard/pkg/logger"
)

var (
	// ErrQueueBound 队列长度越界
	ErrQueueBound = errors.New("queue length out of bounds")
	// ErrMutualExclusion 临界区内出现多个持有者
	ErrMutualExclusion = errors.New("mutual exclusion violated")
	// ErrCounterRegressed 异常计数为负或出现回退
	ErrCounterRegressed = errors.New("anomaly counter regressed")
)

// QueueProbe 队列观测接口
type QueueProbe interface {
	Len() int
	Cap() int
}

// LockProbe 锁观测接口
type LockProbe interface {
	LockStates() []int32
	Violations() int64
}

// CounterProbe 计数器观测接口
type CounterProbe interface {
	Value() int64
}

// Report 最近一次巡检的观测值
type Report struct {
	QueueLen   int     `json:"queue_len"`
	QueueCap   int     `json:"queue_cap"`
	LockStates []int32 `json:"lock_states"`
	Violations int64   `json:"violations"`
	Anomalies  int64   `json:"anomalies"`
	Checks     int64   `json:"checks"`
}

// Monitor 运行时不变量巡检，只读不写
type Monitor struct {
	queue   QueueProbe
	locks   LockProbe
	counter CounterProbe
	logger  logger.Logger

	mu     sync.Mutex
	last   int64
	report Report
	checks atomic.Int64
}

// New 创建巡检器
func New(queue QueueProbe, locks LockProbe, counter CounterProbe, log logger.Logger) *Monitor {
	return &Monitor{
		queue:   queue,
		locks:   locks,
		counter: counter,
		logger:  log,
	}
}

// Check 执行一次巡检，返回第一个被破坏的不变量
func (m *Monitor) Check() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks.Inc()

	length, capacity := m.queue.Len(), m.queue.Cap()
	states := m.locks.LockStates()
	violations := m.locks.Violations()
	value := m.counter.Value()

	m.report = Report{
		QueueLen:   length,
		QueueCap:   capacity,
		LockStates: states,
		Violations: violations,
		Anomalies:  value,
		Checks:     m.checks.Load(),
	}

	if length < 0 || length > capacity {
		return errorutil.Invariant(ErrQueueBound, "queue length %d not in [0,%d]", length, capacity)
	}
	for i, s := range states {
		if s != 0 && s != 1 {
			return errorutil.Invariant(ErrMutualExclusion, "lock %d has %d holders", i, s)
		}
	}
	if violations != 0 {
		return errorutil.Invariant(ErrMutualExclusion, "%d overlapping critical sections observed", violations)
	}
	if value < 0 || value < m.last {
		return errorutil.Invariant(ErrCounterRegressed, "anomaly counter %d, last observed %d", value, m.last)
	}
	m.last = value
	return nil
}

// Run 按间隔巡检直到 ctx 取消；发现违规立即返回
func (m *Monitor) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.logger.Infof(ctx, "[Monitor] Started, interval %s", interval)
	for {
		select {
		case <-ctx.Done():
			// 退出前做最后一次检查
			err := m.Check()
			m.logger.Infof(ctx, "[Monitor] Stopped after %d checks", m.checks.Load())
			return err
		case <-ticker.C:
			if err := m.Check(); err != nil {
				m.logger.Errorf(ctx, "[Monitor] Invariant violated: %v", err)
				return err
			}
		}
	}
}

// Report 最近一次巡检的观测值
func (m *Monitor) Report() Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.report
	r.LockStates = append([]int32(nil), m.report.LockStates...)
	return r
}
