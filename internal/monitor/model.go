package monitor

import (
	"errors"
	"fmt"
)

// maxModelWorkers 模型中 Processor 数量上限（状态空间随之指数增长）
const maxModelWorkers = 4

// DefaultMaxStates 默认状态数上限
const DefaultMaxStates = 5_000_000

// ErrStateLimit 状态空间超过上限
var ErrStateLimit = errors.New("state space exceeds limit")

// ModelConfig 抽象流水线参数
type ModelConfig struct {
	Workers         int  // Processor 数 N（1-4）
	Quota           int  // 每个 Processor 的配额 Q（0 = 不限）
	Capacity        int  // 队列容量 C
	Items           int  // Generator 生成总量
	ReleaseProducer bool // 所有 Processor 结束而 Generator 仍阻塞时强制终止队列
	MaxStates       int  // 0 使用 DefaultMaxStates
}

// ModelReport 穷举结果
type ModelReport struct {
	StatesExplored  int    `json:"states_explored"`
	Transitions     int    `json:"transitions"`
	TerminalStates  int    `json:"terminal_states"`
	Deadlocks       int    `json:"deadlocks"`
	MutexViolations int    `json:"mutex_violations"`
	QueueViolations int    `json:"queue_violations"`
	MaxQueueLen     int    `json:"max_queue_len"`
	FirstDeadlock   string `json:"first_deadlock,omitempty"`
}

// OK 无死锁且不变量均成立
func (r *ModelReport) OK() bool {
	return r.Deadlocks == 0 && r.MutexViolations == 0 && r.QueueViolations == 0
}

// Processor 程序计数器
const (
	pcReady uint8 = iota
	pcEval
	pcCritical
	pcDone
)

var pcNames = [...]string{"ready", "eval", "critical", "done"}

// mstate 抽象状态；队列元素不可区分，只记录长度
type mstate struct {
	produced  int
	queued    int
	closed    bool
	released  bool
	lock      int8 // -1 表示空闲
	pc        [maxModelWorkers]uint8
	processed [maxModelWorkers]int
}

func (s mstate) String() string {
	out := fmt.Sprintf("produced=%d queued=%d closed=%v released=%v lock=%d", s.produced, s.queued, s.closed, s.released, s.lock)
	for i := range s.pc {
		out += fmt.Sprintf(" w%d=%s/%d", i, pcNames[s.pc[i]], s.processed[i])
	}
	return out
}

func (c ModelConfig) validate() error {
	switch {
	case c.Workers < 1 || c.Workers > maxModelWorkers:
		return fmt.Errorf("workers must be in [1,%d], got %d", maxModelWorkers, c.Workers)
	case c.Capacity < 1:
		return fmt.Errorf("capacity must be > 0, got %d", c.Capacity)
	case c.Quota < 0:
		return fmt.Errorf("quota must be >= 0, got %d", c.Quota)
	case c.Items < 0:
		return fmt.Errorf("items must be >= 0, got %d", c.Items)
	}
	return nil
}

type explorer struct {
	cfg ModelConfig
}

// Explore 广度优先穷举所有交错执行
func Explore(cfg ModelConfig) (*ModelReport, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	limit := cfg.MaxStates
	if limit <= 0 {
		limit = DefaultMaxStates
	}

	e := &explorer{cfg: cfg}
	init := mstate{lock: -1}
	for i := cfg.Workers; i < maxModelWorkers; i++ {
		init.pc[i] = pcDone
	}

	report := &ModelReport{}
	seen := map[mstate]struct{}{init: {}}
	frontier := []mstate{init}

	for len(frontier) > 0 {
		s := frontier[0]
		frontier = frontier[1:]
		report.StatesExplored++

		e.inspect(s, report)

		next := e.successors(s)
		report.Transitions += len(next)
		if len(next) == 0 {
			if e.terminal(s) {
				report.TerminalStates++
			} else {
				report.Deadlocks++
				if report.FirstDeadlock == "" {
					report.FirstDeadlock = s.String()
				}
			}
			continue
		}

		for _, n := range next {
			if _, ok := seen[n]; ok {
				continue
			}
			if len(seen) >= limit {
				return report, fmt.Errorf("%w: %d", ErrStateLimit, limit)
			}
			seen[n] = struct{}{}
			frontier = append(frontier, n)
		}
	}
	return report, nil
}

// inspect 检查状态不变量
func (e *explorer) inspect(s mstate, r *ModelReport) {
	if s.queued < 0 || s.queued > e.cfg.Capacity {
		r.QueueViolations++
	}
	if s.queued > r.MaxQueueLen {
		r.MaxQueueLen = s.queued
	}
	holders := 0
	for i := 0; i < e.cfg.Workers; i++ {
		if s.pc[i] == pcCritical {
			holders++
		}
	}
	if holders > 1 {
		r.MutexViolations++
	}
}

// generatorDone Generator 已退出（队列已关闭）
func (e *explorer) generatorDone(s mstate) bool {
	return s.closed
}

func (e *explorer) generatorBlocked(s mstate) bool {
	return s.produced < e.cfg.Items && s.queued == e.cfg.Capacity && !s.released
}

func (e *explorer) allWorkersDone(s mstate) bool {
	for i := 0; i < e.cfg.Workers; i++ {
		if s.pc[i] != pcDone {
			return false
		}
	}
	return true
}

func (e *explorer) terminal(s mstate) bool {
	return e.generatorDone(s) && e.allWorkersDone(s)
}

func (e *explorer) successors(s mstate) []mstate {
	var out []mstate

	// Generator
	if !s.closed {
		switch {
		case s.released || s.produced == e.cfg.Items:
			n := s
			n.closed = true
			out = append(out, n)
		case s.queued < e.cfg.Capacity:
			n := s
			n.queued++
			n.produced++
			out = append(out, n)
		}
	}

	// Processors
	for i := 0; i < e.cfg.Workers; i++ {
		switch s.pc[i] {
		case pcReady:
			n := s
			switch {
			case s.released:
				n.pc[i] = pcDone
			case e.cfg.Quota > 0 && s.processed[i] >= e.cfg.Quota:
				n.pc[i] = pcDone
			case s.queued > 0:
				n.queued--
				n.pc[i] = pcEval
			case s.closed:
				n.pc[i] = pcDone
			default:
				continue // 阻塞在空队列上
			}
			out = append(out, n)
		case pcEval:
			if s.lock != -1 {
				continue
			}
			n := s
			n.lock = int8(i)
			n.pc[i] = pcCritical
			out = append(out, n)
		case pcCritical:
			n := s
			n.lock = -1
			n.processed[i]++
			n.pc[i] = pcReady
			out = append(out, n)
		}
	}

	// Manager：所有 Processor 结束而 Generator 阻塞时强制终止队列
	if e.cfg.ReleaseProducer && !s.released && e.allWorkersDone(s) && e.generatorBlocked(s) {
		n := s
		n.released = true
		out = append(out, n)
	}

	return out
}
