package rules

import (
	"sort"
	"sync"

	"go.uber.org/atomic"
)

// Counter 异常计数器：只增不减
type Counter struct {
	total  atomic.Int64
	mu     sync.RWMutex
	byRule map[string]*atomic.Int64
}

// NewCounter 创建计数器
func NewCounter() *Counter {
	return &Counter{byRule: make(map[string]*atomic.Int64)}
}

// Inc 记录一次命中，返回新的总数
func (c *Counter) Inc(rule string) int64 {
	c.ruleCounter(rule).Inc()
	return c.total.Inc()
}

func (c *Counter) ruleCounter(rule string) *atomic.Int64 {
	c.mu.RLock()
	n, ok := c.byRule[rule]
	c.mu.RUnlock()
	if ok {
		return n
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if n, ok = c.byRule[rule]; !ok {
		n = atomic.NewInt64(0)
		c.byRule[rule] = n
	}
	return n
}

// Value 总命中数
func (c *Counter) Value() int64 {
	return c.total.Load()
}

// ByRule 按规则统计的命中数
func (c *Counter) ByRule() map[string]int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]int64, len(c.byRule))
	for rule, n := range c.byRule {
		out[rule] = n.Load()
	}
	return out
}

// Rules 已出现过命中的规则名（排序）
func (c *Counter) Rules() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.byRule))
	for rule := range c.byRule {
		names = append(names, rule)
	}
	sort.Strings(names)
	return names
}
