package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"oip/txguard/pkg/errorutil"
	"oip/txguard/pkg/logger"
)

type fakeQueue struct{ n, c int }

func (q *fakeQueue) Len() int { return q.n }
func (q *fakeQueue) Cap() int { return q.c }

type fakeLocks struct {
	states     []int32
	violations int64
}

func (l *fakeLocks) LockStates() []int32 { return l.states }
func (l *fakeLocks) Violations() int64   { return l.violations }

type fakeCounter struct{ v int64 }

func (c *fakeCounter) Value() int64 { return c.v }

func newMonitor() (*Monitor, *fakeQueue, *fakeLocks, *fakeCounter) {
	q := &fakeQueue{n: 3, c: 10}
	l := &fakeLocks{states: []int32{0, 1}}
	c := &fakeCounter{v: 2}
	return New(q, l, c, logger.NewNop()), q, l, c
}

func TestCheckPassesOnHealthyPipeline(t *testing.T) {
	m, _, _, _ := newMonitor()
	if err := m.Check(); err != nil {
		t.Fatal(err)
	}
	r := m.Report()
	if r.QueueLen != 3 || r.QueueCap != 10 || r.Anomalies != 2 || r.Checks != 1 {
		t.Fatalf("report=%+v", r)
	}
}

func TestCheckDetectsViolations(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*fakeQueue, *fakeLocks, *fakeCounter)
		want   error
	}{
		{"queue overflow", func(q *fakeQueue, _ *fakeLocks, _ *fakeCounter) { q.n = 11 }, ErrQueueBound},
		{"negative queue", func(q *fakeQueue, _ *fakeLocks, _ *fakeCounter) { q.n = -1 }, ErrQueueBound},
		{"two holders", func(_ *fakeQueue, l *fakeLocks, _ *fakeCounter) { l.states = []int32{2} }, ErrMutualExclusion},
		{"overlap observed", func(_ *fakeQueue, l *fakeLocks, _ *fakeCounter) { l.violations = 1 }, ErrMutualExclusion},
		{"counter regressed", func(_ *fakeQueue, _ *fakeLocks, c *fakeCounter) { c.v = 1 }, ErrCounterRegressed},
		{"negative counter", func(_ *fakeQueue, _ *fakeLocks, c *fakeCounter) { c.v = -1 }, ErrCounterRegressed},
	}
	for _, c := range cases {
		m, q, l, cnt := newMonitor()
		if err := m.Check(); err != nil {
			t.Fatalf("%s: baseline err=%v", c.name, err)
		}
		c.mutate(q, l, cnt)
		err := m.Check()
		if !errors.Is(err, c.want) {
			t.Fatalf("%s: want %v, got %v", c.name, c.want, err)
		}
		if errorutil.ClassOf(err) != errorutil.ClassInvariant {
			t.Fatalf("%s: class=%s", c.name, errorutil.ClassOf(err))
		}
	}
}

func TestRunReturnsFirstViolation(t *testing.T) {
	m, q, _, _ := newMonitor()
	q.n = 20

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := m.Run(ctx, time.Millisecond); !errors.Is(err, ErrQueueBound) {
		t.Fatalf("want ErrQueueBound, got %v", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	m, _, _, _ := newMonitor()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := m.Run(ctx, time.Millisecond); err != nil {
		t.Fatalf("healthy run err=%v", err)
	}
	if m.Report().Checks == 0 {
		t.Fatal("expected at least one check")
	}
}
