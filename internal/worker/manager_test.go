package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"oip/txguard/internal/model"
	"oip/txguard/internal/sink"
	"oip/txguard/internal/source"
	"oip/txguard/pkg/config"
	"oip/txguard/pkg/logger"
)

func referenceConfig() *config.Config {
	cfg := config.Default()
	cfg.Pipeline.MonitorInterval = time.Millisecond
	return cfg
}

func runManager(t *testing.T, cfg *config.Config, opts ...Option) *Result {
	t.Helper()
	m, err := NewManager(cfg, logger.NewNop(), opts...)
	if err != nil {
		t.Fatalf("NewManager err=%v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := m.Run(ctx)
	if err != nil {
		t.Fatalf("Run err=%v", err)
	}
	return res
}

// TestReferenceRun 参考模型：A=5, N=3, Q=10, C=10，共 30 笔交易
func TestReferenceRun(t *testing.T) {
	mem := sink.NewMemorySink()
	res := runManager(t, referenceConfig(), WithSink(mem))

	if res.Emitted != 30 || res.Processed != 30 || res.Undelivered != 0 {
		t.Fatalf("emitted=%d processed=%d undelivered=%d", res.Emitted, res.Processed, res.Undelivered)
	}
	// 大额：i=6,13,20,27；高频：每个账户第 4-6 笔
	if res.Anomalies != 19 {
		t.Fatalf("anomalies=%d want=19", res.Anomalies)
	}
	if res.ByRule[model.RuleLargeAmount] != 4 || res.ByRule[model.RuleRapidTransactions] != 15 {
		t.Fatalf("by rule=%v", res.ByRule)
	}
	if mem.Len() != 19 {
		t.Fatalf("published=%d want=19", mem.Len())
	}

	var total int64
	for _, e := range res.AccountCounts {
		if e.Count != 6 {
			t.Fatalf("account %d count=%d want=6", e.AccountID, e.Count)
		}
		total += e.Count
	}
	if total != 30 {
		t.Fatalf("account total=%d want=30", total)
	}

	for _, w := range res.PerWorker {
		if w.Processed != 10 || w.State != "DONE" {
			t.Fatalf("worker=%+v", w)
		}
	}
	if res.Stats.Processed != 30 || res.Stats.TruePositives != 4 {
		t.Fatalf("stats=%+v", res.Stats)
	}
	if res.Monitor.Violations != 0 {
		t.Fatalf("monitor=%+v", res.Monitor)
	}
}

// TestRunWithMoreItemsThanQuota Generator 阻塞在满队列上时由 Manager 释放
func TestRunWithMoreItemsThanQuota(t *testing.T) {
	cfg := referenceConfig()
	cfg.Source.Total = 50

	res := runManager(t, cfg)
	if res.Processed != 30 {
		t.Fatalf("processed=%d want=30", res.Processed)
	}
	if res.Emitted < 30 || res.Emitted > 40 {
		t.Fatalf("emitted=%d not in [30,40]", res.Emitted)
	}
	if res.Undelivered != res.Emitted-30 {
		t.Fatalf("undelivered=%d emitted=%d", res.Undelivered, res.Emitted)
	}
}

func TestRunSoftQuota(t *testing.T) {
	cfg := referenceConfig()
	cfg.Pipeline.Quota = 0
	cfg.Source.Total = 100
	cfg.Pipeline.HistoryShards = 5

	res := runManager(t, cfg)
	if res.Processed != 100 || res.Undelivered != 0 {
		t.Fatalf("processed=%d undelivered=%d", res.Processed, res.Undelivered)
	}
}

func TestRunIsSingleShot(t *testing.T) {
	m, err := NewManager(referenceConfig(), logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("want ErrAlreadyRunning, got %v", err)
	}
}

func TestNewManagerRejectsInvalidConfig(t *testing.T) {
	cfg := referenceConfig()
	cfg.Pipeline.QueueCapacity = 0
	if _, err := NewManager(cfg, logger.NewNop()); err == nil {
		t.Fatal("want config error")
	}
}

func TestSubmitRequiresFeed(t *testing.T) {
	m, err := NewManager(referenceConfig(), logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Submit(context.Background(), model.Transaction{ID: "x"}); !errors.Is(err, ErrIngestDisabled) {
		t.Fatalf("want ErrIngestDisabled, got %v", err)
	}
}

// TestFeedRunShutdown 显式 Shutdown：已接收的交易全部处理后退出
func TestFeedRunShutdown(t *testing.T) {
	cfg := referenceConfig()
	cfg.Source.Kind = config.SourceFeed
	cfg.Pipeline.Quota = 0

	m, err := NewManager(cfg, logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := m.Run(context.Background())
		done <- outcome{res, err}
	}()

	ctx := context.Background()
	for i := 0; i < 8; i++ {
		tx := model.Transaction{ID: string(rune('a' + i)), AccountID: 1, Amount: 100}
		if err := m.Submit(ctx, tx); err != nil {
			t.Fatalf("submit %d err=%v", i, err)
		}
	}
	if err := m.Submit(ctx, model.Transaction{ID: "bad", AccountID: 99}); !errors.Is(err, model.ErrAccountOutOfRange) {
		t.Fatalf("want ErrAccountOutOfRange, got %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for m.Status().Stats.Processed < 8 {
		if time.Now().After(deadline) {
			t.Fatalf("status=%+v", m.Status())
		}
		time.Sleep(time.Millisecond)
	}
	if c, err := m.AccountCount(1); err != nil || c != 8 {
		t.Fatalf("account count=%d err=%v", c, err)
	}

	m.Shutdown()
	m.Shutdown()

	out := <-done
	if out.err != nil {
		t.Fatal(out.err)
	}
	// 账户 1 的第 4-8 笔命中高频规则
	if out.res.Processed != 8 || out.res.Anomalies != 5 {
		t.Fatalf("processed=%d anomalies=%d", out.res.Processed, out.res.Anomalies)
	}
	if m.Status().Running {
		t.Fatal("manager should not be running")
	}
}

// slowSink 每条事件固定耗时，让处理速度落后于接入速度
type slowSink struct {
	delay time.Duration
}

func (s slowSink) Name() string { return "slow" }

func (s slowSink) Publish(ctx context.Context, _ model.AnomalyEvent) error {
	time.Sleep(s.delay)
	return nil
}

func feedConfig(workers, quota int) *config.Config {
	cfg := referenceConfig()
	cfg.Source.Kind = config.SourceFeed
	cfg.Sinks.Log = false
	cfg.Pipeline.Workers = workers
	cfg.Pipeline.Quota = quota
	cfg.Pipeline.QueueCapacity = 1
	return cfg
}

// TestFeedShutdownDrainsAcceptedTransactions 接入快于处理时 Shutdown，已接收的交易仍全部处理
func TestFeedShutdownDrainsAcceptedTransactions(t *testing.T) {
	m, err := NewManager(feedConfig(1, 0), logger.NewNop(), WithSink(slowSink{delay: 2 * time.Millisecond}))
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan *Result, 1)
	go func() {
		res, err := m.Run(context.Background())
		if err != nil {
			t.Errorf("Run err=%v", err)
		}
		done <- res
	}()

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		tx := model.Transaction{ID: fmt.Sprintf("tx-%02d", i), AccountID: i % 5, Amount: 6000}
		if err := m.Submit(ctx, tx); err != nil {
			t.Fatalf("submit %d err=%v", i, err)
		}
	}
	m.Shutdown()

	var res *Result
	select {
	case res = <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return")
	}
	if res == nil {
		t.Fatal("nil result")
	}
	if res.Accepted != 20 || res.Emitted != 20 || res.Processed != 20 || res.Undelivered != 0 {
		t.Fatalf("accepted=%d emitted=%d processed=%d undelivered=%d",
			res.Accepted, res.Emitted, res.Processed, res.Undelivered)
	}
	if got := res.ByRule[model.RuleLargeAmount]; got != 20 {
		t.Fatalf("large_amount=%d", got)
	}
	if err := m.Submit(ctx, model.Transaction{ID: "late", AccountID: 1}); !errors.Is(err, source.ErrFeedClosed) {
		t.Fatalf("want ErrFeedClosed after shutdown, got %v", err)
	}
}

// TestFeedQuotaReachedCountsUndelivered Processor 配额用尽时，缓冲中的交易计入 Undelivered
func TestFeedQuotaReachedCountsUndelivered(t *testing.T) {
	m, err := NewManager(feedConfig(1, 3), logger.NewNop(), WithSink(slowSink{delay: 5 * time.Millisecond}))
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		tx := model.Transaction{ID: fmt.Sprintf("tx-%02d", i), AccountID: 2, Amount: 6000}
		if err := m.Submit(ctx, tx); err != nil {
			t.Fatalf("submit %d err=%v", i, err)
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	res, err := m.Run(runCtx)
	if err != nil {
		t.Fatalf("Run err=%v", err)
	}
	if res.Accepted != 10 || res.Processed != 3 || res.Undelivered != 7 {
		t.Fatalf("accepted=%d processed=%d undelivered=%d", res.Accepted, res.Processed, res.Undelivered)
	}
	if res.Accepted != res.Processed+res.Undelivered+res.Rejected {
		t.Fatalf("accounting mismatch: %+v", res)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	cfg := referenceConfig()
	cfg.Source.Kind = config.SourceFeed

	m, err := NewManager(cfg, logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	res, err := m.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Processed != 0 {
		t.Fatalf("processed=%d", res.Processed)
	}
}
