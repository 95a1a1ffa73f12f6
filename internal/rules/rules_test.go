package rules

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"oip/txguard/internal/history"
	"oip/txguard/internal/model"
	"oip/txguard/pkg/config"
	"oip/txguard/pkg/logger"
)

func newHistory(t *testing.T, accounts int) *history.Store {
	t.Helper()
	s, err := history.New(accounts, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestLargeAmountRule(t *testing.T) {
	r := NewLargeAmountRule(DefaultLargeAmountThreshold)
	cases := []struct {
		amount   int64
		fire     bool
		severity model.Severity
	}{
		{0, false, ""},
		{5000, false, ""}, // 严格大于
		{5001, true, model.SeverityMedium},
		{15000, true, model.SeverityHigh},
		{25000, true, model.SeverityCritical},
	}
	for _, c := range cases {
		ev, err := r.Evaluate(context.Background(), model.Transaction{AccountID: 1, Amount: c.amount})
		if err != nil {
			t.Fatal(err)
		}
		if (ev != nil) != c.fire {
			t.Fatalf("amount=%d fired=%v want=%v", c.amount, ev != nil, c.fire)
		}
		if ev != nil && ev.Severity != c.severity {
			t.Fatalf("amount=%d severity=%s want=%s", c.amount, ev.Severity, c.severity)
		}
	}
}

func TestRapidRuleFiresAbovePriorCount(t *testing.T) {
	store := newHistory(t, 2)
	r := NewRapidTransactionRule(DefaultRapidThreshold, store)

	// 前值 0,1,2 不命中，3 起命中
	want := []bool{false, false, false, true, true}
	for i, fire := range want {
		ev, err := r.Evaluate(context.Background(), model.Transaction{AccountID: 1, Amount: 10})
		if err != nil {
			t.Fatal(err)
		}
		if (ev != nil) != fire {
			t.Fatalf("bump %d fired=%v want=%v", i, ev != nil, fire)
		}
		if ev != nil && ev.Count != int64(i) {
			t.Fatalf("count=%d want=%d", ev.Count, i)
		}
	}
	if c, _ := store.Count(1); c != 5 {
		t.Fatalf("history count=%d want=5", c)
	}
}

func TestRapidRuleUnknownAccount(t *testing.T) {
	r := NewRapidTransactionRule(DefaultRapidThreshold, newHistory(t, 2))
	if _, err := r.Evaluate(context.Background(), model.Transaction{AccountID: 7}); err == nil {
		t.Fatal("want error for unknown account")
	}
}

// TestRuleOrderIndependence 前值为 3、金额 6000 的交易无论评估顺序都命中两条规则
func TestRuleOrderIndependence(t *testing.T) {
	orders := [][]string{
		{model.RuleLargeAmount, model.RuleRapidTransactions},
		{model.RuleRapidTransactions, model.RuleLargeAmount},
	}
	for _, order := range orders {
		store := newHistory(t, 5)
		now := time.Now()
		for i := 0; i < 3; i++ {
			_, _ = store.Bump(2, now)
		}

		byName := map[string]Rule{
			model.RuleLargeAmount:       NewLargeAmountRule(5000),
			model.RuleRapidTransactions: NewRapidTransactionRule(2, store),
		}
		counter := NewCounter()
		set := NewRuleSet(counter, byName[order[0]], byName[order[1]])

		v, err := set.Apply(context.Background(), model.Transaction{ID: "x", AccountID: 2, Amount: 6000})
		if err != nil {
			t.Fatal(err)
		}
		if len(v.Events) != 2 || counter.Value() != 2 {
			t.Fatalf("order=%v events=%d counter=%d want 2/2", order, len(v.Events), counter.Value())
		}
		if c, _ := store.Count(2); c != 4 {
			t.Fatalf("order=%v history=%d want=4", order, c)
		}
	}
}

func TestApplyStampsEvents(t *testing.T) {
	set := NewRuleSet(NewCounter(), NewLargeAmountRule(5000))
	ctx := logger.WithWorkerID(context.Background(), 2)

	v, err := set.Apply(ctx, model.Transaction{ID: "tx-1", AccountID: 0, Amount: 30000})
	if err != nil {
		t.Fatal(err)
	}
	if !v.IsAnomalous() {
		t.Fatal("verdict should be anomalous")
	}
	ev := v.Events[0]
	if ev.ID == "" || ev.TransactionID != "tx-1" || ev.WorkerID != 2 || ev.DetectedAt.IsZero() {
		t.Fatalf("event not stamped: %+v", ev)
	}
	if v.RiskScore != 25 {
		t.Fatalf("risk=%v want=25", v.RiskScore)
	}

	clean, err := set.Apply(ctx, model.Transaction{ID: "tx-2", Amount: 1})
	if err != nil {
		t.Fatal(err)
	}
	if clean.IsAnomalous() || clean.RiskScore != 0 {
		t.Fatalf("clean verdict=%+v", clean)
	}
}

func TestApplyFailureLeavesCounterUntouched(t *testing.T) {
	counter := NewCounter()
	set := NewRuleSet(counter,
		NewLargeAmountRule(5000),
		NewRapidTransactionRule(2, newHistory(t, 2)),
	)

	v, err := set.Apply(context.Background(), model.Transaction{ID: "tx-9", AccountID: 9, Amount: 30000})
	if !errors.Is(err, history.ErrUnknownAccount) {
		t.Fatalf("want ErrUnknownAccount, got %v", err)
	}
	if v != nil {
		t.Fatalf("verdict=%+v want nil", v)
	}
	if counter.Value() != 0 || len(counter.ByRule()) != 0 {
		t.Fatalf("counter=%d by rule=%v after failed apply", counter.Value(), counter.ByRule())
	}
}

func TestCounterConcurrentIncrements(t *testing.T) {
	c := NewCounter()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			rule := model.RuleLargeAmount
			if g%2 == 1 {
				rule = model.RuleRapidTransactions
			}
			for i := 0; i < 1000; i++ {
				c.Inc(rule)
			}
		}(g)
	}
	wg.Wait()

	if c.Value() != 8000 {
		t.Fatalf("value=%d want=8000", c.Value())
	}
	by := c.ByRule()
	if by[model.RuleLargeAmount] != 4000 || by[model.RuleRapidTransactions] != 4000 {
		t.Fatalf("by rule=%v", by)
	}
	if names := c.Rules(); len(names) != 2 || names[0] != model.RuleLargeAmount {
		t.Fatalf("rules=%v", names)
	}
}

func TestBuildHonoursEnabledFlags(t *testing.T) {
	cfg := config.RulesConfig{
		LargeAmount:       config.RuleConfig{Enabled: true, Threshold: 100},
		RapidTransactions: config.RuleConfig{Enabled: false, Threshold: 2},
	}
	set, err := Build(cfg, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if names := set.Names(); len(names) != 1 || names[0] != model.RuleLargeAmount {
		t.Fatalf("names=%v", names)
	}
	if set.Counter() == nil {
		t.Fatal("counter should be created")
	}

	cfg.RapidTransactions.Enabled = true
	if _, err := Build(cfg, nil, nil); err == nil {
		t.Fatal("rapid rule without store should fail")
	}

	set, err = Build(config.Default().Rules, newHistory(t, 5), NewCounter())
	if err != nil {
		t.Fatal(err)
	}
	if len(set.Names()) != 2 {
		t.Fatalf("default names=%v", set.Names())
	}
}
