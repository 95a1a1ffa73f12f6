package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"oip/txguard/internal/worker"
	"oip/txguard/pkg/config"
	"oip/txguard/pkg/logger"
)

var (
	configPath   = flag.String("config", "", "基础配置文件路径（为空则使用默认值）")
	testcasePath = flag.String("testcase", "./tools/scenario/testcase/scenarios.json", "场景用例路径")
	skipSinks    = flag.Bool("skip-sinks", true, "关闭 Redis / MySQL / Lmstfy 下游（仅测试流水线）")
	timeout      = flag.Duration("timeout", 30*time.Second, "单个场景超时时间")
)

// Expect 场景期望值（为空的字段不校验）
type Expect struct {
	Processed   *int64 `json:"processed,omitempty"`
	Anomalies   *int64 `json:"anomalies,omitempty"`
	Undelivered *int64 `json:"undelivered,omitempty"`
}

// Scenario 场景用例
type Scenario struct {
	Name          string  `json:"name"`
	Source        string  `json:"source"`
	Accounts      int     `json:"accounts"`
	Workers       int     `json:"workers"`
	Quota         int     `json:"quota"`
	QueueCapacity int     `json:"queue_capacity"`
	Total         int     `json:"total"`
	Seed          int64   `json:"seed"`
	AnomalyRate   float64 `json:"anomaly_rate"`
	Expect        Expect  `json:"expect"`
}

func main() {
	flag.Parse()

	fmt.Println("========================================")
	fmt.Println("  Scenario - TXGUARD 流水线场景测试工具")
	fmt.Println("========================================")

	// 1. 加载场景
	scenarios, err := loadScenarios(*testcasePath)
	if err != nil {
		fmt.Printf("❌ Failed to load scenarios: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✅ Loaded %d scenarios from %s\n", len(scenarios), *testcasePath)

	// 2. 执行场景
	passed, failed := 0, 0
	for i, sc := range scenarios {
		fmt.Printf("\n[Scenario %d/%d] %s (A=%d N=%d Q=%d C=%d total=%d)\n",
			i+1, len(scenarios), sc.Name, sc.Accounts, sc.Workers, sc.Quota, sc.QueueCapacity, sc.Total)
		fmt.Println("----------------------------------------")

		start := time.Now()
		err := runScenario(sc)
		if err != nil {
			fmt.Printf("❌ FAILED: %v\n", err)
			failed++
		} else {
			fmt.Printf("✅ PASSED\n")
			passed++
		}
		fmt.Printf("⏱️  Duration: %v\n", time.Since(start))
	}

	// 3. 输出汇总
	fmt.Println("\n========================================")
	fmt.Println("  Scenario Summary")
	fmt.Println("========================================")
	fmt.Printf("Total: %d\n", len(scenarios))
	fmt.Printf("Passed: %d ✅\n", passed)
	fmt.Printf("Failed: %d ❌\n", failed)

	if failed > 0 {
		os.Exit(1)
	}
}

// loadScenarios 从 JSON 文件加载场景
func loadScenarios(path string) ([]Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read testcase file: %w", err)
	}

	var scenarios []Scenario
	if err := json.Unmarshal(data, &scenarios); err != nil {
		return nil, fmt.Errorf("failed to unmarshal testcase: %w", err)
	}

	return scenarios, nil
}

// baseConfig 基础配置
func baseConfig() (*config.Config, error) {
	if *configPath == "" {
		return config.Default(), nil
	}
	return config.Load(*configPath)
}

// runScenario 运行单个场景并校验期望值
func runScenario(sc Scenario) error {
	cfg, err := baseConfig()
	if err != nil {
		return err
	}

	if sc.Source != "" {
		cfg.Source.Kind = sc.Source
	}
	if sc.Accounts > 0 {
		cfg.Pipeline.Accounts = sc.Accounts
	}
	if sc.Workers > 0 {
		cfg.Pipeline.Workers = sc.Workers
	}
	cfg.Pipeline.Quota = sc.Quota
	if sc.QueueCapacity > 0 {
		cfg.Pipeline.QueueCapacity = sc.QueueCapacity
	}
	cfg.Source.Total = sc.Total
	if sc.Seed != 0 {
		cfg.Source.Seed = sc.Seed
	}
	if sc.AnomalyRate > 0 {
		cfg.Source.AnomalyRate = sc.AnomalyRate
	}
	cfg.Sinks.Log = false
	if *skipSinks {
		cfg.Sinks.Redis = false
		cfg.Sinks.MySQL = false
		cfg.Sinks.Lmstfy = false
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	mgr, err := worker.NewManager(cfg, logger.NewNop())
	if err != nil {
		return fmt.Errorf("create manager failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	result, err := mgr.Run(ctx)
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	fmt.Printf("  Emitted=%d Processed=%d Undelivered=%d Anomalies=%d\n",
		result.Emitted, result.Processed, result.Undelivered, result.Anomalies)
	for rule, n := range result.ByRule {
		fmt.Printf("    - %s: %d\n", rule, n)
	}
	fmt.Printf("  Precision=%.2f Recall=%.2f F1=%.2f\n",
		result.Stats.Precision, result.Stats.Recall, result.Stats.F1)

	return check(sc.Expect, result)
}

// check 校验期望值
func check(want Expect, got *worker.Result) error {
	if want.Processed != nil && *want.Processed != got.Processed {
		return fmt.Errorf("processed: want %d, got %d", *want.Processed, got.Processed)
	}
	if want.Anomalies != nil && *want.Anomalies != got.Anomalies {
		return fmt.Errorf("anomalies: want %d, got %d", *want.Anomalies, got.Anomalies)
	}
	if want.Undelivered != nil && *want.Undelivered != got.Undelivered {
		return fmt.Errorf("undelivered: want %d, got %d", *want.Undelivered, got.Undelivered)
	}
	if got.Monitor.Violations != 0 {
		return fmt.Errorf("monitor recorded %d mutual exclusion violations", got.Monitor.Violations)
	}
	return nil
}
