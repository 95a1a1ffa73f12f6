package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"oip/txguard/internal/monitor"
)

var (
	workers  = flag.Int("workers", 2, "Processor 数 N（1-4）")
	quota    = flag.Int("quota", 2, "每个 Processor 的配额 Q（0 表示不限）")
	capacity = flag.Int("capacity", 2, "队列容量 C")
	items    = flag.Int("items", 4, "Generator 生成的交易数")
	release  = flag.Bool("release-producer", false, "所有 Processor 结束后释放阻塞的 Generator")
	maxState = flag.Int("max-states", monitor.DefaultMaxStates, "状态数上限")
)

func main() {
	flag.Parse()

	report, err := monitor.Explore(monitor.ModelConfig{
		Workers:         *workers,
		Quota:           *quota,
		Capacity:        *capacity,
		Items:           *items,
		ReleaseProducer: *release,
		MaxStates:       *maxState,
	})
	if err != nil {
		log.Fatalf("Model check failed: %v", err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Fatalf("Marshal report failed: %v", err)
	}
	fmt.Println(string(data))

	if !report.OK() {
		os.Exit(1)
	}
}
