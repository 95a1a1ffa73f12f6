package framework

import "time"

// GeneratorConfig Generator 配置
type GeneratorConfig struct {
	Quota        int           // 生成上限（0 表示直到数据源耗尽）
	Accounts     int           // 账户空间大小，用于入队前校验
	ErrorBackoff time.Duration // 可重试错误的退避时间
}

// ProcessorConfig Processor 配置
type ProcessorConfig struct {
	Concurrency int // 并发处理数 N
	Quota       int // 每个 Processor 的处理上限（0 表示不限）
}
