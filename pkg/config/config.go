package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"oip/txguard/pkg/errorutil"
)

// 数据源类型
const (
	SourceSequence  = "sequence"
	SourceSimulator = "simulator"
	SourceLmstfy    = "lmstfy"
	SourceFeed      = "feed"
)

// Config 全局配置
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Rules    RulesConfig    `mapstructure:"rules"`
	Source   SourceConfig   `mapstructure:"source"`
	Sinks    SinksConfig    `mapstructure:"sinks"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Lmstfy   LmstfyConfig   `mapstructure:"lmstfy"`
	Server   ServerConfig   `mapstructure:"server"`
}

// AppConfig 应用配置
type AppConfig struct {
	Name     string `mapstructure:"name"`
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
}

// PipelineConfig 流水线配置
type PipelineConfig struct {
	Accounts        int           `mapstructure:"accounts"`         // 账户空间大小 A
	Workers         int           `mapstructure:"workers"`          // Processor 数 N
	Quota           int           `mapstructure:"quota"`            // 每个 Processor 的配额 Q（0 表示不限）
	QueueCapacity   int           `mapstructure:"queue_capacity"`   // 队列容量 C
	HistoryShards   int           `mapstructure:"history_shards"`   // 账户历史分片数（1 = 单把全局锁）
	RapidWindow     time.Duration `mapstructure:"rapid_window"`     // 近期交易窗口（0 = 累计计数）
	MonitorInterval time.Duration `mapstructure:"monitor_interval"` // 不变量巡检间隔
}

// RuleConfig 单条规则配置
type RuleConfig struct {
	Enabled   bool  `mapstructure:"enabled"`
	Threshold int64 `mapstructure:"threshold"`
}

// RulesConfig 规则集配置
type RulesConfig struct {
	LargeAmount       RuleConfig `mapstructure:"large_amount"`
	RapidTransactions RuleConfig `mapstructure:"rapid_transactions"`
}

// SourceConfig 交易来源配置
type SourceConfig struct {
	Kind         string        `mapstructure:"kind"`
	Total        int           `mapstructure:"total"`        // 生成总量（0 表示 workers*quota）
	Seed         int64         `mapstructure:"seed"`         // simulator 随机种子
	AnomalyRate  float64       `mapstructure:"anomaly_rate"` // simulator 异常比例
	QueueName    string        `mapstructure:"queue_name"`   // lmstfy 队列
	Timeout      time.Duration `mapstructure:"timeout"`      // lmstfy 拉取超时
	TTR          time.Duration `mapstructure:"ttr"`          // lmstfy Time-To-Run
	ErrorBackoff time.Duration `mapstructure:"error_backoff"`
	FeedBuffer   int           `mapstructure:"feed_buffer"`
}

// SinksConfig 检测事件下游
type SinksConfig struct {
	Log          bool   `mapstructure:"log"`
	Redis        bool   `mapstructure:"redis"`
	RedisChannel string `mapstructure:"redis_channel"`
	MySQL        bool   `mapstructure:"mysql"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
	Lmstfy       bool   `mapstructure:"lmstfy"`
	LmstfyQueue  string `mapstructure:"lmstfy_queue"`
}

// MySQLConfig MySQL 配置
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LmstfyConfig Lmstfy 配置
type LmstfyConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Namespace string `mapstructure:"namespace"`
	Token     string `mapstructure:"token"`
}

// ServerConfig 诊断 HTTP 服务
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    string `mapstructure:"port"`
}

// setDefaults 参考模型的默认参数：A=5, N=3, Q=10, C=10, 阈值 5000 / 2
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "txguard")
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("pipeline.accounts", 5)
	v.SetDefault("pipeline.workers", 3)
	v.SetDefault("pipeline.quota", 10)
	v.SetDefault("pipeline.queue_capacity", 10)
	v.SetDefault("pipeline.history_shards", 1)
	v.SetDefault("pipeline.rapid_window", "0s")
	v.SetDefault("pipeline.monitor_interval", "50ms")

	v.SetDefault("rules.large_amount.enabled", true)
	v.SetDefault("rules.large_amount.threshold", 5000)
	v.SetDefault("rules.rapid_transactions.enabled", true)
	v.SetDefault("rules.rapid_transactions.threshold", 2)

	v.SetDefault("source.kind", SourceSequence)
	v.SetDefault("source.total", 0)
	v.SetDefault("source.seed", 42)
	v.SetDefault("source.anomaly_rate", 0.05)
	v.SetDefault("source.timeout", "3s")
	v.SetDefault("source.ttr", "30s")
	v.SetDefault("source.error_backoff", "1s")
	v.SetDefault("source.feed_buffer", 64)

	v.SetDefault("sinks.log", true)
	v.SetDefault("sinks.redis_channel", "txguard_anomaly")
	v.SetDefault("sinks.lmstfy_queue", "txguard_anomaly_events")

	v.SetDefault("server.port", "8080")
}

// Load 加载配置文件
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config failed: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config failed: %w", err)
	}

	return &cfg, nil
}

// Default 不读文件，仅使用默认值
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	// 默认值均为合法类型，Unmarshal 不会失败
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// EffectiveTotal 实际生成的交易总量
func (c *Config) EffectiveTotal() int {
	if c.Source.Total > 0 {
		return c.Source.Total
	}
	return c.Pipeline.Workers * c.Pipeline.Quota
}

// Validate 验证配置（在启动任何 goroutine 之前调用）
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return errorutil.Config("app.name is required")
	}

	p := c.Pipeline
	if p.Accounts <= 0 {
		return errorutil.Config("pipeline.accounts must be > 0, got %d", p.Accounts)
	}
	if p.Workers <= 0 {
		return errorutil.Config("pipeline.workers must be > 0, got %d", p.Workers)
	}
	if p.Quota < 0 {
		return errorutil.Config("pipeline.quota must be >= 0, got %d", p.Quota)
	}
	if p.QueueCapacity <= 0 {
		return errorutil.Config("pipeline.queue_capacity must be > 0, got %d", p.QueueCapacity)
	}
	if p.HistoryShards <= 0 {
		return errorutil.Config("pipeline.history_shards must be > 0, got %d", p.HistoryShards)
	}
	if p.RapidWindow < 0 {
		return errorutil.Config("pipeline.rapid_window must be >= 0")
	}
	if p.MonitorInterval <= 0 {
		return errorutil.Config("pipeline.monitor_interval must be > 0")
	}

	if c.Rules.LargeAmount.Threshold < 0 {
		return errorutil.Config("rules.large_amount.threshold must be >= 0")
	}
	if c.Rules.RapidTransactions.Threshold < 0 {
		return errorutil.Config("rules.rapid_transactions.threshold must be >= 0")
	}

	switch c.Source.Kind {
	case SourceSequence, SourceSimulator:
		if c.EffectiveTotal() <= 0 {
			return errorutil.Config("source.total must be > 0 when pipeline.quota is 0")
		}
		if c.Source.AnomalyRate < 0 || c.Source.AnomalyRate > 1 {
			return errorutil.Config("source.anomaly_rate must be within [0,1]")
		}
	case SourceLmstfy:
		if c.Lmstfy.Host == "" {
			return errorutil.Config("lmstfy.host is required for lmstfy source")
		}
		if c.Source.QueueName == "" {
			return errorutil.Config("source.queue_name is required for lmstfy source")
		}
	case SourceFeed:
		if c.Source.FeedBuffer <= 0 {
			return errorutil.Config("source.feed_buffer must be > 0")
		}
	default:
		return errorutil.Config("unknown source.kind %q", c.Source.Kind)
	}

	if c.Sinks.Redis && c.Redis.Addr == "" {
		return errorutil.Config("redis.addr is required when sinks.redis is enabled")
	}
	if c.Sinks.MySQL && c.MySQL.DSN == "" {
		return errorutil.Config("mysql.dsn is required when sinks.mysql is enabled")
	}
	if c.Sinks.Lmstfy && c.Lmstfy.Host == "" {
		return errorutil.Config("lmstfy.host is required when sinks.lmstfy is enabled")
	}
	if c.Server.Enabled && c.Server.Port == "" {
		return errorutil.Config("server.port is required when server is enabled")
	}

	return nil
}
