package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"oip/txguard/internal/app/server"
	"oip/txguard/internal/worker"
	"oip/txguard/pkg/config"
	"oip/txguard/pkg/logger"
)

var (
	configPath = flag.String("config", "./config/worker.yaml", "配置文件路径")
	sourceKind = flag.String("source", "", "覆盖 source.kind（sequence / simulator / lmstfy / feed）")
	total      = flag.Int("total", -1, "覆盖 source.total（-1 表示使用配置）")
	resultPath = flag.String("result", "", "运行结果 JSON 输出路径（为空则输出到 stdout）")
)

type runOutcome struct {
	result *worker.Result
	err    error
}

func main() {
	flag.Parse()

	log.Println("========================================")
	log.Println("  TXGUARD Worker Starting...")
	log.Println("========================================")

	// 1. 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *sourceKind != "" {
		cfg.Source.Kind = *sourceKind
	}
	if *total >= 0 {
		cfg.Source.Total = *total
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Config validation failed: %v", err)
	}

	log.Printf("Config loaded: %s, env: %s, source: %s, A=%d N=%d Q=%d C=%d\n",
		cfg.App.Name, cfg.App.Env, cfg.Source.Kind,
		cfg.Pipeline.Accounts, cfg.Pipeline.Workers, cfg.Pipeline.Quota, cfg.Pipeline.QueueCapacity)

	// 2. 初始化 Logger
	zapLogger, err := logger.NewZapLogger(cfg.App.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	// 3. 创建 Manager
	mgr, err := worker.NewManager(cfg, zapLogger)
	if err != nil {
		log.Fatalf("Failed to create manager: %v", err)
	}

	// 4. 诊断 HTTP 服务（可选）
	var srv *http.Server
	if cfg.Server.Enabled {
		if cfg.App.Env != "dev" {
			gin.SetMode(gin.ReleaseMode)
		}
		handler := server.NewPipelineHandler(mgr, cfg.App.Name, zapLogger)
		srv = &http.Server{
			Addr:    ":" + cfg.Server.Port,
			Handler: server.SetupRoutes(handler, zapLogger),
		}
		go func() {
			log.Printf("Diagnostic server listening on :%s\n", cfg.Server.Port)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("Diagnostic server failed: %v", err)
			}
		}()
	}

	// 5. 启动 Manager（goroutine）
	doneCh := make(chan runOutcome, 1)
	go func() {
		result, err := mgr.Run(context.Background())
		doneCh <- runOutcome{result: result, err: err}
	}()

	log.Println("Worker started. Press Ctrl+C to shutdown.")

	// 6. 等待运行结束或退出信号
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var outcome runOutcome
	select {
	case outcome = <-doneCh:
	case sig := <-sigCh:
		log.Println("========================================")
		log.Printf("  Received signal: %v\n", sig)
		log.Println("  Shutting down Worker...")
		log.Println("========================================")
		mgr.Shutdown()
		outcome = <-doneCh
	}

	// 7. 关闭 HTTP 服务
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Diagnostic server shutdown failed: %v", err)
		}
		cancel()
	}

	if outcome.err != nil {
		log.Printf("Run finished with error: %v", outcome.err)
	}
	if outcome.result != nil {
		if err := writeResult(outcome.result, *resultPath); err != nil {
			log.Printf("Failed to write result: %v", err)
		}
	}

	fmt.Println("========================================")
	fmt.Println("  Worker exited")
	fmt.Println("========================================")

	if outcome.err != nil {
		os.Exit(1)
	}
}

// writeResult 输出运行结果
func writeResult(result *worker.Result, path string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result failed: %w", err)
	}
	if path == "" {
		fmt.Println(string(data))
		return nil
	}
	return os.WriteFile(path, data, 0o644)
}
