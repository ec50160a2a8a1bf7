// =============================================================================
// Concierge 主入口
// =============================================================================
// 子命令分发、配置加载、日志与遥测初始化都在这个文件完成
//
// 使用方法:
//
//	concierge serve                       # 启动服务
//	concierge serve --config config.yaml  # 指定配置文件
//	concierge migrate                     # 建表（知识语料 + 晋升记录）
//	concierge seed --file entries.json    # 导入知识条目
//	concierge version                     # 显示版本信息
//	concierge health                      # 健康检查
// =============================================================================

// @title Concierge API
// @version 1.0.0
// @description Concierge is a query-understanding and knowledge-retrieval service for a coworking facility assistant.
// @description
// @description ## Features
// @description - Language detection (ja/en) and rule-based query classification with clarification short-circuit
// @description - Vector retrieval with two implementations (store-backed v1, HNSW-accelerated v2) behind an A/B router
// @description - Session-scoped conversation memory (Redis TTL) with durable promotions (GORM)
// @description - Implementation comparison metrics and async audit records

// @contact.name Concierge Team
// @contact.url https://github.com/kitadake/concierge

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT Bearer token, e.g. "Bearer {token}"

package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kitadake/concierge/config"
	"github.com/kitadake/concierge/internal/telemetry"
)

// =============================================================================
// 📦 版本信息
// =============================================================================

// 发布构建通过 -ldflags "-X main.version=... -X main.buildTime=... -X main.gitCommit=..." 注入
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

// commands 把子命令映射到入口函数. version/help 不在表里,
// 它们不解析参数, 直接在 main 里处理.
var commands = map[string]func(args []string){
	"serve":   runServe,
	"migrate": runMigrate,
	"seed":    runSeed,
	"health":  runHealthCheck,
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	name := os.Args[1]
	switch name {
	case "version":
		printVersion()
		return
	case "help", "-h", "--help":
		printUsage()
		return
	}

	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", name)
		printUsage()
		os.Exit(1)
	}
	cmd(os.Args[2:])
}

// fatalf 在 logger 尚未就绪的阶段打印错误并退出进程.
func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	cfg := mustLoadConfig(*configPath)

	// 只有 serve 做全量校验; 路由/检索参数配错不应挡住 migrate/seed 这类离线命令
	if err := cfg.Validate(); err != nil {
		fatalf("Invalid config: %v", err)
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("Starting Concierge",
		zap.String("version", version),
		zap.String("build_time", buildTime),
		zap.String("git_commit", gitCommit),
	)

	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("telemetry init failed, continuing without tracing", zap.Error(err))
	}

	server := NewServer(cfg, logger, providers)
	if err := server.Start(); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}

	server.WaitForShutdown()
	logger.Info("Concierge stopped")
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	ready := fs.Bool("ready", false, "Probe readiness (/readyz) instead of liveness")
	fs.Parse(args)

	// 存活探针只看进程, 就绪探针会打到 DB/Redis; 部署脚本一般等后者
	path := "/healthz"
	if *ready {
		path = "/readyz"
	}

	client := http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*addr + path)
	if err != nil {
		fatalf("Health check failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fatalf("Health check failed: %s returned status %d", path, resp.StatusCode)
	}

	fmt.Println("OK")
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("Concierge %s\n", version)
	fmt.Printf("  Build Time: %s\n", buildTime)
	fmt.Printf("  Git Commit: %s\n", gitCommit)
	fmt.Printf("  Go Version: %s\n", runtime.Version())
}

func printUsage() {
	fmt.Println(`Concierge - Knowledge Retrieval Service

Usage:
  concierge <command> [options]

Commands:
  serve     Start the Concierge server
  migrate   Create or update database tables
  seed      Load knowledge entries from a JSON file
  version   Show version information
  health    Check server health
  help      Show this help message

Options for 'serve':
  --config <path>   Path to configuration file (YAML)

Options for 'migrate':
  --config <path>   Path to configuration file (YAML)
  --driver <name>   Override database driver (postgres, mysql, sqlite)
  --dsn <dsn>       Override database connection string

Options for 'seed':
  --config <path>   Path to configuration file (YAML)
  --file <path>     JSON file with knowledge entries (required)
  --embed           Embed entries that carry no vector (needs API key)

Options for 'health':
  --addr <url>      Server address (default http://localhost:8080)
  --ready           Probe readiness (/readyz) instead of liveness

Examples:
  concierge serve
  concierge serve --config /etc/concierge/config.yaml
  concierge migrate
  concierge seed --file knowledge/entries.json --embed
  concierge health --addr http://localhost:8080 --ready
  concierge version`)
}

// =============================================================================
// 🔧 配置与日志初始化
// =============================================================================

// mustLoadConfig 加载配置, 失败时直接退出进程. serve/migrate/seed 共用.
func mustLoadConfig(path string) *config.Config {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}

	cfg, err := loader.Load()
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	return cfg
}

// encoderFor 选择日志编码: console 给本地开发, 其余一律 JSON.
func encoderFor(format string) (zapcore.EncoderConfig, string) {
	if format == "console" {
		ec := zap.NewDevelopmentEncoderConfig()
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return ec, "console"
	}
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "timestamp"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	return ec, "json"
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoderConfig, encoding := encoderFor(cfg.Format)

	outputPaths := cfg.OutputPaths
	if len(outputPaths) == 0 {
		outputPaths = []string{"stdout"}
	}

	zcfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      encoding == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}

	var opts []zap.Option
	if cfg.EnableCaller {
		opts = append(opts, zap.AddCaller())
	}
	if cfg.EnableStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	logger, err := zcfg.Build(opts...)
	if err != nil {
		logger, _ = zap.NewProduction() // 编码器配置损坏时也要有日志可用
	}
	return logger
}
