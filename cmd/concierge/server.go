package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kitadake/concierge/api/handlers"
	"github.com/kitadake/concierge/audit"
	"github.com/kitadake/concierge/config"
	"github.com/kitadake/concierge/embedding"
	"github.com/kitadake/concierge/internal/cache"
	"github.com/kitadake/concierge/internal/database"
	"github.com/kitadake/concierge/internal/server"
	"github.com/kitadake/concierge/internal/telemetry"
	"github.com/kitadake/concierge/knowledge"
	"github.com/kitadake/concierge/memory"
	"github.com/kitadake/concierge/metrics"
	"github.com/kitadake/concierge/pipeline"
	"github.com/kitadake/concierge/router"
	"github.com/kitadake/concierge/types"
)

// defaultAuditMemoryEvents memory 后端保留的最大事件数
const defaultAuditMemoryEvents = 10000

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 Concierge 的主服务器，组装检索管线的全部组件并管理
// HTTP / Metrics 双端口的生命周期。
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 基础设施
	cacheMgr      *cache.Manager
	pool          *database.PoolManager
	otelProviders *telemetry.Providers

	// 检索组件
	store        *knowledge.Store
	embedder     embedding.Provider
	rtr          *router.Router
	promExporter *metrics.PromExporter
	collector    *metrics.Collector
	sink         *audit.Sink
	mem          *memory.Memory
	pipe         *pipeline.Pipeline

	// Handlers
	queryHandler   *handlers.QueryHandler
	promoteHandler *handlers.PromoteHandler
	adminHandler   *handlers.AdminHandler
	healthHandler  *handlers.HealthHandler

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc

	wg sync.WaitGroup
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger, otelProviders *telemetry.Providers) *Server {
	return &Server{
		cfg:           cfg,
		logger:        logger,
		otelProviders: otelProviders,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	// 1. 组装检索组件
	if err := s.initComponents(); err != nil {
		return fmt.Errorf("failed to init components: %w", err)
	}

	// 2. 初始化 Handlers
	s.initHandlers()

	// 3. 启动 HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 4. 启动 Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.String("router_mode", s.cfg.Router.Mode),
		zap.Bool("audit_enabled", s.sink != nil),
	)

	return nil
}

// =============================================================================
// 🔧 组件组装
// =============================================================================

// initComponents 按依赖顺序组装检索管线：缓存与数据库在前，
// 检索器、路由器、记忆与管线在后。Redis 与数据库都是硬依赖，
// 连不上直接启动失败，运行期的抖动交给 readiness 探针暴露。
func (s *Server) initComponents() error {
	// Redis：会话记忆 + 可选的 feature flag 存储
	cacheMgr, err := cache.NewManager(cache.Config{
		Addr:                s.cfg.Redis.Addr,
		Password:            s.cfg.Redis.Password,
		DB:                  s.cfg.Redis.DB,
		DefaultTTL:          s.cfg.Memory.TTL,
		PoolSize:            s.cfg.Redis.PoolSize,
		MinIdleConns:        s.cfg.Redis.MinIdleConns,
		HealthCheckInterval: s.cfg.Redis.HealthCheckInterval,
	}, s.logger)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	s.cacheMgr = cacheMgr

	// 数据库：知识语料 + 持久化晋升
	pool, err := database.OpenPool(s.cfg.Database.Driver, s.cfg.Database.DSN(), database.PoolConfig{
		MaxIdleConns:    s.cfg.Database.MaxIdleConns,
		MaxOpenConns:    s.cfg.Database.MaxOpenConns,
		ConnMaxLifetime: s.cfg.Database.ConnMaxLifetime,
	}, s.logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	s.pool = pool

	store, err := knowledge.NewStore(pool, s.logger)
	if err != nil {
		return fmt.Errorf("init knowledge store: %w", err)
	}
	s.store = store

	durable, err := memory.NewDurableStore(pool, s.logger)
	if err != nil {
		return fmt.Errorf("init durable store: %w", err)
	}

	// AutoMigrate 确保表结构最新，幂等
	if err := store.AutoMigrate(); err != nil {
		return fmt.Errorf("migrate knowledge schema: %w", err)
	}
	if err := durable.AutoMigrate(); err != nil {
		return fmt.Errorf("migrate promotion schema: %w", err)
	}

	// 检索器：v1 基线 + v2 加速（HNSW 候选索引、跨语言补充）
	retrCfg := knowledge.RetrieverConfig{
		DefaultLimit:        s.cfg.Retrieval.DefaultLimit,
		DefaultThreshold:    s.cfg.Retrieval.DefaultThreshold,
		CandidateMultiplier: s.cfg.Retrieval.CandidateMultiplier,
		RetryThreshold:      s.cfg.Retrieval.RetryThreshold,
	}
	v1, err := knowledge.NewRetriever(store, retrCfg, s.logger)
	if err != nil {
		return fmt.Errorf("init v1 retriever: %w", err)
	}
	v2Cfg := retrCfg
	v2Cfg.CrossLanguage = true
	v2, err := knowledge.NewEnhancedRetriever(store, v2Cfg, s.logger)
	if err != nil {
		return fmt.Errorf("init v2 retriever: %w", err)
	}
	if s.cfg.Retrieval.WarmIndexOnStart {
		if err := v2.Warm(context.Background()); err != nil {
			// 预热失败不阻塞启动，首查会再次尝试加载索引
			s.logger.Warn("v2 index warm-up failed", zap.Error(err))
		}
	}

	// 向量化 Provider
	embedder, err := embedding.Build(embedding.Options{
		Provider:          s.cfg.Embedding.Provider,
		APIKey:            s.cfg.Embedding.APIKey,
		BaseURL:           s.cfg.Embedding.BaseURL,
		Model:             s.cfg.Embedding.Model,
		Timeout:           s.cfg.Embedding.Timeout,
		TargetDimensions:  s.cfg.Embedding.TargetDimensions,
		DimensionStrategy: s.cfg.Embedding.DimensionStrategy,
		RateLimitRPS:      s.cfg.Embedding.RateLimitRPS,
		RateLimitBurst:    s.cfg.Embedding.RateLimitBurst,
	}, s.logger)
	if err != nil {
		return fmt.Errorf("init embedding provider: %w", err)
	}
	s.embedder = embedder

	// 指标：Prometheus 导出器挂默认注册表，聚合器喂路由器
	s.promExporter = metrics.NewPromExporter(nil)
	s.collector = metrics.NewCollector(s.promExporter, s.logger)

	// Feature flags：redis 源支持运行时放量，static 源固定百分比
	flagDefaults := map[string]int{
		router.FlagV2Percentage: s.cfg.Router.V2Percentage,
	}
	var flags router.FlagSource
	switch s.cfg.Router.FlagSource {
	case "redis":
		flags = router.NewRedisFlags(cacheMgr, s.cfg.Router.FlagKey, flagDefaults, s.logger)
	default:
		flags = router.NewStaticFlags(flagDefaults)
	}

	rtr, err := router.New(v1, v2, flags, s.collector, router.Config{
		Mode: s.cfg.Router.Mode,
		Breaker: router.BreakerConfig{
			FailureThreshold: s.cfg.Router.Breaker.FailureThreshold,
			FailureWindow:    s.cfg.Router.Breaker.FailureWindow,
			CoolDown:         s.cfg.Router.Breaker.CoolDown,
		},
	}, s.logger)
	if err != nil {
		return fmt.Errorf("init router: %w", err)
	}
	s.rtr = rtr

	// 审计：异步 sink，memory 后端给开发环境，file 后端给线上
	if s.cfg.Audit.Enabled {
		sink, err := s.initAuditSink()
		if err != nil {
			return fmt.Errorf("init audit sink: %w", err)
		}
		s.sink = sink
	}

	// 会话记忆
	mem, err := memory.NewMemory(cacheMgr, durable, memory.Config{
		TTL:         s.cfg.Memory.TTL,
		MaxTurns:    s.cfg.Memory.MaxTurns,
		RecentLimit: s.cfg.Memory.RecentLimit,
		Namespace:   s.cfg.Memory.Namespace,
	}, s.logger)
	if err != nil {
		return fmt.Errorf("init conversation memory: %w", err)
	}
	s.mem = mem

	// 管线：检测器/分类器/评分器/计数器按配置自建
	pipe, err := pipeline.New(pipeline.Dependencies{
		Embedder: embedder,
		Router:   rtr,
		Memory:   mem,
		Audit:    s.sink,
	}, pipeline.Config{
		PrimaryLanguage:    types.Language(s.cfg.Pipeline.PrimaryLanguage),
		ContextTokenBudget: s.cfg.Pipeline.ContextTokenBudget,
		TokenEncoding:      s.cfg.Pipeline.TokenEncoding,
		ContextWindow:      s.cfg.Pipeline.ContextWindow,
	}, s.logger)
	if err != nil {
		return fmt.Errorf("init pipeline: %w", err)
	}
	s.pipe = pipe

	s.logger.Info("Components initialized",
		zap.String("embedding_provider", s.cfg.Embedding.Provider),
		zap.String("flag_source", s.cfg.Router.FlagSource),
		zap.String("audit_backend", s.cfg.Audit.Backend),
	)
	return nil
}

// initAuditSink 按配置创建审计后端与异步 sink
func (s *Server) initAuditSink() (*audit.Sink, error) {
	var backend audit.Backend
	switch s.cfg.Audit.Backend {
	case "file":
		fb, err := audit.NewFileBackend(audit.FileBackendConfig{
			Path:    s.cfg.Audit.FilePath,
			MaxSize: int64(s.cfg.Audit.MaxSizeMB) * 1024 * 1024,
		}, s.logger)
		if err != nil {
			return nil, err
		}
		backend = fb
	default:
		backend = audit.NewMemoryBackend(defaultAuditMemoryEvents)
	}

	return audit.NewSink(backend, audit.Config{
		QueueSize: s.cfg.Audit.QueueSize,
	}, s.logger), nil
}

// initHandlers 初始化所有 handlers
func (s *Server) initHandlers() {
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.healthHandler.RegisterCheck(handlers.NewPingCheck("redis", s.cacheMgr.Ping))
	s.healthHandler.RegisterCheck(handlers.NewPingCheck("database", s.pool.Ping))

	s.queryHandler = handlers.NewQueryHandler(s.pipe, s.logger)
	s.promoteHandler = handlers.NewPromoteHandler(s.mem, s.sink, s.logger)
	s.adminHandler = handlers.NewAdminHandler(s.collector, s.rtr, s.sink, s.logger)

	s.logger.Info("Handlers initialized")
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	// ========================================
	// 健康检查端点
	// ========================================
	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealth)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)

	// 版本信息端点
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(version, buildTime, gitCommit))

	// ========================================
	// API 路由
	// ========================================
	mux.HandleFunc("/v1/query", s.queryHandler.HandleQuery)
	mux.HandleFunc("/v1/promote", s.promoteHandler.HandlePromote)
	mux.HandleFunc("/v1/admin/stats", s.adminHandler.HandleStats)
	mux.HandleFunc("/v1/admin/audit", s.adminHandler.HandleAudit)

	// ========================================
	// 构建中间件链
	// ========================================
	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version"}
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		OTelTracing(),
		MetricsMiddleware(s.promExporter),
		RateLimiter(rateLimiterCtx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
	}
	if s.cfg.Server.AuthSecret != "" {
		middlewares = append(middlewares, JWTAuth(s.cfg.Server.AuthSecret, skipAuthPaths, s.logger))
		s.logger.Info("JWT authentication enabled")
	} else {
		s.logger.Warn("auth_secret not configured, API authentication disabled")
	}
	handler := Chain(mux, middlewares...)

	// ========================================
	// 使用 internal/server.Manager
	// ========================================
	serverConfig := server.Config{
		Name:            "api",
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout, // 2x ReadTimeout
		MaxHeaderBytes:  1 << 20,                      // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)

	// 启动服务器（非阻塞）
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Name:            "metrics",
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)

	// 启动服务器（非阻塞）
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	// 使用 httpManager 的 WaitForShutdown（它会监听信号）
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}

	// 执行清理
	s.Shutdown()
}

// Shutdown 优雅关闭所有服务。顺序：先停入口，再排空审计队列，
// 最后释放存储连接与遥测。
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	// 0. 停止 rate limiter 清理 goroutine
	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	// 1. 关闭 HTTP 服务器
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 2. 关闭 Metrics 服务器
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	// 3. 排空审计队列
	if s.sink != nil {
		if err := s.sink.Close(); err != nil {
			s.logger.Error("Audit sink shutdown error", zap.Error(err))
		}
	}

	// 4. 释放 Redis 与数据库连接
	if s.cacheMgr != nil {
		if err := s.cacheMgr.Close(); err != nil {
			s.logger.Error("Redis shutdown error", zap.Error(err))
		}
	}
	if s.pool != nil {
		if err := s.pool.Close(); err != nil {
			s.logger.Error("Database shutdown error", zap.Error(err))
		}
	}

	// 5. 关闭遥测
	if s.otelProviders != nil {
		if err := s.otelProviders.Shutdown(ctx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
	}

	// 6. 等待所有 goroutine 完成
	s.wg.Wait()

	s.logger.Info("Graceful shutdown completed")
}
