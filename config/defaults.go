// =============================================================================
// 📦 Concierge 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Redis:     DefaultRedisConfig(),
		Database:  DefaultDatabaseConfig(),
		Embedding: DefaultEmbeddingConfig(),
		Retrieval: DefaultRetrievalConfig(),
		Memory:    DefaultMemoryConfig(),
		Router:    DefaultRouterConfig(),
		Pipeline:  DefaultPipelineConfig(),
		Audit:     DefaultAuditConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
		AuthSecret:      "",
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:                "localhost:6379",
		Password:            "",
		DB:                  0,
		PoolSize:            10,
		MinIdleConns:        2,
		HealthCheckInterval: 30 * time.Second,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "concierge",
		Password:        "",
		Name:            "concierge",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultEmbeddingConfig 返回默认向量化配置
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		Provider:          "openai",
		APIKey:            "",
		BaseURL:           "",
		Model:             "text-embedding-3-small",
		Timeout:           30 * time.Second,
		TargetDimensions:  1536,
		DimensionStrategy: "repeat",
		RateLimitRPS:      0,
		RateLimitBurst:    1,
	}
}

// DefaultRetrievalConfig 返回默认检索配置
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		DefaultLimit:        5,
		DefaultThreshold:    0.5,
		CandidateMultiplier: 4,
		RetryThreshold:      0.4,
		WarmIndexOnStart:    true,
	}
}

// DefaultMemoryConfig 返回默认会话记忆配置
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		TTL:         180 * time.Second,
		MaxTurns:    20,
		RecentLimit: 6,
		Namespace:   "concierge",
	}
}

// DefaultRouterConfig 返回默认路由配置
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		Mode:         "single",
		V2Percentage: 0,
		FlagSource:   "static",
		FlagKey:      "concierge:flags",
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			FailureWindow:    60 * time.Second,
			CoolDown:         30 * time.Second,
		},
	}
}

// DefaultPipelineConfig 返回默认管线配置
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		PrimaryLanguage:    "ja",
		ContextTokenBudget: 1600,
		TokenEncoding:      "cl100k_base",
		ContextWindow:      3,
	}
}

// DefaultAuditConfig 返回默认对比记录配置
func DefaultAuditConfig() AuditConfig {
	return AuditConfig{
		Enabled:   true,
		Backend:   "memory",
		FilePath:  "audit/comparisons.jsonl",
		MaxSizeMB: 64,
		QueueSize: 256,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "concierge",
		SampleRate:   0.1,
	}
}
