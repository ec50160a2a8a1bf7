// =============================================================================
// 📦 Concierge 配置加载器
// =============================================================================
// 统一配置加载，覆盖顺序: 默认值 → YAML 文件 → 环境变量
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("CONCIERGE").
//	    Load()
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 Concierge 的完整配置树。字段分两层：基础设施（服务器、
// 存储、日志、遥测）与领域管线（向量化、检索、记忆、分流、对比记录）。
type Config struct {
	Server   ServerConfig   `yaml:"server" env:"SERVER"`
	Redis    RedisConfig    `yaml:"redis" env:"REDIS"`
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	Embedding EmbeddingConfig `yaml:"embedding" env:"EMBEDDING"`
	Retrieval RetrievalConfig `yaml:"retrieval" env:"RETRIEVAL"`
	Memory    MemoryConfig    `yaml:"memory" env:"MEMORY"`
	Router    RouterConfig    `yaml:"router" env:"ROUTER"`
	Pipeline  PipelineConfig  `yaml:"pipeline" env:"PIPELINE"`
	Audit     AuditConfig     `yaml:"audit" env:"AUDIT"`

	Log       LogConfig       `yaml:"log" env:"LOG"`
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Prometheus 指标独立端口
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`

	// 读写与优雅关闭超时
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`

	// 按客户端 IP 的限流参数
	RateLimitRPS   int `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`

	// JWT 签名密钥，为空时跳过认证
	AuthSecret string `yaml:"auth_secret" env:"AUTH_SECRET"`
}

// RedisConfig 会话记忆所在 Redis 的连接配置
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`

	// 连接池上限与保底空闲连接
	PoolSize     int `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`

	// 后台探活间隔，0 表示不开
	HealthCheckInterval time.Duration `yaml:"health_check_interval" env:"HEALTH_CHECK_INTERVAL"`
}

// DatabaseConfig 知识语料与晋升记录所在数据库的配置
type DatabaseConfig struct {
	// 驱动: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`

	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	User     string `yaml:"user" env:"USER"`
	Password string `yaml:"password" env:"PASSWORD"`
	Name     string `yaml:"name" env:"NAME"`
	SSLMode  string `yaml:"ssl_mode" env:"SSL_MODE"`

	// 连接池参数，透传给 database.PoolManager
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// EmbeddingConfig 向量化服务配置
type EmbeddingConfig struct {
	// Provider: openai, gemini
	Provider string `yaml:"provider" env:"PROVIDER"`
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 基础 URL（可选，用于代理）
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 模型名称
	Model string `yaml:"model" env:"MODEL"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 知识库向量维度，Provider 输出维度不足时触发维度适配
	TargetDimensions int `yaml:"target_dimensions" env:"TARGET_DIMENSIONS"`
	// 维度适配策略: repeat, pad
	DimensionStrategy string `yaml:"dimension_strategy" env:"DIMENSION_STRATEGY"`
	// 每秒请求限制（0 表示不限制）
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 突发请求限制
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// RetrievalConfig 检索配置
type RetrievalConfig struct {
	// 默认返回条数
	DefaultLimit int `yaml:"default_limit" env:"DEFAULT_LIMIT"`
	// 默认相似度阈值
	DefaultThreshold float64 `yaml:"default_threshold" env:"DEFAULT_THRESHOLD"`
	// 加速路径候选倍数（limit × k）
	CandidateMultiplier int `yaml:"candidate_multiplier" env:"CANDIDATE_MULTIPLIER"`
	// 零结果时的降阈值重试阈值
	RetryThreshold float64 `yaml:"retry_threshold" env:"RETRY_THRESHOLD"`
	// v2: 启动时预热 HNSW 候选索引
	WarmIndexOnStart bool `yaml:"warm_index_on_start" env:"WARM_INDEX_ON_START"`
}

// MemoryConfig 会话记忆配置
type MemoryConfig struct {
	// 轮次过期时间
	TTL time.Duration `yaml:"ttl" env:"TTL"`
	// 时间索引最大轮次数
	MaxTurns int `yaml:"max_turns" env:"MAX_TURNS"`
	// 默认读取轮次数
	RecentLimit int `yaml:"recent_limit" env:"RECENT_LIMIT"`
	// 键命名空间前缀
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// RouterConfig 实现路由配置
type RouterConfig struct {
	// 模式: single, parallel
	Mode string `yaml:"mode" env:"MODE"`
	// single 模式下的 v2 流量百分比 (0-100)
	V2Percentage int `yaml:"v2_percentage" env:"V2_PERCENTAGE"`
	// 标志来源: static, redis
	FlagSource string `yaml:"flag_source" env:"FLAG_SOURCE"`
	// redis 标志所在的 hash 键
	FlagKey string `yaml:"flag_key" env:"FLAG_KEY"`
	// Breaker 熔断器配置
	Breaker BreakerConfig `yaml:"breaker" env:"BREAKER"`
}

// BreakerConfig 熔断器配置
type BreakerConfig struct {
	// 连续失败阈值
	FailureThreshold int `yaml:"failure_threshold" env:"FAILURE_THRESHOLD"`
	// 失败计数滑动窗口
	FailureWindow time.Duration `yaml:"failure_window" env:"FAILURE_WINDOW"`
	// 熔断冷却时间
	CoolDown time.Duration `yaml:"cool_down" env:"COOL_DOWN"`
}

// PipelineConfig 管线配置
type PipelineConfig struct {
	// 主语言: ja, en
	PrimaryLanguage string `yaml:"primary_language" env:"PRIMARY_LANGUAGE"`
	// 上下文组装的 token 预算
	ContextTokenBudget int `yaml:"context_token_budget" env:"CONTEXT_TOKEN_BUDGET"`
	// token 计数使用的编码
	TokenEncoding string `yaml:"token_encoding" env:"TOKEN_ENCODING"`
	// 上下文回溯的助手轮次数
	ContextWindow int `yaml:"context_window" env:"CONTEXT_WINDOW"`
}

// AuditConfig 对比记录配置
type AuditConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 后端: memory, file
	Backend string `yaml:"backend" env:"BACKEND"`
	// file 后端输出路径
	FilePath string `yaml:"file_path" env:"FILE_PATH"`
	// file 后端单文件大小上限（MB）
	MaxSizeMB int `yaml:"max_size_mb" env:"MAX_SIZE_MB"`
	// 异步队列长度
	QueueSize int `yaml:"queue_size" env:"QUEUE_SIZE"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 格式: json, console（console 仅用于本地开发）
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径，空则 stdout
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 追加调用方文件行号
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// error 及以上追加堆栈
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig OpenTelemetry 导出配置
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP gRPC 端点，如 localhost:4317
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 上报的服务名
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率 (0-1]
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 按覆盖顺序逐层构建配置（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{envPrefix: "CONCIERGE"}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 追加一个加载完成后执行的校验器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 执行加载。配置文件缺失不算错误（纯环境变量的容器部署很常见），
// YAML 解析失败或校验器失败则直接报错。
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := mergeYAMLFile(cfg, l.configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := applyEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, validate := range l.validators {
		if err := validate(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// mergeYAMLFile 把 YAML 文件内容叠加到 cfg 上
func mergeYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// applyEnv 深度遍历配置结构体，用 env tag 拼出变量名并覆盖对应字段。
// 嵌套结构体的 tag 逐级用下划线连接，如 CONCIERGE_ROUTER_BREAKER_COOL_DOWN。
func applyEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		tag := t.Field(i).Tag.Get("env")
		if tag == "" || tag == "-" {
			continue
		}
		key := prefix + "_" + tag

		if field.Kind() == reflect.Struct {
			if err := applyEnv(field, key); err != nil {
				return err
			}
			continue
		}

		raw, ok := os.LookupEnv(key)
		if !ok || raw == "" {
			continue
		}
		if err := setFieldValue(field, raw); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	}

	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// setFieldValue 把环境变量字符串解析成字段类型的值
func setFieldValue(field reflect.Value, raw string) error {
	if !field.CanSet() {
		return nil
	}

	// time.Duration 底层是 int64，必须先于一般整数分支处理
	if field.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
		return nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)
		return nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)
		return nil

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
		return nil

	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		field.SetBool(b)
		return nil

	case reflect.Slice:
		// 目前只有字符串切片（如 log.output_paths），逗号分隔
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice element type %s", field.Type().Elem())
		}
		parts := strings.Split(raw, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		field.Set(reflect.ValueOf(parts))
		return nil

	default:
		return fmt.Errorf("unsupported config field kind %s", field.Kind())
	}
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic。给初始化早于错误处理设施的场景用。
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 跳过 YAML，仅用默认值和环境变量构建配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 全量校验。错误一次性聚合返回，避免修一个再撞下一个。
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}

	if c.Retrieval.DefaultLimit <= 0 {
		errs = append(errs, "default_limit must be positive")
	}
	if c.Retrieval.DefaultThreshold < 0 || c.Retrieval.DefaultThreshold > 1 {
		errs = append(errs, "default_threshold must be between 0 and 1")
	}
	if c.Retrieval.CandidateMultiplier < 1 {
		errs = append(errs, "candidate_multiplier must be at least 1")
	}

	if c.Memory.TTL <= 0 {
		errs = append(errs, "memory ttl must be positive")
	}
	if c.Memory.MaxTurns <= 0 {
		errs = append(errs, "memory max_turns must be positive")
	}

	if c.Router.Mode != "single" && c.Router.Mode != "parallel" {
		errs = append(errs, "router mode must be single or parallel")
	}
	if c.Router.V2Percentage < 0 || c.Router.V2Percentage > 100 {
		errs = append(errs, "v2_percentage must be between 0 and 100")
	}
	if c.Router.Breaker.FailureThreshold <= 0 {
		errs = append(errs, "breaker failure_threshold must be positive")
	}

	switch c.Embedding.DimensionStrategy {
	case "repeat", "pad":
	default:
		errs = append(errs, "dimension_strategy must be repeat or pad")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// DSN 按驱动类型拼接数据库连接串，未知驱动返回空串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
