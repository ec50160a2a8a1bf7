package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// 连接与探活超时. Redis 在内网, 5 秒足够覆盖慢启动.
const (
	dialTimeout = 5 * time.Second
	pingTimeout = 5 * time.Second
)

var (
	// ErrCacheMiss 缓存未命中
	ErrCacheMiss = errors.New("cache miss")

	// ErrManagerClosed 管理器已关闭, 所有操作拒绝
	ErrManagerClosed = errors.New("cache manager is closed")
)

// IsCacheMiss 判断是否为缓存未命中错误
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// =============================================================================
// 💾 缓存管理器
// =============================================================================

// Config 缓存配置
type Config struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`

	// DefaultTTL 在 Set 未显式给出 TTL 时生效
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl"`

	// 连接池参数
	MaxRetries   int `yaml:"max_retries" json:"max_retries"`
	PoolSize     int `yaml:"pool_size" json:"pool_size"`
	MinIdleConns int `yaml:"min_idle_conns" json:"min_idle_conns"`

	// HealthCheckInterval 为 0 时不启动后台探活
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`
}

// DefaultConfig 返回默认缓存配置
func DefaultConfig() Config {
	return Config{
		Addr:                "localhost:6379",
		DB:                  0,
		DefaultTTL:          3 * time.Minute,
		MaxRetries:          3,
		PoolSize:            10,
		MinIdleConns:        2,
		HealthCheckInterval: 30 * time.Second,
	}
}

// Manager 封装 Redis 客户端, 承载会话记忆与运行时开关的存取。
// 关闭后所有操作返回 ErrManagerClosed。
type Manager struct {
	redis  *redis.Client
	config Config
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewManager 建立 Redis 连接并启动探活循环, 连接失败立即报错
func NewManager(config Config, logger *zap.Logger) (*Manager, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		MaxRetries:   config.MaxRetries,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	m := &Manager{
		redis:  client,
		config: config,
		logger: logger.With(zap.String("component", "cache")),
		done:   make(chan struct{}),
	}

	if config.HealthCheckInterval > 0 {
		go m.healthCheckLoop()
	}

	logger.Info("cache manager initialized",
		zap.String("addr", config.Addr),
		zap.Int("pool_size", config.PoolSize),
	)

	return m, nil
}

// guard 以读锁拒绝已关闭的管理器。返回的解锁函数必须在 Redis
// 调用完成后执行, Close 才能拿到写锁。
func (m *Manager) guard() (func(), error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, ErrManagerClosed
	}
	return m.mu.RUnlock, nil
}

// =============================================================================
// 🎯 字符串与 JSON 键值
// =============================================================================

// Get 获取缓存值, 未命中返回 ErrCacheMiss
func (m *Manager) Get(ctx context.Context, key string) (string, error) {
	unlock, err := m.guard()
	if err != nil {
		return "", err
	}
	defer unlock()

	val, err := m.redis.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	if err != nil {
		m.logger.Error("cache get failed", zap.String("key", key), zap.Error(err))
		return "", fmt.Errorf("cache get failed: %w", err)
	}
	return val, nil
}

// Set 设置缓存值, ttl 为 0 时使用 DefaultTTL
func (m *Manager) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	unlock, err := m.guard()
	if err != nil {
		return err
	}
	defer unlock()

	if ttl == 0 {
		ttl = m.config.DefaultTTL
	}
	if err := m.redis.Set(ctx, key, value, ttl).Err(); err != nil {
		m.logger.Error("cache set failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("cache set failed: %w", err)
	}
	return nil
}

// GetJSON 获取并反序列化 JSON 缓存值
func (m *Manager) GetJSON(ctx context.Context, key string, dest interface{}) error {
	val, err := m.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return nil
}

// SetJSON 序列化并设置 JSON 缓存值
func (m *Manager) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	return m.Set(ctx, key, string(data), ttl)
}

// Delete 删除一个或多个键, 空键列表为空操作
func (m *Manager) Delete(ctx context.Context, keys ...string) error {
	unlock, err := m.guard()
	if err != nil {
		return err
	}
	defer unlock()

	if len(keys) == 0 {
		return nil
	}
	if err := m.redis.Del(ctx, keys...).Err(); err != nil {
		m.logger.Error("cache delete failed", zap.Strings("keys", keys), zap.Error(err))
		return fmt.Errorf("cache delete failed: %w", err)
	}
	return nil
}

// Exists 返回给定键中存在的数量
func (m *Manager) Exists(ctx context.Context, keys ...string) (int64, error) {
	unlock, err := m.guard()
	if err != nil {
		return 0, err
	}
	defer unlock()

	count, err := m.redis.Exists(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("cache exists check failed: %w", err)
	}
	return count, nil
}

// Expire 重设键的过期时间
func (m *Manager) Expire(ctx context.Context, key string, ttl time.Duration) error {
	unlock, err := m.guard()
	if err != nil {
		return err
	}
	defer unlock()

	if err := m.redis.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("cache expire failed: %w", err)
	}
	return nil
}

// =============================================================================
// 📇 时间线索引（有序集合）
// =============================================================================

// ZAdd 向有序集合添加成员, 分数通常为时间戳
func (m *Manager) ZAdd(ctx context.Context, key string, score float64, member string) error {
	unlock, err := m.guard()
	if err != nil {
		return err
	}
	defer unlock()

	if err := m.redis.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err(); err != nil {
		m.logger.Error("cache zadd failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("cache zadd failed: %w", err)
	}
	return nil
}

// ZRevRange 按分数从高到低返回 [start, stop] 区间内的成员
func (m *Manager) ZRevRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	unlock, err := m.guard()
	if err != nil {
		return nil, err
	}
	defer unlock()

	members, err := m.redis.ZRevRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("cache zrevrange failed: %w", err)
	}
	return members, nil
}

// ZRemRangeByRank 按排名区间删除成员, 用于裁剪索引到最大容量
func (m *Manager) ZRemRangeByRank(ctx context.Context, key string, start, stop int64) (int64, error) {
	unlock, err := m.guard()
	if err != nil {
		return 0, err
	}
	defer unlock()

	removed, err := m.redis.ZRemRangeByRank(ctx, key, start, stop).Result()
	if err != nil {
		return 0, fmt.Errorf("cache zremrangebyrank failed: %w", err)
	}
	return removed, nil
}

// ZRemRangeByScore 按分数区间删除成员, 用于清理过期索引项
func (m *Manager) ZRemRangeByScore(ctx context.Context, key string, min, max string) (int64, error) {
	unlock, err := m.guard()
	if err != nil {
		return 0, err
	}
	defer unlock()

	removed, err := m.redis.ZRemRangeByScore(ctx, key, min, max).Result()
	if err != nil {
		return 0, fmt.Errorf("cache zremrangebyscore failed: %w", err)
	}
	return removed, nil
}

// ZCard 返回有序集合的成员数量
func (m *Manager) ZCard(ctx context.Context, key string) (int64, error) {
	unlock, err := m.guard()
	if err != nil {
		return 0, err
	}
	defer unlock()

	count, err := m.redis.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("cache zcard failed: %w", err)
	}
	return count, nil
}

// =============================================================================
// 🗂️ 哈希与扫描
// =============================================================================

// HGet 读取哈希字段, 用于运行时路由开关; 字段缺失返回 ErrCacheMiss
func (m *Manager) HGet(ctx context.Context, key, field string) (string, error) {
	unlock, err := m.guard()
	if err != nil {
		return "", err
	}
	defer unlock()

	val, err := m.redis.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	if err != nil {
		return "", fmt.Errorf("cache hget failed: %w", err)
	}
	return val, nil
}

// Scan 遍历匹配 pattern 的键直到游标走完, 返回完整键列表
func (m *Manager) Scan(ctx context.Context, pattern string, count int64) ([]string, error) {
	unlock, err := m.guard()
	if err != nil {
		return nil, err
	}
	defer unlock()

	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := m.redis.Scan(ctx, cursor, pattern, count).Result()
		if err != nil {
			return nil, fmt.Errorf("cache scan failed: %w", err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

// =============================================================================
// 🏥 探活与关闭
// =============================================================================

// Ping 检查 Redis 连接
func (m *Manager) Ping(ctx context.Context) error {
	unlock, err := m.guard()
	if err != nil {
		return err
	}
	defer unlock()

	return m.redis.Ping(ctx).Err()
}

// Close 停止探活循环并关闭连接池, 幂等
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	close(m.done)
	m.logger.Info("closing cache manager")

	return m.redis.Close()
}

// healthCheckLoop 周期性探活, Close 之后立即退出
func (m *Manager) healthCheckLoop() {
	ticker := time.NewTicker(m.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
			if err := m.Ping(ctx); err != nil && !errors.Is(err, ErrManagerClosed) {
				m.logger.Error("cache health check failed", zap.Error(err))
			}
			cancel()
		}
	}
}
