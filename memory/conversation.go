package memory

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kitadake/concierge/internal/cache"
	"github.com/kitadake/concierge/types"
)

// Config 会话记忆配置
type Config struct {
	// 轮次与索引的存活窗口
	TTL time.Duration `yaml:"ttl" json:"ttl"`

	// 索引保留的最大轮次数
	MaxTurns int `yaml:"max_turns" json:"max_turns"`

	// RecentTurns 未指定 limit 时的默认条数
	RecentLimit int `yaml:"recent_limit" json:"recent_limit"`

	// Redis 键前缀
	Namespace string `yaml:"namespace" json:"namespace"`
}

// DefaultConfig 返回默认会话记忆配置
func DefaultConfig() Config {
	return Config{
		TTL:         180 * time.Second,
		MaxTurns:    20,
		RecentLimit: 6,
		Namespace:   "concierge",
	}
}

// Memory 有界、按时间过期的会话记忆.
//
// 会话读写是尽力而为: StoreTurn / RecentTurns / IsConversationActive
// 在基础设施故障时记录日志并退化为无上下文, 不返回基础设施错误.
// Promote 与 CleanupExpired 是显式操作, 错误正常传播.
type Memory struct {
	cache   *cache.Manager
	durable *DurableStore
	cfg     Config
	logger  *zap.Logger
	now     func() time.Time
}

// NewMemory 创建会话记忆. durable 可为 nil, 此时 Promote 返回错误.
func NewMemory(cacheMgr *cache.Manager, durable *DurableStore, cfg Config, logger *zap.Logger) (*Memory, error) {
	if cacheMgr == nil {
		return nil, fmt.Errorf("cache manager cannot be nil")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultConfig().MaxTurns
	}
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = DefaultConfig().RecentLimit
	}
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultConfig().Namespace
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Memory{
		cache:   cacheMgr,
		durable: durable,
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "conversation_memory")),
		now:     time.Now,
	}, nil
}

func (m *Memory) turnKey(sessionID, turnID string) string {
	return fmt.Sprintf("%s:memory:%s:turn:%s", m.cfg.Namespace, sessionID, turnID)
}

func (m *Memory) indexKey(sessionID string) string {
	return fmt.Sprintf("%s:memory:%s:index", m.cfg.Namespace, sessionID)
}

// StoreTurn 写入一轮对话. 内容键带 TTL, 索引按时间戳记分、裁剪到
// MaxTurns 并重设 TTL. 基础设施故障只记录日志; 返回错误仅代表
// 入参无效.
func (m *Memory) StoreTurn(ctx context.Context, sessionID string, turn types.ConversationTurn) error {
	if sessionID == "" {
		return types.NewError(types.ErrInvalidRequest, "session id is required")
	}
	if turn.Content == "" {
		return types.NewError(types.ErrInvalidRequest, "turn content is required")
	}
	if turn.Role == "" {
		turn.Role = types.RoleUser
	}
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = m.now()
	}

	if err := m.cache.SetJSON(ctx, m.turnKey(sessionID, turn.ID), turn, m.cfg.TTL); err != nil {
		m.logger.Warn("store turn failed, degrading to no-context",
			zap.String("session_id", sessionID), zap.Error(err))
		return nil
	}

	indexKey := m.indexKey(sessionID)
	score := float64(turn.Timestamp.UnixMilli())
	if err := m.cache.ZAdd(ctx, indexKey, score, turn.ID); err != nil {
		m.logger.Warn("index turn failed", zap.String("session_id", sessionID), zap.Error(err))
		return nil
	}

	// 裁剪到最大容量: 删除排名最旧的多余成员
	if _, err := m.cache.ZRemRangeByRank(ctx, indexKey, 0, int64(-(m.cfg.MaxTurns + 1))); err != nil {
		m.logger.Warn("trim index failed", zap.String("session_id", sessionID), zap.Error(err))
	}

	// 索引随每次插入重设 TTL
	if err := m.cache.Expire(ctx, indexKey, m.cfg.TTL); err != nil {
		m.logger.Warn("refresh index ttl failed", zap.String("session_id", sessionID), zap.Error(err))
	}

	return nil
}

// RecentTurns 返回最新的 limit 轮对话, 按时间从新到旧排列.
// limit <= 0 时使用配置的默认条数. 已过期或无法解析的轮次被跳过;
// 任何基础设施故障都退化为空结果.
func (m *Memory) RecentTurns(ctx context.Context, sessionID string, limit int) []types.ConversationTurn {
	if sessionID == "" {
		return nil
	}
	if limit <= 0 {
		limit = m.cfg.RecentLimit
	}

	ids, err := m.cache.ZRevRange(ctx, m.indexKey(sessionID), 0, int64(limit-1))
	if err != nil {
		m.logger.Warn("read turn index failed, degrading to no-context",
			zap.String("session_id", sessionID), zap.Error(err))
		return nil
	}

	now := m.now()
	turns := make([]types.ConversationTurn, 0, len(ids))
	for _, id := range ids {
		var turn types.ConversationTurn
		if err := m.cache.GetJSON(ctx, m.turnKey(sessionID, id), &turn); err != nil {
			if !cache.IsCacheMiss(err) {
				m.logger.Debug("fetch turn failed", zap.String("turn_id", id), zap.Error(err))
			}
			continue
		}
		// 惰性过期: 物理键未回收但逻辑上已超窗的轮次同样排除
		if turn.Expired(now, m.cfg.TTL) {
			continue
		}
		turns = append(turns, turn)
	}

	return turns
}

// IsConversationActive 判断最近一轮对话是否仍在存活窗口内.
func (m *Memory) IsConversationActive(ctx context.Context, sessionID string) bool {
	if sessionID == "" {
		return false
	}

	ids, err := m.cache.ZRevRange(ctx, m.indexKey(sessionID), 0, 0)
	if err != nil || len(ids) == 0 {
		return false
	}

	var turn types.ConversationTurn
	if err := m.cache.GetJSON(ctx, m.turnKey(sessionID, ids[0]), &turn); err != nil {
		return false
	}

	return turn.Age(m.now()) < m.cfg.TTL
}

// Promote 把数据复制到持久存储, 附带晋升原因. 这是数据穿越会话
// 窗口的唯一途径.
func (m *Memory) Promote(ctx context.Context, sessionID, key string, data any, reason string) error {
	if m.durable == nil {
		return types.NewError(types.ErrMemoryUnavailable, "durable store not configured")
	}
	if key == "" {
		return types.NewError(types.ErrInvalidRequest, "promotion key is required")
	}

	promo, err := NewPromotion(sessionID, key, data, reason)
	if err != nil {
		return err
	}
	promo.CreatedAt = m.now()

	if err := m.durable.Save(ctx, promo); err != nil {
		return fmt.Errorf("promote %q: %w", key, err)
	}

	m.logger.Info("memory promoted to durable storage",
		zap.String("session_id", sessionID),
		zap.String("key", key),
		zap.String("reason", reason),
	)
	return nil
}

// CleanupExpired 清理所有会话索引中分数早于存活窗口的成员,
// 返回删除的成员总数. 轮次内容键由 Redis TTL 自行回收.
func (m *Memory) CleanupExpired(ctx context.Context) (int, error) {
	pattern := fmt.Sprintf("%s:memory:*:index", m.cfg.Namespace)
	keys, err := m.cache.Scan(ctx, pattern, 100)
	if err != nil {
		return 0, fmt.Errorf("scan memory indexes: %w", err)
	}

	cutoff := strconv.FormatInt(m.now().Add(-m.cfg.TTL).UnixMilli(), 10)
	total := 0
	for _, key := range keys {
		removed, err := m.cache.ZRemRangeByScore(ctx, key, "-inf", cutoff)
		if err != nil {
			return total, fmt.Errorf("trim index %q: %w", key, err)
		}
		total += int(removed)
	}

	if total > 0 {
		m.logger.Debug("cleaned up expired turn index entries", zap.Int("removed", total))
	}
	return total, nil
}
