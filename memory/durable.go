package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/kitadake/concierge/internal/database"
)

// Promotion 一条晋升到持久存储的记忆快照
type Promotion struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	SessionID string    `gorm:"size:128;index" json:"session_id"`
	Key       string    `gorm:"size:256;index" json:"key"`
	Data      string    `gorm:"type:text" json:"data"`
	Reason    string    `gorm:"size:256" json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName 指定表名
func (Promotion) TableName() string { return "memory_promotions" }

// NewPromotion 构造晋升记录, data 序列化为 JSON 快照
func NewPromotion(sessionID, key string, data any, reason string) (Promotion, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return Promotion{}, fmt.Errorf("marshal promotion data: %w", err)
	}
	return Promotion{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Key:       key,
		Data:      string(payload),
		Reason:    reason,
	}, nil
}

// DurableStore 晋升数据的持久层
type DurableStore struct {
	pool   *database.PoolManager
	logger *zap.Logger
}

// NewDurableStore 创建持久层
func NewDurableStore(pool *database.PoolManager, logger *zap.Logger) (*DurableStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DurableStore{
		pool:   pool,
		logger: logger.With(zap.String("component", "memory_durable")),
	}, nil
}

// AutoMigrate 创建晋升表
func (s *DurableStore) AutoMigrate() error {
	return s.pool.DB().AutoMigrate(&Promotion{})
}

// Save 写入晋升记录, 对瞬时数据库错误做重试
func (s *DurableStore) Save(ctx context.Context, promo Promotion) error {
	if promo.ID == "" {
		promo.ID = uuid.NewString()
	}
	if promo.CreatedAt.IsZero() {
		promo.CreatedAt = time.Now()
	}

	return s.pool.WithTransactionRetry(ctx, 3, func(tx *gorm.DB) error {
		return tx.Create(&promo).Error
	})
}

// BySession 按会话读取晋升记录, 从新到旧排列
func (s *DurableStore) BySession(ctx context.Context, sessionID string) ([]Promotion, error) {
	var promos []Promotion
	err := s.pool.DB().WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Find(&promos).Error
	if err != nil {
		return nil, fmt.Errorf("load promotions for session %q: %w", sessionID, err)
	}
	return promos, nil
}
