package knowledge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/kitadake/concierge/internal/database"
	"github.com/kitadake/concierge/types"
)

// ====== GORM 模型 ======

// entryRecord 是 knowledge_entries 表的行模型。
// 向量列在 Postgres 里是 pgvector 的 vector 类型, 其文本形式
// "[0.1,0.2,...]" 恰好是合法 JSON 数组, 其他方言直接存同样的文本。
type entryRecord struct {
	ID          string `gorm:"primaryKey;size:64"`
	Content     string `gorm:"type:text"`
	Embedding   string `gorm:"type:text"`
	Language    string `gorm:"size:8;index"`
	Category    string `gorm:"size:64;index"`
	Subcategory string `gorm:"size:64"`
	Importance  string `gorm:"size:16"`
	Metadata    string `gorm:"type:text"`
}

// TableName 指定表名
func (entryRecord) TableName() string {
	return "knowledge_entries"
}

// similarRow 承接加速查询的扫描结果(行字段 + 数据库侧算出的相似度)
type similarRow struct {
	ID          string
	Content     string
	Embedding   string
	Language    string
	Category    string
	Subcategory string
	Importance  string
	Metadata    string
	Similarity  float64
}

func toRecord(e types.KnowledgeEntry) (entryRecord, error) {
	if e.Content == "" {
		return entryRecord{}, types.NewError(types.ErrInvalidRequest, "knowledge entry content cannot be empty")
	}

	rec := entryRecord{
		ID:          e.ID,
		Content:     e.Content,
		Language:    string(e.Language),
		Category:    e.Category,
		Subcategory: e.Subcategory,
		Importance:  string(e.Importance),
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	if len(e.Embedding) > 0 {
		vec, err := json.Marshal(e.Embedding)
		if err != nil {
			return entryRecord{}, fmt.Errorf("marshal embedding: %w", err)
		}
		rec.Embedding = string(vec)
	}
	if len(e.Metadata) > 0 {
		meta, err := json.Marshal(e.Metadata)
		if err != nil {
			return entryRecord{}, fmt.Errorf("marshal metadata: %w", err)
		}
		rec.Metadata = string(meta)
	}

	return rec, nil
}

func fromRecord(rec entryRecord) (types.KnowledgeEntry, error) {
	entry := types.KnowledgeEntry{
		ID:          rec.ID,
		Content:     rec.Content,
		Language:    types.Language(rec.Language),
		Category:    rec.Category,
		Subcategory: rec.Subcategory,
		Importance:  types.Importance(rec.Importance),
	}

	if rec.Embedding != "" {
		if err := json.Unmarshal([]byte(rec.Embedding), &entry.Embedding); err != nil {
			return types.KnowledgeEntry{}, fmt.Errorf("parse embedding of entry %s: %w", rec.ID, err)
		}
	}
	if rec.Metadata != "" {
		if err := json.Unmarshal([]byte(rec.Metadata), &entry.Metadata); err != nil {
			return types.KnowledgeEntry{}, fmt.Errorf("parse metadata of entry %s: %w", rec.ID, err)
		}
	}

	return entry, nil
}

// vectorLiteral 把查询向量渲染成 pgvector 接受的文本字面量
func vectorLiteral(vec []float64) (string, error) {
	b, err := json.Marshal(vec)
	if err != nil {
		return "", fmt.Errorf("marshal query vector: %w", err)
	}
	return string(b), nil
}

// ====== 存储层 ======

// Store 是知识库的数据库访问层。
type Store struct {
	pool   *database.PoolManager
	logger *zap.Logger
}

// NewStore 创建知识库存储层
func NewStore(pool *database.PoolManager, logger *zap.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		pool:   pool,
		logger: logger.With(zap.String("component", "knowledge_store")),
	}, nil
}

// AutoMigrate 建表。生产环境的表结构由内容管理服务维护,
// 这里只服务于本地开发和测试数据库。
func (s *Store) AutoMigrate() error {
	return s.pool.DB().AutoMigrate(&entryRecord{})
}

// SearchSimilar 走数据库侧的 pgvector 近邻查询。
// 方言不支持 <=> 操作符时查询会出错, 由调用方退化到全表扫描。
func (s *Store) SearchSimilar(ctx context.Context, embedding []float64, threshold float64, count int) ([]types.SearchResult, error) {
	if len(embedding) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "query embedding cannot be empty")
	}
	if count <= 0 {
		count = 10
	}

	vec, err := vectorLiteral(embedding)
	if err != nil {
		return nil, err
	}

	var rows []similarRow
	err = s.pool.DB().WithContext(ctx).Raw(`
SELECT id, content, embedding, language, category, subcategory, importance, metadata,
       1 - (embedding <=> ?::vector) AS similarity
FROM knowledge_entries
WHERE 1 - (embedding <=> ?::vector) >= ?
ORDER BY embedding <=> ?::vector
LIMIT ?`, vec, vec, threshold, vec, count).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("accelerated similarity query: %w", err)
	}

	results := make([]types.SearchResult, 0, len(rows))
	for _, row := range rows {
		entry, err := fromRecord(entryRecord{
			ID:          row.ID,
			Content:     row.Content,
			Embedding:   row.Embedding,
			Language:    row.Language,
			Category:    row.Category,
			Subcategory: row.Subcategory,
			Importance:  row.Importance,
			Metadata:    row.Metadata,
		})
		if err != nil {
			s.logger.Warn("skipping malformed knowledge entry", zap.String("id", row.ID), zap.Error(err))
			continue
		}
		results = append(results, types.SearchResult{
			Entry:      entry,
			Similarity: row.Similarity,
		})
	}

	return results, nil
}

// ListEntries 按语言/分类读取条目, 两个过滤条件都可为空。
// 这是加速路径的扫描回退, 也是候选索引预热的数据源。
func (s *Store) ListEntries(ctx context.Context, language types.Language, category string) ([]types.KnowledgeEntry, error) {
	q := s.pool.DB().WithContext(ctx).Model(&entryRecord{})
	if language != "" {
		q = q.Where("language = ?", string(language))
	}
	if category != "" {
		q = q.Where("category = ?", category)
	}

	var recs []entryRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list knowledge entries: %w", err)
	}

	entries := make([]types.KnowledgeEntry, 0, len(recs))
	for _, rec := range recs {
		entry, err := fromRecord(rec)
		if err != nil {
			s.logger.Warn("skipping malformed knowledge entry", zap.String("id", rec.ID), zap.Error(err))
			continue
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// Count 返回条目总数
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.DB().WithContext(ctx).Model(&entryRecord{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count knowledge entries: %w", err)
	}
	return n, nil
}

// Insert 批量写入条目。生产写入来自内容管理服务, 本方法服务于
// 种子数据工具和测试。
func (s *Store) Insert(ctx context.Context, entries []types.KnowledgeEntry) error {
	if len(entries) == 0 {
		return nil
	}

	recs := make([]entryRecord, 0, len(entries))
	for _, e := range entries {
		rec, err := toRecord(e)
		if err != nil {
			return err
		}
		recs = append(recs, rec)
	}

	err := s.pool.WithTransaction(ctx, func(tx *gorm.DB) error {
		return tx.CreateInBatches(recs, 100).Error
	})
	if err != nil {
		return fmt.Errorf("insert knowledge entries: %w", err)
	}

	s.logger.Info("knowledge entries inserted", zap.Int("count", len(recs)))
	return nil
}
