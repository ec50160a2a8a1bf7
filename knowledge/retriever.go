package knowledge

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kitadake/concierge/types"
)

// Corpus 是检索器消费的存储接口, 由 *Store 实现。
type Corpus interface {
	// SearchSimilar 加速相似度查询(数据库侧近邻)
	SearchSimilar(ctx context.Context, embedding []float64, threshold float64, count int) ([]types.SearchResult, error)

	// ListEntries 按语言/分类平面读取, 供全表扫描与索引预热
	ListEntries(ctx context.Context, language types.Language, category string) ([]types.KnowledgeEntry, error)
}

// SearchOptions 控制一次检索。
type SearchOptions struct {
	// 目标语言, 为空时不过滤
	Language types.Language `json:"language,omitempty"`

	// 目标分类, 为空或 general 时不过滤
	Category string `json:"category,omitempty"`

	// 返回条数上限
	Limit int `json:"limit,omitempty"`

	// 相似度下限
	Threshold float64 `json:"threshold,omitempty"`

	// 零结果时允许一次降阈值重试(只降一跳, 不做退避循环)
	RetryLowerThreshold bool `json:"retry_lower_threshold,omitempty"`
}

// RetrieverConfig 检索器配置
type RetrieverConfig struct {
	// 默认返回条数
	DefaultLimit int `yaml:"default_limit" json:"default_limit"`

	// 默认相似度下限
	DefaultThreshold float64 `yaml:"default_threshold" json:"default_threshold"`

	// 候选放大倍数: 加速路径取 limit × k 个候选, 过滤后仍有余量
	CandidateMultiplier int `yaml:"candidate_multiplier" json:"candidate_multiplier"`

	// 降阈值重试使用的下限
	RetryThreshold float64 `yaml:"retry_threshold" json:"retry_threshold"`

	// v2: 主语言结果不足时补充次语言检索
	CrossLanguage bool `yaml:"cross_language" json:"cross_language"`
}

// DefaultRetrieverConfig 默认配置
func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		DefaultLimit:        5,
		DefaultThreshold:    0.5,
		CandidateMultiplier: 4,
		RetryThreshold:      0.4,
		CrossLanguage:       true,
	}
}

func (c RetrieverConfig) withDefaults() RetrieverConfig {
	def := DefaultRetrieverConfig()
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = def.DefaultLimit
	}
	if c.DefaultThreshold <= 0 {
		c.DefaultThreshold = def.DefaultThreshold
	}
	if c.CandidateMultiplier <= 0 {
		c.CandidateMultiplier = def.CandidateMultiplier
	}
	if c.RetryThreshold <= 0 {
		c.RetryThreshold = def.RetryThreshold
	}
	return c
}

// ====== v1 检索器 ======

// Retriever 是第一代检索实现: 加速路径优先, 失败时退化为全表
// 余弦扫描, 两条路径都失败才向上抛错。
type Retriever struct {
	corpus Corpus
	cfg    RetrieverConfig
	logger *zap.Logger
}

// NewRetriever 创建 v1 检索器
func NewRetriever(corpus Corpus, cfg RetrieverConfig, logger *zap.Logger) (*Retriever, error) {
	if corpus == nil {
		return nil, fmt.Errorf("corpus cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{
		corpus: corpus,
		cfg:    cfg.withDefaults(),
		logger: logger.With(zap.String("component", "retriever_v1")),
	}, nil
}

// Name 返回实现名, 用于路由与指标
func (r *Retriever) Name() string {
	return "v1"
}

// Search 执行一次检索。返回的结果恒满足 similarity ≥ opts.Threshold。
func (r *Retriever) Search(ctx context.Context, embedding []float64, opts SearchOptions) ([]types.SearchResult, error) {
	if len(embedding) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "query embedding cannot be empty")
	}
	opts = r.normalize(opts)

	results, err := r.accelerated(ctx, embedding, opts)
	if err != nil {
		r.logger.Warn("accelerated search unavailable, falling back to table scan",
			zap.Error(err))
		results, err = r.bruteForce(ctx, embedding, opts)
		if err != nil {
			return nil, err
		}
	}

	if len(results) == 0 && opts.RetryLowerThreshold && opts.Threshold > r.cfg.RetryThreshold {
		retry := opts
		retry.Threshold = r.cfg.RetryThreshold
		retry.RetryLowerThreshold = false
		r.logger.Info("retrying with lowered threshold",
			zap.Float64("from", opts.Threshold),
			zap.Float64("to", retry.Threshold))
		return r.Search(ctx, embedding, retry)
	}

	return results, nil
}

func (r *Retriever) normalize(opts SearchOptions) SearchOptions {
	if opts.Limit <= 0 {
		opts.Limit = r.cfg.DefaultLimit
	}
	if opts.Threshold <= 0 {
		opts.Threshold = r.cfg.DefaultThreshold
	}
	return opts
}

// accelerated 加速路径: 近邻索引不支持多谓词过滤, 取 limit × k
// 个候选后在内存里按语言/分类过滤。
func (r *Retriever) accelerated(ctx context.Context, embedding []float64, opts SearchOptions) ([]types.SearchResult, error) {
	candidates, err := r.corpus.SearchSimilar(ctx, embedding, opts.Threshold, opts.Limit*r.cfg.CandidateMultiplier)
	if err != nil {
		return nil, err
	}
	return filterResults(candidates, opts), nil
}

// bruteForce 回退路径: 按语言平面读取后逐条算余弦。分类过滤留在
// 内存侧, 复合分类(如 saino-hours)用 SQL 等值匹配会漏。
func (r *Retriever) bruteForce(ctx context.Context, embedding []float64, opts SearchOptions) ([]types.SearchResult, error) {
	entries, err := r.corpus.ListEntries(ctx, opts.Language, "")
	if err != nil {
		return nil, types.Wrap(types.ErrRetrievalFailed, "both accelerated and fallback search failed", err)
	}
	return scanEntries(entries, embedding, opts), nil
}

// scanEntries 对条目逐一计算余弦相似度并按选项过滤
func scanEntries(entries []types.KnowledgeEntry, embedding []float64, opts SearchOptions) []types.SearchResult {
	results := make([]types.SearchResult, 0, len(entries))
	for _, e := range entries {
		if !languageMatches(opts.Language, e) || !categoryMatches(opts.Category, e) {
			continue
		}
		sim := Cosine(embedding, e.Embedding)
		if sim < opts.Threshold {
			continue
		}
		results = append(results, types.SearchResult{Entry: e, Similarity: sim})
	}

	sortBySimilarity(results)
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results
}

// filterResults 对加速路径的候选做事后过滤
func filterResults(candidates []types.SearchResult, opts SearchOptions) []types.SearchResult {
	results := make([]types.SearchResult, 0, len(candidates))
	for _, c := range candidates {
		if !languageMatches(opts.Language, c.Entry) || !categoryMatches(opts.Category, c.Entry) {
			continue
		}
		if c.Similarity < opts.Threshold {
			continue
		}
		results = append(results, c)
	}

	sortBySimilarity(results)
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results
}

func languageMatches(want types.Language, e types.KnowledgeEntry) bool {
	return want == "" || e.Language == want
}

// categoryMatches 判断条目是否属于目标分类。复合分类按前后缀展开:
// 目标 hours 同时命中 engineer-cafe-hours 和 saino-hours;
// 目标 saino-hours 也命中 分类=hours/子分类=saino 的拆分写法。
func categoryMatches(want string, e types.KnowledgeEntry) bool {
	if want == "" || want == types.CategoryGeneral {
		return true
	}
	if e.Category == want || e.Subcategory == want {
		return true
	}
	if strings.HasSuffix(e.Category, "-"+want) || strings.HasPrefix(e.Category, want+"-") {
		return true
	}
	return types.CompoundCategory(e.Subcategory, e.Category) == want
}
