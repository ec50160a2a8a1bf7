package knowledge

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/coder/hnsw"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/kitadake/concierge/types"
)

// 跨语言救援段主语言阈值的放宽系数
const crossLanguageRelax = 0.85

// ====== v2 检索器 ======

// EnhancedRetriever 是第二代检索实现: 进程内 HNSW 候选索引先筛,
// 再用全精度向量复核相似度, 省掉加速查询的存储往返。索引冷或为空
// 时退化为 v1 行为; 主语言结果不足时并发补充次语言检索, 合并结果
// 按 分类/子分类 去重。
//
// 跨语言救援段的主语言阈值会放宽到 threshold × 0.85, 这是该段
// 唯一允许低于请求阈值的地方。
type EnhancedRetriever struct {
	corpus Corpus
	base   *Retriever
	cfg    RetrieverConfig
	logger *zap.Logger

	mu      sync.RWMutex
	graph   *hnsw.Graph[string]
	entries map[string]types.KnowledgeEntry
	dims    int

	warm   singleflight.Group
	warmed atomic.Bool
}

// NewEnhancedRetriever 创建 v2 检索器
func NewEnhancedRetriever(corpus Corpus, cfg RetrieverConfig, logger *zap.Logger) (*EnhancedRetriever, error) {
	if corpus == nil {
		return nil, fmt.Errorf("corpus cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	base, err := NewRetriever(corpus, cfg, logger)
	if err != nil {
		return nil, err
	}

	return &EnhancedRetriever{
		corpus: corpus,
		base:   base,
		cfg:    cfg.withDefaults(),
		logger: logger.With(zap.String("component", "retriever_v2")),
	}, nil
}

// Name 返回实现名, 用于路由与指标
func (r *EnhancedRetriever) Name() string {
	return "v2"
}

// Search 执行一次检索
func (r *EnhancedRetriever) Search(ctx context.Context, embedding []float64, opts SearchOptions) ([]types.SearchResult, error) {
	if len(embedding) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "query embedding cannot be empty")
	}
	opts = r.base.normalize(opts)

	if err := r.ensureWarm(ctx); err != nil {
		r.logger.Warn("candidate index unavailable, using store search", zap.Error(err))
		return r.base.Search(ctx, embedding, opts)
	}

	results, ok := r.indexSearch(embedding, opts)
	if !ok {
		return r.base.Search(ctx, embedding, opts)
	}

	if r.cfg.CrossLanguage && opts.Language != "" && len(results) < opts.Limit {
		results = r.crossLanguageMerge(embedding, opts)
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

// Warm 预热候选索引。Search 首次调用时也会自动预热,
// 这里暴露给启动流程提前做。
func (r *EnhancedRetriever) Warm(ctx context.Context) error {
	return r.ensureWarm(ctx)
}

// Refresh 在语料更新后重建候选索引
func (r *EnhancedRetriever) Refresh(ctx context.Context) error {
	r.warmed.Store(false)
	return r.ensureWarm(ctx)
}

// ensureWarm 保证索引已加载, singleflight 合并并发预热
func (r *EnhancedRetriever) ensureWarm(ctx context.Context) error {
	if r.warmed.Load() {
		return nil
	}
	_, err, _ := r.warm.Do("warm", func() (any, error) {
		if r.warmed.Load() {
			return nil, nil
		}
		return nil, r.loadIndex(ctx)
	})
	return err
}

func (r *EnhancedRetriever) loadIndex(ctx context.Context) error {
	entries, err := r.corpus.ListEntries(ctx, "", "")
	if err != nil {
		return fmt.Errorf("warm candidate index: %w", err)
	}

	graph := hnsw.NewGraph[string]()
	byID := make(map[string]types.KnowledgeEntry, len(entries))
	dims := 0

	for _, e := range entries {
		if len(e.Embedding) == 0 {
			continue
		}
		if dims == 0 {
			dims = len(e.Embedding)
		}
		if len(e.Embedding) != dims {
			r.logger.Warn("skipping entry with mismatched dimensions",
				zap.String("id", e.ID),
				zap.Int("got", len(e.Embedding)),
				zap.Int("want", dims))
			continue
		}
		graph.Add(hnsw.MakeNode(e.ID, toFloat32(e.Embedding)))
		byID[e.ID] = e
	}

	r.mu.Lock()
	r.graph = graph
	r.entries = byID
	r.dims = dims
	r.mu.Unlock()

	r.warmed.Store(true)
	r.logger.Info("candidate index warmed",
		zap.Int("entries", len(byID)),
		zap.Int("dimensions", dims))
	return nil
}

// indexSearch 在 HNSW 图里取候选, 再用全精度向量复核。
// 索引为空或查询维度不匹配时返回 ok=false, 调用方退化到 v1。
func (r *EnhancedRetriever) indexSearch(embedding []float64, opts SearchOptions) ([]types.SearchResult, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.graph == nil || len(r.entries) == 0 {
		return nil, false
	}
	if len(embedding) != r.dims {
		r.logger.Warn("query dimension does not match index",
			zap.Int("got", len(embedding)),
			zap.Int("want", r.dims))
		return nil, false
	}

	neighbors := r.graph.Search(toFloat32(embedding), opts.Limit*r.cfg.CandidateMultiplier)

	results := make([]types.SearchResult, 0, len(neighbors))
	for _, node := range neighbors {
		entry, found := r.entries[node.Key]
		if !found {
			continue
		}
		if !languageMatches(opts.Language, entry) || !categoryMatches(opts.Category, entry) {
			continue
		}
		sim := Cosine(embedding, entry.Embedding)
		if sim < opts.Threshold {
			continue
		}
		results = append(results, types.SearchResult{Entry: entry, Similarity: sim})
	}

	sortBySimilarity(results)
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, true
}

// crossLanguageMerge 主语言结果不足时的救援段: 主语言放大条数并
// 放宽阈值, 次语言用小条数原阈值, 两段并发执行后合并去重。
// 任一分支都不会让另一分支失败(分支只做内存运算)。
func (r *EnhancedRetriever) crossLanguageMerge(embedding []float64, opts SearchOptions) []types.SearchResult {
	primary := opts
	primary.Limit = opts.Limit * 2
	primary.Threshold = opts.Threshold * crossLanguageRelax

	secondary := opts
	secondary.Language = opts.Language.Other()
	secondary.Limit = opts.Limit / 2
	if secondary.Limit < 1 {
		secondary.Limit = 1
	}

	var primaryResults, secondaryResults []types.SearchResult
	var g errgroup.Group
	g.Go(func() error {
		primaryResults, _ = r.indexSearch(embedding, primary)
		return nil
	})
	g.Go(func() error {
		secondaryResults, _ = r.indexSearch(embedding, secondary)
		return nil
	})
	_ = g.Wait()

	merged := mergeResults(primaryResults, secondaryResults, opts.Limit)
	r.logger.Debug("cross-language merge",
		zap.String("primary", string(opts.Language)),
		zap.Int("primary_results", len(primaryResults)),
		zap.Int("secondary_results", len(secondaryResults)),
		zap.Int("merged", len(merged)))
	return merged
}

// mergeResults 合并多段检索结果, 按相似度降序去重
// (粗粒度键: 分类/子分类), 截断到 limit。
func mergeResults(primary, secondary []types.SearchResult, limit int) []types.SearchResult {
	combined := make([]types.SearchResult, 0, len(primary)+len(secondary))
	combined = append(combined, primary...)
	combined = append(combined, secondary...)
	sortBySimilarity(combined)

	seen := make(map[string]struct{}, len(combined))
	merged := make([]types.SearchResult, 0, limit)
	for _, res := range combined {
		key := res.Entry.DedupeKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, res)
		if len(merged) == limit {
			break
		}
	}
	return merged
}
