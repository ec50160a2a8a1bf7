package embedding

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// DimensionStrategy 选择向量维度调和的方式.
type DimensionStrategy string

const (
	// StrategyRepeat 重复拼接原向量直至达到目标维度.
	StrategyRepeat DimensionStrategy = "repeat"
	// StrategyPad 在原向量后补零直至达到目标维度.
	StrategyPad DimensionStrategy = "pad"
)

// DimensionAdapter 把内层提供者的输出向量调和到目标维度.
//
// 同一语料库内参与余弦比较的向量必须共享维度。当嵌入模型的原生
// 维度小于语料库的存储维度时，按策略拉伸；大于时截断。拉伸保持
// 同策略向量之间的相对余弦排序，但对原生维度向量的精度有损，
// 换用模型时应优先重嵌语料而不是依赖本适配器。
type DimensionAdapter struct {
	inner    Provider
	target   int
	strategy DimensionStrategy
	logger   *zap.Logger
	warnOnce sync.Once
}

// NewDimensionAdapter 包装 provider, 将其输出调和到 target 维度.
// strategy 为空时默认 repeat.
func NewDimensionAdapter(inner Provider, target int, strategy DimensionStrategy, logger *zap.Logger) *DimensionAdapter {
	if strategy == "" {
		strategy = StrategyRepeat
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DimensionAdapter{
		inner:    inner,
		target:   target,
		strategy: strategy,
		logger:   logger.With(zap.String("component", "dimension_adapter")),
	}
}

func (a *DimensionAdapter) Name() string      { return a.inner.Name() }
func (a *DimensionAdapter) MaxBatchSize() int { return a.inner.MaxBatchSize() }

// Dimensions 返回调和后的目标维度.
func (a *DimensionAdapter) Dimensions() int {
	if a.target > 0 {
		return a.target
	}
	return a.inner.Dimensions()
}

// Embed 生成嵌入并调和每个结果向量的维度.
func (a *DimensionAdapter) Embed(ctx context.Context, req *Request) (*Response, error) {
	resp, err := a.inner.Embed(ctx, req)
	if err != nil {
		return nil, err
	}
	for i := range resp.Embeddings {
		resp.Embeddings[i].Embedding = a.Reconcile(resp.Embeddings[i].Embedding)
	}
	return resp, nil
}

// EmbedQuery 嵌入单个查询并调和维度.
func (a *DimensionAdapter) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	vec, err := a.inner.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	return a.Reconcile(vec), nil
}

// EmbedDocuments 嵌入多个文档并调和维度.
func (a *DimensionAdapter) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	vecs, err := a.inner.EmbedDocuments(ctx, documents)
	if err != nil {
		return nil, err
	}
	for i := range vecs {
		vecs[i] = a.Reconcile(vecs[i])
	}
	return vecs, nil
}

// Reconcile 把单个向量调和到目标维度. 维度一致或目标未设置时原样返回.
func (a *DimensionAdapter) Reconcile(vec []float64) []float64 {
	if a.target <= 0 || len(vec) == 0 || len(vec) == a.target {
		return vec
	}

	a.warnOnce.Do(func() {
		a.logger.Warn("embedding dimension mismatch, reconciling",
			zap.String("provider", a.inner.Name()),
			zap.Int("native", len(vec)),
			zap.Int("target", a.target),
			zap.String("strategy", string(a.strategy)),
		)
	})

	if len(vec) > a.target {
		out := make([]float64, a.target)
		copy(out, vec[:a.target])
		return out
	}

	out := make([]float64, a.target)
	switch a.strategy {
	case StrategyPad:
		copy(out, vec)
	default: // repeat
		for i := range out {
			out[i] = vec[i%len(vec)]
		}
	}
	return out
}

// ParseDimensionStrategy 校验并解析策略字符串.
func ParseDimensionStrategy(s string) (DimensionStrategy, error) {
	switch DimensionStrategy(s) {
	case StrategyRepeat, StrategyPad:
		return DimensionStrategy(s), nil
	case "":
		return StrategyRepeat, nil
	default:
		return "", fmt.Errorf("unknown dimension strategy: %q", s)
	}
}
