package embedding

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited 用令牌桶限流包装嵌入提供者, 保护上游配额.
// 每次 Embed 调用消耗一个令牌, 超额时阻塞等待而不是直接失败,
// 上下文取消会中断等待.
type RateLimited struct {
	inner   Provider
	limiter *rate.Limiter
}

// NewRateLimited 创建限流装饰器. rps <= 0 时不限流.
func NewRateLimited(inner Provider, rps float64, burst int) *RateLimited {
	var limiter *rate.Limiter
	if rps > 0 {
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return &RateLimited{inner: inner, limiter: limiter}
}

func (r *RateLimited) Name() string      { return r.inner.Name() }
func (r *RateLimited) Dimensions() int   { return r.inner.Dimensions() }
func (r *RateLimited) MaxBatchSize() int { return r.inner.MaxBatchSize() }

func (r *RateLimited) wait(ctx context.Context) error {
	if r.limiter == nil {
		return nil
	}
	return r.limiter.Wait(ctx)
}

// Embed 在获取令牌后转发请求.
func (r *RateLimited) Embed(ctx context.Context, req *Request) (*Response, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.Embed(ctx, req)
}

// EmbedQuery 在获取令牌后嵌入单个查询.
func (r *RateLimited) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.EmbedQuery(ctx, query)
}

// EmbedDocuments 在获取令牌后嵌入多个文档.
func (r *RateLimited) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.EmbedDocuments(ctx, documents)
}
