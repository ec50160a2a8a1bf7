package router

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kitadake/concierge/knowledge"
	"github.com/kitadake/concierge/types"
)

// 路由模式
const (
	ModeSingle   = "single"
	ModeParallel = "parallel"
)

// Searcher 是可被路由的检索实现, v1/v2 各提供一个。
type Searcher interface {
	Name() string
	Search(ctx context.Context, embedding []float64, opts knowledge.SearchOptions) ([]types.SearchResult, error)
}

// Recorder 消费路由产生的观测样本, 由指标收集器实现。
// 纯聚合, 任何实现都不得反过来影响选路。
type Recorder interface {
	ObserveQuery(impl types.Implementation, elapsed time.Duration, resultCount int, topSimilarity float64, success bool)
	ObserveComparison(cmp types.ParallelComparison)
	ObserveBreakerState(impl types.Implementation, state string)
}

// Config 路由配置
type Config struct {
	// Mode 基线模式: single / parallel。开关源可按会话进一步放量并行。
	Mode string

	// Breaker 每个实现各持一只熔断器, 共用此配置
	Breaker BreakerConfig
}

// RouteOptions 单次选路的参数。
type RouteOptions struct {
	// SessionID 分桶依据, 同一会话稳定命中同一实现
	SessionID string

	// Search 透传给检索实现的查询选项
	Search knowledge.SearchOptions
}

// RouteResult 一次选路的结果与元数据。
type RouteResult struct {
	Results            []types.SearchResult
	Implementation     types.Implementation
	ResponseTimeMs     int64
	FromCircuitBreaker bool
	Comparison         *types.ParallelComparison
}

// Decision 转换为响应与审计使用的路由决策元数据。
func (r *RouteResult) Decision() types.RouteDecision {
	return types.RouteDecision{
		Implementation: r.Implementation,
		ResponseTimeMs: r.ResponseTimeMs,
		FromFallback:   r.FromCircuitBreaker,
		Parallel:       r.Comparison,
	}
}

// Router 在两代检索实现之间选路。显式构造、按句柄传递, 无全局状态。
type Router struct {
	cfg      Config
	flags    FlagSource
	recorder Recorder
	logger   *zap.Logger

	searchers map[types.Implementation]Searcher
	breakers  map[types.Implementation]*Breaker
}

// New 创建路由器。recorder 可为 nil(不采样)。
func New(v1, v2 Searcher, flags FlagSource, recorder Recorder, cfg Config, logger *zap.Logger) (*Router, error) {
	if v1 == nil || v2 == nil {
		return nil, types.NewError(types.ErrInternalError, "router requires both retrieval implementations")
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeSingle
	}
	if cfg.Mode != ModeSingle && cfg.Mode != ModeParallel {
		return nil, types.NewError(types.ErrInternalError, "unknown router mode: "+cfg.Mode)
	}
	if flags == nil {
		flags = NewStaticFlags(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Router{
		cfg:      cfg,
		flags:    flags,
		recorder: recorder,
		logger:   logger.With(zap.String("component", "router")),
		searchers: map[types.Implementation]Searcher{
			types.ImplementationV1: v1,
			types.ImplementationV2: v2,
		},
	}
	r.breakers = map[types.Implementation]*Breaker{
		types.ImplementationV1: r.newBreaker(types.ImplementationV1),
		types.ImplementationV2: r.newBreaker(types.ImplementationV2),
	}
	return r, nil
}

func (r *Router) newBreaker(impl types.Implementation) *Breaker {
	bc := r.cfg.Breaker
	onChange := bc.OnStateChange
	bc.OnStateChange = func(from, to State) {
		r.logger.Info("breaker state changed",
			zap.String("implementation", string(impl)),
			zap.String("from", from.String()),
			zap.String("to", to.String()))
		if r.recorder != nil {
			r.recorder.ObserveBreakerState(impl, to.String())
		}
		if onChange != nil {
			onChange(from, to)
		}
	}
	return NewBreaker(string(impl), bc, r.logger)
}

// Route 执行一次选路检索。embedding 为已向量化的查询。
func (r *Router) Route(ctx context.Context, embedding []float64, opts RouteOptions) (*RouteResult, error) {
	if len(embedding) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "query embedding cannot be empty")
	}
	if r.parallelEnabled(ctx, opts.SessionID) {
		return r.routeParallel(ctx, embedding, opts)
	}
	return r.routeSingle(ctx, embedding, opts)
}

// BreakerStates 返回各实现当前的熔断状态, 供健康检查暴露。
func (r *Router) BreakerStates() map[types.Implementation]string {
	states := make(map[types.Implementation]string, len(r.breakers))
	for impl, b := range r.breakers {
		states[impl] = b.State().String()
	}
	return states
}

func (r *Router) parallelEnabled(ctx context.Context, sessionID string) bool {
	if r.cfg.Mode == ModeParallel {
		return true
	}
	return r.flags.Bool(ctx, FlagParallel, sessionID)
}

// pick 按会话分桶选择主实现。
func (r *Router) pick(ctx context.Context, sessionID string) types.Implementation {
	pct := r.flags.Percentage(ctx, FlagV2Percentage)
	if Bucket(sessionID) < pct {
		return types.ImplementationV2
	}
	return types.ImplementationV1
}

// attempt 经熔断器执行一次检索并采样。熔断拒绝的调用未触达实现,
// 不计入样本。
func (r *Router) attempt(ctx context.Context, impl types.Implementation, embedding []float64, opts knowledge.SearchOptions) ([]types.SearchResult, time.Duration, error) {
	start := time.Now()
	var results []types.SearchResult
	err := r.breakers[impl].Call(ctx, func() error {
		res, searchErr := r.searchers[impl].Search(ctx, embedding, opts)
		if searchErr != nil {
			return searchErr
		}
		results = res
		return nil
	})
	elapsed := time.Since(start)

	if r.recorder != nil && !errors.Is(err, ErrCircuitOpen) {
		r.recorder.ObserveQuery(impl, elapsed, len(results), topSimilarity(results), err == nil)
	}
	return results, elapsed, err
}

// routeSingle 单实现模式: 主实现失败或熔断打开时无条件降级一跳。
func (r *Router) routeSingle(ctx context.Context, embedding []float64, opts RouteOptions) (*RouteResult, error) {
	primary := r.pick(ctx, opts.SessionID)

	results, elapsed, err := r.attempt(ctx, primary, embedding, opts.Search)
	if err == nil {
		return &RouteResult{
			Results:        results,
			Implementation: primary,
			ResponseTimeMs: elapsed.Milliseconds(),
		}, nil
	}

	fallback := primary.Other()
	r.logger.Warn("primary implementation unavailable, falling back",
		zap.String("primary", string(primary)),
		zap.String("fallback", string(fallback)),
		zap.Bool("circuit_open", errors.Is(err, ErrCircuitOpen)),
		zap.Error(err))

	fbResults, fbElapsed, fbErr := r.attempt(ctx, fallback, embedding, opts.Search)
	if fbErr != nil {
		return nil, types.Wrap(types.ErrAllImplsFailed, "both retrieval implementations failed", fbErr)
	}
	return &RouteResult{
		Results:            fbResults,
		Implementation:     fallback,
		ResponseTimeMs:     fbElapsed.Milliseconds(),
		FromCircuitBreaker: true,
	}, nil
}

// routeParallel 并行模式: 两路各自计时, allSettled 语义收集,
// 一路失败不取消另一路; v1 为基准, 成功即优先返回。
func (r *Router) routeParallel(ctx context.Context, embedding []float64, opts RouteOptions) (*RouteResult, error) {
	type branch struct {
		impl    types.Implementation
		results []types.SearchResult
		elapsed time.Duration
		err     error
	}
	branches := [2]branch{
		{impl: types.ImplementationV1},
		{impl: types.ImplementationV2},
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range branches {
		b := &branches[i]
		g.Go(func() error {
			b.results, b.elapsed, b.err = r.attempt(gctx, b.impl, embedding, opts.Search)
			return nil // 不让 errgroup 提前终止
		})
	}
	_ = g.Wait()

	v1, v2 := &branches[0], &branches[1]
	cmp := &types.ParallelComparison{
		V1Succeeded:      v1.err == nil,
		V2Succeeded:      v2.err == nil,
		V1TimeMs:         v1.elapsed.Milliseconds(),
		V2TimeMs:         v2.elapsed.Milliseconds(),
		TimeDeltaMs:      v2.elapsed.Milliseconds() - v1.elapsed.Milliseconds(),
		SimilarityDelta:  topSimilarity(v2.results) - topSimilarity(v1.results),
		ResultCountDelta: len(v2.results) - len(v1.results),
	}
	if r.recorder != nil {
		r.recorder.ObserveComparison(*cmp)
	}

	winner := v1
	if v1.err != nil {
		if v2.err != nil {
			r.logger.Error("both parallel branches failed",
				zap.Error(v1.err),
				zap.NamedError("v2_error", v2.err))
			return nil, types.Wrap(types.ErrAllImplsFailed, "both retrieval implementations failed", v1.err)
		}
		winner = v2
	}
	return &RouteResult{
		Results:        winner.results,
		Implementation: winner.impl,
		ResponseTimeMs: winner.elapsed.Milliseconds(),
		Comparison:     cmp,
	}, nil
}

// topSimilarity 取已排序结果的首条相似度, 空集为 0。
func topSimilarity(results []types.SearchResult) float64 {
	if len(results) == 0 {
		return 0
	}
	return results[0].Similarity
}
