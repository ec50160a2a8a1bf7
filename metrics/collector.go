package metrics

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kitadake/concierge/types"
)

// maxLatencySamples p95 采样上限, 超出时淘汰最旧的 10%。
const maxLatencySamples = 4096

// implStats 单个实现的累计样本。
type implStats struct {
	mu            sync.Mutex
	total         int64
	successes     int64
	failures      int64
	totalTimeMs   int64
	sumResults    int64
	sumSimilarity float64
	latenciesMs   []float64
}

func (s *implStats) observe(elapsed time.Duration, resultCount int, topSimilarity float64, success bool) {
	ms := float64(elapsed.Microseconds()) / 1000.0

	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	if success {
		s.successes++
		s.sumResults += int64(resultCount)
		s.sumSimilarity += topSimilarity
	} else {
		s.failures++
	}
	s.totalTimeMs += elapsed.Milliseconds()

	if len(s.latenciesMs) >= maxLatencySamples {
		s.latenciesMs = s.latenciesMs[maxLatencySamples/10:]
	}
	s.latenciesMs = append(s.latenciesMs, ms)
}

// snapshot 计算聚合视图。调用方不持锁。
func (s *implStats) snapshot(impl types.Implementation) ImplementationStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := ImplementationStats{Implementation: impl, TotalQueries: s.total}
	if s.total == 0 {
		return out
	}

	out.MeanTimeMs = float64(s.totalTimeMs) / float64(s.total)
	out.P95TimeMs = percentile(s.latenciesMs, 0.95)
	out.SuccessRate = float64(s.successes) / float64(s.total)
	if s.successes > 0 {
		out.MeanResultCount = float64(s.sumResults) / float64(s.successes)
		out.MeanSimilarity = s.sumSimilarity / float64(s.successes)
	}
	return out
}

// percentile 取序分位值, 样本为空时返回 0。
func percentile(samples []float64, q float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	idx := int(float64(len(sorted))*q+0.5) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// ImplementationStats 单个实现的聚合视图。
type ImplementationStats struct {
	Implementation  types.Implementation `json:"implementation"`
	TotalQueries    int64                `json:"total_queries"`
	MeanTimeMs      float64              `json:"mean_time_ms"`
	P95TimeMs       float64              `json:"p95_time_ms"`
	MeanResultCount float64              `json:"mean_result_count"`
	MeanSimilarity  float64              `json:"mean_similarity"`
	SuccessRate     float64              `json:"success_rate"`
}

// ComparisonReport 两实现的对照报告。改进率以 base 为基准,
// 正值表示 other 更好: 相似度越高越好, 响应时间越低越好。
type ComparisonReport struct {
	Base  ImplementationStats `json:"base"`
	Other ImplementationStats `json:"other"`

	TimeImprovementPct       float64 `json:"time_improvement_pct"`
	SimilarityImprovementPct float64 `json:"similarity_improvement_pct"`
	SuccessRateDeltaPct      float64 `json:"success_rate_delta_pct"`

	// 并行对照样本的直接统计
	Comparisons         int64   `json:"comparisons"`
	MeanTimeDeltaMs     float64 `json:"mean_time_delta_ms"`
	MeanSimilarityDelta float64 `json:"mean_similarity_delta"`
}

// Collector 按实现聚合检索观测样本。只做聚合, 永不影响选路。
type Collector struct {
	logger   *zap.Logger
	exporter *PromExporter // 可空

	mu    sync.RWMutex
	stats map[types.Implementation]*implStats

	cmpMu              sync.Mutex
	comparisons        int64
	sumTimeDeltaMs     int64
	sumSimilarityDelta float64
}

// NewCollector 创建收集器。exporter 可为 nil(不镜像 Prometheus)。
func NewCollector(exporter *PromExporter, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		logger:   logger.With(zap.String("component", "metrics")),
		exporter: exporter,
		stats:    make(map[types.Implementation]*implStats),
	}
}

func (c *Collector) statsFor(impl types.Implementation) *implStats {
	c.mu.RLock()
	s, ok := c.stats[impl]
	c.mu.RUnlock()
	if ok {
		return s
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok = c.stats[impl]; ok {
		return s
	}
	s = &implStats{}
	c.stats[impl] = s
	return s
}

// ObserveQuery 记录一次实际触达实现的检索调用。
func (c *Collector) ObserveQuery(impl types.Implementation, elapsed time.Duration, resultCount int, topSimilarity float64, success bool) {
	c.statsFor(impl).observe(elapsed, resultCount, topSimilarity, success)
	if c.exporter != nil {
		c.exporter.ObserveQuery(impl, elapsed, resultCount, topSimilarity, success)
	}
}

// ObserveComparison 记录一条并行对照样本。
func (c *Collector) ObserveComparison(cmp types.ParallelComparison) {
	c.cmpMu.Lock()
	c.comparisons++
	c.sumTimeDeltaMs += cmp.TimeDeltaMs
	c.sumSimilarityDelta += cmp.SimilarityDelta
	c.cmpMu.Unlock()

	if c.exporter != nil {
		c.exporter.ObserveComparison(cmp)
	}
}

// ObserveBreakerState 记录熔断器状态变更。
func (c *Collector) ObserveBreakerState(impl types.Implementation, state string) {
	c.logger.Info("breaker state sampled",
		zap.String("implementation", string(impl)),
		zap.String("state", state))
	if c.exporter != nil {
		c.exporter.ObserveBreakerState(impl, state)
	}
}

// Stats 返回单个实现的聚合视图。
func (c *Collector) Stats(impl types.Implementation) ImplementationStats {
	return c.statsFor(impl).snapshot(impl)
}

// Report 产出 base 与 other 的对照报告。
func (c *Collector) Report(base, other types.Implementation) ComparisonReport {
	report := ComparisonReport{
		Base:  c.Stats(base),
		Other: c.Stats(other),
	}

	// 响应时间越低越好
	if report.Base.MeanTimeMs > 0 {
		report.TimeImprovementPct = (report.Base.MeanTimeMs - report.Other.MeanTimeMs) / report.Base.MeanTimeMs * 100
	}
	// 相似度越高越好
	if report.Base.MeanSimilarity > 0 {
		report.SimilarityImprovementPct = (report.Other.MeanSimilarity - report.Base.MeanSimilarity) / report.Base.MeanSimilarity * 100
	}
	report.SuccessRateDeltaPct = (report.Other.SuccessRate - report.Base.SuccessRate) * 100

	c.cmpMu.Lock()
	defer c.cmpMu.Unlock()
	report.Comparisons = c.comparisons
	if c.comparisons > 0 {
		report.MeanTimeDeltaMs = float64(c.sumTimeDeltaMs) / float64(c.comparisons)
		report.MeanSimilarityDelta = c.sumSimilarityDelta / float64(c.comparisons)
	}
	return report
}
