package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/kitadake/concierge/types"
)

// Namespace 所有指标的 Prometheus 命名空间。
const Namespace = "concierge"

// PromExporter 将检索观测镜像为 Prometheus 指标。
type PromExporter struct {
	queriesTotal      *prometheus.CounterVec
	queryDuration     *prometheus.HistogramVec
	resultCount       *prometheus.HistogramVec
	topSimilarity     *prometheus.HistogramVec
	comparisonsTotal  prometheus.Counter
	timeDeltaMs       prometheus.Histogram
	similarityDelta   prometheus.Histogram
	breakerState      *prometheus.GaugeVec
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// NewPromExporter 注册并返回指标镜像。reg 为空时使用默认注册表。
func NewPromExporter(reg prometheus.Registerer) *PromExporter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PromExporter{
		queriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "retrieval_queries_total",
				Help:      "Total number of retrieval queries per implementation",
			},
			[]string{"implementation", "status"},
		),
		queryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "retrieval_duration_seconds",
				Help:      "Retrieval duration in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"implementation"},
		),
		resultCount: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "retrieval_results",
				Help:      "Number of results returned per query",
				Buckets:   prometheus.LinearBuckets(0, 1, 11),
			},
			[]string{"implementation"},
		),
		topSimilarity: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "retrieval_top_similarity",
				Help:      "Top result similarity per query",
				Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
			},
			[]string{"implementation"},
		),
		comparisonsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "parallel_comparisons_total",
				Help:      "Total number of parallel comparison runs",
			},
		),
		timeDeltaMs: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "parallel_time_delta_ms",
				Help:      "Response time delta (v2 minus v1) in milliseconds",
				Buckets:   []float64{-1000, -500, -250, -100, -50, -10, 0, 10, 50, 100, 250, 500, 1000},
			},
		),
		similarityDelta: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "parallel_similarity_delta",
				Help:      "Top similarity delta (v2 minus v1)",
				Buckets:   []float64{-0.5, -0.25, -0.1, -0.05, 0, 0.05, 0.1, 0.25, 0.5},
			},
		),
		breakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "breaker_state",
				Help:      "Circuit breaker state per implementation (0=closed, 1=open, 2=half-open)",
			},
			[]string{"implementation"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

// ObserveQuery 镜像一次检索调用。
func (e *PromExporter) ObserveQuery(impl types.Implementation, elapsed time.Duration, resultCount int, topSimilarity float64, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	e.queriesTotal.WithLabelValues(string(impl), status).Inc()
	e.queryDuration.WithLabelValues(string(impl)).Observe(elapsed.Seconds())
	if success {
		e.resultCount.WithLabelValues(string(impl)).Observe(float64(resultCount))
		e.topSimilarity.WithLabelValues(string(impl)).Observe(topSimilarity)
	}
}

// ObserveComparison 镜像一条并行对照样本。
func (e *PromExporter) ObserveComparison(cmp types.ParallelComparison) {
	e.comparisonsTotal.Inc()
	e.timeDeltaMs.Observe(float64(cmp.TimeDeltaMs))
	e.similarityDelta.Observe(cmp.SimilarityDelta)
}

// ObserveBreakerState 镜像熔断器状态。
func (e *PromExporter) ObserveBreakerState(impl types.Implementation, state string) {
	var v float64
	switch state {
	case "open":
		v = 1
	case "half-open":
		v = 2
	}
	e.breakerState.WithLabelValues(string(impl)).Set(v)
}

// RecordHTTPRequest 记录 HTTP 请求, 供服务中间件调用。
func (e *PromExporter) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	e.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	e.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
