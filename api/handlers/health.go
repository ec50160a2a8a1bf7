package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// 🏥 健康检查 Handler
// =============================================================================

// readyCheckTimeout 就绪检查的总超时
const readyCheckTimeout = 5 * time.Second

// HealthCheck 可插拔就绪检查
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// HealthHandler 健康检查处理器
type HealthHandler struct {
	logger  *zap.Logger
	started time.Time

	mu     sync.RWMutex
	checks []HealthCheck
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		logger:  logger,
		started: time.Now(),
	}
}

// RegisterCheck 注册就绪检查。活跃度探针不受影响。
func (h *HealthHandler) RegisterCheck(check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check)
}

func (h *HealthHandler) uptime() string {
	return time.Since(h.started).Round(time.Second).String()
}

// =============================================================================
// 📦 响应结构
// =============================================================================

// HealthStatus 健康状态响应
type HealthStatus struct {
	Status    string                 `json:"status"` // "healthy", "unhealthy"
	Timestamp time.Time              `json:"timestamp"`
	Uptime    string                 `json:"uptime,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult 单个检查结果
type CheckResult struct {
	Status  string `json:"status"` // "pass", "fail"
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// VersionInfo 构建信息
type VersionInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
}

// =============================================================================
// 🎯 HTTP 处理程序
// =============================================================================

// HandleHealth 处理 /health 与 /healthz 请求（活跃度探针）
// @Summary 健康检查
// @Description 活跃度探针, 只确认进程在运行, 不触碰任何依赖
// @Tags 健康
// @Produce json
// @Success 200 {object} HealthStatus "服务正常"
// @Router /healthz [get]
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Uptime:    h.uptime(),
	})
}

// HandleReady 处理 /ready 请求（就绪检查）
// @Summary 准备情况检查
// @Description 并发探测已注册依赖（Redis、数据库、向量库）, 任一失败返回 503
// @Tags 健康
// @Produce json
// @Success 200 {object} HealthStatus "服务已准备就绪"
// @Failure 503 {object} HealthStatus "服务尚未准备好"
// @Router /ready [get]
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
	defer cancel()

	results, healthy := h.runChecks(ctx)

	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Uptime:    h.uptime(),
		Checks:    results,
	}
	if !healthy {
		status.Status = "unhealthy"
		WriteJSON(w, http.StatusServiceUnavailable, status)
		return
	}

	WriteJSON(w, http.StatusOK, status)
}

// runChecks 并发执行全部就绪检查; 依赖探测互不相干,
// 总延迟取最慢一项而非各项之和.
func (h *HealthHandler) runChecks(ctx context.Context) (map[string]CheckResult, bool) {
	h.mu.RLock()
	checks := make([]HealthCheck, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	results := make([]CheckResult, len(checks))
	var g errgroup.Group
	for i, check := range checks {
		g.Go(func() error {
			start := time.Now()
			err := check.Check(ctx)
			latency := time.Since(start)

			if err != nil {
				results[i] = CheckResult{
					Status:  "fail",
					Message: err.Error(),
					Latency: latency.String(),
				}
				h.logger.Warn("readiness check failed",
					zap.String("check", check.Name()),
					zap.Error(err),
					zap.Duration("latency", latency),
				)
				return err
			}

			results[i] = CheckResult{
				Status:  "pass",
				Latency: latency.String(),
			}
			return nil
		})
	}
	healthy := g.Wait() == nil

	out := make(map[string]CheckResult, len(checks))
	for i, check := range checks {
		out[check.Name()] = results[i]
	}
	return out, healthy
}

// HandleVersion 处理 /version 请求
// @Summary 版本信息
// @Description 返回构建版本信息
// @Tags 健康
// @Produce json
// @Success 200 {object} VersionInfo "版本信息"
// @Router /version [get]
func (h *HealthHandler) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	info := VersionInfo{
		Version:   version,
		BuildTime: buildTime,
		GitCommit: gitCommit,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		WriteSuccess(w, info)
	}
}

// =============================================================================
// 🔧 内置健康检查实现
// =============================================================================

// namedCheck 把探活函数适配成 HealthCheck
type namedCheck struct {
	name string
	fn   func(ctx context.Context) error
}

func (c namedCheck) Name() string                    { return c.name }
func (c namedCheck) Check(ctx context.Context) error { return c.fn(ctx) }

// NewPingCheck 把任意 ping 函数包装成就绪检查, 适配 Redis、
// 数据库连接池与向量库等一切能被探活的依赖。
func NewPingCheck(name string, ping func(ctx context.Context) error) HealthCheck {
	return namedCheck{name: name, fn: ping}
}
