package handlers

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kitadake/concierge/audit"
	"github.com/kitadake/concierge/metrics"
	"github.com/kitadake/concierge/router"
	"github.com/kitadake/concierge/types"
)

// =============================================================================
// 📊 实验管理接口 Handler
// =============================================================================

// auditQueryLimit 审计查询的默认与最大返回条数
const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// ExperimentStats A/B 实验统计响应
type ExperimentStats struct {
	V1       metrics.ImplementationStats     `json:"v1"`
	V2       metrics.ImplementationStats     `json:"v2"`
	Report   metrics.ComparisonReport        `json:"report"`
	Breakers map[types.Implementation]string `json:"breakers"`
}

// AdminHandler 实验统计与审计查询处理器
type AdminHandler struct {
	collector *metrics.Collector
	router    *router.Router
	sink      *audit.Sink
	logger    *zap.Logger
}

// NewAdminHandler 创建管理处理器
func NewAdminHandler(collector *metrics.Collector, rt *router.Router, sink *audit.Sink, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		collector: collector,
		router:    rt,
		sink:      sink,
		logger:    logger,
	}
}

// HandleStats 处理实验统计请求
// @Summary 实验统计
// @Description 返回 v1/v2 两套检索实现的聚合指标、对照报告与熔断状态
// @Tags 管理
// @Produce json
// @Success 200 {object} Response "统计响应"
// @Security BearerAuth
// @Router /v1/admin/stats [get]
func (h *AdminHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats := ExperimentStats{
		V1:     h.collector.Stats(types.ImplementationV1),
		V2:     h.collector.Stats(types.ImplementationV2),
		Report: h.collector.Report(types.ImplementationV1, types.ImplementationV2),
	}
	if h.router != nil {
		stats.Breakers = h.router.BreakerStates()
	}

	WriteSuccess(w, stats)
}

// HandleAudit 处理审计查询请求
// @Summary 审计查询
// @Description 按事件类型、会话与时间窗口查询审计记录
// @Tags 管理
// @Produce json
// @Param type query string false "事件类型（query / comparison / clarification / promotion）"
// @Param session_id query string false "会话 ID"
// @Param since query string false "起始时间（RFC3339）"
// @Param limit query int false "返回条数上限, 默认 50"
// @Success 200 {object} Response "审计事件列表"
// @Failure 400 {object} Response "无效请求"
// @Failure 503 {object} Response "审计未启用"
// @Security BearerAuth
// @Router /v1/admin/audit [get]
func (h *AdminHandler) HandleAudit(w http.ResponseWriter, r *http.Request) {
	if h.sink == nil {
		WriteError(w, types.NewError(types.ErrServiceUnavailable, "audit sink not configured"), h.logger)
		return
	}

	filter, terr := h.parseAuditFilter(r)
	if terr != nil {
		WriteError(w, terr, h.logger)
		return
	}

	events, err := h.sink.Query(r.Context(), filter)
	if err != nil {
		WriteFailure(w, err, h.logger)
		return
	}

	WriteSuccess(w, events)
}

// parseAuditFilter 从查询参数解析审计过滤条件
func (h *AdminHandler) parseAuditFilter(r *http.Request) (audit.Filter, *types.Error) {
	q := r.URL.Query()

	filter := audit.Filter{
		Type:      audit.EventType(q.Get("type")),
		SessionID: q.Get("session_id"),
		Limit:     defaultAuditLimit,
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return filter, types.NewError(types.ErrInvalidRequest, "limit must be a positive integer")
		}
		if limit > maxAuditLimit {
			limit = maxAuditLimit
		}
		filter.Limit = limit
	}

	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, types.NewError(types.ErrInvalidRequest, "since must be RFC3339 formatted")
		}
		filter.Since = &since
	}

	return filter, nil
}
