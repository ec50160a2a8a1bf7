package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kitadake/concierge/api"
	"github.com/kitadake/concierge/pipeline"
	"github.com/kitadake/concierge/types"
)

// =============================================================================
// 🔍 知识查询接口 Handler
// =============================================================================

// QueryService 查询处理器依赖的最小服务面
type QueryService interface {
	Respond(ctx context.Context, req pipeline.Request) (*pipeline.Response, error)
}

// QueryHandler 知识查询接口处理器
type QueryHandler struct {
	service QueryService
	logger  *zap.Logger
}

// NewQueryHandler 创建查询处理器
func NewQueryHandler(service QueryService, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{
		service: service,
		logger:  logger,
	}
}

// HandleQuery 处理知识查询请求
// @Summary 知识查询
// @Description 对知识库执行一次语言检测、分类与向量检索
// @Tags 查询
// @Accept json
// @Produce json
// @Param request body api.QueryRequest true "查询请求"
// @Success 200 {object} Response "查询响应"
// @Failure 400 {object} Response "无效请求"
// @Failure 502 {object} Response "向量化失败"
// @Failure 503 {object} Response "检索实现全部不可用"
// @Security BearerAuth
// @Router /v1/query [post]
func (h *QueryHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	// 验证 Content-Type
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	// 解码请求
	var req api.QueryRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	// 验证请求
	if err := h.validateQueryRequest(&req); err != nil {
		WriteError(w, err, h.logger)
		return
	}

	// 执行查询流水线
	start := time.Now()
	resp, err := h.service.Respond(r.Context(), h.convertToPipelineRequest(&req))
	duration := time.Since(start)

	if err != nil {
		WriteFailure(w, err, h.logger)
		return
	}

	// 记录日志
	h.logger.Info("knowledge query",
		zap.String("session_id", req.SessionID),
		zap.String("language", string(resp.Language)),
		zap.String("category", resp.Category),
		zap.Bool("needs_clarification", resp.NeedsClarification),
		zap.Int("results", len(resp.Results)),
		zap.Duration("duration", duration),
	)

	WriteSuccessWithRequestID(w, r, resp)
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// validateQueryRequest 验证查询请求
func (h *QueryHandler) validateQueryRequest(req *api.QueryRequest) *types.Error {
	if req.Query == "" {
		return types.NewError(types.ErrInvalidRequest, "query is required")
	}

	// 验证阈值参数
	if req.Threshold < 0 || req.Threshold > 1 {
		return types.NewError(types.ErrInvalidRequest, "threshold must be between 0 and 1")
	}

	// 验证条数上限
	if req.Limit < 0 {
		return types.NewError(types.ErrInvalidRequest, "limit must not be negative")
	}

	return nil
}

// convertToPipelineRequest 转换为流水线请求
func (h *QueryHandler) convertToPipelineRequest(req *api.QueryRequest) pipeline.Request {
	return pipeline.Request{
		Query:     req.Query,
		Language:  types.Language(req.Language),
		Category:  req.Category,
		SessionID: req.SessionID,
		Limit:     req.Limit,
		Threshold: req.Threshold,
	}
}
