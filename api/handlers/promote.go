package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/kitadake/concierge/api"
	"github.com/kitadake/concierge/audit"
	"github.com/kitadake/concierge/internal/ctxkeys"
	"github.com/kitadake/concierge/memory"
	"github.com/kitadake/concierge/types"
)

// =============================================================================
// 📌 记忆晋升接口 Handler
// =============================================================================

// PromoteHandler 记忆晋升接口处理器
type PromoteHandler struct {
	memory *memory.Memory
	sink   *audit.Sink
	logger *zap.Logger
}

// NewPromoteHandler 创建晋升处理器。sink 可为 nil, 此时不记审计。
func NewPromoteHandler(mem *memory.Memory, sink *audit.Sink, logger *zap.Logger) *PromoteHandler {
	return &PromoteHandler{
		memory: mem,
		sink:   sink,
		logger: logger,
	}
}

// HandlePromote 处理记忆晋升请求
// @Summary 记忆晋升
// @Description 将会话中的重要信息从 TTL 记忆晋升到持久存储
// @Tags 记忆
// @Accept json
// @Produce json
// @Param request body api.PromoteRequest true "晋升请求"
// @Success 200 {object} Response "晋升结果"
// @Failure 400 {object} Response "无效请求"
// @Failure 503 {object} Response "持久层不可用"
// @Security BearerAuth
// @Router /v1/promote [post]
func (h *PromoteHandler) HandlePromote(w http.ResponseWriter, r *http.Request) {
	// 验证 Content-Type
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	// 解码请求
	var req api.PromoteRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	// 验证请求
	if err := h.validatePromoteRequest(&req); err != nil {
		WriteError(w, err, h.logger)
		return
	}

	// 写入持久层
	if err := h.memory.Promote(r.Context(), req.SessionID, req.Key, req.Data, req.Reason); err != nil {
		WriteFailure(w, err, h.logger)
		return
	}

	// 异步审计
	if h.sink != nil {
		ev := &audit.Event{
			Type:      audit.EventPromotion,
			SessionID: req.SessionID,
			Metadata: map[string]string{
				"key":    req.Key,
				"reason": req.Reason,
			},
		}
		if id, ok := ctxkeys.RequestID(r.Context()); ok {
			ev.RequestID = id
		}
		h.sink.Record(ev)
	}

	h.logger.Info("memory promotion accepted",
		zap.String("session_id", req.SessionID),
		zap.String("key", req.Key),
	)

	WriteSuccessWithRequestID(w, r, map[string]interface{}{
		"promoted": true,
		"key":      req.Key,
	})
}

// validatePromoteRequest 验证晋升请求
func (h *PromoteHandler) validatePromoteRequest(req *api.PromoteRequest) *types.Error {
	if req.SessionID == "" {
		return types.NewError(types.ErrInvalidRequest, "session_id is required")
	}
	if req.Key == "" {
		return types.NewError(types.ErrInvalidRequest, "key is required")
	}
	if len(req.Data) == 0 {
		return types.NewError(types.ErrInvalidRequest, "data is required")
	}
	return nil
}
