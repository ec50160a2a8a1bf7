package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kitadake/concierge/internal/ctxkeys"
	"github.com/kitadake/concierge/pipeline"
	"github.com/kitadake/concierge/types"
)

// =============================================================================
// 🧪 测试辅助类型
// =============================================================================

// stubQueryService 固定返回值的查询服务
type stubQueryService struct {
	resp    *pipeline.Response
	err     error
	lastReq pipeline.Request
	calls   int
}

func (s *stubQueryService) Respond(ctx context.Context, req pipeline.Request) (*pipeline.Response, error) {
	s.lastReq = req
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

func newQueryRequest(t *testing.T, body string) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

// =============================================================================
// 🧪 QueryHandler 测试
// =============================================================================

func TestQueryHandler_HandleQuery(t *testing.T) {
	service := &stubQueryService{
		resp: &pipeline.Response{
			Query:    "エンジニアカフェの営業時間は？",
			Language: types.LanguageJapanese,
			Category: "engineer-cafe-hours",
			Context:  "エンジニアカフェは9時から22時まで営業しています。",
			Results: []types.SearchResult{
				{Entry: types.KnowledgeEntry{ID: "kb-1"}, Similarity: 0.93},
			},
		},
	}
	handler := NewQueryHandler(service, zap.NewNop())

	w := httptest.NewRecorder()
	r := newQueryRequest(t, `{
		"query": "エンジニアカフェの営業時間は？",
		"session_id": "sess-1",
		"language": "ja",
		"limit": 3,
		"threshold": 0.7
	}`)

	handler.HandleQuery(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, service.calls)

	// 请求字段完整传入流水线
	assert.Equal(t, "エンジニアカフェの営業時間は？", service.lastReq.Query)
	assert.Equal(t, "sess-1", service.lastReq.SessionID)
	assert.Equal(t, types.LanguageJapanese, service.lastReq.Language)
	assert.Equal(t, 3, service.lastReq.Limit)
	assert.InDelta(t, 0.7, service.lastReq.Threshold, 1e-9)

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)

	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var payload pipeline.Response
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, "engineer-cafe-hours", payload.Category)
	assert.Len(t, payload.Results, 1)
}

func TestQueryHandler_HandleQuery_EchoesRequestID(t *testing.T) {
	service := &stubQueryService{resp: &pipeline.Response{Language: types.LanguageJapanese}}
	handler := NewQueryHandler(service, zap.NewNop())

	w := httptest.NewRecorder()
	r := newQueryRequest(t, `{"query":"コワーキングの料金は？"}`)
	r = r.WithContext(ctxkeys.WithRequestID(r.Context(), "req-echo-1"))

	handler.HandleQuery(w, r)

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "req-echo-1", resp.RequestID)
}

func TestQueryHandler_HandleQuery_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "missing query",
			body: `{"session_id":"sess-1"}`,
		},
		{
			name: "threshold above one",
			body: `{"query":"営業時間は？","threshold":1.5}`,
		},
		{
			name: "threshold negative",
			body: `{"query":"営業時間は？","threshold":-0.1}`,
		},
		{
			name: "negative limit",
			body: `{"query":"営業時間は？","limit":-3}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := &stubQueryService{resp: &pipeline.Response{}}
			handler := NewQueryHandler(service, zap.NewNop())

			w := httptest.NewRecorder()
			handler.HandleQuery(w, newQueryRequest(t, tt.body))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Zero(t, service.calls, "validation failure must not reach the pipeline")

			var resp Response
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.False(t, resp.Success)
			assert.Equal(t, string(types.ErrInvalidRequest), resp.Error.Code)
		})
	}
}

func TestQueryHandler_HandleQuery_RejectsWrongContentType(t *testing.T) {
	service := &stubQueryService{resp: &pipeline.Response{}}
	handler := NewQueryHandler(service, zap.NewNop())

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(`{"query":"x"}`))
	r.Header.Set("Content-Type", "text/plain")

	handler.HandleQuery(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, service.calls)
}

func TestQueryHandler_HandleQuery_MapsPipelineErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "embedding failure",
			err:        types.NewError(types.ErrEmbeddingFailed, "embed query failed").WithRetryable(true),
			wantStatus: http.StatusBadGateway,
			wantCode:   string(types.ErrEmbeddingFailed),
		},
		{
			name:       "all implementations failed",
			err:        types.NewError(types.ErrAllImplsFailed, "v1 and v2 both failed"),
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   string(types.ErrAllImplsFailed),
		},
		{
			name:       "invalid request from pipeline",
			err:        types.NewError(types.ErrInvalidRequest, "query is empty"),
			wantStatus: http.StatusBadRequest,
			wantCode:   string(types.ErrInvalidRequest),
		},
		{
			name:       "opaque error hidden as internal",
			err:        errors.New("nil map write"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   string(types.ErrInternalError),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := &stubQueryService{err: tt.err}
			handler := NewQueryHandler(service, zap.NewNop())

			w := httptest.NewRecorder()
			handler.HandleQuery(w, newQueryRequest(t, `{"query":"営業時間は？"}`))

			assert.Equal(t, tt.wantStatus, w.Code)

			var resp Response
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.False(t, resp.Success)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}
