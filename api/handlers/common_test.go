package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kitadake/concierge/internal/ctxkeys"
	"github.com/kitadake/concierge/types"
)

// =============================================================================
// 🧪 响应信封与请求解析测试
// =============================================================================

// decodeEnvelope 解析统一响应信封, 解析失败直接终止用例.
func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestWriteJSON(t *testing.T) {
	tests := []struct {
		name string
		data any
	}{
		{"object", map[string]string{"answer": "平日 9:00-21:00 です"}},
		{"array", []float32{0.12, -0.07, 0.33}},
		{"nil body", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteJSON(w, http.StatusOK, tt.data)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
			assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		})
	}
}

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccess(w, map[string]string{"category": "hours"})

	assert.Equal(t, http.StatusOK, w.Code)

	resp := decodeEnvelope(t, w)
	assert.True(t, resp.Success)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestWriteSuccessWithRequestID(t *testing.T) {
	t.Run("id present in context", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/api/v1/query", nil)
		r = r.WithContext(ctxkeys.WithRequestID(r.Context(), "req-42"))

		WriteSuccessWithRequestID(w, r, map[string]string{"answer": "はい、ドロップイン利用できます"})

		resp := decodeEnvelope(t, w)
		assert.True(t, resp.Success)
		assert.Equal(t, "req-42", resp.RequestID)
	})

	t.Run("id missing from context", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/api/v1/query", nil)

		WriteSuccessWithRequestID(w, r, "pong")

		resp := decodeEnvelope(t, w)
		assert.True(t, resp.Success)
		assert.Empty(t, resp.RequestID)
	})
}

func TestWriteError(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name       string
		err        *types.Error
		wantStatus int
	}{
		{"invalid request", types.NewError(types.ErrInvalidRequest, "query is required"), http.StatusBadRequest},
		{"rate limited", types.NewError(types.ErrRateLimited, "too many requests"), http.StatusTooManyRequests},
		{"embedding failed", types.NewError(types.ErrEmbeddingFailed, "embedding provider down"), http.StatusBadGateway},
		{"all implementations failed", types.NewError(types.ErrAllImplsFailed, "both retrievers down"), http.StatusServiceUnavailable},
		{"internal error", types.NewError(types.ErrInternalError, "database connection failed"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.err, logger)

			assert.Equal(t, tt.wantStatus, w.Code)

			resp := decodeEnvelope(t, w)
			assert.False(t, resp.Success)
			assert.Nil(t, resp.Data)
			require.NotNil(t, resp.Error)
			assert.Equal(t, string(tt.err.Code), resp.Error.Code)
			assert.NotEmpty(t, resp.Error.Message)
		})
	}
}

func TestWriteFailure(t *testing.T) {
	logger := zap.NewNop()

	t.Run("typed error keeps code and retryable flag", func(t *testing.T) {
		w := httptest.NewRecorder()
		err := types.NewError(types.ErrEmbeddingFailed, "embed query failed").WithRetryable(true)

		WriteFailure(w, err, logger)

		assert.Equal(t, http.StatusBadGateway, w.Code)
		resp := decodeEnvelope(t, w)
		assert.Equal(t, string(types.ErrEmbeddingFailed), resp.Error.Code)
		assert.True(t, resp.Error.Retryable)
	})

	t.Run("wrapped typed error is recovered", func(t *testing.T) {
		w := httptest.NewRecorder()
		inner := types.NewError(types.ErrRateLimited, "quota exhausted")

		WriteFailure(w, fmt.Errorf("embed stage: %w", inner), logger)

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		resp := decodeEnvelope(t, w)
		assert.Equal(t, string(types.ErrRateLimited), resp.Error.Code)
	})

	t.Run("opaque error is masked", func(t *testing.T) {
		w := httptest.NewRecorder()

		WriteFailure(w, errors.New("pq: connection refused"), logger)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		resp := decodeEnvelope(t, w)
		assert.Equal(t, string(types.ErrInternalError), resp.Error.Code)
		// 原始错误细节不外泄
		assert.Equal(t, "internal error", resp.Error.Message)
	})
}

func TestDecodeJSONBody(t *testing.T) {
	logger := zap.NewNop()

	type queryBody struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}

	tests := []struct {
		name    string
		body    string
		wantErr bool
		want    queryBody
	}{
		{
			name: "valid JSON",
			body: `{"query":"営業時間を教えて","limit":5}`,
			want: queryBody{Query: "営業時間を教えて", Limit: 5},
		},
		{name: "malformed JSON", body: `{"query":"x",}`, wantErr: true},
		{name: "unknown field", body: `{"query":"x","mode":"fast"}`, wantErr: true},
		{name: "trailing JSON value", body: `{"query":"a"} {"query":"b"}`, wantErr: true},
		{name: "body over 1 MB", body: `{"query":"` + strings.Repeat("x", 2<<20) + `"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/api/v1/query", strings.NewReader(tt.body))

			var got queryBody
			err := DecodeJSONBody(w, r, &got, logger)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateContentType(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name        string
		contentType string
		want        bool
	}{
		{"bare media type", "application/json", true},
		{"lowercase charset", "application/json; charset=utf-8", true},
		{"uppercase charset", "application/json; charset=UTF-8", true},
		{"extra whitespace", "application/json;  charset=utf-8", true},
		{"text/plain", "text/plain", false},
		{"missing header", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/api/v1/query", nil)
			r.Header.Set("Content-Type", tt.contentType)

			assert.Equal(t, tt.want, ValidateContentType(w, r, logger))
		})
	}
}

func TestResponseWriter(t *testing.T) {
	w := httptest.NewRecorder()
	rw := NewResponseWriter(w)

	// 初始状态: 未写入, 默认 200
	assert.Equal(t, http.StatusOK, rw.StatusCode)
	assert.False(t, rw.Written)

	// 首次 WriteHeader 生效, 后续调用忽略
	rw.WriteHeader(http.StatusCreated)
	rw.WriteHeader(http.StatusBadRequest)
	assert.Equal(t, http.StatusCreated, rw.StatusCode)
	assert.True(t, rw.Written)

	// Write 逐次累计字节数, 供访问日志与流量指标使用
	n, err := rw.Write([]byte("test"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, int64(4), rw.Bytes)

	_, err = rw.Write([]byte("more"))
	require.NoError(t, err)
	assert.Equal(t, int64(8), rw.Bytes)
}

func TestMapErrorCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code       types.ErrorCode
		wantStatus int
	}{
		// 客户端错误
		{types.ErrInvalidRequest, http.StatusBadRequest},
		{types.ErrUnauthorized, http.StatusUnauthorized},
		{types.ErrRateLimited, http.StatusTooManyRequests},
		// 上游与网关
		{types.ErrEmbeddingFailed, http.StatusBadGateway},
		{types.ErrUpstreamError, http.StatusBadGateway},
		{types.ErrUpstreamTimeout, http.StatusGatewayTimeout},
		// 服务不可用
		{types.ErrAllImplsFailed, http.StatusServiceUnavailable},
		{types.ErrMemoryUnavailable, http.StatusServiceUnavailable},
		{types.ErrServiceUnavailable, http.StatusServiceUnavailable},
		// 内部错误与未知码兜底
		{types.ErrRetrievalFailed, http.StatusInternalServerError},
		{types.ErrInternalError, http.StatusInternalServerError},
		{"UNKNOWN_CODE", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.wantStatus, mapErrorCodeToHTTPStatus(tt.code))
		})
	}
}
