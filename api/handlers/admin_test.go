package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kitadake/concierge/audit"
	"github.com/kitadake/concierge/knowledge"
	"github.com/kitadake/concierge/metrics"
	"github.com/kitadake/concierge/router"
	"github.com/kitadake/concierge/types"
)

// =============================================================================
// 🧪 测试辅助类型
// =============================================================================

// noopSearcher 空检索实现, 仅用于组装路由器
type noopSearcher struct {
	name string
}

func (s *noopSearcher) Name() string { return s.name }

func (s *noopSearcher) Search(ctx context.Context, embedding []float64, opts knowledge.SearchOptions) ([]types.SearchResult, error) {
	return nil, nil
}

func newSeededCollector(t *testing.T) *metrics.Collector {
	t.Helper()
	collector := metrics.NewCollector(nil, nil)
	collector.ObserveQuery(types.ImplementationV1, 30*time.Millisecond, 3, 0.82, true)
	collector.ObserveQuery(types.ImplementationV1, 40*time.Millisecond, 2, 0.78, true)
	collector.ObserveQuery(types.ImplementationV2, 20*time.Millisecond, 3, 0.91, true)
	return collector
}

// =============================================================================
// 🧪 AdminHandler 测试
// =============================================================================

func TestAdminHandler_HandleStats(t *testing.T) {
	collector := newSeededCollector(t)

	rt, err := router.New(
		&noopSearcher{name: "v1"},
		&noopSearcher{name: "v2"},
		nil, nil,
		router.Config{Mode: router.ModeSingle},
		zap.NewNop(),
	)
	require.NoError(t, err)

	handler := NewAdminHandler(collector, rt, nil, zap.NewNop())

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/v1/admin/stats", nil)

	handler.HandleStats(w, r)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)

	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var stats ExperimentStats
	require.NoError(t, json.Unmarshal(raw, &stats))

	assert.Equal(t, int64(2), stats.V1.TotalQueries)
	assert.Equal(t, int64(1), stats.V2.TotalQueries)
	// 两只熔断器初始均为闭合
	assert.Equal(t, "closed", stats.Breakers[types.ImplementationV1])
	assert.Equal(t, "closed", stats.Breakers[types.ImplementationV2])
}

func TestAdminHandler_HandleStats_WithoutRouter(t *testing.T) {
	handler := NewAdminHandler(newSeededCollector(t), nil, nil, zap.NewNop())

	w := httptest.NewRecorder()
	handler.HandleStats(w, httptest.NewRequest(http.MethodGet, "/v1/admin/stats", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
}

func TestAdminHandler_HandleAudit(t *testing.T) {
	backend := audit.NewMemoryBackend(100)
	sink := audit.NewSink(backend, audit.Config{}, zap.NewNop())

	sink.Record(&audit.Event{Type: audit.EventQuery, SessionID: "s1", Query: "営業時間は？"})
	sink.Record(&audit.Event{Type: audit.EventQuery, SessionID: "s2", Query: "location?"})
	sink.Record(&audit.Event{Type: audit.EventClarification, SessionID: "s1"})

	// 排空队列后再查询
	require.NoError(t, sink.Close())

	handler := NewAdminHandler(metrics.NewCollector(nil, nil), nil, sink, zap.NewNop())

	t.Run("filter by type", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/v1/admin/audit?type=query", nil)

		handler.HandleAudit(w, r)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp Response
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))

		raw, err := json.Marshal(resp.Data)
		require.NoError(t, err)
		var events []audit.Event
		require.NoError(t, json.Unmarshal(raw, &events))
		assert.Len(t, events, 2)
	})

	t.Run("filter by session", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/v1/admin/audit?session_id=s1", nil)

		handler.HandleAudit(w, r)

		var resp Response
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))

		raw, err := json.Marshal(resp.Data)
		require.NoError(t, err)
		var events []audit.Event
		require.NoError(t, json.Unmarshal(raw, &events))
		assert.Len(t, events, 2)
	})

	t.Run("invalid limit", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/v1/admin/audit?limit=abc", nil)

		handler.HandleAudit(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid since", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/v1/admin/audit?since=yesterday", nil)

		handler.HandleAudit(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAdminHandler_HandleAudit_SinkNotConfigured(t *testing.T) {
	handler := NewAdminHandler(metrics.NewCollector(nil, nil), nil, nil, zap.NewNop())

	w := httptest.NewRecorder()
	handler.HandleAudit(w, httptest.NewRequest(http.MethodGet, "/v1/admin/audit", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, string(types.ErrServiceUnavailable), resp.Error.Code)
}
