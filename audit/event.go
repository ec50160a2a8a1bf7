package audit

import (
	"time"

	"github.com/kitadake/concierge/types"
)

// EventType 审计事件类型
type EventType string

const (
	// EventQuery 一次完成的检索查询(含路由决策)
	EventQuery EventType = "query"
	// EventComparison 一条并行对照记录
	EventComparison EventType = "comparison"
	// EventClarification 一次澄清短路(未走向量检索)
	EventClarification EventType = "clarification"
	// EventPromotion 一次会话记忆晋升
	EventPromotion EventType = "promotion"
)

// Event 一条审计记录。
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`

	SessionID string `json:"session_id,omitempty"`
	RequestID string `json:"request_id,omitempty"`

	// 查询上下文
	Query    string `json:"query,omitempty"`
	Language string `json:"language,omitempty"`
	Category string `json:"category,omitempty"`

	// 路由与对照
	Decision   *types.RouteDecision      `json:"decision,omitempty"`
	Comparison *types.ParallelComparison `json:"comparison,omitempty"`

	// 结果概要
	ResultCount   int     `json:"result_count,omitempty"`
	TopSimilarity float64 `json:"top_similarity,omitempty"`

	Error    string            `json:"error,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Filter 审计查询过滤条件。零值字段不过滤。
type Filter struct {
	Type      EventType  `json:"type,omitempty"`
	SessionID string     `json:"session_id,omitempty"`
	Since     *time.Time `json:"since,omitempty"`
	Until     *time.Time `json:"until,omitempty"`
	Limit     int        `json:"limit,omitempty"`
}

func (f Filter) matches(ev *Event) bool {
	if f.Type != "" && ev.Type != f.Type {
		return false
	}
	if f.SessionID != "" && ev.SessionID != f.SessionID {
		return false
	}
	if f.Since != nil && ev.Timestamp.Before(*f.Since) {
		return false
	}
	if f.Until != nil && ev.Timestamp.After(*f.Until) {
		return false
	}
	return true
}
