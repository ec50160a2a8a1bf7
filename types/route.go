package types

// Implementation names one of the two competing retrieval implementations.
type Implementation string

const (
	ImplementationV1 Implementation = "v1"
	ImplementationV2 Implementation = "v2"
)

// Other returns the fallback counterpart.
func (i Implementation) Other() Implementation {
	if i == ImplementationV1 {
		return ImplementationV2
	}
	return ImplementationV1
}

// ParallelComparison is the record produced when both implementations run
// side by side. Deltas follow the convention v2 minus v1.
type ParallelComparison struct {
	V1Succeeded      bool    `json:"v1_succeeded"`
	V2Succeeded      bool    `json:"v2_succeeded"`
	V1TimeMs         int64   `json:"v1_time_ms"`
	V2TimeMs         int64   `json:"v2_time_ms"`
	TimeDeltaMs      int64   `json:"time_delta_ms"`
	SimilarityDelta  float64 `json:"similarity_delta"`
	ResultCountDelta int     `json:"result_count_delta"`
}

// RouteDecision is the routing metadata attached to every response and fed
// to the metrics collector. Transient.
type RouteDecision struct {
	Implementation Implementation      `json:"implementation"`
	ResponseTimeMs int64               `json:"response_time_ms"`
	FromFallback   bool                `json:"from_fallback"`
	Parallel       *ParallelComparison `json:"parallel,omitempty"`
}
