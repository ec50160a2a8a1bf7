package types

// Importance is the metadata-driven priority tier of a knowledge entry,
// used to bias result ordering independent of similarity score.
type Importance string

const (
	ImportanceCritical    Importance = "critical"
	ImportanceHigh        Importance = "high"
	ImportanceMedium      Importance = "medium"
	ImportanceLow         Importance = "low"
	ImportanceUnspecified Importance = ""
)

// Rank maps an importance tier to an ordinal. Higher ranks sort first;
// unknown values rank with unspecified.
func (i Importance) Rank() int {
	switch i {
	case ImportanceCritical:
		return 4
	case ImportanceHigh:
		return 3
	case ImportanceMedium:
		return 2
	case ImportanceLow:
		return 1
	default:
		return 0
	}
}

// KnowledgeEntry is one corpus record. Entries are authored by the
// external content-management service and read-only to this core.
type KnowledgeEntry struct {
	ID          string         `json:"id"`
	Content     string         `json:"content"`
	Embedding   []float64      `json:"embedding,omitempty"`
	Language    Language       `json:"language"`
	Category    string         `json:"category"`
	Subcategory string         `json:"subcategory,omitempty"`
	Importance  Importance     `json:"importance,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// DedupeKey is the coarse identity used when merging result sets from
// multi-language searches.
func (e KnowledgeEntry) DedupeKey() string {
	return e.Category + "/" + e.Subcategory
}

// SearchResult pairs a corpus entry with its similarity to the query
// embedding and the rank assigned by the priority scorer. Transient,
// produced per query, never persisted.
type SearchResult struct {
	Entry         KnowledgeEntry `json:"entry"`
	Similarity    float64        `json:"similarity"`
	PriorityScore float64        `json:"priority_score,omitempty"`
}
