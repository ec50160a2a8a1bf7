package types

import "strings"

// clarificationSuffix is the legacy wire form for categories that need a
// follow-up question. It survives only in String/ParseCategory; in-process
// callers branch on NeedsClarification instead.
const clarificationSuffix = "-clarification-needed"

// ClarificationKind names the ambiguity behind a clarification request.
type ClarificationKind string

const (
	// ClarificationNone marks a normal category.
	ClarificationNone ClarificationKind = ""
	// ClarificationFacility covers generic facility terms that match more
	// than one venue (a bare "cafe" means either the main facility or the
	// attached cafe counter).
	ClarificationFacility ClarificationKind = "facility"
	// ClarificationMeetingRoom covers meeting-room questions lacking a
	// floor designation.
	ClarificationMeetingRoom ClarificationKind = "meeting-room"
)

// Category is the classifier outcome: either a normal category name or a
// request for clarification of a given kind. The zero value is the general
// category.
type Category struct {
	Name          string            `json:"name,omitempty"`
	Clarification ClarificationKind `json:"clarification,omitempty"`
}

// NormalCategory builds a plain category.
func NormalCategory(name string) Category {
	return Category{Name: name}
}

// ClarificationCategory builds a category that requires a follow-up
// question before retrieval can proceed.
func ClarificationCategory(kind ClarificationKind) Category {
	return Category{Clarification: kind}
}

// NeedsClarification reports whether the pipeline must short-circuit to a
// clarification response instead of searching.
func (c Category) NeedsClarification() bool {
	return c.Clarification != ClarificationNone
}

// IsGeneral reports whether the category carries no routing information.
func (c Category) IsGeneral() bool {
	return !c.NeedsClarification() && (c.Name == "" || c.Name == CategoryGeneral)
}

// String renders the wire form consumed by downstream presentation logic.
func (c Category) String() string {
	if c.NeedsClarification() {
		return string(c.Clarification) + clarificationSuffix
	}
	if c.Name == "" {
		return CategoryGeneral
	}
	return c.Name
}

// ParseCategory is the inverse of String.
func ParseCategory(s string) Category {
	if kind, ok := strings.CutSuffix(s, clarificationSuffix); ok {
		return ClarificationCategory(ClarificationKind(kind))
	}
	return NormalCategory(s)
}

// Canonical topic categories shared by the classifier, the corpus schema,
// and the priority scorer's entity tables.
const (
	CategoryGeneral    = "general"
	CategoryEvents     = "events"
	CategoryHours      = "hours"
	CategoryPricing    = "pricing"
	CategoryLocation   = "location"
	CategoryFacilities = "facilities"
	CategoryAccess     = "access"
	CategoryWifi       = "wifi"
)

// Known venue entities referenced by compound categories and the priority
// scorer. EntityMeetingRoom2F and EntityMeetingRoomBasement are the two
// referents behind the meeting-room clarification.
const (
	EntityEngineerCafe        = "engineer-cafe"
	EntitySaino               = "saino"
	EntityMeetingRoom2F       = "meeting-room-2f"
	EntityMeetingRoomBasement = "meeting-room-basement"
)

// CompoundCategory joins an entity with a topic ("saino" + "hours" →
// "saino-hours"). Either part may be empty.
func CompoundCategory(entity, topic string) string {
	switch {
	case entity == "":
		return topic
	case topic == "":
		return entity
	default:
		return entity + "-" + topic
	}
}
