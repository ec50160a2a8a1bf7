package types

import (
	"time"

	"github.com/google/uuid"
)

// Language identifies the language of a query or knowledge entry.
type Language string

const (
	LanguageJapanese Language = "ja"
	LanguageEnglish  Language = "en"
)

// Other returns the counterpart language used for cross-language search.
func (l Language) Other() Language {
	if l == LanguageJapanese {
		return LanguageEnglish
	}
	return LanguageJapanese
}

// Query is an immutable per-request question. Produced once per incoming
// request and passed through the pipeline unchanged.
type Query struct {
	ID               string    `json:"id"`
	Text             string    `json:"text"`
	DetectedLanguage Language  `json:"detected_language"`
	SessionID        string    `json:"session_id"`
	CategoryHint     string    `json:"category_hint,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// NewQuery creates a Query with a fresh ID and the current time.
func NewQuery(text, sessionID string) Query {
	return Query{
		ID:        uuid.NewString(),
		Text:      text,
		SessionID: sessionID,
		Timestamp: time.Now(),
	}
}

// Role identifies the speaker of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is a single exchange stored in conversation memory.
// Turns expire after the memory TTL unless explicitly promoted.
type ConversationTurn struct {
	ID          string    `json:"id"`
	Role        Role      `json:"role"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	Emotion     string    `json:"emotion,omitempty"`
	Confidence  float64   `json:"confidence,omitempty"`
	RequestType string    `json:"request_type,omitempty"`
}

// Age returns how long ago the turn was recorded.
func (t ConversationTurn) Age(now time.Time) time.Duration {
	return now.Sub(t.Timestamp)
}

// Expired reports whether the turn has outlived the given TTL.
func (t ConversationTurn) Expired(now time.Time, ttl time.Duration) bool {
	return t.Age(now) > ttl
}
