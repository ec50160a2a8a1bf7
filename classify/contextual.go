package classify

import (
	"strings"
	"unicode/utf8"

	"github.com/kitadake/concierge/types"
)

// RequestTypeClarification tags assistant turns that asked the visitor to
// disambiguate. The pipeline writes it; detection reads it back.
const RequestTypeClarification = "clarification"

// clarificationMarkers identify a clarification question by text alone,
// for turns written by older revisions that did not tag request types.
var clarificationMarkers = []string{
	"どちらについて", "どちらの", "どちらでしょうか",
	"which one", "which of",
}

// interrogatives signal that a user turn was a question. Used when
// recovering the original intent behind a short clarification answer.
var interrogatives = []string{
	"何", "なに", "いつ", "どこ", "誰", "だれ", "なぜ", "どう", "いくら", "何時",
	"what", "when", "where", "who", "why", "how",
}

// hasRecentClarification reports whether one of the last window assistant
// turns asked a clarification question.
func hasRecentClarification(turns []types.ConversationTurn, window int) bool {
	seen := 0
	for _, turn := range turns {
		if turn.Role != types.RoleAssistant {
			continue
		}
		if turn.RequestType == RequestTypeClarification {
			return true
		}
		for _, marker := range clarificationMarkers {
			if strings.Contains(turn.Content, marker) {
				return true
			}
		}
		seen++
		if seen >= window {
			break
		}
	}
	return false
}

// recoverOriginalQuestion scores recent user turns and returns the one
// most likely to be the question the clarification interrupted. A short
// answer like "the second floor one" carries no retrievable semantics on
// its own, so retrieval needs the recovered question merged back in.
func recoverOriginalQuestion(current string, turns []types.ConversationTurn) (types.ConversationTurn, bool) {
	var best types.ConversationTurn
	bestScore := 0

	for _, turn := range turns {
		if turn.Role != types.RoleUser || turn.Content == current {
			continue
		}
		score := questionScore(turn.Content)
		if score > bestScore {
			best = turn
			bestScore = score
		}
	}

	return best, bestScore > 0
}

// questionScore weighs question markers, interrogative words, and length.
func questionScore(text string) int {
	score := 0
	if strings.ContainsAny(text, "？?") {
		score += 3
	}
	lower := strings.ToLower(text)
	for _, w := range interrogatives {
		if strings.Contains(lower, w) {
			score += 2
		}
	}
	if bonus := utf8.RuneCountInString(text) / 8; bonus > 0 {
		if bonus > 3 {
			bonus = 3
		}
		score += bonus
	}
	return score
}

// topicOf extracts the first generic topic mentioned in normalized text,
// independent of entity or ambiguity handling. It is how a recovered
// question donates its request type to a follow-up answer.
func topicOf(normalized string) string {
	ordered := []struct {
		topic    string
		keywords []string
	}{
		{types.CategoryEvents, kwEvents},
		{types.CategoryPricing, kwPricing},
		{types.CategoryHours, kwHours},
		{types.CategoryWifi, kwWifi},
		{types.CategoryLocation, kwLocation},
		{types.CategoryFacilities, kwFacilities},
		{types.CategoryAccess, kwAccess},
	}
	for _, entry := range ordered {
		if containsAny(normalized, entry.keywords) {
			return entry.topic
		}
	}
	return ""
}
