// Package language decides the language of a free-text query using
// character-class and lexical heuristics. Detection is pure and always
// returns a best guess; there are no error states.
package language

import (
	"strings"
	"unicode"

	"github.com/kitadake/concierge/types"
)

// maxConfidence caps the ratio-derived confidence; only exact-match
// overrides may exceed it.
const maxConfidence = 0.95

// exactMatchConfidence is the fixed confidence for bare language names.
const exactMatchConfidence = 0.99

// Detection is the outcome of a single detection pass.
type Detection struct {
	Language      types.Language `json:"language"`
	Confidence    float64        `json:"confidence"`
	JapaneseScore int            `json:"japanese_score"`
	EnglishScore  int            `json:"english_score"`
}

// exactMatches maps bare language names to a forced outcome. A visitor
// answering "English" to a language prompt must not be scored as an
// English sentence about nothing.
var exactMatches = map[string]types.Language{
	"english":  types.LanguageEnglish,
	"英語":       types.LanguageEnglish,
	"えいご":      types.LanguageEnglish,
	"japanese": types.LanguageJapanese,
	"日本語":      types.LanguageJapanese,
	"にほんご":     types.LanguageJapanese,
}

// englishStopwords are lexical anchors counted once per occurrence.
var englishStopwords = []string{
	"the", "is", "are", "what", "where", "when", "how", "much",
	"can", "does", "do", "open", "please", "about",
}

// Detector scores text against Japanese-script and English lexical
// heuristics. The zero value is not usable; construct with NewDetector.
type Detector struct {
	primary types.Language
}

// NewDetector creates a detector that falls back to the given primary
// language when no signal is present.
func NewDetector(primary types.Language) *Detector {
	if primary == "" {
		primary = types.LanguageJapanese
	}
	return &Detector{primary: primary}
}

// Detect scores the text and returns the winning language. Any non-zero
// Japanese-script score beats English, except for exact-match single
// words. Identical input always yields an identical Detection.
func (d *Detector) Detect(text string) Detection {
	trimmed := strings.ToLower(strings.TrimSpace(text))
	if lang, ok := exactMatches[trimmed]; ok {
		det := Detection{Language: lang, Confidence: exactMatchConfidence}
		det.JapaneseScore, det.EnglishScore = scoreJapanese(text), scoreEnglish(trimmed)
		return det
	}

	ja := scoreJapanese(text)
	en := scoreEnglish(trimmed)

	switch {
	case ja > 0:
		return Detection{
			Language:      types.LanguageJapanese,
			Confidence:    ratioConfidence(ja, en),
			JapaneseScore: ja,
			EnglishScore:  en,
		}
	case en > 0:
		return Detection{
			Language:      types.LanguageEnglish,
			Confidence:    ratioConfidence(en, ja),
			JapaneseScore: ja,
			EnglishScore:  en,
		}
	default:
		// No signal at all: punctuation, digits, emoji. Assume the
		// facility's primary language.
		return Detection{Language: d.primary, Confidence: 0.5}
	}
}

// ratioConfidence maps the winner's share of the total score onto
// (0, maxConfidence]. Monotonic in the ratio.
func ratioConfidence(winner, loser int) float64 {
	ratio := float64(winner) / float64(winner+loser)
	if ratio > maxConfidence {
		return maxConfidence
	}
	return ratio
}

// scoreJapanese counts hiragana, katakana, kanji, and Japanese
// punctuation runes.
func scoreJapanese(text string) int {
	score := 0
	for _, r := range text {
		switch {
		case unicode.In(r, unicode.Hiragana):
			score++
		case unicode.In(r, unicode.Katakana):
			score++
		case unicode.In(r, unicode.Han):
			score++
		case r >= 0x3000 && r <= 0x303F: // CJK punctuation: 、。「」・
			score++
		case r == 'ー' || r == '？' || r == '！':
			score++
		}
	}
	return score
}

// scoreEnglish counts Latin letters plus one hit per stop word. The text
// must already be lower-cased.
func scoreEnglish(lower string) int {
	score := 0
	for _, r := range lower {
		if r >= 'a' && r <= 'z' {
			score++
		}
	}
	for _, w := range englishStopwords {
		score += strings.Count(lower, w)
	}
	return score
}
