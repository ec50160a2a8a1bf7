package language

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kitadake/concierge/types"
)

func TestDetector_Detect(t *testing.T) {
	d := NewDetector(types.LanguageJapanese)

	tests := []struct {
		name string
		text string
		want types.Language
	}{
		{"japanese question", "エンジニアカフェの営業時間は？", types.LanguageJapanese},
		{"japanese hiragana only", "こんにちは", types.LanguageJapanese},
		{"japanese kanji heavy", "会議室の料金について", types.LanguageJapanese},
		{"english question", "What are the opening hours?", types.LanguageEnglish},
		{"english short", "wifi password please", types.LanguageEnglish},
		{"mixed script prefers japanese", "Wi-Fiのパスワードは？", types.LanguageJapanese},
		{"single katakana word", "サイノ", types.LanguageJapanese},
		{"empty falls back to primary", "", types.LanguageJapanese},
		{"digits only fall back to primary", "12345", types.LanguageJapanese},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.Detect(tt.text)
			assert.Equal(t, tt.want, got.Language)
			assert.GreaterOrEqual(t, got.Confidence, 0.0)
			assert.LessOrEqual(t, got.Confidence, exactMatchConfidence)
		})
	}
}

func TestDetector_ExactMatches(t *testing.T) {
	d := NewDetector(types.LanguageJapanese)

	tests := []struct {
		text string
		want types.Language
	}{
		{"english", types.LanguageEnglish},
		{"English", types.LanguageEnglish},
		{" ENGLISH ", types.LanguageEnglish},
		{"英語", types.LanguageEnglish},
		{"日本語", types.LanguageJapanese},
		{"japanese", types.LanguageJapanese},
	}

	for _, tt := range tests {
		got := d.Detect(tt.text)
		assert.Equal(t, tt.want, got.Language, "text %q", tt.text)
		assert.Equal(t, exactMatchConfidence, got.Confidence, "text %q", tt.text)
	}
}

func TestDetector_JapaneseScriptBeatsEnglish(t *testing.T) {
	d := NewDetector(types.LanguageJapanese)

	// A mostly-English sentence with a single Japanese particle still
	// resolves to Japanese.
	got := d.Detect("meeting room の reservation")
	assert.Equal(t, types.LanguageJapanese, got.Language)
	assert.Positive(t, got.JapaneseScore)
	assert.Positive(t, got.EnglishScore)
}

func TestDetector_ConfidenceCap(t *testing.T) {
	d := NewDetector(types.LanguageJapanese)

	// Pure Japanese: the ratio is 1 but confidence stays capped.
	got := d.Detect("営業時間を教えてください")
	assert.Equal(t, maxConfidence, got.Confidence)

	// Fallback path uses a fixed low confidence.
	got = d.Detect("...")
	assert.Equal(t, 0.5, got.Confidence)
}

func TestDetector_EnglishPrimaryFallback(t *testing.T) {
	d := NewDetector(types.LanguageEnglish)

	got := d.Detect("!!!")
	assert.Equal(t, types.LanguageEnglish, got.Language)
}
