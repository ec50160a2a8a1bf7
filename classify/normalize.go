package classify

import (
	"strings"

	"golang.org/x/text/width"
)

// sttCorrections rewrites common speech-to-text misrecognitions before
// rule matching. Longer forms come first so partial rewrites cannot
// shadow them. The pairs were collected from transcription logs of the
// voice front-end.
var sttCorrections = [][2]string{
	{"営業時間見", "営業時間"},
	{"営業自慢", "営業時間"},
	{"エンジニアカフェー", "エンジニアカフェ"},
	{"エンジニヤカフェ", "エンジニアカフェ"},
	{"エンジニア カフェ", "エンジニアカフェ"},
	{"サイノー", "サイノ"},
	{"彩乃", "サイノ"},
	{"最能", "サイノ"},
	{"ワイハイ", "wifi"},
	{"ウィフィ", "wifi"},
	{"怪奇質", "会議室"},
}

// Normalize prepares raw query text for keyword matching: folds character
// width (full-width ASCII to narrow, half-width katakana to wide),
// applies speech-to-text corrections, and lower-cases Latin script.
func Normalize(text string) string {
	folded := width.Fold.String(text)
	for _, pair := range sttCorrections {
		folded = strings.ReplaceAll(folded, pair[0], pair[1])
	}
	return strings.ToLower(strings.TrimSpace(folded))
}
