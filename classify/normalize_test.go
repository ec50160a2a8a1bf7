package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize_SpeechCorrections(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"hours misrecognition", "エンジニアカフェの営業自慢は", "エンジニアカフェの営業時間は"},
		{"hours trailing particle", "営業時間見を教えて", "営業時間を教えて"},
		{"long vowel entity", "エンジニアカフェーの場所", "エンジニアカフェの場所"},
		{"saino homophone", "彩乃の料金", "サイノの料金"},
		{"wifi katakana", "ワイハイのパスワード", "wifiのパスワード"},
		{"meeting room homophone", "怪奇質はどこ", "会議室はどこ"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalize_WidthAndCase(t *testing.T) {
	// 全角 ASCII 折叠为半角并转小写
	assert.Equal(t, "wi-fi", Normalize("Ｗｉ－Ｆｉ"))
	// 半角片假名折叠为全角
	assert.Equal(t, "カフェ", Normalize("ｶﾌｪ"))
	// 前后空白被去除
	assert.Equal(t, "サイノ", Normalize("  サイノ "))
}

func TestNormalize_CorrectionAfterFolding(t *testing.T) {
	// 全角混入的误识别也会先折叠再纠正
	assert.Equal(t, "エンジニアカフェの営業時間は", Normalize("エンジニア　カフェの営業自慢は"))
}
