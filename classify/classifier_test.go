package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kitadake/concierge/types"
)

func newTestClassifier() *Classifier {
	return New(DefaultConfig(), zap.NewNop())
}

// --- 规则表测试 ---

func TestClassifier_Classify(t *testing.T) {
	c := newTestClassifier()

	tests := []struct {
		name         string
		text         string
		wantCategory string
		wantTopic    string
		wantEntity   string
	}{
		{
			name:         "specific entity with hours",
			text:         "エンジニアカフェの営業時間は？",
			wantCategory: "engineer-cafe-hours",
			wantTopic:    types.CategoryHours,
			wantEntity:   types.EntityEngineerCafe,
		},
		{
			name:         "saino hours",
			text:         "サイノの営業時間を教えて",
			wantCategory: "saino-hours",
			wantTopic:    types.CategoryHours,
			wantEntity:   types.EntitySaino,
		},
		{
			name:         "saino pricing",
			text:         "サイノの料金はいくら？",
			wantCategory: "saino-pricing",
			wantTopic:    types.CategoryPricing,
			wantEntity:   types.EntitySaino,
		},
		{
			name:         "meeting room with floor qualifier",
			text:         "2階の会議室を予約したい",
			wantCategory: types.EntityMeetingRoom2F,
			wantTopic:    types.CategoryFacilities,
			wantEntity:   types.EntityMeetingRoom2F,
		},
		{
			name:         "meeting room basement qualifier",
			text:         "地下の会議室は空いてますか",
			wantCategory: types.EntityMeetingRoomBasement,
			wantTopic:    types.CategoryFacilities,
			wantEntity:   types.EntityMeetingRoomBasement,
		},
		{
			name:         "bare entity",
			text:         "エンジニアカフェってどんなところ？",
			wantCategory: types.EntityEngineerCafe,
			wantEntity:   types.EntityEngineerCafe,
		},
		{
			name:         "events keyword wins first",
			text:         "今週のイベントはありますか",
			wantCategory: types.CategoryEvents,
			wantTopic:    types.CategoryEvents,
		},
		{
			name:         "generic pricing",
			text:         "利用料金について知りたい",
			wantCategory: types.CategoryPricing,
			wantTopic:    types.CategoryPricing,
		},
		{
			name:         "generic wifi",
			text:         "Ｗｉ－Ｆｉはありますか",
			wantCategory: types.CategoryWifi,
			wantTopic:    types.CategoryWifi,
		},
		{
			name:         "english hours with entity",
			text:         "What are the Engineer Cafe opening hours?",
			wantCategory: "engineer-cafe-hours",
			wantTopic:    types.CategoryHours,
			wantEntity:   types.EntityEngineerCafe,
		},
		{
			name:         "fallback to general",
			text:         "こんにちは",
			wantCategory: types.CategoryGeneral,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := c.Classify(tt.text, nil)
			assert.Equal(t, tt.wantCategory, res.Category.String())
			assert.Equal(t, tt.wantTopic, res.Topic)
			assert.Equal(t, tt.wantEntity, res.Entity)
			assert.False(t, res.Category.NeedsClarification())
			assert.Equal(t, tt.text, res.Query)
		})
	}
}

// --- 歧义检测测试 ---

func TestClassifier_AmbiguousFacility(t *testing.T) {
	c := newTestClassifier()

	// 通用词「カフェ」缺少限定词：必须返回需要澄清的分类，而不是 hours
	res := c.Classify("カフェの営業時間は？", nil)
	require.True(t, res.Category.NeedsClarification())
	assert.Equal(t, types.ClarificationFacility, res.Category.Clarification)
	assert.Equal(t, "facility-clarification-needed", res.Category.String())

	// 有限定词时正常分类
	res = c.Classify("エンジニアカフェの営業時間は？", nil)
	assert.False(t, res.Category.NeedsClarification())
}

func TestClassifier_AmbiguousMeetingRoom(t *testing.T) {
	c := newTestClassifier()

	res := c.Classify("会議室を借りたいのですが", nil)
	require.True(t, res.Category.NeedsClarification())
	assert.Equal(t, types.ClarificationMeetingRoom, res.Category.Clarification)

	res = c.Classify("meeting room on the second floor", nil)
	assert.False(t, res.Category.NeedsClarification())
	assert.Equal(t, types.EntityMeetingRoom2F, res.Entity)
}

// --- 上下文回复测试 ---

func clarificationTurns() []types.ConversationTurn {
	return []types.ConversationTurn{
		{
			Role:        types.RoleAssistant,
			Content:     "[confused] どちらについてお尋ねですか？ 1) エンジニアカフェ 2) サイノカフェ",
			RequestType: RequestTypeClarification,
		},
		{
			Role:    types.RoleUser,
			Content: "カフェの営業時間は？",
		},
	}
}

func TestClassifier_ContextualResponse(t *testing.T) {
	c := newTestClassifier()

	res := c.Classify("サイノの方は？", clarificationTurns())

	require.True(t, res.Contextual)
	assert.Equal(t, types.CategoryHours, res.Inherited)
	assert.Equal(t, "saino-hours", res.Category.String())
	assert.Equal(t, types.CategoryHours, res.Topic)
	assert.Equal(t, types.EntitySaino, res.Entity)
	// 有效检索文本必须包含恢复的原始问题
	assert.Contains(t, res.Query, "サイノ")
	assert.Contains(t, res.Query, "営業時間")
}

func TestClassifier_ContextualNeedsRecentClarification(t *testing.T) {
	c := newTestClassifier()

	// 没有澄清提问时，短回复按普通查询处理
	res := c.Classify("サイノの方は？", []types.ConversationTurn{
		{Role: types.RoleUser, Content: "カフェの営業時間は？"},
	})

	assert.False(t, res.Contextual)
	assert.Equal(t, types.EntitySaino, res.Entity)
}

func TestClassifier_LongQueryIgnoresContext(t *testing.T) {
	c := newTestClassifier()

	// 完整的问题即使紧跟澄清提问也不按上下文回复处理
	res := c.Classify("エンジニアカフェの営業時間を教えてください", clarificationTurns())

	assert.False(t, res.Contextual)
	assert.Equal(t, "engineer-cafe-hours", res.Category.String())
}

func TestClassifier_ContextualWithoutRecoverableQuestion(t *testing.T) {
	c := newTestClassifier()

	turns := []types.ConversationTurn{
		{Role: types.RoleAssistant, Content: "どちらの会議室でしょうか", RequestType: RequestTypeClarification},
	}

	// 恢复不到原始问题时退化为普通分类
	res := c.Classify("2階のほう", turns)
	assert.False(t, res.Contextual)
}
