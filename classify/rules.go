package classify

import (
	"strings"

	"github.com/kitadake/concierge/types"
)

// rule is one ordered classification check. Evaluation walks the table
// top-down and the first match wins, so specificity is encoded by
// position: events, then entity+topic pairs, then bare entities, then
// ambiguous terms, then generic topics.
type rule struct {
	category types.Category
	topic    string
	entity   string

	// any fires the rule when one keyword is present.
	any []string
	// all requires at least one keyword from every group.
	all [][]string
	// absent vetoes the rule when any keyword is present. Used by
	// ambiguity rules: a qualifier kills the clarification.
	absent []string
}

// matches evaluates the rule against normalized text.
func (r rule) matches(text string) bool {
	for _, kw := range r.absent {
		if strings.Contains(text, kw) {
			return false
		}
	}
	for _, group := range r.all {
		if !containsAny(text, group) {
			return false
		}
	}
	if len(r.any) > 0 {
		return containsAny(text, r.any)
	}
	return len(r.all) > 0
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// Keyword groups shared across rules. All entries are matched against
// width-folded, lower-cased text, so ASCII keywords stay lower case.
var (
	kwEngineerCafe = []string{"エンジニアカフェ", "engineer cafe", "engineercafe"}
	kwSaino        = []string{"サイノ", "saino"}
	kwMeetingRoom  = []string{"会議室", "ミーティングルーム", "meeting room", "meetingroom"}
	kwFloor2       = []string{"2階", "二階", "2f", "second floor"}
	kwBasement     = []string{"地下", "b1", "basement"}

	kwEvents = []string{
		"イベント", "講演", "セミナー", "ワークショップ", "勉強会", "催し",
		"event", "workshop", "seminar", "meetup",
	}
	kwHours = []string{
		"営業時間", "営業", "開館", "閉館", "何時まで", "何時から",
		"hours", "open", "close", "closing",
	}
	kwPricing = []string{
		"料金", "値段", "価格", "いくら", "費用", "有料", "無料",
		"price", "cost", "fee", "charge", "how much", "free",
	}
	kwLocation = []string{
		"場所", "どこにある", "住所", "所在地",
		"location", "address", "where is",
	}
	kwFacilities = []string{
		"設備", "施設", "機材", "電源", "モニター", "3dプリンタ",
		"facilities", "equipment", "printer",
	}
	kwAccess = []string{
		"行き方", "アクセス", "最寄り", "地下鉄", "バス",
		"access", "directions", "station", "how to get",
	}
	kwWifi = []string{
		"wifi", "wi-fi", "ワイファイ", "無線lan", "インターネット", "internet",
	}
)

// builtinRules is the single consolidated ruleset covering both
// languages. Category ownership lives here and nowhere else.
var builtinRules = []rule{
	// --- 日历 / 活动 ---
	{
		category: types.NormalCategory(types.CategoryEvents),
		topic:    types.CategoryEvents,
		any:      kwEvents,
	},

	// --- 特定场馆 + 主题（最具体的组合） ---
	{
		category: types.NormalCategory(types.CompoundCategory(types.EntityEngineerCafe, types.CategoryHours)),
		topic:    types.CategoryHours,
		entity:   types.EntityEngineerCafe,
		all:      [][]string{kwEngineerCafe, kwHours},
	},
	{
		category: types.NormalCategory(types.CompoundCategory(types.EntitySaino, types.CategoryHours)),
		topic:    types.CategoryHours,
		entity:   types.EntitySaino,
		all:      [][]string{kwSaino, kwHours},
	},
	{
		category: types.NormalCategory(types.CompoundCategory(types.EntityEngineerCafe, types.CategoryPricing)),
		topic:    types.CategoryPricing,
		entity:   types.EntityEngineerCafe,
		all:      [][]string{kwEngineerCafe, kwPricing},
	},
	{
		category: types.NormalCategory(types.CompoundCategory(types.EntitySaino, types.CategoryPricing)),
		topic:    types.CategoryPricing,
		entity:   types.EntitySaino,
		all:      [][]string{kwSaino, kwPricing},
	},
	{
		category: types.NormalCategory(types.EntityMeetingRoom2F),
		topic:    types.CategoryFacilities,
		entity:   types.EntityMeetingRoom2F,
		all:      [][]string{kwMeetingRoom, kwFloor2},
	},
	{
		category: types.NormalCategory(types.EntityMeetingRoomBasement),
		topic:    types.CategoryFacilities,
		entity:   types.EntityMeetingRoomBasement,
		all:      [][]string{kwMeetingRoom, kwBasement},
	},

	// --- 仅特定场馆 ---
	{
		category: types.NormalCategory(types.EntityEngineerCafe),
		entity:   types.EntityEngineerCafe,
		any:      kwEngineerCafe,
	},
	{
		category: types.NormalCategory(types.EntitySaino),
		entity:   types.EntitySaino,
		any:      kwSaino,
	},

	// --- 歧义场馆词（缺少限定词，需要澄清） ---
	{
		category: types.ClarificationCategory(types.ClarificationFacility),
		any:      []string{"カフェ", "cafe", "喫茶"},
		absent:   []string{"エンジニア", "engineer", "サイノ", "saino"},
	},
	{
		category: types.ClarificationCategory(types.ClarificationMeetingRoom),
		any:      kwMeetingRoom,
		absent:   append(append([]string{}, kwFloor2...), kwBasement...),
	},

	// --- 通用主题 ---
	{
		category: types.NormalCategory(types.CategoryPricing),
		topic:    types.CategoryPricing,
		any:      kwPricing,
	},
	{
		category: types.NormalCategory(types.CategoryHours),
		topic:    types.CategoryHours,
		any:      kwHours,
	},
	{
		category: types.NormalCategory(types.CategoryWifi),
		topic:    types.CategoryWifi,
		any:      kwWifi,
	},
	{
		category: types.NormalCategory(types.CategoryLocation),
		topic:    types.CategoryLocation,
		any:      kwLocation,
	},
	{
		category: types.NormalCategory(types.CategoryFacilities),
		topic:    types.CategoryFacilities,
		any:      kwFacilities,
	},
	{
		category: types.NormalCategory(types.CategoryAccess),
		topic:    types.CategoryAccess,
		any:      kwAccess,
	},
}
