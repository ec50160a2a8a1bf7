package pipeline

import "github.com/kitadake/concierge/types"

// EmotionCurious 澄清消息携带的情绪。消息文本以 "[curious]" 形式的
// 前导 token 呈现, 由下游展示层解析消费。
const EmotionCurious = "curious"

// emotionPrefix 渲染消息开头的情绪标记 token。
func emotionPrefix(emotion string) string {
	return "[" + emotion + "]"
}

// clarificationMessage 返回带情绪标记和两个编号候选项的澄清文案。
// 文案中的措辞同时是后续轮次识别澄清的文本锚点, 改动前先确认
// classify 的标记词表。
func clarificationMessage(kind types.ClarificationKind, lang types.Language) string {
	prefix := emotionPrefix(EmotionCurious) + " "
	switch kind {
	case types.ClarificationMeetingRoom:
		if lang == types.LanguageEnglish {
			return prefix + "There are two meeting rooms, on the second floor and in the basement. Could you tell me which one you need?\n" +
				"1. Second-floor meeting space\n" +
				"2. Basement meeting room"
		}
		return prefix + "会議室は2階と地下の2か所にございます。どちらの会議室についてお尋ねでしょうか？\n" +
			"1. 2階ミーティングスペース\n" +
			"2. 地下ミーティングルーム"
	default:
		if lang == types.LanguageEnglish {
			return prefix + "We have two cafes here. Could you tell me which one you mean?\n" +
				"1. Engineer Cafe (the coworking space)\n" +
				"2. Saino (the attached cafe)"
		}
		return prefix + "カフェというと2つの場所がございます。どちらについてお尋ねでしょうか？\n" +
			"1. エンジニアカフェ（コワーキングスペース）\n" +
			"2. 併設カフェ「サイノ」"
	}
}

// noInformationMessage 返回空结果集的默认文案。
func noInformationMessage(lang types.Language) string {
	if lang == types.LanguageEnglish {
		return "I'm sorry, I couldn't find any information about that."
	}
	return "申し訳ございません。該当する情報が見つかりませんでした。"
}
