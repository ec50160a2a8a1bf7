package classify

import (
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/kitadake/concierge/types"
)

// Config tunes the classifier's contextual-response detection.
type Config struct {
	// 短回复判定的最大 rune 数
	ShortReplyMaxRunes int `yaml:"short_reply_max_runes" json:"short_reply_max_runes"`
	// 短回复判定的最大单词数（拉丁文本）
	ShortReplyMaxWords int `yaml:"short_reply_max_words" json:"short_reply_max_words"`
	// 澄清检测回溯的 assistant 轮次数
	ContextWindow int `yaml:"context_window" json:"context_window"`
}

// DefaultConfig 返回默认分类器配置
func DefaultConfig() Config {
	return Config{
		ShortReplyMaxRunes: 12,
		ShortReplyMaxWords: 4,
		ContextWindow:      3,
	}
}

// Result is one classification outcome. Query carries the effective
// retrieval text, which differs from the input when a clarification
// answer was merged with its recovered question.
type Result struct {
	Category   types.Category `json:"category"`
	Topic      string         `json:"topic,omitempty"`
	Entity     string         `json:"entity,omitempty"`
	Query      string         `json:"query"`
	Contextual bool           `json:"contextual,omitempty"`
	Inherited  string         `json:"inherited,omitempty"`
}

// Classifier is the deterministic, rule-based intent classifier. It owns
// no I/O: conversation turns are supplied by the caller.
type Classifier struct {
	rules  []rule
	cfg    Config
	logger *zap.Logger
}

// New creates a classifier over the built-in consolidated ruleset.
func New(cfg Config, logger *zap.Logger) *Classifier {
	if cfg.ShortReplyMaxRunes <= 0 {
		cfg.ShortReplyMaxRunes = DefaultConfig().ShortReplyMaxRunes
	}
	if cfg.ShortReplyMaxWords <= 0 {
		cfg.ShortReplyMaxWords = DefaultConfig().ShortReplyMaxWords
	}
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = DefaultConfig().ContextWindow
	}
	return &Classifier{
		rules:  builtinRules,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "classifier")),
	}
}

// Classify normalizes the text, applies contextual-response recovery
// against recent turns, and walks the ruleset. Ambiguity is not an
// error: it comes back as a Category that needs clarification.
func (c *Classifier) Classify(text string, turns []types.ConversationTurn) Result {
	normalized := Normalize(text)

	effective := text
	contextual := false
	inherited := ""

	if c.isShortReply(normalized) && hasRecentClarification(turns, c.cfg.ContextWindow) {
		if recovered, ok := recoverOriginalQuestion(text, turns); ok {
			contextual = true
			inherited = topicOf(Normalize(recovered.Content))
			effective = text + " " + recovered.Content
			normalized = Normalize(effective)
			c.logger.Debug("contextual response detected",
				zap.String("reply", text),
				zap.String("recovered", recovered.Content),
				zap.String("inherited", inherited),
			)
		}
	}

	res := c.match(normalized)
	res.Query = effective
	res.Contextual = contextual
	res.Inherited = inherited

	// A bare-entity match plus an inherited topic upgrades to the
	// compound category: "サイノの方は？" after an hours question is a
	// Saino hours query, not a Saino overview query.
	if contextual && !res.Category.NeedsClarification() && res.Entity != "" && res.Topic == "" && inherited != "" {
		res.Topic = inherited
		res.Category = types.NormalCategory(types.CompoundCategory(res.Entity, inherited))
	}

	c.logger.Debug("query classified",
		zap.String("category", res.Category.String()),
		zap.String("topic", res.Topic),
		zap.String("entity", res.Entity),
		zap.Bool("contextual", res.Contextual),
	)

	return res
}

// match walks the ordered ruleset; the first hit wins.
func (c *Classifier) match(normalized string) Result {
	for _, r := range c.rules {
		if r.matches(normalized) {
			return Result{Category: r.category, Topic: r.topic, Entity: r.entity}
		}
	}
	return Result{Category: types.NormalCategory(types.CategoryGeneral)}
}

// isShortReply reports whether normalized text is short enough to be a
// clarification answer rather than a standalone question. Japanese is
// measured in runes; spaced Latin text in words.
func (c *Classifier) isShortReply(normalized string) bool {
	if utf8.RuneCountInString(normalized) <= c.cfg.ShortReplyMaxRunes {
		return true
	}
	words := strings.Fields(normalized)
	return len(words) > 1 && len(words) <= c.cfg.ShortReplyMaxWords
}
