package pipeline

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/kitadake/concierge/audit"
	"github.com/kitadake/concierge/classify"
	"github.com/kitadake/concierge/internal/ctxkeys"
	"github.com/kitadake/concierge/knowledge"
	"github.com/kitadake/concierge/language"
	"github.com/kitadake/concierge/memory"
	"github.com/kitadake/concierge/router"
	"github.com/kitadake/concierge/types"
)

// instrumentationName 管道 span 使用的 tracer 名称
const instrumentationName = "concierge/pipeline"

// recentTurnFactor 澄清回溯窗口按助手轮次计, 存储中用户与助手
// 成对出现, 回读条数按两倍取
const recentTurnFactor = 2

// contextSeparator 上下文拼装时条目之间的分隔符
const contextSeparator = "\n\n"

// Embedder 生成查询向量。embedding.Provider 满足该接口。
type Embedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float64, error)
}

// Config 管道配置
type Config struct {
	// 主语言, 检测无信号时的回退: ja, en
	PrimaryLanguage types.Language `yaml:"primary_language" json:"primary_language"`
	// 上下文拼装的 token 预算
	ContextTokenBudget int `yaml:"context_token_budget" json:"context_token_budget"`
	// token 计数使用的 tiktoken 编码
	TokenEncoding string `yaml:"token_encoding" json:"token_encoding"`
	// 澄清检测回溯的助手轮次数
	ContextWindow int `yaml:"context_window" json:"context_window"`
}

// DefaultConfig 返回默认管道配置
func DefaultConfig() Config {
	return Config{
		PrimaryLanguage:    types.LanguageJapanese,
		ContextTokenBudget: 1600,
		TokenEncoding:      DefaultTokenEncoding,
		ContextWindow:      3,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.PrimaryLanguage == "" {
		c.PrimaryLanguage = def.PrimaryLanguage
	}
	if c.ContextTokenBudget <= 0 {
		c.ContextTokenBudget = def.ContextTokenBudget
	}
	if c.TokenEncoding == "" {
		c.TokenEncoding = def.TokenEncoding
	}
	if c.ContextWindow <= 0 {
		c.ContextWindow = def.ContextWindow
	}
	return c
}

// Dependencies 管道的协作组件。Embedder 与 Router 必填;
// Detector/Classifier/Scorer/Tokens 缺省时按配置自建;
// Memory 为空表示无状态模式, Audit 为空表示不落审计。
type Dependencies struct {
	Detector   *language.Detector
	Classifier *classify.Classifier
	Embedder   Embedder
	Router     *router.Router
	Memory     *memory.Memory
	Scorer     *knowledge.Scorer
	Tokens     TokenCounter
	Audit      *audit.Sink
}

// Request 一次检索请求。Language 与 Category 显式给出时分别跳过
// 语言检测与分类派生; Limit/Threshold 为零时由检索器应用默认值。
type Request struct {
	Query     string         `json:"query"`
	Language  types.Language `json:"language,omitempty"`
	Category  string         `json:"category,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Limit     int            `json:"limit,omitempty"`
	Threshold float64        `json:"threshold,omitempty"`
}

// Response 检索出参: 要么携带拼装好的上下文与结果集, 要么携带
// 澄清消息。Decision 暴露实现、耗时与熔断回退等路由元数据。
type Response struct {
	Query              string               `json:"query"`
	Language           types.Language       `json:"language"`
	Category           string               `json:"category"`
	NeedsClarification bool                 `json:"needs_clarification,omitempty"`
	Message            string               `json:"message,omitempty"`
	Context            string               `json:"context,omitempty"`
	Results            []types.SearchResult `json:"results,omitempty"`
	Decision           *types.RouteDecision `json:"decision,omitempty"`
	Contextual         bool                 `json:"contextual,omitempty"`
}

// Pipeline 组装后的检索入口。组件注入一次, 请求间共享。
type Pipeline struct {
	detector   *language.Detector
	classifier *classify.Classifier
	embedder   Embedder
	router     *router.Router
	memory     *memory.Memory
	scorer     *knowledge.Scorer
	tokens     TokenCounter
	sink       *audit.Sink

	cfg    Config
	logger *zap.Logger
	tracer trace.Tracer
}

// New 创建管道。
func New(deps Dependencies, cfg Config, logger *zap.Logger) (*Pipeline, error) {
	if deps.Embedder == nil {
		return nil, types.NewError(types.ErrInternalError, "pipeline requires an embedding provider")
	}
	if deps.Router == nil {
		return nil, types.NewError(types.ErrInternalError, "pipeline requires a retrieval router")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()

	if deps.Detector == nil {
		deps.Detector = language.NewDetector(cfg.PrimaryLanguage)
	}
	if deps.Classifier == nil {
		ccfg := classify.DefaultConfig()
		ccfg.ContextWindow = cfg.ContextWindow
		deps.Classifier = classify.New(ccfg, logger)
	}
	if deps.Scorer == nil {
		deps.Scorer = knowledge.NewScorer(logger)
	}
	if deps.Tokens == nil {
		deps.Tokens = NewTiktokenCounter(cfg.TokenEncoding, logger)
	}

	return &Pipeline{
		detector:   deps.Detector,
		classifier: deps.Classifier,
		embedder:   deps.Embedder,
		router:     deps.Router,
		memory:     deps.Memory,
		scorer:     deps.Scorer,
		tokens:     deps.Tokens,
		sink:       deps.Audit,
		cfg:        cfg,
		logger:     logger.With(zap.String("component", "pipeline")),
		tracer:     otel.Tracer(instrumentationName),
	}, nil
}

// Respond 执行完整的检索流程并返回上下文或澄清消息。向上传播的
// 错误只有三类: 入参无效、向量化失败、两个检索实现同时不可用。
func (p *Pipeline) Respond(ctx context.Context, req Request) (*Response, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "query cannot be empty")
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.respond",
		trace.WithAttributes(attribute.String("session.id", req.SessionID)))
	defer span.End()

	lang, confidence := p.detectLanguage(query, req.Language)
	span.SetAttributes(attribute.String("language", string(lang)))

	turns := p.recentTurns(ctx, req.SessionID)
	cls := p.classifier.Classify(query, turns)

	// 歧义不是错误: 直接短路成澄清响应, 不做向量检索。调用方已
	// 显式给出分类时歧义视为已消解。
	if req.Category == "" && cls.Category.NeedsClarification() {
		span.SetAttributes(attribute.Bool("clarification", true))
		return p.respondClarification(ctx, req, query, lang, confidence, cls), nil
	}

	category := req.Category
	if category == "" {
		category = cls.Category.String()
	}
	span.SetAttributes(attribute.String("category", category))

	vector, err := p.embedder.EmbedQuery(ctx, cls.Query)
	if err != nil {
		ferr := types.Wrap(types.ErrEmbeddingFailed, "embed query failed", err).
			WithRetryable(true)
		span.RecordError(ferr)
		p.recordFailure(ctx, req, query, lang, category, ferr)
		return nil, ferr
	}

	routed, err := p.router.Route(ctx, vector, router.RouteOptions{
		SessionID: req.SessionID,
		Search: knowledge.SearchOptions{
			Language:            lang,
			Category:            category,
			Limit:               req.Limit,
			Threshold:           req.Threshold,
			RetryLowerThreshold: true,
		},
	})
	if err != nil {
		span.RecordError(err)
		p.recordFailure(ctx, req, query, lang, category, err)
		return nil, err
	}

	results := p.scorer.Score(routed.Results, knowledge.ScoreOptions{
		Query:         cls.Query,
		Category:      category,
		GroupByEntity: true,
	})

	contextText := noInformationMessage(lang)
	if len(results) > 0 {
		contextText = p.composeContext(results)
	}

	decision := routed.Decision()
	span.SetAttributes(
		attribute.String("implementation", string(decision.Implementation)),
		attribute.Bool("from_fallback", decision.FromFallback),
		attribute.Int("result.count", len(results)),
	)
	p.logger.Debug("retrieval completed",
		zap.String("session_id", req.SessionID),
		zap.String("category", category),
		zap.String("implementation", string(decision.Implementation)),
		zap.Int64("time_ms", decision.ResponseTimeMs),
		zap.Int("results", len(results)),
		zap.Bool("from_fallback", decision.FromFallback),
	)

	p.storeExchange(ctx, req.SessionID,
		types.ConversationTurn{Role: types.RoleUser, Content: query, Confidence: confidence},
		types.ConversationTurn{Role: types.RoleAssistant, Content: contextText, RequestType: cls.Topic},
	)
	p.recordQuery(ctx, req, query, lang, category, &decision, routed.Comparison, results)

	return &Response{
		Query:      query,
		Language:   lang,
		Category:   category,
		Context:    contextText,
		Results:    results,
		Decision:   &decision,
		Contextual: cls.Contextual,
	}, nil
}

// detectLanguage 返回生效语言与置信度。显式指定时置信度记 1。
func (p *Pipeline) detectLanguage(query string, override types.Language) (types.Language, float64) {
	if override == types.LanguageJapanese || override == types.LanguageEnglish {
		return override, 1
	}
	det := p.detector.Detect(query)
	return det.Language, det.Confidence
}

// recentTurns 回读最近的会话轮次。无状态模式或读失败都退化为
// 无上下文, 绝不影响检索本身。
func (p *Pipeline) recentTurns(ctx context.Context, sessionID string) []types.ConversationTurn {
	if p.memory == nil || sessionID == "" {
		return nil
	}
	return p.memory.RecentTurns(ctx, sessionID, p.cfg.ContextWindow*recentTurnFactor)
}

// respondClarification 构造澄清响应并写回会话。助手轮次带上澄清
// 标记, 供下一轮的上下文恢复识别。
func (p *Pipeline) respondClarification(ctx context.Context, req Request, query string, lang types.Language, confidence float64, cls classify.Result) *Response {
	msg := clarificationMessage(cls.Category.Clarification, lang)
	p.logger.Info("clarification short-circuit, skipping vector search",
		zap.String("session_id", req.SessionID),
		zap.String("kind", string(cls.Category.Clarification)),
		zap.String("language", string(lang)),
	)

	p.storeExchange(ctx, req.SessionID,
		types.ConversationTurn{Role: types.RoleUser, Content: query, Confidence: confidence},
		types.ConversationTurn{
			Role:        types.RoleAssistant,
			Content:     msg,
			Emotion:     EmotionCurious,
			RequestType: classify.RequestTypeClarification,
		},
	)

	if p.sink != nil {
		p.sink.Record(&audit.Event{
			Type:      audit.EventClarification,
			SessionID: req.SessionID,
			RequestID: requestID(ctx),
			Query:     query,
			Language:  string(lang),
			Category:  cls.Category.String(),
			Metadata:  map[string]string{"kind": string(cls.Category.Clarification)},
		})
	}

	return &Response{
		Query:              query,
		Language:           lang,
		Category:           cls.Category.String(),
		NeedsClarification: true,
		Message:            msg,
		Contextual:         cls.Contextual,
	}
}

// composeContext 按重排后的顺序拼接条目内容, 直到 token 预算耗尽。
// 排名第一的条目无条件保留, 结果集非空时上下文一定非空。
func (p *Pipeline) composeContext(results []types.SearchResult) string {
	var b strings.Builder
	used := 0
	for i, res := range results {
		content := res.Entry.Content
		cost := p.tokens.CountTokens(content)
		if i > 0 {
			if used+cost > p.cfg.ContextTokenBudget {
				break
			}
			b.WriteString(contextSeparator)
		}
		b.WriteString(content)
		used += cost
	}
	return b.String()
}

// storeExchange 成对写回用户与助手轮次。存储层自身把基础设施故障
// 降级为日志, 这里只兜住入参错误。
func (p *Pipeline) storeExchange(ctx context.Context, sessionID string, userTurn, assistantTurn types.ConversationTurn) {
	if p.memory == nil || sessionID == "" {
		return
	}
	if err := p.memory.StoreTurn(ctx, sessionID, userTurn); err != nil {
		p.logger.Warn("failed to store user turn", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	if err := p.memory.StoreTurn(ctx, sessionID, assistantTurn); err != nil {
		p.logger.Warn("failed to store assistant turn", zap.String("session_id", sessionID), zap.Error(err))
	}
}

// recordQuery 异步落一条查询审计; 并行对照另落一条对照事件。
func (p *Pipeline) recordQuery(ctx context.Context, req Request, query string, lang types.Language, category string, decision *types.RouteDecision, cmp *types.ParallelComparison, results []types.SearchResult) {
	if p.sink == nil {
		return
	}
	ev := &audit.Event{
		Type:        audit.EventQuery,
		SessionID:   req.SessionID,
		RequestID:   requestID(ctx),
		Query:       query,
		Language:    string(lang),
		Category:    category,
		Decision:    decision,
		ResultCount: len(results),
	}
	if len(results) > 0 {
		ev.TopSimilarity = results[0].Similarity
	}
	p.sink.Record(ev)

	if cmp != nil {
		p.sink.Record(&audit.Event{
			Type:       audit.EventComparison,
			SessionID:  req.SessionID,
			RequestID:  requestID(ctx),
			Query:      query,
			Language:   string(lang),
			Category:   category,
			Comparison: cmp,
		})
	}
}

// recordFailure 把向上传播的失败也落入审计, 便于事后排查。
func (p *Pipeline) recordFailure(ctx context.Context, req Request, query string, lang types.Language, category string, err error) {
	if p.sink == nil {
		return
	}
	p.sink.Record(&audit.Event{
		Type:      audit.EventQuery,
		SessionID: req.SessionID,
		RequestID: requestID(ctx),
		Query:     query,
		Language:  string(lang),
		Category:  category,
		Error:     err.Error(),
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctxkeys.RequestID(ctx)
	return id
}
