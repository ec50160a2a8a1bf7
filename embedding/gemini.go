package embedding

import (
	"context"
	"fmt"
	"time"
)

const (
	geminiDefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	geminiDefaultModel   = "text-embedding-004"

	// text-embedding-004 的原生输出维度。语料库按 1536 维存储时
	// 由 DimensionAdapter 调和。
	geminiNativeDimensions = 768
)

// GeminiConfig 配置 Gemini 嵌入提供者.
type GeminiConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"` // text-embedding-004
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// DefaultGeminiConfig 返回默认 Gemini 嵌入配置.
func DefaultGeminiConfig() GeminiConfig {
	return GeminiConfig{
		BaseURL: geminiDefaultBaseURL,
		Model:   geminiDefaultModel,
		Timeout: 30 * time.Second,
	}
}

// GeminiProvider 使用 Google Gemini API 执行嵌入.
// 端点按模型拼路径（/models/{model}:embedContent），认证走
// x-goog-api-key 头；HTTP 管线与错误映射复用 BaseProvider.
type GeminiProvider struct {
	*BaseProvider
	cfg GeminiConfig
}

// NewGeminiProvider 创建新的 Gemini 嵌入提供者.
func NewGeminiProvider(cfg GeminiConfig) *GeminiProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = geminiDefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = geminiDefaultModel
	}

	return &GeminiProvider{
		BaseProvider: NewBaseProvider(BaseConfig{
			Name:       "gemini-embedding",
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: geminiNativeDimensions,
			MaxBatch:   100,
			Timeout:    cfg.Timeout,
		}),
		cfg: cfg,
	}
}

// Gemini TaskType 映射
type geminiTaskType string

const (
	geminiTaskRetrievalQuery    geminiTaskType = "RETRIEVAL_QUERY"
	geminiTaskRetrievalDocument geminiTaskType = "RETRIEVAL_DOCUMENT"
)

// mapTaskType 将输入任务类型转换为 Gemini 任务类型.
func mapTaskType(inputType InputType) geminiTaskType {
	if inputType == InputTypeQuery {
		return geminiTaskRetrievalQuery
	}
	return geminiTaskRetrievalDocument
}

type geminiEmbedRequest struct {
	Model                string         `json:"model"`
	Content              geminiContent  `json:"content"`
	TaskType             geminiTaskType `json:"taskType,omitempty"`
	OutputDimensionality int            `json:"outputDimensionality,omitempty"`
}

type geminiBatchEmbedRequest struct {
	Requests []geminiEmbedRequest `json:"requests"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiEmbedResponse struct {
	Embedding geminiContentEmbedding `json:"embedding"`
}

type geminiBatchEmbedResponse struct {
	Embeddings []geminiContentEmbedding `json:"embeddings"`
}

type geminiContentEmbedding struct {
	Values []float64 `json:"values"`
}

// payloadFor 组装单条 embedContent 请求体.
func payloadFor(model, text string, task geminiTaskType, dims int) geminiEmbedRequest {
	return geminiEmbedRequest{
		Model:                "models/" + model,
		Content:              geminiContent{Parts: []geminiPart{{Text: text}}},
		TaskType:             task,
		OutputDimensionality: dims,
	}
}

// Embed 使用 Gemini API 生成嵌入. 单条输入走 embedContent，
// 多条走 batchEmbedContents.
func (p *GeminiProvider) Embed(ctx context.Context, req *Request) (*Response, error) {
	model := ChooseModel(req.Model, p.cfg.Model, geminiDefaultModel)
	task := mapTaskType(req.InputType)

	if len(req.Input) > 1 {
		return p.embedBatch(ctx, req, model, task)
	}
	return p.embedSingle(ctx, req, model, task)
}

func (p *GeminiProvider) embedSingle(ctx context.Context, req *Request, model string, task geminiTaskType) (*Response, error) {
	var out geminiEmbedResponse
	err := p.DoJSON(ctx, "POST",
		fmt.Sprintf("/models/%s:embedContent", model),
		payloadFor(model, req.Input[0], task, req.Dimensions),
		&out,
		p.authHeader(),
	)
	if err != nil {
		return nil, err
	}

	return &Response{
		Provider:   p.Name(),
		Model:      model,
		Embeddings: []Data{{Index: 0, Embedding: out.Embedding.Values}},
		CreatedAt:  time.Now(),
	}, nil
}

func (p *GeminiProvider) embedBatch(ctx context.Context, req *Request, model string, task geminiTaskType) (*Response, error) {
	batch := geminiBatchEmbedRequest{Requests: make([]geminiEmbedRequest, len(req.Input))}
	for i, text := range req.Input {
		batch.Requests[i] = payloadFor(model, text, task, req.Dimensions)
	}

	var out geminiBatchEmbedResponse
	err := p.DoJSON(ctx, "POST",
		fmt.Sprintf("/models/%s:batchEmbedContents", model),
		batch,
		&out,
		p.authHeader(),
	)
	if err != nil {
		return nil, err
	}

	embeddings := make([]Data, len(out.Embeddings))
	for i, emb := range out.Embeddings {
		embeddings[i] = Data{Index: i, Embedding: emb.Values}
	}

	return &Response{
		Provider:   p.Name(),
		Model:      model,
		Embeddings: embeddings,
		CreatedAt:  time.Now(),
	}, nil
}

// authHeader Gemini 使用 x-goog-api-key 头（不是 Bearer 令牌）
func (p *GeminiProvider) authHeader() map[string]string {
	return map[string]string{"x-goog-api-key": p.cfg.APIKey}
}

// EmbedQuery 嵌入单个查询.
func (p *GeminiProvider) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	return p.BaseProvider.EmbedQuery(ctx, query, p.Embed)
}

// EmbedDocuments 嵌入多个文档.
func (p *GeminiProvider) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	return p.BaseProvider.EmbedDocuments(ctx, documents, p.Embed)
}
