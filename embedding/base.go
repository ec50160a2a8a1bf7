package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kitadake/concierge/types"
)

// EmbedFunc 是提供者的核心嵌入函数签名, 供 EmbedQuery /
// EmbedDocuments 辅助方法回调.
type EmbedFunc func(context.Context, *Request) (*Response, error)

// BaseConfig 持有基础提供者的共同配置.
type BaseConfig struct {
	Name       string
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	MaxBatch   int
	Timeout    time.Duration
}

// BaseProvider 承载各嵌入提供者共享的 HTTP 管线: 请求编解码、
// 超时、状态码到 types.Error 的映射.
type BaseProvider struct {
	name       string
	client     *http.Client
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	maxBatch   int
}

// NewBaseProvider 创建一个新的基础提供者.
func NewBaseProvider(cfg BaseConfig) *BaseProvider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	maxBatch := cfg.MaxBatch
	if maxBatch == 0 {
		maxBatch = 100
	}
	return &BaseProvider{
		name:       cfg.Name,
		client:     &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		maxBatch:   maxBatch,
	}
}

func (p *BaseProvider) Name() string      { return p.name }
func (p *BaseProvider) Dimensions() int   { return p.dimensions }
func (p *BaseProvider) MaxBatchSize() int { return p.maxBatch }

// DoJSON 执行一次 JSON 往返: 编码 in、发送请求、把 2xx 响应体
// 解码到 out (out 为 nil 时丢弃响应体), 非 2xx 映射为 types.Error.
func (p *BaseProvider) DoJSON(ctx context.Context, method, endpoint string, in, out any, headers map[string]string) error {
	var reqBody io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		// Cause 挂进链条, 调用方能用 errors.Is 识别 context 取消
		return &types.Error{
			Code:       types.ErrUpstreamError,
			Message:    "provider request failed",
			HTTPStatus: http.StatusBadGateway,
			Retryable:  true,
			Provider:   p.name,
			Cause:      err,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return mapHTTPError(resp.StatusCode, string(respBody), p.name)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return types.Wrap(types.ErrEmbeddingFailed, "failed to decode provider response", err).
			WithProvider(p.name)
	}
	return nil
}

// mapHTTPError 映射 HTTP 状态到 types.Error. 400/401/403 意味着
// 我们发给上游的请求本身有问题 (参数或凭证), 重试无益.
func mapHTTPError(status int, msg, provider string) *types.Error {
	code := types.ErrUpstreamError
	retryable := status >= 500

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusBadRequest:
		code = types.ErrInvalidRequest
	case http.StatusTooManyRequests:
		code = types.ErrRateLimited
		retryable = true
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		code = types.ErrUpstreamTimeout
		retryable = true
	}

	return &types.Error{
		Code:       code,
		Message:    msg,
		HTTPStatus: status,
		Retryable:  retryable,
		Provider:   provider,
	}
}

// EmbedQuery 嵌入单个查询字符串.
func (p *BaseProvider) EmbedQuery(ctx context.Context, query string, embedFn EmbedFunc) ([]float64, error) {
	resp, err := embedFn(ctx, &Request{
		Input:     []string{query},
		InputType: InputTypeQuery,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 {
		return nil, types.NewError(types.ErrEmbeddingFailed, "provider returned no embeddings").
			WithProvider(p.name)
	}
	return resp.Embeddings[0].Embedding, nil
}

// EmbedDocuments 嵌入多个文档. 返回向量数与文档数必须一致,
// 否则下游写入知识库时会串位.
func (p *BaseProvider) EmbedDocuments(ctx context.Context, documents []string, embedFn EmbedFunc) ([][]float64, error) {
	resp, err := embedFn(ctx, &Request{
		Input:     documents,
		InputType: InputTypeDocument,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(documents) {
		return nil, types.NewError(types.ErrEmbeddingFailed,
			fmt.Sprintf("provider returned %d embeddings for %d documents", len(resp.Embeddings), len(documents))).
			WithProvider(p.name)
	}
	result := make([][]float64, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		result[i] = emb.Embedding
	}
	return result, nil
}

// ChooseModel 从请求或默认中选择模型.
func ChooseModel(reqModel, defaultModel, fallback string) string {
	if reqModel != "" {
		return reqModel
	}
	if defaultModel != "" {
		return defaultModel
	}
	return fallback
}
