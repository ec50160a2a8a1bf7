package embedding

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Options 汇总构建嵌入提供者所需的全部配置.
type Options struct {
	Provider          string        // openai | gemini
	APIKey            string
	BaseURL           string
	Model             string
	Timeout           time.Duration
	TargetDimensions  int           // 语料库存储维度, 0 表示不调和
	DimensionStrategy string        // repeat | pad
	RateLimitRPS      float64       // 0 表示不限流
	RateLimitBurst    int
}

// Build 按 Options 组装完整的提供者链:
// 基础提供者 -> 限流 -> 维度调和.
func Build(opts Options, logger *zap.Logger) (Provider, error) {
	var base Provider
	switch strings.ToLower(opts.Provider) {
	case "openai", "":
		base = NewOpenAIProvider(OpenAIConfig{
			APIKey:     opts.APIKey,
			BaseURL:    opts.BaseURL,
			Model:      opts.Model,
			Dimensions: opts.TargetDimensions,
			Timeout:    opts.Timeout,
		})
	case "gemini":
		base = NewGeminiProvider(GeminiConfig{
			APIKey:  opts.APIKey,
			BaseURL: opts.BaseURL,
			Model:   opts.Model,
			Timeout: opts.Timeout,
		})
	default:
		return nil, fmt.Errorf("unknown embedding provider: %q", opts.Provider)
	}

	strategy, err := ParseDimensionStrategy(opts.DimensionStrategy)
	if err != nil {
		return nil, err
	}

	var provider Provider = base
	if opts.RateLimitRPS > 0 {
		provider = NewRateLimited(provider, opts.RateLimitRPS, opts.RateLimitBurst)
	}
	if opts.TargetDimensions > 0 {
		provider = NewDimensionAdapter(provider, opts.TargetDimensions, strategy, logger)
	}
	return provider, nil
}
