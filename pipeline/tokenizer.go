package pipeline

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// DefaultTokenEncoding 上下文预算默认使用的 tiktoken 编码
const DefaultTokenEncoding = "cl100k_base"

// TokenCounter 估算文本的 token 数, 供上下文预算使用。
type TokenCounter interface {
	CountTokens(text string) int
}

// TiktokenCounter 基于 tiktoken 编码计数, 编码表惰性加载
// (首次使用可能触发下载)。加载失败时整体退化为字符估算。
type TiktokenCounter struct {
	encoding string
	logger   *zap.Logger

	once    sync.Once
	enc     *tiktoken.Tiktoken
	initErr error
}

// NewTiktokenCounter 创建计数器。encoding 为空时使用默认编码。
func NewTiktokenCounter(encoding string, logger *zap.Logger) *TiktokenCounter {
	if encoding == "" {
		encoding = DefaultTokenEncoding
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TiktokenCounter{encoding: encoding, logger: logger}
}

func (c *TiktokenCounter) init() error {
	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding(c.encoding)
		if err != nil {
			c.initErr = err
			c.logger.Warn("failed to load tiktoken encoding, falling back to character estimate",
				zap.String("encoding", c.encoding), zap.Error(err))
			return
		}
		c.enc = enc
	})
	return c.initErr
}

// CountTokens 返回文本的 token 数。编码不可用时回退到 len/4 估算。
func (c *TiktokenCounter) CountTokens(text string) int {
	if err := c.init(); err != nil {
		return len(text) / 4
	}
	return len(c.enc.Encode(text, nil, nil))
}
