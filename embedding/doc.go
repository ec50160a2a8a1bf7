// Copyright (c) Concierge Authors.
// Licensed under the MIT License.

/*
包 embedding 提供统一的文本嵌入（Embedding）接口与多服务商实现，
用于将查询与知识条目转换为向量表示以支持语义检索。

# 概述

不同嵌入服务商在 API 格式、认证方式与输出维度上存在差异。
本包通过 Provider 接口屏蔽这些差异，并通过 DimensionAdapter
把服务商的原生维度统一到知识库索引的目标维度，使检索层
可以在不修改调用代码的前提下切换底层嵌入服务。

# 核心接口

  - Provider：统一嵌入接口，定义 Embed、EmbedQuery、EmbedDocuments 等方法。
  - Request / Response：标准化的请求与响应模型。
  - BaseProvider：公共基类，封装 HTTP 请求、错误映射与批量辅助方法。
  - DimensionAdapter：维度调和装饰器，repeat / pad 两种策略。
  - RateLimited：令牌桶限流装饰器，保护上游配额。

# 主要能力

  - 多服务商支持：内置 OpenAI 与 Google Gemini 两种实现。
  - 维度调和：服务商输出维度与语料库存储维度不一致时自动补齐。
  - 出站限流：基于 golang.org/x/time/rate 的阻塞式限流。
  - 统一错误：HTTP 状态码映射为带重试语义的结构化错误。

# 使用方式

	provider, err := embedding.Build(embedding.Options{
		Provider: "openai",
		APIKey:   "sk-...",
	}, logger)

	vec, err := provider.EmbedQuery(ctx, "営業時間を教えて")
*/
package embedding
