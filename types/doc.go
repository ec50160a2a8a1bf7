// Copyright (c) Concierge Authors.
// Licensed under the MIT License.

/*
Package types 提供 Concierge 检索核心的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 classify、knowledge、memory、
router、pipeline 等上层模块提供统一的类型契约。所有跨包共享的结构体、
枚举和错误码均定义于此，以避免循环依赖。

# 核心类型

  - Query            — 单次请求的不可变查询（文本、语言、会话 ID、时间戳）
  - ConversationTurn — 会话轮次（角色、内容、情绪、置信度、请求类型）
  - KnowledgeEntry   — 知识库条目（内容、向量、语言、分类、重要度）
  - SearchResult     — 检索结果（条目 + 相似度 + 优先级得分）
  - Category         — 分类结果的和类型（普通分类 | 需要澄清）
  - RouteDecision    — 路由决策元数据（实现、耗时、是否降级）
  - Error / ErrorCode — 结构化错误体系，含 HTTP 状态码、Retryable 标记

# 主要能力

  - 错误工具链：NewError / Wrap / IsErrorCode / IsRetryable
  - 分类控制流：Category.NeedsClarification 取代字符串后缀判断
  - 重要度排序：Importance.Rank（critical > high > medium > low）
*/
package types
