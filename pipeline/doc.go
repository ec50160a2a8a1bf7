// Copyright (c) Concierge Authors.
// Licensed under the MIT License.

// Package pipeline 把各独立阶段组装成唯一的检索入口:
// 语言检测 → 会话回读 → 规则分类 → 澄清短路 → 向量化 →
// 路由检索 → 优先级重排 → token 预算内的上下文拼装 → 会话写回,
// 最后异步落一条审计记录。
//
// 阶段之间的降级边界是设计的核心: 会话存储故障只意味着"无上下文",
// 空结果集只意味着默认文案, 都不会让请求失败。真正向上传播的只有
// 三类错误: 入参无效、向量化失败、以及两个检索实现同时不可用。
package pipeline
