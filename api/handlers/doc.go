// Copyright (c) Concierge Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 Concierge HTTP API 的请求处理器实现。

# 概述

handlers 包实现了 Concierge 所有 HTTP 端点的请求处理逻辑，
包括知识查询、记忆晋升、实验统计、审计查询、健康检查以及
统一的响应/错误处理。所有 Handler 均遵循标准 net/http 接口，
通过 Swagger 注解生成 API 文档。

# 核心类型

  - QueryHandler    — 知识查询处理器，驱动完整查询流水线
  - PromoteHandler  — 会话记忆到持久层的晋升，附带审计记录
  - AdminHandler    — A/B 实验统计、熔断状态与审计事件查询
  - HealthHandler   — 服务健康检查（/health, /healthz, /ready, /version）
  - Response        — 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo       — 结构化错误信息，含 code、message、retryable 标记
  - ResponseWriter  — 包装 http.ResponseWriter 以捕获状态码
  - HealthCheck     — 可插拔就绪检查接口（PingCheck 适配任意依赖）

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteFailure 辅助函数
  - 请求验证：DecodeJSONBody（1 MB 限制 + 严格模式）、ValidateContentType
  - ErrorCode → HTTP 状态码自动映射（4xx/5xx）
  - 请求 ID 回填：WriteSuccessWithRequestID 将上下文请求 ID 写回响应体
  - 就绪检查：RegisterCheck 注册 Redis / 数据库 / 向量库探活
*/
package handlers
