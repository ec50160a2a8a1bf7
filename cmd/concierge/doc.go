// Copyright (c) Concierge Authors.
// Licensed under the MIT License.

/*
Package main 提供 Concierge 服务端程序入口。

# 概述

cmd/concierge 是 Concierge 检索服务的可执行入口，提供 HTTP API 服务、
数据库建表、语料导入、健康检查和版本查询等子命令。程序支持 YAML
配置文件加载、结构化日志（zap）、Prometheus 指标采集以及 OTel 追踪。

# 核心类型

  - Server           — 主服务器，组装检索管线并管理 HTTP、Metrics 双端口
  - Middleware        — HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve（启动服务）、migrate（建表）、seed（导入语料）、
    version、health
  - 中间件链：Recovery、RequestID（注入请求 ID 与客户端 IP）、
    SecurityHeaders、RequestLogger、OTelTracing、MetricsMiddleware、
    RateLimiter（基于 IP）、JWTAuth（HS256 Bearer，secret 未配置时禁用）
  - 组件装配：Redis 会话记忆、GORM 语料库、v1/v2 双检索器、A/B 路由、
    审计 sink、Prometheus 导出器，全部按配置在 initComponents 组装
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus）
  - 优雅关闭：信号监听 → 关闭 HTTP → 关闭 Metrics → 排空审计 →
    释放存储连接 → 关闭遥测
  - 构建注入：version、buildTime、gitCommit 通过 ldflags -X 设置
*/
package main
