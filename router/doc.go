// Copyright (c) Concierge Authors.
// Licensed under the MIT License.

// Package router 在两代检索实现之间做选路, 并用熔断器保护每一路。
//
// # 概述
//
// 路由有两种形态, 由特性开关源(FlagSource)决定:
//
//   - 单实现模式: 按会话 ID 的 sha256 百分比分桶确定性地选择 v1 或
//     v2, 调用经过熔断器; 主实现失败或熔断打开时无条件降级到另一实现,
//     结果打上 FromCircuitBreaker 标记。
//   - 并行模式: 两路各自计时并发执行(allSettled 语义, 一路失败不取消
//     另一路), 产出对照记录供指标与审计消费, 返回更稳妥一方的结果:
//     v1 成功取 v1, 否则取 v2, 两路皆败才报错。
//
// # 核心类型
//
//   - Breaker    — 按实现名各持一只的熔断器(Closed/Open/HalfOpen)
//   - FlagSource — 特性开关源(静态配置 / Redis hash)
//   - Router     — 选路入口, Route 返回 RouteResult
//
// # 降级语义
//
// 重试上限是恰好一跳: 单实现模式降级到另一实现一次, 不做多轮退避。
// 熔断器状态跨请求共享, 互斥锁保护; 半开态只放行一个探测调用。
package router
