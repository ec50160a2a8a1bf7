// Copyright (c) Concierge Authors.
// Licensed under the MIT License.

// Package metrics 聚合两代检索实现的对照指标。
//
// Collector 按实现累计查询数、响应时间(均值与 p95)、平均结果数、
// 平均相似度与成功率; Report 产出两实现的对照报告, 约定相似度越高、
// 响应时间越低越好。收集器只做聚合, 永不反向影响选路。
//
// PromExporter 将同一批观测镜像为 concierge 命名空间下的 Prometheus
// 计数器/直方图/仪表, 由指标端口上的 promhttp 暴露。
package metrics
