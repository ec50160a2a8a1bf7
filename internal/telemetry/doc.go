// Package telemetry 装配 Concierge 的 OpenTelemetry 导出链路
// （OTLP gRPC 的 trace + metric）。检索管线的阶段 span 与 HTTP
// 中间件的服务端 span 都通过这里注册的全局 provider 发出；采样
// 用 ParentBased 包裹比率采样，尊重上游网关的采样决策。遥测
// 禁用时保持 noop，不连接任何外部服务。
package telemetry
