package api

import "encoding/json"

// =============================================================================
// 查询类型
// =============================================================================

// QueryRequest 代表一次知识查询请求。
// @Description 知识查询请求结构
type QueryRequest struct {
	// 用户原始问题
	Query string `json:"query" example:"エンジニアカフェの営業時間は？" binding:"required"`
	// 会话 ID, 提供后启用对话记忆与澄清恢复
	SessionID string `json:"session_id,omitempty" example:"sess-8f2c"`
	// 语言覆盖（ja / en）, 留空时自动检测
	Language string `json:"language,omitempty" example:"ja"`
	// 分类覆盖, 提供后视为歧义已消除, 跳过澄清短路
	Category string `json:"category,omitempty" example:"engineer-cafe-hours"`
	// 检索条数上限
	Limit int `json:"limit,omitempty" example:"5"`
	// 相似度阈值（0-1）
	Threshold float64 `json:"threshold,omitempty" example:"0.65"`
}

// =============================================================================
// 记忆晋升类型
// =============================================================================

// PromoteRequest 代表一次短期记忆到持久层的晋升请求。
// @Description 记忆晋升请求结构
type PromoteRequest struct {
	// 来源会话 ID
	SessionID string `json:"session_id" example:"sess-8f2c" binding:"required"`
	// 持久化键名
	Key string `json:"key" example:"preferred-facility" binding:"required"`
	// 任意 JSON 负载, 原样写入持久层
	Data json.RawMessage `json:"data" binding:"required"`
	// 晋升原因, 记入审计日志
	Reason string `json:"reason,omitempty" example:"user confirmed preference"`
}
