// Copyright 2025-2026 Concierge Authors. All rights reserved.
// Use of this source code is governed by the project license.

// Package audit 按异步队列落盘检索管道的对比与晋升记录。
//
// 事件由 Sink.Record 投递, 满队列直接丢弃并记日志, 绝不阻塞请求路径。
// 后端二选一: 内存环(测试/开发, 容量满时淘汰最旧 10%)或 JSONL 文件
// (运维, 按大小轮转)。Close 先排空队列再关闭后端。
package audit
