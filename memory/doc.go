// Copyright 2025-2026 Concierge Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
包 memory 实现有界、按时间过期的会话记忆，为检索管道提供
近期对话上下文与澄清问答的衔接能力。

# 概述

每个会话在 Redis 中维护两类键：单轮内容键（带 TTL 的 JSON）与
按时间戳排序的 ZSET 索引。索引在每次写入时重设同样的 TTL 并按
最大容量裁剪，保证无活动的会话在窗口期后整体消失。

读取按索引倒序取最新 N 轮，无法解析的成员（已过期）被静默跳过；
即使物理键尚未删除，逻辑上超过 TTL 的轮次同样被排除（惰性过期）。

记忆是增强而非正确性依赖：会话读写路径的基础设施故障只记录日志并
退化为"无上下文"，不向调用方传播。唯一穿越会话窗口的途径是显式
晋升（Promote），它把数据连同原因写入持久存储。

# 核心类型

  - Memory：会话记忆，提供 StoreTurn / RecentTurns /
    IsConversationActive / Promote / CleanupExpired。
  - DurableStore：晋升数据的持久层，基于 GORM 写入 memory_promotions 表。
  - Promotion：一条晋升记录，含会话、键、数据快照与晋升原因。

# 过期语义

  - 轮次内容键：写入时即带 TTL，Redis 自动回收。
  - 索引键：每次插入重写 TTL，并按 MaxTurns 裁剪最旧成员。
  - 惰性过期：读取时按时间戳二次过滤，容忍索引与内容键的回收时差。
  - CleanupExpired：维护任务，按分数清理所有会话索引中的过期成员。
*/
package memory
