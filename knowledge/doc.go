// Copyright (c) Concierge Authors.
// Licensed under the MIT License.

// Package knowledge 实现知识库的向量检索与优先级重排。
//
// # 概述
//
// 知识条目由外部内容管理服务写入 knowledge_entries 表, 本包只读。
// 检索有两代实现:
//
//   - Retriever (v1): 走数据库侧的 pgvector 近邻查询(加速路径),
//     索引不支持多谓词过滤, 因此取 limit × k 个候选后在内存中按
//     语言/分类过滤; 加速路径不可用时退化为全表余弦扫描。
//   - EnhancedRetriever (v2): 在进程内维护一个 HNSW 候选索引
//     (singleflight 预热), 命中后再以全精度向量复核相似度;
//     主语言结果不足时并发检索次语言并按 分类/子分类 去重合并。
//
// # 核心类型
//
//   - Store             — GORM 知识库访问层(加速查询 + 全表扫描)
//   - Corpus            — 检索器消费的存储接口
//   - Retriever         — v1 检索器
//   - EnhancedRetriever — v2 检索器
//   - Scorer            — 按实体优先级/重要度/字面命中重排结果
//
// # 主要能力
//
//   - 结果集恒满足 similarity ≥ threshold(跨语言救援段除外, 见
//     EnhancedRetriever 文档)
//   - 零结果时可按配置做一次降阈值重试, 不做多轮退避
//   - 余弦相似度对零范数与长度不一致的向量定义为 0
package knowledge
