// Copyright 2025-2026 Concierge Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

Package classify 提供确定性的规则分类器，不依赖任何 ML 模型。

分类按固定顺序检查一张统一的规则表：日历/活动关键词、特定场馆 + 主题
组合（最具体）、仅特定场馆、歧义场馆词（缺少限定词时返回需要澄清的
分类而不是普通分类）、通用主题关键词，最后兜底为 general。

# 核心类型

  - Classifier — 规则分类器（Classify 对一段文本返回 Result）
  - Result     — 分类结果（Category、Topic、Entity、有效检索文本）
  - Config     — 上下文回复检测的阈值配置

# 主要能力

  - 语音识别纠错：匹配前重写常见的 STT 误识别（Normalize）
  - 宽度折叠：全角 ASCII 折半角、半角片假名折全角
  - 歧义检测：通用词（カフェ、会議室）缺少限定词时要求澄清
  - 上下文回复：短回复 + 最近的澄清提问 → 恢复原始问题并合并检索意图
*/
package classify
