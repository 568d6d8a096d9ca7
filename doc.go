// Package hybrec 是一个混合推荐引擎（Hybrid Recommender）。
//
// 设计要点：
// - 双路召回: 内容嵌入（自编码器）+ 协同过滤（隐因子），位置加权融合
// - 永不硬失败: 推荐路径任何环节出错降级为热门兜底
// - 显式装配: 引擎与依赖由调用方构造注入，无全局单例
package hybrec

import (
	"github.com/rushteam/hybrec/core"
	"github.com/rushteam/hybrec/engine"
)

// 轻量 facade：便于用户直接 import "hybrec" 使用核心抽象。
type Engine = engine.HybridEngine
type EngineDeps = engine.Deps
type EngineConfig = core.EngineConfig
type ContentItem = core.ContentItem
type InteractionEvent = core.InteractionEvent

var (
	NewEngine     = engine.New
	DefaultConfig = core.DefaultEngineConfig
	LoadConfig    = core.LoadEngineConfig
)
