// Package cinerec 是一个混合式电影推荐与增量重训引擎。
//
// 设计要点：
//   - 混合预测: 隐因子模型优先，共评相似度降级，全局均值兜底
//   - 快照不可变: 重训产出新快照后原子发布，读写互不阻塞
//   - 增量重训: 在线评分与离线语料合并后全量重训，新评分达阈值触发
package cinerec

import "github.com/rushteam/cinerec/core"

// 轻量 facade：便于用户直接 import "cinerec" 使用核心抽象。
type Rating = core.Rating
type Movie = core.Movie
type RatingStore = core.RatingStore

const (
	RatingMin = core.RatingMin
	RatingMax = core.RatingMax
)
