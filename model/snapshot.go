// Package model 实现隐因子模型：带偏置的矩阵分解（SVD 风格），
// 以不可变快照（Snapshot）形式对外提供点预测与 TopN 排序。
//
// 快照一经产出不再修改；服务层通过原子指针交换发布新快照，
// 持有旧引用的读者在交换后依然安全（见 serve 包）。
package model

import (
	"sort"
	"time"

	"github.com/rushteam/cinerec/core"
)

// Metrics 是快照在留出集上的评估指标。
type Metrics struct {
	RMSE float64 `json:"rmse"`
	MAE  float64 `json:"mae"`
}

// Snapshot 是一次训练的完整产物：因子矩阵、偏置、全局均值、ID 索引、
// 训练元信息与评估指标。字段不导出以保证不可变性，持久化走 persist.go
// 中的容器格式。
//
// 不变式：userIndex/movieIndex 中的每个 ID 都来自训练集；
// Predict/TopN 对不在索引中的 ID 返回 core.ErrNotInModel，绝不越界。
type Snapshot struct {
	version     string
	trainedAt   time.Time
	globalMean  float64
	factors     int
	epochs      int
	ratingCount int

	userIDs    []string
	movieIDs   []string
	userIndex  map[string]int
	movieIndex map[string]int

	p  [][]float64 // 用户因子 (len(userIDs) x factors)
	q  [][]float64 // 影片因子 (len(movieIDs) x factors)
	bu []float64   // 用户偏置
	bi []float64   // 影片偏置

	metrics Metrics
}

// Version 返回快照版本号（训练时间戳标识）。
func (s *Snapshot) Version() string { return s.version }

// TrainedAt 返回训练完成时间。
func (s *Snapshot) TrainedAt() time.Time { return s.trainedAt }

// GlobalMean 返回训练集全局平均评分。
func (s *Snapshot) GlobalMean() float64 { return s.globalMean }

// Metrics 返回留出集评估指标。
func (s *Snapshot) Metrics() Metrics { return s.metrics }

// Factors 返回隐因子维度。
func (s *Snapshot) Factors() int { return s.factors }

// Epochs 返回训练轮数。
func (s *Snapshot) Epochs() int { return s.epochs }

// RatingCount 返回训练集评分条数。
func (s *Snapshot) RatingCount() int { return s.ratingCount }

// UserCount 返回训练集用户数。
func (s *Snapshot) UserCount() int { return len(s.userIDs) }

// MovieCount 返回训练集影片数。
func (s *Snapshot) MovieCount() int { return len(s.movieIDs) }

// HasUser 判断用户是否在训练集内。
func (s *Snapshot) HasUser(userID string) bool {
	_, ok := s.userIndex[userID]
	return ok
}

// HasMovie 判断影片是否在训练集内。
func (s *Snapshot) HasMovie(movieID string) bool {
	_, ok := s.movieIndex[movieID]
	return ok
}

// MovieIDs 返回训练集影片 ID 的副本。
func (s *Snapshot) MovieIDs() []string {
	out := make([]string, len(s.movieIDs))
	copy(out, s.movieIDs)
	return out
}

// Predict 返回模型对 (user, movie) 的评分估计，夹取到 [1,5]。
// 任一 ID 不在训练集内时返回 core.ErrNotInModel，由调用方决定降级路径。
func (s *Snapshot) Predict(userID, movieID string) (float64, error) {
	u, ok := s.userIndex[userID]
	if !ok {
		return 0, core.ErrNotInModel
	}
	i, ok := s.movieIndex[movieID]
	if !ok {
		return 0, core.ErrNotInModel
	}
	est := s.globalMean + s.bu[u] + s.bi[i] + dot(s.p[u], s.q[i])
	return core.ClampRating(est), nil
}

// ScoredMovie 是排序结果中的一项。
type ScoredMovie struct {
	MovieID string
	Score   float64
}

// TopN 返回对该用户预测分最高的 n 部影片，排除 excluded 中的影片。
// 每次调用都重新计算，不持有任何生成器状态。
// 排序规则：分数降序，同分按影片 ID 升序（保证确定性）。
func (s *Snapshot) TopN(userID string, n int, excluded map[string]struct{}) ([]ScoredMovie, error) {
	u, ok := s.userIndex[userID]
	if !ok {
		return nil, core.ErrNotInModel
	}
	if n <= 0 {
		return nil, nil
	}

	scored := make([]ScoredMovie, 0, len(s.movieIDs))
	for i, movieID := range s.movieIDs {
		if _, skip := excluded[movieID]; skip {
			continue
		}
		est := s.globalMean + s.bu[u] + s.bi[i] + dot(s.p[u], s.q[i])
		scored = append(scored, ScoredMovie{MovieID: movieID, Score: core.ClampRating(est)})
	}

	sort.Slice(scored, func(a, b int) bool {
		if scored[a].Score != scored[b].Score {
			return scored[a].Score > scored[b].Score
		}
		return scored[a].MovieID < scored[b].MovieID
	})

	if len(scored) > n {
		scored = scored[:n]
	}
	return scored, nil
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
