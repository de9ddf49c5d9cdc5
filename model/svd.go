package model

import (
	"context"
	"math/rand"
	"sort"
	"time"

	"github.com/rushteam/cinerec/core"
)

// SVDConfig 是带偏置矩阵分解的训练超参数。
type SVDConfig struct {
	// Factors 隐因子维度，常用范围 50-200
	Factors int

	// Epochs 随机梯度下降轮数，常用范围 10-50
	Epochs int

	// LearningRate 学习率
	LearningRate float64

	// Regularization L2 正则系数，越大越不易过拟合
	Regularization float64

	// Seed 随机种子；相同种子 + 相同输入顺序 => 相同模型
	Seed int64
}

// DefaultSVDConfig 返回默认超参数。
func DefaultSVDConfig() SVDConfig {
	return SVDConfig{
		Factors:        100,
		Epochs:         20,
		LearningRate:   0.005,
		Regularization: 0.02,
		Seed:           42,
	}
}

func (c SVDConfig) normalize() SVDConfig {
	if c.Factors <= 0 {
		c.Factors = 100
	}
	if c.Epochs <= 0 {
		c.Epochs = 20
	}
	if c.LearningRate <= 0 {
		c.LearningRate = 0.005
	}
	if c.Regularization <= 0 {
		c.Regularization = 0.02
	}
	if c.Seed == 0 {
		c.Seed = 42
	}
	return c
}

// Fit 用随机梯度下降拟合带偏置的矩阵分解：
//
//	est = μ + b_u + b_i + p_u · q_i
//
// 每轮按固定顺序遍历训练样本并更新因子与偏置，保证同种子可复现。
// ctx 取消时在轮间退出，返回 ctx.Err()（不产出半成品快照）。
func Fit(ctx context.Context, ratings []core.Rating, cfg SVDConfig) (*Snapshot, error) {
	if len(ratings) == 0 {
		return nil, core.NewDomainError(core.ModuleModel, core.ErrorCodeInvalidInput, "model: empty training set")
	}
	cfg = cfg.normalize()

	// 建立 ID 索引；排序保证不同 map 遍历顺序下的确定性
	userSet := make(map[string]struct{})
	movieSet := make(map[string]struct{})
	var sum float64
	for _, r := range ratings {
		userSet[r.UserID] = struct{}{}
		movieSet[r.MovieID] = struct{}{}
		sum += r.Value
	}
	userIDs := sortedKeys(userSet)
	movieIDs := sortedKeys(movieSet)

	userIndex := make(map[string]int, len(userIDs))
	for i, id := range userIDs {
		userIndex[id] = i
	}
	movieIndex := make(map[string]int, len(movieIDs))
	for i, id := range movieIDs {
		movieIndex[id] = i
	}

	globalMean := sum / float64(len(ratings))

	rng := rand.New(rand.NewSource(cfg.Seed))
	p := randomMatrix(rng, len(userIDs), cfg.Factors)
	q := randomMatrix(rng, len(movieIDs), cfg.Factors)
	bu := make([]float64, len(userIDs))
	bi := make([]float64, len(movieIDs))

	lr := cfg.LearningRate
	reg := cfg.Regularization

	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		for _, r := range ratings {
			u := userIndex[r.UserID]
			i := movieIndex[r.MovieID]

			est := globalMean + bu[u] + bi[i] + dot(p[u], q[i])
			e := r.Value - est

			bu[u] += lr * (e - reg*bu[u])
			bi[i] += lr * (e - reg*bi[i])
			pu := p[u]
			qi := q[i]
			for f := 0; f < cfg.Factors; f++ {
				puf := pu[f]
				pu[f] += lr * (e*qi[f] - reg*puf)
				qi[f] += lr * (e*puf - reg*qi[f])
			}
		}
	}

	now := time.Now().UTC()
	return &Snapshot{
		version:     now.Format("20060102_150405"),
		trainedAt:   now,
		globalMean:  globalMean,
		factors:     cfg.Factors,
		epochs:      cfg.Epochs,
		ratingCount: len(ratings),
		userIDs:     userIDs,
		movieIDs:    movieIDs,
		userIndex:   userIndex,
		movieIndex:  movieIndex,
		p:           p,
		q:           q,
		bu:          bu,
		bi:          bi,
	}, nil
}

func randomMatrix(rng *rand.Rand, rows, cols int) [][]float64 {
	m := make([][]float64, rows)
	for i := range m {
		row := make([]float64, cols)
		for j := range row {
			row[j] = rng.NormFloat64() * 0.1
		}
		m[i] = row
	}
	return m
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
