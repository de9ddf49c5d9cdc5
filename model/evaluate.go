package model

import (
	"context"
	"math"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/rushteam/cinerec/core"
)

// Split 把评分集按 holdout 比例确定性地切分为训练集与留出集。
// 相同 seed 得到相同切分；输入切片不被修改。
// holdout 必须落在 [0, 1)，越界返回 INVALID_INPUT。
func Split(ratings []core.Rating, holdout float64, seed int64) (train, test []core.Rating, err error) {
	if holdout >= 1 {
		return nil, nil, core.NewDomainError(core.ModuleModel, core.ErrorCodeInvalidInput, "model: holdout must be in [0, 1)")
	}
	if holdout <= 0 || len(ratings) < 2 {
		return ratings, nil, nil
	}

	shuffled := make([]core.Rating, len(ratings))
	copy(shuffled, ratings)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	cut := int(float64(len(shuffled)) * holdout)
	if cut < 1 {
		cut = 1
	}
	return shuffled[cut:], shuffled[:cut], nil
}

// Evaluate 在留出集上计算 RMSE/MAE。
// 留出集中不被快照覆盖的 (user, movie) 以全局均值作为估计，
// 与训练库对未知实体的处理一致。
// 大留出集按 CPU 数分片并行累加。
func Evaluate(ctx context.Context, s *Snapshot, test []core.Rating) (Metrics, error) {
	if len(test) == 0 {
		return Metrics{}, nil
	}

	workers := runtime.NumCPU()
	if workers > len(test) {
		workers = len(test)
	}
	shard := (len(test) + workers - 1) / workers

	sqSums := make([]float64, workers)
	absSums := make([]float64, workers)

	eg, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		lo := w * shard
		hi := lo + shard
		if hi > len(test) {
			hi = len(test)
		}
		if lo >= hi {
			continue
		}
		w := w
		chunk := test[lo:hi]
		eg.Go(func() error {
			for _, r := range chunk {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
				est, err := s.Predict(r.UserID, r.MovieID)
				if core.IsNotInModel(err) {
					est = s.globalMean
				} else if err != nil {
					return err
				}
				diff := est - r.Value
				sqSums[w] += diff * diff
				absSums[w] += math.Abs(diff)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return Metrics{}, err
	}

	var sq, abs float64
	for w := 0; w < workers; w++ {
		sq += sqSums[w]
		abs += absSums[w]
	}
	n := float64(len(test))
	return Metrics{
		RMSE: math.Sqrt(sq / n),
		MAE:  abs / n,
	}, nil
}

// TrainConfig 是完整训练流程（切分 -> 拟合 -> 评估）的配置。
type TrainConfig struct {
	SVD SVDConfig

	// Holdout 留出集比例，默认 0.2
	Holdout float64
}

// DefaultTrainConfig 返回默认训练配置。
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		SVD:     DefaultSVDConfig(),
		Holdout: 0.2,
	}
}

// Train 执行完整训练流程并返回带评估指标的快照：
// 确定性切分留出集、在训练子集上拟合、在留出集上评估，
// 最后把指标写入快照并封存。
func Train(ctx context.Context, ratings []core.Rating, cfg TrainConfig) (*Snapshot, error) {
	if cfg.Holdout <= 0 {
		cfg.Holdout = 0.2
	}
	svdCfg := cfg.SVD.normalize()

	trainSet, testSet, err := Split(ratings, cfg.Holdout, svdCfg.Seed)
	if err != nil {
		return nil, err
	}

	snap, err := Fit(ctx, trainSet, svdCfg)
	if err != nil {
		return nil, err
	}

	metrics, err := Evaluate(ctx, snap, testSet)
	if err != nil {
		return nil, err
	}
	snap.metrics = metrics
	snap.ratingCount = len(ratings)
	return snap, nil
}
