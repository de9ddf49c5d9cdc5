// Package serve 是预测与排序服务：对外的唯一读入口，
// 把隐因子模型的覆盖缺口藏在内部。
//
// 路径决策（单一决策点）：
//   - 用户/影片被活跃快照覆盖 -> 模型路径
//   - 未覆盖但用户有历史       -> 共评相似度降级
//   - 用户零历史               -> 全局均值（预测）/ 空结果（推荐）
//
// 并发模型：活跃快照挂在 atomic.Pointer 上，读操作在调用开始处取一次引用，
// 重训流水线通过 Publish 做指针交换；快照不可变，交换后旧引用依然有效，
// 读者与发布者互不阻塞。
package serve

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/rushteam/cinerec/catalog"
	"github.com/rushteam/cinerec/core"
	"github.com/rushteam/cinerec/corpus"
	"github.com/rushteam/cinerec/metrics"
	"github.com/rushteam/cinerec/model"
	"github.com/rushteam/cinerec/similarity"
)

// 预测来源标识（响应与指标中使用）。
const (
	SourceModel      = "model"
	SourceSimilarity = "similarity"
	SourceGlobalMean = "global_mean"
)

// Recommender 是预测与排序服务。
type Recommender struct {
	store    core.RatingStore
	catalog  *catalog.Catalog
	corpus   *corpus.Corpus
	index    *similarity.Index
	snapshot atomic.Pointer[model.Snapshot]

	popularity map[string]int // 语料热度（冷启动同分裁决用）

	similarPerSeed int
	logger         *zap.Logger
	metrics        *metrics.Metrics
}

// Option 配置 Recommender。
type Option func(*Recommender)

// WithLogger 挂载结构化日志；默认 Nop。
func WithLogger(l *zap.Logger) Option {
	return func(r *Recommender) { r.logger = l }
}

// WithMetrics 挂载指标；默认不采集。
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Recommender) { r.metrics = m }
}

// WithSnapshot 设置启动时加载的快照（进程重启后从磁盘恢复）。
func WithSnapshot(s *model.Snapshot) Option {
	return func(r *Recommender) {
		if s != nil {
			r.snapshot.Store(s)
		}
	}
}

// WithSimilarityIndex 注入自定义相似度索引（测试用）。
func WithSimilarityIndex(idx *similarity.Index) Option {
	return func(r *Recommender) { r.index = idx }
}

// WithSimilarPerSeed 设置冷启动路径中每部种子影片取的相似影片数，默认 20。
func WithSimilarPerSeed(n int) Option {
	return func(r *Recommender) {
		if n > 0 {
			r.similarPerSeed = n
		}
	}
}

// New 构建服务并播种相似度索引（语料 + 评分库当前内容）。
func New(ctx context.Context, store core.RatingStore, cat *catalog.Catalog, corp *corpus.Corpus, opts ...Option) (*Recommender, error) {
	r := &Recommender{
		store:          store,
		catalog:        cat,
		corpus:         corp,
		similarPerSeed: 20,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.index == nil {
		r.index = similarity.NewIndex()
	}

	if corp != nil {
		r.index.Load(corp.Ratings())
		r.popularity = corp.RatingCounts()
	} else {
		r.popularity = make(map[string]int)
	}

	live, err := store.AllRatings(ctx)
	if err != nil {
		return nil, err
	}
	r.index.Load(live)

	if snap := r.snapshot.Load(); snap != nil {
		r.metrics.SnapshotTrainedAt(snap.TrainedAt())
	}
	return r, nil
}

// Publish 原子地替换活跃快照。在途读操作要么看到旧快照要么看到新快照，
// 绝不会看到半更新状态。
func (r *Recommender) Publish(s *model.Snapshot) {
	if s == nil {
		return
	}
	r.snapshot.Store(s)
	r.metrics.SnapshotTrainedAt(s.TrainedAt())
	r.logger.Info("snapshot published",
		zap.String("version", s.Version()),
		zap.Time("trained_at", s.TrainedAt()),
		zap.Int("users", s.UserCount()),
		zap.Int("movies", s.MovieCount()),
	)
}

// Active 返回当前活跃快照；尚未加载模型时返回 nil。
func (r *Recommender) Active() *model.Snapshot {
	return r.snapshot.Load()
}

// Prediction 是单点预测的响应。
type Prediction struct {
	UserID          string  `json:"user_id"`
	MovieID         string  `json:"movie_id"`
	PredictedRating float64 `json:"predicted_rating"`
	MovieTitle      string  `json:"movie_title"`
	Source          string  `json:"source"`
}

// PredictRating 预测用户对影片的评分。
// 模型未覆盖时走相似度估计，零历史回落到全局均值（设计内默认值，非错误）。
func (r *Recommender) PredictRating(ctx context.Context, userID, movieID string) (Prediction, error) {
	if err := validateIDs(userID, movieID); err != nil {
		return Prediction{}, err
	}

	snap := r.snapshot.Load()
	pred := Prediction{
		UserID:     userID,
		MovieID:    movieID,
		MovieTitle: r.catalog.Lookup(ctx, movieID).Title,
	}

	if snap != nil {
		if est, err := snap.Predict(userID, movieID); err == nil {
			pred.PredictedRating = est
			pred.Source = SourceModel
			r.metrics.Prediction(SourceModel)
			return pred, nil
		} else if !core.IsNotInModel(err) {
			return Prediction{}, err
		}
	}

	if est, ok := r.index.EstimateRating(userID, movieID); ok {
		pred.PredictedRating = core.ClampRating(est)
		pred.Source = SourceSimilarity
		r.metrics.Prediction(SourceSimilarity)
		return pred, nil
	}

	if snap == nil {
		return Prediction{}, core.NewDomainError(core.ModuleServe, core.ErrorCodeUnavailable, "serve: no model loaded")
	}
	pred.PredictedRating = core.ClampRating(snap.GlobalMean())
	pred.Source = SourceGlobalMean
	r.metrics.Prediction(SourceGlobalMean)
	return pred, nil
}

// Stats 返回评分库聚合统计。
func (r *Recommender) Stats(ctx context.Context) (core.StoreStats, error) {
	return r.store.Stats(ctx)
}

// Health 是运维健康上报：是否有模型、快照身份/年龄、存储连通性。
type Health struct {
	Status          string        `json:"status"` // healthy / degraded
	ModelLoaded     bool          `json:"model_loaded"`
	SnapshotVersion string        `json:"snapshot_version,omitempty"`
	TrainedAt       time.Time     `json:"trained_at,omitempty"`
	SnapshotAge     time.Duration `json:"snapshot_age,omitempty"`
	ModelUsers      int           `json:"n_users"`
	ModelMovies     int           `json:"n_items"`
	GlobalMean      float64       `json:"global_mean"`
	StoreName       string        `json:"store"`
	StoreOK         bool          `json:"store_ok"`
}

// HealthCheck 汇报服务健康状态。模型未加载或存储不可达时 Status 为 degraded。
func (r *Recommender) HealthCheck(ctx context.Context) Health {
	h := Health{StoreName: r.store.Name()}

	if snap := r.snapshot.Load(); snap != nil {
		h.ModelLoaded = true
		h.SnapshotVersion = snap.Version()
		h.TrainedAt = snap.TrainedAt()
		h.SnapshotAge = time.Since(snap.TrainedAt())
		h.ModelUsers = snap.UserCount()
		h.ModelMovies = snap.MovieCount()
		h.GlobalMean = snap.GlobalMean()
	}
	h.StoreOK = r.store.Ping(ctx) == nil

	if h.ModelLoaded && h.StoreOK {
		h.Status = "healthy"
	} else {
		h.Status = "degraded"
	}
	return h
}

func validateIDs(userID, movieID string) error {
	if userID == "" {
		return core.NewDomainError(core.ModuleServe, core.ErrorCodeInvalidInput, "serve: user_id is required")
	}
	if movieID == "" {
		return core.NewDomainError(core.ModuleServe, core.ErrorCodeInvalidInput, "serve: movie_id is required")
	}
	return nil
}
