package retrain

import (
	"context"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rushteam/cinerec/core"
	"github.com/rushteam/cinerec/corpus"
	"github.com/rushteam/cinerec/metrics"
	"github.com/rushteam/cinerec/model"
)

// 重训任务状态。
const (
	StatusIdle      = "idle"
	StatusChecking  = "checking"
	StatusRunning   = "running"
	StatusSkipped   = "skipped"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Publisher 是新快照的接收方，由 serve.Recommender 实现。
type Publisher interface {
	// Publish 原子发布新快照
	Publish(s *model.Snapshot)
	// Active 返回当前活跃快照；无模型时为 nil
	Active() *model.Snapshot
}

// Options 配置重训流水线。
type Options struct {
	// SVD 训练超参，零值字段使用默认值
	SVD model.SVDConfig

	// Holdout 留出集比例，默认 0.2
	Holdout float64

	// ModelPath 快照持久化路径；为空时只发布不落盘
	ModelPath string

	// DisableBackup 关闭训练前的旧模型备份
	DisableBackup bool
}

// Pipeline 是增量重训流水线。
//
// 全量重训语义：每次训练都在 语料 ∪ 评分库 的合并数据集上从头拟合，
// 同键冲突时在线评分覆盖语料记录。训练失败不影响活跃快照与评分库。
type Pipeline struct {
	mu sync.Mutex // 单飞锁，TryLock 失败即拒绝

	store     core.RatingStore
	corpus    *corpus.Corpus
	publisher Publisher
	trigger   *Trigger
	opts      Options

	logger  *zap.Logger
	metrics *metrics.Metrics

	// trainFn 可注入，测试失败路径用
	trainFn func(ctx context.Context, ratings []core.Rating, cfg model.TrainConfig) (*model.Snapshot, error)

	state   string
	stateMu sync.Mutex
}

// PipelineOption 配置 Pipeline。
type PipelineOption func(*Pipeline)

// WithLogger 挂载结构化日志；默认 Nop。
func WithLogger(l *zap.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = l }
}

// WithMetrics 挂载指标；默认不采集。
func WithMetrics(m *metrics.Metrics) PipelineOption {
	return func(p *Pipeline) { p.metrics = m }
}

// WithTrainFunc 注入训练函数（测试用）；默认 model.Train。
func WithTrainFunc(fn func(ctx context.Context, ratings []core.Rating, cfg model.TrainConfig) (*model.Snapshot, error)) PipelineOption {
	return func(p *Pipeline) { p.trainFn = fn }
}

// NewPipeline 构建重训流水线。
func NewPipeline(store core.RatingStore, corp *corpus.Corpus, pub Publisher, trig *Trigger, opts Options, popts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		store:     store,
		corpus:    corp,
		publisher: pub,
		trigger:   trig,
		opts:      opts,
		logger:    zap.NewNop(),
		trainFn:   model.Train,
		state:     StatusIdle,
	}
	for _, opt := range popts {
		opt(p)
	}
	return p
}

// State 返回流水线当前状态（运维查询用）。
func (p *Pipeline) State() string {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	return p.state
}

func (p *Pipeline) setState(s string) {
	p.stateMu.Lock()
	p.state = s
	p.stateMu.Unlock()
}

// Report 是一次重训的结果汇报。
type Report struct {
	RunID     string        `json:"run_id"`
	Status    string        `json:"status"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Decision  Decision      `json:"decision"`

	// RatingsIncorporated 并入训练的在线评分条数
	RatingsIncorporated int `json:"ratings_incorporated,omitempty"`
	// TrainingSetSize 合并后训练集总条数（语料 ∪ 评分库）
	TrainingSetSize int `json:"training_set_size,omitempty"`
	Version             string        `json:"version,omitempty"`
	Metrics             model.Metrics `json:"metrics,omitempty"`
	BackupPath          string        `json:"backup_path,omitempty"`
	Err                 string        `json:"error,omitempty"`
}

// Run 执行一次重训。force 为 true 时跳过触发判定直接训练。
//
// 已有任务在执行时立即返回 ErrRetrainInProgress。训练或持久化失败时
// 返回 RETRAIN_FAILED 级别错误，活跃快照与评分库保持不变。
func (p *Pipeline) Run(ctx context.Context, force bool) (Report, error) {
	if !p.mu.TryLock() {
		return Report{Status: p.State()}, core.ErrRetrainInProgress
	}
	defer p.mu.Unlock()
	defer p.setState(StatusIdle)

	rep := Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	log := p.logger.With(zap.String("run_id", rep.RunID))

	p.setState(StatusChecking)
	decision, err := p.trigger.Check(ctx, p.publisher.Active())
	if err != nil {
		rep.Status = StatusFailed
		rep.Err = err.Error()
		p.metrics.RetrainRun(StatusFailed)
		return rep, err
	}
	rep.Decision = decision

	if !force && !decision.ShouldRetrain {
		rep.Status = StatusSkipped
		p.metrics.RetrainRun(StatusSkipped)
		log.Info("retrain skipped",
			zap.Int("new_ratings", decision.NewRatings),
			zap.Int("threshold", decision.Threshold),
		)
		return rep, nil
	}

	p.setState(StatusRunning)
	log.Info("retrain started",
		zap.Bool("force", force),
		zap.Int("new_ratings", decision.NewRatings),
	)

	live, err := p.store.AllRatings(ctx)
	if err != nil {
		return p.fail(rep, log, "load live ratings", err)
	}
	var base []core.Rating
	if p.corpus != nil {
		base = p.corpus.Ratings()
	}
	merged := mergeRatings(base, live)
	rep.RatingsIncorporated = len(live)
	rep.TrainingSetSize = len(merged)

	cfg := model.TrainConfig{SVD: p.opts.SVD, Holdout: p.opts.Holdout}
	snap, err := p.trainFn(ctx, merged, cfg)
	if err != nil {
		return p.fail(rep, log, "train", err)
	}

	if p.opts.ModelPath != "" {
		if !p.opts.DisableBackup {
			if _, statErr := os.Stat(p.opts.ModelPath); statErr == nil {
				// 备份失败视为整次重训失败：不落盘、不发布，
				// 活跃快照与磁盘上的旧模型保持不变
				backup, err := model.BackupFile(p.opts.ModelPath, time.Now())
				if err != nil {
					return p.fail(rep, log, "backup snapshot", err)
				}
				rep.BackupPath = backup
			}
		}
		if err := snap.Save(p.opts.ModelPath); err != nil {
			return p.fail(rep, log, "save snapshot", err)
		}
	}

	p.publisher.Publish(snap)

	rep.Status = StatusSucceeded
	rep.Version = snap.Version()
	rep.Metrics = snap.Metrics()
	rep.Duration = time.Since(rep.StartedAt)
	p.metrics.RetrainRun(StatusSucceeded)
	p.metrics.RetrainDuration(rep.Duration)
	log.Info("retrain succeeded",
		zap.String("version", rep.Version),
		zap.Int("live_ratings", rep.RatingsIncorporated),
		zap.Int("training_set", rep.TrainingSetSize),
		zap.Float64("rmse", rep.Metrics.RMSE),
		zap.Float64("mae", rep.Metrics.MAE),
		zap.Duration("duration", rep.Duration),
	)
	return rep, nil
}

func (p *Pipeline) fail(rep Report, log *zap.Logger, stage string, err error) (Report, error) {
	rep.Status = StatusFailed
	rep.Err = err.Error()
	rep.Duration = time.Since(rep.StartedAt)
	p.metrics.RetrainRun(StatusFailed)
	log.Error("retrain failed", zap.String("stage", stage), zap.Error(err))
	return rep, core.WrapDomainError(core.ModuleRetrain, core.ErrorCodeRetrainFailed, "retrain: "+stage, err)
}

// mergeRatings 合并语料与在线评分，同键时在线评分覆盖语料。
// 返回按组合键排序的切片，保证训练切分的确定性。
func mergeRatings(base, live []core.Rating) []core.Rating {
	merged := make(map[string]core.Rating, len(base)+len(live))
	for _, r := range base {
		merged[r.Key()] = r
	}
	for _, r := range live {
		merged[r.Key()] = r
	}
	out := make([]core.Rating, 0, len(merged))
	for _, r := range merged {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}
