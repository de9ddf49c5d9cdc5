package retrain

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/rushteam/cinerec/core"
)

// Scheduler 周期性驱动重训流水线：每个周期做一次触发判定，
// 达到条件就执行重训。与手动触发共用同一把单飞锁。
type Scheduler struct {
	pipeline *Pipeline
	interval time.Duration
	logger   *zap.Logger
}

// NewScheduler 构建调度器；interval 非正时默认 1 小时。
func NewScheduler(p *Pipeline, interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{pipeline: p, interval: interval, logger: logger}
}

// Run 阻塞运行调度循环，直到 ctx 取消。
// 单次重训失败只记录日志，不终止循环。
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("retrain scheduler started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("retrain scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			rep, err := s.pipeline.Run(ctx, false)
			switch {
			case err == nil:
				s.logger.Info("scheduled retrain finished",
					zap.String("run_id", rep.RunID),
					zap.String("status", rep.Status),
				)
			case errors.Is(err, core.ErrRetrainInProgress):
				s.logger.Debug("scheduled retrain skipped, another run in progress")
			default:
				s.logger.Warn("scheduled retrain failed", zap.Error(err))
			}
		}
	}
}
