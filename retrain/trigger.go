// Package retrain 是增量重训流水线：合并语料与在线评分、
// 全量重训、持久化并原子发布新快照。
//
// 单飞约束：同一时刻最多一个重训任务，冲突的请求立即被拒绝而非排队。
package retrain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/rushteam/cinerec/core"
	"github.com/rushteam/cinerec/model"
)

var (
	// triggerEnv 是触发策略的 CEL 环境，线程安全，可复用
	triggerEnv     *cel.Env
	triggerEnvOnce sync.Once
	triggerEnvErr  error
)

func getTriggerEnv() (*cel.Env, error) {
	triggerEnvOnce.Do(func() {
		triggerEnv, triggerEnvErr = cel.NewEnv(
			cel.Variable("new_ratings", cel.IntType),
			cel.Variable("total_ratings", cel.IntType),
			cel.Variable("threshold", cel.IntType),
			cel.Variable("hours_since_train", cel.DoubleType),
		)
	})
	return triggerEnv, triggerEnvErr
}

// Trigger 判定是否需要重训。
//
// 默认策略：自活跃快照训练时刻以来的新评分条数达到阈值即触发。
// 可选策略：CEL 表达式覆盖默认判定，可用变量：
//   - new_ratings       新评分条数
//   - total_ratings     评分库总条数
//   - threshold         配置的阈值
//   - hours_since_train 距上次训练的小时数
//
// 示例：`new_ratings >= threshold || hours_since_train > 24.0`
type Trigger struct {
	store     core.RatingStore
	threshold int
	prg       cel.Program
}

// NewTrigger 构建触发器；policy 为空时使用默认阈值策略。
// 表达式在构建时编译一次，Check 阶段只执行。
func NewTrigger(store core.RatingStore, threshold int, policy string) (*Trigger, error) {
	if threshold <= 0 {
		threshold = 5
	}
	t := &Trigger{store: store, threshold: threshold}
	if policy != "" {
		env, err := getTriggerEnv()
		if err != nil {
			return nil, fmt.Errorf("trigger env: %w", err)
		}
		ast, issues := env.Compile(policy)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("trigger policy compile: %w", issues.Err())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("trigger policy program: %w", err)
		}
		t.prg = prg
	}
	return t, nil
}

// Decision 是触发判定的结果。
type Decision struct {
	ShouldRetrain bool `json:"should_retrain"`
	NewRatings    int  `json:"new_ratings"`
	TotalRatings  int  `json:"total_ratings"`
	Threshold     int  `json:"threshold"`
}

// Check 统计自 active 训练时刻以来的新评分并判定是否触发。
// active 为 nil（尚无模型）时，评分库非空即触发。
func (t *Trigger) Check(ctx context.Context, active *model.Snapshot) (Decision, error) {
	since := time.Time{}
	if active != nil {
		since = active.TrainedAt()
	}
	newCount, err := t.store.CountSince(ctx, since)
	if err != nil {
		return Decision{}, err
	}
	stats, err := t.store.Stats(ctx)
	if err != nil {
		return Decision{}, err
	}

	d := Decision{
		NewRatings:   newCount,
		TotalRatings: stats.TotalRatings,
		Threshold:    t.threshold,
	}
	if active == nil {
		d.ShouldRetrain = newCount > 0
		return d, nil
	}

	if t.prg == nil {
		d.ShouldRetrain = newCount >= t.threshold
		return d, nil
	}

	out, _, err := t.prg.Eval(map[string]interface{}{
		"new_ratings":       newCount,
		"total_ratings":     stats.TotalRatings,
		"threshold":         t.threshold,
		"hours_since_train": time.Since(active.TrainedAt()).Hours(),
	})
	if err != nil {
		return Decision{}, fmt.Errorf("trigger policy eval: %w", err)
	}
	ok, isBool := out.Value().(bool)
	if !isBool {
		return Decision{}, fmt.Errorf("trigger policy must return boolean, got %T", out.Value())
	}
	d.ShouldRetrain = ok
	return d, nil
}
