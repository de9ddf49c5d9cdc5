package retrain

import (
	"context"
	"testing"
	"time"

	"github.com/rushteam/cinerec/core"
	"github.com/rushteam/cinerec/model"
	"github.com/rushteam/cinerec/store"
)

func trainedSnapshot(t *testing.T) *model.Snapshot {
	t.Helper()
	snap, err := model.Train(context.Background(), testCorpus().Ratings(),
		model.TrainConfig{SVD: smallSVD(), Holdout: 0.2})
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	return snap
}

func TestTrigger_DefaultThreshold(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	snap := trainedSnapshot(t)

	trig, err := NewTrigger(st, 2, "")
	if err != nil {
		t.Fatalf("NewTrigger() error = %v", err)
	}

	d, err := trig.Check(ctx, snap)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if d.ShouldRetrain {
		t.Error("Check() with no new ratings wants retrain")
	}

	st.Upsert(ctx, core.Rating{UserID: "u1", MovieID: "m1", Value: 4})
	d, err = trig.Check(ctx, snap)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if d.ShouldRetrain {
		t.Error("Check() below threshold wants retrain")
	}
	if d.NewRatings != 1 || d.Threshold != 2 {
		t.Errorf("decision = %+v", d)
	}

	st.Upsert(ctx, core.Rating{UserID: "u2", MovieID: "m1", Value: 3})
	d, err = trig.Check(ctx, snap)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !d.ShouldRetrain {
		t.Error("Check() at threshold does not want retrain")
	}
}

func TestTrigger_NoActiveSnapshot(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	trig, err := NewTrigger(st, 100, "")
	if err != nil {
		t.Fatal(err)
	}

	// 没有模型也没有评分：不触发
	d, err := trig.Check(ctx, nil)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if d.ShouldRetrain {
		t.Error("Check() with empty store wants retrain")
	}

	// 没有模型但有评分：无视阈值直接触发
	st.Upsert(ctx, core.Rating{UserID: "u1", MovieID: "m1", Value: 4})
	d, err = trig.Check(ctx, nil)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !d.ShouldRetrain {
		t.Error("Check() with ratings but no model does not want retrain")
	}
}

func TestTrigger_CELPolicy(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	snap := trainedSnapshot(t)

	tests := []struct {
		name   string
		policy string
		want   bool
	}{
		{"threshold not met", "new_ratings >= threshold", false},
		{"lower bar met", "new_ratings >= 1", true},
		{"stale model", "hours_since_train >= 0.0", true},
		{"combined", "new_ratings >= threshold || total_ratings > 0", true},
	}

	st.Upsert(ctx, core.Rating{UserID: "u1", MovieID: "m1", Value: 4, Timestamp: time.Now().Add(time.Minute)})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trig, err := NewTrigger(st, 5, tt.policy)
			if err != nil {
				t.Fatalf("NewTrigger() error = %v", err)
			}
			d, err := trig.Check(ctx, snap)
			if err != nil {
				t.Fatalf("Check() error = %v", err)
			}
			if d.ShouldRetrain != tt.want {
				t.Errorf("ShouldRetrain = %v, want %v", d.ShouldRetrain, tt.want)
			}
		})
	}
}

func TestTrigger_InvalidPolicy(t *testing.T) {
	st := store.NewMemoryStore()

	if _, err := NewTrigger(st, 5, "this is not CEL ((("); err == nil {
		t.Error("NewTrigger(invalid policy) returned nil error")
	}
	// 非布尔表达式在编译期或执行期报错
	trig, err := NewTrigger(st, 5, "new_ratings + 1")
	if err != nil {
		return
	}
	if _, err := trig.Check(context.Background(), trainedSnapshot(t)); err == nil {
		t.Error("Check() with non-boolean policy returned nil error")
	}
}
