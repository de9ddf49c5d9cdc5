package model

import (
	"context"
	"testing"

	"github.com/rushteam/cinerec/core"
)

func TestSplit(t *testing.T) {
	ratings := testRatings()

	train, test, err := Split(ratings, 0.2, 42)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(train)+len(test) != len(ratings) {
		t.Errorf("split lost ratings: %d + %d != %d", len(train), len(test), len(ratings))
	}
	wantTest := int(float64(len(ratings)) * 0.2)
	if len(test) != wantTest {
		t.Errorf("test size = %d, want %d", len(test), wantTest)
	}

	// 相同种子得到相同切分
	train2, test2, err := Split(ratings, 0.2, 42)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	for i := range test {
		if test[i] != test2[i] {
			t.Fatal("same seed produced different split")
		}
	}
	if len(train) != len(train2) {
		t.Fatal("same seed produced different split sizes")
	}

	// 输入切片不被修改
	orig := testRatings()
	for i := range ratings {
		if ratings[i] != orig[i] {
			t.Fatal("Split mutated its input")
		}
	}
}

func TestSplit_Degenerate(t *testing.T) {
	ratings := testRatings()

	train, test, err := Split(ratings, 0, 42)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(test) != 0 || len(train) != len(ratings) {
		t.Errorf("Split(holdout=0) = (%d, %d)", len(train), len(test))
	}

	train, test, err = Split(ratings[:1], 0.2, 42)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(test) != 0 || len(train) != 1 {
		t.Errorf("Split(single rating) = (%d, %d)", len(train), len(test))
	}
}

func TestSplit_InvalidHoldout(t *testing.T) {
	for _, holdout := range []float64{1, 1.5} {
		if _, _, err := Split(testRatings(), holdout, 42); !core.IsInvalidInput(err) {
			t.Errorf("Split(holdout=%v) error = %v, want INVALID_INPUT", holdout, err)
		}
	}
}

func TestEvaluate(t *testing.T) {
	ctx := context.Background()
	train, test, err := Split(testRatings(), 0.2, 42)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}

	snap, err := Fit(ctx, train, smallConfig())
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	m, err := Evaluate(ctx, snap, test)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if m.RMSE <= 0 || m.MAE <= 0 {
		t.Errorf("metrics = %+v, want positive", m)
	}
	if m.MAE > m.RMSE {
		t.Errorf("MAE %v > RMSE %v", m.MAE, m.RMSE)
	}
	// 评分范围 [1,5]，误差不可能超过 4
	if m.RMSE > 4 {
		t.Errorf("RMSE = %v, out of plausible range", m.RMSE)
	}
}

func TestEvaluate_EmptyTestSet(t *testing.T) {
	snap, err := Fit(context.Background(), testRatings(), smallConfig())
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	m, err := Evaluate(context.Background(), snap, nil)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if m.RMSE != 0 || m.MAE != 0 {
		t.Errorf("Evaluate(empty) = %+v, want zero metrics", m)
	}
}

func TestTrain(t *testing.T) {
	ctx := context.Background()
	ratings := testRatings()

	cfg := TrainConfig{SVD: smallConfig(), Holdout: 0.2}
	snap, err := Train(ctx, ratings, cfg)
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	if snap.RatingCount() != len(ratings) {
		t.Errorf("RatingCount() = %d, want %d", snap.RatingCount(), len(ratings))
	}
	if snap.Metrics().RMSE <= 0 {
		t.Errorf("Train() did not record metrics: %+v", snap.Metrics())
	}
	if snap.Version() == "" || snap.TrainedAt().IsZero() {
		t.Error("Train() produced snapshot without identity")
	}
}
