package serve

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rushteam/cinerec/catalog"
	"github.com/rushteam/cinerec/core"
	"github.com/rushteam/cinerec/corpus"
	"github.com/rushteam/cinerec/model"
	"github.com/rushteam/cinerec/store"
)

// newFixture 构造训练好的推荐服务：语料 6 用户 x 5 影片，u1..u6 / m1..m5。
func newFixture(t *testing.T) (*Recommender, *store.MemoryStore) {
	t.Helper()
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var ratings []core.Rating
	for u := 1; u <= 6; u++ {
		for m := 1; m <= 5; m++ {
			if (u+m)%4 == 0 {
				continue
			}
			ratings = append(ratings, core.Rating{
				UserID:    fmt.Sprintf("u%d", u),
				MovieID:   fmt.Sprintf("m%d", m),
				Value:     float64((u*m)%5 + 1),
				Timestamp: base,
			})
		}
	}
	corp := corpus.New(ratings)

	var movies []core.Movie
	for m := 1; m <= 5; m++ {
		movies = append(movies, core.Movie{
			ID:    fmt.Sprintf("m%d", m),
			Title: fmt.Sprintf("Movie Title %d", m),
		})
	}
	cat := catalog.New(movies)

	cfg := model.TrainConfig{
		SVD:     model.SVDConfig{Factors: 8, Epochs: 10, LearningRate: 0.01, Regularization: 0.02, Seed: 42},
		Holdout: 0.2,
	}
	snap, err := model.Train(ctx, corp.Ratings(), cfg)
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	st := store.NewMemoryStore()
	rec, err := New(ctx, st, cat, corp, WithSnapshot(snap))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return rec, st
}

func TestPredictRating_ModelPath(t *testing.T) {
	rec, _ := newFixture(t)
	ctx := context.Background()

	got, err := rec.PredictRating(ctx, "u1", "m2")
	if err != nil {
		t.Fatalf("PredictRating() error = %v", err)
	}
	if got.Source != SourceModel {
		t.Errorf("source = %s, want %s", got.Source, SourceModel)
	}
	if got.PredictedRating < core.RatingMin || got.PredictedRating > core.RatingMax {
		t.Errorf("prediction %v out of [1,5]", got.PredictedRating)
	}
	if got.MovieTitle != "Movie Title 2" {
		t.Errorf("title = %s, want Movie Title 2", got.MovieTitle)
	}
}

func TestPredictRating_SimilarityFallback(t *testing.T) {
	rec, _ := newFixture(t)
	ctx := context.Background()

	// 新用户先评两部热门影片，预测第三部走相似度路径
	if _, err := rec.SubmitRating(ctx, "newbie", "m1", 5); err != nil {
		t.Fatal(err)
	}
	if _, err := rec.SubmitRating(ctx, "newbie", "m2", 4); err != nil {
		t.Fatal(err)
	}

	got, err := rec.PredictRating(ctx, "newbie", "m3")
	if err != nil {
		t.Fatalf("PredictRating() error = %v", err)
	}
	if got.Source != SourceSimilarity {
		t.Errorf("source = %s, want %s", got.Source, SourceSimilarity)
	}
	if got.PredictedRating < core.RatingMin || got.PredictedRating > core.RatingMax {
		t.Errorf("prediction %v out of [1,5]", got.PredictedRating)
	}
}

func TestPredictRating_GlobalMeanFallback(t *testing.T) {
	rec, _ := newFixture(t)
	ctx := context.Background()

	got, err := rec.PredictRating(ctx, "stranger", "m1")
	if err != nil {
		t.Fatalf("PredictRating() error = %v", err)
	}
	if got.Source != SourceGlobalMean {
		t.Errorf("source = %s, want %s", got.Source, SourceGlobalMean)
	}
	if got.PredictedRating != core.ClampRating(rec.Active().GlobalMean()) {
		t.Errorf("prediction = %v, want global mean %v", got.PredictedRating, rec.Active().GlobalMean())
	}
}

func TestPredictRating_Validation(t *testing.T) {
	rec, _ := newFixture(t)
	ctx := context.Background()

	if _, err := rec.PredictRating(ctx, "", "m1"); !core.IsInvalidInput(err) {
		t.Errorf("PredictRating(no user) error = %v, want INVALID_INPUT", err)
	}
	if _, err := rec.PredictRating(ctx, "u1", ""); !core.IsInvalidInput(err) {
		t.Errorf("PredictRating(no movie) error = %v, want INVALID_INPUT", err)
	}
}

func TestPredictRating_NoModelNoHistory(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	rec, err := New(ctx, st, catalog.New(nil), corpus.New(nil))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := rec.PredictRating(ctx, "u1", "m1"); !core.IsUnavailable(err) {
		t.Errorf("PredictRating() error = %v, want UNAVAILABLE", err)
	}
}

func TestRecommend_ModelPath(t *testing.T) {
	rec, _ := newFixture(t)
	ctx := context.Background()

	got, err := rec.Recommend(ctx, "u1", 3)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if len(got) == 0 || len(got) > 3 {
		t.Fatalf("Recommend() len = %d, want 1..3", len(got))
	}
	for i, r := range got {
		if r.Rank != i+1 {
			t.Errorf("rank[%d] = %d, want %d", i, r.Rank, i+1)
		}
		if i > 0 && got[i-1].PredictedRating < r.PredictedRating {
			t.Errorf("recommendations not sorted by score")
		}
	}
}

func TestRecommend_ExcludesRated(t *testing.T) {
	rec, st := newFixture(t)
	ctx := context.Background()

	// u1 在线评过 m1，推荐里不能再出现 m1
	if err := st.Upsert(ctx, core.Rating{UserID: "u1", MovieID: "m1", Value: 5}); err != nil {
		t.Fatal(err)
	}
	got, err := rec.Recommend(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	for _, r := range got {
		if r.MovieID == "m1" {
			t.Error("Recommend() returned an already-rated movie")
		}
	}
}

func TestRecommend_ColdStart(t *testing.T) {
	rec, _ := newFixture(t)
	ctx := context.Background()

	result, err := rec.SubmitRating(ctx, "fresh", "m1", 5)
	if err != nil {
		t.Fatalf("SubmitRating() error = %v", err)
	}
	if result.UserTotal != 1 {
		t.Errorf("UserTotal = %d, want 1", result.UserTotal)
	}
	for _, r := range result.Recommendations {
		if r.MovieID == "m1" {
			t.Error("cold-start recommendations contain the rated movie")
		}
		if r.PredictedRating < core.RatingMin || r.PredictedRating > core.RatingMax {
			t.Errorf("score %v out of [1,5]", r.PredictedRating)
		}
	}
}

func TestRecommend_ZeroHistoryEmpty(t *testing.T) {
	rec, _ := newFixture(t)

	got, err := rec.Recommend(context.Background(), "stranger", 5)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Recommend(zero history) len = %d, want 0", len(got))
	}
}

func TestSubmitRating_Validation(t *testing.T) {
	rec, _ := newFixture(t)
	ctx := context.Background()

	if _, err := rec.SubmitRating(ctx, "u1", "m1", 9); !core.IsInvalidInput(err) {
		t.Errorf("SubmitRating(out of range) error = %v, want INVALID_INPUT", err)
	}
	if _, err := rec.SubmitRating(ctx, "", "m1", 3); !core.IsInvalidInput(err) {
		t.Errorf("SubmitRating(no user) error = %v, want INVALID_INPUT", err)
	}
}

func TestDeleteRating(t *testing.T) {
	rec, _ := newFixture(t)
	ctx := context.Background()

	if err := rec.DeleteRating(ctx, "u1", "m1"); !errors.Is(err, core.ErrRatingNotFound) {
		t.Errorf("DeleteRating(missing) error = %v, want ErrRatingNotFound", err)
	}

	if _, err := rec.SubmitRating(ctx, "u9", "m1", 4); err != nil {
		t.Fatal(err)
	}
	if err := rec.DeleteRating(ctx, "u9", "m1"); err != nil {
		t.Fatalf("DeleteRating() error = %v", err)
	}
	if err := rec.DeleteRating(ctx, "u9", "m1"); !errors.Is(err, core.ErrRatingNotFound) {
		t.Errorf("DeleteRating(twice) error = %v, want ErrRatingNotFound", err)
	}
}

func TestDeleteRating_RestoresCorpusRating(t *testing.T) {
	rec, _ := newFixture(t)
	ctx := context.Background()

	// u1/m1 在语料中存在（值 2），在线覆盖后删除
	if _, err := rec.SubmitRating(ctx, "u1", "m1", 5); err != nil {
		t.Fatal(err)
	}
	if err := rec.DeleteRating(ctx, "u1", "m1"); err != nil {
		t.Fatalf("DeleteRating() error = %v", err)
	}

	// 删除只移除在线覆盖，索引回到语料断言的共评
	hist := rec.index.UserHistory("u1")
	got, ok := hist["m1"]
	if !ok {
		t.Fatal("delete dropped the corpus co-rating from the index")
	}
	if got != 2 {
		t.Errorf("index value after delete = %v, want corpus value 2", got)
	}

	// 纯在线评分删除后真正消失
	if _, err := rec.SubmitRating(ctx, "u9", "m1", 4); err != nil {
		t.Fatal(err)
	}
	if err := rec.DeleteRating(ctx, "u9", "m1"); err != nil {
		t.Fatalf("DeleteRating() error = %v", err)
	}
	if _, ok := rec.index.UserHistory("u9")["m1"]; ok {
		t.Error("store-only rating survived in the index after delete")
	}
}

func TestUserHistory(t *testing.T) {
	rec, _ := newFixture(t)
	ctx := context.Background()

	rec.SubmitRating(ctx, "u9", "m1", 4)
	rec.SubmitRating(ctx, "u9", "m2", 5)

	got, err := rec.UserHistory(ctx, "u9")
	if err != nil {
		t.Fatalf("UserHistory() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("UserHistory() len = %d, want 2", len(got))
	}
	if got[0].Timestamp.Before(got[1].Timestamp) {
		t.Error("UserHistory() not sorted newest first")
	}
}

func TestSimilarMovies(t *testing.T) {
	rec, _ := newFixture(t)

	got, err := rec.SimilarMovies(context.Background(), "m1", 3)
	if err != nil {
		t.Fatalf("SimilarMovies() error = %v", err)
	}
	for _, s := range got {
		if s.MovieID == "m1" {
			t.Error("SimilarMovies() returned the query movie")
		}
	}
}

func TestPopularMovies(t *testing.T) {
	rec, _ := newFixture(t)

	got := rec.PopularMovies(context.Background(), 3, 1)
	if len(got) == 0 || len(got) > 3 {
		t.Fatalf("PopularMovies() len = %d, want 1..3", len(got))
	}
	for i, p := range got {
		if p.Rank != i+1 {
			t.Errorf("rank[%d] = %d, want %d", i, p.Rank, i+1)
		}
		if i > 0 && got[i-1].AvgRating < p.AvgRating {
			t.Error("PopularMovies() not sorted by average rating")
		}
	}
}

func TestPublishSwapsSnapshot(t *testing.T) {
	rec, _ := newFixture(t)
	ctx := context.Background()
	old := rec.Active()

	snap, err := model.Train(ctx, rec.corpus.Ratings(), model.TrainConfig{
		SVD:     model.SVDConfig{Factors: 4, Epochs: 5, LearningRate: 0.01, Regularization: 0.02, Seed: 7},
		Holdout: 0.2,
	})
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	rec.Publish(snap)
	if rec.Active() == old {
		t.Error("Publish() did not swap the active snapshot")
	}
	if rec.Active() != snap {
		t.Error("Active() does not return the published snapshot")
	}
}

func TestHealthCheck(t *testing.T) {
	rec, _ := newFixture(t)

	h := rec.HealthCheck(context.Background())
	if h.Status != "healthy" {
		t.Errorf("Status = %s, want healthy", h.Status)
	}
	if !h.ModelLoaded || !h.StoreOK {
		t.Errorf("health = %+v", h)
	}
	if h.StoreName != "memory" {
		t.Errorf("StoreName = %s, want memory", h.StoreName)
	}
}

func TestHealthCheck_NoModel(t *testing.T) {
	ctx := context.Background()
	rec, err := New(ctx, store.NewMemoryStore(), catalog.New(nil), corpus.New(nil))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	h := rec.HealthCheck(ctx)
	if h.Status != "degraded" {
		t.Errorf("Status = %s, want degraded", h.Status)
	}
}

func TestStats(t *testing.T) {
	rec, st := newFixture(t)
	ctx := context.Background()

	st.Upsert(ctx, core.Rating{UserID: "u1", MovieID: "m1", Value: 4})
	stats, err := rec.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalRatings != 1 {
		t.Errorf("TotalRatings = %d, want 1", stats.TotalRatings)
	}
}
