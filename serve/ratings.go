package serve

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/rushteam/cinerec/core"
)

// SubmitResult 是提交评分后的响应：回显保存的评分，
// 并基于最新状态刷新一批推荐，让调用方立刻看到反馈效果。
type SubmitResult struct {
	Rating          core.Rating      `json:"rating"`
	MovieTitle      string           `json:"movie_title"`
	UserTotal       int              `json:"user_total_ratings"`
	Recommendations []Recommendation `json:"recommendations"`
}

// SubmitRating 写入一条评分并返回刷新后的推荐。
// 评分立即进入相似度索引（冷启动路径即时可见），模型路径要等下次重训。
func (r *Recommender) SubmitRating(ctx context.Context, userID, movieID string, value float64) (SubmitResult, error) {
	if err := core.ValidateRating(userID, movieID, value); err != nil {
		return SubmitResult{}, err
	}

	rating := core.Rating{
		UserID:    userID,
		MovieID:   movieID,
		Value:     value,
		Timestamp: time.Now().UTC(),
	}
	if err := r.store.Upsert(ctx, rating); err != nil {
		return SubmitResult{}, err
	}
	r.index.Add(rating)
	r.metrics.RatingSubmitted()
	r.logger.Debug("rating submitted",
		zap.String("user_id", userID),
		zap.String("movie_id", movieID),
		zap.Float64("value", value),
	)

	history, err := r.store.UserRatings(ctx, userID)
	if err != nil {
		return SubmitResult{}, err
	}
	recs, err := r.Recommend(ctx, userID, 10)
	if err != nil {
		return SubmitResult{}, err
	}
	return SubmitResult{
		Rating:          rating,
		MovieTitle:      r.catalog.Lookup(ctx, movieID).Title,
		UserTotal:       len(history),
		Recommendations: recs,
	}, nil
}

// DeleteRating 删除一条评分；不存在时返回 ErrRatingNotFound。
func (r *Recommender) DeleteRating(ctx context.Context, userID, movieID string) error {
	if err := validateIDs(userID, movieID); err != nil {
		return err
	}
	if err := r.store.Delete(ctx, userID, movieID); err != nil {
		return err
	}
	r.index.Remove(userID, movieID)
	// 索引从 语料 ∪ 评分库 播种：语料仍断言该共评时回填，
	// 只有纯在线的评分才从读模型中真正消失
	if r.corpus != nil {
		if base, ok := r.corpus.Rating(userID, movieID); ok {
			r.index.Add(base)
		}
	}
	r.metrics.RatingDeleted()
	r.logger.Debug("rating deleted",
		zap.String("user_id", userID),
		zap.String("movie_id", movieID),
	)
	return nil
}

// HistoryItem 是用户评分历史中的一项。
type HistoryItem struct {
	MovieID   string    `json:"movie_id"`
	Title     string    `json:"title"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// UserHistory 返回用户在评分库中的全部评分，按时间倒序。
func (r *Recommender) UserHistory(ctx context.Context, userID string) ([]HistoryItem, error) {
	if userID == "" {
		return nil, core.NewDomainError(core.ModuleServe, core.ErrorCodeInvalidInput, "serve: user_id is required")
	}
	ratings, err := r.store.UserRatings(ctx, userID)
	if err != nil {
		return nil, err
	}
	items := make([]HistoryItem, 0, len(ratings))
	for _, rt := range ratings {
		items = append(items, HistoryItem{
			MovieID:   rt.MovieID,
			Title:     r.catalog.Lookup(ctx, rt.MovieID).Title,
			Value:     rt.Value,
			Timestamp: rt.Timestamp,
		})
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].Timestamp.Equal(items[j].Timestamp) {
			return items[i].Timestamp.After(items[j].Timestamp)
		}
		return items[i].MovieID < items[j].MovieID
	})
	return items, nil
}
