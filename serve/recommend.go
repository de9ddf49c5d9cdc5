package serve

import (
	"context"
	"sort"

	"github.com/rushteam/cinerec/core"
	"github.com/rushteam/cinerec/corpus"
)

// Recommendation 是推荐列表中的一项。
type Recommendation struct {
	MovieID         string  `json:"movie_id"`
	PredictedRating float64 `json:"predicted_rating"`
	Rank            int     `json:"rank"`
	Title           string  `json:"title"`
}

// Recommend 为用户生成 Top-N 推荐，排除其已评分的影片。
//
// 路径选择与 PredictRating 一致：
//   - 快照覆盖该用户 -> 对模型内全部未评分影片打分取 Top-N
//   - 未覆盖但有历史 -> 以高分影片（>= 4.0）为种子做共评相似度扩散
//   - 零历史          -> 空列表（调用方可回落到 PopularMovies）
func (r *Recommender) Recommend(ctx context.Context, userID string, n int) ([]Recommendation, error) {
	if userID == "" {
		return nil, core.NewDomainError(core.ModuleServe, core.ErrorCodeInvalidInput, "serve: user_id is required")
	}
	if n <= 0 {
		n = 10
	}

	rated, err := r.ratedSet(ctx, userID)
	if err != nil {
		return nil, err
	}

	snap := r.snapshot.Load()
	if snap != nil && snap.HasUser(userID) {
		scored, err := snap.TopN(userID, n, rated)
		if err != nil {
			return nil, err
		}
		out := make([]Recommendation, 0, len(scored))
		for i, s := range scored {
			out = append(out, Recommendation{
				MovieID:         s.MovieID,
				PredictedRating: s.Score,
				Rank:            i + 1,
				Title:           r.catalog.Lookup(ctx, s.MovieID).Title,
			})
		}
		r.metrics.Recommendation(SourceModel)
		return out, nil
	}

	out := r.similarityRecommend(ctx, userID, n, rated)
	r.metrics.Recommendation(SourceSimilarity)
	return out, nil
}

// similarityRecommend 是冷启动推荐：以用户的高分影片为种子，
// 从共评相似度索引扩散候选，按 评分*相似度 的均值打分。
func (r *Recommender) similarityRecommend(ctx context.Context, userID string, n int, rated map[string]struct{}) []Recommendation {
	history := r.index.UserHistory(userID)
	if len(history) == 0 {
		return []Recommendation{}
	}

	type acc struct {
		sum float64
		cnt int
	}
	scores := make(map[string]*acc)
	for seed, value := range history {
		if value < 4.0 {
			continue
		}
		for _, s := range r.index.Similar(seed, r.similarPerSeed, rated) {
			a := scores[s.MovieID]
			if a == nil {
				a = &acc{}
				scores[s.MovieID] = a
			}
			a.sum += value * s.Score
			a.cnt++
		}
	}
	if len(scores) == 0 {
		return []Recommendation{}
	}

	type candidate struct {
		movieID string
		score   float64
	}
	cands := make([]candidate, 0, len(scores))
	for id, a := range scores {
		cands = append(cands, candidate{movieID: id, score: a.sum / float64(a.cnt)})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score > cands[j].score
		}
		// 同分按语料热度裁决，再按 ID 保证确定性
		pi, pj := r.popularity[cands[i].movieID], r.popularity[cands[j].movieID]
		if pi != pj {
			return pi > pj
		}
		return cands[i].movieID < cands[j].movieID
	})
	if len(cands) > n {
		cands = cands[:n]
	}

	out := make([]Recommendation, 0, len(cands))
	for i, c := range cands {
		out = append(out, Recommendation{
			MovieID:         c.movieID,
			PredictedRating: core.ClampRating(c.score),
			Rank:            i + 1,
			Title:           r.catalog.Lookup(ctx, c.movieID).Title,
		})
	}
	return out
}

// SimilarMovie 是相似影片列表中的一项。
type SimilarMovie struct {
	MovieID    string  `json:"movie_id"`
	Similarity float64 `json:"similarity"`
	Title      string  `json:"title"`
}

// SimilarMovies 返回与指定影片共评相似度最高的 n 部影片（不含其自身）。
func (r *Recommender) SimilarMovies(ctx context.Context, movieID string, n int) ([]SimilarMovie, error) {
	if movieID == "" {
		return nil, core.NewDomainError(core.ModuleServe, core.ErrorCodeInvalidInput, "serve: movie_id is required")
	}
	if n <= 0 {
		n = 10
	}
	excluded := map[string]struct{}{movieID: {}}
	out := make([]SimilarMovie, 0, n)
	for _, s := range r.index.Similar(movieID, n, excluded) {
		out = append(out, SimilarMovie{
			MovieID:    s.MovieID,
			Similarity: s.Score,
			Title:      r.catalog.Lookup(ctx, s.MovieID).Title,
		})
	}
	return out, nil
}

// RankedPopular 是热门榜单中的一项。
type RankedPopular struct {
	corpus.PopularMovie
	Rank  int    `json:"rank"`
	Title string `json:"title"`
}

// PopularMovies 返回语料中平均分最高的 n 部影片，至少 minRatings 条评分。
func (r *Recommender) PopularMovies(ctx context.Context, n, minRatings int) []RankedPopular {
	if r.corpus == nil {
		return []RankedPopular{}
	}
	if n <= 0 {
		n = 10
	}
	pops := r.corpus.Popular(n, minRatings)
	out := make([]RankedPopular, 0, len(pops))
	for i, p := range pops {
		out = append(out, RankedPopular{
			PopularMovie: p,
			Rank:         i + 1,
			Title:        r.catalog.Lookup(ctx, p.MovieID).Title,
		})
	}
	return out
}

// ratedSet 返回用户在评分库中已评分的影片集合（推荐排除用）。
func (r *Recommender) ratedSet(ctx context.Context, userID string) (map[string]struct{}, error) {
	ratings, err := r.store.UserRatings(ctx, userID)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(ratings))
	for _, rt := range ratings {
		set[rt.MovieID] = struct{}{}
	}
	// 索引里可能还有语料历史（同名用户），一并排除
	for id := range r.index.UserHistory(userID) {
		set[id] = struct{}{}
	}
	return set, nil
}
