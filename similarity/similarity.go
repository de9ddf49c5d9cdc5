// Package similarity 维护物品-物品共评相似度索引，服务冷启动降级路径：
// 不在模型内的用户/影片通过"被同一批用户评过分的影片相互相似"来估分。
//
// 索引是评分库的读模型缓存：以语料 + 实时评分播种，评分写入/删除后
// 增量更新；事实源仍是 core.RatingStore。
package similarity

import (
	"math"
	"sort"
	"sync"

	"github.com/rushteam/cinerec/core"
)

// Index 是内存中的共评矩阵：用户->影片与影片->用户两份视图。
//
// 配置字段保持零值可用：零值回落到默认值。
type Index struct {
	// Metric 相似度度量方式：cosine / pearson，默认 cosine
	Metric string

	// MinCommonRaters 两部影片至少需要多少个共同评分用户才计算相似度，默认 2
	MinCommonRaters int

	// K 估分时参考的最相似影片数，默认 5
	K int

	mu         sync.RWMutex
	userMovies map[string]map[string]float64 // userID -> movieID -> rating
	movieUsers map[string]map[string]float64 // movieID -> userID -> rating
}

func NewIndex() *Index {
	return &Index{
		userMovies: make(map[string]map[string]float64),
		movieUsers: make(map[string]map[string]float64),
	}
}

func (idx *Index) minCommon() int {
	if idx.MinCommonRaters <= 0 {
		return 2
	}
	return idx.MinCommonRaters
}

func (idx *Index) neighbors() int {
	if idx.K <= 0 {
		return 5
	}
	return idx.K
}

// Load 批量载入评分（语料播种用）。重复键以后写入的为准。
func (idx *Index) Load(ratings []core.Rating) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, r := range ratings {
		idx.add(r.UserID, r.MovieID, r.Value)
	}
}

// Add 增量写入一条评分（upsert 语义）。
func (idx *Index) Add(r core.Rating) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.add(r.UserID, r.MovieID, r.Value)
}

// Remove 删除一条评分；不存在时为 no-op。
func (idx *Index) Remove(userID, movieID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if movies, ok := idx.userMovies[userID]; ok {
		delete(movies, movieID)
		if len(movies) == 0 {
			delete(idx.userMovies, userID)
		}
	}
	if users, ok := idx.movieUsers[movieID]; ok {
		delete(users, userID)
		if len(users) == 0 {
			delete(idx.movieUsers, movieID)
		}
	}
}

func (idx *Index) add(userID, movieID string, value float64) {
	if idx.userMovies[userID] == nil {
		idx.userMovies[userID] = make(map[string]float64)
	}
	idx.userMovies[userID][movieID] = value

	if idx.movieUsers[movieID] == nil {
		idx.movieUsers[movieID] = make(map[string]float64)
	}
	idx.movieUsers[movieID][userID] = value
}

// Scored 是相似度排序结果中的一项。
type Scored struct {
	MovieID string
	Score   float64
}

// Similar 返回与 movieID 共评相似度最高的 n 部影片。
// 查询影片本身与 excluded 中的影片被排除。
// 排序规则：相似度降序，同分按影片 ID 升序。
func (idx *Index) Similar(movieID string, n int, excluded map[string]struct{}) []Scored {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if n <= 0 {
		return nil
	}
	sourceUsers, ok := idx.movieUsers[movieID]
	if !ok || len(sourceUsers) == 0 {
		return nil
	}

	// 只有与查询影片存在共同评分用户的影片才可能相似，
	// 从共同用户的历史出发收集候选，避免全量扫描
	candidates := make(map[string]struct{})
	for userID := range sourceUsers {
		for otherID := range idx.userMovies[userID] {
			if otherID == movieID {
				continue
			}
			if _, skip := excluded[otherID]; skip {
				continue
			}
			candidates[otherID] = struct{}{}
		}
	}

	scored := make([]Scored, 0, len(candidates))
	for candidateID := range candidates {
		sim, ok := idx.similarityLocked(sourceUsers, idx.movieUsers[candidateID])
		if !ok {
			continue
		}
		scored = append(scored, Scored{MovieID: candidateID, Score: sim})
	}

	sort.Slice(scored, func(a, b int) bool {
		if scored[a].Score != scored[b].Score {
			return scored[a].Score > scored[b].Score
		}
		return scored[a].MovieID < scored[b].MovieID
	})
	if len(scored) > n {
		scored = scored[:n]
	}
	return scored
}

// EstimateRating 估计用户对影片的评分：取用户历史中与目标影片最相似的
// K 部影片，返回用户对它们评分的平均值。
// 用户没有任何可参考历史时返回 (0, false)，由调用方回落到全局均值。
func (idx *Index) EstimateRating(userID, movieID string) (float64, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	history := idx.userMovies[userID]
	if len(history) == 0 {
		return 0, false
	}
	targetUsers := idx.movieUsers[movieID]

	type ratedSim struct {
		rating float64
		sim    float64
	}
	sims := make([]ratedSim, 0, len(history))
	for ratedID, rating := range history {
		if ratedID == movieID {
			continue
		}
		sim, ok := idx.similarityLocked(targetUsers, idx.movieUsers[ratedID])
		if !ok {
			continue
		}
		sims = append(sims, ratedSim{rating: rating, sim: sim})
	}
	if len(sims) == 0 {
		return 0, false
	}

	sort.Slice(sims, func(a, b int) bool { return sims[a].sim > sims[b].sim })
	k := idx.neighbors()
	if len(sims) > k {
		sims = sims[:k]
	}

	var sum float64
	for _, rs := range sims {
		sum += rs.rating
	}
	return sum / float64(len(sims)), true
}

// UserHistory 返回用户评分历史的副本。
func (idx *Index) UserHistory(userID string) map[string]float64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make(map[string]float64, len(idx.userMovies[userID]))
	for movieID, rating := range idx.userMovies[userID] {
		out[movieID] = rating
	}
	return out
}

// similarityLocked 计算两部影片在共同评分用户上的相似度。
// 共同用户数不足 MinCommonRaters 时返回 (0, false)。
// 返回值对称且落在 [-1, 1]。调用方需持有读锁。
func (idx *Index) similarityLocked(a, b map[string]float64) (float64, bool) {
	if len(a) == 0 || len(b) == 0 {
		return 0, false
	}
	// 遍历较小的一侧
	if len(b) < len(a) {
		a, b = b, a
	}

	var scoresA, scoresB []float64
	for userID, ra := range a {
		if rb, ok := b[userID]; ok {
			scoresA = append(scoresA, ra)
			scoresB = append(scoresB, rb)
		}
	}
	if len(scoresA) < idx.minCommon() {
		return 0, false
	}

	switch idx.Metric {
	case "pearson":
		return pearsonCorrelation(scoresA, scoresB), true
	default:
		return cosineSimilarity(scoresA, scoresB), true
	}
}

// cosineSimilarity 计算两个评分向量的余弦相似度。
func cosineSimilarity(a, b []float64) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// pearsonCorrelation 计算两个评分向量的皮尔逊相关系数。
func pearsonCorrelation(a, b []float64) float64 {
	n := float64(len(a))
	if n == 0 {
		return 0
	}
	var sumA, sumB float64
	for i := range a {
		sumA += a[i]
		sumB += b[i]
	}
	meanA := sumA / n
	meanB := sumB / n

	var cov, varA, varB float64
	for i := range a {
		da := a[i] - meanA
		db := b[i] - meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return 0
	}
	return cov / (math.Sqrt(varA) * math.Sqrt(varB))
}
