package core

import (
	"strings"
	"time"
)

// 评分取值范围：MovieLens 风格的 1-5 星。
const (
	RatingMin = 1.0
	RatingMax = 5.0
)

// Rating 是推荐链路中的最小事实单元：某个用户在某个时刻给某部影片打的分。
// (UserID, MovieID) 唯一；重复提交按 upsert 语义覆盖旧值和时间戳。
type Rating struct {
	UserID    string    `json:"user_id"`
	MovieID   string    `json:"movie_id"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// Key 返回 (UserID, MovieID) 的组合键，用于合并/去重。
func (r Rating) Key() string {
	return r.UserID + "\x00" + r.MovieID
}

// ValidateRating 校验一条评分输入。
// 返回 INVALID_INPUT 级别的 DomainError；校验失败的评分不会被持久化。
func ValidateRating(userID, movieID string, value float64) error {
	if strings.TrimSpace(userID) == "" {
		return NewDomainError(ModuleStore, ErrorCodeInvalidInput, "rating: user_id is required")
	}
	if strings.TrimSpace(movieID) == "" {
		return NewDomainError(ModuleStore, ErrorCodeInvalidInput, "rating: movie_id is required")
	}
	if value < RatingMin || value > RatingMax {
		return NewDomainError(ModuleStore, ErrorCodeInvalidInput, "rating: value out of range [1,5]")
	}
	return nil
}

// ClampRating 把预测分数夹取到合法评分区间。
func ClampRating(v float64) float64 {
	if v < RatingMin {
		return RatingMin
	}
	if v > RatingMax {
		return RatingMax
	}
	return v
}

// Movie 是影片目录中的一条元数据，进程生命周期内不可变。
type Movie struct {
	ID     string   `json:"id"`
	Title  string   `json:"title"`
	Genres []string `json:"genres,omitempty"`
}
