package core

import (
	"context"
	"time"
)

// RatingStore 是评分存储的领域接口。
//
// 设计原则：
//   - 定义在领域层（core），由基础设施层（store）实现
//   - 遵循依赖倒置原则：领域层定义接口，基础设施层实现接口
//   - 避免循环依赖：领域层不依赖基础设施层
//
// 并发约定：
//   - Upsert 对同一 (user, movie) 键串行化，按时间戳 last-write-wins
//   - 不同键的写入互不阻塞
//   - AllRatings 返回调用时刻的点位快照，后续写入不影响已返回的切片
//
// 实现：
//   - store.MemoryStore 实现此接口（测试/开发/原型）
//   - store.RedisStore 实现此接口（生产）
type RatingStore interface {
	// Name 返回存储后端名称（用于日志/健康上报）
	Name() string

	// Upsert 插入或更新一条评分；时间戳早于已存记录时为 no-op（LWW）
	Upsert(ctx context.Context, r Rating) error

	// Get 读取单条评分；不存在时返回 ErrRatingNotFound
	Get(ctx context.Context, userID, movieID string) (Rating, error)

	// Delete 删除单条评分；不存在时返回 ErrRatingNotFound
	Delete(ctx context.Context, userID, movieID string) error

	// UserRatings 返回某个用户的全部评分（无序）
	UserRatings(ctx context.Context, userID string) ([]Rating, error)

	// AllRatings 返回全部评分的点位快照（重训合并用）
	AllRatings(ctx context.Context) ([]Rating, error)

	// CountSince 统计时间戳晚于 t 的评分条数（重训阈值判定用）
	CountSince(ctx context.Context, t time.Time) (int, error)

	// Stats 返回聚合统计
	Stats(ctx context.Context) (StoreStats, error)

	// Ping 探测存储连通性（健康上报用）
	Ping(ctx context.Context) error

	// Close 关闭连接/释放资源
	Close() error
}

// StoreStats 是评分存储的聚合统计。
type StoreStats struct {
	TotalRatings int `json:"total_ratings"`
	TotalUsers   int `json:"total_users"`
	TotalMovies  int `json:"total_items_rated"`
}
