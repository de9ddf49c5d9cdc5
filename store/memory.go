package store

import (
	"context"
	"sync"
	"time"

	"github.com/rushteam/cinerec/core"
)

// MemoryStore 是内存实现的 RatingStore，用于测试/开发/原型。
// 进程重启后数据丢失。
//
// 并发模型：整个 map 由一把 RWMutex 保护，同一 (user, movie) 键的
// 并发 Upsert 在锁内按时间戳做 last-write-wins 判定。
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]map[string]core.Rating // userID -> movieID -> rating
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]map[string]core.Rating),
	}
}

func (m *MemoryStore) Name() string { return "memory" }

func (m *MemoryStore) Upsert(ctx context.Context, r core.Rating) error {
	if err := core.ValidateRating(r.UserID, r.MovieID, r.Value); err != nil {
		return err
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	movies, ok := m.users[r.UserID]
	if !ok {
		movies = make(map[string]core.Rating)
		m.users[r.UserID] = movies
	}
	// last-write-wins：更早的时间戳不覆盖已存记录
	if cur, ok := movies[r.MovieID]; ok && cur.Timestamp.After(r.Timestamp) {
		return nil
	}
	movies[r.MovieID] = r
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, userID, movieID string) (core.Rating, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if movies, ok := m.users[userID]; ok {
		if r, ok := movies[movieID]; ok {
			return r, nil
		}
	}
	return core.Rating{}, core.ErrRatingNotFound
}

func (m *MemoryStore) Delete(ctx context.Context, userID, movieID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	movies, ok := m.users[userID]
	if !ok {
		return core.ErrRatingNotFound
	}
	if _, ok := movies[movieID]; !ok {
		return core.ErrRatingNotFound
	}
	delete(movies, movieID)
	if len(movies) == 0 {
		delete(m.users, userID)
	}
	return nil
}

func (m *MemoryStore) UserRatings(ctx context.Context, userID string) ([]core.Rating, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	movies := m.users[userID]
	out := make([]core.Rating, 0, len(movies))
	for _, r := range movies {
		out = append(out, r)
	}
	return out, nil
}

// AllRatings 返回调用时刻的点位快照；之后的写入不影响返回的切片。
func (m *MemoryStore) AllRatings(ctx context.Context) ([]core.Rating, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []core.Rating
	for _, movies := range m.users {
		for _, r := range movies {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemoryStore) CountSince(ctx context.Context, t time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, movies := range m.users {
		for _, r := range movies {
			if r.Timestamp.After(t) {
				count++
			}
		}
	}
	return count, nil
}

func (m *MemoryStore) Stats(ctx context.Context) (core.StoreStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := core.StoreStats{TotalUsers: len(m.users)}
	movieSet := make(map[string]struct{})
	for _, movies := range m.users {
		stats.TotalRatings += len(movies)
		for movieID := range movies {
			movieSet[movieID] = struct{}{}
		}
	}
	stats.TotalMovies = len(movieSet)
	return stats, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

var _ core.RatingStore = (*MemoryStore)(nil)
