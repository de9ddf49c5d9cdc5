package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rushteam/cinerec/core"
)

// RedisStore 是 Redis 实现的 RatingStore，生产环境常用。
//
// 键布局（{prefix} 默认 "ratings"）：
//   - {prefix}:user:{userID}  Hash：field=movieID，value=JSON{value, ts}
//   - {prefix}:users          Set：有评分的用户 ID
//   - {prefix}:updated        ZSet：member=userID+movieID，score=更新时间（毫秒）
//   - {prefix}:movies         Hash：field=movieID，value=评分条数
//
// 同一 (user, movie) 键的 Upsert/Delete 通过 Lua 脚本原子执行，
// 保证 last-write-wins 判定与索引维护不会交错。
type RedisStore struct {
	client *redis.Client
	prefix string
}

// ratingRecord 是 Hash field 中存储的载荷。
type ratingRecord struct {
	Value float64 `json:"value"`
	TS    int64   `json:"ts"` // 毫秒时间戳
}

var upsertScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], ARGV[2])
if cur then
  local curts = cjson.decode(cur)['ts']
  if curts > tonumber(ARGV[4]) then
    return 0
  end
else
  redis.call('HINCRBY', KEYS[4], ARGV[2], 1)
end
redis.call('HSET', KEYS[1], ARGV[2], ARGV[3])
redis.call('SADD', KEYS[2], ARGV[1])
redis.call('ZADD', KEYS[3], ARGV[4], ARGV[5])
return 1
`)

var deleteScript = redis.NewScript(`
local removed = redis.call('HDEL', KEYS[1], ARGV[2])
if removed == 0 then
  return 0
end
local left = redis.call('HINCRBY', KEYS[4], ARGV[2], -1)
if left <= 0 then
  redis.call('HDEL', KEYS[4], ARGV[2])
end
redis.call('ZREM', KEYS[3], ARGV[5])
if redis.call('HLEN', KEYS[1]) == 0 then
  redis.call('SREM', KEYS[2], ARGV[1])
end
return 1
`)

// RedisOption 配置 RedisStore。
type RedisOption func(*redis.Options, *RedisStore)

// WithPassword 设置连接密码。
func WithPassword(password string) RedisOption {
	return func(o *redis.Options, _ *RedisStore) { o.Password = password }
}

// WithKeyPrefix 覆盖默认键前缀 "ratings"。
func WithKeyPrefix(prefix string) RedisOption {
	return func(_ *redis.Options, s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

func NewRedisStore(addr string, db int, opts ...RedisOption) (*RedisStore, error) {
	ropts := &redis.Options{
		Addr: addr,
		DB:   db,
	}
	s := &RedisStore{prefix: "ratings"}
	for _, opt := range opts {
		opt(ropts, s)
	}
	s.client = redis.NewClient(ropts)
	if err := s.client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrStoreUnavailable, err)
	}
	return s, nil
}

func (r *RedisStore) Name() string { return "redis" }

func (r *RedisStore) userKey(userID string) string { return r.prefix + ":user:" + userID }
func (r *RedisStore) usersKey() string             { return r.prefix + ":users" }
func (r *RedisStore) updatedKey() string           { return r.prefix + ":updated" }
func (r *RedisStore) moviesKey() string            { return r.prefix + ":movies" }

func member(userID, movieID string) string { return userID + "\x00" + movieID }

func (r *RedisStore) Upsert(ctx context.Context, rating core.Rating) error {
	if err := core.ValidateRating(rating.UserID, rating.MovieID, rating.Value); err != nil {
		return err
	}
	if rating.Timestamp.IsZero() {
		rating.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(ratingRecord{
		Value: rating.Value,
		TS:    rating.Timestamp.UnixMilli(),
	})
	if err != nil {
		return err
	}

	keys := []string{r.userKey(rating.UserID), r.usersKey(), r.updatedKey(), r.moviesKey()}
	args := []interface{}{
		rating.UserID,
		rating.MovieID,
		string(payload),
		rating.Timestamp.UnixMilli(),
		member(rating.UserID, rating.MovieID),
	}
	if err := upsertScript.Run(ctx, r.client, keys, args...).Err(); err != nil {
		return fmt.Errorf("%w: %s", core.ErrStoreUnavailable, err)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, userID, movieID string) (core.Rating, error) {
	data, err := r.client.HGet(ctx, r.userKey(userID), movieID).Bytes()
	if err == redis.Nil {
		return core.Rating{}, core.ErrRatingNotFound
	}
	if err != nil {
		return core.Rating{}, fmt.Errorf("%w: %s", core.ErrStoreUnavailable, err)
	}
	return r.decode(userID, movieID, data)
}

func (r *RedisStore) Delete(ctx context.Context, userID, movieID string) error {
	keys := []string{r.userKey(userID), r.usersKey(), r.updatedKey(), r.moviesKey()}
	args := []interface{}{userID, movieID, "", 0, member(userID, movieID)}
	removed, err := deleteScript.Run(ctx, r.client, keys, args...).Int()
	if err != nil {
		return fmt.Errorf("%w: %s", core.ErrStoreUnavailable, err)
	}
	if removed == 0 {
		return core.ErrRatingNotFound
	}
	return nil
}

func (r *RedisStore) UserRatings(ctx context.Context, userID string) ([]core.Rating, error) {
	fields, err := r.client.HGetAll(ctx, r.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrStoreUnavailable, err)
	}
	out := make([]core.Rating, 0, len(fields))
	for movieID, data := range fields {
		rating, err := r.decode(userID, movieID, []byte(data))
		if err != nil {
			return nil, err
		}
		out = append(out, rating)
	}
	return out, nil
}

func (r *RedisStore) AllRatings(ctx context.Context) ([]core.Rating, error) {
	users, err := r.client.SMembers(ctx, r.usersKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrStoreUnavailable, err)
	}
	if len(users) == 0 {
		return nil, nil
	}

	// 批量读取，减少网络往返
	pipe := r.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(users))
	for i, userID := range users {
		cmds[i] = pipe.HGetAll(ctx, r.userKey(userID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrStoreUnavailable, err)
	}

	var out []core.Rating
	for i, userID := range users {
		for movieID, data := range cmds[i].Val() {
			rating, err := r.decode(userID, movieID, []byte(data))
			if err != nil {
				return nil, err
			}
			out = append(out, rating)
		}
	}
	return out, nil
}

func (r *RedisStore) CountSince(ctx context.Context, t time.Time) (int, error) {
	min := "(" + strconv.FormatInt(t.UnixMilli(), 10)
	n, err := r.client.ZCount(ctx, r.updatedKey(), min, "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %s", core.ErrStoreUnavailable, err)
	}
	return int(n), nil
}

func (r *RedisStore) Stats(ctx context.Context) (core.StoreStats, error) {
	pipe := r.client.Pipeline()
	total := pipe.ZCard(ctx, r.updatedKey())
	users := pipe.SCard(ctx, r.usersKey())
	movies := pipe.HLen(ctx, r.moviesKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return core.StoreStats{}, fmt.Errorf("%w: %s", core.ErrStoreUnavailable, err)
	}
	return core.StoreStats{
		TotalRatings: int(total.Val()),
		TotalUsers:   int(users.Val()),
		TotalMovies:  int(movies.Val()),
	}, nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %s", core.ErrStoreUnavailable, err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) decode(userID, movieID string, data []byte) (core.Rating, error) {
	var rec ratingRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return core.Rating{}, fmt.Errorf("store: corrupt rating %s/%s: %w", userID, movieID, err)
	}
	return core.Rating{
		UserID:    userID,
		MovieID:   movieID,
		Value:     rec.Value,
		Timestamp: time.UnixMilli(rec.TS).UTC(),
	}, nil
}

var _ core.RatingStore = (*RedisStore)(nil)
