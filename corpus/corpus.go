// Package corpus 负责原始训练语料：历史评分数据集的加载与全局热门统计。
//
// 支持原始数据集的两种格式：
//   - ratings.dat  "::" 分隔（userID::movieID::rating::timestamp）
//   - ratings.csv  逗号分隔，带表头（userId,movieId,rating,timestamp）
package corpus

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rushteam/cinerec/core"
)

// Corpus 是只读的历史评分集合。
type Corpus struct {
	ratings []core.Rating

	indexOnce sync.Once
	byKey     map[string]core.Rating
}

// LoadFile 从静态文件加载语料。按扩展名选择解析方式。
func LoadFile(path string) (*Corpus, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("corpus: open %s: %w", path, err)
	}
	defer f.Close()

	c := &Corpus{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	dat := strings.EqualFold(filepath.Ext(path), ".dat")
	first := true
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		var fields []string
		if dat {
			fields = strings.Split(line, "::")
		} else {
			fields = strings.Split(line, ",")
			if first && strings.EqualFold(strings.TrimSpace(fields[0]), "userid") {
				first = false
				continue // 表头
			}
		}
		first = false
		r, err := parseFields(fields)
		if err != nil {
			return nil, fmt.Errorf("corpus: parse %s: %w", path, err)
		}
		c.ratings = append(c.ratings, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("corpus: read %s: %w", path, err)
	}
	return c, nil
}

// New 从内存构建语料（测试/演示用）。
func New(ratings []core.Rating) *Corpus {
	return &Corpus{ratings: ratings}
}

// Ratings 返回语料评分切片；调用方不得修改。
func (c *Corpus) Ratings() []core.Rating { return c.ratings }

// Len 返回语料评分条数。
func (c *Corpus) Len() int { return len(c.ratings) }

// Rating 按 (user, movie) 查找语料评分。索引首次调用时延迟构建。
func (c *Corpus) Rating(userID, movieID string) (core.Rating, bool) {
	c.indexOnce.Do(func() {
		c.byKey = make(map[string]core.Rating, len(c.ratings))
		for _, r := range c.ratings {
			c.byKey[r.Key()] = r
		}
	})
	r, ok := c.byKey[core.Rating{UserID: userID, MovieID: movieID}.Key()]
	return r, ok
}

// PopularMovie 是热门排行中的一项。
type PopularMovie struct {
	MovieID    string
	AvgRating  float64
	NumRatings int
}

// Popular 返回语料中评分条数不少于 minRatings 的影片，按平均分降序取前 n。
// 同分按评分条数降序，再按影片 ID 升序。
func (c *Corpus) Popular(n, minRatings int) []PopularMovie {
	if n <= 0 {
		return nil
	}
	if minRatings <= 0 {
		minRatings = 1
	}

	type agg struct {
		sum   float64
		count int
	}
	byMovie := make(map[string]*agg)
	for _, r := range c.ratings {
		a := byMovie[r.MovieID]
		if a == nil {
			a = &agg{}
			byMovie[r.MovieID] = a
		}
		a.sum += r.Value
		a.count++
	}

	out := make([]PopularMovie, 0, len(byMovie))
	for movieID, a := range byMovie {
		if a.count < minRatings {
			continue
		}
		out = append(out, PopularMovie{
			MovieID:    movieID,
			AvgRating:  a.sum / float64(a.count),
			NumRatings: a.count,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].AvgRating != out[j].AvgRating {
			return out[i].AvgRating > out[j].AvgRating
		}
		if out[i].NumRatings != out[j].NumRatings {
			return out[i].NumRatings > out[j].NumRatings
		}
		return out[i].MovieID < out[j].MovieID
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// RatingCounts 返回每部影片的评分条数（冷启动排序的热度参考）。
func (c *Corpus) RatingCounts() map[string]int {
	counts := make(map[string]int)
	for _, r := range c.ratings {
		counts[r.MovieID]++
	}
	return counts
}

func parseFields(fields []string) (core.Rating, error) {
	if len(fields) < 3 {
		return core.Rating{}, fmt.Errorf("want at least 3 fields, got %d", len(fields))
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
	if err != nil {
		return core.Rating{}, fmt.Errorf("bad rating value %q", fields[2])
	}
	r := core.Rating{
		UserID:  strings.TrimSpace(fields[0]),
		MovieID: strings.TrimSpace(fields[1]),
		Value:   value,
	}
	if len(fields) >= 4 {
		if ts, err := strconv.ParseInt(strings.TrimSpace(fields[3]), 10, 64); err == nil {
			r.Timestamp = time.Unix(ts, 0).UTC()
		}
	}
	return r, nil
}
