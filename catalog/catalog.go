// Package catalog 负责影片目录：启动时从静态文件加载，进程生命周期内不可变。
//
// 支持原始数据集的三种常见格式：
//   - movies.dat  "::" 分隔（MovieLens 1M）
//   - movies.csv  逗号分隔，带表头
//   - movies.tsv  制表符分隔，带表头
//
// 目录缺失的影片可以通过可选的 Enricher（如 Feast 在线特征库）按需补齐，
// 补齐结果缓存在目录之外，不改变目录本身。
package catalog

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rushteam/cinerec/core"
)

// Enricher 按影片 ID 解析元数据的外部来源（领域接口，feast 包提供实现）。
type Enricher interface {
	MovieMetadata(ctx context.Context, movieID string) (core.Movie, error)
}

// Catalog 是不可变的影片目录。
type Catalog struct {
	movies map[string]core.Movie

	enricher Enricher
	enriched sync.Map // movieID -> core.Movie（Enricher 结果缓存）
}

// LoadFile 从静态文件加载目录。按扩展名选择解析方式。
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	defer f.Close()

	movies := make(map[string]core.Movie)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".dat":
		err = parseDat(f, movies)
	case ".tsv":
		err = parseDelimited(f, '\t', movies)
	default:
		err = parseDelimited(f, ',', movies)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
	}
	return &Catalog{movies: movies}, nil
}

// New 从内存构建目录（测试/演示用）。
func New(movies []core.Movie) *Catalog {
	m := make(map[string]core.Movie, len(movies))
	for _, movie := range movies {
		m[movie.ID] = movie
	}
	return &Catalog{movies: m}
}

// WithEnricher 挂载补齐来源，返回目录自身便于链式调用。
func (c *Catalog) WithEnricher(e Enricher) *Catalog {
	c.enricher = e
	return c
}

// Len 返回目录条目数。
func (c *Catalog) Len() int { return len(c.movies) }

// Title 返回影片标题；目录缺失时返回 "Movie {id}" 占位标题。
func (c *Catalog) Title(movieID string) string {
	if movie, ok := c.movies[movieID]; ok {
		return movie.Title
	}
	if movie, ok := c.enriched.Load(movieID); ok {
		return movie.(core.Movie).Title
	}
	return "Movie " + movieID
}

// Lookup 解析一条影片元数据：目录命中直接返回；否则尝试 Enricher，
// 成功的结果缓存供后续 Title 使用；都失败时返回占位条目。
func (c *Catalog) Lookup(ctx context.Context, movieID string) core.Movie {
	if movie, ok := c.movies[movieID]; ok {
		return movie
	}
	if movie, ok := c.enriched.Load(movieID); ok {
		return movie.(core.Movie)
	}
	if c.enricher != nil {
		if movie, err := c.enricher.MovieMetadata(ctx, movieID); err == nil && movie.Title != "" {
			movie.ID = movieID
			c.enriched.Store(movieID, movie)
			return movie
		}
	}
	return core.Movie{ID: movieID, Title: "Movie " + movieID}
}

// parseDat 解析 "::" 分隔的 MovieLens 格式：movieID::title::genre|genre。
func parseDat(f io.Reader, movies map[string]core.Movie) error {
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "::", 3)
		if len(parts) < 2 {
			continue
		}
		movie := core.Movie{ID: parts[0], Title: parts[1]}
		if len(parts) == 3 && parts[2] != "" {
			movie.Genres = strings.Split(parts[2], "|")
		}
		movies[movie.ID] = movie
	}
	return scanner.Err()
}

// parseDelimited 解析带表头的 csv/tsv：列名 movieId,title[,genres]。
func parseDelimited(f io.Reader, sep rune, movies map[string]core.Movie) error {
	r := csv.NewReader(f)
	r.Comma = sep
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	idCol, titleCol, genresCol := -1, -1, -1
	for i, name := range records[0] {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "movieid":
			idCol = i
		case "title":
			titleCol = i
		case "genres":
			genresCol = i
		}
	}
	if idCol < 0 || titleCol < 0 {
		return fmt.Errorf("missing movieId/title columns")
	}

	for _, rec := range records[1:] {
		if len(rec) <= idCol || len(rec) <= titleCol {
			continue
		}
		movie := core.Movie{ID: rec[idCol], Title: rec[titleCol]}
		if genresCol >= 0 && len(rec) > genresCol && rec[genresCol] != "" {
			movie.Genres = strings.Split(rec[genresCol], "|")
		}
		movies[movie.ID] = movie
	}
	return nil
}
