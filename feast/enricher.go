package feast

import (
	"context"
	"fmt"
	"strings"

	"github.com/rushteam/cinerec/core"
)

// 影片特征引用（movie_features 特征视图）。
const (
	featureTitle  = "movie_features:title"
	featureGenres = "movie_features:genres"

	entityMovieID = "movie_id"
)

// MovieEnricher 用 Feast 在线特征补齐影片元数据，实现 catalog.Enricher。
// 静态目录缺失的影片按需从特征库取 title/genres。
type MovieEnricher struct {
	client Client
}

// NewMovieEnricher 构建目录补齐器。
func NewMovieEnricher(client Client) *MovieEnricher {
	return &MovieEnricher{client: client}
}

// MovieMetadata 获取单部影片的元数据。
// 特征库没有该影片（title 特征缺失）时返回 NOT_FOUND。
func (e *MovieEnricher) MovieMetadata(ctx context.Context, movieID string) (core.Movie, error) {
	resp, err := e.client.GetOnlineFeatures(ctx, &GetOnlineFeaturesRequest{
		Features:   []string{featureTitle, featureGenres},
		EntityRows: []map[string]interface{}{{entityMovieID: movieID}},
	})
	if err != nil {
		return core.Movie{}, fmt.Errorf("feast: movie metadata %s: %w", movieID, err)
	}
	if len(resp.FeatureVectors) == 0 {
		return core.Movie{}, core.NewDomainError(core.ModuleCatalog, core.ErrorCodeNotFound, "catalog: movie not in feature store")
	}

	values := resp.FeatureVectors[0].Values
	title, _ := values[featureTitle].(string)
	if title == "" {
		return core.Movie{}, core.NewDomainError(core.ModuleCatalog, core.ErrorCodeNotFound, "catalog: movie not in feature store")
	}

	movie := core.Movie{ID: movieID, Title: title}
	if genres, ok := values[featureGenres].(string); ok && genres != "" {
		movie.Genres = strings.Split(genres, "|")
	}
	return movie, nil
}
