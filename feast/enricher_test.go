package feast

import (
	"context"
	"errors"
	"testing"

	"github.com/rushteam/cinerec/core"
)

// fakeClient 是内存假实现，按 movie_id 返回预置特征。
type fakeClient struct {
	features map[string]map[string]interface{}
	err      error
}

func (f *fakeClient) GetOnlineFeatures(ctx context.Context, req *GetOnlineFeaturesRequest) (*GetOnlineFeaturesResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	vectors := make([]FeatureVector, len(req.EntityRows))
	for i, row := range req.EntityRows {
		movieID, _ := row[entityMovieID].(string)
		vectors[i] = FeatureVector{
			Values:    f.features[movieID],
			EntityRow: row,
		}
	}
	return &GetOnlineFeaturesResponse{FeatureVectors: vectors}, nil
}

func (f *fakeClient) Close() error { return nil }

func TestMovieEnricher_MovieMetadata(t *testing.T) {
	client := &fakeClient{features: map[string]map[string]interface{}{
		"1": {
			featureTitle:  "Toy Story (1995)",
			featureGenres: "Animation|Children's|Comedy",
		},
		"2": {
			featureTitle: "Heat (1995)",
		},
		"3": {
			featureGenres: "Drama", // title 缺失，视作不存在
		},
	}}
	e := NewMovieEnricher(client)
	ctx := context.Background()

	tests := []struct {
		name    string
		movieID string
		want    core.Movie
		wantErr bool
	}{
		{
			name:    "title and genres",
			movieID: "1",
			want: core.Movie{
				ID:     "1",
				Title:  "Toy Story (1995)",
				Genres: []string{"Animation", "Children's", "Comedy"},
			},
		},
		{
			name:    "title only",
			movieID: "2",
			want:    core.Movie{ID: "2", Title: "Heat (1995)"},
		},
		{
			name:    "missing title",
			movieID: "3",
			wantErr: true,
		},
		{
			name:    "unknown movie",
			movieID: "999",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.MovieMetadata(ctx, tt.movieID)
			if tt.wantErr {
				if !core.IsNotFound(err) {
					t.Fatalf("MovieMetadata() error = %v, want NOT_FOUND", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("MovieMetadata() error = %v", err)
			}
			if got.ID != tt.want.ID || got.Title != tt.want.Title {
				t.Errorf("MovieMetadata() = %+v, want %+v", got, tt.want)
			}
			if len(got.Genres) != len(tt.want.Genres) {
				t.Fatalf("genres = %v, want %v", got.Genres, tt.want.Genres)
			}
			for i := range got.Genres {
				if got.Genres[i] != tt.want.Genres[i] {
					t.Errorf("genres[%d] = %s, want %s", i, got.Genres[i], tt.want.Genres[i])
				}
			}
		})
	}
}

func TestMovieEnricher_ClientError(t *testing.T) {
	boom := errors.New("feature store down")
	e := NewMovieEnricher(&fakeClient{err: boom})

	_, err := e.MovieMetadata(context.Background(), "1")
	if !errors.Is(err, boom) {
		t.Errorf("MovieMetadata() error = %v, want wrapped cause", err)
	}
}
