package feast

import (
	"context"
	"testing"
)

// TestGrpcClient_GetOnlineFeatures 需要连接真实的 Feast 服务器才能运行，
// 平时跳过，联调时手动放开。
func TestGrpcClient_GetOnlineFeatures(t *testing.T) {
	t.Skip("需要连接真实的 Feast 服务器才能运行")

	ctx := context.Background()

	client, err := NewGrpcClient("localhost", 6565, "cinerec")
	if err != nil {
		t.Fatalf("NewGrpcClient() error = %v", err)
	}
	defer client.Close()

	resp, err := client.GetOnlineFeatures(ctx, &GetOnlineFeaturesRequest{
		Features: []string{featureTitle, featureGenres},
		EntityRows: []map[string]interface{}{
			{entityMovieID: "1"},
			{entityMovieID: "2"},
		},
	})
	if err != nil {
		t.Fatalf("GetOnlineFeatures() error = %v", err)
	}
	if len(resp.FeatureVectors) != 2 {
		t.Errorf("FeatureVectors len = %d, want 2", len(resp.FeatureVectors))
	}
}

func TestGetOnlineFeatures_Validation(t *testing.T) {
	ctx := context.Background()
	c := &GrpcClient{Project: "cinerec"}

	tests := []struct {
		name string
		req  *GetOnlineFeaturesRequest
	}{
		{"no features", &GetOnlineFeaturesRequest{
			EntityRows: []map[string]interface{}{{entityMovieID: "1"}},
		}},
		{"no entity rows", &GetOnlineFeaturesRequest{
			Features: []string{featureTitle},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := c.GetOnlineFeatures(ctx, tt.req); err == nil {
				t.Error("GetOnlineFeatures() returned nil error for invalid request")
			}
		})
	}

	// 客户端与请求都没有项目名时拒绝
	empty := &GrpcClient{}
	if _, err := empty.GetOnlineFeatures(ctx, &GetOnlineFeaturesRequest{
		Features:   []string{featureTitle},
		EntityRows: []map[string]interface{}{{entityMovieID: "1"}},
	}); err == nil {
		t.Error("GetOnlineFeatures() returned nil error without a project")
	}
}

func TestFromSDKValue(t *testing.T) {
	tests := []struct {
		name  string
		input interface{}
		want  interface{}
	}{
		{"nil", nil, nil},
		{"string", "Toy Story (1995)", "Toy Story (1995)"},
		{"int64", int64(7), float64(7)},
		{"int32", int32(7), float64(7)},
		{"int", 7, float64(7)},
		{"float64", 4.5, 4.5},
		{"float32", float32(2), float64(2)},
		{"bool true", true, float64(1)},
		{"bool false", false, float64(0)},
		{"bytes", []byte("Comedy"), "Comedy"},
		{"stringified fallback", struct{ s string }{"3.5"}, "{3.5}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fromSDKValue(tt.input); got != tt.want {
				t.Errorf("fromSDKValue(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
