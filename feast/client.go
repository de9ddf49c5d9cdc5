// Package feast 是 Feast 特征平台的接入层，
// 为影片目录提供在线特征补齐（catalog.Enricher 实现）。
package feast

import (
	"context"
)

// Client 是特征获取的领域接口。
//
// 设计原则（DDD）：
//   - 领域层定义接口，基础设施层（GrpcClient）实现
//   - 调用方只依赖接口，可替换实现（测试用内存假实现）
type Client interface {
	// GetOnlineFeatures 获取在线特征
	GetOnlineFeatures(ctx context.Context, req *GetOnlineFeaturesRequest) (*GetOnlineFeaturesResponse, error)

	// Close 关闭客户端连接
	Close() error
}

// GetOnlineFeaturesRequest 是在线特征请求。
type GetOnlineFeaturesRequest struct {
	// Features 特征引用列表，如 "movie_features:title"
	Features []string

	// EntityRows 实体行，如 {"movie_id": "123"}
	EntityRows []map[string]interface{}

	// Project 项目名称，为空时使用客户端默认项目
	Project string
}

// FeatureVector 是单个实体行的特征向量。
type FeatureVector struct {
	Values    map[string]interface{}
	EntityRow map[string]interface{}
}

// GetOnlineFeaturesResponse 是在线特征响应，行序与请求实体行一致。
type GetOnlineFeaturesResponse struct {
	FeatureVectors []FeatureVector
}
