// Package store 提供 core.RatingStore 的具体实现。
//
// 注意：此包只包含实现，接口定义在 core 包。
//
// 示例：
//
//	var rs core.RatingStore = store.NewMemoryStore()
//	rs, err := store.NewRedisStore("localhost:6379", 0)
package store
