package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// snapshotFile 是快照的持久化容器（文件格式）。
// 字段齐备到可以在新进程中免重训地重建 Snapshot。
type snapshotFile struct {
	Version     string      `json:"version"`
	TrainedAt   time.Time   `json:"trained_at"`
	GlobalMean  float64     `json:"global_mean"`
	Factors     int         `json:"factors"`
	Epochs      int         `json:"epochs"`
	RatingCount int         `json:"rating_count"`
	Users       []string    `json:"users"`
	Movies      []string    `json:"movies"`
	P           [][]float64 `json:"p"`
	Q           [][]float64 `json:"q"`
	BU          []float64   `json:"bu"`
	BI          []float64   `json:"bi"`
	Metrics     Metrics     `json:"metrics"`
}

// Save 把快照原子地写入 path：先写临时文件再 rename，
// 任何失败都不会留下半写状态的目标文件。
func (s *Snapshot) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("model: create dir: %w", err)
	}

	data, err := json.Marshal(snapshotFile{
		Version:     s.version,
		TrainedAt:   s.trainedAt,
		GlobalMean:  s.globalMean,
		Factors:     s.factors,
		Epochs:      s.epochs,
		RatingCount: s.ratingCount,
		Users:       s.userIDs,
		Movies:      s.movieIDs,
		P:           s.p,
		Q:           s.q,
		BU:          s.bu,
		BI:          s.bi,
		Metrics:     s.metrics,
	})
	if err != nil {
		return fmt.Errorf("model: marshal snapshot: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("model: write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("model: publish snapshot file: %w", err)
	}
	return nil
}

// Load 从 path 读取快照容器并重建索引。
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("model: read snapshot: %w", err)
	}

	var f snapshotFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("model: parse snapshot: %w", err)
	}
	if len(f.P) != len(f.Users) || len(f.BU) != len(f.Users) ||
		len(f.Q) != len(f.Movies) || len(f.BI) != len(f.Movies) {
		return nil, fmt.Errorf("model: corrupt snapshot %s: matrix/index size mismatch", path)
	}

	userIndex := make(map[string]int, len(f.Users))
	for i, id := range f.Users {
		userIndex[id] = i
	}
	movieIndex := make(map[string]int, len(f.Movies))
	for i, id := range f.Movies {
		movieIndex[id] = i
	}

	return &Snapshot{
		version:     f.Version,
		trainedAt:   f.TrainedAt,
		globalMean:  f.GlobalMean,
		factors:     f.Factors,
		epochs:      f.Epochs,
		ratingCount: f.RatingCount,
		userIDs:     f.Users,
		movieIDs:    f.Movies,
		userIndex:   userIndex,
		movieIndex:  movieIndex,
		p:           f.P,
		q:           f.Q,
		bu:          f.BU,
		bi:          f.BI,
		metrics:     f.Metrics,
	}, nil
}

// BackupFile 把 path 处的快照文件复制为带时间戳标识的备份，
// 返回备份文件路径。备份不会被本包自动清理。
//
// 命名：model.json -> model_backup_20240101_020000.json
func BackupFile(path string, at time.Time) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("model: read snapshot for backup: %w", err)
	}

	ext := filepath.Ext(path)
	backupPath := strings.TrimSuffix(path, ext) + "_backup_" + at.UTC().Format("20060102_150405") + ext

	tmp := backupPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("model: write backup: %w", err)
	}
	if err := os.Rename(tmp, backupPath); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("model: publish backup file: %w", err)
	}
	return backupPath, nil
}
