// Package config 是引擎的配置层（支持 YAML/JSON）。
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 是推荐引擎的顶层配置。
type Config struct {
	Data    DataConfig    `yaml:"data" json:"data"`
	Store   StoreConfig   `yaml:"store" json:"store"`
	Model   ModelConfig   `yaml:"model" json:"model"`
	Retrain RetrainConfig `yaml:"retrain" json:"retrain"`
	Feast   FeastConfig   `yaml:"feast" json:"feast"`
}

// DataConfig 指向离线数据文件。
type DataConfig struct {
	// RatingsPath 历史评分语料（.dat/.csv/.tsv）
	RatingsPath string `yaml:"ratings_path" json:"ratings_path"`
	// MoviesPath 影片目录（.dat/.csv/.tsv）
	MoviesPath string `yaml:"movies_path" json:"movies_path"`
}

// StoreConfig 选择评分存储后端。
type StoreConfig struct {
	// Backend 取值 memory / redis，默认 memory
	Backend string `yaml:"backend" json:"backend"`

	Redis RedisConfig `yaml:"redis" json:"redis"`
}

// RedisConfig 是 Redis 后端的连接配置。
type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	// Prefix 键前缀，默认 "ratings"
	Prefix string `yaml:"prefix" json:"prefix"`
}

// ModelConfig 是隐因子模型的超参与持久化配置。
type ModelConfig struct {
	Path string `yaml:"path" json:"path"`

	Factors        int     `yaml:"factors" json:"factors"`
	Epochs         int     `yaml:"epochs" json:"epochs"`
	LearningRate   float64 `yaml:"learning_rate" json:"learning_rate"`
	Regularization float64 `yaml:"regularization" json:"regularization"`
	Seed           int64   `yaml:"seed" json:"seed"`
	Holdout        float64 `yaml:"holdout" json:"holdout"`
}

// RetrainConfig 是重训触发与调度配置。
type RetrainConfig struct {
	// MinNewRatings 触发重训的新评分阈值，默认 5
	MinNewRatings int `yaml:"min_new_ratings" json:"min_new_ratings"`

	// Policy 可选的 CEL 触发策略，覆盖默认阈值判定
	Policy string `yaml:"policy" json:"policy"`

	// Interval 调度周期（"30m"、"1h" 等），零值表示不启用定时调度
	Interval Duration `yaml:"interval" json:"interval"`

	DisableBackup bool `yaml:"disable_backup" json:"disable_backup"`
}

// Duration 让 time.Duration 在 YAML/JSON 里以 "30m" 这类字符串表达。
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// FeastConfig 是 Feast 特征平台的连接配置，Host 为空时不启用。
type FeastConfig struct {
	Host    string `yaml:"host" json:"host"`
	Port    int    `yaml:"port" json:"port"`
	Project string `yaml:"project" json:"project"`
}

// Default 返回带默认值的配置。
func Default() *Config {
	return &Config{
		Store: StoreConfig{Backend: "memory"},
		Model: ModelConfig{
			Path:           "data/model.json",
			Factors:        100,
			Epochs:         20,
			LearningRate:   0.005,
			Regularization: 0.02,
			Seed:           42,
			Holdout:        0.2,
		},
		Retrain: RetrainConfig{MinNewRatings: 5},
	}
}

// LoadFromYAML 从 YAML 文件加载配置，未设置的字段保留默认值。
func LoadFromYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return cfg, nil
}

// LoadFromJSON 从 JSON 文件加载配置，未设置的字段保留默认值。
func LoadFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	return cfg, nil
}
