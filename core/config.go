package core

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EngineConfig 是混合推荐引擎的配置（支持 YAML）。
// 零值字段在 Normalize 后回填为默认值，因此手工构造时只需覆盖关心的项。
type EngineConfig struct {
	// FeatureDim 是内容特征向量维度
	FeatureDim int `yaml:"feature_dim"`

	// EmbeddingDim 是内容嵌入（自编码器瓶颈层）维度
	EmbeddingDim int `yaml:"embedding_dim"`

	// LatentDim 是协同模型隐因子维度
	LatentDim int `yaml:"latent_dim"`

	// ContentBased 是内容模型训练参数
	ContentBased TrainConfig `yaml:"content_based"`

	// Collaborative 是协同模型训练参数
	Collaborative TrainConfig `yaml:"collaborative"`

	// CollaborativeWeight / ContentWeight 是融合权重（协同模型未训练时协同权重强制为 0）
	CollaborativeWeight float64 `yaml:"collaborative_weight"`
	ContentWeight       float64 `yaml:"content_weight"`

	// EmbeddingTTL 是嵌入缓存过期时间
	EmbeddingTTL time.Duration `yaml:"embedding_ttl"`

	// RecommendationTTL 是推荐结果缓存过期时间
	RecommendationTTL time.Duration `yaml:"recommendation_ttl"`

	// PopularityTTL 是热门兜底缓存过期时间
	PopularityTTL time.Duration `yaml:"popularity_ttl"`

	// RecentWindow 是计算用户兴趣向量时回看的交互条数
	RecentWindow int `yaml:"recent_window"`

	// NudgeWindow / NudgeThreshold 控制在线微调：
	// 回看最近 NudgeWindow 条交互，不足 NudgeThreshold 条则静默跳过
	NudgeWindow    int `yaml:"nudge_window"`
	NudgeThreshold int `yaml:"nudge_threshold"`

	// MaxTrainingInteractions 是协同模型训练采样上限（防止无界内存）
	MaxTrainingInteractions int `yaml:"max_training_interactions"`

	// QueueSize 是后台微调任务队列长度；队列满时丢弃并记录日志
	QueueSize int `yaml:"queue_size"`

	// FilterRules 是应用在融合结果上的 CEL 过滤规则（命中即剔除）
	FilterRules []string `yaml:"filter_rules"`
}

// TrainConfig 是单个模型的训练参数。
type TrainConfig struct {
	Epochs          int     `yaml:"epochs"`
	BatchSize       int     `yaml:"batch_size"`
	LearningRate    float64 `yaml:"learning_rate"`
	ValidationSplit float64 `yaml:"validation_split"`
	// FineTuneEpochs / FineTuneBatch 仅协同模型使用（在线微调）
	FineTuneEpochs int `yaml:"fine_tune_epochs"`
	FineTuneBatch  int `yaml:"fine_tune_batch"`
}

// DefaultEngineConfig 返回引擎默认配置。
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		FeatureDim:   100,
		EmbeddingDim: 20,
		LatentDim:    20,
		ContentBased: TrainConfig{
			Epochs:          50,
			BatchSize:       32,
			LearningRate:    0.001,
			ValidationSplit: 0.2,
		},
		Collaborative: TrainConfig{
			Epochs:          30,
			BatchSize:       64,
			LearningRate:    0.001,
			ValidationSplit: 0.2,
			FineTuneEpochs:  3,
			FineTuneBatch:   32,
		},
		CollaborativeWeight:     0.7,
		ContentWeight:           0.3,
		EmbeddingTTL:            24 * time.Hour,
		RecommendationTTL:       30 * time.Minute,
		PopularityTTL:           10 * time.Minute,
		RecentWindow:            50,
		NudgeWindow:             100,
		NudgeThreshold:          30,
		MaxTrainingInteractions: 20000,
		QueueSize:               256,
	}
}

// Normalize 将零值字段回填为默认值，返回规整后的配置。
func (c EngineConfig) Normalize() EngineConfig {
	def := DefaultEngineConfig()
	if c.FeatureDim <= 0 {
		c.FeatureDim = def.FeatureDim
	}
	if c.EmbeddingDim <= 0 {
		c.EmbeddingDim = def.EmbeddingDim
	}
	if c.LatentDim <= 0 {
		c.LatentDim = def.LatentDim
	}
	c.ContentBased = c.ContentBased.normalize(def.ContentBased)
	c.Collaborative = c.Collaborative.normalize(def.Collaborative)
	if c.CollaborativeWeight <= 0 && c.ContentWeight <= 0 {
		c.CollaborativeWeight = def.CollaborativeWeight
		c.ContentWeight = def.ContentWeight
	}
	if c.EmbeddingTTL <= 0 {
		c.EmbeddingTTL = def.EmbeddingTTL
	}
	if c.RecommendationTTL <= 0 {
		c.RecommendationTTL = def.RecommendationTTL
	}
	if c.PopularityTTL <= 0 {
		c.PopularityTTL = def.PopularityTTL
	}
	if c.RecentWindow <= 0 {
		c.RecentWindow = def.RecentWindow
	}
	if c.NudgeWindow <= 0 {
		c.NudgeWindow = def.NudgeWindow
	}
	if c.NudgeThreshold <= 0 {
		c.NudgeThreshold = def.NudgeThreshold
	}
	if c.MaxTrainingInteractions <= 0 {
		c.MaxTrainingInteractions = def.MaxTrainingInteractions
	}
	if c.QueueSize <= 0 {
		c.QueueSize = def.QueueSize
	}
	return c
}

func (t TrainConfig) normalize(def TrainConfig) TrainConfig {
	if t.Epochs <= 0 {
		t.Epochs = def.Epochs
	}
	if t.BatchSize <= 0 {
		t.BatchSize = def.BatchSize
	}
	if t.LearningRate <= 0 {
		t.LearningRate = def.LearningRate
	}
	if t.ValidationSplit <= 0 || t.ValidationSplit >= 1 {
		t.ValidationSplit = def.ValidationSplit
	}
	if t.FineTuneEpochs <= 0 {
		t.FineTuneEpochs = def.FineTuneEpochs
	}
	if t.FineTuneBatch <= 0 {
		t.FineTuneBatch = def.FineTuneBatch
	}
	return t
}

// LoadEngineConfig 从 YAML 文件加载引擎配置，缺省字段回填默认值。
func LoadEngineConfig(path string) (EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return EngineConfig{}, fmt.Errorf("read file: %w", err)
	}

	var cfg EngineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return EngineConfig{}, fmt.Errorf("parse yaml: %w", err)
	}

	return cfg.Normalize(), nil
}
