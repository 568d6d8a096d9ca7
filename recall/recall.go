// Package recall 实现混合推荐引擎的两个子模型（内容嵌入模型、协同隐因子模型）
// 与共享的热门兜底能力。两个子模型遵循相同的三态生命周期：
//
//	Untrained → Training → Trained
//
// 训练失败回退到训练前状态并向上抛错；推理路径的失败降级为热门兜底，
// 绝不让一次推荐请求对外失败。
package recall

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/rushteam/hybrec/core"
)

// State 是子模型的生命周期状态。
type State string

const (
	StateUntrained State = "untrained"
	StateTraining  State = "training"
	StateTrained   State = "trained"
)

// Deps 是子模型的外部依赖集合，由引擎在启动时装配并持有。
type Deps struct {
	Contents     core.ContentStore
	Interactions core.InteractionStore
	Users        core.UserStore
	Cache        core.Cache
	Popularity   *PopularityRanker
	Logger       zerolog.Logger
}

// cosineSimilarity 计算余弦相似度：dot(a,b) / (||a||*||b||)。
// 任一向量模长为 0 时定义为 0（不做除零），返回值永不为 NaN。
func cosineSimilarity(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
	}
	for _, v := range a {
		normA += v * v
	}
	for _, v := range b {
		normB += v * v
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// meanVector 计算等长向量组的算术均值；空集返回 dim 维零向量。
func meanVector(vectors [][]float64, dim int) []float64 {
	mean := make([]float64, dim)
	if len(vectors) == 0 {
		return mean
	}
	for _, vec := range vectors {
		for i := 0; i < dim && i < len(vec); i++ {
			mean[i] += vec[i]
		}
	}
	for i := range mean {
		mean[i] /= float64(len(vectors))
	}
	return mean
}
