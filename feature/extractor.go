// Package feature 将内容条目编码为定长特征向量，供嵌入模型训练与推理使用。
package feature

import (
	"math"
	"strings"
	"time"

	"github.com/rushteam/hybrec/core"
)

// 特征向量布局（FeatureDim=100 时）：
//
//	[0,30)   标题分词哈希计数
//	[30,60)  描述分词哈希计数
//	[60,64)  内容类型 one-hot（text/image/link/video）
//	[64,70)  类目哈希 one-hot
//	[70]     时长归一化标量（1 小时封顶为 1.0）
//	[71]     新鲜度指数衰减（约 30 天半衰期）
//	[72,100) 标签哈希 one-hot（每个标签独立置 1，不累加）
const (
	titleSlots    = 30
	descSlots     = 30
	typeSlots     = 4
	categorySlots = 6
	durationSlot  = titleSlots + descSlots + typeSlots + categorySlots
	recencySlot   = durationSlot + 1
	tagOffset     = recencySlot + 1
)

// contentTypeIndex 是类型 one-hot 的固定槽位顺序。
var contentTypeIndex = map[core.ContentType]int{
	core.ContentTypeText:  0,
	core.ContentTypeImage: 1,
	core.ContentTypeLink:  2,
	core.ContentTypeVideo: 3,
}

// Extractor 是内容特征抽取器：ContentItem → 定长 float64 向量。
//
// 纯函数、并发安全、永不失败：缺失字段贡献 0。
// 哈希映射刻意接受冲突（不保证无碰撞），冲突视为可接受噪声。
type Extractor struct {
	// Dim 是输出向量维度，<=0 时取 100
	Dim int

	// Now 用于计算新鲜度，便于测试注入；为 nil 时使用 time.Now
	Now func() time.Time
}

// NewExtractor 创建一个维度为 dim 的特征抽取器。
func NewExtractor(dim int) *Extractor {
	return &Extractor{Dim: dim}
}

// Extract 将一条内容编码为定长特征向量。相同输入产出相同向量。
func (e *Extractor) Extract(item *core.ContentItem) []float64 {
	dim := e.Dim
	if dim <= 0 {
		dim = 100
	}
	features := make([]float64, dim)
	if item == nil {
		return features
	}

	// 1. 文本特征：标题/描述分词后哈希进互不重叠的槽位区间，计数累加
	for _, word := range tokenize(item.Title) {
		features[hashString(word)%titleSlots]++
	}
	for _, word := range tokenize(item.Description) {
		features[titleSlots+hashString(word)%descSlots]++
	}

	// 2. 类型 one-hot
	if idx, ok := contentTypeIndex[item.Type]; ok {
		features[titleSlots+descSlots+idx] = 1
	}

	// 3. 类目哈希 one-hot
	if item.Category != "" {
		features[titleSlots+descSlots+typeSlots+hashString(item.Category)%categorySlots] = 1
	}

	// 4. 时长归一化（1 小时封顶）
	if item.Duration > 0 {
		features[durationSlot] = math.Min(item.Duration/3600, 1)
	}

	// 5. 新鲜度：按天数指数衰减，约 30 天半衰期
	if !item.CreatedAt.IsZero() {
		now := time.Now
		if e.Now != nil {
			now = e.Now
		}
		ageDays := now().Sub(item.CreatedAt).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}
		features[recencySlot] = math.Exp(-ageDays / 30)
	}

	// 6. 标签哈希 one-hot：每个标签独立置 1（不累加）
	tagSlots := dim - tagOffset
	if tagSlots > 0 {
		for _, tag := range item.Tags {
			features[tagOffset+hashString(tag)%tagSlots] = 1
		}
	}

	return features
}

// tokenize 小写化后按空白分词。
func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(strings.TrimSpace(text)))
}

// hashString 是确定性字符串哈希（31 进制滚动哈希，取绝对值）。
func hashString(s string) int {
	hash := 0
	for _, c := range s {
		hash = hash*31 + int(c)
	}
	if hash < 0 {
		hash = -hash
	}
	return hash
}
