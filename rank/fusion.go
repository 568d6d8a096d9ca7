// Package rank 提供多路召回结果的融合排序。
package rank

import (
	"sort"

	"github.com/rushteam/hybrec/core"
)

// WeightedFusion 是基于位置的加权融合器。
//
// 算法流程：
//  1. 取两个列表长度的较大值 n 作为统一基数，
//     条目得分 = (n - index) * weight，排名越靠前得分越高；
//  2. 同一内容出现在多个列表时分数相加；
//  3. 按总分倒序输出前 limit 个 id。
//
// 统一基数保证短列表的头部条目不因列表短而吃亏。
// 平分时先遍历到的条目靠前（稳定排序），高权重列表先遍历。
// 纯函数，无状态，可并发调用。
type WeightedFusion struct {
	CollaborativeWeight float64
	ContentWeight       float64
}

// NewWeightedFusion 按配置权重创建融合器。
func NewWeightedFusion(cfg core.EngineConfig) *WeightedFusion {
	cfg = cfg.Normalize()
	return &WeightedFusion{
		CollaborativeWeight: cfg.CollaborativeWeight,
		ContentWeight:       cfg.ContentWeight,
	}
}

// Fuse 融合协同召回与内容召回的 id 列表，返回去重后的前 limit 个 id。
// 任一输入为空时退化为另一路的加权截断，两路皆空返回空切片。
func (f *WeightedFusion) Fuse(collaborative, contentBased []string, limit int) []string {
	if limit <= 0 {
		limit = 10
	}

	lists := []struct {
		ids    []string
		weight float64
	}{
		{collaborative, f.CollaborativeWeight},
		{contentBased, f.ContentWeight},
	}
	if f.ContentWeight > f.CollaborativeWeight {
		lists[0], lists[1] = lists[1], lists[0]
	}

	type scored struct {
		id    string
		score float64
	}
	n := len(collaborative)
	if len(contentBased) > n {
		n = len(contentBased)
	}

	scores := make(map[string]float64)
	order := make([]string, 0, len(collaborative)+len(contentBased))
	for _, l := range lists {
		for i, id := range l.ids {
			if _, ok := scores[id]; !ok {
				order = append(order, id)
			}
			scores[id] += float64(n-i) * l.weight
		}
	}

	fused := make([]scored, 0, len(order))
	for _, id := range order {
		fused = append(fused, scored{id: id, score: scores[id]})
	}
	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].score > fused[j].score
	})
	if len(fused) > limit {
		fused = fused[:limit]
	}

	out := make([]string, 0, len(fused))
	for _, s := range fused {
		out = append(out, s.id)
	}
	return out
}
