package recall

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/rushteam/hybrec/core"
)

// PopularityRanker 是共享的热门兜底能力：按交互次数倒序返回内容 id。
//
// 三处消费方共用同一实现（两个子模型的失败路径 + 引擎顶层失败路径），
// 避免兜底逻辑分叉导致的平局裁决规则不一致。
// 次数相同按内容 id 字典序升序，保证确定性。
type PopularityRanker struct {
	// Interactions 提供按内容聚合的交互计数
	Interactions core.InteractionStore

	// Cache 是可选的结果缓存；为 nil 时每次实时聚合
	Cache core.Cache

	// TTL 是缓存过期时间，<=0 时取 10 分钟
	TTL time.Duration
}

func NewPopularityRanker(interactions core.InteractionStore, cache core.Cache, ttl time.Duration) *PopularityRanker {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &PopularityRanker{Interactions: interactions, Cache: cache, TTL: ttl}
}

// Top 返回交互最多的前 limit 个内容 id。无任何交互时返回空切片。
func (p *PopularityRanker) Top(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	key := fmt.Sprintf("popular:content:%d", limit)

	if p.Cache != nil {
		if data, err := p.Cache.Get(ctx, key); err == nil {
			var ids []string
			if json.Unmarshal(data, &ids) == nil {
				return ids, nil
			}
		}
	}

	counts, err := p.Interactions.CountByContent(ctx)
	if err != nil {
		return nil, err
	}
	if len(counts) == 0 {
		return []string{}, nil
	}

	type popular struct {
		id    string
		count int64
	}
	ranked := make([]popular, 0, len(counts))
	for id, count := range counts {
		ranked = append(ranked, popular{id: id, count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].id < ranked[j].id
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	ids := make([]string, 0, len(ranked))
	for _, r := range ranked {
		ids = append(ids, r.id)
	}

	if p.Cache != nil {
		if data, err := json.Marshal(ids); err == nil {
			// 缓存失败不影响结果，静默绕过
			_ = p.Cache.Set(ctx, key, data, p.TTL)
		}
	}
	return ids, nil
}
