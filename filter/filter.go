// Package filter 提供推荐结果的后置过滤能力。
package filter

import (
	"context"

	"github.com/rushteam/hybrec/core"
)

// Filter 是过滤器的抽象接口，用于判断一个内容是否应该从结果中移除。
// 返回 true 表示应该过滤（移除），false 表示保留。
type Filter interface {
	// Name 返回过滤器名称
	Name() string

	// ShouldFilter 判断 item 是否应该被过滤
	ShouldFilter(ctx context.Context, item *core.ContentItem) (bool, error)
}

// Apply 依次对每个内容执行一组过滤器，任一过滤器命中即移除该内容。
// 单个过滤器出错时跳过该过滤器继续判断，不中断整体流程。
func Apply(ctx context.Context, filters []Filter, items []*core.ContentItem) []*core.ContentItem {
	if len(filters) == 0 || len(items) == 0 {
		return items
	}

	out := make([]*core.ContentItem, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		keep := true
		for _, f := range filters {
			ok, err := f.ShouldFilter(ctx, item)
			if err != nil {
				continue
			}
			if ok {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, item)
		}
	}
	return out
}
