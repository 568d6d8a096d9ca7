package recall

import (
	"context"
	"encoding/json"

	"github.com/rushteam/hybrec/core"
)

// IndexMap 是单调增长的 标识符→整数索引 映射表。
//
// 协同模型需要把字符串 id 映射为隐向量表的行号。映射只在训练期间追加，
// 绝不临时重算：同一 id 在表的整个生命周期内索引固定，
// 杜绝了按原始 id 取模派生索引时基数变化导致的语义漂移。
type IndexMap struct {
	ids   map[string]int
	order []string
}

func NewIndexMap() *IndexMap {
	return &IndexMap{ids: make(map[string]int)}
}

// Assign 返回 id 的索引；未知 id 追加到表尾。
func (m *IndexMap) Assign(id string) int {
	if idx, ok := m.ids[id]; ok {
		return idx
	}
	idx := len(m.order)
	m.ids[id] = idx
	m.order = append(m.order, id)
	return idx
}

// Lookup 返回 id 的索引；未知 id 返回 (0, false)。
func (m *IndexMap) Lookup(id string) (int, bool) {
	idx, ok := m.ids[id]
	return idx, ok
}

func (m *IndexMap) Len() int {
	return len(m.order)
}

// Clone 返回映射表的深拷贝（训练在副本上扩表，成功后再原子安装）。
func (m *IndexMap) Clone() *IndexMap {
	c := &IndexMap{
		ids:   make(map[string]int, len(m.ids)),
		order: make([]string, len(m.order)),
	}
	copy(c.order, m.order)
	for id, idx := range m.ids {
		c.ids[id] = idx
	}
	return c
}

// save 将映射表序列化到缓存（无 TTL），跨进程重启保持索引稳定。
func (m *IndexMap) save(ctx context.Context, cache core.Cache, key string) error {
	if cache == nil {
		return nil
	}
	data, err := json.Marshal(m.order)
	if err != nil {
		return err
	}
	return cache.Set(ctx, key, data, 0)
}

// loadIndexMap 从缓存恢复映射表；key 不存在返回空表。
func loadIndexMap(ctx context.Context, cache core.Cache, key string) (*IndexMap, error) {
	m := NewIndexMap()
	if cache == nil {
		return m, nil
	}
	data, err := cache.Get(ctx, key)
	if err != nil {
		if core.IsStoreNotFound(err) {
			return m, nil
		}
		return nil, err
	}
	var order []string
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, err
	}
	for _, id := range order {
		m.Assign(id)
	}
	return m, nil
}
