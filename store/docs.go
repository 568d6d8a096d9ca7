package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rushteam/hybrec/core"
)

// MemoryContentStore 是内存实现的内容库，用于开发与测试。
// FindAll 保证按插入顺序返回（推荐打分的平局裁决依赖此顺序）。
type MemoryContentStore struct {
	mu    sync.RWMutex
	items map[string]*core.ContentItem
	order []string
}

func NewMemoryContentStore() *MemoryContentStore {
	return &MemoryContentStore{items: make(map[string]*core.ContentItem)}
}

// Put 写入或覆盖一条内容；新 id 追加到插入顺序末尾。
func (s *MemoryContentStore) Put(item *core.ContentItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[item.ID]; !ok {
		s.order = append(s.order, item.ID)
	}
	s.items[item.ID] = item
}

func (s *MemoryContentStore) FindByID(ctx context.Context, id string) (*core.ContentItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return nil, core.ErrStoreNotFound
	}
	return item, nil
}

func (s *MemoryContentStore) FindAll(ctx context.Context) ([]*core.ContentItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*core.ContentItem, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id])
	}
	return out, nil
}

func (s *MemoryContentStore) FindByIDs(ctx context.Context, ids []string) ([]*core.ContentItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*core.ContentItem, 0, len(ids))
	for _, id := range ids {
		if item, ok := s.items[id]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

func (s *MemoryContentStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.items)), nil
}

var _ core.ContentStore = (*MemoryContentStore)(nil)

// MemoryInteractionStore 是内存实现的交互事件库（仅追加）。
type MemoryInteractionStore struct {
	mu     sync.RWMutex
	events []*core.InteractionEvent
}

func NewMemoryInteractionStore() *MemoryInteractionStore {
	return &MemoryInteractionStore{}
}

func (s *MemoryInteractionStore) Create(ctx context.Context, event *core.InteractionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	s.events = append(s.events, event)
	return nil
}

func (s *MemoryInteractionStore) FindByUser(ctx context.Context, userID string, limit int) ([]*core.InteractionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*core.InteractionEvent, 0, limit)
	for _, e := range s.events {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sortByRecency(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryInteractionStore) FindRecent(ctx context.Context, limit int) ([]*core.InteractionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*core.InteractionEvent, len(s.events))
	copy(out, s.events)
	sortByRecency(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryInteractionStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.events)), nil
}

func (s *MemoryInteractionStore) CountByContent(ctx context.Context) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int64)
	for _, e := range s.events {
		counts[e.ContentID]++
	}
	return counts, nil
}

// sortByRecency 按时间倒序（新的在前）；时间相同按追加顺序保持稳定。
func sortByRecency(events []*core.InteractionEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].CreatedAt.After(events[j].CreatedAt)
	})
}

var _ core.InteractionStore = (*MemoryInteractionStore)(nil)

// MemoryUserStore 是内存实现的用户库（引擎只依赖计数）。
type MemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]struct{}
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[string]struct{})}
}

func (s *MemoryUserStore) Put(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = struct{}{}
}

func (s *MemoryUserStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.users)), nil
}

var _ core.UserStore = (*MemoryUserStore)(nil)
