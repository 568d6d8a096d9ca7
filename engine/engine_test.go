package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/hybrec/core"
	"github.com/rushteam/hybrec/recall"
	"github.com/rushteam/hybrec/store"
)

type harness struct {
	engine       *HybridEngine
	contents     *store.MemoryContentStore
	interactions *store.MemoryInteractionStore
	users        *store.MemoryUserStore
	cache        *store.MemoryStore
}

func newHarness(t *testing.T, cfg core.EngineConfig) *harness {
	t.Helper()
	h := &harness{
		contents:     store.NewMemoryContentStore(),
		interactions: store.NewMemoryInteractionStore(),
		users:        store.NewMemoryUserStore(),
		cache:        store.NewMemoryStore(),
	}

	e, err := New(cfg, Deps{
		Contents:     h.contents,
		Interactions: h.interactions,
		Users:        h.users,
		Cache:        h.cache,
		Logger:       zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	h.engine = e
	t.Cleanup(func() {
		e.Close()
		h.cache.Close()
	})
	return h
}

func fastConfig() core.EngineConfig {
	cfg := core.DefaultEngineConfig()
	cfg.ContentBased.Epochs = 3
	cfg.Collaborative.Epochs = 3
	return cfg
}

func (h *harness) seedContent(n int) {
	for i := 0; i < n; i++ {
		h.contents.Put(&core.ContentItem{
			ID:        fmt.Sprintf("c%d", i),
			Title:     fmt.Sprintf("item %d", i),
			Type:      core.ContentTypeText,
			Category:  "tech",
			CreatedAt: time.Now().Add(-time.Duration(i) * time.Hour),
		})
	}
}

func (h *harness) seedInteraction(t *testing.T, userID, contentID string) {
	t.Helper()
	h.users.Put(userID)
	ev := &core.InteractionEvent{UserID: userID, ContentID: contentID, Type: core.InteractionView}
	if err := h.interactions.Create(context.Background(), ev); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
}

func TestHybridEngine_InitializeNoContent(t *testing.T) {
	h := newHarness(t, fastConfig())
	if err := h.engine.Initialize(context.Background()); !core.IsInsufficientData(err) {
		t.Fatalf("Initialize() on empty catalog error = %v, want insufficient data", err)
	}
}

func TestHybridEngine_InitializeContentOnly(t *testing.T) {
	h := newHarness(t, fastConfig())
	h.seedContent(5)

	// No interactions: content model trains, collaborative is skipped.
	if err := h.engine.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	if h.engine.ContentState() != recall.StateTrained {
		t.Fatalf("content state = %v, want trained", h.engine.ContentState())
	}
	if h.engine.CollaborativeState() == recall.StateTrained {
		t.Fatal("collaborative model should stay untrained without interactions")
	}
}

func TestHybridEngine_RecommendWithUntrainedCollaborative(t *testing.T) {
	h := newHarness(t, fastConfig())
	h.seedContent(8)
	ctx := context.Background()

	// Interactions exist but no users are registered, so the
	// collaborative model cannot train and the engine runs on the
	// content side alone.
	ev := &core.InteractionEvent{UserID: "u1", ContentID: "c0", Type: core.InteractionView}
	if err := h.interactions.Create(ctx, ev); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if err := h.engine.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	if h.engine.CollaborativeState() == recall.StateTrained {
		t.Fatal("collaborative model should not have trained")
	}

	items := h.engine.RecommendForUser(ctx, "u1", 5)
	if len(items) == 0 {
		t.Fatal("RecommendForUser() with untrained collaborative model must still return items")
	}
	if len(items) > 5 {
		t.Fatalf("RecommendForUser() returned %d items, want at most 5", len(items))
	}
}

// flakyInteractionStore fails FindRecent to simulate a transient read
// outage during collaborative training. Everything else works.
type flakyInteractionStore struct {
	*store.MemoryInteractionStore
}

func (s *flakyInteractionStore) FindRecent(ctx context.Context, limit int) ([]*core.InteractionEvent, error) {
	return nil, errors.New("interaction store unavailable")
}

func TestHybridEngine_InitializeSurvivesCollaborativeStoreFailure(t *testing.T) {
	contents := store.NewMemoryContentStore()
	users := store.NewMemoryUserStore()
	interactions := &flakyInteractionStore{MemoryInteractionStore: store.NewMemoryInteractionStore()}

	e, err := New(fastConfig(), Deps{
		Contents:     contents,
		Interactions: interactions,
		Users:        users,
		Logger:       zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { e.Close() })

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		contents.Put(&core.ContentItem{
			ID:        fmt.Sprintf("c%d", i),
			Title:     fmt.Sprintf("item %d", i),
			Type:      core.ContentTypeText,
			CreatedAt: time.Now(),
		})
	}
	users.Put("u1")
	ev := &core.InteractionEvent{UserID: "u1", ContentID: "c0", Type: core.InteractionView}
	if err := interactions.MemoryInteractionStore.Create(ctx, ev); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	// Collaborative training hits the broken store and fails, but that
	// must not block startup: the engine comes up content-only.
	if err := e.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() with failing interaction store error = %v, want nil", err)
	}
	if e.CollaborativeState() == recall.StateTrained {
		t.Fatal("collaborative model should not have trained against a failing store")
	}
	if e.ContentState() != recall.StateTrained {
		t.Fatalf("content state = %v, want trained", e.ContentState())
	}
	if items := e.RecommendForUser(ctx, "u1", 3); len(items) == 0 {
		t.Fatal("RecommendForUser() must still serve after a collaborative training failure")
	}
}

func TestHybridEngine_CloseDrainsQueuedNudges(t *testing.T) {
	h := newHarness(t, fastConfig())
	h.seedContent(5)
	h.seedInteraction(t, "u1", "c0")
	ctx := context.Background()
	if err := h.engine.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}

	// New content published after training: only the nudge task can put
	// its embedding in the cache.
	h.contents.Put(&core.ContentItem{
		ID:        "c9",
		Title:     "late arrival",
		Type:      core.ContentTypeText,
		CreatedAt: time.Now(),
	})
	err := h.engine.LogInteraction(ctx, &core.InteractionEvent{
		UserID:    "u1",
		ContentID: "c9",
		Type:      core.InteractionView,
	})
	if err != nil {
		t.Fatalf("LogInteraction() error: %v", err)
	}

	// Close waits for the worker to finish everything already queued.
	if err := h.engine.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if _, err := h.cache.Get(ctx, "embedding:content:c9"); err != nil {
		t.Fatalf("queued nudge should run before Close returns, embedding missing: %v", err)
	}
}

func TestHybridEngine_UninitializedFallsBackToPopularity(t *testing.T) {
	h := newHarness(t, fastConfig())
	h.seedContent(6)
	h.seedInteraction(t, "u1", "c2")
	h.seedInteraction(t, "u2", "c2")
	h.seedInteraction(t, "u3", "c2")
	h.seedInteraction(t, "u1", "c0")

	// No Initialize: both recall branches are untrained and must be
	// skipped, leaving the popularity ranking, not catalog order.
	items := h.engine.RecommendForUser(context.Background(), "u1", 3)
	if len(items) == 0 {
		t.Fatal("RecommendForUser() before Initialize must fall back to popularity")
	}
	if items[0].ID != "c2" {
		t.Fatalf("top item = %s, want the most interacted item c2", items[0].ID)
	}
}

func TestHybridEngine_RecommendFullStack(t *testing.T) {
	h := newHarness(t, fastConfig())
	h.seedContent(10)
	h.seedInteraction(t, "u1", "c0")
	h.seedInteraction(t, "u1", "c1")
	h.seedInteraction(t, "u2", "c2")

	ctx := context.Background()
	if err := h.engine.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}

	items := h.engine.RecommendForUser(ctx, "u1", 4)
	if len(items) == 0 || len(items) > 4 {
		t.Fatalf("RecommendForUser() returned %d items, want 1..4", len(items))
	}
	seen := make(map[string]bool)
	for _, item := range items {
		if item == nil {
			t.Fatal("RecommendForUser() returned a nil item")
		}
		if seen[item.ID] {
			t.Fatalf("RecommendForUser() returned duplicate %s", item.ID)
		}
		seen[item.ID] = true
	}
}

func TestHybridEngine_RecommendUsesCache(t *testing.T) {
	h := newHarness(t, fastConfig())
	h.seedContent(6)
	h.seedInteraction(t, "u1", "c0")
	ctx := context.Background()
	if err := h.engine.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}

	first := h.engine.RecommendForUser(ctx, "u1", 3)
	if len(first) == 0 {
		t.Fatal("RecommendForUser() returned no items")
	}
	if _, err := h.cache.Get(ctx, "recommendations:user:u1:3"); err != nil {
		t.Fatalf("recommendation cache entry missing: %v", err)
	}

	second := h.engine.RecommendForUser(ctx, "u1", 3)
	if len(second) != len(first) {
		t.Fatalf("cached call returned %d items, want %d", len(second), len(first))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatalf("cached result differs at %d: %s vs %s", i, first[i].ID, second[i].ID)
		}
	}
}

func TestHybridEngine_LogInteractionInvalidatesUserCache(t *testing.T) {
	h := newHarness(t, fastConfig())
	h.seedContent(6)
	h.seedInteraction(t, "u1", "c0")
	h.seedInteraction(t, "u2", "c1")
	ctx := context.Background()
	if err := h.engine.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}

	h.engine.RecommendForUser(ctx, "u1", 3)
	h.engine.RecommendForUser(ctx, "u2", 3)

	err := h.engine.LogInteraction(ctx, &core.InteractionEvent{
		UserID:    "u1",
		ContentID: "c0",
		Type:      core.InteractionLike,
	})
	if err != nil {
		t.Fatalf("LogInteraction() error: %v", err)
	}

	// Stale entries for the interacting user are gone before the call returns.
	if _, err := h.cache.Get(ctx, "recommendations:user:u1:3"); !core.IsStoreNotFound(err) {
		t.Fatalf("u1 cache entry should be invalidated, got err = %v", err)
	}
	// Other users keep their cached recommendations.
	if _, err := h.cache.Get(ctx, "recommendations:user:u2:3"); err != nil {
		t.Fatalf("u2 cache entry should survive: %v", err)
	}

	n, err := h.interactions.Count(ctx)
	if err != nil || n != 3 {
		t.Fatalf("interaction count = %d (err %v), want 3", n, err)
	}
}

func TestHybridEngine_RefreshModelsClearsAllRecommendations(t *testing.T) {
	h := newHarness(t, fastConfig())
	h.seedContent(6)
	h.seedInteraction(t, "u1", "c0")
	ctx := context.Background()
	if err := h.engine.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}

	h.engine.RecommendForUser(ctx, "u1", 3)
	h.engine.RecommendForUser(ctx, "u2", 3)

	if err := h.engine.RefreshModels(ctx); err != nil {
		t.Fatalf("RefreshModels() error: %v", err)
	}
	for _, key := range []string{"recommendations:user:u1:3", "recommendations:user:u2:3"} {
		if _, err := h.cache.Get(ctx, key); !core.IsStoreNotFound(err) {
			t.Fatalf("%s should be flushed after refresh, got err = %v", key, err)
		}
	}
}

func TestHybridEngine_FilterRulesApplied(t *testing.T) {
	cfg := fastConfig()
	cfg.FilterRules = []string{`item.type == "video"`}

	h := newHarness(t, cfg)
	h.seedContent(5)
	h.seedInteraction(t, "u1", "c0")
	h.contents.Put(&core.ContentItem{
		ID:        "v1",
		Title:     "filtered video",
		Type:      core.ContentTypeVideo,
		CreatedAt: time.Now(),
	})

	ctx := context.Background()
	if err := h.engine.Initialize(ctx); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}

	items := h.engine.RecommendForUser(ctx, "u1", 10)
	for _, item := range items {
		if item.ID == "v1" {
			t.Fatal("filter rule should remove the video item")
		}
	}
}

func TestHybridEngine_InvalidFilterRule(t *testing.T) {
	cfg := fastConfig()
	cfg.FilterRules = []string{`((`}

	_, err := New(cfg, Deps{
		Contents:     store.NewMemoryContentStore(),
		Interactions: store.NewMemoryInteractionStore(),
		Users:        store.NewMemoryUserStore(),
		Logger:       zerolog.Nop(),
	})
	if err == nil {
		t.Fatal("New() with a broken filter rule should error")
	}
}
