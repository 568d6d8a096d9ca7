package recall

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/hybrec/core"
	"github.com/rushteam/hybrec/store"
)

// fixture wires the recall dependencies on the in-memory stores.
type fixture struct {
	contents     *store.MemoryContentStore
	interactions *store.MemoryInteractionStore
	users        *store.MemoryUserStore
	cache        *store.MemoryStore
	deps         Deps
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		contents:     store.NewMemoryContentStore(),
		interactions: store.NewMemoryInteractionStore(),
		users:        store.NewMemoryUserStore(),
		cache:        store.NewMemoryStore(),
	}
	t.Cleanup(func() { f.cache.Close() })
	f.deps = Deps{
		Contents:     f.contents,
		Interactions: f.interactions,
		Users:        f.users,
		Cache:        f.cache,
		Popularity:   NewPopularityRanker(f.interactions, nil, time.Minute),
		Logger:       zerolog.Nop(),
	}
	return f
}

// addContent registers n items with ids c0..c(n-1) across mixed categories.
func (f *fixture) addContent(n int) {
	categories := []string{"tech", "music", "sports"}
	for i := 0; i < n; i++ {
		f.contents.Put(&core.ContentItem{
			ID:        contentID(i),
			Title:     "item " + contentID(i),
			Type:      core.ContentTypeText,
			Category:  categories[i%len(categories)],
			Tags:      []string{categories[i%len(categories)]},
			CreatedAt: time.Now().Add(-time.Duration(i) * time.Hour),
		})
	}
}

func (f *fixture) addInteraction(t *testing.T, userID, contentID string, itype core.InteractionType) {
	t.Helper()
	f.users.Put(userID)
	ev := &core.InteractionEvent{UserID: userID, ContentID: contentID, Type: itype}
	if err := f.interactions.Create(context.Background(), ev); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
}

func contentID(i int) string {
	return "c" + string(rune('0'+i/10)) + string(rune('0'+i%10))
}

// testConfig trims the training schedules so model tests stay fast.
func testConfig() core.EngineConfig {
	cfg := core.DefaultEngineConfig()
	cfg.ContentBased.Epochs = 3
	cfg.Collaborative.Epochs = 3
	return cfg
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 1},
		{"opposite", []float64{1, 0}, []float64{-1, 0}, -1},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0},
		{"zero vector", []float64{0, 0}, []float64{1, 2}, 0},
		{"both zero", []float64{0, 0}, []float64{0, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("cosineSimilarity() = %v, want %v", got, tt.want)
			}
			if math.IsNaN(got) {
				t.Fatal("cosineSimilarity() must never return NaN")
			}
		})
	}
}

func TestMeanVector(t *testing.T) {
	vectors := [][]float64{{1, 2}, {3, 4}}
	got := meanVector(vectors, 2)
	if got[0] != 2 || got[1] != 3 {
		t.Fatalf("meanVector() = %v, want [2 3]", got)
	}

	if got := meanVector(nil, 3); len(got) != 3 {
		t.Fatalf("meanVector() on empty input should return zero vector of dim 3, got %v", got)
	}
}

func TestIndexMap_AssignIsStable(t *testing.T) {
	m := NewIndexMap()
	if idx := m.Assign("a"); idx != 0 {
		t.Fatalf("first Assign() = %d, want 0", idx)
	}
	if idx := m.Assign("b"); idx != 1 {
		t.Fatalf("second Assign() = %d, want 1", idx)
	}
	// Re-assigning an existing id must keep its index.
	if idx := m.Assign("a"); idx != 0 {
		t.Fatalf("re-Assign() = %d, want 0", idx)
	}
	if m.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", m.Len())
	}
}

func TestIndexMap_CloneIsIndependent(t *testing.T) {
	m := NewIndexMap()
	m.Assign("a")

	clone := m.Clone()
	clone.Assign("b")

	if m.Len() != 1 {
		t.Fatalf("original Len() = %d after clone mutation, want 1", m.Len())
	}
	if clone.Len() != 2 {
		t.Fatalf("clone Len() = %d, want 2", clone.Len())
	}
}

func TestIndexMap_SaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	cache := store.NewMemoryStore()
	defer cache.Close()

	m := NewIndexMap()
	m.Assign("x")
	m.Assign("y")
	if err := m.save(ctx, cache, "test:index"); err != nil {
		t.Fatalf("save() error: %v", err)
	}

	loaded, err := loadIndexMap(ctx, cache, "test:index")
	if err != nil {
		t.Fatalf("loadIndexMap() error: %v", err)
	}
	if idx, ok := loaded.Lookup("y"); !ok || idx != 1 {
		t.Fatalf("Lookup(y) = (%d, %v), want (1, true)", idx, ok)
	}
}

func TestLoadIndexMap_MissingKeyIsEmpty(t *testing.T) {
	cache := store.NewMemoryStore()
	defer cache.Close()

	m, err := loadIndexMap(context.Background(), cache, "absent")
	if err != nil {
		t.Fatalf("loadIndexMap() missing key error: %v", err)
	}
	if m.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", m.Len())
	}
}
