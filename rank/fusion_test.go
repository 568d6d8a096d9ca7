package rank

import (
	"reflect"
	"testing"

	"github.com/rushteam/hybrec/core"
)

func TestWeightedFusion_Fuse(t *testing.T) {
	f := &WeightedFusion{CollaborativeWeight: 0.7, ContentWeight: 0.3}

	tests := []struct {
		name          string
		collaborative []string
		contentBased  []string
		limit         int
		want          []string
	}{
		{
			// shared base n=3: x=3*0.7+2*0.3=2.7, y=2*0.7+3*0.3=2.3,
			// z=1*0.7=0.7.
			name:          "overlap is summed",
			collaborative: []string{"x", "y", "z"},
			contentBased:  []string{"y", "x"},
			limit:         3,
			want:          []string{"x", "y", "z"},
		},
		{
			name:          "content only",
			collaborative: nil,
			contentBased:  []string{"a", "b", "c"},
			limit:         2,
			want:          []string{"a", "b"},
		},
		{
			name:          "collaborative only",
			collaborative: []string{"a", "b"},
			contentBased:  nil,
			limit:         5,
			want:          []string{"a", "b"},
		},
		{
			name:          "both empty",
			collaborative: nil,
			contentBased:  nil,
			limit:         3,
			want:          []string{},
		},
		{
			name:          "limit truncates",
			collaborative: []string{"a", "b", "c", "d"},
			contentBased:  []string{"e"},
			limit:         2,
			want:          []string{"a", "b"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := f.Fuse(tt.collaborative, tt.contentBased, tt.limit)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Fuse() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWeightedFusion_TieBreakPrefersHigherWeightedList(t *testing.T) {
	// Equal weights with disjoint single-item lists produce a tie;
	// the collaborative entry must come out first because it is
	// traversed first when its weight is not lower.
	f := &WeightedFusion{CollaborativeWeight: 0.5, ContentWeight: 0.5}
	got := f.Fuse([]string{"cf"}, []string{"cb"}, 2)
	want := []string{"cf", "cb"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Fuse() = %v, want %v", got, want)
	}
}

func TestWeightedFusion_Deterministic(t *testing.T) {
	f := NewWeightedFusion(core.DefaultEngineConfig())
	a := f.Fuse([]string{"1", "2", "3"}, []string{"3", "4"}, 4)
	for i := 0; i < 10; i++ {
		b := f.Fuse([]string{"1", "2", "3"}, []string{"3", "4"}, 4)
		if !reflect.DeepEqual(a, b) {
			t.Fatalf("Fuse() is not deterministic: %v vs %v", a, b)
		}
	}
}
