package model

import (
	"math"
	"math/rand"
	"testing"
)

func syntheticSamples(n, dim int, seed int64) [][]float64 {
	rng := rand.New(rand.NewSource(seed))
	samples := make([][]float64, n)
	for i := range samples {
		v := make([]float64, dim)
		for j := range v {
			v[j] = rng.Float64()
		}
		samples[i] = v
	}
	return samples
}

func TestAutoencoder_FitReducesLoss(t *testing.T) {
	const dim = 20
	auto := NewAutoencoder(dim, 5, 42)
	samples := syntheticSamples(64, dim, 1)

	// One epoch as a baseline, then many more on a fresh model.
	base := NewAutoencoder(dim, 5, 42)
	baseLoss, _, err := base.Fit(samples, 1, 8, 0, 0.01)
	if err != nil {
		t.Fatalf("Fit() baseline error: %v", err)
	}

	trainLoss, _, err := auto.Fit(samples, 40, 8, 0, 0.01)
	if err != nil {
		t.Fatalf("Fit() error: %v", err)
	}
	if trainLoss >= baseLoss {
		t.Fatalf("loss did not improve: 1 epoch %v, 40 epochs %v", baseLoss, trainLoss)
	}
}

func TestAutoencoder_FitValidationSplit(t *testing.T) {
	const dim = 10
	auto := NewAutoencoder(dim, 4, 7)
	samples := syntheticSamples(50, dim, 2)

	trainLoss, valLoss, err := auto.Fit(samples, 5, 8, 0.2, 0.01)
	if err != nil {
		t.Fatalf("Fit() error: %v", err)
	}
	if math.IsNaN(trainLoss) || math.IsNaN(valLoss) {
		t.Fatalf("losses must be finite: train=%v val=%v", trainLoss, valLoss)
	}
	if valLoss == 0 {
		t.Fatal("validation loss should be computed when split > 0")
	}
}

func TestAutoencoder_FitEmptySamples(t *testing.T) {
	auto := NewAutoencoder(10, 4, 7)
	if _, _, err := auto.Fit(nil, 5, 8, 0, 0.01); err == nil {
		t.Fatal("Fit() with no samples should error")
	}
}

func TestAutoencoder_EncodeShapeAndDeterminism(t *testing.T) {
	const dim = 20
	auto := NewAutoencoder(dim, 5, 42)
	samples := syntheticSamples(32, dim, 3)
	if _, _, err := auto.Fit(samples, 3, 8, 0, 0.01); err != nil {
		t.Fatalf("Fit() error: %v", err)
	}

	input := samples[0]
	a := auto.Encode(input)
	if len(a) != 5 {
		t.Fatalf("Encode() returned %d dims, want 5", len(a))
	}
	b := auto.Encode(input)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("Encode() is not deterministic at dim %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestAutoencoder_ReconstructShape(t *testing.T) {
	const dim = 12
	auto := NewAutoencoder(dim, 4, 1)
	out := auto.Reconstruct(make([]float64, dim))
	if len(out) != dim {
		t.Fatalf("Reconstruct() returned %d dims, want %d", len(out), dim)
	}
}
