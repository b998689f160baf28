package rng

import (
	"context"
	"testing"
)

func draw(t *testing.T, stage string, seed int64) []float64 {
	t.Helper()
	r, err := NewSeededAdapter().Stream(context.Background(), stage, seed)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	out := make([]float64, 5)
	for i := range out {
		out[i] = r.Float64()
	}
	return out
}

func TestStreamIsDeterministic(t *testing.T) {
	a := draw(t, "candidates", 42)
	b := draw(t, "candidates", 42)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("draw %d differs: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestStagesAreIndependent(t *testing.T) {
	a := draw(t, "initial_design", 42)
	b := draw(t, "candidates", 42)
	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
		}
	}
	if same {
		t.Error("expected different stages to produce different sequences")
	}
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewSeededAdapter().SeededStream(ctx, 1); err == nil {
		t.Error("expected error for cancelled context")
	}
}
