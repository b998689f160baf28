package ports

import (
	"context"
	"math/rand"
)

// RNGPort provides seeded random number generation for deterministic operations
type RNGPort interface {
	// SeededStream creates a generator seeded exactly with seed
	SeededStream(ctx context.Context, seed int64) (*rand.Rand, error)

	// Stream derives an independent generator for a named stage of a run
	// (e.g. "initial_design", "candidates", "posterior"). The same stage
	// name and base seed always give the same sequence.
	Stream(ctx context.Context, stageName string, baseSeed int64) (*rand.Rand, error)
}
