// Package rng implements ports.RNGPort with math/rand sources derived
// from a base seed and a stage name.
package rng

import (
	"context"
	"math/rand"

	"bayescal/ports"
)

// SeededAdapter hands out deterministic generators.
type SeededAdapter struct{}

// NewSeededAdapter returns the default RNG port implementation.
func NewSeededAdapter() ports.RNGPort {
	return &SeededAdapter{}
}

// SeededStream creates a generator seeded exactly with seed
func (r *SeededAdapter) SeededStream(ctx context.Context, seed int64) (*rand.Rand, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return rand.New(rand.NewSource(seed)), nil
}

// Stream mixes the stage name into the base seed so stages draw from
// independent sequences.
func (r *SeededAdapter) Stream(ctx context.Context, stageName string, baseSeed int64) (*rand.Rand, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seed := baseSeed
	if stageName != "" {
		seed = int64(hashString(stageName)) + seed
	}
	return rand.New(rand.NewSource(seed)), nil
}

// hashString creates a simple hash for deterministic seeding
func hashString(s string) uint32 {
	var hash uint32 = 5381
	for _, c := range s {
		hash = ((hash << 5) + hash) + uint32(c) // djb2
	}
	return hash
}
