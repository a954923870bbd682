package combat

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
)

// RNG is the narrow random source the resolvers draw from. Every draw made
// while resolving a stage comes from one RNG so the stage replays exactly.
type RNG interface {
	IntN(n int) int
	Float64() float64
}

// NewSeed returns a fresh match seed from crypto/rand.
func NewSeed() (uint64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

// NewRNG derives an independent PCG stream from a match seed and labels such
// as the stage name or an entrant id.
func NewRNG(seed uint64, labels ...string) *rand.Rand {
	h := fnv.New64a()
	for _, l := range labels {
		_, _ = h.Write([]byte(l))
		_, _ = h.Write([]byte{0})
	}
	return rand.New(rand.NewPCG(seed, h.Sum64()))
}

// Chance returns true with probability p.
func Chance(rng RNG, p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return rng.Float64() < p
}

// Pick returns a uniformly chosen element of items.
func Pick[T any](rng RNG, items []T) T {
	var zero T
	if len(items) == 0 {
		return zero
	}
	return items[rng.IntN(len(items))]
}
