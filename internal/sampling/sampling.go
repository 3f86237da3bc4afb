// Package sampling picks random subsets of questions.
package sampling

import "math/rand/v2"

// Sample returns count distinct elements of pool in random order. If count
// covers the whole pool, the entire pool is returned shuffled; count <= 0
// yields an empty slice. pool is not modified. A nil r uses the global source.
func Sample[T any](pool []T, count int, r *rand.Rand) []T {
	if count <= 0 || len(pool) == 0 {
		return []T{}
	}
	out := make([]T, len(pool))
	copy(out, pool)
	shuffle(out, r)
	if count >= len(out) {
		return out
	}
	out = out[:count:count]
	// The picked subset is reshuffled after it is fetched.
	shuffle(out, r)
	return out
}

// Shuffle returns a shuffled copy of items.
func Shuffle[T any](items []T, r *rand.Rand) []T {
	out := make([]T, len(items))
	copy(out, items)
	shuffle(out, r)
	return out
}

func shuffle[T any](s []T, r *rand.Rand) {
	swap := func(i, j int) { s[i], s[j] = s[j], s[i] }
	if r == nil {
		rand.Shuffle(len(s), swap)
		return
	}
	r.Shuffle(len(s), swap)
}
