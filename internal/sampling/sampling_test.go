package sampling

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pool(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("q%03d", i)
	}
	return ids
}

func TestSampleEdgeCases(t *testing.T) {
	ids := pool(5)
	assert.Empty(t, Sample(ids, 0, nil))
	assert.Empty(t, Sample(ids, -3, nil))
	assert.Empty(t, Sample([]string{}, 3, nil))

	all := Sample(ids, 10, nil)
	assert.ElementsMatch(t, ids, all)

	exact := Sample(ids, 5, nil)
	assert.ElementsMatch(t, ids, exact)
}

func TestSampleDoesNotModifyPool(t *testing.T) {
	ids := pool(20)
	orig := append([]string(nil), ids...)
	_ = Sample(ids, 7, rand.New(rand.NewPCG(1, 2)))
	assert.Equal(t, orig, ids)
}

func TestSampleDistinct(t *testing.T) {
	ids := pool(100)
	r := rand.New(rand.NewPCG(42, 7))
	for range 200 {
		got := Sample(ids, 65, r)
		require.Len(t, got, 65)
		seen := make(map[string]bool, len(got))
		for _, id := range got {
			assert.False(t, seen[id], "duplicate %s", id)
			seen[id] = true
		}
	}
}

// Each element of a 20-element pool should be picked about equally often
// over 1000 draws of 5.
func TestSampleCoverage(t *testing.T) {
	const (
		n      = 20
		k      = 5
		trials = 1000
	)
	ids := pool(n)
	r := rand.New(rand.NewPCG(2024, 11))
	counts := make(map[string]int, n)
	for range trials {
		for _, id := range Sample(ids, k, r) {
			counts[id]++
		}
	}
	require.Len(t, counts, n, "every element should appear at least once")

	expected := float64(trials*k) / n
	var chi2 float64
	for _, id := range ids {
		d := float64(counts[id]) - expected
		chi2 += d * d / expected
	}
	// 19 degrees of freedom; the 0.999 quantile is about 43.8.
	assert.Less(t, chi2, 43.8, "chi-square %.2f too large: %v", chi2, counts)
}

func TestShuffle(t *testing.T) {
	ids := pool(10)
	got := Shuffle(ids, rand.New(rand.NewPCG(3, 4)))
	assert.ElementsMatch(t, ids, got)
	assert.Equal(t, pool(10), ids)
}
