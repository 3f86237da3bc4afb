package session

import (
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPick(t *testing.T) {
	tests := []struct {
		name string
		sel  []int
		opt  int
		k    int
		want []int
	}{
		{"empty", nil, 2, 2, []int{2}},
		{"below capacity", []int{0}, 3, 2, []int{0, 3}},
		{"evicts oldest", []int{0, 3}, 1, 2, []int{3, 1}},
		{"single choice replaces", []int{2}, 0, 1, []int{0}},
		{"already picked", []int{0, 3}, 0, 2, []int{0, 3}},
		{"zero capacity acts as one", []int{1}, 2, 0, []int{2}},
		{"overfull input trimmed", []int{0, 1, 2}, 3, 2, []int{2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Pick(tt.sel, tt.opt, tt.k))
		})
	}
}

func TestPickDoesNotModifyInput(t *testing.T) {
	sel := make([]int, 2, 8)
	sel[0], sel[1] = 0, 1
	_ = Pick(sel, 2, 2)
	assert.Equal(t, []int{0, 1}, sel)
}

func TestUnpickAndToggle(t *testing.T) {
	assert.Equal(t, []int{0, 2}, Unpick([]int{0, 1, 2}, 1))
	assert.Equal(t, []int{0}, Unpick([]int{0}, 5))
	assert.Equal(t, []int{}, Unpick(nil, 0))

	assert.Equal(t, []int{1}, Toggle([]int{0, 1}, 0, 2))
	assert.Equal(t, []int{1, 0}, Toggle([]int{1}, 0, 2))
	assert.Equal(t, []int{1, 2}, Toggle([]int{0, 1}, 2, 2))
}

// Random pick sequences never exceed capacity, always hold the newest pick
// and evict exactly the oldest one when full.
func TestPickFIFOProperty(t *testing.T) {
	r := rand.New(rand.NewPCG(9, 9))
	for range 500 {
		k := 1 + r.IntN(3)
		var sel []int
		for range 20 {
			opt := r.IntN(6)
			prev := slices.Clone(sel)
			sel = Pick(sel, opt, k)

			assert.LessOrEqual(t, len(sel), k)
			assert.Contains(t, sel, opt)
			switch {
			case slices.Contains(prev, opt):
				assert.Equal(t, prev, sel)
			case len(prev) == k:
				assert.Equal(t, append(slices.Clone(prev[1:]), opt), sel)
			default:
				assert.Equal(t, append(slices.Clone(prev), opt), sel)
			}
		}
	}
}
