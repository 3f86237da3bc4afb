package session

import "slices"

// Pick adds opt to sel while keeping at most k picks. When sel is full the
// oldest pick is evicted. sel is kept in pick order; picking an option that is
// already selected leaves the selection unchanged. A capacity below one is
// treated as one. The input slice is never modified.
func Pick(sel []int, opt, k int) []int {
	if k < 1 {
		k = 1
	}
	out := slices.Clone(sel)
	if slices.Contains(out, opt) {
		return out
	}
	out = append(out, opt)
	if len(out) > k {
		out = out[len(out)-k:]
	}
	return out
}

// Unpick removes opt from sel, preserving the order of the remaining picks.
func Unpick(sel []int, opt int) []int {
	out := make([]int, 0, len(sel))
	for _, v := range sel {
		if v != opt {
			out = append(out, v)
		}
	}
	return out
}

// Toggle unpicks opt when it is selected and picks it otherwise.
func Toggle(sel []int, opt, k int) []int {
	if slices.Contains(sel, opt) {
		return Unpick(sel, opt)
	}
	return Pick(sel, opt, k)
}
