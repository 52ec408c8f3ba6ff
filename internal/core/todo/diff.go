package todo

import "sort"

// Diff returns the positions in next whose item is new (no item existed at
// that position in prev) or whose status differs from the item previously at
// that position. Comparison is positional: reordering identical items counts
// as a change. Neither input is modified.
func Diff(prev, next []Item) map[int]struct{} {
	changed := make(map[int]struct{})
	for i, it := range next {
		if i >= len(prev) || prev[i].Status != it.Status {
			changed[i] = struct{}{}
		}
	}
	return changed
}

// Changed is Diff with the positions returned in ascending order.
func Changed(prev, next []Item) []int {
	set := Diff(prev, next)
	out := make([]int, 0, len(set))
	for i := range set {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}
