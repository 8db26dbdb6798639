// Package dragreorder moves selected leaf rows within the unmodified leaf
// order of a grid, and between grids.
package dragreorder

import (
	"github.com/vanderheijden86/gridrows/pkg/model"
)

// Reorder moves the rows in moved to boundary target of leaves (0 means
// before the first row, len(leaves) after the last). Moved rows keep their
// relative leaf order and end up contiguous; rows that were before target
// stay before them and rows after stay after. Only the range [lo, hi)
// spanning the moved rows and the target is rewritten.
//
// Rows in moved that are not in leaves are ignored. changed is false when
// the drop leaves the order as it was.
func Reorder(leaves []*model.RowNode, moved []*model.RowNode, target int) (lo, hi int, changed bool) {
	target = max(0, min(target, len(leaves)))
	set := make(map[*model.RowNode]bool, len(moved))
	for _, n := range moved {
		set[n] = true
	}

	lo, hi = target, target
	found := false
	for i, n := range leaves {
		if !set[n] {
			continue
		}
		found = true
		lo = min(lo, i)
		hi = max(hi, i+1)
	}
	if !found {
		return target, target, false
	}

	var before, block, after []*model.RowNode
	for i := lo; i < hi; i++ {
		n := leaves[i]
		switch {
		case set[n]:
			block = append(block, n)
		case i < target:
			before = append(before, n)
		default:
			after = append(after, n)
		}
	}

	i := lo
	for _, part := range [][]*model.RowNode{before, block, after} {
		for _, n := range part {
			if leaves[i] != n {
				changed = true
				leaves[i] = n
			}
			i++
		}
	}
	return lo, hi, changed
}
