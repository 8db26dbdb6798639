package rowstore

import (
	"slices"

	"github.com/vanderheijden86/gridrows/pkg/model"
)

// Order is the flat leaf-order array: every data node in source order. It
// backs the unmodified order used by drag reordering and the sort tie-break.
type Order struct {
	nodes []*model.RowNode
	stale int
}

// Nodes returns the current leaf order, compacting removed entries first.
func (o *Order) Nodes(s *Store) []*model.RowNode {
	o.Compact(s)
	return o.nodes
}

// Len returns the number of live entries.
func (o *Order) Len(s *Store) int {
	o.Compact(s)
	return len(o.nodes)
}

// Reset replaces the order with nodes and renumbers SourceIndex to match.
func (o *Order) Reset(nodes []*model.RowNode) {
	o.nodes = nodes
	o.stale = 0
	for i, n := range o.nodes {
		n.SourceIndex = i
	}
}

// Next returns the SourceIndex a node appended now would take.
func (o *Order) Next() int {
	if len(o.nodes) == 0 {
		return 0
	}
	return o.nodes[len(o.nodes)-1].SourceIndex + 1
}

// Append adds n at the end of the order.
func (o *Order) Append(n *model.RowNode) {
	n.SourceIndex = o.Next()
	o.nodes = append(o.nodes, n)
}

// Forget marks one entry stale. The slice is compacted lazily so that a batch
// of removals costs one pass.
func (o *Order) Forget() {
	o.stale++
}

// Compact drops entries whose node is no longer registered in s.
func (o *Order) Compact(s *Store) {
	if o.stale == 0 {
		return
	}
	o.nodes = slices.DeleteFunc(o.nodes, func(n *model.RowNode) bool {
		cur, ok := s.Get(n.ID)
		return !ok || cur != n
	})
	o.stale = 0
}

// Insert places nodes at position at (clamped) and renumbers every entry.
// Callers must follow up with Resequence so filler indices and sibling
// order agree with the new numbering.
func (o *Order) Insert(s *Store, at int, nodes ...*model.RowNode) {
	o.Compact(s)
	at = max(0, min(at, len(o.nodes)))
	o.nodes = slices.Insert(o.nodes, at, nodes...)
	for i, n := range o.nodes {
		n.SourceIndex = i
	}
}

// Rewrite renumbers the range [lo, hi) after an in-place reorder of the
// underlying slice returned by Nodes.
func (o *Order) Rewrite(lo, hi int) {
	for i := lo; i < hi && i < len(o.nodes); i++ {
		o.nodes[i].SourceIndex = i
	}
}

// Resequence recomputes filler source indices as the minimum of their
// children and re-sorts every children list by SourceIndex. It restores the
// ordering invariant Attach relies on after a renumbering.
func (s *Store) Resequence() {
	var visit func(n *model.RowNode)
	visit = func(n *model.RowNode) {
		for _, c := range n.Children {
			visit(c)
		}
		if len(n.Children) == 0 {
			return
		}
		slices.SortStableFunc(n.Children, func(a, b *model.RowNode) int {
			return a.SourceIndex - b.SourceIndex
		})
		if n.Filler {
			n.SourceIndex = n.Children[0].SourceIndex
		}
	}
	visit(s.root)
}
