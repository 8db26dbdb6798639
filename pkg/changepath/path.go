// Package changepath describes which parts of the row tree need recomputing
// after a mutation batch. A Path is built once by the transaction step and
// then passed, read-only, to the filter, aggregation and sort passes.
package changepath

import (
	"slices"

	"github.com/vanderheijden86/gridrows/pkg/model"
)

// Path is an immutable set of dirty lineages. A nil *Path means "everything".
type Path struct {
	full       bool
	structural bool
	nodes      map[*model.RowNode]*entry
	columns    map[string]bool // union of changed columns across the batch
	removed    map[string]bool
}

type entry struct {
	allColumns bool
	columns    map[string]bool
}

// Full returns a path that marks the whole tree dirty.
func Full() *Path {
	return &Path{full: true, structural: true}
}

// IsFull reports whether p covers the whole tree. A nil path is full.
func (p *Path) IsFull() bool {
	return p == nil || p.full
}

// Empty reports whether nothing was marked.
func (p *Path) Empty() bool {
	return p != nil && !p.full && len(p.nodes) == 0 && len(p.removed) == 0
}

// Structural reports whether any node was added, removed or moved.
func (p *Path) Structural() bool {
	return p.IsFull() || p.structural
}

// Contains reports whether n lies on a dirty lineage.
func (p *Path) Contains(n *model.RowNode) bool {
	if p.IsFull() {
		return true
	}
	_, ok := p.nodes[n]
	return ok
}

// ColumnChanged reports whether column must be recombined for n.
func (p *Path) ColumnChanged(n *model.RowNode, column string) bool {
	if p.IsFull() {
		return true
	}
	e, ok := p.nodes[n]
	if !ok {
		return false
	}
	return e.allColumns || e.columns[column]
}

// TouchesColumn reports whether any change in the batch affected column,
// either directly or through a structural change.
func (p *Path) TouchesColumn(column string) bool {
	if p.Structural() {
		return true
	}
	return p.columns[column]
}

// Removed reports whether id was removed during the batch.
func (p *Path) Removed(id string) bool {
	if p == nil {
		return false
	}
	return p.removed[id]
}

// Len returns the number of dirty nodes.
func (p *Path) Len() int {
	if p == nil {
		return 0
	}
	return len(p.nodes)
}

// DeepestFirst returns the dirty nodes that are still attached to the tree,
// ordered from the deepest level up to the root. Ties keep id order so the
// result is deterministic.
func (p *Path) DeepestFirst() []*model.RowNode {
	if p == nil {
		return nil
	}
	out := make([]*model.RowNode, 0, len(p.nodes))
	for n := range p.nodes {
		if !attached(n) {
			continue
		}
		out = append(out, n)
	}
	slices.SortFunc(out, func(a, b *model.RowNode) int {
		if a.Level != b.Level {
			return b.Level - a.Level
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

func attached(n *model.RowNode) bool {
	seen := make(map[*model.RowNode]bool)
	for cur := n; cur != nil && !seen[cur]; cur = cur.Parent {
		if cur.IsRoot() {
			return true
		}
		seen[cur] = true
	}
	return false
}

// Builder accumulates dirty lineages during a batch. Build freezes the result.
// Mark methods on a nil Builder are no-ops.
type Builder struct {
	p    *Path
	done bool
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{p: &Path{
		nodes:   make(map[*model.RowNode]*entry),
		columns: make(map[string]bool),
		removed: make(map[string]bool),
	}}
}

// MarkLineage marks n and all its ancestors dirty for the given columns. With
// no columns the change is structural and every column is dirty.
func (b *Builder) MarkLineage(n *model.RowNode, columns ...string) {
	if b == nil || b.done || n == nil {
		return
	}
	all := len(columns) == 0
	if all {
		b.p.structural = true
	}
	for _, c := range columns {
		b.p.columns[c] = true
	}
	seen := make(map[*model.RowNode]bool)
	for cur := n; cur != nil && !seen[cur]; cur = cur.Parent {
		seen[cur] = true
		e := b.p.nodes[cur]
		if e == nil {
			e = &entry{columns: make(map[string]bool)}
			b.p.nodes[cur] = e
		}
		if all {
			e.allColumns = true
			continue
		}
		for _, c := range columns {
			e.columns[c] = true
		}
	}
}

// MarkSubtree marks n, its ancestors and every node below n dirty for all
// columns. A subtree re-entering the tree needs this since none of its
// passes ran while it was detached.
func (b *Builder) MarkSubtree(n *model.RowNode) {
	if b == nil || b.done || n == nil {
		return
	}
	b.MarkLineage(n)
	seen := map[*model.RowNode]bool{n: true}
	stack := slices.Clone(n.Children)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		b.p.nodes[cur] = &entry{allColumns: true, columns: make(map[string]bool)}
		stack = append(stack, cur.Children...)
	}
}

// MarkRemoved records that id left the tree during the batch.
func (b *Builder) MarkRemoved(id string) {
	if b == nil || b.done {
		return
	}
	b.p.structural = true
	b.p.removed[id] = true
}

// MarkFull widens the path to the whole tree.
func (b *Builder) MarkFull() {
	if b == nil || b.done {
		return
	}
	b.p.full = true
	b.p.structural = true
}

// Build returns the accumulated path. Later Mark calls are ignored.
func (b *Builder) Build() *Path {
	b.done = true
	return b.p
}
