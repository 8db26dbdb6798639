package filter

import (
	"github.com/vanderheijden86/gridrows/pkg/changepath"
	"github.com/vanderheijden86/gridrows/pkg/model"
)

// Pipeline evaluates a validated filter model over the row tree.
type Pipeline struct {
	model           Model
	columns         []string
	excludeChildren bool
}

// New validates m and returns a pipeline. A nil or empty model is inactive.
func New(m Model, excludeChildren bool) (*Pipeline, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{model: m, columns: m.Columns(), excludeChildren: excludeChildren}, nil
}

// Active reports whether any predicate is set.
func (p *Pipeline) Active() bool {
	return p != nil && len(p.model) > 0
}

// ExcludeChildren reports whether groups are judged by their own value.
func (p *Pipeline) ExcludeChildren() bool {
	return p != nil && p.excludeChildren
}

// Model returns the filter model.
func (p *Pipeline) Model() Model {
	if p == nil {
		return nil
	}
	return p.model
}

// Columns returns the filtered columns.
func (p *Pipeline) Columns() []string {
	if p == nil {
		return nil
	}
	return p.columns
}

// Apply sets PassesFilter and ChildrenAfterFilter. A full path evaluates
// every node; otherwise only dirty lineages are re-evaluated, deepest first,
// and the pass is skipped outright when the batch touched neither structure
// nor a filtered column.
func (p *Pipeline) Apply(root *model.RowNode, path *changepath.Path) {
	if path.IsFull() {
		p.visit(root)
		return
	}
	if !path.Structural() && !p.touched(path) {
		return
	}
	for _, n := range path.DeepestFirst() {
		p.evaluate(n)
	}
}

func (p *Pipeline) touched(path *changepath.Path) bool {
	for _, c := range p.Columns() {
		if path.TouchesColumn(c) {
			return true
		}
	}
	return false
}

func (p *Pipeline) visit(n *model.RowNode) {
	for _, c := range n.Children {
		p.visit(c)
	}
	p.evaluate(n)
}

// evaluate assumes every child of n is already evaluated.
func (p *Pipeline) evaluate(n *model.RowNode) {
	kids := make([]*model.RowNode, 0, len(n.Children))
	for _, c := range n.Children {
		if c.PassesFilter {
			kids = append(kids, c)
		}
	}
	n.ChildrenAfterFilter = kids
	if n.IsRoot() {
		n.PassesFilter = true
		return
	}
	n.PassesFilter = p.passes(n, len(kids) > 0)
}

func (p *Pipeline) passes(n *model.RowNode, visibleChild bool) bool {
	if !p.Active() {
		return true
	}
	if p.excludeChildren {
		return p.Matches(n.GroupValue)
	}
	if visibleChild {
		return true
	}
	return n.HasData() && p.Matches(func(col string) any { return ownValue(n, col) })
}

// Matches evaluates the conjunction with values supplied by value.
func (p *Pipeline) Matches(value func(column string) any) bool {
	if !p.Active() {
		return true
	}
	for _, col := range p.columns {
		if !p.model[col].Match(value(col)) {
			return false
		}
	}
	return true
}

// NodePasses reports whether n's own values pass, ignoring descendants. Used
// for rows outside the tree such as pinned mirrors.
func (p *Pipeline) NodePasses(n *model.RowNode) bool {
	return p.Matches(func(col string) any { return ownValue(n, col) })
}

func ownValue(n *model.RowNode, col string) any {
	if col == model.AutoGroupColumn {
		return n.Key
	}
	return n.Value(col)
}
