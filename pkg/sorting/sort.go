// Package sorting orders siblings within each level of the row tree. It is
// never a flat sort: each group's filtered children are sorted on their own,
// with a final tie-break on source order so equal rows keep their places.
package sorting

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/vanderheijden86/gridrows/pkg/changepath"
	"github.com/vanderheijden86/gridrows/pkg/model"
)

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// SortKey is one link of the comparator chain.
type SortKey struct {
	Column    string    `yaml:"column" json:"colId"`
	Direction Direction `yaml:"direction" json:"sort"`
}

// Model is the ordered comparator chain.
type Model []SortKey

// ErrInvalidModel indicates an unusable sort model.
var ErrInvalidModel = errors.New("invalid sort model")

// ParseDirection accepts asc/desc in any case; empty means asc.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "asc", "ascending":
		return Asc, nil
	case "desc", "descending":
		return Desc, nil
	default:
		return "", fmt.Errorf("%w: direction %q", ErrInvalidModel, s)
	}
}

// Validate rejects empty columns, unknown directions and repeated columns.
func (m Model) Validate() error {
	seen := make(map[string]bool, len(m))
	for i, k := range m {
		if strings.TrimSpace(k.Column) == "" {
			return fmt.Errorf("%w: key %d has no column", ErrInvalidModel, i)
		}
		if k.Direction != Asc && k.Direction != Desc {
			return fmt.Errorf("%w: key %d (%s) has direction %q", ErrInvalidModel, i, k.Column, k.Direction)
		}
		if seen[k.Column] {
			return fmt.Errorf("%w: column %q sorted twice", ErrInvalidModel, k.Column)
		}
		seen[k.Column] = true
	}
	return nil
}

// Engine sorts with a validated model.
type Engine struct {
	model Model
}

// New validates m. An empty model keeps source order.
func New(m Model) (*Engine, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &Engine{model: slices.Clone(m)}, nil
}

// Active reports whether any sort key is set.
func (e *Engine) Active() bool {
	return e != nil && len(e.model) > 0
}

// Model returns a copy of the comparator chain.
func (e *Engine) Model() Model {
	if e == nil {
		return nil
	}
	return slices.Clone(e.model)
}

// Compare orders two siblings. Groups compare by their key for their own
// group column and by their aggregate for aggregated columns.
func (e *Engine) Compare(a, b *model.RowNode) int {
	if e != nil {
		for _, k := range e.model {
			c := model.Compare(a.GroupValue(k.Column), b.GroupValue(k.Column))
			if k.Direction == Desc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
	}
	return a.SourceIndex - b.SourceIndex
}

// Sort rebuilds ChildrenAfterSort from ChildrenAfterFilter. A full path
// re-sorts every level; otherwise only the dirty nodes' children are
// re-sorted, which also reorders a changed group among its siblings.
func (e *Engine) Sort(root *model.RowNode, path *changepath.Path) {
	if path.IsFull() {
		e.sortSubtree(root)
		return
	}
	for _, n := range path.DeepestFirst() {
		e.sortNode(n)
	}
}

func (e *Engine) sortSubtree(n *model.RowNode) {
	e.sortNode(n)
	for _, c := range n.Children {
		e.sortSubtree(c)
	}
}

func (e *Engine) sortNode(n *model.RowNode) {
	kids := slices.Clone(n.ChildrenAfterFilter)
	if e.Active() {
		slices.SortStableFunc(kids, e.Compare)
	}
	n.ChildrenAfterSort = kids
}
