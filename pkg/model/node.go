// Package model defines the row node and record types shared by every part of
// the row model: the store, the hierarchy builder, the filter, sort and
// aggregation passes, and the pinned/drag utilities.
package model

import "fmt"

// RootID is the id of the synthetic root node that owns every top-level row.
const RootID = "ROOT_NODE_ID"

// AutoGroupColumn is the column key under which tree-data rows expose their
// path key. Sorting or filtering on it orders groups by key.
const AutoGroupColumn = "ag-Grid-AutoColumn"

// Record is one source row as supplied by the caller. The row model treats it
// as an opaque payload and only reads values by column key.
type Record map[string]any

// Side identifies a pinned container.
type Side string

const (
	SideNone   Side = ""
	SideTop    Side = "top"
	SideBottom Side = "bottom"
)

// Valid reports whether s names a known side.
func (s Side) Valid() bool {
	switch s {
	case SideNone, SideTop, SideBottom:
		return true
	default:
		return false
	}
}

// RowNode is a node in the row tree. Children is the sole ownership edge;
// Parent is a back-reference for navigation only.
type RowNode struct {
	ID     string
	Data   Record   // nil for filler groups
	Parent *RowNode // non-owning

	// Children holds every child in source order. ChildrenAfterFilter and
	// ChildrenAfterSort are derived views rebuilt by the filter and sort passes.
	Children            []*RowNode
	ChildrenAfterFilter []*RowNode
	ChildrenAfterSort   []*RowNode

	Level       int    // -1 for the root, 0 for top-level rows
	Key         string // group key (path segment or group column value)
	GroupColumn string // column the Key was taken from, if any

	Group    bool
	Filler   bool // synthesized group with no source record
	Footer   bool
	Expanded bool
	Selected bool

	// AggData holds per-column aggregation results. AggState holds the
	// combinable partial states and is owned by the aggregation engine.
	AggData  map[string]any
	AggState map[string]any

	// SourceIndex is the node's position in the leaf-order array. Fillers take
	// the index of the first descendant that created them.
	SourceIndex int

	PassesFilter bool
	Displayed    bool
	RowIndex     int // -1 unless displayed; derived, never set by callers
	RowTop       int
	RowHeight    int

	Pinned        Side
	PinnedSibling *RowNode
}

// NewNode returns a detached node with a row index of -1.
func NewNode(id string, data Record) *RowNode {
	return &RowNode{
		ID:           id,
		Data:         data,
		RowIndex:     -1,
		PassesFilter: true,
	}
}

// NewRoot returns the synthetic root node.
func NewRoot() *RowNode {
	root := NewNode(RootID, nil)
	root.Level = -1
	root.Group = true
	root.Expanded = true
	return root
}

// IsRoot reports whether n is the synthetic root.
func (n *RowNode) IsRoot() bool {
	return n != nil && n.ID == RootID
}

// IsLeaf reports whether n has no children.
func (n *RowNode) IsLeaf() bool {
	return len(n.Children) == 0
}

// HasData reports whether n carries a source record.
func (n *RowNode) HasData() bool {
	return n.Data != nil
}

// Value returns the raw data value for column, or nil.
func (n *RowNode) Value(column string) any {
	if n.Data == nil {
		return nil
	}
	return n.Data[column]
}

// GroupValue returns the value a group node shows for column: the group key
// for its own group column, an aggregate when one exists, otherwise its own
// data value.
func (n *RowNode) GroupValue(column string) any {
	if column == AutoGroupColumn {
		return n.Key
	}
	if n.GroupColumn != "" && n.GroupColumn == column && n.Group {
		return n.Key
	}
	if v, ok := n.AggData[column]; ok {
		if avg, ok := v.(AvgValue); ok {
			return avg.Value()
		}
		return v
	}
	return n.Value(column)
}

// Ancestors returns the chain from the top-level ancestor down to the parent,
// excluding the synthetic root.
func (n *RowNode) Ancestors() []*RowNode {
	var chain []*RowNode
	for p := n.Parent; p != nil && !p.IsRoot(); p = p.Parent {
		chain = append(chain, p)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// IndexInParent returns the position of n in its parent's Children, or -1.
func (n *RowNode) IndexInParent() int {
	if n.Parent == nil {
		return -1
	}
	for i, c := range n.Parent.Children {
		if c == n {
			return i
		}
	}
	return -1
}

func (n *RowNode) String() string {
	if n == nil {
		return "<nil>"
	}
	kind := "leaf"
	switch {
	case n.Footer:
		kind = "footer"
	case n.Filler:
		kind = "filler"
	case n.Group:
		kind = "group"
	}
	return fmt.Sprintf("%s(%s)", kind, n.ID)
}
