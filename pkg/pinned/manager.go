// Package pinned keeps the top and bottom pinned containers. A pinned row is
// mirrored: the source stays where it is in the tree, and a sibling node with
// a mutual back-reference is shown in the container.
package pinned

import (
	"errors"
	"fmt"
	"slices"

	"github.com/vanderheijden86/gridrows/pkg/events"
	"github.com/vanderheijden86/gridrows/pkg/model"
)

var (
	// ErrInvalidSide indicates a side other than top, bottom or none.
	ErrInvalidSide = errors.New("invalid pinned side")

	// ErrNotPinnable indicates the root, a nil node or a mirror.
	ErrNotPinnable = errors.New("row cannot be pinned")
)

// DefaultRowHeight is used when no height is configured.
const DefaultRowHeight = 25

// Manager owns both containers.
type Manager struct {
	top, bottom []*model.RowNode
	rowHeight   int

	// Notify receives one RowPinned event per membership change. May be nil.
	Notify func(events.Event)
}

// NewManager returns empty containers using rowHeight (DefaultRowHeight when
// not positive).
func NewManager(rowHeight int) *Manager {
	if rowHeight <= 0 {
		rowHeight = DefaultRowHeight
	}
	return &Manager{rowHeight: rowHeight}
}

func prefix(side model.Side) string {
	if side == model.SideTop {
		return "t-"
	}
	return "b-"
}

// Pin mirrors src into side. SideNone unpins. Moving between sides unpins
// first and then pins, so consumers see two notifications.
func (m *Manager) Pin(src *model.RowNode, side model.Side) error {
	if !side.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidSide, side)
	}
	if src == nil || src.IsRoot() || m.owns(src) {
		return ErrNotPinnable
	}
	if side == model.SideNone {
		m.Unpin(src)
		return nil
	}
	if src.Pinned == side {
		return nil
	}
	if src.Pinned != model.SideNone {
		m.Unpin(src)
	}

	mirror := model.NewNode(prefix(side)+src.ID, src.Data)
	mirror.Pinned = side
	mirror.PinnedSibling = src
	mirror.RowHeight = m.rowHeight
	copyState(mirror, src)
	mirror.Displayed = true
	src.Pinned = side
	src.PinnedSibling = mirror

	switch side {
	case model.SideTop:
		m.top = append(m.top, mirror)
	default:
		m.bottom = append(m.bottom, mirror)
	}
	m.layout()
	m.notify(src.ID, side)
	return nil
}

// owns reports whether n is one of the mirrors.
func (m *Manager) owns(n *model.RowNode) bool {
	return slices.Contains(m.top, n) || slices.Contains(m.bottom, n)
}

// Unpin removes src's mirror. It is a no-op for unpinned rows.
func (m *Manager) Unpin(src *model.RowNode) {
	if src == nil || src.Pinned == model.SideNone {
		return
	}
	side := src.Pinned
	mirror := src.PinnedSibling
	del := func(list []*model.RowNode) []*model.RowNode {
		return slices.DeleteFunc(list, func(n *model.RowNode) bool { return n == mirror })
	}
	m.top = del(m.top)
	m.bottom = del(m.bottom)
	if mirror != nil {
		mirror.PinnedSibling = nil
	}
	src.Pinned = model.SideNone
	src.PinnedSibling = nil
	m.layout()
	m.notify(src.ID, side)
}

// SourceRemoved destroys the mirror of a row that left the model.
func (m *Manager) SourceRemoved(src *model.RowNode) {
	m.Unpin(src)
}

// Refresh resynchronises every mirror with its source and recomputes
// visibility: a mirror is shown iff visible(source), except footer mirrors
// which are always shown. It reports whether any visibility changed.
func (m *Manager) Refresh(visible func(src *model.RowNode) bool) bool {
	changed := false
	for _, list := range [][]*model.RowNode{m.top, m.bottom} {
		for _, mirror := range list {
			src := mirror.PinnedSibling
			if src == nil {
				continue
			}
			mirror.Data = src.Data
			copyState(mirror, src)
			show := mirror.Footer || visible == nil || visible(src)
			if show != mirror.Displayed {
				mirror.Displayed = show
				changed = true
			}
		}
	}
	m.layout()
	return changed
}

// SetRowHeight changes the height of every mirror and re-lays out both
// containers.
func (m *Manager) SetRowHeight(h int) {
	if h <= 0 {
		h = DefaultRowHeight
	}
	m.rowHeight = h
	for _, list := range [][]*model.RowNode{m.top, m.bottom} {
		for _, mirror := range list {
			mirror.RowHeight = h
		}
	}
	m.layout()
}

// Rows returns the displayed mirrors of side, in pin order.
func (m *Manager) Rows(side model.Side) []*model.RowNode {
	var out []*model.RowNode
	for _, n := range m.list(side) {
		if n.Displayed {
			out = append(out, n)
		}
	}
	return out
}

// All returns every mirror of side, hidden ones included.
func (m *Manager) All(side model.Side) []*model.RowNode {
	return slices.Clone(m.list(side))
}

// Height returns the cumulative height of the displayed mirrors of side.
func (m *Manager) Height(side model.Side) int {
	h := 0
	for _, n := range m.Rows(side) {
		h += n.RowHeight
	}
	return h
}

// Clear unpins every row.
func (m *Manager) Clear() {
	for _, list := range [][]*model.RowNode{slices.Clone(m.top), slices.Clone(m.bottom)} {
		for _, mirror := range list {
			if mirror.PinnedSibling != nil {
				m.Unpin(mirror.PinnedSibling)
			}
		}
	}
}

func (m *Manager) list(side model.Side) []*model.RowNode {
	switch side {
	case model.SideTop:
		return m.top
	case model.SideBottom:
		return m.bottom
	default:
		return nil
	}
}

// layout assigns RowIndex and RowTop within each container.
func (m *Manager) layout() {
	for _, list := range [][]*model.RowNode{m.top, m.bottom} {
		top, idx := 0, 0
		for _, n := range list {
			if !n.Displayed {
				n.RowIndex = -1
				n.RowTop = 0
				continue
			}
			n.RowIndex = idx
			n.RowTop = top
			idx++
			top += n.RowHeight
		}
	}
}

func (m *Manager) notify(id string, side model.Side) {
	if m.Notify == nil {
		return
	}
	m.Notify(events.Event{Type: events.RowPinned, Scope: events.Incremental, RowIDs: []string{id}, Side: side})
}

func copyState(mirror, src *model.RowNode) {
	mirror.Selected = src.Selected
	mirror.Group = src.Group
	mirror.Footer = src.Footer
	mirror.Key = src.Key
	mirror.GroupColumn = src.GroupColumn
	mirror.AggData = src.AggData
}
