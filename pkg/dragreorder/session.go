package dragreorder

import (
	"errors"
	"fmt"

	"github.com/vanderheijden86/gridrows/pkg/events"
	"github.com/vanderheijden86/gridrows/pkg/model"
)

var (
	// ErrDisabled indicates that grouping, filtering or sorting is active.
	ErrDisabled = errors.New("row drag disabled")

	// ErrNoRows indicates a drag that resolved to no known leaf rows.
	ErrNoRows = errors.New("no rows to drag")

	// ErrFinished indicates a call on a session that already ended.
	ErrFinished = errors.New("drag session finished")
)

// Grid is what a drag session needs from a row model.
type Grid interface {
	// InstanceID distinguishes independent grids.
	InstanceID() string

	Grouped() bool
	Filtered() bool
	Sorted() bool

	Node(id string) (*model.RowNode, bool)
	// LeafOrder returns every data row in unmodified order.
	LeafOrder() []*model.RowNode
	// DisplayedRows returns the rows that have a row index, in index order.
	DisplayedRows() []*model.RowNode

	// Reorder moves rows to a leaf-order boundary and recomputes the view.
	Reorder(moved []*model.RowNode, target int) bool

	// RemoveRecords and AddRecords are used for cross-grid drops.
	RemoveRecords(recs []model.Record) error
	AddRecords(recs []model.Record, at int) error
}

func disabled(g Grid) error {
	switch {
	case g.Grouped():
		return fmt.Errorf("%w: grouping is active", ErrDisabled)
	case g.Filtered():
		return fmt.Errorf("%w: a filter is active", ErrDisabled)
	case g.Sorted():
		return fmt.Errorf("%w: a sort is active", ErrDisabled)
	}
	return nil
}

// Session tracks one drag gesture. y coordinates are pixel offsets in the
// grid's row space, matching RowNode.RowTop.
type Session struct {
	grid   Grid
	ids    []string
	startY int
	lastY  int
	done   bool

	// Notify receives a DragEnded event when the drop changed something.
	Notify func(events.Event)
}

// Begin starts dragging the rows with the given ids from pointer position y.
// Unknown ids are dropped.
func Begin(g Grid, ids []string, y int) (*Session, error) {
	if err := disabled(g); err != nil {
		return nil, err
	}
	s := &Session{grid: g, startY: y, lastY: y}
	s.ids = make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := g.Node(id); ok {
			s.ids = append(s.ids, id)
		}
	}
	if len(s.moved(g)) == 0 {
		return nil, ErrNoRows
	}
	return s, nil
}

// IDs returns the ids being dragged.
func (s *Session) IDs() []string { return s.ids }

// Move records the pointer position and returns the leaf boundary a drop
// there would target.
func (s *Session) Move(y int) int {
	s.lastY = y
	return s.target(s.grid, y)
}

// Cancel abandons the drag. The grid is untouched.
func (s *Session) Cancel() {
	s.done = true
}

// End drops the rows at the last pointer position. Positions and dragged
// rows are resolved against the grid's current state, so rows removed
// during the drag are ignored. It reports whether the order changed.
func (s *Session) End() (bool, error) {
	if s.done {
		return false, ErrFinished
	}
	s.done = true
	if err := disabled(s.grid); err != nil {
		return false, err
	}
	moved := s.moved(s.grid)
	if len(moved) == 0 {
		return false, nil
	}
	changed := s.grid.Reorder(moved, s.target(s.grid, s.lastY))
	if changed {
		s.notify(moved)
	}
	return changed, nil
}

// DropOn ends the drag over another grid at position y. The rows are removed
// from the source grid and their records added to other at the boundary
// under y. Dropping on the source grid is the same as End.
func (s *Session) DropOn(other Grid, y int) (bool, error) {
	if other == nil || other.InstanceID() == s.grid.InstanceID() {
		s.lastY = y
		return s.End()
	}
	if s.done {
		return false, ErrFinished
	}
	s.done = true
	if err := disabled(other); err != nil {
		return false, err
	}
	moved := s.moved(s.grid)
	if len(moved) == 0 {
		return false, nil
	}
	at := s.boundary(other, y, nil)
	recs := make([]model.Record, len(moved))
	for i, n := range moved {
		recs[i] = n.Data
	}
	if err := s.grid.RemoveRecords(recs); err != nil {
		return false, err
	}
	if err := other.AddRecords(recs, at); err != nil {
		return false, err
	}
	s.notify(moved)
	return true, nil
}

// moved returns the dragged rows still present in g, in leaf order.
func (s *Session) moved(g Grid) []*model.RowNode {
	want := make(map[string]bool, len(s.ids))
	for _, id := range s.ids {
		want[id] = true
	}
	var out []*model.RowNode
	for _, n := range g.LeafOrder() {
		if want[n.ID] {
			out = append(out, n)
		}
	}
	return out
}

func (s *Session) target(g Grid, y int) int {
	set := make(map[*model.RowNode]bool, len(s.ids))
	for _, n := range s.moved(g) {
		set[n] = true
	}
	return s.boundary(g, y, set)
}

// boundary maps y to the nearest row boundary of g's displayed rows and
// converts it to a leaf-order position. A pointer over a dragged row
// resolves to its nearest non-dragged neighbour in the drag direction.
func (s *Session) boundary(g Grid, y int, dragged map[*model.RowNode]bool) int {
	leaves := g.LeafOrder()
	pos := make(map[*model.RowNode]int, len(leaves))
	for i, n := range leaves {
		pos[n] = i
	}
	var rows []*model.RowNode
	for _, n := range g.DisplayedRows() {
		if _, ok := pos[n]; ok {
			rows = append(rows, n)
		}
	}

	b := len(rows)
	for i, n := range rows {
		if y >= n.RowTop+n.RowHeight {
			continue
		}
		switch {
		case !dragged[n]:
			b = i
			if y >= n.RowTop+n.RowHeight/2 {
				b = i + 1
			}
		case y > s.startY:
			b = i + 1
			for b < len(rows) && dragged[rows[b]] {
				b++
			}
		case y < s.startY:
			b = i
			for b > 0 && dragged[rows[b-1]] {
				b--
			}
		default:
			b = i
		}
		break
	}

	if b >= len(rows) {
		return len(leaves)
	}
	return pos[rows[b]]
}

func (s *Session) notify(moved []*model.RowNode) {
	if s.Notify == nil {
		return
	}
	ids := make([]string, len(moved))
	for i, n := range moved {
		ids[i] = n.ID
	}
	s.Notify(events.Event{Type: events.DragEnded, Scope: events.Full, RowIDs: ids})
}
