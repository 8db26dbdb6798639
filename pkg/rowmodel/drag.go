package rowmodel

import (
	"errors"

	"github.com/vanderheijden86/gridrows/pkg/changepath"
	"github.com/vanderheijden86/gridrows/pkg/diag"
	"github.com/vanderheijden86/gridrows/pkg/dragreorder"
	"github.com/vanderheijden86/gridrows/pkg/events"
	"github.com/vanderheijden86/gridrows/pkg/model"
	"github.com/vanderheijden86/gridrows/pkg/transaction"
)

var _ dragreorder.Grid = (*ClientSide)(nil)

// Grouped reports whether rows are grouped or shown as a tree.
func (c *ClientSide) Grouped() bool { return c.b.Config().Grouped() }

// Filtered reports whether a filter is active.
func (c *ClientSide) Filtered() bool { return c.filter.Active() }

// Sorted reports whether a sort is active.
func (c *ClientSide) Sorted() bool { return c.sorter.Active() }

// Drag starts a drag of the rows with ids at pointer position y. The
// session publishes dragEnded through this model.
func (c *ClientSide) Drag(ids []string, y int) (*dragreorder.Session, error) {
	s, err := dragreorder.Begin(c, ids, y)
	if err != nil {
		return nil, err
	}
	s.Notify = c.bus.Publish
	return s, nil
}

// Reorder moves rows to leaf-order boundary target.
func (c *ClientSide) Reorder(moved []*model.RowNode, target int) bool {
	order := c.b.Order()
	lo, hi, changed := dragreorder.Reorder(order.Nodes(c.b.Store()), moved, target)
	if !changed {
		return false
	}
	order.Rewrite(lo, hi)
	c.b.Store().Resequence()
	c.refresh(changepath.Full())
	c.bus.Publish(events.Event{Type: events.ModelUpdated, Scope: events.Full})
	return true
}

// RemoveRecords removes recs in one transaction.
func (c *ClientSide) RemoveRecords(recs []model.Record) error {
	res := c.ApplyTransaction(transaction.Transaction{Remove: recs})
	return joinDiagnostics(res.Diagnostics)
}

// AddRecords inserts recs at leaf-order position at in one transaction.
func (c *ClientSide) AddRecords(recs []model.Record, at int) error {
	res := c.ApplyTransaction(transaction.Transaction{Add: recs, AddIndex: &at})
	return joinDiagnostics(res.Diagnostics)
}

func joinDiagnostics(ds []diag.Diagnostic) error {
	errs := make([]error, len(ds))
	for i, d := range ds {
		errs[i] = d
	}
	return errors.Join(errs...)
}
