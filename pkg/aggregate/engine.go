package aggregate

import (
	"errors"
	"fmt"

	"github.com/vanderheijden86/gridrows/pkg/changepath"
	"github.com/vanderheijden86/gridrows/pkg/diag"
	"github.com/vanderheijden86/gridrows/pkg/model"
)

// ColumnAgg configures the aggregation of one column. Exactly one of Func,
// Reducer and Combiner names the reduction.
type ColumnAgg struct {
	Column   string
	Func     string
	Reducer  ReducerFunc
	Combiner Combiner

	// FilteredOnly folds only children that pass the filter.
	FilteredOnly bool
	// OnlyChangedColumns skips recombining the column on a dirty node unless
	// the batch changed it there.
	OnlyChangedColumns bool
}

// ErrInvalidColumn indicates an unusable column aggregation.
var ErrInvalidColumn = errors.New("invalid column aggregation")

type column struct {
	ColumnAgg
	fn Func
}

// Engine computes aggregates for a fixed set of columns.
type Engine struct {
	cols []column

	// Sink receives panics from custom reductions. May be nil.
	Sink diag.Sink

	// FilterColumns are the columns the filter reads. A change to any of them
	// can change which children a FilteredOnly column folds.
	FilterColumns []string
}

// NewEngine resolves cols against reg (the built-ins when nil).
func NewEngine(cols []ColumnAgg, reg *Registry) (*Engine, error) {
	if reg == nil {
		reg = NewRegistry()
	}
	e := &Engine{}
	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		if c.Column == "" {
			return nil, fmt.Errorf("%w: empty column", ErrInvalidColumn)
		}
		if seen[c.Column] {
			return nil, fmt.Errorf("%w: column %q configured twice", ErrInvalidColumn, c.Column)
		}
		seen[c.Column] = true

		set := 0
		for _, ok := range []bool{c.Func != "", c.Reducer != nil, c.Combiner != nil} {
			if ok {
				set++
			}
		}
		if set != 1 {
			return nil, fmt.Errorf("%w: column %q needs exactly one function", ErrInvalidColumn, c.Column)
		}

		var fn Func
		switch {
		case c.Reducer != nil:
			fn = Func{Name: "custom", Reducer: c.Reducer}
		case c.Combiner != nil:
			fn = Func{Name: "custom", Combiner: c.Combiner}
		default:
			var err error
			if fn, err = reg.Lookup(c.Func); err != nil {
				return nil, fmt.Errorf("column %q: %w", c.Column, err)
			}
		}
		e.cols = append(e.cols, column{ColumnAgg: c, fn: fn})
	}
	return e, nil
}

// Columns returns the aggregated column keys in configuration order.
func (e *Engine) Columns() []string {
	if e == nil {
		return nil
	}
	out := make([]string, len(e.cols))
	for i, c := range e.cols {
		out[i] = c.Column
	}
	return out
}

// Has reports whether column is aggregated.
func (e *Engine) Has(column string) bool {
	if e == nil {
		return false
	}
	for _, c := range e.cols {
		if c.Column == column {
			return true
		}
	}
	return false
}

// Empty reports whether no column is aggregated.
func (e *Engine) Empty() bool {
	return e == nil || len(e.cols) == 0
}

// HasFilteredOnly reports whether any column folds filtered children only.
func (e *Engine) HasFilteredOnly() bool {
	if e == nil {
		return false
	}
	for _, c := range e.cols {
		if c.FilteredOnly {
			return true
		}
	}
	return false
}

// Unfiltered returns a copy of e that folds every child regardless of the
// filter. Exclude-children filtering judges groups by these values.
func (e *Engine) Unfiltered() *Engine {
	if e == nil {
		return nil
	}
	out := &Engine{Sink: e.Sink, FilterColumns: e.FilterColumns, cols: make([]column, len(e.cols))}
	for i, c := range e.cols {
		c.FilteredOnly = false
		out.cols[i] = c
	}
	return out
}

// Compute refreshes aggregates. A full path recomputes every group bottom-up;
// otherwise only the dirty nodes are recombined, deepest first, from their
// direct children. The filter pass must have run first when any column is
// FilteredOnly.
func (e *Engine) Compute(root *model.RowNode, path *changepath.Path) {
	if e.Empty() {
		return
	}
	if path.IsFull() {
		e.computeSubtree(root)
		return
	}
	for _, n := range path.DeepestFirst() {
		e.computeNode(n, path)
	}
}

func (e *Engine) computeSubtree(n *model.RowNode) {
	for _, c := range n.Children {
		e.computeSubtree(c)
	}
	e.computeNode(n, nil)
}

func (e *Engine) computeNode(n *model.RowNode, path *changepath.Path) {
	if len(n.Children) == 0 && !n.IsRoot() {
		n.AggData = nil
		n.AggState = nil
		return
	}
	if n.AggData == nil {
		n.AggData = make(map[string]any, len(e.cols))
	}
	if n.AggState == nil {
		n.AggState = make(map[string]any, len(e.cols))
	}
	for _, col := range e.cols {
		if path != nil && col.OnlyChangedColumns && !e.dirty(n, col, path) {
			continue
		}
		e.computeColumn(n, col)
	}
}

// dirty reports whether col must be recombined for n under path.
func (e *Engine) dirty(n *model.RowNode, col column, path *changepath.Path) bool {
	if path.ColumnChanged(n, col.Column) {
		return true
	}
	if !col.FilteredOnly {
		return false
	}
	for _, fc := range e.FilterColumns {
		if path.ColumnChanged(n, fc) {
			return true
		}
	}
	return false
}

func (e *Engine) computeColumn(n *model.RowNode, col column) {
	defer func() {
		if r := recover(); r != nil {
			delete(n.AggState, col.Column)
			n.AggData[col.Column] = nil
			if e.Sink != nil {
				e.Sink.Report(diag.Diagnostic{
					Category: diag.Config,
					Op:       "aggregate",
					RowID:    n.ID,
					Err:      fmt.Errorf("%w: column %q panicked: %v", ErrInvalidColumn, col.Column, r),
				})
			}
		}
	}()

	kids := childrenFor(n, col)
	if c := col.fn.Combiner; c != nil {
		p := c.Zero()
		for _, k := range kids {
			if contributes(k) {
				p = c.AddValue(p, k.Data[col.Column])
			}
			if len(k.Children) > 0 {
				if st, ok := k.AggState[col.Column]; ok {
					p = c.Merge(p, st)
				}
			}
		}
		n.AggState[col.Column] = p
		n.AggData[col.Column] = c.Result(p)
		return
	}
	n.AggData[col.Column] = col.fn.Reducer(collect(kids, col, nil))
}

func childrenFor(n *model.RowNode, col column) []*model.RowNode {
	if col.FilteredOnly {
		return n.ChildrenAfterFilter
	}
	return n.Children
}

// contributes reports whether k's own record takes part in its parent's
// aggregate. Data-bearing groups contribute their own value as well.
func contributes(k *model.RowNode) bool {
	return k.HasData() && !k.Footer
}

func collect(kids []*model.RowNode, col column, out []any) []any {
	for _, k := range kids {
		if contributes(k) {
			out = append(out, k.Data[col.Column])
		}
		out = collect(childrenFor(k, col), col, out)
	}
	return out
}

// Clear removes every aggregate from the subtree under n.
func Clear(n *model.RowNode) {
	n.AggData = nil
	n.AggState = nil
	for _, c := range n.Children {
		Clear(c)
	}
}
