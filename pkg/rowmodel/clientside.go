// Package rowmodel is the client-side row model: it owns the row tree and
// runs the structure, filter, aggregation, sort and index passes after every
// change, publishing notifications for the view.
package rowmodel

import (
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/vanderheijden86/gridrows/pkg/aggregate"
	"github.com/vanderheijden86/gridrows/pkg/changepath"
	"github.com/vanderheijden86/gridrows/pkg/debug"
	"github.com/vanderheijden86/gridrows/pkg/diag"
	"github.com/vanderheijden86/gridrows/pkg/events"
	"github.com/vanderheijden86/gridrows/pkg/filter"
	"github.com/vanderheijden86/gridrows/pkg/hierarchy"
	"github.com/vanderheijden86/gridrows/pkg/metrics"
	"github.com/vanderheijden86/gridrows/pkg/model"
	"github.com/vanderheijden86/gridrows/pkg/pinned"
	"github.com/vanderheijden86/gridrows/pkg/rowstore"
	"github.com/vanderheijden86/gridrows/pkg/sorting"
	"github.com/vanderheijden86/gridrows/pkg/transaction"
)

// FooterID is the id of the grand-total footer row.
const FooterID = "rowGroupFooter_" + model.RootID

// ErrUnknownRow indicates an id that is not in the model.
var ErrUnknownRow = errors.New("unknown row")

// RowModel is the read side used by a view.
type RowModel interface {
	// RowCount returns the number of displayed rows.
	RowCount() int
	// RowAt returns the displayed row at index, or nil.
	RowAt(index int) *model.RowNode
	// ForEachNode visits every row in the tree, groups included, in source
	// order.
	ForEachNode(fn func(n *model.RowNode, index int))
}

var _ RowModel = (*ClientSide)(nil)

// ClientSide holds all rows in memory. It is not safe for concurrent use.
type ClientSide struct {
	id   string
	sink diag.Sink
	reg  *aggregate.Registry

	b      *hierarchy.Builder
	proc   *transaction.Processor
	agg    *aggregate.Engine
	filter *filter.Pipeline
	sorter *sorting.Engine
	pins   *pinned.Manager
	bus    events.Bus

	rows       []*model.RowNode
	rowHeight  int
	grandTotal GrandTotal
	footer     *model.RowNode
}

// New validates opts and returns an empty model.
func New(opts Options) (*ClientSide, error) {
	sink := opts.Sink
	if sink == nil {
		sink = diag.Discard
	}
	gt := opts.GrandTotal
	if gt == "" {
		gt = GrandTotalNone
	}
	if _, err := ParseGrandTotal(string(gt)); err != nil {
		return nil, err
	}
	b, err := hierarchy.NewBuilder(opts.Hierarchy, rowstore.New(), sink)
	if err != nil {
		return nil, fmt.Errorf("hierarchy: %w", err)
	}
	agg, err := aggregate.NewEngine(opts.Aggregation, opts.Registry)
	if err != nil {
		return nil, fmt.Errorf("aggregation: %w", err)
	}
	agg.Sink = sink
	fp, err := filter.New(opts.Filter, opts.ExcludeChildren)
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	se, err := sorting.New(opts.Sort)
	if err != nil {
		return nil, fmt.Errorf("sort: %w", err)
	}

	c := &ClientSide{
		id:     uuid.NewString(),
		sink:   sink,
		reg:    opts.Registry,
		b:      b,
		proc:   transaction.NewProcessor(b),
		agg:    agg,
		filter: fp,
		sorter: se,
	}
	c.rowHeight = opts.RowHeight
	if c.rowHeight <= 0 {
		c.rowHeight = pinned.DefaultRowHeight
	}
	c.pins = pinned.NewManager(c.rowHeight)
	c.pins.Notify = c.bus.Publish
	c.placeFooter(gt)
	c.refresh(changepath.Full())
	return c, nil
}

// InstanceID returns the random id of this model.
func (c *ClientSide) InstanceID() string { return c.id }

// Subscribe registers fn for every notification.
func (c *ClientSide) Subscribe(fn events.Handler) (unsubscribe func()) {
	return c.bus.Subscribe(fn)
}

// Root returns the root node.
func (c *ClientSide) Root() *model.RowNode { return c.b.Store().Root() }

// Node returns the row with id, including group rows and the footer.
func (c *ClientSide) Node(id string) (*model.RowNode, bool) {
	if c.footer != nil && id == FooterID {
		return c.footer, true
	}
	return c.b.Store().Get(id)
}

// HierarchyConfig returns the active hierarchy configuration.
func (c *ClientSide) HierarchyConfig() hierarchy.Config { return c.b.Config() }

// LeafOrder returns every data row in unmodified order.
func (c *ClientSide) LeafOrder() []*model.RowNode {
	return slices.Clone(c.b.Order().Nodes(c.b.Store()))
}

// DisplayedRows returns the rows with a row index, in index order.
func (c *ClientSide) DisplayedRows() []*model.RowNode { return slices.Clone(c.rows) }

// RowCount implements RowModel.
func (c *ClientSide) RowCount() int { return len(c.rows) }

// RowAt implements RowModel.
func (c *ClientSide) RowAt(index int) *model.RowNode {
	if index < 0 || index >= len(c.rows) {
		return nil
	}
	return c.rows[index]
}

// ForEachNode implements RowModel.
func (c *ClientSide) ForEachNode(fn func(n *model.RowNode, index int)) {
	i := 0
	c.b.Store().Walk(func(n *model.RowNode) bool {
		if !n.IsRoot() {
			fn(n, i)
			i++
		}
		return true
	})
}

// Pinned returns the displayed mirrors of side.
func (c *ClientSide) Pinned(side model.Side) []*model.RowNode { return c.pins.Rows(side) }

// PinnedHeight returns the height of the displayed mirrors of side.
func (c *ClientSide) PinnedHeight(side model.Side) int { return c.pins.Height(side) }

// SetRowData replaces every row. With stable ids surviving rows keep their
// identity, selection, expansion and pinning.
func (c *ClientSide) SetRowData(records []model.Record) transaction.Result {
	stop := metrics.Timer(metrics.Build)
	res := c.proc.Replace(records)
	stop()
	c.dropPins()
	c.refresh(res.Path)
	c.publishData(res, events.Full)
	return res
}

// ApplyTransaction applies tx and recomputes only what it touched.
func (c *ClientSide) ApplyTransaction(tx transaction.Transaction) transaction.Result {
	stop := metrics.Timer(metrics.Transaction)
	res := c.proc.Apply(tx)
	stop()
	c.dropPins()
	c.refresh(res.Path)
	c.publishData(res, events.Incremental)
	return res
}

func (c *ClientSide) publishData(res transaction.Result, scope events.Scope) {
	var ids []string
	for _, list := range [][]*model.RowNode{res.Added, res.Updated, res.Removed} {
		for _, n := range list {
			ids = append(ids, n.ID)
		}
	}
	c.bus.Publish(events.Event{
		Type:    events.RowDataChanged,
		Scope:   scope,
		RowIDs:  ids,
		Added:   len(res.Added),
		Updated: len(res.Updated),
		Removed: len(res.Removed),
	})
	c.bus.Publish(events.Event{Type: events.ModelUpdated, Scope: scope, RowIDs: ids})
}

// dropPins destroys mirrors whose source left the store, fillers included.
func (c *ClientSide) dropPins() {
	for _, side := range []model.Side{model.SideTop, model.SideBottom} {
		for _, m := range c.pins.All(side) {
			src := m.PinnedSibling
			if src == nil || src == c.footer {
				continue
			}
			if cur, ok := c.b.Store().Get(src.ID); !ok || cur != src {
				c.pins.SourceRemoved(src)
			}
		}
	}
}

func (c *ClientSide) configError(op string, err error) error {
	c.sink.Report(diag.Diagnostic{Category: diag.Config, Op: op, Err: err})
	return err
}

type nodeState struct {
	expanded, selected bool
	pinned             model.Side
}

// SetHierarchy rebuilds the tree under cfg. An invalid cfg is reported and
// the current configuration stays in effect.
func (c *ClientSide) SetHierarchy(cfg hierarchy.Config) error {
	nb, err := hierarchy.NewBuilder(cfg, rowstore.New(), c.sink)
	if err != nil {
		return c.configError("setHierarchy", err)
	}
	old := c.b
	var records []model.Record
	for _, n := range old.Order().Nodes(old.Store()) {
		if old.OwnRecord(n) {
			records = append(records, n.Data)
		}
	}
	state := make(map[string]nodeState)
	for _, n := range old.Store().Nodes() {
		state[n.ID] = nodeState{expanded: n.Expanded, selected: n.Selected, pinned: n.Pinned}
	}
	c.pins.Clear()

	c.b = nb
	c.proc = transaction.NewProcessor(nb)
	stop := metrics.Timer(metrics.Build)
	nb.Build(records)
	stop()

	stable := cfg.StableIDs() && old.Config().StableIDs()
	for _, n := range nb.Store().Nodes() {
		st, ok := state[n.ID]
		if !ok || !(stable || n.Filler) {
			continue
		}
		n.Expanded = st.expanded
		n.Selected = st.selected
		if st.pinned != model.SideNone {
			_ = c.pins.Pin(n, st.pinned)
		}
	}
	c.placeFooter(c.grandTotal)

	before, after := old.Config(), nb.Config()
	regrouped := before.Mode() != after.Mode() || !slices.Equal(before.GroupColumns, after.GroupColumns)
	c.refresh(changepath.Full())
	if regrouped {
		c.bus.Publish(events.Event{Type: events.GroupingChanged, Scope: events.Full})
	}
	c.bus.Publish(events.Event{Type: events.ModelUpdated, Scope: events.Full})
	return nil
}

// SetGroupColumns groups flat rows by the values of cols. An empty list
// removes grouping.
func (c *ClientSide) SetGroupColumns(cols []string) error {
	cfg := c.b.Config()
	cfg.GroupColumns = slices.Clone(cols)
	return c.SetHierarchy(cfg)
}

// SetAggregation replaces the aggregated columns.
func (c *ClientSide) SetAggregation(cols []aggregate.ColumnAgg) error {
	e, err := aggregate.NewEngine(cols, c.reg)
	if err != nil {
		return c.configError("setAggregation", err)
	}
	e.Sink = c.sink
	c.agg = e
	aggregate.Clear(c.Root())
	c.refresh(changepath.Full())
	c.bus.Publish(events.Event{Type: events.ModelUpdated, Scope: events.Full})
	return nil
}

// SetFilterModel replaces the filter model. A nil model clears filtering.
func (c *ClientSide) SetFilterModel(m filter.Model) error {
	p, err := filter.New(m, c.filter.ExcludeChildren())
	if err != nil {
		return c.configError("setFilterModel", err)
	}
	c.filter = p
	c.refresh(changepath.Full())
	c.bus.Publish(events.Event{Type: events.ModelUpdated, Scope: events.Full})
	return nil
}

// SetExcludeChildren switches between judging groups by their descendants
// and by their own value.
func (c *ClientSide) SetExcludeChildren(on bool) error {
	p, err := filter.New(c.filter.Model(), on)
	if err != nil {
		return c.configError("setExcludeChildren", err)
	}
	c.filter = p
	c.refresh(changepath.Full())
	c.bus.Publish(events.Event{Type: events.ModelUpdated, Scope: events.Full})
	return nil
}

// SetSortModel replaces the sort model and re-sorts every level.
func (c *ClientSide) SetSortModel(m sorting.Model) error {
	e, err := sorting.New(m)
	if err != nil {
		return c.configError("setSortModel", err)
	}
	c.sorter = e
	c.sort(changepath.Full())
	c.index()
	c.bus.Publish(events.Event{Type: events.ModelUpdated, Scope: events.Full})
	return nil
}

// SetGrandTotal moves the grand-total footer.
func (c *ClientSide) SetGrandTotal(gt GrandTotal) error {
	if _, err := ParseGrandTotal(string(gt)); err != nil || gt == "" {
		if err == nil {
			err = fmt.Errorf("%w: empty", ErrInvalidGrandTotal)
		}
		return c.configError("setGrandTotal", err)
	}
	c.placeFooter(gt)
	c.syncFooter()
	c.pins.Refresh(c.filterVisible)
	c.index()
	c.bus.Publish(events.Event{Type: events.ModelUpdated, Scope: events.Full})
	return nil
}

func (c *ClientSide) placeFooter(gt GrandTotal) {
	if c.footer != nil {
		c.pins.Unpin(c.footer)
	}
	c.grandTotal = gt
	if gt == GrandTotalNone {
		c.footer = nil
		return
	}
	if c.footer == nil {
		c.footer = model.NewNode(FooterID, nil)
		c.footer.Footer = true
		c.footer.Key = "Total"
	}
	switch gt {
	case GrandTotalPinnedTop:
		_ = c.pins.Pin(c.footer, model.SideTop)
	case GrandTotalPinnedBottom:
		_ = c.pins.Pin(c.footer, model.SideBottom)
	}
}

func (c *ClientSide) syncFooter() {
	if c.footer != nil {
		c.footer.AggData = c.Root().AggData
	}
}

// SetExpanded opens or closes the group with id.
func (c *ClientSide) SetExpanded(id string, open bool) error {
	n, ok := c.b.Store().Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRow, id)
	}
	if n.Expanded == open {
		return nil
	}
	n.Expanded = open
	c.index()
	c.bus.Publish(events.Event{Type: events.ModelUpdated, Scope: events.Full, RowIDs: []string{id}})
	return nil
}

// ExpandAll opens every group.
func (c *ClientSide) ExpandAll() { c.setAllExpanded(true) }

// CollapseAll closes every group.
func (c *ClientSide) CollapseAll() { c.setAllExpanded(false) }

func (c *ClientSide) setAllExpanded(open bool) {
	c.b.Store().Walk(func(n *model.RowNode) bool {
		if !n.IsRoot() && n.Group {
			n.Expanded = open
		}
		return true
	})
	c.index()
	c.bus.Publish(events.Event{Type: events.ModelUpdated, Scope: events.Full})
}

// SetSelected marks the row with id selected or not.
func (c *ClientSide) SetSelected(id string, on bool) error {
	n, ok := c.b.Store().Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRow, id)
	}
	n.Selected = on
	if n.PinnedSibling != nil {
		n.PinnedSibling.Selected = on
	}
	c.bus.Publish(events.Event{Type: events.ModelUpdated, Scope: events.Incremental, RowIDs: []string{id}})
	return nil
}

// PinRow mirrors the row with id into side. model.SideNone unpins.
func (c *ClientSide) PinRow(id string, side model.Side) error {
	n, ok := c.b.Store().Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRow, id)
	}
	if err := c.pins.Pin(n, side); err != nil {
		return err
	}
	c.pins.Refresh(c.filterVisible)
	return nil
}

// SetRowHeight changes the height of every row and re-lays out.
func (c *ClientSide) SetRowHeight(h int) {
	if h <= 0 {
		h = pinned.DefaultRowHeight
	}
	c.rowHeight = h
	c.pins.SetRowHeight(h)
	c.index()
	c.bus.Publish(events.Event{Type: events.ModelUpdated, Scope: events.Full})
}

// filterVisible reports whether n and every ancestor pass the filter.
func (c *ClientSide) filterVisible(n *model.RowNode) bool {
	if n.Parent == nil {
		return false
	}
	for cur := n; cur != nil && !cur.IsRoot(); cur = cur.Parent {
		if !cur.PassesFilter {
			return false
		}
	}
	return true
}

// refresh runs every pass after the structure step. When groups are
// filtered by their own value they are judged on unfiltered aggregates, and
// any filtered-only column then needs a full recombination.
func (c *ClientSide) refresh(path *changepath.Path) {
	defer debug.LogEnterExit("rowmodel.refresh")()
	if c.filter.Active() && c.filter.ExcludeChildren() && !c.agg.Empty() {
		if c.agg.HasFilteredOnly() {
			path = changepath.Full()
		}
		c.aggregate(c.agg.Unfiltered(), path)
		c.runFilter(path)
		if c.agg.HasFilteredOnly() {
			c.aggregate(c.agg, path)
		}
	} else {
		c.runFilter(path)
		c.aggregate(c.agg, path)
	}
	c.sort(path)
	c.syncFooter()
	c.pins.Refresh(c.filterVisible)
	c.index()
	debug.Log("rowmodel: %d displayed of %d nodes", len(c.rows), c.b.Store().Len())
	if debug.Enabled() {
		debug.Dump("rowmodel.dirty", path.Len())
		c.checkTree()
	}
}

// checkTree asserts the parent links, levels and per-pass child lists of
// every attached node. Only run while tracing.
func (c *ClientSide) checkTree() {
	c.b.Store().Walk(func(n *model.RowNode) bool {
		for _, ch := range n.Children {
			debug.Assert(ch.Parent == n, "child "+ch.ID+" does not point back to "+n.ID)
			debug.Assert(ch.Level == n.Level+1, "level of "+ch.ID+" out of step with its parent")
		}
		debug.Assert(len(n.ChildrenAfterSort) == len(n.ChildrenAfterFilter),
			"sorted and filtered children of "+n.ID+" differ")
		debug.Assert(len(n.ChildrenAfterFilter) <= len(n.Children),
			"filtered children of "+n.ID+" exceed its children")
		return true
	})
}

func (c *ClientSide) runFilter(path *changepath.Path) {
	defer metrics.Timer(metrics.Filter)()
	c.filter.Apply(c.Root(), path)
}

func (c *ClientSide) aggregate(e *aggregate.Engine, path *changepath.Path) {
	defer metrics.Timer(metrics.Aggregate)()
	e.FilterColumns = c.filter.Columns()
	e.Compute(c.Root(), path)
}

func (c *ClientSide) sort(path *changepath.Path) {
	defer metrics.Timer(metrics.Sort)()
	c.sorter.Sort(c.Root(), path)
}

// index assigns row indices and offsets to the rows reachable through
// expanded groups, depth first over the sorted children.
func (c *ClientSide) index() {
	defer metrics.Timer(metrics.Index)()
	for _, n := range c.rows {
		n.RowIndex = -1
		n.Displayed = false
	}
	rows := make([]*model.RowNode, 0, len(c.rows))
	top := 0
	place := func(n *model.RowNode) {
		n.RowIndex = len(rows)
		n.RowTop = top
		n.RowHeight = c.rowHeight
		n.Displayed = true
		top += c.rowHeight
		rows = append(rows, n)
	}
	var walk func(n *model.RowNode)
	walk = func(n *model.RowNode) {
		for _, ch := range n.ChildrenAfterSort {
			place(ch)
			if ch.Expanded && len(ch.ChildrenAfterSort) > 0 {
				walk(ch)
			}
		}
	}
	walk(c.Root())
	if c.footer != nil && c.grandTotal == GrandTotalBottom {
		place(c.footer)
	}
	c.rows = rows
}
