// Package hierarchy turns records into a row tree and keeps that tree in shape
// as single records are attached, moved and removed. It supports path
// grouping, parent-id references, pre-nested children and grouping by column
// values, synthesizing filler groups for path levels no record occupies.
package hierarchy

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/vanderheijden86/gridrows/pkg/changepath"
	"github.com/vanderheijden86/gridrows/pkg/debug"
	"github.com/vanderheijden86/gridrows/pkg/diag"
	"github.com/vanderheijden86/gridrows/pkg/model"
	"github.com/vanderheijden86/gridrows/pkg/rowstore"
)

var (
	// ErrMalformedPath indicates a path that is not a non-empty sequence.
	ErrMalformedPath = errors.New("malformed path")

	// ErrMalformedParent indicates a parent reference that is not a scalar.
	ErrMalformedParent = errors.New("malformed parent reference")

	// ErrMalformedChildren indicates a children field that is not a list of records.
	ErrMalformedChildren = errors.New("malformed children field")

	// ErrMissingID indicates that the id field or function yielded nothing.
	ErrMissingID = errors.New("record has no id")

	// ErrDuplicateID indicates a second live record with the same id.
	ErrDuplicateID = errors.New("duplicate row id")

	// ErrDuplicatePath indicates two records claiming the same path.
	ErrDuplicatePath = errors.New("duplicate path")

	// ErrNilRecord indicates a nil record in the input.
	ErrNilRecord = errors.New("nil record")
)

const fillerPrefix = "row-group-"

// Builder owns the shape of the tree held in a rowstore.Store and the leaf
// order that backs it.
type Builder struct {
	cfg   Config
	store *rowstore.Store
	order rowstore.Order

	// Sink receives data and invariant diagnostics. Callers may swap it per batch.
	Sink diag.Sink

	seq int

	// path and group-column modes
	byPath map[string]*model.RowNode
	pathOf map[*model.RowNode]string

	// parent-id mode
	waiting  map[string]map[*model.RowNode]bool
	parkedOn map[*model.RowNode]string

	// children mode
	nestedParent map[*model.RowNode]*model.RowNode

	keys  map[*model.RowNode]string
	fresh map[*model.RowNode]bool
}

// NewBuilder validates cfg and returns a builder over store.
func NewBuilder(cfg Config, store *rowstore.Store, sink diag.Sink) (*Builder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = diag.Discard
	}
	b := &Builder{cfg: cfg, store: store, Sink: sink}
	b.resetMaps()
	return b, nil
}

func (b *Builder) resetMaps() {
	b.seq = 0
	b.byPath = make(map[string]*model.RowNode)
	b.pathOf = make(map[*model.RowNode]string)
	b.waiting = make(map[string]map[*model.RowNode]bool)
	b.parkedOn = make(map[*model.RowNode]string)
	b.nestedParent = make(map[*model.RowNode]*model.RowNode)
	b.keys = make(map[*model.RowNode]string)
	b.fresh = make(map[*model.RowNode]bool)
}

// Config returns the active configuration.
func (b *Builder) Config() Config { return b.cfg }

// Store returns the underlying store.
func (b *Builder) Store() *rowstore.Store { return b.store }

// Order returns the leaf order.
func (b *Builder) Order() *rowstore.Order { return &b.order }

// Reset empties the store, the leaf order and every bookkeeping map.
func (b *Builder) Reset() {
	b.store.Reset()
	b.order.Reset(nil)
	b.resetMaps()
}

// Build replaces the tree with one built from records, in order.
func (b *Builder) Build(records []model.Record) {
	defer debug.LogEnterExit("hierarchy.Build")()
	b.Reset()
	if b.cfg.Mode() == ModeParentID {
		b.reportCycles(records)
	}
	cp := changepath.NewBuilder()
	for _, rec := range records {
		nodes, err := b.NewNodes(rec)
		if err != nil {
			b.report(categoryOf(err), "build", "", err)
			continue
		}
		for _, n := range nodes {
			b.order.Append(n)
			b.Attach(n, cp)
		}
	}
}

// RecordID returns the stable id of rec. ok is false when no id function or
// field is configured.
func (b *Builder) RecordID(rec model.Record) (id string, ok bool, err error) {
	switch {
	case b.cfg.IDFunc != nil:
		defer func() {
			if r := recover(); r != nil {
				id, ok, err = "", true, fmt.Errorf("id function panicked: %v", r)
			}
		}()
		id, err = b.cfg.IDFunc(rec)
		if err != nil {
			return "", true, fmt.Errorf("%w: %v", ErrMissingID, err)
		}
	case b.cfg.IDField != "":
		s, present, serr := scalarString(rec[b.cfg.IDField])
		if serr != nil || !present {
			return "", true, fmt.Errorf("%w: field %q", ErrMissingID, b.cfg.IDField)
		}
		id = s
	default:
		return "", false, nil
	}
	if id == "" {
		return "", true, ErrMissingID
	}
	return id, true, nil
}

// NewNodes creates the detached node for rec. In children mode the nested
// descendants are created as well and returned after it, depth first. Nodes
// are neither registered nor placed in the leaf order.
func (b *Builder) NewNodes(rec model.Record) ([]*model.RowNode, error) {
	n, err := b.newDataNode(rec, nil)
	if err != nil {
		return nil, err
	}
	out := []*model.RowNode{n}
	if b.cfg.Mode() == ModeChildren {
		seen := map[string]bool{n.ID: true}
		out = b.expandNested(n, out, seen, nil)
	}
	return out, nil
}

func (b *Builder) newDataNode(rec model.Record, seen map[string]bool) (*model.RowNode, error) {
	if rec == nil {
		return nil, ErrNilRecord
	}
	id, stable, err := b.RecordID(rec)
	if err != nil {
		return nil, err
	}
	if !stable {
		for {
			id = strconv.Itoa(b.seq)
			b.seq++
			if !b.store.Has(id) {
				break
			}
		}
	}
	if b.store.Has(id) || seen[id] {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	n := model.NewNode(id, rec)
	b.fresh[n] = true
	return n, nil
}

// GroupKey returns the placement key rec would get: its full path, its
// parent reference, or its group column values. Records with equal keys sit
// under the same parent.
func (b *Builder) GroupKey(rec model.Record) string {
	switch {
	case b.cfg.Mode() == ModeParentID:
		s, ok, err := scalarString(rec[b.cfg.ParentIDField])
		if err != nil {
			return "\x00malformed"
		}
		if !ok {
			return ""
		}
		return "p:" + s
	case b.cfg.Mode() == ModePath:
		p, err := b.recordPath(rec)
		if err != nil {
			return "\x00malformed"
		}
		return joinPath(p)
	case len(b.cfg.GroupColumns) > 0:
		keys := make([]string, len(b.cfg.GroupColumns))
		for i, col := range b.cfg.GroupColumns {
			keys[i] = keyString(rec[col])
		}
		return joinPath(keys)
	default:
		return ""
	}
}

// Placed returns the key n was placed under when last attached.
func (b *Builder) Placed(n *model.RowNode) string {
	return b.keys[n]
}

// Attach registers n and places it in the tree according to its record.
// Failures degrade n to a root-level row and are reported to the sink.
func (b *Builder) Attach(n *model.RowNode, cp *changepath.Builder) {
	b.store.Put(n)
	if n.HasData() {
		b.keys[n] = b.GroupKey(n.Data)
	}
	switch {
	case b.cfg.Mode() == ModeParentID:
		b.attachParent(n, cp)
	case b.cfg.Mode() == ModeChildren:
		b.attachNested(n, cp)
	case b.cfg.Mode() == ModePath || len(b.cfg.GroupColumns) > 0:
		b.attachPath(n, cp)
	default:
		b.attachUnder(n, b.store.Root(), cp)
	}
}

// Move re-places n after its grouping key changed. Identity and flags of n
// and its descendants are preserved.
func (b *Builder) Move(n *model.RowNode, cp *changepath.Builder) {
	switch {
	case b.cfg.Mode() == ModeParentID:
		b.detachParent(n, cp, true)
	case b.cfg.Mode() == ModeChildren:
		return
	case b.cfg.Mode() == ModePath || len(b.cfg.GroupColumns) > 0:
		b.detachPath(n, cp)
	default:
		return
	}
	b.Attach(n, cp)
}

// Remove detaches and unregisters n. It returns every data node that left
// the store: n itself plus, in children mode, its nested descendants.
// Childless fillers left behind are destroyed.
func (b *Builder) Remove(n *model.RowNode, cp *changepath.Builder) []*model.RowNode {
	var removed []*model.RowNode
	switch {
	case b.cfg.Mode() == ModeParentID:
		b.detachParent(n, cp, false)
		removed = []*model.RowNode{n}
	case b.cfg.Mode() == ModeChildren:
		removed = b.removeNested(n, cp)
	case b.cfg.Mode() == ModePath || len(b.cfg.GroupColumns) > 0:
		b.detachPath(n, cp)
		removed = []*model.RowNode{n}
	default:
		parent := n.Parent
		b.store.Detach(n)
		cp.MarkLineage(parent)
		removed = []*model.RowNode{n}
	}
	for _, r := range removed {
		b.forget(r)
		b.store.Delete(r.ID)
		cp.MarkRemoved(r.ID)
		b.order.Forget()
	}
	return removed
}

func (b *Builder) forget(n *model.RowNode) {
	delete(b.keys, n)
	delete(b.fresh, n)
	delete(b.nestedParent, n)
}

// attachUnder is the single place nodes enter the tree. A rejected edge
// leaves the node at root level.
func (b *Builder) attachUnder(n, parent *model.RowNode, cp *changepath.Builder) {
	if err := b.store.Attach(n, parent); err != nil {
		b.report(diag.Invariant, "attach", n.ID, err)
		if errors.Is(err, rowstore.ErrAttached) {
			return
		}
		if err := b.store.Attach(n, b.store.Root()); err != nil {
			return
		}
	}
	b.settle(n)
	cp.MarkLineage(n)
}

// settle applies the default expansion to a node seen for the first time.
func (b *Builder) settle(n *model.RowNode) {
	if !b.fresh[n] {
		return
	}
	delete(b.fresh, n)
	n.Expanded = b.cfg.expandedAt(max(n.Level, 0))
}

func (b *Builder) report(cat diag.Category, op, id string, err error) {
	debug.Log("hierarchy: %s %s %s: %v", cat, op, id, err)
	b.Sink.Report(diag.Diagnostic{Category: cat, Op: op, RowID: id, Err: err})
}

func categoryOf(err error) diag.Category {
	switch {
	case errors.Is(err, ErrDuplicateID), errors.Is(err, rowstore.ErrCycle), errors.Is(err, ErrDuplicatePath):
		return diag.Invariant
	default:
		return diag.Data
	}
}

// CategoryOf classifies an error produced by the builder.
func CategoryOf(err error) diag.Category { return categoryOf(err) }

// scalarString converts an id-like value to a string. ok is false for nil
// and the empty string.
func scalarString(v any) (s string, ok bool, err error) {
	switch x := v.(type) {
	case nil:
		return "", false, nil
	case string:
		return x, x != "", nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, bool:
		return fmt.Sprint(x), true, nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true, nil
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), true, nil
	case fmt.Stringer:
		return x.String(), true, nil
	default:
		return "", false, fmt.Errorf("%w: %T", ErrMalformedParent, v)
	}
}

func keyString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok, err := scalarString(v); err == nil && ok {
		return s
	}
	return fmt.Sprint(v)
}

func joinPath(p []string) string {
	return strings.Join(p, "\x1f")
}

func (b *Builder) uniqueID(base string) string {
	id := base
	for i := 1; b.store.Has(id); i++ {
		id = base + "#" + strconv.Itoa(i)
	}
	return id
}

func sortedBySource(set map[*model.RowNode]bool) []*model.RowNode {
	out := make([]*model.RowNode, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	slices.SortFunc(out, func(a, b *model.RowNode) int {
		return a.SourceIndex - b.SourceIndex
	})
	return out
}
