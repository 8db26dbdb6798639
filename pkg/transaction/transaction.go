// Package transaction applies batches of record additions, updates and
// removals to a row tree and reports the minimal changed path for the
// downstream passes.
package transaction

import (
	"errors"
	"fmt"

	"github.com/vanderheijden86/gridrows/pkg/changepath"
	"github.com/vanderheijden86/gridrows/pkg/debug"
	"github.com/vanderheijden86/gridrows/pkg/diag"
	"github.com/vanderheijden86/gridrows/pkg/hierarchy"
	"github.com/vanderheijden86/gridrows/pkg/model"
)

var (
	// ErrUnknownRow indicates a remove that matched no row.
	ErrUnknownRow = errors.New("no row matches record")

	// ErrPanic wraps a panic recovered from a user callback.
	ErrPanic = errors.New("operation panicked")
)

// Transaction is one batch. Operations run in the order remove, update, add.
type Transaction struct {
	Add    []model.Record `json:"add,omitempty" yaml:"add,omitempty"`
	Update []model.Record `json:"update,omitempty" yaml:"update,omitempty"`
	Remove []model.Record `json:"remove,omitempty" yaml:"remove,omitempty"`

	// AddIndex inserts added rows at this leaf-order position instead of
	// appending them.
	AddIndex *int `json:"addIndex,omitempty" yaml:"add_index,omitempty"`
}

// Empty reports whether tx has no operations.
func (tx Transaction) Empty() bool {
	return len(tx.Add) == 0 && len(tx.Update) == 0 && len(tx.Remove) == 0
}

// Result describes what a batch did.
type Result struct {
	Added   []*model.RowNode
	Updated []*model.RowNode
	Removed []*model.RowNode

	// Diagnostics lists every problem reported while applying the batch,
	// including skipped operations.
	Diagnostics []diag.Diagnostic

	// Path is the dirty lineage set for the filter, aggregate and sort passes.
	Path *changepath.Path
}

// Changed reports whether the batch touched any row.
func (r Result) Changed() bool {
	return len(r.Added)+len(r.Updated)+len(r.Removed) > 0
}

// Processor applies transactions through a hierarchy builder.
type Processor struct {
	b *hierarchy.Builder

	refs map[uintptr]*model.RowNode
}

// NewProcessor returns a processor over b.
func NewProcessor(b *hierarchy.Builder) *Processor {
	return &Processor{b: b}
}

type batch struct {
	cp     *changepath.Builder
	res    Result
	at     int
	insert bool
}

// Apply runs tx. Malformed operations are skipped with a diagnostic and the
// rest of the batch continues; nothing panics out of Apply.
func (p *Processor) Apply(tx Transaction) Result {
	defer debug.LogEnterExit("transaction.Apply")()
	col := &diag.Collector{}
	prev := p.b.Sink
	p.b.Sink = diag.Tee(prev, col)
	defer func() { p.b.Sink = prev }()

	bt := &batch{cp: changepath.NewBuilder()}
	if tx.AddIndex != nil {
		bt.insert = true
		bt.at = *tx.AddIndex
	}
	p.refs = nil

	for _, rec := range tx.Remove {
		p.guard("remove", rec, func() { p.remove(bt, rec) })
	}
	for _, rec := range tx.Update {
		p.guard("update", rec, func() { p.update(bt, rec) })
	}
	for _, rec := range tx.Add {
		p.guard("add", rec, func() { p.add(bt, rec) })
	}

	if bt.insert && len(bt.res.Added) > 0 {
		p.b.Store().Resequence()
		bt.cp.MarkFull()
	}
	bt.res.Path = bt.cp.Build()
	bt.res.Diagnostics = col.All()
	debug.Log("transaction: +%d ~%d -%d, %d diagnostics",
		len(bt.res.Added), len(bt.res.Updated), len(bt.res.Removed), len(bt.res.Diagnostics))
	return bt.res
}

// Replace swaps the whole dataset. With stable ids it is diffed against the
// current rows so surviving rows keep their identity and state; otherwise the
// tree is rebuilt. The returned path is always full.
func (p *Processor) Replace(records []model.Record) Result {
	if !p.b.Config().StableIDs() {
		return p.rebuild(records)
	}

	// The first record with an id wins, as in a full build.
	incoming := make(map[string]bool, len(records))
	unique := make([]model.Record, 0, len(records))
	var dups []diag.Diagnostic
	for _, rec := range records {
		if rec == nil {
			unique = append(unique, rec)
			continue
		}
		id, _, err := p.b.RecordID(rec)
		if err != nil {
			unique = append(unique, rec)
			continue
		}
		if incoming[id] {
			d := diag.Diagnostic{
				Category: diag.Invariant,
				Op:       "replace",
				RowID:    id,
				Err:      fmt.Errorf("%w: %s", hierarchy.ErrDuplicateID, id),
			}
			p.b.Sink.Report(d)
			dups = append(dups, d)
			continue
		}
		incoming[id] = true
		unique = append(unique, rec)
	}

	var tx Transaction
	for _, n := range p.b.Order().Nodes(p.b.Store()) {
		if p.b.OwnRecord(n) && !incoming[n.ID] {
			tx.Remove = append(tx.Remove, n.Data)
		}
	}
	tx.Update = unique
	res := p.Apply(tx)
	res.Diagnostics = append(dups, res.Diagnostics...)

	p.reorder(unique)
	p.b.Store().Resequence()
	cp := changepath.NewBuilder()
	cp.MarkFull()
	res.Path = cp.Build()
	return res
}

// reorder makes the leaf order follow records, nested descendants right
// after their record.
func (p *Processor) reorder(records []model.Record) {
	var order []*model.RowNode
	seen := make(map[*model.RowNode]bool)
	var visit func(n *model.RowNode)
	visit = func(n *model.RowNode) {
		if seen[n] || !n.HasData() {
			return
		}
		seen[n] = true
		order = append(order, n)
		if p.b.Config().Mode() == hierarchy.ModeChildren {
			for _, c := range n.Children {
				visit(c)
			}
		}
	}
	for _, rec := range records {
		if rec == nil {
			continue
		}
		id, _, err := p.b.RecordID(rec)
		if err != nil {
			continue
		}
		if n, ok := p.b.Store().Get(id); ok {
			visit(n)
		}
	}
	// Rows that survived without a record of their own keep their relative
	// order at the end.
	for _, n := range p.b.Order().Nodes(p.b.Store()) {
		if !seen[n] {
			seen[n] = true
			order = append(order, n)
		}
	}
	p.b.Order().Reset(order)
}

func (p *Processor) rebuild(records []model.Record) Result {
	col := &diag.Collector{}
	prev := p.b.Sink
	p.b.Sink = diag.Tee(prev, col)
	defer func() { p.b.Sink = prev }()

	old := p.b.Order().Nodes(p.b.Store())
	removed := make([]*model.RowNode, len(old))
	copy(removed, old)
	p.b.Build(records)
	p.refs = nil

	cp := changepath.NewBuilder()
	cp.MarkFull()
	added := p.b.Order().Nodes(p.b.Store())
	return Result{
		Added:       append([]*model.RowNode(nil), added...),
		Removed:     removed,
		Diagnostics: col.All(),
		Path:        cp.Build(),
	}
}

func (p *Processor) guard(op string, rec model.Record, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			id := ""
			if rec != nil {
				id, _, _ = p.b.RecordID(rec)
			}
			p.b.Sink.Report(diag.Diagnostic{
				Category: diag.Data,
				Op:       op,
				RowID:    id,
				Err:      fmt.Errorf("%w: %v", ErrPanic, r),
			})
		}
	}()
	fn()
}

// find returns the data node rec refers to: by id when ids are stable,
// otherwise by record reference.
func (p *Processor) find(rec model.Record) (*model.RowNode, string, error) {
	if rec == nil {
		return nil, "", hierarchy.ErrNilRecord
	}
	if p.b.Config().StableIDs() {
		id, _, err := p.b.RecordID(rec)
		if err != nil {
			return nil, "", err
		}
		n, ok := p.b.Store().Get(id)
		if !ok || !n.HasData() {
			return nil, id, nil
		}
		return n, id, nil
	}
	if p.refs == nil {
		p.refs = make(map[uintptr]*model.RowNode)
		for _, n := range p.b.Store().Nodes() {
			if n.HasData() {
				p.refs[model.RecordRef(n.Data)] = n
			}
		}
	}
	n := p.refs[model.RecordRef(rec)]
	if n == nil {
		return nil, "", nil
	}
	return n, n.ID, nil
}

func (p *Processor) report(cat diag.Category, op, id string, err error) {
	p.b.Sink.Report(diag.Diagnostic{Category: cat, Op: op, RowID: id, Err: err})
}

func (p *Processor) remove(bt *batch, rec model.Record) {
	n, id, err := p.find(rec)
	if err != nil {
		p.report(hierarchy.CategoryOf(err), "remove", id, err)
		return
	}
	if n == nil {
		p.report(diag.Data, "remove", id, ErrUnknownRow)
		return
	}
	for _, r := range p.b.Remove(n, bt.cp) {
		if p.refs != nil {
			delete(p.refs, model.RecordRef(r.Data))
		}
		bt.res.Removed = append(bt.res.Removed, r)
	}
}

func (p *Processor) update(bt *batch, rec model.Record) {
	n, id, err := p.find(rec)
	if err != nil {
		p.report(hierarchy.CategoryOf(err), "update", id, err)
		return
	}
	if n == nil {
		p.add(bt, rec)
		return
	}

	var cols []string
	if model.RecordRef(n.Data) == model.RecordRef(rec) {
		// Mutated in place: the previous values are gone.
		for k := range rec {
			cols = append(cols, k)
		}
	} else {
		cols = model.ChangedColumns(n.Data, rec)
	}
	n.Data = rec
	if p.refs != nil {
		p.refs[model.RecordRef(rec)] = n
	}

	if p.b.Placed(n) != p.b.GroupKey(rec) {
		p.b.Move(n, bt.cp)
	}
	if p.b.Config().Mode() == hierarchy.ModeChildren {
		added, removed := p.b.Resync(n, bt.cp)
		bt.res.Added = append(bt.res.Added, added...)
		bt.res.Removed = append(bt.res.Removed, removed...)
	}
	if len(cols) > 0 {
		bt.cp.MarkLineage(n, cols...)
	}
	bt.res.Updated = append(bt.res.Updated, n)
}

func (p *Processor) add(bt *batch, rec model.Record) {
	nodes, err := p.b.NewNodes(rec)
	if err != nil {
		id := ""
		if rec != nil {
			id, _, _ = p.b.RecordID(rec)
		}
		p.report(hierarchy.CategoryOf(err), "add", id, err)
		return
	}
	order := p.b.Order()
	if bt.insert {
		order.Insert(p.b.Store(), bt.at, nodes...)
		bt.at += len(nodes)
	} else {
		for _, n := range nodes {
			order.Append(n)
		}
	}
	for _, n := range nodes {
		p.b.Attach(n, bt.cp)
		if p.refs != nil {
			p.refs[model.RecordRef(n.Data)] = n
		}
	}
	bt.res.Added = append(bt.res.Added, nodes...)
}
