package hierarchy

import (
	"fmt"
	"slices"
	"sort"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/vanderheijden86/gridrows/pkg/changepath"
	"github.com/vanderheijden86/gridrows/pkg/diag"
	"github.com/vanderheijden86/gridrows/pkg/model"
	"github.com/vanderheijden86/gridrows/pkg/rowstore"
)

// parentRef returns the parent id of n. ok is false for top-level records.
func (b *Builder) parentRef(n *model.RowNode) (string, bool, error) {
	return scalarString(n.Data[b.cfg.ParentIDField])
}

func (b *Builder) attachParent(n *model.RowNode, cp *changepath.Builder) {
	root := b.store.Root()
	defer b.adopt(n, cp)

	pid, ok, err := b.parentRef(n)
	switch {
	case err != nil:
		b.report(diag.Data, "attach", n.ID, err)
		b.attachUnder(n, root, cp)
		return
	case !ok:
		b.attachUnder(n, root, cp)
		return
	case pid == n.ID:
		b.report(diag.Invariant, "attach", n.ID, fmt.Errorf("%w: row is its own parent", rowstore.ErrCycle))
		b.attachUnder(n, root, cp)
		return
	}

	p, found := b.store.Get(pid)
	if !found {
		b.park(n, pid, cp)
		return
	}
	// attachUnder reports the rejected edge and falls back to root.
	b.attachUnder(n, p, cp)
}

// park records n as waiting for parent pid.
func (b *Builder) park(n *model.RowNode, pid string, cp *changepath.Builder) {
	set := b.waiting[pid]
	if set == nil {
		set = make(map[*model.RowNode]bool)
		b.waiting[pid] = set
	}
	set[n] = true
	b.parkedOn[n] = pid
	if b.cfg.Orphans == OrphanAsRoot {
		b.attachUnder(n, b.store.Root(), cp)
		return
	}
	b.settle(n)
}

// adopt re-attaches every row parked on n's id under n.
func (b *Builder) adopt(n *model.RowNode, cp *changepath.Builder) {
	set := b.waiting[n.ID]
	if len(set) == 0 {
		return
	}
	delete(b.waiting, n.ID)
	for _, c := range sortedBySource(set) {
		delete(b.parkedOn, c)
		if prev := c.Parent; prev != nil {
			b.store.Detach(c)
			cp.MarkLineage(prev)
		}
		b.attachUnder(c, n, cp)
		cp.MarkSubtree(c)
	}
}

// detachParent takes n out of the tree. When n is removed for good its
// children are parked on its id; when it moves they travel with it.
func (b *Builder) detachParent(n *model.RowNode, cp *changepath.Builder, moving bool) {
	if pid, ok := b.parkedOn[n]; ok {
		delete(b.waiting[pid], n)
		if len(b.waiting[pid]) == 0 {
			delete(b.waiting, pid)
		}
		delete(b.parkedOn, n)
	}
	parent := n.Parent
	b.store.Detach(n)
	cp.MarkLineage(parent)
	if moving {
		return
	}
	for _, c := range slices.Clone(n.Children) {
		b.store.Detach(c)
		b.park(c, n.ID, cp)
	}
}

// Orphans returns the ids of rows waiting for a missing parent, sorted.
func (b *Builder) Orphans() []string {
	out := make([]string, 0, len(b.parkedOn))
	for n := range b.parkedOn {
		out = append(out, n.ID)
	}
	sort.Strings(out)
	return out
}

// reportCycles scans the parent graph of records for strongly connected
// components and reports each cycle once. Attach rejects the closing edge of
// each cycle on its own; this only names every member up front.
func (b *Builder) reportCycles(records []model.Record) {
	cycles := ParentCycles(records, b.RecordID, func(rec model.Record) (string, bool) {
		s, ok, err := scalarString(rec[b.cfg.ParentIDField])
		return s, ok && err == nil
	})
	for _, c := range cycles {
		b.report(diag.Invariant, "build", c[0], fmt.Errorf("%w: %v", rowstore.ErrCycle, c))
	}
}

// ParentCycles returns the id groups that reference each other in a cycle,
// each group sorted, groups ordered by their first id. Self references count
// as a cycle of one.
func ParentCycles(
	records []model.Record,
	idOf func(model.Record) (string, bool, error),
	parentOf func(model.Record) (string, bool),
) [][]string {
	index := make(map[string]int64)
	names := make([]string, 0, len(records))
	parents := make([]string, 0, len(records))
	for _, rec := range records {
		if rec == nil {
			continue
		}
		id, ok, err := idOf(rec)
		if !ok || err != nil {
			continue
		}
		if _, dup := index[id]; dup {
			continue
		}
		index[id] = int64(len(names))
		names = append(names, id)
		p, _ := parentOf(rec)
		parents = append(parents, p)
	}

	var out [][]string
	g := simple.NewDirectedGraph()
	for i := range names {
		g.AddNode(simple.Node(int64(i)))
	}
	for i, p := range parents {
		j, ok := index[p]
		if !ok {
			continue
		}
		if j == int64(i) {
			out = append(out, []string{names[i]})
			continue
		}
		g.SetEdge(simple.Edge{F: simple.Node(int64(i)), T: simple.Node(j)})
	}

	for _, comp := range topo.TarjanSCC(g) {
		if len(comp) < 2 {
			continue
		}
		ids := make([]string, len(comp))
		for k, n := range comp {
			ids[k] = names[n.ID()]
		}
		sort.Strings(ids)
		out = append(out, ids)
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}
