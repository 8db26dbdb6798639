package hierarchy

import (
	"fmt"
	"slices"

	"github.com/vanderheijden86/gridrows/pkg/changepath"
	"github.com/vanderheijden86/gridrows/pkg/diag"
	"github.com/vanderheijden86/gridrows/pkg/model"
)

func nestedRecords(raw any) ([]model.Record, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []model.Record:
		return v, nil
	case []map[string]any:
		out := make([]model.Record, len(v))
		for i, m := range v {
			out[i] = m
		}
		return out, nil
	case []any:
		out := make([]model.Record, 0, len(v))
		for i, e := range v {
			switch m := e.(type) {
			case model.Record:
				out = append(out, m)
			case map[string]any:
				out = append(out, m)
			default:
				return nil, fmt.Errorf("%w: element %d is %T", ErrMalformedChildren, i, e)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrMalformedChildren, raw)
	}
}

// expandNested creates nodes for the nested records under n, depth first.
// reuse, when set, supplies existing nodes by id.
func (b *Builder) expandNested(n *model.RowNode, out []*model.RowNode, seen map[string]bool, reuse map[string]*model.RowNode) []*model.RowNode {
	recs, err := nestedRecords(n.Data[b.cfg.ChildrenField])
	if err != nil {
		b.report(diag.Data, "expand", n.ID, err)
		return out
	}
	for _, rec := range recs {
		var c *model.RowNode
		if rec != nil && reuse != nil {
			if id, ok, err := b.RecordID(rec); ok && err == nil && !seen[id] {
				if old := reuse[id]; old != nil {
					delete(reuse, id)
					old.Data = rec
					c = old
				}
			}
		}
		if c == nil {
			c, err = b.newDataNode(rec, seen)
			if err != nil {
				b.report(categoryOf(err), "expand", n.ID, err)
				continue
			}
		}
		seen[c.ID] = true
		b.nestedParent[c] = n
		out = append(out, c)
		out = b.expandNested(c, out, seen, reuse)
	}
	return out
}

func (b *Builder) attachNested(n *model.RowNode, cp *changepath.Builder) {
	parent := b.nestedParent[n]
	if parent == nil {
		parent = b.store.Root()
	} else if cur, ok := b.store.Get(parent.ID); !ok || cur != parent {
		parent = b.store.Root()
	}
	b.attachUnder(n, parent, cp)
}

// OwnRecord reports whether n was created from a record of its own rather
// than from a parent's children field.
func (b *Builder) OwnRecord(n *model.RowNode) bool {
	return b.nestedParent[n] == nil
}

func (b *Builder) subtree(n *model.RowNode) []*model.RowNode {
	out := []*model.RowNode{n}
	for _, c := range n.Children {
		out = append(out, b.subtree(c)...)
	}
	return out
}

func (b *Builder) removeNested(n *model.RowNode, cp *changepath.Builder) []*model.RowNode {
	all := b.subtree(n)
	parent := n.Parent
	b.store.Detach(n)
	cp.MarkLineage(parent)
	return all
}

// Resync rebuilds the nested children of n from its current record. With
// stable ids, existing descendants are reused by id and keep their state;
// otherwise they are recreated. New nodes are appended to the leaf order.
func (b *Builder) Resync(n *model.RowNode, cp *changepath.Builder) (added, removed []*model.RowNode) {
	if b.cfg.Mode() != ModeChildren {
		return nil, nil
	}
	old := b.subtree(n)[1:]
	reuse := make(map[string]*model.RowNode)
	for _, o := range old {
		b.store.Detach(o)
		if b.cfg.StableIDs() {
			reuse[o.ID] = o
		}
	}
	keep := make(map[*model.RowNode]bool)
	for _, o := range reuse {
		keep[o] = true
	}

	// Unregister the old ids first so recreated records may reuse them.
	for _, o := range old {
		b.store.Delete(o.ID)
	}
	nodes := b.expandNested(n, nil, map[string]bool{n.ID: true}, reuse)

	for _, o := range old {
		if reuse[o.ID] == o || !keep[o] {
			removed = append(removed, o)
			b.forget(o)
			cp.MarkRemoved(o.ID)
			b.order.Forget()
		}
	}
	for _, c := range nodes {
		if !keep[c] {
			b.order.Append(c)
			added = append(added, c)
		}
		b.Attach(c, cp)
	}
	cp.MarkLineage(n)
	return added, slices.Clip(removed)
}
