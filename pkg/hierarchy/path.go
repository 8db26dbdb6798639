package hierarchy

import (
	"fmt"
	"slices"
	"strings"

	"github.com/vanderheijden86/gridrows/pkg/changepath"
	"github.com/vanderheijden86/gridrows/pkg/diag"
	"github.com/vanderheijden86/gridrows/pkg/model"
)

// recordPath returns the configured path of rec.
func (b *Builder) recordPath(rec model.Record) (path []string, err error) {
	if b.cfg.PathFunc != nil {
		defer func() {
			if r := recover(); r != nil {
				path, err = nil, fmt.Errorf("%w: path function panicked: %v", ErrMalformedPath, r)
			}
		}()
		path, err = b.cfg.PathFunc(rec)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPath, err)
		}
		if len(path) == 0 {
			return nil, fmt.Errorf("%w: empty", ErrMalformedPath)
		}
		return path, nil
	}
	return toPath(rec[b.cfg.PathField])
}

// toPath accepts []string or a []any of scalars.
func toPath(raw any) ([]string, error) {
	var out []string
	switch v := raw.(type) {
	case []string:
		out = slices.Clone(v)
	case []any:
		out = make([]string, 0, len(v))
		for i, e := range v {
			s, ok, err := scalarString(e)
			if err != nil || !ok {
				return nil, fmt.Errorf("%w: element %d is %T", ErrMalformedPath, i, e)
			}
			out = append(out, s)
		}
	default:
		return nil, fmt.Errorf("%w: %T is not a sequence", ErrMalformedPath, raw)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrMalformedPath)
	}
	return out, nil
}

// nodePath returns the full path of n. Under group columns the path is the
// column values followed by the node id, so leaves never collide.
func (b *Builder) nodePath(n *model.RowNode) ([]string, error) {
	if len(b.cfg.GroupColumns) > 0 {
		p := make([]string, 0, len(b.cfg.GroupColumns)+1)
		for _, col := range b.cfg.GroupColumns {
			p = append(p, keyString(n.Data[col]))
		}
		return append(p, n.ID), nil
	}
	return b.recordPath(n.Data)
}

func (b *Builder) levelColumn(i int) string {
	if len(b.cfg.GroupColumns) > 0 {
		return b.cfg.GroupColumns[i]
	}
	return model.AutoGroupColumn
}

func (b *Builder) attachPath(n *model.RowNode, cp *changepath.Builder) {
	root := b.store.Root()
	path, err := b.nodePath(n)
	if err != nil {
		b.report(diag.Data, "attach", n.ID, err)
		b.attachUnder(n, root, cp)
		return
	}
	if len(b.cfg.GroupColumns) == 0 {
		n.Key = path[len(path)-1]
		n.GroupColumn = model.AutoGroupColumn
	}

	parent := root
	for i := range len(path) - 1 {
		key := joinPath(path[:i+1])
		g := b.byPath[key]
		if g == nil {
			g = b.newFiller(key, path[:i+1], b.levelColumn(i), n.SourceIndex)
			b.store.Put(g)
			b.attachUnder(g, parent, cp)
		}
		parent = g
	}

	full := joinPath(path)
	if existing := b.byPath[full]; existing != nil {
		if !existing.Filler {
			b.report(diag.Invariant, "attach", n.ID, fmt.Errorf("%w: %s", ErrDuplicatePath, strings.Join(path, "/")))
			b.attachUnder(n, root, cp)
			return
		}
		b.takeOver(existing, n, cp)
		return
	}
	b.byPath[full] = n
	b.pathOf[n] = full
	b.attachUnder(n, parent, cp)
}

func (b *Builder) newFiller(key string, path []string, column string, sourceIndex int) *model.RowNode {
	id := b.uniqueID(fillerPrefix + strings.Join(path, "/"))
	if len(b.cfg.GroupColumns) > 0 {
		id = b.uniqueID(fillerPrefix + column + "-" + strings.Join(path, "-"))
	}
	f := model.NewNode(id, nil)
	f.Group = true
	f.Filler = true
	f.Key = path[len(path)-1]
	f.GroupColumn = column
	f.SourceIndex = sourceIndex
	b.byPath[key] = f
	b.pathOf[f] = key
	b.fresh[f] = true
	return f
}

// takeOver puts n where filler f stood: f's children move under n and f is
// destroyed. n inherits f's expansion state.
func (b *Builder) takeOver(f, n *model.RowNode, cp *changepath.Builder) {
	parent := f.Parent
	key := b.pathOf[f]
	kids := slices.Clone(f.Children)
	for _, c := range kids {
		b.store.Detach(c)
	}
	b.store.Detach(f)
	b.store.Delete(f.ID)
	delete(b.pathOf, f)
	cp.MarkRemoved(f.ID)

	if b.fresh[n] {
		delete(b.fresh, n)
		n.Expanded = f.Expanded
	}
	b.byPath[key] = n
	b.pathOf[n] = key
	b.attachUnder(n, parent, cp)
	for _, c := range kids {
		if err := b.store.Attach(c, n); err != nil {
			b.report(diag.Invariant, "attach", c.ID, err)
			_ = b.store.Attach(c, b.store.Root())
		}
	}
	cp.MarkLineage(n)
}

// detachPath takes n out of the tree. If n still has children a filler takes
// its place; fillers left without children are destroyed upwards.
func (b *Builder) detachPath(n *model.RowNode, cp *changepath.Builder) {
	parent := n.Parent
	key, registered := b.pathOf[n]
	if registered {
		delete(b.pathOf, n)
		delete(b.byPath, key)
	}

	if registered && len(n.Children) > 0 {
		path := strings.Split(key, "\x1f")
		f := b.newFiller(key, path, n.GroupColumn, n.SourceIndex)
		delete(b.fresh, f)
		f.Expanded = n.Expanded
		kids := slices.Clone(n.Children)
		for _, c := range kids {
			b.store.Detach(c)
		}
		b.store.Detach(n)
		b.store.Put(f)
		if parent != nil {
			_ = b.store.Attach(f, parent)
		}
		for _, c := range kids {
			_ = b.store.Attach(c, f)
		}
		cp.MarkLineage(f)
		return
	}

	b.store.Detach(n)
	cp.MarkLineage(parent)
	b.pruneFillers(parent, cp)
}

func (b *Builder) pruneFillers(p *model.RowNode, cp *changepath.Builder) {
	for p != nil && p.Filler && len(p.Children) == 0 {
		gp := p.Parent
		b.store.Detach(p)
		b.store.Delete(p.ID)
		if key, ok := b.pathOf[p]; ok {
			delete(b.byPath, key)
			delete(b.pathOf, p)
		}
		cp.MarkRemoved(p.ID)
		p = gp
	}
	cp.MarkLineage(p)
}
