package changepath

import (
	"testing"

	"github.com/vanderheijden86/gridrows/pkg/model"
)

func chain() (root, group, leaf *model.RowNode) {
	root = model.NewRoot()
	group = model.NewNode("g", nil)
	group.Parent = root
	group.Level = 0
	leaf = model.NewNode("l", model.Record{"v": 1})
	leaf.Parent = group
	leaf.Level = 1
	return root, group, leaf
}

func TestNilPathIsFull(t *testing.T) {
	var p *Path
	if !p.IsFull() || !p.Structural() {
		t.Error("nil path must behave as full")
	}
	if !p.Contains(model.NewNode("x", nil)) {
		t.Error("full path contains every node")
	}
}

func TestMarkLineageColumns(t *testing.T) {
	root, group, leaf := chain()
	b := NewBuilder()
	b.MarkLineage(leaf, "v")
	p := b.Build()

	for _, n := range []*model.RowNode{root, group, leaf} {
		if !p.Contains(n) {
			t.Errorf("expected %s on the path", n.ID)
		}
		if !p.ColumnChanged(n, "v") {
			t.Errorf("expected column v changed on %s", n.ID)
		}
		if p.ColumnChanged(n, "w") {
			t.Errorf("column w should be untouched on %s", n.ID)
		}
	}
	if p.Structural() {
		t.Error("column-only change must not be structural")
	}
	if !p.TouchesColumn("v") || p.TouchesColumn("w") {
		t.Error("unexpected TouchesColumn result")
	}
}

func TestStructuralMarkDirtiesAllColumns(t *testing.T) {
	_, group, _ := chain()
	b := NewBuilder()
	b.MarkLineage(group)
	p := b.Build()
	if !p.Structural() || !p.ColumnChanged(group, "anything") {
		t.Error("structural lineage must dirty every column")
	}
}

func TestBuildFreezes(t *testing.T) {
	_, group, leaf := chain()
	b := NewBuilder()
	b.MarkLineage(group, "v")
	p := b.Build()
	b.MarkLineage(leaf, "v")
	b.MarkRemoved("zzz")
	if p.Contains(leaf) || p.Removed("zzz") {
		t.Error("marks after Build must be ignored")
	}
}

func TestDeepestFirstSkipsDetached(t *testing.T) {
	root, group, leaf := chain()
	b := NewBuilder()
	b.MarkLineage(leaf, "v")
	detached := model.NewNode("gone", nil)
	b.MarkLineage(detached)
	p := b.Build()

	got := p.DeepestFirst()
	if len(got) != 3 {
		t.Fatalf("expected 3 attached nodes, got %d", len(got))
	}
	if got[0] != leaf || got[1] != group || got[2] != root {
		t.Errorf("unexpected order %v", got)
	}
}

func TestMarkSubtreeDirtiesDescendants(t *testing.T) {
	root, group, leaf := chain()
	deeper := model.NewNode("d", model.Record{"v": 2})
	deeper.Parent = leaf
	deeper.Level = 2
	leaf.Children = []*model.RowNode{deeper}
	group.Children = []*model.RowNode{leaf}
	root.Children = []*model.RowNode{group}

	b := NewBuilder()
	b.MarkSubtree(group)
	p := b.Build()

	for _, n := range []*model.RowNode{root, group, leaf, deeper} {
		if !p.ColumnChanged(n, "v") {
			t.Errorf("expected %s dirty for every column", n.ID)
		}
	}
	got := p.DeepestFirst()
	if len(got) != 4 || got[0] != deeper || got[3] != root {
		t.Errorf("unexpected order %v", got)
	}
}
