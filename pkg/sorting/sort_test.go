package sorting

import (
	"errors"
	"slices"
	"testing"

	"github.com/vanderheijden86/gridrows/pkg/aggregate"
	"github.com/vanderheijden86/gridrows/pkg/changepath"
	"github.com/vanderheijden86/gridrows/pkg/filter"
	"github.com/vanderheijden86/gridrows/pkg/hierarchy"
	"github.com/vanderheijden86/gridrows/pkg/model"
	"github.com/vanderheijden86/gridrows/pkg/rowstore"
)

func tree(t *testing.T, recs []model.Record) *hierarchy.Builder {
	t.Helper()
	b, _ := build(t, recs)
	return b
}

// build groups recs by path, sums v and runs an inactive filter pass.
func build(t *testing.T, recs []model.Record) (*hierarchy.Builder, *aggregate.Engine) {
	t.Helper()
	b, err := hierarchy.NewBuilder(hierarchy.Config{PathField: "path", IDField: "id"}, rowstore.New(), nil)
	if err != nil {
		t.Fatal(err)
	}
	b.Build(recs)
	e, _ := aggregate.NewEngine([]aggregate.ColumnAgg{{Column: "v", Func: "sum"}}, nil)
	e.Compute(b.Store().Root(), nil)
	var p *filter.Pipeline
	p.Apply(b.Store().Root(), nil)
	return b, e
}

func sortedIDs(n *model.RowNode) []string {
	out := make([]string, len(n.ChildrenAfterSort))
	for i, c := range n.ChildrenAfterSort {
		out[i] = c.ID
	}
	return out
}

func get(t *testing.T, b *hierarchy.Builder, id string) *model.RowNode {
	t.Helper()
	n, ok := b.Store().Get(id)
	if !ok {
		t.Fatalf("missing %s", id)
	}
	return n
}

var records = []model.Record{
	{"id": "1", "path": []string{"A", "a1"}, "v": 3, "name": "c"},
	{"id": "2", "path": []string{"A", "a2"}, "v": 1, "name": "a"},
	{"id": "3", "path": []string{"A", "a3"}, "v": 3, "name": "b"},
	{"id": "4", "path": []string{"B", "b1"}, "v": 9, "name": "d"},
	{"id": "5", "path": []string{"B", "b2"}, "v": 2, "name": "e"},
}

func TestSortsEachLevelIndependently(t *testing.T) {
	b := tree(t, records)
	e, err := New(Model{{Column: "v", Direction: Asc}})
	if err != nil {
		t.Fatal(err)
	}
	root := b.Store().Root()
	e.Sort(root, nil)

	if got := sortedIDs(get(t, b, "row-group-A")); !slices.Equal(got, []string{"2", "1", "3"}) {
		t.Errorf("A = %v", got)
	}
	if got := sortedIDs(get(t, b, "row-group-B")); !slices.Equal(got, []string{"5", "4"}) {
		t.Errorf("B = %v", got)
	}
	// Groups sort by their aggregate: A=7, B=11.
	if got := sortedIDs(root); !slices.Equal(got, []string{"row-group-A", "row-group-B"}) {
		t.Errorf("root = %v", got)
	}
	if !slices.Equal(ids(get(t, b, "row-group-A").Children), []string{"1", "2", "3"}) {
		t.Error("sorting must not touch the source-order children")
	}
}

func ids(nodes []*model.RowNode) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

func TestSortIsStable(t *testing.T) {
	b := tree(t, records)
	root := b.Store().Root()
	e, _ := New(Model{{Column: "v", Direction: Desc}})
	e.Sort(root, nil)
	// 1 and 3 tie on v=3 and keep source order.
	if got := sortedIDs(get(t, b, "row-group-A")); !slices.Equal(got, []string{"1", "3", "2"}) {
		t.Errorf("A desc = %v", got)
	}
	if got := sortedIDs(root); !slices.Equal(got, []string{"row-group-B", "row-group-A"}) {
		t.Errorf("root desc = %v", got)
	}
}

func TestComparatorChain(t *testing.T) {
	b := tree(t, records)
	e, _ := New(Model{{Column: "v", Direction: Desc}, {Column: "name", Direction: Desc}})
	e.Sort(b.Store().Root(), nil)
	if got := sortedIDs(get(t, b, "row-group-A")); !slices.Equal(got, []string{"1", "3", "2"}) {
		t.Errorf("A = %v", got)
	}
	e, _ = New(Model{{Column: "v", Direction: Desc}, {Column: "name", Direction: Asc}})
	e.Sort(b.Store().Root(), nil)
	if got := sortedIDs(get(t, b, "row-group-A")); !slices.Equal(got, []string{"3", "1", "2"}) {
		t.Errorf("A with name asc = %v", got)
	}
}

func TestSortByGroupKey(t *testing.T) {
	b := tree(t, records)
	e, _ := New(Model{{Column: model.AutoGroupColumn, Direction: Desc}})
	e.Sort(b.Store().Root(), nil)
	if got := sortedIDs(b.Store().Root()); !slices.Equal(got, []string{"row-group-B", "row-group-A"}) {
		t.Errorf("root = %v", got)
	}
	if got := sortedIDs(get(t, b, "row-group-A")); !slices.Equal(got, []string{"3", "2", "1"}) {
		t.Errorf("A by key desc = %v", got)
	}
}

func TestIncrementalSortTouchesOnlyDirtyLineage(t *testing.T) {
	b, agg := build(t, records)
	root := b.Store().Root()
	e, _ := New(Model{{Column: "v", Direction: Asc}})
	e.Sort(root, nil)

	bGroup := get(t, b, "row-group-B")
	marker := []*model.RowNode{get(t, b, "4")}
	bGroup.ChildrenAfterSort = marker

	// Raise 2 so that A (now 16) sorts after B (11).
	n2 := get(t, b, "2")
	n2.Data = model.Record{"id": "2", "path": []string{"A", "a2"}, "v": 10, "name": "a"}
	cp := changepath.NewBuilder()
	cp.MarkLineage(n2, "v")
	path := cp.Build()
	agg.Compute(root, path)
	var p *filter.Pipeline
	p.Apply(root, path)
	e.Sort(root, path)

	if got := sortedIDs(get(t, b, "row-group-A")); !slices.Equal(got, []string{"1", "3", "2"}) {
		t.Errorf("A = %v", got)
	}
	if got := sortedIDs(root); !slices.Equal(got, []string{"row-group-B", "row-group-A"}) {
		t.Errorf("changed group must move among its siblings, got %v", got)
	}
	if len(bGroup.ChildrenAfterSort) != 1 {
		t.Error("untouched group must not be re-sorted")
	}
}

func TestInactiveKeepsSourceOrder(t *testing.T) {
	b := tree(t, records)
	var e *Engine
	e.Sort(b.Store().Root(), nil)
	if got := sortedIDs(get(t, b, "row-group-A")); !slices.Equal(got, []string{"1", "2", "3"}) {
		t.Errorf("A = %v", got)
	}
}

func TestValidate(t *testing.T) {
	bad := []Model{
		{{Column: "", Direction: Asc}},
		{{Column: "v", Direction: "up"}},
		{{Column: "v", Direction: Asc}, {Column: "v", Direction: Desc}},
	}
	for i, m := range bad {
		if _, err := New(m); !errors.Is(err, ErrInvalidModel) {
			t.Errorf("model %d: expected ErrInvalidModel, got %v", i, err)
		}
	}
	if d, err := ParseDirection("DESC"); err != nil || d != Desc {
		t.Errorf("ParseDirection = %v, %v", d, err)
	}
}
