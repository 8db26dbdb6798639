package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/vanderheijden86/gridrows/pkg/model"
)

// TreeErrors returns every structural violation below root: broken parent
// links, wrong levels, duplicate ids, nodes owned twice, derived child lists
// that are not subsets of Children, and parent cycles.
func TreeErrors(root *model.RowNode) []string {
	var errs []string
	ids := make(map[string]*model.RowNode)
	owned := make(map[*model.RowNode]bool)
	var nodes []*model.RowNode

	var walk func(n *model.RowNode)
	walk = func(n *model.RowNode) {
		kids := make(map[*model.RowNode]bool, len(n.Children))
		for _, c := range n.Children {
			if owned[c] {
				errs = append(errs, fmt.Sprintf("%s: owned by more than one parent", c.ID))
				continue
			}
			owned[c] = true
			kids[c] = true
			if c.Parent != n {
				errs = append(errs, fmt.Sprintf("%s: parent link does not point at %s", c.ID, n.ID))
			}
			if c.Level != n.Level+1 {
				errs = append(errs, fmt.Sprintf("%s: level %d under level %d", c.ID, c.Level, n.Level))
			}
			if prev, dup := ids[c.ID]; dup && prev != c {
				errs = append(errs, fmt.Sprintf("%s: duplicate id", c.ID))
			}
			ids[c.ID] = c
			if c.Filler && c.Data != nil {
				errs = append(errs, fmt.Sprintf("%s: filler carries data", c.ID))
			}
			nodes = append(nodes, c)
			walk(c)
		}
		errs = append(errs, subsetErrors(n, "ChildrenAfterFilter", n.ChildrenAfterFilter, kids)...)
		errs = append(errs, subsetErrors(n, "ChildrenAfterSort", n.ChildrenAfterSort, kids)...)
	}
	walk(root)

	// Parent links form a forest: child -> parent edges must be acyclic.
	index := make(map[*model.RowNode]int64, len(nodes)+1)
	index[root] = 0
	g := simple.NewDirectedGraph()
	g.AddNode(simple.Node(0))
	for _, n := range nodes {
		id := int64(len(index))
		index[n] = id
		g.AddNode(simple.Node(id))
	}
	for _, n := range nodes {
		p, ok := index[n.Parent]
		if !ok || p == index[n] {
			continue
		}
		g.SetEdge(simple.Edge{F: simple.Node(index[n]), T: simple.Node(p)})
	}
	if _, err := topo.Sort(g); err != nil {
		errs = append(errs, fmt.Sprintf("parent links contain a cycle: %v", err))
	}
	return errs
}

func subsetErrors(n *model.RowNode, name string, list []*model.RowNode, kids map[*model.RowNode]bool) []string {
	var errs []string
	seen := make(map[*model.RowNode]bool, len(list))
	for _, c := range list {
		if !kids[c] {
			errs = append(errs, fmt.Sprintf("%s: %s holds %s which is not a child", n.ID, name, c.ID))
		}
		if seen[c] {
			errs = append(errs, fmt.Sprintf("%s: %s holds %s twice", n.ID, name, c.ID))
		}
		seen[c] = true
	}
	return errs
}

// AssertTree fails t for every structural violation below root.
func AssertTree(t testing.TB, root *model.RowNode) {
	t.Helper()
	for _, e := range TreeErrors(root) {
		t.Error(e)
	}
}

// AssertDisplayed verifies that rows carry consecutive row indexes and
// stacked tops.
func AssertDisplayed(t testing.TB, rows []*model.RowNode) {
	t.Helper()
	top := 0
	for i, r := range rows {
		if r.RowIndex != i {
			t.Errorf("row %d (%s) has index %d", i, r.ID, r.RowIndex)
		}
		if !r.Displayed {
			t.Errorf("row %d (%s) not marked displayed", i, r.ID)
		}
		if r.RowTop != top {
			t.Errorf("row %d (%s) top %d, want %d", i, r.ID, r.RowTop, top)
		}
		top += r.RowHeight
	}
}

// Leaves returns the data rows below n in Children order.
func Leaves(n *model.RowNode) []*model.RowNode {
	var out []*model.RowNode
	for _, c := range n.Children {
		if c.Data != nil && len(c.Children) == 0 {
			out = append(out, c)
		}
		out = append(out, Leaves(c)...)
	}
	return out
}

// IDs returns the ids of nodes.
func IDs(nodes []*model.RowNode) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

// FindNode returns the node with id below n, or nil.
func FindNode(n *model.RowNode, id string) *model.RowNode {
	for _, c := range n.Children {
		if c.ID == id {
			return c
		}
		if f := FindNode(c, id); f != nil {
			return f
		}
	}
	return nil
}

// Golden file helpers

// GoldenFile handles golden file comparisons.
type GoldenFile struct {
	t      testing.TB
	dir    string
	name   string
	update bool
}

// NewGoldenFile creates a golden file helper.
// If GENERATE_GOLDEN env var is set, golden files will be updated.
func NewGoldenFile(t testing.TB, dir, name string) *GoldenFile {
	t.Helper()
	return &GoldenFile{
		t:      t,
		dir:    dir,
		name:   name,
		update: os.Getenv("GENERATE_GOLDEN") != "",
	}
}

// Path returns the full path to the golden file.
func (g *GoldenFile) Path() string {
	return filepath.Join(g.dir, g.name)
}

// Assert compares actual content against the golden file.
// If GENERATE_GOLDEN is set, updates the golden file instead.
func (g *GoldenFile) Assert(actual string) {
	g.t.Helper()

	path := g.Path()

	if g.update {
		if err := os.MkdirAll(g.dir, 0755); err != nil {
			g.t.Fatalf("failed to create golden dir: %v", err)
		}
		if err := os.WriteFile(path, []byte(actual), 0644); err != nil {
			g.t.Fatalf("failed to write golden file: %v", err)
		}
		g.t.Logf("updated golden file: %s", path)
		return
	}

	expected, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			g.t.Fatalf("golden file does not exist: %s\nRun with GENERATE_GOLDEN=1 to create it", path)
		}
		g.t.Fatalf("failed to read golden file: %v", err)
	}

	if string(expected) == actual {
		return
	}
	want := strings.Split(string(expected), "\n")
	got := strings.Split(actual, "\n")
	for i := 0; i < len(want) || i < len(got); i++ {
		var w, a string
		if i < len(want) {
			w = want[i]
		}
		if i < len(got) {
			a = got[i]
		}
		if w != a {
			g.t.Errorf("golden file mismatch at line %d:\nexpected: %s\nactual:   %s", i+1, w, a)
			return
		}
	}
	g.t.Errorf("golden file mismatch (length differs)")
}

// AssertJSON compares actual value as JSON against the golden file.
func (g *GoldenFile) AssertJSON(actual any) {
	g.t.Helper()

	data, err := json.MarshalIndent(actual, "", "  ")
	if err != nil {
		g.t.Fatalf("failed to marshal actual value: %v", err)
	}

	g.Assert(string(data))
}

// WriteRecordsFile writes records as JSONL under dir and returns the path.
func WriteRecordsFile(t testing.TB, dir, name string, records []model.Record) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(ToJSONL(records)), 0644); err != nil {
		t.Fatalf("failed to write records: %v", err)
	}
	return path
}
