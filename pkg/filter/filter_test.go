package filter

import (
	"errors"
	"slices"
	"testing"

	"github.com/vanderheijden86/gridrows/pkg/aggregate"
	"github.com/vanderheijden86/gridrows/pkg/changepath"
	"github.com/vanderheijden86/gridrows/pkg/hierarchy"
	"github.com/vanderheijden86/gridrows/pkg/model"
	"github.com/vanderheijden86/gridrows/pkg/rowstore"
)

func TestColumnFilterMatch(t *testing.T) {
	tests := []struct {
		name string
		f    ColumnFilter
		v    any
		want bool
	}{
		{"equals number", ColumnFilter{Operator: Equals, Operand: 5}, 5.0, true},
		{"equals text folds case", ColumnFilter{Operator: Equals, Operand: "abc"}, "ABC", true},
		{"equals case sensitive", ColumnFilter{Operator: Equals, Operand: "abc", CaseSensitive: true}, "ABC", false},
		{"not equal nil", ColumnFilter{Operator: NotEqual, Operand: 1}, nil, true},
		{"less than", ColumnFilter{Operator: LessThan, Operand: 10}, 3, true},
		{"less than nil", ColumnFilter{Operator: LessThan, Operand: 10}, nil, false},
		{"lte", ColumnFilter{Operator: LessThanOrEqual, Operand: 3}, 3, true},
		{"greater than", ColumnFilter{Operator: GreaterThan, Operand: 10}, 3, false},
		{"gte", ColumnFilter{Operator: GreaterThanOrEqual, Operand: 3}, 3.5, true},
		{"in range inclusive", ColumnFilter{Operator: InRange, Operand: 1, OperandTo: 3}, 3, true},
		{"out of range", ColumnFilter{Operator: InRange, Operand: 1, OperandTo: 3}, 4, false},
		{"contains", ColumnFilter{Operator: Contains, Operand: "ell"}, "Hello", true},
		{"not contains nil", ColumnFilter{Operator: NotContains, Operand: "x"}, nil, true},
		{"starts with", ColumnFilter{Operator: StartsWith, Operand: "he"}, "Hello", true},
		{"ends with", ColumnFilter{Operator: EndsWith, Operand: "LO"}, "hello", true},
		{"blank", ColumnFilter{Operator: Blank}, "  ", true},
		{"not blank", ColumnFilter{Operator: NotBlank}, 0, true},
		{"set member", ColumnFilter{Operator: InSet, Values: []any{"a", 2}}, 2.0, true},
		{"set nil member", ColumnFilter{Operator: InSet, Values: []any{nil}}, nil, true},
		{"set miss", ColumnFilter{Operator: InSet, Values: []any{"a"}}, "b", false},
		{"number type", ColumnFilter{Type: TypeNumber, Operator: GreaterThan, Operand: "9"}, "10", true},
		{"text type", ColumnFilter{Type: TypeText, Operator: GreaterThan, Operand: "9"}, "10", false},
		{"average unwrapped", ColumnFilter{Operator: GreaterThan, Operand: 2}, model.AvgValue{Count: 2, Sum: 6}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.f.Match(tt.v); got != tt.want {
				t.Errorf("Match(%v) = %v, want %v", tt.v, got, tt.want)
			}
		})
	}
}

func TestModelValidate(t *testing.T) {
	bad := []Model{
		{"v": {Operator: "like", Operand: 1}},
		{"v": {Operator: Equals}},
		{"v": {Operator: InRange, Operand: 1}},
		{"v": {Type: "date", Operator: Blank}},
		{"v": {Type: TypeNumber, Operator: Equals, Operand: "abc"}},
		{"": {Operator: Blank}},
	}
	for i, m := range bad {
		if err := m.Validate(); !errors.Is(err, ErrInvalidModel) {
			t.Errorf("model %d: expected ErrInvalidModel, got %v", i, err)
		}
	}
	if _, err := New(Model{"v": {Operator: Blank}}, false); err != nil {
		t.Errorf("valid model rejected: %v", err)
	}
}

// fixture builds A{1:1, 2:8} B{3:3, 4:4} with summed v, so A=9 and B=7.
func fixture(t *testing.T) (*hierarchy.Builder, *aggregate.Engine) {
	t.Helper()
	b, err := hierarchy.NewBuilder(hierarchy.Config{PathField: "path", IDField: "id"}, rowstore.New(), nil)
	if err != nil {
		t.Fatal(err)
	}
	b.Build([]model.Record{
		{"id": "1", "path": []string{"A", "x"}, "v": 1},
		{"id": "2", "path": []string{"A", "y"}, "v": 8},
		{"id": "3", "path": []string{"B", "z"}, "v": 3},
		{"id": "4", "path": []string{"B", "w"}, "v": 4},
	})
	e, err := aggregate.NewEngine([]aggregate.ColumnAgg{{Column: "v", Func: "sum"}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	e.Compute(b.Store().Root(), nil)
	return b, e
}

func visible(root *model.RowNode) []string {
	var out []string
	var walk func(n *model.RowNode)
	walk = func(n *model.RowNode) {
		for _, c := range n.ChildrenAfterFilter {
			out = append(out, c.ID)
			walk(c)
		}
	}
	walk(root)
	return out
}

func TestGroupInclusionPolicies(t *testing.T) {
	m := Model{"v": {Operator: GreaterThan, Operand: 5}}

	b, _ := fixture(t)
	def, _ := New(m, false)
	def.Apply(b.Store().Root(), nil)
	gotDefault := visible(b.Store().Root())

	b2, _ := fixture(t)
	excl, _ := New(m, true)
	excl.Apply(b2.Store().Root(), nil)
	gotExclude := visible(b2.Store().Root())

	if want := []string{"row-group-A", "2"}; !slices.Equal(gotDefault, want) {
		t.Errorf("default policy visible = %v, want %v", gotDefault, want)
	}
	if want := []string{"row-group-A", "2", "row-group-B"}; !slices.Equal(gotExclude, want) {
		t.Errorf("exclude-children visible = %v, want %v", gotExclude, want)
	}
}

func TestIncrementalReevaluation(t *testing.T) {
	b, e := fixture(t)
	root := b.Store().Root()
	p, _ := New(Model{"v": {Operator: GreaterThan, Operand: 5}}, false)
	p.Apply(root, nil)

	n3, _ := b.Store().Get("3")
	n3.Data["v"] = 10
	cp := changepath.NewBuilder()
	cp.MarkLineage(n3, "v")
	path := cp.Build()
	e.Compute(root, path)
	p.Apply(root, path)

	if got, want := visible(root), []string{"row-group-A", "2", "row-group-B", "3"}; !slices.Equal(got, want) {
		t.Errorf("visible = %v, want %v", got, want)
	}
}

func TestUntouchedColumnsSkipThePass(t *testing.T) {
	b, _ := fixture(t)
	root := b.Store().Root()
	p, _ := New(Model{"v": {Operator: GreaterThan, Operand: 5}}, false)
	p.Apply(root, nil)

	a, _ := b.Store().Get("row-group-A")
	a.ChildrenAfterFilter = nil
	n1, _ := b.Store().Get("1")
	cp := changepath.NewBuilder()
	cp.MarkLineage(n1, "note")
	p.Apply(root, cp.Build())
	if a.ChildrenAfterFilter != nil {
		t.Error("a change to an unfiltered column must not re-run the filter")
	}
}

func TestInactivePipelinePassesEverything(t *testing.T) {
	b, _ := fixture(t)
	root := b.Store().Root()
	var p *Pipeline
	p.Apply(root, nil)
	if got := len(visible(root)); got != 6 {
		t.Errorf("expected all 6 rows visible, got %d", got)
	}
	if !p.NodePasses(root.Children[0]) {
		t.Error("inactive pipeline passes every node")
	}
}

func TestFilterOnGroupKey(t *testing.T) {
	b, _ := fixture(t)
	root := b.Store().Root()
	p, _ := New(Model{model.AutoGroupColumn: {Operator: InSet, Values: []any{"B", "z"}}}, false)
	p.Apply(root, nil)
	if got, want := visible(root), []string{"row-group-B", "3"}; !slices.Equal(got, want) {
		t.Errorf("visible = %v, want %v", got, want)
	}
}
