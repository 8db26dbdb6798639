// Package render prints the displayed rows of a row model as a text tree
// with one right-aligned column per value.
package render

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/vanderheijden86/gridrows/pkg/model"
)

// Grid is the read side of a row model needed for printing.
type Grid interface {
	DisplayedRows() []*model.RowNode
	Pinned(side model.Side) []*model.RowNode
}

// Options controls the layout.
type Options struct {
	// Columns are printed after the tree label, in order.
	Columns []string
	// Width is the terminal width; 0 means no limit.
	Width int
	// MaxLabel caps the label column; 0 means 40.
	MaxLabel int
	// ShowIDs appends the row id to data row labels.
	ShowIDs bool
	// Renderer styles the output. Nil prints plain text.
	Renderer *lipgloss.Renderer
}

const (
	defaultMaxLabel = 40
	minColWidth     = 6
	colGap          = 2
)

type line struct {
	prefix string
	label  string
	values []string
	node   *model.RowNode
	pinned bool
}

// Table writes the header, the pinned top rows, the displayed rows and the
// pinned bottom rows.
func Table(w io.Writer, g Grid, opts Options) error {
	th := newTheme(opts.Renderer)
	maxLabel := opts.MaxLabel
	if maxLabel <= 0 {
		maxLabel = defaultMaxLabel
	}

	top := lines(g.Pinned(model.SideTop), opts, false)
	body := lines(g.DisplayedRows(), opts, true)
	bottom := lines(g.Pinned(model.SideBottom), opts, false)

	labelW := runewidth.StringWidth("row")
	colW := make([]int, len(opts.Columns))
	for i, c := range opts.Columns {
		colW[i] = max(minColWidth, runewidth.StringWidth(c))
	}
	for _, set := range [][]line{top, body, bottom} {
		for _, l := range set {
			labelW = max(labelW, runewidth.StringWidth(l.prefix)+runewidth.StringWidth(l.label))
			for i, v := range l.values {
				colW[i] = max(colW[i], runewidth.StringWidth(v))
			}
		}
	}
	labelW = min(labelW, maxLabel)
	if opts.Width > 0 {
		rest := 0
		for _, cw := range colW {
			rest += cw + colGap
		}
		labelW = max(min(labelW, opts.Width-rest), 8)
	}

	var sb strings.Builder
	header := runewidth.FillRight("row", labelW)
	for i, c := range opts.Columns {
		header += strings.Repeat(" ", colGap) + runewidth.FillLeft(c, colW[i])
	}
	header = strings.TrimRight(header, " ")
	sb.WriteString(th.paint(th.header, header))
	sb.WriteByte('\n')

	rule := th.paint(th.rule, strings.Repeat("─", max(runewidth.StringWidth(header), labelW)))
	write := func(set []line) {
		for _, l := range set {
			sb.WriteString(th.format(l, labelW, colW))
			sb.WriteByte('\n')
		}
	}
	if len(top) > 0 {
		write(top)
		sb.WriteString(rule + "\n")
	}
	write(body)
	if len(bottom) > 0 {
		sb.WriteString(rule + "\n")
		write(bottom)
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func lines(rows []*model.RowNode, opts Options, tree bool) []line {
	out := make([]line, 0, len(rows))
	for _, n := range rows {
		l := line{label: Label(n, opts.ShowIDs), node: n, pinned: !tree}
		if tree {
			l.prefix = treePrefix(n)
		}
		for _, c := range opts.Columns {
			l.values = append(l.values, FormatValue(cellValue(n, c)))
		}
		out = append(out, l)
	}
	return out
}

// Label returns the text shown for n: the group key with an expansion
// marker for groups, "Total" for the footer, otherwise the id.
func Label(n *model.RowNode, showID bool) string {
	switch {
	case n.Footer:
		return "Total"
	case n.Group:
		marker := "▸ "
		if n.Expanded {
			marker = "▾ "
		}
		key := n.Key
		if key == "" {
			key = n.ID
		}
		if showID && n.HasData() && key != n.ID {
			key += " (" + n.ID + ")"
		}
		return marker + key
	default:
		if n.Key != "" && n.Key != n.ID {
			if showID {
				return n.Key + " (" + n.ID + ")"
			}
			return n.Key
		}
		return n.ID
	}
}

func cellValue(n *model.RowNode, col string) any {
	if n.Group || n.Footer {
		return n.GroupValue(col)
	}
	return n.Value(col)
}

// FormatValue renders a cell: integers without a fraction, floats in the
// shortest form, nil as empty.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case model.AvgValue:
		return strconv.FormatFloat(x.Value(), 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// treePrefix draws the branch lines for n from its ancestors' positions in
// their sorted sibling lists. Top-level rows have no prefix.
func treePrefix(n *model.RowNode) string {
	if n.Level <= 0 || n.Footer {
		return ""
	}
	var parts []string
	anc := n.Ancestors()
	for _, a := range anc[1:] {
		if isLast(a) {
			parts = append(parts, "    ")
		} else {
			parts = append(parts, "│   ")
		}
	}
	if isLast(n) {
		parts = append(parts, "└── ")
	} else {
		parts = append(parts, "├── ")
	}
	return strings.Join(parts, "")
}

func isLast(n *model.RowNode) bool {
	if n.Parent == nil {
		return true
	}
	sibs := n.Parent.ChildrenAfterSort
	return len(sibs) == 0 || sibs[len(sibs)-1] == n
}
