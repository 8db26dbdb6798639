package main

import (
	"fmt"
	"io"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/vanderheijden86/gridrows/pkg/model"
	"github.com/vanderheijden86/gridrows/pkg/render"
)

func newShowCommand(o *rootOptions) *cobra.Command {
	var txPaths []string
	var format string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the displayed rows of the loaded model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "table" && format != "json" {
				return fmt.Errorf("%w: --format must be table or json, got %q", errUsage, format)
			}
			s, err := o.newSession(cmd.Context())
			if err != nil {
				return err
			}
			for _, p := range txPaths {
				if _, err := s.apply(p); err != nil {
					return err
				}
			}
			if format == "json" {
				if o.expandAll {
					s.grid.ExpandAll()
				}
				return writeRowsJSON(cmd.OutOrStdout(), s)
			}
			return s.print(cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringSliceVar(&txPaths, "tx", nil, "Transaction file(s) to apply before printing")
	cmd.Flags().StringVar(&format, "format", "table", "Output format (table, json)")
	return cmd
}

type rowJSON struct {
	ID       string         `json:"id"`
	Index    int            `json:"index"`
	Level    int            `json:"level"`
	Label    string         `json:"label"`
	Group    bool           `json:"group,omitempty"`
	Expanded bool           `json:"expanded,omitempty"`
	Pinned   model.Side     `json:"pinned,omitempty"`
	Values   map[string]any `json:"values,omitempty"`
}

type rowsJSON struct {
	Top    []rowJSON `json:"pinned_top,omitempty"`
	Rows   []rowJSON `json:"rows"`
	Bottom []rowJSON `json:"pinned_bottom,omitempty"`
}

func writeRowsJSON(w io.Writer, s *session) error {
	cols := s.columns()
	conv := func(nodes []*model.RowNode) []rowJSON {
		out := make([]rowJSON, 0, len(nodes))
		for _, n := range nodes {
			r := rowJSON{
				ID:       n.ID,
				Index:    n.RowIndex,
				Level:    n.Level,
				Label:    render.Label(n, false),
				Group:    n.Group,
				Expanded: n.Expanded,
				Pinned:   n.Pinned,
			}
			for _, c := range cols {
				v := n.Value(c)
				if n.Group || n.Footer {
					v = n.GroupValue(c)
				}
				if v == nil {
					continue
				}
				if r.Values == nil {
					r.Values = make(map[string]any, len(cols))
				}
				if avg, ok := v.(model.AvgValue); ok {
					v = avg.Value()
				}
				r.Values[c] = v
			}
			out = append(out, r)
		}
		return out
	}
	doc := rowsJSON{
		Top:    conv(s.grid.Pinned(model.SideTop)),
		Rows:   conv(s.grid.DisplayedRows()),
		Bottom: conv(s.grid.Pinned(model.SideBottom)),
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
