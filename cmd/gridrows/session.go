package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/vanderheijden86/gridrows/internal/datasource"
	"github.com/vanderheijden86/gridrows/pkg/config"
	"github.com/vanderheijden86/gridrows/pkg/diag"
	"github.com/vanderheijden86/gridrows/pkg/metrics"
	"github.com/vanderheijden86/gridrows/pkg/model"
	"github.com/vanderheijden86/gridrows/pkg/render"
	"github.com/vanderheijden86/gridrows/pkg/rowmodel"
	"github.com/vanderheijden86/gridrows/pkg/transaction"
)

// session is a loaded model plus the records it was built from.
type session struct {
	opts    *rootOptions
	cfg     config.Config
	grid    *rowmodel.ClientSide
	records []model.Record
}

// configFile returns the config path in use: the flag, ./gridrows.yaml, or
// the user config file. Empty means built-in defaults.
func (o *rootOptions) configFile() string {
	switch {
	case o.configPath != "":
		return o.configPath
	case fileExists(config.FileName):
		return config.FileName
	case fileExists(config.ConfigPath()):
		return config.ConfigPath()
	}
	return ""
}

func (o *rootOptions) loadConfig() (config.Config, error) {
	path := o.configFile()
	if path == "" {
		return config.DefaultConfig(), nil
	}
	return config.LoadFrom(path)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func (o *rootOptions) newSession(ctx context.Context) (*session, error) {
	if len(o.dataPaths) == 0 {
		return nil, fmt.Errorf("%w: at least one --data file is required", errUsage)
	}
	s := &session{opts: o}
	if err := s.configure(); err != nil {
		return nil, err
	}
	if err := s.reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// configure reads the config and starts an empty model from it. On error
// the session keeps its previous model.
func (s *session) configure() error {
	cfg, err := s.opts.loadConfig()
	if err != nil {
		return err
	}
	modelOpts, err := cfg.ToOptions()
	if err != nil {
		return err
	}
	modelOpts.Sink = diag.NewZapSink(s.opts.logger)

	grid, err := rowmodel.New(modelOpts)
	if err != nil {
		return err
	}
	s.cfg, s.grid, s.records = cfg, grid, nil
	return nil
}

// reload reads every data file again. With an id field the difference is
// applied as one transaction so row state survives; otherwise the model is
// rebuilt.
func (s *session) reload(ctx context.Context) error {
	recs, err := datasource.LoadPaths(ctx, s.opts.dataPaths, s.opts.table)
	if err != nil {
		return err
	}
	log := s.opts.logger

	if s.records == nil || s.cfg.IDField == "" {
		res := s.grid.SetRowData(recs)
		s.records = recs
		log.Info("loaded records",
			zap.Int("records", len(recs)),
			zap.Int("rows", s.grid.RowCount()),
			zap.Int("diagnostics", len(res.Diagnostics)))
		return nil
	}

	d, err := datasource.DiffRecords(s.records, recs, s.cfg.IDField)
	if err != nil {
		return err
	}
	s.records = recs
	if d.Empty() {
		log.Debug("reload without changes", zap.Int("records", d.Unchanged))
		return nil
	}
	res := s.grid.ApplyTransaction(d.Transaction())
	log.Info("applied reload", zap.String("changes", d.Summary()), zap.Int("diagnostics", len(res.Diagnostics)))
	return nil
}

func (s *session) apply(path string) (transaction.Result, error) {
	tx, err := datasource.ReadTransaction(path)
	if err != nil {
		return transaction.Result{}, err
	}
	return s.grid.ApplyTransaction(tx), nil
}

func (s *session) columns() []string {
	if len(s.opts.columns) > 0 {
		return s.opts.columns
	}
	cols := make([]string, 0, len(s.cfg.Columns))
	for _, c := range s.cfg.Columns {
		cols = append(cols, c.Field)
	}
	return cols
}

func (s *session) print(w io.Writer) error {
	if s.opts.expandAll {
		s.grid.ExpandAll()
	}
	r, width := terminalRenderer(w, s.opts.noColor)
	return render.Table(w, s.grid, render.Options{
		Columns:  s.columns(),
		Width:    width,
		ShowIDs:  s.opts.showIDs,
		Renderer: r,
	})
}

// terminalRenderer returns a styled renderer and the width when w is a
// terminal, otherwise nil and 0.
func terminalRenderer(w io.Writer, noColor bool) (*lipgloss.Renderer, int) {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return nil, 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		width = 0
	}
	if noColor {
		return nil, width
	}
	return lipgloss.NewRenderer(f), width
}

func printTimings(w io.Writer) {
	stats := metrics.AllStats()
	if len(stats) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PASS\tCOUNT\tTOTAL ms\tAVG ms\tMAX ms")
	for _, st := range stats {
		fmt.Fprintf(tw, "%s\t%d\t%.3f\t%.3f\t%.3f\n", st.Name, st.Count, st.TotalMs, st.AvgMs, st.MaxMs)
	}
	tw.Flush()
}
