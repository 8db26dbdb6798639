// Command gridrows loads records into a hierarchical row model and prints
// the grouped, filtered, sorted and aggregated rows as a tree table.
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vanderheijden86/gridrows/pkg/debug"
	"github.com/vanderheijden86/gridrows/pkg/diag"
	"github.com/vanderheijden86/gridrows/pkg/metrics"
	"github.com/vanderheijden86/gridrows/pkg/version"
)

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

var errUsage = errors.New("usage")

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	dataPaths  []string
	table      string
	columns    []string
	logLevel   string
	logFormat  string
	noColor    bool
	showIDs    bool
	expandAll  bool
	timings    bool

	logger *zap.Logger
}

func newRootCommand() *cobra.Command {
	o := &rootOptions{logLevel: "warn", logFormat: "console"}

	cmd := &cobra.Command{
		Use:           "gridrows",
		Short:         "Build and print hierarchical row models from record files",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := diag.NewLogger(o.logLevel, o.logFormat)
			if err != nil {
				return fmt.Errorf("%w: %w", errUsage, err)
			}
			o.logger = logger
			if strings.EqualFold(o.logLevel, "debug") {
				debug.SetLogger(logger)
			}
			metrics.SetEnabled(o.timings || metrics.Enabled())
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if o.timings {
				printTimings(cmd.ErrOrStderr())
			}
			if o.logger != nil {
				_ = o.logger.Sync()
			}
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true

	f := cmd.PersistentFlags()
	f.StringVarP(&o.configPath, "config", "c", "", "Path to the gridrows.yaml config (default: ./gridrows.yaml, then the user config dir)")
	f.StringSliceVarP(&o.dataPaths, "data", "d", nil, "Record file(s): .json, .jsonl or SQLite; repeat or comma-separate")
	f.StringVar(&o.table, "table", "", "SQLite table to read (default \"rows\")")
	f.StringSliceVar(&o.columns, "columns", nil, "Columns to print (default: the configured aggregation columns)")
	f.StringVar(&o.logLevel, "log-level", o.logLevel, "Log level (debug, info, warn, error)")
	f.StringVar(&o.logFormat, "log-format", o.logFormat, "Log format (console, json)")
	f.BoolVar(&o.noColor, "no-color", false, "Disable colored output")
	f.BoolVar(&o.showIDs, "show-ids", false, "Show row ids next to keys")
	f.BoolVar(&o.expandAll, "expand-all", false, "Expand every group before printing")
	f.BoolVar(&o.timings, "timings", false, "Print recompute pass timings to stderr")

	cmd.AddCommand(newShowCommand(o), newApplyCommand(o), newWatchCommand(o), newConfigCommand(o))
	return cmd
}
