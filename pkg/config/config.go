// Package config loads grid options from gridrows.yaml.
//
// The default file follows the XDG Base Directory specification:
//   - Config: ~/.config/gridrows/gridrows.yaml
//
// A typical file:
//
//	hierarchy:
//	  path_field: path
//	id_field: id
//	columns:
//	  - field: amount
//	    agg_func: sum
//	sort:
//	  - column: amount
//	    direction: desc
//	filter:
//	  model:
//	    amount: {operator: greaterThan, operand: 10}
//	  exclude_children: true
//	grand_total: bottom
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vanderheijden86/gridrows/pkg/aggregate"
	"github.com/vanderheijden86/gridrows/pkg/filter"
	"github.com/vanderheijden86/gridrows/pkg/hierarchy"
	"github.com/vanderheijden86/gridrows/pkg/model"
	"github.com/vanderheijden86/gridrows/pkg/pinned"
	"github.com/vanderheijden86/gridrows/pkg/rowmodel"
	"github.com/vanderheijden86/gridrows/pkg/sorting"
)

// FileName is the default config file name.
const FileName = "gridrows.yaml"

// HierarchyConfig selects how records form a tree. At most one source may
// be set.
type HierarchyConfig struct {
	PathField string `yaml:"path_field,omitempty"`
	// PathSeparator splits a string path field, e.g. "/" for "A/B/x".
	PathSeparator string   `yaml:"path_separator,omitempty"`
	ParentIDField string   `yaml:"parent_id_field,omitempty"`
	ChildrenField string   `yaml:"children_field,omitempty"`
	GroupColumns  []string `yaml:"group_columns,omitempty"`
}

// ColumnConfig is one aggregated column.
type ColumnConfig struct {
	Field              string `yaml:"field"`
	AggFunc            string `yaml:"agg_func"`
	FilteredOnly       bool   `yaml:"filtered_only,omitempty"`
	OnlyChangedColumns bool   `yaml:"only_changed_columns,omitempty"`
}

// FilterConfig holds the filter model and its child policy.
type FilterConfig struct {
	Model           filter.Model `yaml:"model,omitempty"`
	ExcludeChildren bool         `yaml:"exclude_children,omitempty"`
}

// Config is the top-level gridrows configuration.
type Config struct {
	Hierarchy            HierarchyConfig `yaml:"hierarchy,omitempty"`
	IDField              string          `yaml:"id_field,omitempty"`
	OrphanPolicy         string          `yaml:"orphan_policy,omitempty"` // root, hide
	Columns              []ColumnConfig  `yaml:"columns,omitempty"`
	Sort                 sorting.Model   `yaml:"sort,omitempty"`
	Filter               FilterConfig    `yaml:"filter,omitempty"`
	GroupDefaultExpanded int             `yaml:"group_default_expanded"`
	GrandTotal           string          `yaml:"grand_total,omitempty"` // none, bottom, pinnedTop, pinnedBottom
	RowHeight            int             `yaml:"row_height,omitempty"`
}

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// DefaultConfig returns a flat grid with the first level expanded.
func DefaultConfig() Config {
	return Config{
		OrphanPolicy:         "root",
		GroupDefaultExpanded: 1,
		GrandTotal:           string(rowmodel.GrandTotalNone),
		RowHeight:            pinned.DefaultRowHeight,
	}
}

// ConfigDir returns the XDG config directory for gridrows.
func ConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "gridrows")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "gridrows")
}

// ConfigPath returns the full path to the default gridrows.yaml.
func ConfigPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, FileName)
}

// Load reads the config file from the XDG config directory.
// Returns DefaultConfig if the file doesn't exist.
func Load() (Config, error) {
	path := ConfigPath()
	if path == "" {
		return DefaultConfig(), nil
	}
	return LoadFrom(path)
}

// LoadFrom reads config from a specific path.
// Returns DefaultConfig if the file doesn't exist.
func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(expandHome(path))
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("parsing config: %w", err)
	}
	if cfg.RowHeight == 0 {
		cfg.RowHeight = pinned.DefaultRowHeight
	}
	for i, k := range cfg.Sort {
		d, err := sorting.ParseDirection(string(k.Direction))
		if err != nil {
			return DefaultConfig(), fmt.Errorf("%w: sort: %w", ErrInvalid, err)
		}
		cfg.Sort[i].Direction = d
	}
	if err := cfg.Validate(); err != nil {
		return DefaultConfig(), err
	}
	return cfg, nil
}

// SaveTo writes the config to a specific path.
func SaveTo(cfg Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// Validate checks every section without building a model.
func (c Config) Validate() error {
	if _, err := c.hierarchy(); err != nil {
		return err
	}
	if _, err := c.aggregation(); err != nil {
		return err
	}
	if err := c.Filter.Model.Validate(); err != nil {
		return fmt.Errorf("%w: filter: %w", ErrInvalid, err)
	}
	if err := c.Sort.Validate(); err != nil {
		return fmt.Errorf("%w: sort: %w", ErrInvalid, err)
	}
	if _, err := rowmodel.ParseGrandTotal(c.GrandTotal); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if c.RowHeight < 0 {
		return fmt.Errorf("%w: row_height %d", ErrInvalid, c.RowHeight)
	}
	if c.GroupDefaultExpanded < -1 {
		return fmt.Errorf("%w: group_default_expanded %d (use -1 for all)", ErrInvalid, c.GroupDefaultExpanded)
	}
	return nil
}

// ToOptions converts the file into model options.
func (c Config) ToOptions() (rowmodel.Options, error) {
	if err := c.Validate(); err != nil {
		return rowmodel.Options{}, err
	}
	h, _ := c.hierarchy()
	aggs, _ := c.aggregation()
	gt, _ := rowmodel.ParseGrandTotal(c.GrandTotal)

	opts := rowmodel.DefaultOptions()
	opts.Hierarchy = h
	opts.Aggregation = aggs
	opts.Filter = c.Filter.Model
	opts.ExcludeChildren = c.Filter.ExcludeChildren
	opts.Sort = c.Sort
	opts.GrandTotal = gt
	if c.RowHeight > 0 {
		opts.RowHeight = c.RowHeight
	}
	return opts, nil
}

func (c Config) hierarchy() (hierarchy.Config, error) {
	orphans, err := hierarchy.ParseOrphanPolicy(c.OrphanPolicy)
	if err != nil {
		return hierarchy.Config{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	h := hierarchy.Config{
		ParentIDField:        c.Hierarchy.ParentIDField,
		ChildrenField:        c.Hierarchy.ChildrenField,
		GroupColumns:         c.Hierarchy.GroupColumns,
		IDField:              c.IDField,
		Orphans:              orphans,
		GroupDefaultExpanded: c.GroupDefaultExpanded,
	}
	if f := c.Hierarchy.PathField; f != "" {
		if sep := c.Hierarchy.PathSeparator; sep != "" {
			h.PathFunc = splitPath(f, sep)
		} else {
			h.PathField = f
		}
	} else if c.Hierarchy.PathSeparator != "" {
		return hierarchy.Config{}, fmt.Errorf("%w: path_separator without path_field", ErrInvalid)
	}
	if err := h.Validate(); err != nil {
		return hierarchy.Config{}, fmt.Errorf("%w: hierarchy: %w", ErrInvalid, err)
	}
	return h, nil
}

func (c Config) aggregation() ([]aggregate.ColumnAgg, error) {
	reg := aggregate.NewRegistry()
	out := make([]aggregate.ColumnAgg, 0, len(c.Columns))
	for i, col := range c.Columns {
		if strings.TrimSpace(col.Field) == "" {
			return nil, fmt.Errorf("%w: columns[%d]: empty field", ErrInvalid, i)
		}
		if _, err := reg.Lookup(col.AggFunc); err != nil {
			return nil, fmt.Errorf("%w: columns[%d]: %w", ErrInvalid, i, err)
		}
		out = append(out, aggregate.ColumnAgg{
			Column:             col.Field,
			Func:               col.AggFunc,
			FilteredOnly:       col.FilteredOnly,
			OnlyChangedColumns: col.OnlyChangedColumns,
		})
	}
	return out, nil
}

// splitPath reads a delimited string path such as "A/B/x".
func splitPath(field, sep string) hierarchy.PathFunc {
	return func(rec model.Record) ([]string, error) {
		switch v := rec[field].(type) {
		case string:
			if v == "" {
				return nil, fmt.Errorf("field %q is empty", field)
			}
			return strings.Split(v, sep), nil
		case []any, []string:
			return nil, fmt.Errorf("field %q is a sequence, not a %q-separated string", field, sep)
		default:
			return nil, fmt.Errorf("field %q is %T", field, v)
		}
	}
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
