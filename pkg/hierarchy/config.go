package hierarchy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vanderheijden86/gridrows/pkg/model"
)

// Mode selects how records are arranged into a tree.
type Mode int

const (
	// ModeFlat places every record at the root, optionally under group
	// column fillers.
	ModeFlat Mode = iota
	// ModePath arranges records by an ordered path of keys.
	ModePath
	// ModeParentID attaches each record under the record its parent field names.
	ModeParentID
	// ModeChildren reads pre-nested children from a field of each record.
	ModeChildren
)

func (m Mode) String() string {
	switch m {
	case ModeFlat:
		return "flat"
	case ModePath:
		return "path"
	case ModeParentID:
		return "parentId"
	case ModeChildren:
		return "children"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// OrphanPolicy decides what happens to records whose parent is not present.
type OrphanPolicy int

const (
	// OrphanAsRoot shows parked records at root level until the parent appears.
	OrphanAsRoot OrphanPolicy = iota
	// OrphanHide keeps parked records out of the tree until the parent appears.
	OrphanHide
)

// ParseOrphanPolicy maps "root"/"" and "hide" to a policy.
func ParseOrphanPolicy(s string) (OrphanPolicy, error) {
	switch strings.ToLower(s) {
	case "", "root":
		return OrphanAsRoot, nil
	case "hide":
		return OrphanHide, nil
	default:
		return OrphanAsRoot, fmt.Errorf("unknown orphan policy %q (expected root or hide)", s)
	}
}

// PathFunc extracts the ordered path of a record. The last element is the
// record's own key.
type PathFunc func(model.Record) ([]string, error)

// IDFunc extracts a stable id from a record.
type IDFunc func(model.Record) (string, error)

// Config describes the hierarchy. At most one of the path, parent-id and
// children sources may be set; GroupColumns only apply in flat mode.
type Config struct {
	PathFunc      PathFunc
	PathField     string
	ParentIDField string
	ChildrenField string
	GroupColumns  []string

	IDFunc  IDFunc
	IDField string

	Orphans OrphanPolicy

	// GroupDefaultExpanded is the number of levels expanded when a group is
	// created; -1 expands every level.
	GroupDefaultExpanded int
}

var (
	// ErrConflictingModes indicates that more than one hierarchy source is set.
	ErrConflictingModes = errors.New("conflicting hierarchy configuration")

	// ErrGroupColumnsWithTree indicates group columns combined with tree data.
	ErrGroupColumnsWithTree = errors.New("group columns cannot be combined with tree data")

	// ErrConflictingID indicates that both IDFunc and IDField are set.
	ErrConflictingID = errors.New("both id function and id field are set")
)

// Mode returns the configured mode.
func (c Config) Mode() Mode {
	switch {
	case c.PathFunc != nil || c.PathField != "":
		return ModePath
	case c.ParentIDField != "":
		return ModeParentID
	case c.ChildrenField != "":
		return ModeChildren
	default:
		return ModeFlat
	}
}

// Validate reports conflicting settings.
func (c Config) Validate() error {
	sources := 0
	if c.PathFunc != nil || c.PathField != "" {
		sources++
	}
	if c.PathFunc != nil && c.PathField != "" {
		return fmt.Errorf("%w: path function and path field", ErrConflictingModes)
	}
	if c.ParentIDField != "" {
		sources++
	}
	if c.ChildrenField != "" {
		sources++
	}
	if sources > 1 {
		return fmt.Errorf("%w: %d hierarchy sources set", ErrConflictingModes, sources)
	}
	if sources == 1 && len(c.GroupColumns) > 0 {
		return ErrGroupColumnsWithTree
	}
	if c.IDFunc != nil && c.IDField != "" {
		return ErrConflictingID
	}
	for _, col := range c.GroupColumns {
		if strings.TrimSpace(col) == "" {
			return fmt.Errorf("%w: empty group column", ErrConflictingModes)
		}
	}
	return nil
}

// StableIDs reports whether node ids come from the records.
func (c Config) StableIDs() bool {
	return c.IDFunc != nil || c.IDField != ""
}

// Grouped reports whether the configuration produces group rows.
func (c Config) Grouped() bool {
	return c.Mode() != ModeFlat || len(c.GroupColumns) > 0
}

func (c Config) expandedAt(level int) bool {
	if c.GroupDefaultExpanded < 0 {
		return true
	}
	return level < c.GroupDefaultExpanded
}
