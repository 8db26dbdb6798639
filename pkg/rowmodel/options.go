package rowmodel

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vanderheijden86/gridrows/pkg/aggregate"
	"github.com/vanderheijden86/gridrows/pkg/diag"
	"github.com/vanderheijden86/gridrows/pkg/filter"
	"github.com/vanderheijden86/gridrows/pkg/hierarchy"
	"github.com/vanderheijden86/gridrows/pkg/pinned"
	"github.com/vanderheijden86/gridrows/pkg/sorting"
)

// GrandTotal places the root aggregate footer.
type GrandTotal string

const (
	GrandTotalNone         GrandTotal = "none"
	GrandTotalBottom       GrandTotal = "bottom"
	GrandTotalPinnedTop    GrandTotal = "pinnedTop"
	GrandTotalPinnedBottom GrandTotal = "pinnedBottom"
)

// ErrInvalidGrandTotal indicates an unknown footer placement.
var ErrInvalidGrandTotal = errors.New("invalid grand total placement")

// ParseGrandTotal accepts the placement names case-insensitively. The empty
// string means none.
func ParseGrandTotal(s string) (GrandTotal, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return GrandTotalNone, nil
	case "bottom":
		return GrandTotalBottom, nil
	case "pinnedtop", "pinned_top":
		return GrandTotalPinnedTop, nil
	case "pinnedbottom", "pinned_bottom":
		return GrandTotalPinnedBottom, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidGrandTotal, s)
}

// Options configures a ClientSide model.
type Options struct {
	Hierarchy hierarchy.Config

	Aggregation []aggregate.ColumnAgg
	// Registry resolves aggregation function names. Nil means the built-ins.
	Registry *aggregate.Registry

	Filter          filter.Model
	ExcludeChildren bool

	Sort sorting.Model

	GrandTotal GrandTotal
	RowHeight  int

	// Sink receives every diagnostic. Nil discards them.
	Sink diag.Sink
}

// DefaultOptions returns a flat model with the first group level expanded
// and the default row height.
func DefaultOptions() Options {
	return Options{
		Hierarchy:  hierarchy.Config{GroupDefaultExpanded: 1},
		GrandTotal: GrandTotalNone,
		RowHeight:  pinned.DefaultRowHeight,
	}
}
