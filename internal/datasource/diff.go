package datasource

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/vanderheijden86/gridrows/pkg/model"
	"github.com/vanderheijden86/gridrows/pkg/transaction"
)

// ErrMissingID indicates a record without a usable id during a diff.
var ErrMissingID = errors.New("record has no id")

// RecordDiff describes how a reloaded record set differs from the previous
// one, keyed by id.
type RecordDiff struct {
	Added   []model.Record
	Changed []model.Record
	Removed []model.Record
	// Unchanged counts records present in both sets with equal fields.
	Unchanged int
}

// Empty returns true if the sets hold the same records.
func (d RecordDiff) Empty() bool {
	return len(d.Added)+len(d.Changed)+len(d.Removed) == 0
}

// Summary returns a human-readable summary of the differences
func (d RecordDiff) Summary() string {
	if d.Empty() {
		return fmt.Sprintf("no changes (%d records)", d.Unchanged)
	}
	var parts []string
	if n := len(d.Added); n > 0 {
		parts = append(parts, fmt.Sprintf("%d added", n))
	}
	if n := len(d.Changed); n > 0 {
		parts = append(parts, fmt.Sprintf("%d changed", n))
	}
	if n := len(d.Removed); n > 0 {
		parts = append(parts, fmt.Sprintf("%d removed", n))
	}
	return strings.Join(parts, ", ")
}

// Transaction converts the diff into one batch.
func (d RecordDiff) Transaction() transaction.Transaction {
	return transaction.Transaction{Add: d.Added, Update: d.Changed, Remove: d.Removed}
}

// DiffRecords compares two record sets by the string value of idField.
// Records keep their order from next; removals keep their order from prev.
func DiffRecords(prev, next []model.Record, idField string) (RecordDiff, error) {
	var d RecordDiff
	old := make(map[string]model.Record, len(prev))
	for i, r := range prev {
		id, err := recordID(r, idField)
		if err != nil {
			return d, fmt.Errorf("previous record %d: %w", i, err)
		}
		old[id] = r
	}

	seen := make(map[string]bool, len(next))
	for i, r := range next {
		id, err := recordID(r, idField)
		if err != nil {
			return d, fmt.Errorf("record %d: %w", i, err)
		}
		if seen[id] {
			return d, fmt.Errorf("record %d: duplicate id %q", i, id)
		}
		seen[id] = true
		o, ok := old[id]
		switch {
		case !ok:
			d.Added = append(d.Added, r)
		case len(model.ChangedColumns(o, r)) > 0:
			d.Changed = append(d.Changed, r)
		default:
			d.Unchanged++
		}
	}
	for _, r := range prev {
		id, _ := recordID(r, idField)
		if !seen[id] {
			d.Removed = append(d.Removed, r)
			seen[id] = true
		}
	}
	return d, nil
}

func recordID(r model.Record, field string) (string, error) {
	v, ok := r[field]
	if !ok || v == nil {
		return "", fmt.Errorf("%w: field %q", ErrMissingID, field)
	}
	switch x := v.(type) {
	case string:
		if x == "" {
			return "", fmt.Errorf("%w: field %q is empty", ErrMissingID, field)
		}
		return x, nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case map[string]any, []any:
		return "", fmt.Errorf("%w: field %q is %T", ErrMissingID, field, v)
	default:
		return fmt.Sprint(v), nil
	}
}
