// Package filter decides which rows are visible. Column predicates are
// combined by conjunction; groups are included either because a descendant is
// visible (the default) or because their own aggregated value passes
// (exclude-children).
package filter

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/vanderheijden86/gridrows/pkg/model"
)

// Operator names a column predicate.
type Operator string

const (
	Equals             Operator = "equals"
	NotEqual           Operator = "notEqual"
	LessThan           Operator = "lessThan"
	LessThanOrEqual    Operator = "lessThanOrEqual"
	GreaterThan        Operator = "greaterThan"
	GreaterThanOrEqual Operator = "greaterThanOrEqual"
	InRange            Operator = "inRange"
	Contains           Operator = "contains"
	NotContains        Operator = "notContains"
	StartsWith         Operator = "startsWith"
	EndsWith           Operator = "endsWith"
	Blank              Operator = "blank"
	NotBlank           Operator = "notBlank"
	InSet              Operator = "set"
)

// Type optionally forces how values are compared.
const (
	TypeAuto   = ""
	TypeText   = "text"
	TypeNumber = "number"
)

// ErrInvalidModel indicates a filter model that cannot be evaluated.
var ErrInvalidModel = errors.New("invalid filter model")

// ColumnFilter is one column's predicate.
type ColumnFilter struct {
	Type          string   `yaml:"type,omitempty" json:"type,omitempty"`
	Operator      Operator `yaml:"operator" json:"operator"`
	Operand       any      `yaml:"operand,omitempty" json:"operand,omitempty"`
	OperandTo     any      `yaml:"operand_to,omitempty" json:"operandTo,omitempty"`
	Values        []any    `yaml:"values,omitempty" json:"values,omitempty"`
	CaseSensitive bool     `yaml:"case_sensitive,omitempty" json:"caseSensitive,omitempty"`
}

// Model maps column keys to predicates.
type Model map[string]ColumnFilter

// Columns returns the filtered columns, sorted.
func (m Model) Columns() []string {
	out := make([]string, 0, len(m))
	for c := range m {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Validate checks every column predicate.
func (m Model) Validate() error {
	for _, col := range m.Columns() {
		if strings.TrimSpace(col) == "" {
			return fmt.Errorf("%w: empty column key", ErrInvalidModel)
		}
		if err := m[col].validate(); err != nil {
			return fmt.Errorf("column %q: %w", col, err)
		}
	}
	return nil
}

func (f ColumnFilter) validate() error {
	switch f.Type {
	case TypeAuto, TypeText, TypeNumber:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidModel, f.Type)
	}
	switch f.Operator {
	case Blank, NotBlank, InSet:
		return nil
	case Equals, NotEqual, LessThan, LessThanOrEqual, GreaterThan, GreaterThanOrEqual,
		Contains, NotContains, StartsWith, EndsWith:
		if f.Operand == nil {
			return fmt.Errorf("%w: %s needs an operand", ErrInvalidModel, f.Operator)
		}
	case InRange:
		if f.Operand == nil || f.OperandTo == nil {
			return fmt.Errorf("%w: inRange needs operand and operandTo", ErrInvalidModel)
		}
	default:
		return fmt.Errorf("%w: unknown operator %q", ErrInvalidModel, f.Operator)
	}
	if f.Type == TypeNumber {
		for _, v := range []any{f.Operand, f.OperandTo} {
			if v == nil {
				continue
			}
			if _, ok := model.AsFloat(v); !ok {
				return fmt.Errorf("%w: operand %v is not a number", ErrInvalidModel, v)
			}
		}
	}
	return nil
}

// Match reports whether v satisfies the predicate.
func (f ColumnFilter) Match(v any) bool {
	switch f.Operator {
	case Blank:
		return model.IsBlank(v)
	case NotBlank:
		return !model.IsBlank(v)
	case InSet:
		return slices.ContainsFunc(f.Values, func(x any) bool {
			if x == nil || v == nil {
				return x == nil && v == nil
			}
			return model.Equal(x, v)
		})
	case Contains, NotContains, StartsWith, EndsWith:
		return f.matchText(v)
	}

	if v == nil {
		return f.Operator == NotEqual
	}
	c := f.compare(v, f.Operand)
	switch f.Operator {
	case Equals:
		return c == 0
	case NotEqual:
		return c != 0
	case LessThan:
		return c < 0
	case LessThanOrEqual:
		return c <= 0
	case GreaterThan:
		return c > 0
	case GreaterThanOrEqual:
		return c >= 0
	case InRange:
		return c >= 0 && f.compare(v, f.OperandTo) <= 0
	}
	return false
}

func (f ColumnFilter) compare(v, operand any) int {
	switch f.Type {
	case TypeNumber:
		a, ok := model.AsFloat(v)
		if !ok {
			return -1
		}
		b, _ := model.AsFloat(operand)
		return model.Compare(a, b)
	case TypeText:
		return strings.Compare(f.fold(fmt.Sprint(v)), f.fold(fmt.Sprint(operand)))
	}
	if s, ok := v.(string); ok {
		if o, ok := operand.(string); ok {
			return strings.Compare(f.fold(s), f.fold(o))
		}
	}
	if a, ok := v.(model.AvgValue); ok {
		v = a.Value()
	}
	return model.Compare(v, operand)
}

func (f ColumnFilter) matchText(v any) bool {
	if v == nil {
		return f.Operator == NotContains
	}
	s := f.fold(fmt.Sprint(v))
	o := f.fold(fmt.Sprint(f.Operand))
	switch f.Operator {
	case Contains:
		return strings.Contains(s, o)
	case NotContains:
		return !strings.Contains(s, o)
	case StartsWith:
		return strings.HasPrefix(s, o)
	default:
		return strings.HasSuffix(s, o)
	}
}

func (f ColumnFilter) fold(s string) string {
	if f.CaseSensitive {
		return s
	}
	return strings.ToLower(s)
}
