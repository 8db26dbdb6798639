// Package aggregate computes per-column reductions over group subtrees. Groups
// are recombined from their direct children's partial states, so an edit only
// costs the lineage it touched.
package aggregate

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/vanderheijden86/gridrows/pkg/model"
)

// Combiner is an incrementally combinable reduction. Partials flow up the
// tree: leaves fold raw values in with AddValue, parents fold child partials
// in with Merge.
type Combiner interface {
	Zero() any
	AddValue(partial, v any) any
	Merge(partial, child any) any
	Result(partial any) any
}

// ReducerFunc reduces the raw values of a whole subtree, in source order.
// Reducers are not combinable, so a dirty group re-walks its subtree.
type ReducerFunc func(values []any) any

// Func is a named aggregation. Exactly one of Combiner and Reducer is set.
type Func struct {
	Name     string
	Combiner Combiner
	Reducer  ReducerFunc
}

// ErrUnknownFunc indicates an aggregation name that is not registered.
var ErrUnknownFunc = errors.New("unknown aggregation function")

// ErrInvalidFunc indicates a Func with neither or both implementations.
var ErrInvalidFunc = errors.New("invalid aggregation function")

func (f Func) validate() error {
	if (f.Combiner == nil) == (f.Reducer == nil) {
		return fmt.Errorf("%w %q: exactly one of combiner and reducer must be set", ErrInvalidFunc, f.Name)
	}
	return nil
}

// Registry maps names to aggregation functions.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewRegistry returns a registry holding the built-in functions:
// sum, count, avg, min, max, first and last.
func NewRegistry() *Registry {
	r := &Registry{funcs: make(map[string]Func)}
	for _, f := range []Func{
		{Name: "sum", Combiner: sumCombiner{}},
		{Name: "count", Combiner: countCombiner{}},
		{Name: "avg", Combiner: avgCombiner{}},
		{Name: "min", Combiner: extremeCombiner{sign: -1}},
		{Name: "max", Combiner: extremeCombiner{sign: 1}},
		{Name: "first", Reducer: first},
		{Name: "last", Reducer: last},
	} {
		r.funcs[f.Name] = f
	}
	return r
}

// Register adds or replaces a function.
func (r *Registry) Register(f Func) error {
	if f.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidFunc)
	}
	if err := f.validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.funcs[f.Name] = f
	r.mu.Unlock()
	return nil
}

// Lookup returns the function registered under name.
func (r *Registry) Lookup(name string) (Func, error) {
	r.mu.RLock()
	f, ok := r.funcs[name]
	r.mu.RUnlock()
	if !ok {
		return Func{}, fmt.Errorf("%w: %q", ErrUnknownFunc, name)
	}
	return f, nil
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.funcs))
	for n := range r.funcs {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

type sumCombiner struct{}

func (sumCombiner) Zero() any { return float64(0) }

func (sumCombiner) AddValue(p, v any) any {
	if f, ok := model.AsFloat(v); ok {
		return p.(float64) + f
	}
	return p
}

func (sumCombiner) Merge(p, c any) any {
	if f, ok := c.(float64); ok {
		return p.(float64) + f
	}
	return p
}

func (sumCombiner) Result(p any) any { return p }

// countCombiner counts data rows, whatever their value.
type countCombiner struct{}

func (countCombiner) Zero() any { return int64(0) }

func (countCombiner) AddValue(p, _ any) any { return p.(int64) + 1 }

func (countCombiner) Merge(p, c any) any {
	if n, ok := c.(int64); ok {
		return p.(int64) + n
	}
	return p
}

func (countCombiner) Result(p any) any { return p }

type avgCombiner struct{}

func (avgCombiner) Zero() any { return model.AvgValue{} }

func (avgCombiner) AddValue(p, v any) any {
	if f, ok := model.AsFloat(v); ok {
		return p.(model.AvgValue).Add(model.AvgValue{Count: 1, Sum: f})
	}
	return p
}

func (avgCombiner) Merge(p, c any) any {
	if a, ok := c.(model.AvgValue); ok {
		return p.(model.AvgValue).Add(a)
	}
	return p
}

func (avgCombiner) Result(p any) any { return p }

// extremeCombiner keeps the smallest (sign -1) or largest (sign 1) non-nil value.
type extremeCombiner struct{ sign int }

func (extremeCombiner) Zero() any { return nil }

func (e extremeCombiner) AddValue(p, v any) any {
	if v == nil {
		return p
	}
	if p == nil || model.Compare(v, p)*e.sign > 0 {
		return v
	}
	return p
}

func (e extremeCombiner) Merge(p, c any) any { return e.AddValue(p, c) }

func (extremeCombiner) Result(p any) any { return p }

func first(values []any) any {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

func last(values []any) any {
	for i := len(values) - 1; i >= 0; i-- {
		if values[i] != nil {
			return values[i]
		}
	}
	return nil
}
