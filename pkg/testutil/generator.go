// Package testutil provides record fixtures for the hierarchy modes and
// assertions over the resulting row trees. Generators are seeded and produce
// deterministic output for reproducible tests.
package testutil

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/vanderheijden86/gridrows/pkg/model"
)

// Field names used by every generated record.
const (
	FieldID       = "id"
	FieldPath     = "path"
	FieldParent   = "parent"
	FieldChildren = "children"
	FieldValue    = "v"
	FieldName     = "name"
)

// GeneratorConfig controls record generation.
type GeneratorConfig struct {
	Seed     int64  // 0 = 42
	IDPrefix string // default "r"
	MaxValue int    // values are drawn from [0, MaxValue); default 100
	// GroupValues are the values drawn for group columns.
	GroupValues map[string][]string
}

// DefaultConfig returns a config suitable for most tests.
func DefaultConfig() GeneratorConfig {
	return GeneratorConfig{
		Seed:     42,
		IDPrefix: "r",
		MaxValue: 100,
		GroupValues: map[string][]string{
			"country": {"Ireland", "Italy", "Peru"},
			"sport":   {"Golf", "Rowing"},
		},
	}
}

// Generator creates record fixtures.
type Generator struct {
	cfg  GeneratorConfig
	rng  *rand.Rand
	next int
}

// New creates a Generator with the given config.
func New(cfg GeneratorConfig) *Generator {
	if cfg.Seed == 0 {
		cfg.Seed = 42
	}
	if cfg.IDPrefix == "" {
		cfg.IDPrefix = "r"
	}
	if cfg.MaxValue <= 0 {
		cfg.MaxValue = 100
	}
	return &Generator{cfg: cfg, rng: rand.New(rand.NewSource(cfg.Seed))}
}

// NewDefault creates a Generator with default config.
func NewDefault() *Generator {
	return New(DefaultConfig())
}

// NextID returns a fresh record id.
func (g *Generator) NextID() string {
	id := fmt.Sprintf("%s%d", g.cfg.IDPrefix, g.next)
	g.next++
	return id
}

func (g *Generator) value() int {
	return g.rng.Intn(g.cfg.MaxValue)
}

func (g *Generator) record() model.Record {
	id := g.NextID()
	return model.Record{FieldID: id, FieldName: "name-" + id, FieldValue: g.value()}
}

// Flat returns n records carrying a value for every configured group column.
func (g *Generator) Flat(n int) []model.Record {
	cols := make([]string, 0, len(g.cfg.GroupValues))
	for c := range g.cfg.GroupValues {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	out := make([]model.Record, n)
	for i := range out {
		rec := g.record()
		for _, c := range cols {
			vals := g.cfg.GroupValues[c]
			rec[c] = vals[g.rng.Intn(len(vals))]
		}
		out[i] = rec
	}
	return out
}

// PathTree returns one leaf record per path of a complete tree with the
// given depth and breadth. Intermediate levels are left to filler groups.
// Leaves = breadth^depth.
func (g *Generator) PathTree(depth, breadth int) []model.Record {
	var out []model.Record
	var walk func(prefix []string, level int)
	walk = func(prefix []string, level int) {
		if level == depth {
			rec := g.record()
			rec[FieldPath] = append(append([]string(nil), prefix...), rec[FieldID].(string))
			out = append(out, rec)
			return
		}
		for i := 0; i < breadth; i++ {
			walk(append(prefix, fmt.Sprintf("g%d-%d", level, i)), level+1)
		}
	}
	if depth <= 0 {
		for i := 0; i < breadth; i++ {
			rec := g.record()
			rec[FieldPath] = []string{rec[FieldID].(string)}
			out = append(out, rec)
		}
		return out
	}
	walk(nil, 0)
	return out
}

// ParentTree returns a complete tree of depth levels in parent-id form,
// parents before children.
func (g *Generator) ParentTree(depth, breadth int) []model.Record {
	var out []model.Record
	level := []string{""}
	for d := 0; d < depth; d++ {
		var next []string
		for _, parent := range level {
			for i := 0; i < breadth; i++ {
				rec := g.record()
				if parent != "" {
					rec[FieldParent] = parent
				}
				out = append(out, rec)
				next = append(next, rec[FieldID].(string))
			}
		}
		level = next
	}
	return out
}

// Nested returns breadth top-level records, each holding a complete tree of
// depth-1 further levels in its children field.
func (g *Generator) Nested(depth, breadth int) []model.Record {
	var build func(level int) []any
	build = func(level int) []any {
		if level >= depth {
			return nil
		}
		kids := make([]any, breadth)
		for i := range kids {
			rec := g.record()
			if sub := build(level + 1); sub != nil {
				rec[FieldChildren] = sub
			}
			kids[i] = rec
		}
		return kids
	}
	top := build(0)
	out := make([]model.Record, len(top))
	for i, r := range top {
		out[i] = r.(model.Record)
	}
	return out
}

// TxFixture is a random batch against an existing record set.
type TxFixture struct {
	Add    []model.Record
	Update []model.Record
	Remove []model.Record
}

// RandomPathTx removes, updates and adds a few path-mode records. Updates
// copy the record and change its value, and move it under another prefix
// taken from an existing record half of the time.
func (g *Generator) RandomPathTx(existing []model.Record, size int) TxFixture {
	var tx TxFixture
	if len(existing) == 0 {
		tx.Add = g.PathTree(0, size)
		return tx
	}
	perm := g.rng.Perm(len(existing))
	used := 0
	take := func() (model.Record, bool) {
		if used >= len(perm) {
			return nil, false
		}
		r := existing[perm[used]]
		used++
		return r, true
	}
	for i := 0; i < size; i++ {
		switch g.rng.Intn(3) {
		case 0:
			if r, ok := take(); ok {
				tx.Remove = append(tx.Remove, model.Record{FieldID: r[FieldID]})
			}
		case 1:
			r, ok := take()
			if !ok {
				continue
			}
			u := make(model.Record, len(r))
			for k, v := range r {
				u[k] = v
			}
			u[FieldValue] = g.value()
			if g.rng.Intn(2) == 0 {
				other := existing[g.rng.Intn(len(existing))][FieldPath].([]string)
				path := append([]string(nil), other[:len(other)-1]...)
				u[FieldPath] = append(path, u[FieldID].(string))
			}
			tx.Update = append(tx.Update, u)
		default:
			other := existing[g.rng.Intn(len(existing))][FieldPath].([]string)
			rec := g.record()
			path := append([]string(nil), other[:len(other)-1]...)
			rec[FieldPath] = append(path, rec[FieldID].(string))
			tx.Add = append(tx.Add, rec)
		}
	}
	return tx
}

// ToJSONL renders records one JSON object per line.
func ToJSONL(records []model.Record) string {
	var sb strings.Builder
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			panic(fmt.Sprintf("testutil: marshal record: %v", err))
		}
		sb.Write(data)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Quick helpers with default config.

// QuickPath returns a default path tree.
func QuickPath(depth, breadth int) []model.Record { return NewDefault().PathTree(depth, breadth) }

// QuickParent returns a default parent-id tree.
func QuickParent(depth, breadth int) []model.Record { return NewDefault().ParentTree(depth, breadth) }

// QuickNested returns a default nested tree.
func QuickNested(depth, breadth int) []model.Record { return NewDefault().Nested(depth, breadth) }

// QuickFlat returns n default flat records.
func QuickFlat(n int) []model.Record { return NewDefault().Flat(n) }
