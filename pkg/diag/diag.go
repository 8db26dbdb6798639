// Package diag is the diagnostic channel of the row model. Nothing in the row
// model fails a whole batch or configuration call: offending operations are
// skipped and reported here instead.
//
// # Categories
//
//   - Config: conflicting or invalid hierarchy, sort, filter or aggregation
//     configuration. The previous valid configuration stays in effect.
//   - Data: malformed records (missing path, parent or id fields). The record
//     degrades to a root-level leaf or is skipped.
//   - Invariant: cyclic parent references, duplicate ids within a batch. The
//     offending node or edge is excluded from the tree.
//
// # Usage
//
//	logger, _ := diag.NewLogger("info", "console")
//	sink := diag.NewZapSink(logger)
//	sink.Report(diag.Diagnostic{Category: diag.Data, Op: "add", RowID: "7", Err: err})
package diag

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Category classifies a diagnostic.
type Category string

const (
	Config    Category = "config"
	Data      Category = "data"
	Invariant Category = "invariant"
)

// Diagnostic describes one skipped or degraded operation.
type Diagnostic struct {
	Category Category
	Op       string // e.g. "add", "update", "remove", "setSortModel"
	RowID    string
	Err      error
}

func (d Diagnostic) Error() string {
	if d.RowID != "" {
		return fmt.Sprintf("%s %s (row %s): %v", d.Category, d.Op, d.RowID, d.Err)
	}
	return fmt.Sprintf("%s %s: %v", d.Category, d.Op, d.Err)
}

func (d Diagnostic) Unwrap() error {
	return d.Err
}

// Sink receives diagnostics.
type Sink interface {
	Report(d Diagnostic)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Diagnostic)

func (f SinkFunc) Report(d Diagnostic) { f(d) }

// Discard drops every diagnostic.
var Discard Sink = SinkFunc(func(Diagnostic) {})

// Collector keeps every diagnostic it receives.
type Collector struct {
	mu    sync.Mutex
	items []Diagnostic
}

func (c *Collector) Report(d Diagnostic) {
	c.mu.Lock()
	c.items = append(c.items, d)
	c.mu.Unlock()
}

// All returns a copy of the collected diagnostics.
func (c *Collector) All() []Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Diagnostic, len(c.items))
	copy(out, c.items)
	return out
}

// Count returns how many diagnostics of cat were collected.
func (c *Collector) Count(cat Category) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, d := range c.items {
		if d.Category == cat {
			n++
		}
	}
	return n
}

// Reset drops everything collected so far.
func (c *Collector) Reset() {
	c.mu.Lock()
	c.items = nil
	c.mu.Unlock()
}

// Tee forwards each diagnostic to every non-nil sink.
func Tee(sinks ...Sink) Sink {
	return SinkFunc(func(d Diagnostic) {
		for _, s := range sinks {
			if s != nil {
				s.Report(d)
			}
		}
	})
}

// ZapSink logs diagnostics as structured warnings.
type ZapSink struct {
	log *zap.Logger
}

// NewZapSink returns a sink writing to l. A nil logger yields a no-op logger.
func NewZapSink(l *zap.Logger) *ZapSink {
	if l == nil {
		l = zap.NewNop()
	}
	return &ZapSink{log: l}
}

func (s *ZapSink) Report(d Diagnostic) {
	fields := []zap.Field{
		zap.String("category", string(d.Category)),
		zap.String("op", d.Op),
		zap.Error(d.Err),
	}
	if d.RowID != "" {
		fields = append(fields, zap.String("row_id", d.RowID))
	}
	s.log.Warn("row model diagnostic", fields...)
}
