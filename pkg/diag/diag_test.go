package diag

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestCollectorCountsByCategory(t *testing.T) {
	var c Collector
	c.Report(Diagnostic{Category: Data, Op: "add"})
	c.Report(Diagnostic{Category: Invariant, Op: "add"})
	c.Report(Diagnostic{Category: Data, Op: "update"})

	if got := c.Count(Data); got != 2 {
		t.Errorf("expected 2 data diagnostics, got %d", got)
	}
	if got := len(c.All()); got != 3 {
		t.Errorf("expected 3 diagnostics, got %d", got)
	}
	c.Reset()
	if got := len(c.All()); got != 0 {
		t.Errorf("expected empty collector after reset, got %d", got)
	}
}

func TestDiagnosticUnwrap(t *testing.T) {
	sentinel := errors.New("boom")
	d := Diagnostic{Category: Config, Op: "setSortModel", Err: sentinel}
	if !errors.Is(d, sentinel) {
		t.Error("expected diagnostic to unwrap to its error")
	}
	if d.Error() == "" {
		t.Error("expected non-empty message")
	}
}

func TestZapSinkWritesStructuredFields(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	sink := NewZapSink(zap.New(core))

	sink.Report(Diagnostic{Category: Invariant, Op: "add", RowID: "r1", Err: errors.New("cycle")})

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["category"] != "invariant" || fields["row_id"] != "r1" {
		t.Errorf("unexpected fields: %v", fields)
	}
}

func TestTeeForwardsToAllSinks(t *testing.T) {
	var a, b Collector
	Tee(&a, nil, &b).Report(Diagnostic{Category: Data})
	if a.Count(Data) != 1 || b.Count(Data) != 1 {
		t.Error("expected both collectors to receive the diagnostic")
	}
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := NewLogger("loud", "json"); err == nil {
		t.Error("expected error for unknown level")
	}
	l, err := NewLogger("debug", "console")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	l.Debug("ok")
}
