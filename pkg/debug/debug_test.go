package debug

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	prev := tracer.Load()
	core, logs := observer.New(zap.DebugLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { tracer.Store(prev) })
	return logs
}

func TestTraceWhenEnabled(t *testing.T) {
	logs := observe(t)

	Log("built %d rows", 3)
	LogEnterExit("refresh")()
	Dump("count", 7)

	entries := logs.All()
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
	if entries[0].Message != "built 3 rows" || entries[0].LoggerName != "trace" {
		t.Errorf("unexpected first entry %+v", entries[0])
	}
	if entries[1].Message != "enter" || entries[1].ContextMap()["op"] != "refresh" {
		t.Errorf("unexpected enter entry %+v", entries[1])
	}
	if entries[2].Message != "exit" {
		t.Errorf("unexpected exit entry %+v", entries[2])
	}
	if _, ok := entries[2].ContextMap()["elapsed"]; !ok {
		t.Error("exit entry should carry elapsed")
	}
	if got := entries[3].ContextMap()["type"]; got != "int" {
		t.Errorf("dump type = %v", got)
	}
}

func TestSilentWhenDisabled(t *testing.T) {
	logs := observe(t)
	SetLogger(nil)

	if Enabled() {
		t.Fatal("expected tracing off")
	}
	Log("hidden")
	Dump("x", 1)
	LogEnterExit("op")()
	Assert(false, "ignored while disabled")

	if logs.Len() != 0 {
		t.Errorf("expected no entries, got %d", logs.Len())
	}
}

func TestAssertPanics(t *testing.T) {
	logs := observe(t)
	defer func() {
		if recover() == nil {
			t.Error("expected a panic")
		}
		if logs.FilterMessage("assertion failed").Len() != 1 {
			t.Error("expected the failure to be logged")
		}
	}()
	Assert(true, "fine")
	Assert(false, "broken invariant")
}
