// Package debug traces row model passes at zap's debug level.
//
// Tracing is off until a logger is installed, either by the CLI at
// --log-level debug or by setting GRIDROWS_DEBUG:
//
//	GRIDROWS_DEBUG=1 gridrows show --data rows.json
package debug

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var tracer atomic.Pointer[zap.SugaredLogger]

func init() {
	if os.Getenv("GRIDROWS_DEBUG") != "" {
		if l, err := zap.NewDevelopment(); err == nil {
			SetLogger(l)
		}
	}
}

// SetLogger installs l as the trace sink. Nil turns tracing off.
func SetLogger(l *zap.Logger) {
	if l == nil {
		tracer.Store(nil)
		return
	}
	tracer.Store(l.Named("trace").Sugar())
}

// Enabled reports whether a trace logger is installed.
func Enabled() bool {
	return tracer.Load() != nil
}

// Log writes a printf-style trace line.
func Log(format string, args ...any) {
	if s := tracer.Load(); s != nil {
		s.Debugf(format, args...)
	}
}

// LogEnterExit traces entry and, when the returned function runs, exit with
// the elapsed time.
//
//	defer debug.LogEnterExit("hierarchy.Build")()
func LogEnterExit(name string) func() {
	s := tracer.Load()
	if s == nil {
		return func() {}
	}
	s.Debugw("enter", "op", name)
	start := time.Now()
	return func() {
		s.Debugw("exit", "op", name, "elapsed", time.Since(start))
	}
}

// Dump traces a value with its type.
func Dump(name string, v any) {
	if s := tracer.Load(); s != nil {
		s.Debugw("dump", "name", name, "type", fmt.Sprintf("%T", v), "value", v)
	}
}

// Assert panics with msg when cond is false. Only checked while tracing.
func Assert(cond bool, msg string) {
	s := tracer.Load()
	if s == nil || cond {
		return
	}
	s.Errorw("assertion failed", "msg", msg)
	panic("debug assertion failed: " + msg)
}
