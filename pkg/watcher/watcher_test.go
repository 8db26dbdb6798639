package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func waitBatch(t *testing.T, w *Watcher, timeout time.Duration) []string {
	t.Helper()
	select {
	case batch := <-w.Changes():
		return batch
	case <-time.After(timeout):
		t.Fatalf("no change batch within %v", timeout)
		return nil
	}
}

func TestDebouncerCoalescesBursts(t *testing.T) {
	d := NewDebouncer(40 * time.Millisecond)
	var calls atomic.Int32
	var last atomic.Int32
	for i := range 8 {
		d.Trigger(func() {
			calls.Add(1)
			last.Store(int32(i))
		})
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(120 * time.Millisecond)

	if n := calls.Load(); n != 1 {
		t.Errorf("expected 1 call, got %d", n)
	}
	if got := last.Load(); got != 7 {
		t.Errorf("expected the latest callback to run, got trigger %d", got)
	}
}

func TestDebouncerCancel(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	var called atomic.Bool
	d.Trigger(func() { called.Store(true) })
	d.Cancel()
	time.Sleep(80 * time.Millisecond)
	if called.Load() {
		t.Error("callback ran after Cancel")
	}
	if NewDebouncer(0).Duration() != DefaultDebounceDuration {
		t.Error("zero duration should mean the default")
	}
}

func TestNew(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, ErrNoPaths) {
		t.Errorf("expected ErrNoPaths, got %v", err)
	}

	dir := t.TempDir()
	a := filepath.Join(dir, "a.jsonl")
	w, err := New([]string{a, a, filepath.Join(dir, ".", "a.jsonl")}, WithPollInterval(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if got := w.Paths(); !reflect.DeepEqual(got, []string{a}) {
		t.Errorf("Paths() = %v, want [%s]", got, a)
	}
	if w.PollInterval() != time.Second {
		t.Errorf("PollInterval() = %v", w.PollInterval())
	}
}

func TestPollingReportsChangedPaths(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.jsonl")
	b := filepath.Join(dir, "b.jsonl")
	writeFile(t, a, `{"id":"1"}`)
	writeFile(t, b, `{"id":"2"}`)

	w, err := New([]string{a, b},
		WithForcePoll(true),
		WithPollInterval(20*time.Millisecond),
		WithDebounce(60*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	if !w.Polling() {
		t.Fatal("expected polling mode")
	}

	writeFile(t, b, `{"id":"2","v":1}`)
	if got := waitBatch(t, w, 2*time.Second); !reflect.DeepEqual(got, []string{b}) {
		t.Errorf("batch = %v, want [%s]", got, b)
	}

	writeFile(t, b, `{"id":"2","v":22}`)
	writeFile(t, a, `{"id":"1","v":11}`)
	if got := waitBatch(t, w, 2*time.Second); !reflect.DeepEqual(got, []string{a, b}) {
		t.Errorf("batch = %v, want both paths in watch order", got)
	}
}

func TestPollingSeesCreation(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "later.jsonl")

	w, err := New([]string{a}, WithForcePoll(true), WithPollInterval(20*time.Millisecond), WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	writeFile(t, a, `{"id":"1"}`)
	if got := waitBatch(t, w, 2*time.Second); len(got) != 1 || got[0] != a {
		t.Errorf("batch = %v", got)
	}
}

func TestPollingReportsRemoval(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.jsonl")
	writeFile(t, a, `{"id":"1"}`)

	errs := make(chan error, 4)
	w, err := New([]string{a},
		WithForcePoll(true),
		WithPollInterval(20*time.Millisecond),
		WithOnError(func(err error) { errs <- err }))
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.Remove(a); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-errs:
		if !errors.Is(err, ErrFileRemoved) {
			t.Errorf("expected ErrFileRemoved, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("removal not reported")
	}
}

func TestNotifyReportsWrites(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.jsonl")
	writeFile(t, a, `{"id":"1"}`)

	// The short poll interval covers platforms without fsnotify.
	w, err := New([]string{a}, WithPollInterval(50*time.Millisecond), WithDebounce(30*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	writeFile(t, filepath.Join(dir, "other.jsonl"), `{}`)
	writeFile(t, a, `{"id":"1","v":2}`)
	if got := waitBatch(t, w, 3*time.Second); !reflect.DeepEqual(got, []string{a}) {
		t.Errorf("batch = %v, want only the watched file", got)
	}
}

func TestEnvForcesPolling(t *testing.T) {
	t.Setenv(ForcePollEnv, "yes")
	w, err := New([]string{filepath.Join(t.TempDir(), "a.jsonl")})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	if !w.Polling() {
		t.Error("expected polling when the env var is set")
	}
}

func TestStartStop(t *testing.T) {
	w, err := New([]string{filepath.Join(t.TempDir(), "a.jsonl")}, WithForcePoll(true))
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start: expected ErrAlreadyStarted, got %v", err)
	}
	if !w.Started() {
		t.Error("expected Started after Start")
	}
	w.Stop()
	w.Stop()
	if w.Started() {
		t.Error("expected stopped")
	}
	if err := w.Start(); err != nil {
		t.Errorf("restart failed: %v", err)
	}
	w.Stop()
}

func TestEnvBool(t *testing.T) {
	tests := map[string]bool{"1": true, "TRUE": true, " on ": true, "y": true, "0": false, "no": false, "": false}
	for v, want := range tests {
		t.Setenv("GRIDROWS_TEST_BOOL", v)
		if got := envBool("GRIDROWS_TEST_BOOL"); got != want {
			t.Errorf("envBool(%q) = %v, want %v", v, got, want)
		}
	}
}

func TestRunReloadsUntilCancelled(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.jsonl")
	writeFile(t, a, `{"id":"1"}`)

	w, err := New([]string{a}, WithForcePoll(true), WithPollInterval(20*time.Millisecond), WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	reloaded := make(chan []string, 4)
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, w, func(_ context.Context, changed []string) error {
			reloaded <- changed
			return nil
		}, nil)
	}()

	// Let Run snapshot the file before it changes.
	deadline := time.Now().Add(time.Second)
	for !w.Started() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	writeFile(t, a, `{"id":"1","v":3}`)

	select {
	case got := <-reloaded:
		if !reflect.DeepEqual(got, []string{a}) {
			t.Errorf("reload got %v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reload not called")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if w.Started() {
		t.Error("Run should stop the watcher")
	}
}

func TestRunReportsReloadErrors(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.jsonl")
	writeFile(t, a, `{"id":"1"}`)

	w, err := New([]string{a}, WithForcePoll(true), WithPollInterval(20*time.Millisecond), WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	var mu sync.Mutex
	var reported []error
	gotErr := make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = Run(ctx, w, func(context.Context, []string) error { return boom }, func(err error) {
			mu.Lock()
			reported = append(reported, err)
			mu.Unlock()
			select {
			case gotErr <- struct{}{}:
			default:
			}
		})
	}()

	deadline := time.Now().Add(time.Second)
	for !w.Started() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	writeFile(t, a, `{"id":"1","v":42}`)

	select {
	case <-gotErr:
	case <-time.After(2 * time.Second):
		t.Fatal("reload error not reported")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(reported) == 0 || !errors.Is(reported[0], boom) {
		t.Errorf("expected boom, got %v", reported)
	}
}
