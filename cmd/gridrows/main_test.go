package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testConfig = `
hierarchy:
  path_field: path
id_field: id
columns:
  - field: v
    agg_func: sum
grand_total: bottom
group_default_expanded: -1
`

const testRows = `{"id":"1","path":["A","B","x"],"v":1}
{"id":"2","path":["A","B","y"],"v":2}
{"id":"3","path":["A","z"],"v":6}
{"id":"4","path":["C","w"],"v":10}
`

func writeFixture(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// row formats one line of the nine-cell label layout used by testRows.
func row(label, v string) string {
	return strings.TrimRight(fmt.Sprintf("%-9s  %6s", label, v), " ")
}

func TestShowPrintsTree(t *testing.T) {
	cfg := writeFixture(t, "gridrows.yaml", testConfig)
	data := writeFixture(t, "rows.jsonl", testRows)

	out, err := run(t, "show", "--config", cfg, "--data", data)
	require.NoError(t, err)

	want := strings.Join([]string{
		row("row", "v"),
		row("▾ A", "9"),
		row("├── ▾ B", "3"),
		row("│   ├── x", "1"),
		row("│   └── y", "2"),
		row("└── z", "6"),
		row("▾ C", "10"),
		row("└── w", "10"),
		row("Total", "19"),
	}, "\n") + "\n"
	assert.Equal(t, want, out)
}

func TestShowAppliesTransactions(t *testing.T) {
	cfg := writeFixture(t, "gridrows.yaml", testConfig)
	data := writeFixture(t, "rows.jsonl", testRows)
	tx := writeFixture(t, "tx.yaml", "remove:\n  - id: \"4\"\n")

	out, err := run(t, "show", "-c", cfg, "-d", data, "--tx", tx)
	require.NoError(t, err)
	assert.NotContains(t, out, "▾ C")
	assert.Contains(t, out, row("Total", "9"))
}

func TestShowJSON(t *testing.T) {
	cfg := writeFixture(t, "gridrows.yaml", testConfig)
	data := writeFixture(t, "rows.jsonl", testRows)

	out, err := run(t, "show", "-c", cfg, "-d", data, "--format", "json")
	require.NoError(t, err)

	var doc rowsJSON
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	require.Len(t, doc.Rows, 8)
	assert.Equal(t, "row-group-A", doc.Rows[0].ID)
	assert.Equal(t, "▾ A", doc.Rows[0].Label)
	assert.True(t, doc.Rows[0].Group)
	assert.Equal(t, 9.0, doc.Rows[0].Values["v"])
	assert.Equal(t, 2, doc.Rows[2].Level)

	last := doc.Rows[len(doc.Rows)-1]
	assert.Equal(t, "Total", last.Label)
	assert.Equal(t, 19.0, last.Values["v"])
}

func TestShowRejectsBadFormat(t *testing.T) {
	data := writeFixture(t, "rows.jsonl", testRows)
	_, err := run(t, "show", "-d", data, "--format", "xml")
	assert.True(t, errors.Is(err, errUsage))
}

func TestShowRequiresData(t *testing.T) {
	_, err := run(t, "show")
	assert.ErrorIs(t, err, errUsage)
}

func TestApplyReportsEachTransaction(t *testing.T) {
	cfg := writeFixture(t, "gridrows.yaml", testConfig)
	data := writeFixture(t, "rows.jsonl", testRows)
	tx1 := writeFixture(t, "tx1.json", `{"update":[{"id":"3","path":["A","z"],"v":16}],"remove":[{"id":"4"}]}`)
	tx2 := writeFixture(t, "tx2.json", `{"add":[{"id":"5","path":["D","q"],"v":1}],"remove":[{"id":"nope"}]}`)

	out, err := run(t, "apply", "-q", "-c", cfg, "-d", data, tx1, tx2)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, tx1+": 0 added, 1 updated, 1 removed", lines[0])
	assert.Equal(t, tx2+": 1 added, 0 updated, 0 removed", lines[1])
	assert.Contains(t, lines[2], "nope")
}

func TestApplyPrintsResultingTree(t *testing.T) {
	cfg := writeFixture(t, "gridrows.yaml", testConfig)
	data := writeFixture(t, "rows.jsonl", testRows)
	tx := writeFixture(t, "tx.json", `{"update":[{"id":"3","path":["A","z"],"v":16}]}`)

	out, err := run(t, "apply", "-c", cfg, "-d", data, tx)
	require.NoError(t, err)
	assert.Contains(t, out, row("▾ A", "19"))
	assert.Contains(t, out, row("Total", "29"))
}

func TestApplyRejectsBadTransaction(t *testing.T) {
	cfg := writeFixture(t, "gridrows.yaml", testConfig)
	data := writeFixture(t, "rows.jsonl", testRows)
	tx := writeFixture(t, "tx.json", `{"delete":[]}`)

	_, err := run(t, "apply", "-c", cfg, "-d", data, tx)
	assert.Error(t, err)
}

func TestInvalidConfigFails(t *testing.T) {
	cfg := writeFixture(t, "gridrows.yaml", "grand_total: sideways\n")
	data := writeFixture(t, "rows.jsonl", testRows)

	_, err := run(t, "show", "-c", cfg, "-d", data)
	assert.Error(t, err)
}

func TestConfigInitAndShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gridrows.yaml")

	out, err := run(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+path)

	_, err = run(t, "config", "init", path)
	assert.Error(t, err, "init must not overwrite without --force")

	out, err = run(t, "config", "show", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, out, "grand_total: none")
	assert.Contains(t, out, "group_default_expanded: 1")
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatchReprintsOnChange(t *testing.T) {
	cfg := writeFixture(t, "gridrows.yaml", testConfig)
	data := writeFixture(t, "rows.jsonl", testRows)

	cmd := newRootCommand()
	out := &syncBuffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"watch", "-c", cfg, "-d", data, "--debounce", "20ms"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	waitFor := func(s string) {
		t.Helper()
		deadline := time.Now().Add(5 * time.Second)
		for !strings.Contains(out.String(), s) {
			if time.Now().After(deadline) {
				t.Fatalf("output never contained %q:\n%s", s, out.String())
			}
			time.Sleep(20 * time.Millisecond)
		}
	}
	waitFor(row("Total", "19"))

	// Give the watcher time to snapshot before the change.
	time.Sleep(200 * time.Millisecond)
	updated := strings.Replace(testRows, `"v":10`, `"v":100`, 1)
	require.NoError(t, os.WriteFile(data, []byte(updated), 0o644))
	waitFor(row("Total", "109"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not exit after cancel")
	}
}

func TestWatchReloadsDataWhenConfigBreaks(t *testing.T) {
	cfg := writeFixture(t, "gridrows.yaml", testConfig)
	data := writeFixture(t, "rows.jsonl", testRows)
	ctx := context.Background()

	o := &rootOptions{configPath: cfg, dataPaths: []string{data}, logger: zap.NewNop()}
	s, err := o.newSession(ctx)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(cfg, []byte("grand_total: sideways\n"), 0o644))
	updated := strings.Replace(testRows, `"v":10`, `"v":100`, 1)
	require.NoError(t, os.WriteFile(data, []byte(updated), 0o644))

	var out bytes.Buffer
	err = s.onChange(ctx, &out, cfg, []string{cfg, data})
	assert.Error(t, err, "the config error is still reported")
	assert.Contains(t, out.String(), row("Total", "109"))

	out.Reset()
	err = s.onChange(ctx, &out, cfg, []string{cfg})
	assert.Error(t, err)
	assert.Empty(t, out.String(), "a bad config alone leaves the output alone")

	out.Reset()
	require.NoError(t, s.onChange(ctx, &out, cfg, []string{data}))
	assert.Contains(t, out.String(), row("Total", "109"))
}

func TestUnknownLogLevel(t *testing.T) {
	_, err := run(t, "config", "show", "--log-level", "loud")
	assert.ErrorIs(t, err, errUsage)
}
