package datasource

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/vanderheijden86/gridrows/pkg/model"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTypeOf(t *testing.T) {
	tests := []struct {
		path string
		want SourceType
		err  bool
	}{
		{"rows.json", SourceTypeJSON, false},
		{"rows.JSONL", SourceTypeJSONL, false},
		{"rows.ndjson", SourceTypeJSONL, false},
		{"grid.db", SourceTypeSQLite, false},
		{"grid.sqlite3", SourceTypeSQLite, false},
		{"rows.csv", "", true},
	}
	for _, tt := range tests {
		got, err := TypeOf(tt.path)
		if (err != nil) != tt.err || got != tt.want {
			t.Errorf("TypeOf(%q) = %q, %v", tt.path, got, err)
		}
		if tt.err && !errors.Is(err, ErrUnknownFormat) {
			t.Errorf("TypeOf(%q) error should wrap ErrUnknownFormat, got %v", tt.path, err)
		}
	}
}

func TestLoadJSONArray(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "rows.json", `[
		{"id": "1", "path": ["A", "x"], "v": 3},
		{"id": "2", "path": ["A", "y"], "v": 4.5}
	]`)

	recs, err := Load(context.Background(), path, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0]["v"] != 3.0 || recs[1]["v"] != 4.5 {
		t.Errorf("unexpected values %v %v", recs[0]["v"], recs[1]["v"])
	}
	if p, ok := recs[0]["path"].([]any); !ok || len(p) != 2 || p[0] != "A" {
		t.Errorf("unexpected path %#v", recs[0]["path"])
	}
}

func TestLoadJSONL(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "rows.jsonl", "{\"id\":\"1\"}\n\n  {\"id\":\"2\",\"children\":[{\"id\":\"3\"}]}\n")

	recs, err := Load(context.Background(), path, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records (blank line skipped), got %d", len(recs))
	}
	kids, ok := recs[1]["children"].([]any)
	if !ok || len(kids) != 1 {
		t.Fatalf("unexpected children %#v", recs[1]["children"])
	}
	if _, ok := kids[0].(map[string]any); !ok {
		t.Errorf("nested child should decode as an object, got %T", kids[0])
	}
}

func TestLoadJSONLReportsLine(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "rows.jsonl", "{\"id\":\"1\"}\n{\"id\":\n")

	_, err := Load(context.Background(), path, "")
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("expected an error naming line 2, got %v", err)
	}
}

func TestWriteJSONLRoundTrip(t *testing.T) {
	recs := []model.Record{{"id": "a", "v": 1.0}, {"id": "b", "tags": []any{"x"}}}
	var sb strings.Builder
	if err := WriteJSONL(&sb, recs); err != nil {
		t.Fatal(err)
	}
	back, err := ReadJSONL(strings.NewReader(sb.String()))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(back, recs) {
		t.Errorf("round trip = %v, want %v", back, recs)
	}
}

func createDB(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "grid.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	stmts := []string{
		`CREATE TABLE "rows" (id TEXT PRIMARY KEY, path TEXT, v REAL, note TEXT)`,
		`INSERT INTO "rows" VALUES ('1', '["A","x"]', 1.5, NULL)`,
		`INSERT INTO "rows" VALUES ('2', '["A","y"]', 2, 'plain [text')`,
		`CREATE TABLE people (name TEXT, age INTEGER)`,
		`INSERT INTO people VALUES ('ada', 36)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("%s: %v", s, err)
		}
	}
	return path
}

func TestLoadSQLite(t *testing.T) {
	path := createDB(t, t.TempDir())

	recs, err := Load(context.Background(), path, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0]["id"] != "1" || recs[0]["v"] != 1.5 {
		t.Errorf("unexpected first record %v", recs[0])
	}
	if _, ok := recs[0]["note"]; ok {
		t.Error("NULL columns should be omitted")
	}
	if p, ok := recs[0]["path"].([]any); !ok || len(p) != 2 {
		t.Errorf("JSON text column should decode, got %#v", recs[0]["path"])
	}
	if recs[1]["note"] != "plain [text" {
		t.Errorf("non-JSON text should stay a string, got %#v", recs[1]["note"])
	}

	people, err := Load(context.Background(), path, "people")
	if err != nil {
		t.Fatalf("Load people failed: %v", err)
	}
	if len(people) != 1 || people[0]["age"] != int64(36) {
		t.Errorf("unexpected people %v", people)
	}
}

func TestSQLiteRejectsBadTable(t *testing.T) {
	path := createDB(t, t.TempDir())
	src, err := Detect(path, `rows"; DROP TABLE rows; --`)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewSQLiteReader(src); !errors.Is(err, ErrInvalidTable) {
		t.Errorf("expected ErrInvalidTable, got %v", err)
	}
}

func TestLoadPathsConcatenatesInOrder(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.jsonl", "{\"id\":\"a1\"}\n{\"id\":\"a2\"}\n")
	b := writeFile(t, dir, "b.json", `[{"id":"b1"}]`)
	c := createDB(t, dir)

	recs, err := LoadPaths(context.Background(), []string{a, b, c}, "")
	if err != nil {
		t.Fatalf("LoadPaths failed: %v", err)
	}
	var ids []any
	for _, r := range recs {
		ids = append(ids, r["id"])
	}
	want := []any{"a1", "a2", "b1", "1", "2"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("ids = %v, want %v", ids, want)
	}
}

func TestLoadAllFailsOnAnySource(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.jsonl", "{\"id\":\"1\"}\n")
	bad := writeFile(t, dir, "bad.json", `{"not": "an array"}`)

	_, err := LoadPaths(context.Background(), []string{good, bad}, "")
	if err == nil || !strings.Contains(err.Error(), "bad.json") {
		t.Errorf("expected an error naming bad.json, got %v", err)
	}
}

func TestLoadCancelled(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "rows.jsonl", "{\"id\":\"1\"}\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Load(ctx, path, ""); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestReadTransaction(t *testing.T) {
	dir := t.TempDir()
	jsonPath := writeFile(t, dir, "tx.json", `{"remove":[{"id":"3"}],"update":[{"id":"1","v":9}],"add":[{"id":"5"}],"addIndex":1}`)
	yamlPath := writeFile(t, dir, "tx.yaml", `
remove:
  - id: "3"
add:
  - id: "5"
    children:
      - id: "6"
add_index: 0
`)

	tx, err := ReadTransaction(jsonPath)
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(tx.Remove) != 1 || len(tx.Update) != 1 || len(tx.Add) != 1 || tx.AddIndex == nil || *tx.AddIndex != 1 {
		t.Errorf("unexpected json transaction %+v", tx)
	}

	tx, err = ReadTransaction(yamlPath)
	if err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if len(tx.Remove) != 1 || len(tx.Add) != 1 || tx.AddIndex == nil || *tx.AddIndex != 0 {
		t.Errorf("unexpected yaml transaction %+v", tx)
	}
	kids, ok := tx.Add[0]["children"].([]any)
	if !ok || len(kids) != 1 {
		t.Fatalf("unexpected children %#v", tx.Add[0]["children"])
	}
	if _, ok := kids[0].(map[string]any); !ok {
		t.Errorf("nested child should be a map[string]any, got %T", kids[0])
	}

	if _, err := ParseTransaction([]byte(`{"delete":[]}`), ".json"); err == nil {
		t.Error("expected unknown fields to be rejected")
	}
}

func TestDiffRecords(t *testing.T) {
	prev := []model.Record{
		{"id": "1", "v": 1.0},
		{"id": "2", "v": 2.0},
		{"id": "3", "v": 3.0},
	}
	next := []model.Record{
		{"id": "2", "v": 2.0},
		{"id": "3", "v": 30.0},
		{"id": "4", "v": 4.0},
	}

	d, err := DiffRecords(prev, next, "id")
	if err != nil {
		t.Fatal(err)
	}
	if len(d.Added) != 1 || d.Added[0]["id"] != "4" {
		t.Errorf("added = %v", d.Added)
	}
	if len(d.Changed) != 1 || d.Changed[0]["id"] != "3" {
		t.Errorf("changed = %v", d.Changed)
	}
	if len(d.Removed) != 1 || d.Removed[0]["id"] != "1" {
		t.Errorf("removed = %v", d.Removed)
	}
	if d.Unchanged != 1 {
		t.Errorf("unchanged = %d", d.Unchanged)
	}
	if got := d.Summary(); got != "1 added, 1 changed, 1 removed" {
		t.Errorf("summary = %q", got)
	}
	tx := d.Transaction()
	if len(tx.Add)+len(tx.Update)+len(tx.Remove) != 3 {
		t.Errorf("unexpected transaction %+v", tx)
	}
}

func TestDiffRecordsErrors(t *testing.T) {
	if _, err := DiffRecords(nil, []model.Record{{"v": 1}}, "id"); !errors.Is(err, ErrMissingID) {
		t.Errorf("expected ErrMissingID, got %v", err)
	}
	if _, err := DiffRecords(nil, []model.Record{{"id": 1.0}, {"id": "1"}}, "id"); err == nil {
		t.Error("expected duplicate ids to fail")
	}
	d, err := DiffRecords([]model.Record{{"id": "x"}}, []model.Record{{"id": "x"}}, "id")
	if err != nil || !d.Empty() || d.Summary() != "no changes (1 records)" {
		t.Errorf("unexpected diff %+v, %v", d, err)
	}
}
