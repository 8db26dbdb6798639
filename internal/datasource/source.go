// Package datasource reads grid records from JSON, JSONL and SQLite files
// and transaction batches from JSON or YAML files.
package datasource

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SourceType identifies the format of a data source.
type SourceType string

const (
	// SourceTypeJSON is a file holding one JSON array of objects.
	SourceTypeJSON SourceType = "json"
	// SourceTypeJSONL is a file holding one JSON object per line.
	SourceTypeJSONL SourceType = "jsonl"
	// SourceTypeSQLite is a SQLite database; records come from one table.
	SourceTypeSQLite SourceType = "sqlite"
)

// DefaultTable is the table read from SQLite sources when none is given.
const DefaultTable = "rows"

// ErrUnknownFormat indicates a path whose extension names no known format.
var ErrUnknownFormat = errors.New("unknown data source format")

// DataSource is one file to load records from.
type DataSource struct {
	Type SourceType `json:"type"`
	Path string     `json:"path"`
	// Table is the SQLite table to read; empty means DefaultTable.
	Table   string    `json:"table,omitempty"`
	ModTime time.Time `json:"mod_time"`
	Size    int64     `json:"size"`
}

// String returns a human-readable description of the source
func (s DataSource) String() string {
	desc := fmt.Sprintf("%s (%s", s.Path, s.Type)
	if s.Type == SourceTypeSQLite {
		desc += ", table=" + s.table()
	}
	return desc + fmt.Sprintf(", mod=%s, size=%d)", s.ModTime.Format(time.RFC3339), s.Size)
}

func (s DataSource) table() string {
	if s.Table == "" {
		return DefaultTable
	}
	return s.Table
}

// TypeOf maps a file extension to its source type.
func TypeOf(path string) (SourceType, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return SourceTypeJSON, nil
	case ".jsonl", ".ndjson":
		return SourceTypeJSONL, nil
	case ".db", ".sqlite", ".sqlite3":
		return SourceTypeSQLite, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
}

// Detect stats path and classifies it by extension. table only applies to
// SQLite sources.
func Detect(path, table string) (DataSource, error) {
	typ, err := TypeOf(path)
	if err != nil {
		return DataSource{}, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return DataSource{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return DataSource{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return DataSource{}, fmt.Errorf("%s is a directory", path)
	}
	src := DataSource{Type: typ, Path: abs, ModTime: info.ModTime(), Size: info.Size()}
	if typ == SourceTypeSQLite {
		src.Table = table
	}
	return src, nil
}
