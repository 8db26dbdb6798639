package datasource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"github.com/vanderheijden86/gridrows/pkg/model"
)

// ErrInvalidTable indicates a table name that is not a plain identifier.
var ErrInvalidTable = errors.New("invalid table name")

var identRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLiteReader provides read access to one table of a SQLite database.
type SQLiteReader struct {
	db    *sql.DB
	path  string
	table string
}

// NewSQLiteReader opens a SQLite database for reading
func NewSQLiteReader(source DataSource) (*SQLiteReader, error) {
	if source.Type != SourceTypeSQLite {
		return nil, fmt.Errorf("source is not SQLite: %s", source.Type)
	}
	table := source.table()
	if !identRE.MatchString(table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}

	dsn := fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(5000)", source.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	return &SQLiteReader{db: db, path: source.Path, table: table}, nil
}

// Close closes the database connection
func (r *SQLiteReader) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// LoadRecords reads every row of the table in rowid order. Each column
// becomes a record field; text that holds a JSON array or object is
// decoded so path and children columns can be stored as JSON.
func (r *SQLiteReader) LoadRecords(ctx context.Context) ([]model.Record, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`SELECT * FROM "%s" ORDER BY rowid`, r.table))
	if err != nil {
		// WITHOUT ROWID tables and views have no rowid
		rows, err = r.db.QueryContext(ctx, fmt.Sprintf(`SELECT * FROM "%s"`, r.table))
		if err != nil {
			return nil, fmt.Errorf("querying %s: %w", r.table, err)
		}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []model.Record
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning %s row %d: %w", r.table, len(out)+1, err)
		}
		rec := make(model.Record, len(cols))
		for i, c := range cols {
			if vals[i] == nil {
				continue
			}
			rec[c] = columnValue(vals[i])
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CountRecords returns the number of rows in the table.
func (r *SQLiteReader) CountRecords(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM "%s"`, r.table)).Scan(&n)
	return n, err
}

func columnValue(v any) any {
	switch x := v.(type) {
	case []byte:
		return textValue(string(x))
	case string:
		return textValue(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	default:
		return v
	}
}

func textValue(s string) any {
	t := strings.TrimSpace(s)
	if len(t) < 2 || (t[0] != '[' && t[0] != '{') {
		return s
	}
	var decoded any
	if err := json.Unmarshal([]byte(t), &decoded); err != nil {
		return s
	}
	return decoded
}
