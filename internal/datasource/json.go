package datasource

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	json "github.com/goccy/go-json"

	"github.com/vanderheijden86/gridrows/pkg/model"
)

// maxLine bounds a single JSONL record.
const maxLine = 16 * 1024 * 1024

// ReadJSON decodes a JSON array of objects.
func ReadJSON(r io.Reader) ([]model.Record, error) {
	var raw []map[string]any
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding JSON array: %w", err)
	}
	out := make([]model.Record, 0, len(raw))
	for i, m := range raw {
		if m == nil {
			return nil, fmt.Errorf("element %d is null", i)
		}
		out = append(out, model.Record(m))
	}
	return out, nil
}

// ReadJSONL decodes one object per line. Blank lines are skipped; a bad
// line fails the read with its line number.
func ReadJSONL(r io.Reader) ([]model.Record, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)

	var out []model.Record
	line := 0
	for sc.Scan() {
		line++
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(text, &m); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if m == nil {
			return nil, fmt.Errorf("line %d: null record", line)
		}
		out = append(out, model.Record(m))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading line %d: %w", line+1, err)
	}
	return out, nil
}

func readFile(path string, read func(io.Reader) ([]model.Record, error)) ([]model.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	recs, err := read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return recs, nil
}

// WriteJSONL writes one object per line.
func WriteJSONL(w io.Writer, records []model.Record) error {
	enc := json.NewEncoder(w)
	for i, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	return nil
}
