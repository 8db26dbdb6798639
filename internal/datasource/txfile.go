package datasource

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/vanderheijden86/gridrows/pkg/model"
	"github.com/vanderheijden86/gridrows/pkg/transaction"
)

// ReadTransaction loads a batch from a .json, .yaml or .yml file:
//
//	{"remove": [{"id": "3"}], "update": [...], "add": [...], "addIndex": 0}
func ReadTransaction(path string) (transaction.Transaction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return transaction.Transaction{}, err
	}
	tx, err := ParseTransaction(data, filepath.Ext(path))
	if err != nil {
		return transaction.Transaction{}, fmt.Errorf("%s: %w", path, err)
	}
	return tx, nil
}

// ParseTransaction decodes a batch; ext selects YAML (".yaml", ".yml") or
// JSON (anything else).
func ParseTransaction(data []byte, ext string) (transaction.Transaction, error) {
	var tx transaction.Transaction
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &tx); err != nil {
			return tx, fmt.Errorf("parsing transaction: %w", err)
		}
		normalizeYAML(&tx)
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&tx); err != nil {
			return tx, fmt.Errorf("parsing transaction: %w", err)
		}
	}
	return tx, nil
}

// normalizeYAML turns the map[string]interface{} values yaml.v3 produces
// for nested mappings into plain records so children fields resolve.
func normalizeYAML(tx *transaction.Transaction) {
	for _, list := range [][]model.Record{tx.Add, tx.Update, tx.Remove} {
		for _, r := range list {
			for k, v := range r {
				r[k] = normalize(v)
			}
		}
	}
}

func normalize(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, e := range x {
			x[k] = normalize(e)
		}
		return x
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, e := range x {
			m[fmt.Sprint(k)] = normalize(e)
		}
		return m
	case []any:
		for i, e := range x {
			x[i] = normalize(e)
		}
		return x
	default:
		return v
	}
}
