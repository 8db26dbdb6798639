//go:build ignore

// generate_testdata.go creates record datasets for benchmarking the row model.
// Usage: go run scripts/generate_testdata.go
//
// Creates:
//
//	tests/testdata/benchmark/small.jsonl   (100 leaves, path mode)
//	tests/testdata/benchmark/medium.jsonl  (1000 leaves, path mode)
//	tests/testdata/benchmark/large.jsonl   (10000 leaves, path mode)
//	tests/testdata/benchmark/parent.jsonl  (parent-id mode)
//	tests/testdata/benchmark/flat.jsonl    (group-column mode)
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vanderheijden86/gridrows/pkg/model"
	"github.com/vanderheijden86/gridrows/pkg/testutil"
)

type datasetSpec struct {
	name  string
	build func(g *testutil.Generator) []model.Record
}

var datasets = []datasetSpec{
	{"small", func(g *testutil.Generator) []model.Record { return g.PathTree(2, 10) }},
	{"medium", func(g *testutil.Generator) []model.Record { return g.PathTree(3, 10) }},
	{"large", func(g *testutil.Generator) []model.Record { return g.PathTree(4, 10) }},
	{"parent", func(g *testutil.Generator) []model.Record { return g.ParentTree(4, 6) }},
	{"flat", func(g *testutil.Generator) []model.Record { return g.Flat(5000) }},
}

func main() {
	outputDir := "tests/testdata/benchmark"
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create output directory: %v\n", err)
		os.Exit(1)
	}

	for i, ds := range datasets {
		cfg := testutil.DefaultConfig()
		cfg.Seed = int64(i + 1) // Reproducible per dataset
		recs := ds.build(testutil.New(cfg))

		jsonl := testutil.ToJSONL(recs)
		outputPath := filepath.Join(outputDir, ds.name+".jsonl")
		if err := os.WriteFile(outputPath, []byte(jsonl), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", outputPath, err)
			os.Exit(1)
		}
		fmt.Printf("Written %s (%d records, %d bytes)\n", outputPath, len(recs), len(jsonl))
	}

	fmt.Println("\nDone! Test datasets created in", outputDir)
}
