package datasource

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/vanderheijden86/gridrows/pkg/metrics"
	"github.com/vanderheijden86/gridrows/pkg/model"
)

// maxParallelLoads bounds concurrent source reads.
const maxParallelLoads = 4

// Load reads records from path, choosing the reader by extension. table
// selects the SQLite table.
func Load(ctx context.Context, path, table string) ([]model.Record, error) {
	src, err := Detect(path, table)
	if err != nil {
		return nil, err
	}
	return LoadFromSource(ctx, src)
}

// LoadFromSource loads records from a specific DataSource, dispatching to
// the appropriate reader based on source type.
func LoadFromSource(ctx context.Context, source DataSource) ([]model.Record, error) {
	defer metrics.Timer(metrics.Load)()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch source.Type {
	case SourceTypeSQLite:
		reader, err := NewSQLiteReader(source)
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite source %s: %w", source.Path, err)
		}
		defer reader.Close()
		return reader.LoadRecords(ctx)

	case SourceTypeJSON:
		return readFile(source.Path, ReadJSON)

	case SourceTypeJSONL:
		return readFile(source.Path, ReadJSONL)

	default:
		return nil, fmt.Errorf("unknown source type: %s", source.Type)
	}
}

// LoadAll reads every source concurrently and concatenates the records in
// source order. The first failure cancels the remaining reads.
func LoadAll(ctx context.Context, sources []DataSource) ([]model.Record, error) {
	parts := make([][]model.Record, len(sources))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelLoads)
	for i, src := range sources {
		g.Go(func() error {
			recs, err := LoadFromSource(ctx, src)
			if err != nil {
				return fmt.Errorf("loading %s: %w", src.Path, err)
			}
			parts[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return slices.Concat(parts...), nil
}

// LoadPaths detects and loads every path with LoadAll.
func LoadPaths(ctx context.Context, paths []string, table string) ([]model.Record, error) {
	sources := make([]DataSource, 0, len(paths))
	for _, p := range paths {
		src, err := Detect(p, table)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return LoadAll(ctx, sources)
}
