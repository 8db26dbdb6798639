package testutil

import (
	"fmt"

	"pgregory.net/rapid"

	"github.com/vanderheijden86/gridrows/pkg/model"
)

// PathRecords draws up to maxRows path-mode records with unique ids. Path
// segments come from a small alphabet so groups are shared.
func PathRecords(maxRows, maxDepth int) *rapid.Generator[[]model.Record] {
	return rapid.Custom(func(t *rapid.T) []model.Record {
		n := rapid.IntRange(0, maxRows).Draw(t, "rows")
		out := make([]model.Record, n)
		for i := range out {
			depth := rapid.IntRange(0, maxDepth).Draw(t, fmt.Sprintf("depth%d", i))
			path := make([]string, 0, depth+1)
			for d := 0; d < depth; d++ {
				path = append(path, rapid.SampledFrom([]string{"A", "B", "C"}).Draw(t, "segment"))
			}
			id := fmt.Sprintf("r%d", i)
			out[i] = model.Record{
				FieldID:    id,
				FieldPath:  append(path, id),
				FieldValue: rapid.IntRange(-50, 50).Draw(t, "v"),
				FieldName:  rapid.SampledFrom([]string{"ant", "bee", "cat", "dog"}).Draw(t, "name"),
			}
		}
		return out
	})
}

// ParentRecords draws a parent-id forest: every record's parent, when set,
// is an earlier record.
func ParentRecords(maxRows int) *rapid.Generator[[]model.Record] {
	return rapid.Custom(func(t *rapid.T) []model.Record {
		n := rapid.IntRange(0, maxRows).Draw(t, "rows")
		out := make([]model.Record, n)
		for i := range out {
			rec := model.Record{
				FieldID:    fmt.Sprintf("r%d", i),
				FieldValue: rapid.IntRange(-50, 50).Draw(t, "v"),
			}
			if i > 0 && rapid.Bool().Draw(t, "hasParent") {
				rec[FieldParent] = fmt.Sprintf("r%d", rapid.IntRange(0, i-1).Draw(t, "parent"))
			}
			out[i] = rec
		}
		return out
	})
}

// PathTx draws a batch against records produced by PathRecords. New ids
// continue after the existing ones so adds never collide.
func PathTx(existing []model.Record) *rapid.Generator[TxFixture] {
	return rapid.Custom(func(t *rapid.T) TxFixture {
		var tx TxFixture
		used := make(map[int]bool)
		next := len(existing)
		ops := rapid.IntRange(0, 6).Draw(t, "ops")
		for i := 0; i < ops; i++ {
			kind := rapid.IntRange(0, 2).Draw(t, "kind")
			if kind < 2 && len(existing) > 0 {
				j := rapid.IntRange(0, len(existing)-1).Draw(t, "target")
				if used[j] {
					continue
				}
				used[j] = true
				src := existing[j]
				if kind == 0 {
					tx.Remove = append(tx.Remove, model.Record{FieldID: src[FieldID]})
					continue
				}
				u := make(model.Record, len(src))
				for k, v := range src {
					u[k] = v
				}
				u[FieldValue] = rapid.IntRange(-50, 50).Draw(t, "v")
				if rapid.Bool().Draw(t, "move") {
					seg := rapid.SampledFrom([]string{"A", "B", "C", "D"}).Draw(t, "segment")
					u[FieldPath] = []string{seg, src[FieldID].(string)}
				}
				tx.Update = append(tx.Update, u)
				continue
			}
			id := fmt.Sprintf("r%d", next)
			next++
			tx.Add = append(tx.Add, model.Record{
				FieldID:    id,
				FieldPath:  []string{rapid.SampledFrom([]string{"A", "B", "D"}).Draw(t, "segment"), id},
				FieldValue: rapid.IntRange(-50, 50).Draw(t, "v"),
			})
		}
		return tx
	})
}
