// Package stats merges hierarchical JSON result documents into flat
// statistical aggregates.
//
// # Values
//
// [Values] is an append-only sample accumulator. Numeric-only sample
// sets expose min, max, arithmetic mean, geometric mean and population
// standard deviation (dividing by N, not N-1).
//
// # Merger
//
// [Merger] recursively walks any number of same-shaped nested
// documents. A caller-supplied [KeyFn] maps each leaf's property path
// to a merge key (or drops the leaf); all leaves sharing a key
// accumulate into one Values bucket in encounter order:
//
//	m := stats.NewMerger(nil)
//	m.Add(map[string]any{"a": map[string]any{"x": 1.0}})
//	m.Add(map[string]any{"a": map[string]any{"x": 2.0}})
//	m.Data()["a/x"] // Values{1, 2}
//
// When re-merging previously serialized documents, a key contributed
// twice from the same source is ambiguous: the whole bucket is dropped
// and the key blacklisted rather than risking silent double counting.
//
// # Output
//
// [Merger.ToJSON] serializes buckets sorted by key; [Merger.ToCSV]
// reconstructs a path hierarchy from '/'-delimited keys with
// single-segment summary keys placed last. [MergeCSV] joins per-source
// CSV files column-wise.
package stats
