package stats_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/jamienicol/xbench/internal/stats"
)

// TestMergerAddIdenticalShapes checks that same-shaped documents land
// in shared buckets keyed by path.
func TestMergerAddIdenticalShapes(t *testing.T) {
	m := stats.NewMerger(nil)
	m.Add(map[string]any{"a": map[string]any{"x": 1.0}})
	m.Add(map[string]any{"a": map[string]any{"x": 2.0}})

	bucket := m.Data()["a/x"]
	if bucket == nil {
		t.Fatalf("missing bucket a/x, have %v", m.Data())
	}
	if bucket.Len() != 2 {
		t.Fatalf("bucket len = %d, want 2", bucket.Len())
	}
	if got := bucket.Average(); got != 1.5 {
		t.Fatalf("average = %v, want 1.5", got)
	}
}

func TestMergerAddDisjointShapes(t *testing.T) {
	m := stats.NewMerger(nil)
	m.Add(map[string]any{"a": map[string]any{"aa": 1.1, "ab": 2.0}, "b": 2.1})
	m.Add(map[string]any{"a": map[string]any{"aa": 1.2}, "b": 2.2, "c": 2.0})

	want := map[string]int{"a/aa": 2, "a/ab": 1, "b": 2, "c": 1}
	for key, n := range want {
		bucket := m.Data()[key]
		if bucket == nil {
			t.Fatalf("missing bucket %q", key)
		}
		if bucket.Len() != n {
			t.Errorf("bucket %q len = %d, want %d", key, bucket.Len(), n)
		}
	}
	if len(m.Data()) != len(want) {
		t.Errorf("bucket count = %d, want %d", len(m.Data()), len(want))
	}
}

// TestMergerAddListRepetitions checks that a top-level list merges each
// element as a separate document.
func TestMergerAddListRepetitions(t *testing.T) {
	m := stats.NewMerger(nil)
	m.Add([]any{
		map[string]any{"a": 1.0},
		map[string]any{"a": 2.0},
	})
	if got := m.Data()["a"].Len(); got != 2 {
		t.Fatalf("bucket len = %d, want 2", got)
	}
}

// TestMergerAddListLeaf checks that list leaves contribute every
// element to the bucket.
func TestMergerAddListLeaf(t *testing.T) {
	m := stats.NewMerger(nil)
	m.Add(map[string]any{"a": []any{1.0, 2.0, 3.0}})
	if got := m.Data()["a"].Len(); got != 3 {
		t.Fatalf("bucket len = %d, want 3", got)
	}
}

// TestMergerKeyFnFilters checks that a keyFn returning ok=false drops
// the subtree.
func TestMergerKeyFnFilters(t *testing.T) {
	keyFn := func(path []string) (string, bool) {
		if path[0] == "skip" {
			return "", false
		}
		return strings.Join(path, "/"), true
	}
	m := stats.NewMerger(keyFn)
	m.Add(map[string]any{"skip": 1.0, "keep": 2.0})
	if _, ok := m.Data()["skip"]; ok {
		t.Error("filtered key survived")
	}
	if _, ok := m.Data()["keep"]; !ok {
		t.Error("kept key missing")
	}
}

// TestMergeSerializedDuplicatePathDropsBucket verifies the
// never-double-count policy: a key contributed twice from serialized
// sources is dropped and blacklisted.
func TestMergeSerializedDuplicatePathDropsBucket(t *testing.T) {
	m := stats.NewMerger(nil)
	doc := map[string]any{"score": map[string]any{"values": []any{1.0}}}
	if err := m.MergeSerialized(doc, nil, false); err != nil {
		t.Fatal(err)
	}
	if err := m.MergeSerialized(doc, nil, false); err != nil {
		t.Fatal(err)
	}
	if _, ok := m.Data()["score"]; ok {
		t.Fatal("ambiguous duplicate key must be dropped")
	}
	// Blacklisted for good: a third contribution stays out too.
	if err := m.MergeSerialized(doc, nil, false); err != nil {
		t.Fatal(err)
	}
	if _, ok := m.Data()["score"]; ok {
		t.Fatal("blacklisted key must never be re-admitted")
	}
}

func TestMergeSerializedMergeDuplicatePaths(t *testing.T) {
	m := stats.NewMerger(nil)
	doc := map[string]any{"score": map[string]any{"values": []any{1.0, 2.0}}}
	if err := m.MergeSerialized(doc, nil, true); err != nil {
		t.Fatal(err)
	}
	if err := m.MergeSerialized(doc, nil, true); err != nil {
		t.Fatal(err)
	}
	if got := m.Data()["score"].Len(); got != 4 {
		t.Fatalf("bucket len = %d, want 4", got)
	}
}

// TestMergeSerializedNested checks recursion into documents that are
// not themselves serialized buckets.
func TestMergeSerializedNested(t *testing.T) {
	m := stats.NewMerger(nil)
	doc := map[string]any{
		"suite": map[string]any{
			"case": map[string]any{"values": []any{7.0}},
		},
	}
	if err := m.MergeSerialized(doc, nil, false); err != nil {
		t.Fatal(err)
	}
	bucket := m.Data()["suite/case"]
	if bucket == nil || bucket.Len() != 1 {
		t.Fatalf("missing nested bucket, have %v", m.Data())
	}
}

func TestMergeJSONFiles(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, doc map[string]any) string {
		raw, err := json.Marshal(doc)
		if err != nil {
			t.Fatal(err)
		}
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, raw, 0o644); err != nil {
			t.Fatal(err)
		}
		return path
	}
	a := write("a.json", map[string]any{"x": map[string]any{"values": []any{1.0}}})
	b := write("b.json", map[string]any{"y": map[string]any{"values": []any{2.0}}})

	m := stats.NewMerger(nil)
	if err := m.MergeJSONFiles([]string{a, b}, false); err != nil {
		t.Fatal(err)
	}
	if len(m.Data()) != 2 {
		t.Fatalf("bucket count = %d, want 2", len(m.Data()))
	}
}

// TestMergerToCSVHierarchy checks header-row reconstruction and the
// summary-keys-last ordering.
func TestMergerToCSVHierarchy(t *testing.T) {
	m := stats.NewMerger(nil)
	m.Add(map[string]any{
		"Suite": map[string]any{
			"Case": map[string]any{"Async": 1.0, "Sync": 2.0},
		},
		"Total": 3.0,
	})
	rows := m.ToCSV(stats.GeomeanValue)
	want := [][]string{
		{"Suite"},
		{"Case"},
		{"Async", "1"},
		{"Sync", "2"},
		{"Total", "3"},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("rows = %v, want %v", rows, want)
	}
}

// TestFlattenDuplicateKey verifies Flatten rejects duplicates instead
// of bucketing them.
func TestFlattenDuplicateKey(t *testing.T) {
	f, err := stats.NewFlatten(nil, map[string]any{
		"a": map[string]any{"aa1": 1.0, "aa2": 2.0},
		"b": 12.0,
	})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]any{"a/aa1": 1.0, "a/aa2": 2.0, "b": 12.0}
	if !reflect.DeepEqual(f.Data(), want) {
		t.Fatalf("data = %v, want %v", f.Data(), want)
	}
	if err := f.Append(map[string]any{"b": 13.0}); err == nil {
		t.Fatal("expected duplicate key error")
	}
}

// TestMergeCSVColumnJoin checks the column-wise join with header
// labels and first-column validation.
func TestMergeCSVColumnJoin(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		return path
	}
	a := write("a.csv", "metric\t1\nother\t2\n")
	b := write("b.csv", "metric\t3\nother\t4\n")

	table, err := stats.MergeCSV([]string{a, b}, []string{"chrome", "firefox"}, '\t')
	if err != nil {
		t.Fatal(err)
	}
	want := [][]string{
		{"", "chrome", "firefox"},
		{"metric", "1", "3"},
		{"other", "2", "4"},
	}
	if !reflect.DeepEqual(table, want) {
		t.Fatalf("table = %v, want %v", table, want)
	}

	c := write("c.csv", "mismatch\t5\nother\t6\n")
	if _, err := stats.MergeCSV([]string{a, c}, nil, '\t'); err == nil {
		t.Fatal("expected metric name mismatch error")
	}
}
