package stats

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
)

// KeyFn maps a leaf's property path to its merge key. Returning
// ok=false drops the leaf.
type KeyFn func(path []string) (key string, ok bool)

// DefaultKeyFn joins the path segments with '/'.
func DefaultKeyFn(path []string) (string, bool) {
	return strings.Join(path, "/"), true
}

// ValueFn transforms a bucket for serialization. The default is the
// full statistical expansion of Values.ToJSON.
type ValueFn func(v *Values) any

// GeomeanValue reduces a bucket to its geometric mean, the benchmark
// score aggregate used in merged CSV output.
func GeomeanValue(v *Values) any { return v.Geomean() }

// Merger merges N same-shaped hierarchical documents into flat
// key→Values buckets:
//
//	data1 = {"a": {"aa": 1.1, "ab": 2}, "b": 2.1}
//	data2 = {"a": {"aa": 1.2}, "b": 2.2, "c": 2}
//
//	merged = {"a/aa": Values(1.1, 1.2), "a/ab": Values(2),
//	          "b": Values(2.1, 2.2), "c": Values(2)}
type Merger struct {
	data    map[string]*Values
	keyFn   KeyFn
	ignored map[string]struct{}
}

// NewMerger returns an empty Merger. A nil keyFn uses DefaultKeyFn.
func NewMerger(keyFn KeyFn) *Merger {
	if keyFn == nil {
		keyFn = DefaultKeyFn
	}
	return &Merger{
		data:    map[string]*Values{},
		keyFn:   keyFn,
		ignored: map[string]struct{}{},
	}
}

// Data returns the accumulated buckets keyed by merge key.
func (m *Merger) Data() map[string]*Values { return m.data }

// Add merges arbitrary hierarchical data with primitive leaves.
// Anything that is not a map counts as a leaf; a top-level list is
// treated as repetitions of the same document.
func (m *Merger) Add(data any) {
	if list, ok := data.([]any); ok {
		for _, item := range list {
			m.merge(item, nil)
		}
		return
	}
	m.merge(data, nil)
}

func (m *Merger) merge(data any, parentPath []string) {
	doc, ok := data.(map[string]any)
	if !ok {
		panic(fmt.Sprintf("stats: expected map document, got %T", data))
	}
	for _, name := range sortedKeys(doc) {
		value := doc[name]
		path := childPath(parentPath, name)
		key, ok := m.keyFn(path)
		if !ok {
			continue
		}
		if child, isMap := value.(map[string]any); isMap {
			m.merge(child, path)
			continue
		}
		bucket := m.data[key]
		if bucket == nil {
			bucket = NewValues()
			m.data[key] = bucket
		}
		if list, isList := value.([]any); isList {
			bucket.AppendAll(list...)
		} else {
			bucket.Append(value)
		}
	}
}

// MergeSerialized merges one previously serialized merger document
// (or a deeper hierarchy of them). Without mergeDuplicatePaths, a key
// contributed again from a new source document is ambiguous: the
// existing bucket is discarded and the key blacklisted from all
// further contributions, trading data loss for never double counting.
func (m *Merger) MergeSerialized(data map[string]any, prefix []string, mergeDuplicatePaths bool) error {
	for _, name := range sortedKeys(data) {
		value := data[name]
		path := childPath(prefix, name)
		key, ok := m.keyFn(path)
		if !ok {
			continue
		}
		if _, blacklisted := m.ignored[key]; blacklisted {
			continue
		}
		doc, isMap := value.(map[string]any)
		if isMap {
			if _, isLeaf := doc["values"]; !isLeaf {
				if err := m.MergeSerialized(doc, path, mergeDuplicatePaths); err != nil {
					return err
				}
				continue
			}
		}
		if existing, seen := m.data[key]; seen {
			if mergeDuplicatePaths {
				incoming, err := ValuesFromJSON(value)
				if err != nil {
					return err
				}
				existing.AppendAll(incoming.Samples()...)
				continue
			}
			slog.Debug("dropping values with ambiguous duplicate path",
				"path", strings.Join(path, "/"), "key", key)
			delete(m.data, key)
			m.ignored[key] = struct{}{}
			continue
		}
		bucket, err := ValuesFromJSON(value)
		if err != nil {
			return fmt.Errorf("key %q: %w", key, err)
		}
		m.data[key] = bucket
	}
	return nil
}

// MergeJSONFiles loads and merges each serialized result file in
// order.
func (m *Merger) MergeJSONFiles(files []string, mergeDuplicatePaths bool) error {
	for _, file := range files {
		raw, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("merge %s: %w", file, err)
		}
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("merge %s: %w", file, err)
		}
		if err := m.MergeSerialized(doc, nil, mergeDuplicatePaths); err != nil {
			return fmt.Errorf("merge %s: %w", file, err)
		}
	}
	return nil
}

// ToJSON serializes all buckets sorted by key so output is independent
// of input order. A nil valueFn uses the statistical expansion.
func (m *Merger) ToJSON(valueFn ValueFn) map[string]any {
	out := make(map[string]any, len(m.data))
	for key, bucket := range m.data {
		if valueFn == nil {
			out[key] = bucket.ToJSON()
		} else {
			out[key] = valueFn(bucket)
		}
	}
	return out
}

// ToCSV reconstructs a path hierarchy from the '/'-delimited keys:
// intermediate segments become header rows without a value, and
// single-segment summary keys (e.g. "Total") are written last.
//
//	{"Suite/Case/Async": 1, "Suite/Case/Sync": 2, "Total": 3}
//
// becomes rows [Suite] [Case] [Async 1] [Sync 2] [Total 3].
func (m *Merger) ToCSV(valueFn ValueFn) [][]string {
	converted := m.ToJSON(valueFn)
	keys := sortedKeys(converted)

	var order []string
	lookup := map[string]any{}
	var toplevel []string
	for _, key := range keys {
		var path string
		for _, segment := range strings.Split(key, "/") {
			if path != "" {
				path += "/" + segment
			} else {
				path = segment
			}
			if _, seen := lookup[path]; !seen {
				lookup[path] = nil
				order = append(order, path)
			}
		}
		if !strings.Contains(key, "/") {
			toplevel = append(toplevel, key)
		}
		lookup[key] = converted[key]
	}

	var rows [][]string
	isToplevel := map[string]bool{}
	for _, key := range toplevel {
		isToplevel[key] = true
	}
	for _, path := range order {
		if isToplevel[path] {
			continue
		}
		segments := strings.Split(path, "/")
		name := segments[len(segments)-1]
		if value := lookup[path]; value == nil {
			rows = append(rows, []string{name})
		} else {
			rows = append(rows, []string{name, formatCSVValue(value)})
		}
	}
	// Summary entries go last.
	for _, key := range toplevel {
		rows = append(rows, []string{key, formatCSVValue(lookup[key])})
	}
	return rows
}

func formatCSVValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%v", v)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(raw)
	}
}

// childPath copies the parent path so sibling branches never alias.
func childPath(parent []string, name string) []string {
	path := make([]string, len(parent)+1)
	copy(path, parent)
	path[len(parent)] = name
	return path
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
