package stats

import "fmt"

// Flatten turns one or more hierarchical documents into a flat
// key→leaf map without aggregating:
//
//	{"a": {"aa1": 1, "aa2": 2}, "b": 12}
//
// flattens to {"a/aa1": 1, "a/aa2": 2, "b": 12}. Unlike Merger, a
// duplicate key is an error, not a bucket.
type Flatten struct {
	keyFn       KeyFn
	accumulator map[string]any
}

// NewFlatten flattens the given documents. A nil keyFn joins paths
// with '/'.
func NewFlatten(keyFn KeyFn, docs ...map[string]any) (*Flatten, error) {
	if keyFn == nil {
		keyFn = DefaultKeyFn
	}
	f := &Flatten{keyFn: keyFn, accumulator: map[string]any{}}
	if err := f.Append(docs...); err != nil {
		return nil, err
	}
	return f, nil
}

// Data returns the flattened key→leaf map.
func (f *Flatten) Data() map[string]any { return f.accumulator }

// Append flattens additional documents into the accumulator.
func (f *Flatten) Append(docs ...map[string]any) error {
	for _, doc := range docs {
		if err := f.flatten(nil, doc); err != nil {
			return err
		}
	}
	return nil
}

func (f *Flatten) flatten(parentPath []string, data map[string]any) error {
	for _, name := range sortedKeys(data) {
		item := data[name]
		path := childPath(parentPath, name)
		if !isLeaf(item) {
			if err := f.flatten(path, item.(map[string]any)); err != nil {
				return err
			}
			continue
		}
		key, ok := f.keyFn(path)
		if !ok {
			continue
		}
		if _, exists := f.accumulator[key]; exists {
			return fmt.Errorf("stats: duplicate key %q at path %v", key, path)
		}
		f.accumulator[key] = item
	}
	return nil
}

// isLeaf treats primitives, lists and serialized Values documents
// (maps with a "values" list) as leaves.
func isLeaf(item any) bool {
	switch v := item.(type) {
	case map[string]any:
		values, ok := v["values"]
		if !ok {
			return false
		}
		_, isList := values.([]any)
		return isList
	default:
		return true
	}
}
