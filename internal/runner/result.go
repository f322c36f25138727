package runner

import (
	"log/slog"
	"os"
	"sort"
)

// ProbeResult is the artifact a probe hands back after teardown or
// merging: nothing, a single file, an ordered list of files, or named
// files. The zero value means absent.
type ProbeResult struct {
	file    string
	files   []string
	entries map[string]string
}

// FileResult references a single result file.
func FileResult(path string) ProbeResult { return ProbeResult{file: path} }

// FilesResult references an ordered list of result files.
func FilesResult(paths ...string) ProbeResult { return ProbeResult{files: paths} }

// MapResult references named result files.
func MapResult(entries map[string]string) ProbeResult { return ProbeResult{entries: entries} }

// IsEmpty reports whether the probe produced nothing.
func (r ProbeResult) IsEmpty() bool {
	return r.file == "" && len(r.files) == 0 && len(r.entries) == 0
}

// File returns the primary result path, or "" when absent.
func (r ProbeResult) File() string {
	if r.file != "" {
		return r.file
	}
	if len(r.files) > 0 {
		return r.files[0]
	}
	return ""
}

// Entry returns the named path of a map result, "" when absent.
func (r ProbeResult) Entry(key string) string { return r.entries[key] }

// Paths returns every referenced path; map entries come sorted by key.
func (r ProbeResult) Paths() []string {
	switch {
	case r.file != "":
		return []string{r.file}
	case len(r.files) > 0:
		return r.files
	case len(r.entries) > 0:
		keys := make([]string, 0, len(r.entries))
		for key := range r.entries {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		paths := make([]string, 0, len(keys))
		for _, key := range keys {
			paths = append(paths, r.entries[key])
		}
		return paths
	}
	return nil
}

// ToJSON returns the serialized form: null, a path string, a list of
// paths or a map of paths.
func (r ProbeResult) ToJSON() any {
	switch {
	case r.file != "":
		return r.file
	case len(r.files) > 0:
		return r.files
	case len(r.entries) > 0:
		return r.entries
	}
	return nil
}

// ProbeResultDict maps probe identity to its result, at most one entry
// per probe. Each Run and each RunGroup owns one instance rooted at
// its output directory.
type ProbeResultDict struct {
	dir     string
	results map[string]ProbeResult
}

// NewProbeResultDict returns an empty dict rooted at dir.
func NewProbeResultDict(dir string) *ProbeResultDict {
	return &ProbeResultDict{dir: dir, results: map[string]ProbeResult{}}
}

// Dir returns the output directory the results live under.
func (d *ProbeResultDict) Dir() string { return d.dir }

// Set records probe's result, replacing the absent placeholder written
// at scope creation. A referenced path that does not exist is logged,
// not fatal: the data is gone either way and the other probes'
// results still matter.
func (d *ProbeResultDict) Set(probe Probe, result ProbeResult) {
	d.results[probe.Name()] = result
	for _, path := range result.Paths() {
		if _, err := os.Stat(path); err != nil {
			slog.Warn("probe result file missing", "probe", probe.Name(), "file", path)
		}
	}
}

// Get returns the recorded result, the zero value when absent.
func (d *ProbeResultDict) Get(probe Probe) ProbeResult { return d.results[probe.Name()] }

// GetByName looks a result up by probe name.
func (d *ProbeResultDict) GetByName(name string) (ProbeResult, bool) {
	result, ok := d.results[name]
	return result, ok
}

// Has reports whether probe has an entry, even an absent placeholder.
func (d *ProbeResultDict) Has(probe Probe) bool {
	_, ok := d.results[probe.Name()]
	return ok
}

// ToJSON returns the serializable probe-name to result mapping.
func (d *ProbeResultDict) ToJSON() map[string]any {
	out := make(map[string]any, len(d.results))
	for name, result := range d.results {
		out[name] = result.ToJSON()
	}
	return out
}
