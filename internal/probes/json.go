package probes

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/jamienicol/xbench/internal/runner"
	"github.com/jamienicol/xbench/internal/stats"
)

// resultGroup is the slice of a run group the JSON merge logic needs.
type resultGroup interface {
	ProbeResultsPath(probe runner.Probe) string
}

// JSONProbe stores a JSON document extracted at stop time, typically
// by running a script in the page. The raw document is written next to
// a flattened key→leaf variant, and repetition groups are merged
// through the statistics merger into per-key sample buckets.
type JSONProbe struct {
	Base

	// Extract pulls the document out of the live run.
	Extract func(ctx context.Context, run *runner.Run) (any, error)

	// Process optionally rewrites the document before it is written.
	Process func(data any) (any, error)

	// Flatten controls whether the flattened variant is produced and
	// used for merging.
	Flatten bool
}

// NewJSONProbe returns a probe writing <name>.json result files.
func NewJSONProbe(name string, extract func(ctx context.Context, run *runner.Run) (any, error)) *JSONProbe {
	return &JSONProbe{
		Base:    NewBase(name, name+".json"),
		Extract: extract,
		Flatten: true,
	}
}

func (p *JSONProbe) NewScope(run *runner.Run) runner.Scope {
	return &jsonScope{ScopeBase: runner.NewScopeBase(p, run), probe: p}
}

type jsonScope struct {
	*runner.ScopeBase
	probe *JSONProbe
	data  any
}

// Stop extracts the document while the page is still alive. Extraction
// must stay cheap; processing waits until teardown.
func (s *jsonScope) Stop(ctx context.Context, run *runner.Run) (err error) {
	a := run.Actions("extract " + s.probe.Name())
	defer a.Close(&err)
	s.data, err = s.probe.Extract(ctx, run)
	if err != nil {
		return err
	}
	if s.data == nil {
		return fmt.Errorf("probes: %s extracted no data", s.probe.Name())
	}
	return nil
}

func (s *jsonScope) TearDown(ctx context.Context, run *runner.Run) (runner.ProbeResult, error) {
	if s.data == nil {
		return runner.ProbeResult{}, fmt.Errorf("probes: %s has no data to write", s.probe.Name())
	}
	data := s.data
	if s.probe.Process != nil {
		var err error
		if data, err = s.probe.Process(data); err != nil {
			return runner.ProbeResult{}, err
		}
	}

	if !s.probe.Flatten {
		if err := writeJSONFile(s.ResultsFile(), data); err != nil {
			return runner.ProbeResult{}, err
		}
		return runner.FileResult(s.ResultsFile()), nil
	}

	doc, ok := data.(map[string]any)
	if !ok {
		return runner.ProbeResult{}, fmt.Errorf("probes: %s cannot flatten %T", s.probe.Name(), data)
	}
	flat, err := stats.NewFlatten(nil, doc)
	if err != nil {
		return runner.ProbeResult{}, err
	}
	flatFile := s.ResultsFile()
	rawFile := strings.TrimSuffix(flatFile, ".json") + ".raw.json"
	if err := writeJSONFile(flatFile, flat.Data()); err != nil {
		return runner.ProbeResult{}, err
	}
	if err := writeJSONFile(rawFile, data); err != nil {
		return runner.ProbeResult{}, err
	}
	// The flattened file comes first: it is the mergeable one.
	return runner.FilesResult(flatFile, rawFile), nil
}

// MergeRepetitions accumulates every repetition's flattened document
// into per-key sample buckets and writes the statistical expansion
// plus a geomean CSV.
func (p *JSONProbe) MergeRepetitions(ctx context.Context, group *runner.RepetitionsRunGroup) (runner.ProbeResult, error) {
	merger := stats.NewMerger(nil)
	for _, run := range group.Runs() {
		result, ok := run.Results().GetByName(p.Name())
		if !ok || result.IsEmpty() {
			return runner.ProbeResult{}, fmt.Errorf("probes: %s produced no data to merge for run %s",
				p.Name(), run.Name())
		}
		doc, err := readJSONFile(result.File())
		if err != nil {
			return runner.ProbeResult{}, err
		}
		merger.Add(doc)
	}
	return p.writeGroupResult(group, merger, true)
}

// MergeStories merges the per-story repetition results of one browser.
// Identical keys from different stories are genuine duplicates here,
// so they accumulate instead of triggering the ambiguity drop.
func (p *JSONProbe) MergeStories(ctx context.Context, group *runner.StoriesRunGroup) (runner.ProbeResult, error) {
	merger := stats.NewMerger(nil)
	var files []string
	for _, child := range group.RepetitionsGroups() {
		result, ok := child.Results().GetByName(p.Name())
		if !ok || result.IsEmpty() {
			return runner.ProbeResult{}, fmt.Errorf("probes: %s has no merged repetition data for story %s",
				p.Name(), child.Story().Name())
		}
		files = append(files, result.Entry("json"))
	}
	if err := merger.MergeJSONFiles(files, true); err != nil {
		return runner.ProbeResult{}, err
	}
	return p.writeGroupResult(group, merger, true)
}

// MergeBrowsers joins the per-browser CSV tables column-wise and keeps
// each browser's merged document side by side in one JSON file.
func (p *JSONProbe) MergeBrowsers(ctx context.Context, group *runner.BrowsersRunGroup) (runner.ProbeResult, error) {
	var csvFiles, headers []string
	combined := map[string]any{}
	for _, child := range group.StoryGroups() {
		result, ok := child.Results().GetByName(p.Name())
		if !ok || result.IsEmpty() {
			return runner.ProbeResult{}, fmt.Errorf("probes: %s has no merged story data for browser %s",
				p.Name(), child.Browser().Label())
		}
		csvFiles = append(csvFiles, result.Entry("csv"))
		headers = append(headers, child.Browser().Label())
		doc, err := readJSONFile(result.Entry("json"))
		if err != nil {
			return runner.ProbeResult{}, err
		}
		combined[child.Browser().Label()] = doc
	}

	jsonPath := group.ProbeResultsPath(p)
	if err := writeJSONFile(jsonPath, combined); err != nil {
		return runner.ProbeResult{}, err
	}
	table, err := stats.MergeCSV(csvFiles, headers, '\t')
	if err != nil {
		return runner.ProbeResult{}, err
	}
	csvPath := strings.TrimSuffix(jsonPath, ".json") + ".csv"
	if err := stats.WriteCSV(csvPath, table, '\t'); err != nil {
		return runner.ProbeResult{}, err
	}
	return runner.MapResult(map[string]string{"json": jsonPath, "csv": csvPath}), nil
}

func (p *JSONProbe) writeGroupResult(group resultGroup, merger *stats.Merger, writeCSV bool) (runner.ProbeResult, error) {
	jsonPath := group.ProbeResultsPath(p)
	if err := writeJSONFile(jsonPath, merger.ToJSON(nil)); err != nil {
		return runner.ProbeResult{}, err
	}
	if !writeCSV {
		return runner.FileResult(jsonPath), nil
	}
	csvPath := strings.TrimSuffix(jsonPath, ".json") + ".csv"
	if err := stats.WriteCSV(csvPath, merger.ToCSV(stats.GeomeanValue), '\t'); err != nil {
		return runner.ProbeResult{}, err
	}
	return runner.MapResult(map[string]string{"json": jsonPath, "csv": csvPath}), nil
}

func writeJSONFile(path string, data any) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("probes: marshal %s: %w", path, err)
	}
	return os.WriteFile(path, raw, 0o644)
}

func readJSONFile(path string) (any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("probes: read %s: %w", path, err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("probes: parse %s: %w", path, err)
	}
	return doc, nil
}
