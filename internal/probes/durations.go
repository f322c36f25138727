package probes

import (
	"context"

	"github.com/jamienicol/xbench/internal/runner"
	"github.com/jamienicol/xbench/internal/stats"
)

// DurationsProbe records how long each phase of a run took and merges
// the timings into per-phase sample buckets across repetitions.
type DurationsProbe struct {
	Base
}

func NewDurationsProbe() *DurationsProbe {
	return &DurationsProbe{Base: NewBase("durations", "durations.json")}
}

func (p *DurationsProbe) NewScope(run *runner.Run) runner.Scope {
	return &durationsScope{ScopeBase: runner.NewScopeBase(p, run)}
}

type durationsScope struct {
	*runner.ScopeBase
}

func (s *durationsScope) TearDown(ctx context.Context, run *runner.Run) (runner.ProbeResult, error) {
	if err := writeJSONFile(s.ResultsFile(), run.Durations().ToJSON()); err != nil {
		return runner.ProbeResult{}, err
	}
	return runner.FileResult(s.ResultsFile()), nil
}

func (p *DurationsProbe) MergeRepetitions(ctx context.Context, group *runner.RepetitionsRunGroup) (runner.ProbeResult, error) {
	merger := stats.NewMerger(nil)
	for _, run := range group.Runs() {
		doc := make(map[string]any, run.Durations().Len())
		for name, seconds := range run.Durations().ToJSON() {
			doc[name] = seconds
		}
		merger.Add(doc)
	}
	path := group.ProbeResultsPath(p)
	if err := writeJSONFile(path, merger.ToJSON(nil)); err != nil {
		return runner.ProbeResult{}, err
	}
	return runner.FileResult(path), nil
}
