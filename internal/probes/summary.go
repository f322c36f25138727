package probes

import (
	"context"

	"github.com/jamienicol/xbench/internal/runner"
)

// ResultsSummaryProbe writes the results.json manifest at every level:
// per run it records browser, story, durations, probe results and
// failures; per group it records the merged probe results plus the
// children's manifests. It is attached first so the reverse merge
// order lets it observe every other probe's merged output.
type ResultsSummaryProbe struct {
	Base
}

func NewResultsSummaryProbe() *ResultsSummaryProbe {
	return &ResultsSummaryProbe{Base: NewBase("results", "results.json")}
}

func (p *ResultsSummaryProbe) NewScope(run *runner.Run) runner.Scope {
	return &summaryScope{ScopeBase: runner.NewScopeBase(p, run)}
}

type summaryScope struct {
	*runner.ScopeBase
}

func (s *summaryScope) TearDown(ctx context.Context, run *runner.Run) (runner.ProbeResult, error) {
	doc := map[string]any{
		"browser":   run.BrowserDetailsJSON(),
		"story":     run.Story().DetailsJSON(),
		"iteration": run.Iteration(),
		"durations": run.Durations().ToJSON(),
		"probes":    run.Results().ToJSON(),
		"errors":    run.Annotator().ToJSON(),
	}
	if err := writeJSONFile(s.ResultsFile(), doc); err != nil {
		return runner.ProbeResult{}, err
	}
	return runner.FileResult(s.ResultsFile()), nil
}

func (p *ResultsSummaryProbe) MergeRepetitions(ctx context.Context, group *runner.RepetitionsRunGroup) (runner.ProbeResult, error) {
	children := make([]any, 0, len(group.Runs()))
	for _, run := range group.Runs() {
		children = append(children, run.Results().Get(p).ToJSON())
	}
	return p.writeSummary(group, map[string]any{
		"story":   group.Story().DetailsJSON(),
		"browser": group.Browser().Label(),
		"probes":  group.Results().ToJSON(),
		"runs":    children,
		"errors":  group.Annotator().ToJSON(),
	})
}

func (p *ResultsSummaryProbe) MergeStories(ctx context.Context, group *runner.StoriesRunGroup) (runner.ProbeResult, error) {
	children := make([]any, 0, len(group.RepetitionsGroups()))
	for _, child := range group.RepetitionsGroups() {
		children = append(children, child.Results().Get(p).ToJSON())
	}
	return p.writeSummary(group, map[string]any{
		"browser": group.Browser().Label(),
		"probes":  group.Results().ToJSON(),
		"stories": children,
		"errors":  group.Annotator().ToJSON(),
	})
}

func (p *ResultsSummaryProbe) MergeBrowsers(ctx context.Context, group *runner.BrowsersRunGroup) (runner.ProbeResult, error) {
	children := make([]any, 0, len(group.StoryGroups()))
	for _, child := range group.StoryGroups() {
		children = append(children, child.Results().Get(p).ToJSON())
	}
	return p.writeSummary(group, map[string]any{
		"probes":   group.Results().ToJSON(),
		"browsers": children,
		"errors":   group.Annotator().ToJSON(),
	})
}

func (p *ResultsSummaryProbe) writeSummary(group resultGroup, doc map[string]any) (runner.ProbeResult, error) {
	path := group.ProbeResultsPath(p)
	if err := writeJSONFile(path, doc); err != nil {
		return runner.ProbeResult{}, err
	}
	return runner.FileResult(path), nil
}
