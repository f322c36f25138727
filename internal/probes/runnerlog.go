package probes

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/jamienicol/xbench/internal/runner"
)

// RunnerLogProbe writes a plain-text account of each run: final state,
// phase timings and every captured failure. It exists for humans
// digging through a results directory, so the format is lines, not
// JSON.
type RunnerLogProbe struct {
	Base
}

func NewRunnerLogProbe() *RunnerLogProbe {
	return &RunnerLogProbe{Base: NewBase("runner.log", "runner.log")}
}

func (p *RunnerLogProbe) NewScope(run *runner.Run) runner.Scope {
	return &runnerLogScope{ScopeBase: runner.NewScopeBase(p, run)}
}

type runnerLogScope struct {
	*runner.ScopeBase
}

func (s *runnerLogScope) TearDown(ctx context.Context, run *runner.Run) (runner.ProbeResult, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "run: %s\n", run.Name())
	fmt.Fprintf(&b, "browser: %s\n", run.Browser().Label())
	fmt.Fprintf(&b, "story: %s\n", run.Story().Name())
	fmt.Fprintf(&b, "iteration: %d\n", run.Iteration())
	fmt.Fprintf(&b, "state: %s\n", run.State())

	b.WriteString("durations:\n")
	durations := run.Durations().ToJSON()
	names := make([]string, 0, len(durations))
	for name := range durations {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "  %s: %.3fs\n", name, durations[name])
	}

	entries := run.Annotator().Entries()
	fmt.Fprintf(&b, "errors: %d\n", len(entries))
	for _, entry := range entries {
		fmt.Fprintf(&b, "  - %v\n", entry.Err)
		if len(entry.InfoStack) > 0 {
			fmt.Fprintf(&b, "    at: %s\n", strings.Join(entry.InfoStack, " > "))
		}
	}

	if err := os.WriteFile(s.ResultsFile(), []byte(b.String()), 0o644); err != nil {
		return runner.ProbeResult{}, err
	}
	return runner.FileResult(s.ResultsFile()), nil
}

// The merged log is the plain concatenation of the children's logs,
// separated by a marker line per source file.

func (p *RunnerLogProbe) MergeRepetitions(ctx context.Context, group *runner.RepetitionsRunGroup) (runner.ProbeResult, error) {
	var files []string
	for _, run := range group.Runs() {
		if result, ok := run.Results().GetByName(p.Name()); ok && !result.IsEmpty() {
			files = append(files, result.File())
		}
	}
	return p.concatenate(group, files)
}

func (p *RunnerLogProbe) MergeStories(ctx context.Context, group *runner.StoriesRunGroup) (runner.ProbeResult, error) {
	var files []string
	for _, child := range group.RepetitionsGroups() {
		if result, ok := child.Results().GetByName(p.Name()); ok && !result.IsEmpty() {
			files = append(files, result.File())
		}
	}
	return p.concatenate(group, files)
}

func (p *RunnerLogProbe) MergeBrowsers(ctx context.Context, group *runner.BrowsersRunGroup) (runner.ProbeResult, error) {
	var files []string
	for _, child := range group.StoryGroups() {
		if result, ok := child.Results().GetByName(p.Name()); ok && !result.IsEmpty() {
			files = append(files, result.File())
		}
	}
	return p.concatenate(group, files)
}

func (p *RunnerLogProbe) concatenate(group resultGroup, files []string) (runner.ProbeResult, error) {
	if len(files) == 0 {
		return runner.ProbeResult{}, nil
	}
	var b strings.Builder
	for _, file := range files {
		raw, err := os.ReadFile(file)
		if err != nil {
			return runner.ProbeResult{}, err
		}
		fmt.Fprintf(&b, "==> %s\n", file)
		b.Write(raw)
		b.WriteString("\n")
	}
	path := group.ProbeResultsPath(p)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return runner.ProbeResult{}, err
	}
	return runner.FileResult(path), nil
}
