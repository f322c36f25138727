package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/jamienicol/xbench/internal/exception"
)

// RunGroup is the shared base of the three aggregation levels. Each
// group owns an exclusive output directory, a merged result dict and
// its own failure log; merging iterates the attached probes in reverse
// attachment order and captures each probe's merge failure
// independently.
type RunGroup struct {
	annotator *exception.Annotator
	path      string
	results   *ProbeResultDict
	issued    map[string]bool
}

func newRunGroup(throw bool) RunGroup {
	return RunGroup{annotator: exception.New(throw), issued: map[string]bool{}}
}

func (g *RunGroup) setPath(path string) {
	if g.path != "" {
		panic("runner: group path set twice")
	}
	g.path = path
	g.results = NewProbeResultDict(path)
}

func (g *RunGroup) Path() string                    { return g.path }
func (g *RunGroup) Results() *ProbeResultDict       { return g.results }
func (g *RunGroup) Annotator() *exception.Annotator { return g.annotator }
func (g *RunGroup) IsSuccess() bool                 { return g.annotator.IsSuccess() }

// ProbeResultsPath reserves the canonical merged-result slot for probe
// in this group. A slot issued twice would silently overwrite merged
// data.
func (g *RunGroup) ProbeResultsPath(probe Probe) string {
	name := probe.ResultsFileName()
	if g.issued[name] {
		panic(fmt.Sprintf("runner: results file %q issued twice for group %s", name, g.path))
	}
	g.issued[name] = true
	path := filepath.Join(g.path, name)
	if _, err := os.Stat(path); err == nil {
		panic(fmt.Sprintf("runner: merged results file %s exists already", path))
	}
	return path
}

func (g *RunGroup) merge(ctx context.Context, r *Runner, infoStack []string,
	mergeFn func(context.Context, Probe) (ProbeResult, error)) {
	info := g.annotator.Info(infoStack...)
	defer info.Close(nil)
	probes := r.Probes()
	for i := len(probes) - 1; i >= 0; i-- {
		g.mergeOne(ctx, probes[i], mergeFn)
	}
}

func (g *RunGroup) mergeOne(ctx context.Context, probe Probe,
	mergeFn func(context.Context, Probe) (ProbeResult, error)) {
	var err error
	capture := g.annotator.Capture(fmt.Sprintf("probe %s merge results", probe.Name()))
	defer capture.Close(&err)

	var result ProbeResult
	result, err = mergeFn(ctx, probe)
	if err != nil || result.IsEmpty() {
		return
	}
	g.results.Set(probe, result)
}

// RepetitionsRunGroup aggregates the repeated runs of one
// (story, browser) pair.
type RepetitionsRunGroup struct {
	RunGroup
	runs    []*Run
	story   Story
	browser Browser
}

// GroupRepetitions partitions runs by (story, browser).
func GroupRepetitions(runs []*Run, throw bool) []*RepetitionsRunGroup {
	return groupBy(runs,
		func(run *Run) string {
			return run.Story().Name() + "/" + run.Browser().Label()
		},
		func() *RepetitionsRunGroup {
			return &RepetitionsRunGroup{RunGroup: newRunGroup(throw)}
		},
		(*RepetitionsRunGroup).Append)
}

// Append adds a run; its story and browser must match the group's key.
func (g *RepetitionsRunGroup) Append(run *Run) {
	if g.path == "" {
		g.setPath(run.GroupDir())
		g.story = run.Story()
		g.browser = run.Browser()
	}
	if g.story != run.Story() || g.browser != run.Browser() {
		panic(fmt.Sprintf("runner: run %s does not belong to group %s", run.Name(), g.path))
	}
	g.runs = append(g.runs, run)
}

func (g *RepetitionsRunGroup) Runs() []*Run     { return g.runs }
func (g *RepetitionsRunGroup) Story() Story     { return g.story }
func (g *RepetitionsRunGroup) Browser() Browser { return g.browser }

func (g *RepetitionsRunGroup) Merge(ctx context.Context, r *Runner) {
	info := []string{"browser=" + g.browser.Label(), "story=" + g.story.Name()}
	g.merge(ctx, r, info, func(ctx context.Context, probe Probe) (ProbeResult, error) {
		return probe.MergeRepetitions(ctx, g)
	})
}

// StoriesRunGroup aggregates one RepetitionsRunGroup per story for the
// same browser.
type StoriesRunGroup struct {
	RunGroup
	groups  []*RepetitionsRunGroup
	browser Browser
}

// GroupStories partitions repetition groups by browser.
func GroupStories(groups []*RepetitionsRunGroup, throw bool) []*StoriesRunGroup {
	return groupBy(groups,
		func(g *RepetitionsRunGroup) string { return g.Browser().Label() },
		func() *StoriesRunGroup {
			return &StoriesRunGroup{RunGroup: newRunGroup(throw)}
		},
		(*StoriesRunGroup).Append)
}

// Append adds a repetition group; its browser must match the group's.
func (g *StoriesRunGroup) Append(child *RepetitionsRunGroup) {
	if g.path == "" {
		g.setPath(filepath.Dir(child.Path()))
		g.browser = child.Browser()
	}
	if g.browser != child.Browser() || g.path != filepath.Dir(child.Path()) {
		panic(fmt.Sprintf("runner: group %s does not belong to group %s", child.Path(), g.path))
	}
	g.groups = append(g.groups, child)
}

func (g *StoriesRunGroup) RepetitionsGroups() []*RepetitionsRunGroup { return g.groups }
func (g *StoriesRunGroup) Browser() Browser                          { return g.browser }

func (g *StoriesRunGroup) Stories() []Story {
	stories := make([]Story, 0, len(g.groups))
	for _, child := range g.groups {
		stories = append(stories, child.Story())
	}
	return stories
}

func (g *StoriesRunGroup) Runs() []*Run {
	var runs []*Run
	for _, child := range g.groups {
		runs = append(runs, child.Runs()...)
	}
	return runs
}

func (g *StoriesRunGroup) Merge(ctx context.Context, r *Runner) {
	info := []string{"browser=" + g.browser.Label()}
	g.merge(ctx, r, info, func(ctx context.Context, probe Probe) (ProbeResult, error) {
		return probe.MergeStories(ctx, g)
	})
}

// BrowsersRunGroup is the root aggregator over all browsers.
type BrowsersRunGroup struct {
	RunGroup
	storyGroups []*StoriesRunGroup
}

func NewBrowsersRunGroup(storyGroups []*StoriesRunGroup, throw bool) *BrowsersRunGroup {
	g := &BrowsersRunGroup{RunGroup: newRunGroup(throw), storyGroups: storyGroups}
	if len(storyGroups) > 0 {
		g.setPath(filepath.Dir(storyGroups[0].Path()))
	}
	return g
}

func (g *BrowsersRunGroup) StoryGroups() []*StoriesRunGroup { return g.storyGroups }

func (g *BrowsersRunGroup) RepetitionsGroups() []*RepetitionsRunGroup {
	var groups []*RepetitionsRunGroup
	for _, child := range g.storyGroups {
		groups = append(groups, child.RepetitionsGroups()...)
	}
	return groups
}

func (g *BrowsersRunGroup) Runs() []*Run {
	var runs []*Run
	for _, child := range g.storyGroups {
		runs = append(runs, child.Runs()...)
	}
	return runs
}

func (g *BrowsersRunGroup) Merge(ctx context.Context, r *Runner) {
	g.merge(ctx, r, nil, func(ctx context.Context, probe Probe) (ProbeResult, error) {
		return probe.MergeBrowsers(ctx, g)
	})
}

// groupBy partitions items by key, preserving encounter order inside
// each group. Groups come back sorted by the string form of their key,
// a documented quirk that keeps the output layout deterministic.
func groupBy[T any, G any](items []T, key func(T) string, newGroup func() G, add func(G, T)) []G {
	groups := map[string]G{}
	keys := make([]string, 0)
	for _, item := range items {
		k := key(item)
		group, ok := groups[k]
		if !ok {
			group = newGroup()
			groups[k] = group
			keys = append(keys, k)
		}
		add(group, item)
	}
	sort.Strings(keys)
	out := make([]G, 0, len(keys))
	for _, k := range keys {
		out = append(out, groups[k])
	}
	return out
}
