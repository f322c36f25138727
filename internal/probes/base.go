package probes

import (
	"context"

	"github.com/jamienicol/xbench/internal/platform"
	"github.com/jamienicol/xbench/internal/runner"
)

// Base supplies the descriptor half of runner.Probe: identity plus
// permissive defaults for compatibility, pre-checks and the merge
// hooks. Concrete probes embed it and override what they need; only
// NewScope always comes from the concrete type.
type Base struct {
	name     string
	fileName string
}

// NewBase names a probe and its per-run results file.
func NewBase(name, fileName string) Base {
	if name == "" {
		panic("probes: probe needs a name")
	}
	return Base{name: name, fileName: fileName}
}

func (b Base) Name() string            { return b.name }
func (b Base) ResultsFileName() string { return b.fileName }
func (b Base) IsGeneralPurpose() bool  { return true }
func (b Base) ProducesData() bool      { return true }

func (b Base) IsCompatible(browser runner.Browser) bool { return true }

func (b Base) PreCheck(p *platform.Platform) error { return nil }

func (b Base) MergeRepetitions(ctx context.Context, group *runner.RepetitionsRunGroup) (runner.ProbeResult, error) {
	return runner.ProbeResult{}, nil
}

func (b Base) MergeStories(ctx context.Context, group *runner.StoriesRunGroup) (runner.ProbeResult, error) {
	return runner.ProbeResult{}, nil
}

func (b Base) MergeBrowsers(ctx context.Context, group *runner.BrowsersRunGroup) (runner.ProbeResult, error) {
	return runner.ProbeResult{}, nil
}
