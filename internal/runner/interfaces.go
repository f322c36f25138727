package runner

import (
	"context"
	"time"

	"github.com/jamienicol/xbench/internal/platform"
)

// Scriptable evaluates JavaScript in the active page and returns the
// JSON-decoded result.
type Scriptable interface {
	JS(ctx context.Context, script string, timeout time.Duration, args ...any) (any, error)
}

// Navigator loads URLs in the active page.
type Navigator interface {
	ShowURL(ctx context.Context, url string) error
}

// Browser is the external collaborator that owns the browser process.
// Launching, binary discovery and the underlying control protocol live
// behind this interface.
type Browser interface {
	Scriptable
	Navigator

	// Label distinguishes browsers in a session, ShortName is the
	// stable directory-safe identifier.
	Label() string
	ShortName() string
	IsHeadless() bool

	SetLogFile(path string)
	AttachProbe(probe Probe)
	Setup(ctx context.Context, run *Run) error
	Quit(ctx context.Context) error
	// ForceQuit cleans up a half-started browser process without
	// error reporting.
	ForceQuit()
	DetailsJSON() map[string]any
}

// Story is one benchmark workload executed inside a run.
type Story interface {
	Name() string
	Duration() time.Duration
	Run(ctx context.Context, run *Run) error
	DetailsJSON() map[string]any
}

// Probe is a stateless measurement descriptor plus Scope factory. One
// Scope exists per (probe, run) pair; the probe itself is attached to
// every browser before the first run starts.
type Probe interface {
	Name() string
	ResultsFileName() string
	// IsGeneralPurpose is false for probes tied to specific stories.
	IsGeneralPurpose() bool
	// ProducesData controls the placeholder entry in the run's
	// result dict and the missing-data warning after teardown.
	ProducesData() bool
	IsCompatible(browser Browser) bool
	// PreCheck validates host preconditions before any run starts.
	PreCheck(p *platform.Platform) error

	NewScope(run *Run) Scope

	// Merge hooks, one per aggregation level. An empty result
	// contributes nothing.
	MergeRepetitions(ctx context.Context, group *RepetitionsRunGroup) (ProbeResult, error)
	MergeStories(ctx context.Context, group *StoriesRunGroup) (ProbeResult, error)
	MergeBrowsers(ctx context.Context, group *BrowsersRunGroup) (ProbeResult, error)
}

// Scope is the live, per-run instance of a probe's measurement
// lifecycle: Setup before the browser launches, Start/Stop cheap
// brackets around the story, TearDown for expensive extraction after
// the browser quit. Concrete scopes embed ScopeBase, which provides
// no-op defaults for every hook.
type Scope interface {
	Probe() Probe
	Setup(ctx context.Context, run *Run) error
	Start(ctx context.Context, run *Run) error
	Stop(ctx context.Context, run *Run) error
	TearDown(ctx context.Context, run *Run) (ProbeResult, error)

	base() *ScopeBase
}
