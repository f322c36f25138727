package runner

import (
	"context"
	"time"
)

// ScopeBase carries the state shared by every probe scope: identity,
// the canonical results file and the synchronized timestamps. Concrete
// scopes embed *ScopeBase and override the lifecycle hooks they need;
// the defaults are no-ops.
type ScopeBase struct {
	probe       Probe
	run         *Run
	resultsFile string
	startTime   time.Time
	stopTime    time.Time
	success     bool
}

// NewScopeBase reserves the probe's result-file slot in run and
// returns the base every concrete scope embeds.
func NewScopeBase(probe Probe, run *Run) *ScopeBase {
	return &ScopeBase{
		probe:       probe,
		run:         run,
		resultsFile: run.ProbeResultsPath(probe),
	}
}

func (b *ScopeBase) base() *ScopeBase { return b }

func (b *ScopeBase) Probe() Probe { return b.probe }
func (b *ScopeBase) Run() *Run    { return b.run }

// ResultsFile is the default path the scope writes its data to.
func (b *ScopeBase) ResultsFile() string { return b.resultsFile }

// setStartTime installs the start timestamp shared by all scopes of a
// run, so cross-probe attach skew does not distort measured durations.
func (b *ScopeBase) setStartTime(t time.Time) {
	if !b.startTime.IsZero() {
		panic("runner: scope start time set twice")
	}
	b.startTime = t
}

// StartTime returns the unified start time of the run's scopes.
func (b *ScopeBase) StartTime() time.Time { return b.startTime }

func (b *ScopeBase) setStopTime(t time.Time) { b.stopTime = t }
func (b *ScopeBase) markSuccess()            { b.success = true }

// IsSuccess is true only after Stop completed without error.
func (b *ScopeBase) IsSuccess() bool { return b.success }

// Duration is undefined unless both timestamps are set.
func (b *ScopeBase) Duration() time.Duration {
	if b.startTime.IsZero() || b.stopTime.IsZero() {
		panic("runner: scope duration read before start and stop")
	}
	return b.stopTime.Sub(b.startTime)
}

// Default lifecycle hooks.

func (b *ScopeBase) Setup(ctx context.Context, run *Run) error { return nil }
func (b *ScopeBase) Start(ctx context.Context, run *Run) error { return nil }
func (b *ScopeBase) Stop(ctx context.Context, run *Run) error  { return nil }
func (b *ScopeBase) TearDown(ctx context.Context, run *Run) (ProbeResult, error) {
	return ProbeResult{}, nil
}
