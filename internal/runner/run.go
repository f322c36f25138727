package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jamienicol/xbench/internal/exception"
	"github.com/jamienicol/xbench/internal/platform"
)

// State is the position of a Run in its lifecycle. Transitions are
// strictly forward, never skipped or repeated.
type State int

const (
	StateInitial State = iota
	StatePrepare
	StateRun
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StatePrepare:
		return "prepare"
	case StateRun:
		return "run"
	case StateDone:
		return "done"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Run is one (browser, story, iteration) instance of the matrix. It
// owns an exclusive output directory, one scope per attached probe and
// its own failure log, so a broken run never halts its siblings.
type Run struct {
	runner    *Runner
	browser   Browser
	story     Story
	iteration int
	name      string
	outDir    string
	state     State
	results   *ProbeResultDict
	durations *platform.Durations
	annotator *exception.Annotator
	logger    *slog.Logger
	issued    map[string]bool
}

func newRun(r *Runner, browser Browser, story Story, iteration int) *Run {
	outDir := filepath.Join(r.outDir, browser.ShortName(), story.Name(), strconv.Itoa(iteration))
	return &Run{
		runner:    r,
		browser:   browser,
		story:     story,
		iteration: iteration,
		name:      fmt.Sprintf("%s[%d]", story.Name(), iteration),
		outDir:    outDir,
		results:   NewProbeResultDict(outDir),
		durations: platform.NewDurations(),
		annotator: exception.New(r.throw),
		logger:    r.logger,
		issued:    map[string]bool{},
	}
}

func (r *Run) Runner() *Runner                 { return r.runner }
func (r *Run) Browser() Browser                { return r.browser }
func (r *Run) Story() Story                    { return r.story }
func (r *Run) Iteration() int                  { return r.iteration }
func (r *Run) Name() string                    { return r.name }
func (r *Run) OutDir() string                  { return r.outDir }
func (r *Run) State() State                    { return r.state }
func (r *Run) Results() *ProbeResultDict       { return r.results }
func (r *Run) Durations() *platform.Durations  { return r.durations }
func (r *Run) Annotator() *exception.Annotator { return r.annotator }
func (r *Run) Logger() *slog.Logger            { return r.logger }
func (r *Run) Platform() *platform.Platform    { return r.runner.platform }

// GroupDir is the parent directory shared by all repetitions of the
// same (story, browser) pair.
func (r *Run) GroupDir() string { return filepath.Dir(r.outDir) }

// IsSuccess reports whether the run recorded no failure.
func (r *Run) IsSuccess() bool { return r.annotator.IsSuccess() }

// advance moves the state machine one step. A mismatch is a
// programmer error, never user-recoverable.
func (r *Run) advance(expected, next State) {
	if r.state != expected {
		panic(fmt.Sprintf("runner: invalid run state %v, expected %v", r.state, expected))
	}
	r.state = next
}

// ProbeResultsPath reserves the canonical result-file slot for probe.
// Issuing the same slot twice would let one probe silently overwrite
// another's data.
func (r *Run) ProbeResultsPath(probe Probe) string {
	name := probe.ResultsFileName()
	if r.issued[name] {
		panic(fmt.Sprintf("runner: results file %q issued twice for run %s", name, r.name))
	}
	r.issued[name] = true
	path := filepath.Join(r.outDir, name)
	if _, err := os.Stat(path); err == nil {
		panic(fmt.Sprintf("runner: results file %s exists already", path))
	}
	return path
}

// BrowserDetailsJSON collects the browser description recorded in the
// run's result summary.
func (r *Run) BrowserDetailsJSON() map[string]any {
	return r.browser.DetailsJSON()
}

func (r *Run) infoStack() []string {
	return []string{
		"run " + r.name,
		"browser=" + r.browser.Label(),
		"story=" + r.story.Name(),
		fmt.Sprintf("iteration=%d", r.iteration),
	}
}

// Run executes the full lifecycle. Failures are captured into the
// run's own annotator; only internal-invariant violations and
// interrupts escape.
func (r *Run) Run(ctx context.Context, dryRun bool) {
	if dryRun {
		r.logger.Info("dry run",
			"browser", r.browser.ShortName(), "story", r.story.Name(), "iteration", r.iteration)
		return
	}
	if err := os.MkdirAll(r.outDir, 0o755); err != nil {
		r.annotator.Append(fmt.Errorf("create output dir: %w", err))
		return
	}
	// Story and probe code relies on relative paths, so the process
	// working directory points at the run's output directory for the
	// whole lifecycle.
	wd, err := platform.Enter(r.outDir)
	if err != nil {
		r.annotator.Append(err)
		return
	}
	defer wd.Restore()

	info := r.annotator.Info(r.infoStack()...)
	defer info.Close(nil)

	scopes, err := r.setup(ctx)
	if err != nil {
		r.annotator.Append(err)
		return
	}
	r.advance(StatePrepare, StateRun)
	r.logger.Debug("cwd", "dir", r.outDir)
	defer r.tearDown(ctx, scopes)
	if err := r.execute(ctx, scopes); err != nil {
		r.annotator.Append(err)
	}
}

// setup runs the PREPARE phase: cooldown, scope creation in probe
// attachment order, pre-launch scope hooks, then the browser launch.
// A launch failure force-quits the half-started browser and returns.
func (r *Run) setup(ctx context.Context) ([]Scope, error) {
	r.logger.Info("prepare", "run", r.name)
	r.advance(StateInitial, StatePrepare)
	r.browser.SetLogFile(filepath.Join(r.outDir, "browser.log"))

	stop := r.durations.Measure("runner-cooldown")
	err := r.runner.coolDown(ctx)
	stop()
	if err != nil {
		return nil, err
	}

	stop = r.durations.Measure("probes-creation")
	var scopes []Scope
	seen := map[string]bool{}
	for _, probe := range r.runner.Probes() {
		if seen[probe.Name()] {
			panic(fmt.Sprintf("runner: duplicate probe %q", probe.Name()))
		}
		seen[probe.Name()] = true
		if probe.ProducesData() {
			r.results.Set(probe, ProbeResult{})
		}
		scopes = append(scopes, probe.NewScope(r))
	}
	stop()

	stop = r.durations.Measure("probes-setup")
	for _, scope := range scopes {
		if err := r.setupScope(ctx, scope); err != nil {
			stop()
			return nil, err
		}
	}
	stop()

	stop = r.durations.Measure("browser-setup")
	defer stop()
	if err := r.browser.Setup(ctx, r); err != nil {
		r.browser.ForceQuit()
		return nil, fmt.Errorf("browser setup: %w", err)
	}
	return scopes, nil
}

func (r *Run) setupScope(ctx context.Context, scope Scope) (err error) {
	info := r.annotator.Info(fmt.Sprintf("probe %s setup", scope.Probe().Name()))
	defer info.Close(&err)
	return scope.Setup(ctx, r)
}

// execute starts every scope with one shared start timestamp, runs the
// story, and stops the scopes in reverse order on every exit path.
func (r *Run) execute(ctx context.Context, scopes []Scope) error {
	start := r.runner.platform.Now()
	for _, scope := range scopes {
		scope.base().setStartTime(start)
		if err := scope.Start(ctx, r); err != nil {
			r.annotator.Append(fmt.Errorf("probe %s start: %w", scope.Probe().Name(), err))
		}
	}
	r.durations.Set("probes-start", r.runner.platform.Now().Sub(start))
	defer r.stopScopes(ctx, scopes)

	r.logger.Info("run",
		"browser", r.browser.ShortName(), "story", r.story.Name(), "iteration", r.iteration)
	stop := r.durations.Measure("run")
	defer stop()
	return r.story.Run(ctx, r)
}

// stopScopes stops in reverse order, capturing each failure
// independently. A scope is successful only when its stop returned
// clean.
func (r *Run) stopScopes(ctx context.Context, scopes []Scope) {
	for i := len(scopes) - 1; i >= 0; i-- {
		scope := scopes[i]
		if err := scope.Stop(ctx, r); err != nil {
			r.annotator.Append(fmt.Errorf("probe %s stop: %w", scope.Probe().Name(), err))
		} else {
			scope.base().markSuccess()
		}
		scope.base().setStopTime(r.runner.platform.Now())
	}
}

// tearDown quits the browser first (failure captured so probe data is
// still extracted), then tears down the scopes in reverse order with
// per-scope failure capture, writing each result into the run's dict.
func (r *Run) tearDown(ctx context.Context, scopes []Scope) {
	r.advance(StateRun, StateDone)

	stop := r.durations.Measure("browser-tear_down")
	r.quitBrowser(ctx)
	stop()

	stop = r.durations.Measure("probes-tear_down")
	defer stop()
	r.logger.Info("teardown", "run", r.name)
	for i := len(scopes) - 1; i >= 0; i-- {
		r.tearDownScope(ctx, scopes[i])
	}
}

func (r *Run) quitBrowser(ctx context.Context) {
	var err error
	capture := r.annotator.Capture("quit browser")
	defer capture.Close(&err)
	err = r.browser.Quit(ctx)
}

func (r *Run) tearDownScope(ctx context.Context, scope Scope) {
	var err error
	capture := r.annotator.Capture(fmt.Sprintf("probe %s teardown", scope.Probe().Name()))
	defer capture.Close(&err)

	var result ProbeResult
	result, err = scope.TearDown(ctx, r)
	if err != nil {
		return
	}
	if result.IsEmpty() && scope.Probe().ProducesData() {
		r.logger.Warn("probe extracted no data", "probe", scope.Probe().Name(), "run", r.name)
	}
	r.results.Set(scope.Probe(), result)
}
