package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/jamienicol/xbench/internal/exception"
	"github.com/jamienicol/xbench/internal/platform"
)

// Options configures a Runner. OutDir, Browsers and Stories are
// required; everything else has working defaults.
type Options struct {
	OutDir   string
	Browsers []Browser
	Stories  []Story
	// Probes are attached in order; attachment order determines
	// scope creation order and the reverse merge order.
	Probes      []Probe
	Platform    *platform.Platform
	Logger      *slog.Logger
	Tracer      trace.Tracer
	Repetitions int
	// CoolDownTime paces consecutive runs so the previous run's
	// thermal and I/O load does not bleed into the next measurement.
	CoolDownTime time.Duration
	// Throw propagates the first failure immediately (debug mode)
	// instead of accumulating.
	Throw bool
	// SkipIncompatibleProbes warns and skips instead of failing when
	// a probe does not support one of the browsers.
	SkipIncompatibleProbes bool
}

// Runner expands the benchmark matrix and executes it strictly
// sequentially: parallel runs would contend for CPU thermal budget and
// display state that several probes measure.
type Runner struct {
	outDir      string
	browsers    []Browser
	stories     []Story
	probes      []Probe
	attached    map[string]map[string]bool
	platform    *platform.Platform
	logger      *slog.Logger
	tracer      trace.Tracer
	repetitions int
	throw       bool
	skipProbes  bool
	sessionID   string
	limiter     *rate.Limiter
	lock        *flock.Flock
	runs        []*Run
	annotator   *exception.Annotator
	firstFailed *Run
}

// New validates the options, claims the output directory and attaches
// all probes. The output directory must not exist yet: every run and
// group assumes an exclusive, fresh directory tree.
func New(opts Options) (*Runner, error) {
	if len(opts.Browsers) == 0 {
		return nil, errors.New("runner: no browsers")
	}
	if len(opts.Stories) == 0 {
		return nil, errors.New("runner: no stories")
	}
	labels := map[string]bool{}
	for _, browser := range opts.Browsers {
		if labels[browser.Label()] {
			return nil, fmt.Errorf("runner: duplicate browser label %q", browser.Label())
		}
		labels[browser.Label()] = true
	}
	if opts.Repetitions <= 0 {
		opts.Repetitions = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Platform == nil {
		opts.Platform = platform.New(opts.Logger)
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("xbench")
	}
	if opts.CoolDownTime <= 0 {
		opts.CoolDownTime = 2 * time.Second
	}
	if _, err := os.Stat(opts.OutDir); err == nil {
		return nil, fmt.Errorf("runner: output dir %s exists already", opts.OutDir)
	}
	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("runner: create output dir: %w", err)
	}

	lock := flock.New(filepath.Join(opts.OutDir, ".lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("runner: lock output dir: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("runner: output dir %s is locked by another session", opts.OutDir)
	}

	r := &Runner{
		outDir:      opts.OutDir,
		browsers:    opts.Browsers,
		stories:     opts.Stories,
		attached:    map[string]map[string]bool{},
		platform:    opts.Platform,
		logger:      opts.Logger,
		tracer:      opts.Tracer,
		repetitions: opts.Repetitions,
		throw:       opts.Throw,
		skipProbes:  opts.SkipIncompatibleProbes,
		sessionID:   ulid.Make().String(),
		limiter:     rate.NewLimiter(rate.Every(opts.CoolDownTime), 1),
		lock:        lock,
		annotator:   exception.New(opts.Throw),
	}
	for _, probe := range opts.Probes {
		if err := r.AttachProbe(probe); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Runner) OutDir() string                   { return r.outDir }
func (r *Runner) Browsers() []Browser              { return r.browsers }
func (r *Runner) Stories() []Story                 { return r.stories }
func (r *Runner) Platform() *platform.Platform     { return r.platform }
func (r *Runner) Logger() *slog.Logger             { return r.logger }
func (r *Runner) SessionID() string                { return r.sessionID }
func (r *Runner) Repetitions() int                 { return r.repetitions }
func (r *Runner) Annotator() *exception.Annotator  { return r.annotator }
func (r *Runner) Runs() []*Run                     { return r.runs }

// Probes returns the attached probes in attachment order.
func (r *Runner) Probes() []Probe {
	return append([]Probe(nil), r.probes...)
}

// IsSuccess reports whether at least one run executed and nothing
// failed.
func (r *Runner) IsSuccess() bool {
	return len(r.runs) > 0 && r.annotator.IsSuccess()
}

// AttachProbe attaches probe to every browser. Attaching the same
// probe twice, to the runner or to one browser, is a programming
// error. An incompatible browser fails hard unless
// SkipIncompatibleProbes was set.
func (r *Runner) AttachProbe(probe Probe) error {
	for _, existing := range r.probes {
		if existing.Name() == probe.Name() {
			panic(fmt.Sprintf("runner: probe %q attached twice", probe.Name()))
		}
	}
	r.probes = append(r.probes, probe)
	for _, browser := range r.browsers {
		if !probe.IsCompatible(browser) {
			if r.skipProbes {
				r.logger.Warn("skipping incompatible probe",
					"probe", probe.Name(), "browser", browser.ShortName())
				continue
			}
			return fmt.Errorf("runner: probe %q is not compatible with browser %s",
				probe.Name(), browser.ShortName())
		}
		r.attach(probe, browser)
	}
	return nil
}

func (r *Runner) attach(probe Probe, browser Browser) {
	byBrowser := r.attached[probe.Name()]
	if byBrowser == nil {
		byBrowser = map[string]bool{}
		r.attached[probe.Name()] = byBrowser
	}
	if byBrowser[browser.Label()] {
		panic(fmt.Sprintf("runner: probe %q attached twice to browser %s",
			probe.Name(), browser.Label()))
	}
	byBrowser[browser.Label()] = true
	browser.AttachProbe(probe)
}

// coolDown paces consecutive runs. The first run starts immediately.
func (r *Runner) coolDown(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// planRuns expands the matrix in iteration, story, browser order.
func (r *Runner) planRuns() []*Run {
	var runs []*Run
	for iteration := 0; iteration < r.repetitions; iteration++ {
		for _, story := range r.stories {
			for _, browser := range r.browsers {
				runs = append(runs, newRun(r, browser, story, iteration))
			}
		}
	}
	return runs
}

func (r *Runner) collectSystemDetails() error {
	details := r.platform.SystemDetails()
	details["session"] = r.sessionID
	raw, err := json.MarshalIndent(details, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(r.outDir, "system_details.json"), raw, 0o644)
}

// Run executes every run in matrix order, then merges results
// bottom-up. Individual failures are accumulated; the returned error
// is the single batch from AssertSuccess, non-nil iff anything failed.
func (r *Runner) Run(ctx context.Context, dryRun bool) error {
	defer r.lock.Unlock()

	if err := r.collectSystemDetails(); err != nil {
		return fmt.Errorf("runner: collect system details: %w", err)
	}
	r.runs = r.planRuns()

	failed := 0
	for _, run := range r.runs {
		runCtx, span := r.tracer.Start(ctx, "run", trace.WithAttributes(
			attribute.String("browser", run.Browser().ShortName()),
			attribute.String("story", run.Story().Name()),
			attribute.Int("iteration", run.Iteration()),
		))
		run.Run(runCtx, dryRun)
		span.End()
		// A cancelled root context means the user aborted: unwind
		// instead of grinding through the remaining matrix.
		if ctx.Err() != nil {
			panic(exception.ErrInterrupt)
		}
		if !run.IsSuccess() {
			r.annotator.Extend(run.Annotator(), false)
			failed++
			if r.firstFailed == nil {
				r.firstFailed = run
			}
		}
	}

	if !dryRun {
		r.mergeResults(ctx)
	}
	r.logger.Info("results", "dir", r.outDir)
	if r.IsSuccess() {
		return nil
	}

	msg := fmt.Sprintf("%d/%d runs failed", failed, len(r.runs))
	if failed == 0 {
		msg = "merging results failed"
	}
	if r.firstFailed != nil {
		msg += ", first failure in " + r.firstFailed.OutDir()
	}
	return r.annotator.AssertSuccess("%s", msg)
}

// mergeResults walks the aggregation hierarchy bottom-up. Every
// level's failures extend the runner's log, nested under the level's
// breadcrumb, without blocking the other levels.
func (r *Runner) mergeResults(ctx context.Context) *BrowsersRunGroup {
	r.logger.Info("merging probe data", "level", "repetitions")
	repetitionGroups := GroupRepetitions(r.runs, r.throw)
	info := r.annotator.Info("merging results from multiple repetitions")
	for _, group := range repetitionGroups {
		group.Merge(ctx, r)
		r.annotator.Extend(group.Annotator(), true)
	}
	info.Close(nil)

	r.logger.Info("merging probe data", "level", "stories")
	storyGroups := GroupStories(repetitionGroups, r.throw)
	info = r.annotator.Info("merging results from multiple stories")
	for _, group := range storyGroups {
		group.Merge(ctx, r)
		r.annotator.Extend(group.Annotator(), true)
	}
	info.Close(nil)

	r.logger.Info("merging probe data", "level", "browsers")
	browserGroup := NewBrowsersRunGroup(storyGroups, r.throw)
	info = r.annotator.Info("merging results from multiple browsers")
	browserGroup.Merge(ctx, r)
	r.annotator.Extend(browserGroup.Annotator(), true)
	info.Close(nil)

	return browserGroup
}
