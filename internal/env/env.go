// Package env validates the host before a benchmark session starts.
// Probes declare their host preconditions, the environment decides how
// strictly to enforce them.
package env

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/jamienicol/xbench/internal/exception"
	"github.com/jamienicol/xbench/internal/platform"
	"github.com/jamienicol/xbench/internal/runner"
)

// ValidationMode decides what happens when a host check fails.
type ValidationMode int

const (
	// Throw fails the session on the first violated check.
	Throw ValidationMode = iota
	// Warn logs every violated check and continues.
	Warn
	// Skip runs no checks at all.
	Skip
)

func (m ValidationMode) String() string {
	switch m {
	case Throw:
		return "throw"
	case Warn:
		return "warn"
	case Skip:
		return "skip"
	}
	return fmt.Sprintf("ValidationMode(%d)", int(m))
}

// ParseValidationMode maps the config spelling to a mode.
func ParseValidationMode(s string) (ValidationMode, error) {
	switch s {
	case "", "throw":
		return Throw, nil
	case "warn":
		return Warn, nil
	case "skip":
		return Skip, nil
	}
	return Throw, fmt.Errorf("env: unknown validation mode %q, want throw, warn or skip", s)
}

// HostEnvironment runs every probe's PreCheck against the local host
// before the first browser launches. Failing late wastes a full
// benchmark run, so everything checkable up front is checked here.
type HostEnvironment struct {
	platform *platform.Platform
	logger   *slog.Logger
	mode     ValidationMode
}

func New(p *platform.Platform, logger *slog.Logger, mode ValidationMode) *HostEnvironment {
	if logger == nil {
		logger = slog.Default()
	}
	if p == nil {
		p = platform.New(logger)
	}
	return &HostEnvironment{platform: p, logger: logger, mode: mode}
}

func (e *HostEnvironment) Mode() ValidationMode { return e.mode }

// Validate checks all probe preconditions attached to r. In Warn mode
// every violation is logged; in Throw mode they are collected and
// returned as one batch so the user sees the full list at once.
func (e *HostEnvironment) Validate(r *runner.Runner) error {
	if e.mode == Skip {
		e.logger.Debug("host validation skipped")
		return nil
	}
	annotator := exception.New(false)
	e.checkRunner(r, annotator)
	e.checkBrowsers(r, annotator)
	e.checkPower(annotator)
	for _, probe := range r.Probes() {
		scope := annotator.Capture("validate probe " + probe.Name())
		err := probe.PreCheck(e.platform)
		scope.Close(&err)
	}
	if annotator.IsSuccess() {
		return nil
	}
	if e.mode == Warn {
		annotator.Log(e.logger)
		return nil
	}
	return annotator.AssertSuccess("%d host checks failed", len(annotator.Entries()))
}

// maxReasonableRepetitions is the point where a repetition count is
// more likely a typo than a plan.
const maxReasonableRepetitions = 100

func (e *HostEnvironment) checkRunner(r *runner.Runner, annotator *exception.Annotator) {
	scope := annotator.Capture("validate runner")
	var err error
	if r.Repetitions() > maxReasonableRepetitions {
		err = fmt.Errorf("env: %d repetitions, expect a very long session", r.Repetitions())
	}
	scope.Close(&err)
}

// checkPower flags battery operation: power management throttles the
// CPU and GPU unpredictably while discharging.
func (e *HostEnvironment) checkPower(annotator *exception.Annotator) {
	scope := annotator.Capture("validate power")
	var err error
	if e.platform.IsBatteryPowered() {
		err = errors.New("env: host is running on battery power")
	}
	scope.Close(&err)
}

// checkBrowsers flags setups that skew cross-browser comparison: a mix
// of headless and headful browsers renders under different pipelines,
// so their numbers are not comparable.
func (e *HostEnvironment) checkBrowsers(r *runner.Runner, annotator *exception.Annotator) {
	scope := annotator.Capture("validate browsers")
	var err error
	headless := 0
	for _, browser := range r.Browsers() {
		if browser.IsHeadless() {
			headless++
		}
	}
	if headless != 0 && headless != len(r.Browsers()) {
		err = fmt.Errorf("env: %d of %d browsers are headless, numbers are not comparable",
			headless, len(r.Browsers()))
	}
	scope.Close(&err)
}
