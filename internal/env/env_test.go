package env

import (
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jamienicol/xbench/internal/platform"
	"github.com/jamienicol/xbench/internal/probes"
	"github.com/jamienicol/xbench/internal/runner"
	"github.com/jamienicol/xbench/internal/testutil"
)

type failingProbe struct {
	probes.Base
	err error
}

func newFailingProbe(name string, err error) *failingProbe {
	return &failingProbe{Base: probes.NewBase(name, name+".json"), err: err}
}

func (p *failingProbe) PreCheck(pl *platform.Platform) error { return p.err }

func (p *failingProbe) NewScope(run *runner.Run) runner.Scope {
	panic("not used in validation tests")
}

func newTestRunner(t *testing.T, attached ...runner.Probe) *runner.Runner {
	t.Helper()
	r, err := runner.New(runner.Options{
		OutDir:       filepath.Join(t.TempDir(), "results"),
		Browsers:     []runner.Browser{testutil.NewBrowser("chrome")},
		Stories:      []runner.Story{testutil.NewStory("page")},
		Probes:       attached,
		CoolDownTime: time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestParseValidationMode(t *testing.T) {
	for raw, want := range map[string]ValidationMode{
		"": Throw, "throw": Throw, "warn": Warn, "skip": Skip,
	} {
		got, err := ParseValidationMode(raw)
		if err != nil || got != want {
			t.Errorf("ParseValidationMode(%q) = %v, %v, want %v", raw, got, err, want)
		}
	}
	if _, err := ParseValidationMode("maybe"); err == nil {
		t.Error("want error for unknown mode")
	}
}

func TestValidateThrowCollectsAllFailures(t *testing.T) {
	r := newTestRunner(t,
		newFailingProbe("bad1", errors.New("check one")),
		newFailingProbe("good", nil),
		newFailingProbe("bad2", errors.New("check two")),
	)
	err := New(nil, slog.Default(), Throw).Validate(r)
	if err == nil {
		t.Fatal("want validation error")
	}
	for _, want := range []string{"check one", "check two"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestValidateFlagsExcessiveRepetitions(t *testing.T) {
	r, err := runner.New(runner.Options{
		OutDir:       filepath.Join(t.TempDir(), "results"),
		Browsers:     []runner.Browser{testutil.NewBrowser("chrome")},
		Stories:      []runner.Story{testutil.NewStory("page")},
		Repetitions:  500,
		CoolDownTime: time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	vErr := New(nil, slog.Default(), Throw).Validate(r)
	if vErr == nil || !strings.Contains(vErr.Error(), "repetitions") {
		t.Errorf("err = %v, want repetitions complaint", vErr)
	}
}

func TestValidateFlagsMixedHeadlessBrowsers(t *testing.T) {
	headful := testutil.NewBrowser("firefox")
	headful.Headless = false
	r, err := runner.New(runner.Options{
		OutDir:       filepath.Join(t.TempDir(), "results"),
		Browsers:     []runner.Browser{testutil.NewBrowser("chrome"), headful},
		Stories:      []runner.Story{testutil.NewStory("page")},
		CoolDownTime: time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	vErr := New(nil, slog.Default(), Throw).Validate(r)
	if vErr == nil || !strings.Contains(vErr.Error(), "headless") {
		t.Errorf("err = %v, want headless complaint", vErr)
	}
}

func TestValidateWarnContinues(t *testing.T) {
	r := newTestRunner(t, newFailingProbe("bad", errors.New("boom")))
	if err := New(nil, slog.Default(), Warn).Validate(r); err != nil {
		t.Fatalf("warn mode must not fail: %v", err)
	}
}

func TestValidateSkipRunsNoChecks(t *testing.T) {
	r := newTestRunner(t, newFailingProbe("bad", errors.New("boom")))
	if err := New(nil, slog.Default(), Skip).Validate(r); err != nil {
		t.Fatalf("skip mode must not fail: %v", err)
	}
}
