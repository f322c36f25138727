package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jamienicol/xbench/internal/benchmark"
	"github.com/jamienicol/xbench/internal/browser"
	"github.com/jamienicol/xbench/internal/config"
	"github.com/jamienicol/xbench/internal/env"
	"github.com/jamienicol/xbench/internal/exception"
	"github.com/jamienicol/xbench/internal/platform"
	"github.com/jamienicol/xbench/internal/probes"
	"github.com/jamienicol/xbench/internal/runner"
	"github.com/jamienicol/xbench/internal/tracing"
)

const interruptExitCode = 130

func main() {
	err := runWithInterrupt(os.Args[1:])
	if exception.IsInterrupt(err) {
		fmt.Fprintln(os.Stderr, "Interrupted")
		os.Exit(interruptExitCode)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runWithInterrupt converts the interrupt panic used to unwind the
// benchmark into an error for main.
func runWithInterrupt(args []string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if rErr, ok := r.(error); ok && exception.IsInterrupt(rErr) {
				err = rErr
				return
			}
			panic(r)
		}
	}()
	return run(args)
}

func run(args []string) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	provider, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown", "err", err)
		}
	}()

	browsers, err := buildBrowsers(cfg)
	if err != nil {
		return err
	}
	bench, err := buildBenchmark(cfg)
	if err != nil {
		return err
	}
	attached, err := buildProbes(cfg)
	if err != nil {
		return err
	}

	pl := platform.New(logger)
	r, err := runner.New(runner.Options{
		OutDir:                 cfg.OutDir,
		Browsers:               browsers,
		Stories:                bench.Stories(),
		Probes:                 attached,
		Platform:               pl,
		Logger:                 logger,
		Tracer:                 provider.Tracer(),
		Repetitions:            cfg.Repetitions,
		CoolDownTime:           cfg.CoolDownTime,
		Throw:                  cfg.Throw,
		SkipIncompatibleProbes: cfg.SkipIncompatibleProbes,
	})
	if err != nil {
		return err
	}

	mode, err := env.ParseValidationMode(cfg.EnvValidation)
	if err != nil {
		return err
	}
	if err := env.New(pl, logger, mode).Validate(r); err != nil {
		return err
	}

	logger.Info("starting benchmark",
		"benchmark", bench.Name(),
		"browsers", len(browsers),
		"stories", len(bench.Stories()),
		"repetitions", cfg.Repetitions,
		"session", r.SessionID())
	return r.Run(ctx, cfg.DryRun)
}

func buildBrowsers(cfg *config.Config) ([]runner.Browser, error) {
	browsers := make([]runner.Browser, 0, len(cfg.Browsers))
	for _, b := range cfg.Browsers {
		remote, err := browser.NewRemote(browser.RemoteConfig{
			Label:     b.Label,
			ShortName: b.ShortName,
			URL:       b.URL,
			Headless:  b.Headless,
		})
		if err != nil {
			return nil, err
		}
		browsers = append(browsers, remote)
	}
	return browsers, nil
}

func buildBenchmark(cfg *config.Config) (*benchmark.Benchmark, error) {
	stories := make([]runner.Story, 0, len(cfg.Stories))
	for _, s := range cfg.Stories {
		duration := s.Duration
		if duration <= 0 {
			duration = cfg.StoryDuration
		}
		story, err := benchmark.NewPageLoadStory(s.Name, s.URL, duration)
		if err != nil {
			return nil, err
		}
		stories = append(stories, story)
	}
	return benchmark.New("loading", stories)
}

// buildProbes attaches the always-on probes first so they merge last,
// then the probes the user asked for.
func buildProbes(cfg *config.Config) ([]runner.Probe, error) {
	attached := probes.Defaults()
	for _, p := range cfg.Probes {
		probe, err := probes.FromConfig(p.Name, p.Config)
		if err != nil {
			return nil, err
		}
		attached = append(attached, probe)
	}
	return attached, nil
}
