package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "xbench",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Session flags
	flags.StringP("out-dir", "o", "", "Results directory, must not exist yet")
	flags.IntP("repetitions", "r", 1, "How often each story runs per browser")
	flags.Duration("cooldown", 2*time.Second, "Pause between consecutive runs")
	flags.Bool("throw", false, "Abort on the first failure instead of accumulating")
	flags.Bool("dry-run", false, "Plan the run matrix without executing it")
	flags.BoolP("verbose", "v", false, "Debug logging")

	// Workload flags
	flags.StringSlice("browser", nil, "Browser endpoint as [label=]ws://host:port (repeatable)")
	flags.Bool("headless", false, "Mark configured browsers as headless")
	flags.StringSlice("story", nil, "Page URL to benchmark (repeatable)")
	flags.Duration("story-duration", 15*time.Second, "How long each page stays loaded")

	// Probe flags
	flags.StringSlice("probe", nil, "Extra probe to attach by name (repeatable)")
	flags.String("probe-config", "", "YAML file with per-probe settings")
	flags.Bool("skip-incompatible-probes", false, "Skip probes a browser does not support instead of failing")

	// Environment flags
	flags.String("env-validation", "throw", "Host check strictness: throw, warn or skip")

	// Observability flags
	flags.String("tracing-endpoint", "", "OTLP collector endpoint (empty disables tracing)")
	flags.String("tracing-protocol", "grpc", "OTLP transport: grpc or http")
	flags.Bool("tracing-insecure", false, "Skip TLS for the OTLP exporter")
	flags.Float64("tracing-sample-ratio", 1.0, "Fraction of runs to trace")

	flags.String("config", "", "Path to configuration file (JSON or YAML)")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config,
// overriding values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if fs.Changed("out-dir") {
		val, err := fs.GetString("out-dir")
		if err != nil {
			return err
		}
		cfg.OutDir = val
	}
	if fs.Changed("repetitions") {
		val, err := fs.GetInt("repetitions")
		if err != nil {
			return err
		}
		cfg.Repetitions = val
	}
	if fs.Changed("cooldown") {
		val, err := fs.GetDuration("cooldown")
		if err != nil {
			return err
		}
		cfg.CoolDownTime = val
	}
	if fs.Changed("throw") {
		val, err := fs.GetBool("throw")
		if err != nil {
			return err
		}
		cfg.Throw = val
	}
	if fs.Changed("dry-run") {
		val, err := fs.GetBool("dry-run")
		if err != nil {
			return err
		}
		cfg.DryRun = val
	}
	if fs.Changed("verbose") {
		val, err := fs.GetBool("verbose")
		if err != nil {
			return err
		}
		cfg.Verbose = val
	}
	if fs.Changed("story-duration") {
		val, err := fs.GetDuration("story-duration")
		if err != nil {
			return err
		}
		cfg.StoryDuration = val
	}
	if fs.Changed("skip-incompatible-probes") {
		val, err := fs.GetBool("skip-incompatible-probes")
		if err != nil {
			return err
		}
		cfg.SkipIncompatibleProbes = val
	}
	if fs.Changed("env-validation") {
		val, err := fs.GetString("env-validation")
		if err != nil {
			return err
		}
		cfg.EnvValidation = val
	}
	if fs.Changed("tracing-endpoint") {
		val, err := fs.GetString("tracing-endpoint")
		if err != nil {
			return err
		}
		cfg.Tracing.Endpoint = val
	}
	if fs.Changed("tracing-protocol") {
		val, err := fs.GetString("tracing-protocol")
		if err != nil {
			return err
		}
		cfg.Tracing.Protocol = val
	}
	if fs.Changed("tracing-insecure") {
		val, err := fs.GetBool("tracing-insecure")
		if err != nil {
			return err
		}
		cfg.Tracing.Insecure = val
	}
	if fs.Changed("tracing-sample-ratio") {
		val, err := fs.GetFloat64("tracing-sample-ratio")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRatio = val
	}
	if fs.Changed("browser") {
		specs, err := fs.GetStringSlice("browser")
		if err != nil {
			return err
		}
		headless, err := fs.GetBool("headless")
		if err != nil {
			return err
		}
		browsers, err := parseBrowserFlags(specs, headless)
		if err != nil {
			return err
		}
		cfg.Browsers = browsers
	}
	if fs.Changed("story") {
		urls, err := fs.GetStringSlice("story")
		if err != nil {
			return err
		}
		cfg.Stories = nil
		for _, url := range urls {
			cfg.Stories = append(cfg.Stories, StoryConfig{URL: url})
		}
	}
	if fs.Changed("probe") {
		names, err := fs.GetStringSlice("probe")
		if err != nil {
			return err
		}
		for _, name := range names {
			cfg.Probes = append(cfg.Probes, ProbeConfig{Name: name})
		}
	}
	if fs.Changed("probe-config") {
		path, err := fs.GetString("probe-config")
		if err != nil {
			return err
		}
		probes, err := LoadProbeFile(path)
		if err != nil {
			return err
		}
		cfg.Probes = append(cfg.Probes, probes...)
	}
	return nil
}
