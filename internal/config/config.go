// Package config loads the session configuration from a config file
// and command-line flags. Flags override file settings.
package config

import (
	"errors"
	"fmt"
	"time"
)

// BrowserConfig describes one browser agent endpoint.
type BrowserConfig struct {
	Label     string
	ShortName string
	URL       string
	Headless  bool
}

// StoryConfig describes one page-load story.
type StoryConfig struct {
	Name     string
	URL      string
	Duration time.Duration
}

// ProbeConfig names an optional probe plus its settings block.
type ProbeConfig struct {
	Name   string
	Config map[string]any
}

// TracingConfig configures the OpenTelemetry exporter. An empty
// endpoint disables tracing.
type TracingConfig struct {
	Endpoint    string
	Protocol    string // grpc or http
	Insecure    bool
	SampleRatio float64
}

// Config is the fully resolved session configuration.
type Config struct {
	OutDir                 string
	Repetitions            int
	CoolDownTime           time.Duration
	StoryDuration          time.Duration
	Throw                  bool
	DryRun                 bool
	SkipIncompatibleProbes bool
	EnvValidation          string
	Verbose                bool

	Browsers []BrowserConfig
	Stories  []StoryConfig
	Probes   []ProbeConfig

	Tracing    TracingConfig
	ConfigFile string
}

// Validate checks the cross-field requirements that no single setting
// parser can see.
func (c *Config) Validate() error {
	if len(c.Browsers) == 0 {
		return errors.New("config: no browsers configured")
	}
	if len(c.Stories) == 0 {
		return errors.New("config: no stories configured")
	}
	if c.OutDir == "" {
		return errors.New("config: no output directory")
	}
	if c.Repetitions <= 0 {
		return fmt.Errorf("config: repetitions must be positive, got %d", c.Repetitions)
	}
	labels := map[string]bool{}
	for _, b := range c.Browsers {
		if labels[b.Label] {
			return fmt.Errorf("config: duplicate browser label %q", b.Label)
		}
		labels[b.Label] = true
	}
	names := map[string]bool{}
	for _, p := range c.Probes {
		if names[p.Name] {
			return fmt.Errorf("config: probe %q configured twice", p.Name)
		}
		names[p.Name] = true
	}
	switch c.Tracing.Protocol {
	case "", "grpc", "http":
	default:
		return fmt.Errorf("config: tracing protocol %q, want grpc or http", c.Tracing.Protocol)
	}
	return nil
}
