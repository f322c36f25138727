package probes

import (
	"fmt"
	"sort"
	"time"

	"github.com/jamienicol/xbench/internal/runner"
)

// Constructor builds a probe from its configuration block. Config keys
// come straight from the probe section of the config file.
type Constructor func(config map[string]any) (Probe, error)

// Probe aliases the runner-side interface so callers configuring
// probes do not need to import the runner package.
type Probe = runner.Probe

// registry is closed: probes ship with the binary, there is no
// plugin mechanism.
var registry = map[string]Constructor{
	"performance.entries": func(config map[string]any) (Probe, error) {
		if err := rejectUnknownKeys("performance.entries", config); err != nil {
			return nil, err
		}
		return NewPerformanceEntriesProbe(), nil
	},
	"system.stats": func(config map[string]any) (Probe, error) {
		if err := rejectUnknownKeys("system.stats", config, "interval"); err != nil {
			return nil, err
		}
		interval, err := durationConfig(config, "interval", time.Second)
		if err != nil {
			return nil, err
		}
		return NewSystemStatsProbe(interval), nil
	},
}

// Names lists the configurable probes in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FromConfig builds the named probe. Unknown names and unknown config
// keys are errors so typos do not silently drop a probe.
func FromConfig(name string, config map[string]any) (Probe, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("probes: unknown probe %q, have %v", name, Names())
	}
	return ctor(config)
}

// Defaults returns the probes attached to every benchmark. The summary
// probe goes first so the reverse merge order runs it last, after all
// other probes have produced their merged results.
func Defaults() []Probe {
	return []Probe{
		NewResultsSummaryProbe(),
		NewDurationsProbe(),
		NewRunnerLogProbe(),
	}
}

func rejectUnknownKeys(name string, config map[string]any, allowed ...string) error {
	for key := range config {
		known := false
		for _, a := range allowed {
			if key == a {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("probes: %s: unknown config key %q", name, key)
		}
	}
	return nil
}

func durationConfig(config map[string]any, key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := config[key]
	if !ok {
		return fallback, nil
	}
	switch v := raw.(type) {
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("probes: config key %q: %w", key, err)
		}
		return d, nil
	case int:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	default:
		return 0, fmt.Errorf("probes: config key %q has type %T, want duration", key, raw)
	}
}
