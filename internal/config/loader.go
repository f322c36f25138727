package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/jamienicol/xbench/internal/exception"
)

// Loader handles loading configuration from files and command-line
// arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses command-line arguments and configuration files to
// produce a Config.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	configPath := flagSet.Lookup("config").Value.String()
	if len(args) == 0 && configPath == "" {
		displayHelp(cmd)
		return nil, ErrHelpRequested
	}
	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		Repetitions:   1,
		CoolDownTime:  2 * time.Second,
		StoryDuration: 15 * time.Second,
		EnvValidation: "throw",
		Tracing:       TracingConfig{Protocol: "grpc", SampleRatio: 1.0},
		ConfigFile:    configPath,
	}

	if err := applyConfigSettings(cfg, cfgViper.AllSettings()); err != nil {
		return nil, err
	}
	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyConfigSettings applies settings from a config file to the
// Config struct.
func applyConfigSettings(cfg *Config, settings map[string]any) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "outdir", "out_dir", "out-dir"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("outDir: %w", err)
		}
		cfg.OutDir = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "repetitions"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("repetitions: %w", err)
		}
		cfg.Repetitions = val
	}

	if raw, ok := lookupSetting(settings, "cooldown", "cool_down", "cool-down"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("cooldown: %w", err)
		}
		cfg.CoolDownTime = dur
	}

	if raw, ok := lookupSetting(settings, "storyduration", "story_duration", "story-duration"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("storyDuration: %w", err)
		}
		cfg.StoryDuration = dur
	}

	if raw, ok := lookupSetting(settings, "throw"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("throw: %w", err)
		}
		cfg.Throw = val
	}

	if raw, ok := lookupSetting(settings, "envvalidation", "env_validation", "env-validation"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("envValidation: %w", err)
		}
		cfg.EnvValidation = val
	}

	if raw, ok := lookupSetting(settings, "skipincompatibleprobes", "skip_incompatible_probes"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("skipIncompatibleProbes: %w", err)
		}
		cfg.SkipIncompatibleProbes = val
	}

	if raw, ok := lookupSetting(settings, "browsers"); ok {
		browsers, err := parseBrowserSettings(raw)
		if err != nil {
			return err
		}
		cfg.Browsers = browsers
	}

	if raw, ok := lookupSetting(settings, "stories"); ok {
		stories, err := parseStorySettings(raw, cfg.StoryDuration)
		if err != nil {
			return err
		}
		cfg.Stories = stories
	}

	if raw, ok := lookupSetting(settings, "probes"); ok {
		probes, err := parseProbeSettings(raw)
		if err != nil {
			return err
		}
		cfg.Probes = probes
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		if err := parseTracingSettings(cfg, raw); err != nil {
			return err
		}
	}

	return nil
}

// parseBrowserSettings parses the browsers list. Each entry is parsed
// under its own capture scope so one malformed entry does not hide the
// errors in the others; the result is one batch error listing every
// bad entry.
func parseBrowserSettings(raw any) ([]BrowserConfig, error) {
	items, err := toInterfaceSlice(raw)
	if err != nil {
		return nil, fmt.Errorf("browsers: %w", err)
	}
	annotator := exception.New(false)
	var browsers []BrowserConfig
	for i, item := range items {
		scope := annotator.Capture(fmt.Sprintf("parsing browsers[%d]", i))
		browser, err := parseBrowserEntry(item)
		scope.Close(&err)
		if err == nil {
			browsers = append(browsers, browser)
		}
	}
	if err := annotator.AssertSuccess("parsing browser configs failed"); err != nil {
		return nil, err
	}
	return browsers, nil
}

func parseBrowserEntry(item any) (BrowserConfig, error) {
	entry, err := toStringKeyMap(item)
	if err != nil {
		return BrowserConfig{}, err
	}
	var browser BrowserConfig
	if raw, ok := lookupSetting(entry, "label"); ok {
		if browser.Label, err = asString(raw); err != nil {
			return BrowserConfig{}, fmt.Errorf("label: %w", err)
		}
	}
	if raw, ok := lookupSetting(entry, "short", "short_name", "shortname"); ok {
		if browser.ShortName, err = asString(raw); err != nil {
			return BrowserConfig{}, fmt.Errorf("short: %w", err)
		}
	}
	if raw, ok := lookupSetting(entry, "url"); ok {
		if browser.URL, err = asString(raw); err != nil {
			return BrowserConfig{}, fmt.Errorf("url: %w", err)
		}
	}
	if raw, ok := lookupSetting(entry, "headless"); ok {
		if browser.Headless, err = asBool(raw); err != nil {
			return BrowserConfig{}, fmt.Errorf("headless: %w", err)
		}
	}
	if browser.Label == "" {
		return BrowserConfig{}, errors.New("browser entry needs a label")
	}
	if browser.URL == "" {
		return BrowserConfig{}, fmt.Errorf("browser %q needs a url", browser.Label)
	}
	return browser, nil
}

func parseStorySettings(raw any, defaultDuration time.Duration) ([]StoryConfig, error) {
	items, err := toInterfaceSlice(raw)
	if err != nil {
		return nil, fmt.Errorf("stories: %w", err)
	}
	var stories []StoryConfig
	for i, item := range items {
		// A bare string is shorthand for {url: ...}.
		if url, ok := item.(string); ok {
			stories = append(stories, StoryConfig{URL: url, Duration: defaultDuration})
			continue
		}
		entry, err := toStringKeyMap(item)
		if err != nil {
			return nil, fmt.Errorf("stories[%d]: %w", i, err)
		}
		story := StoryConfig{Duration: defaultDuration}
		if raw, ok := lookupSetting(entry, "name"); ok {
			if story.Name, err = asString(raw); err != nil {
				return nil, fmt.Errorf("stories[%d].name: %w", i, err)
			}
		}
		if raw, ok := lookupSetting(entry, "url"); ok {
			if story.URL, err = asString(raw); err != nil {
				return nil, fmt.Errorf("stories[%d].url: %w", i, err)
			}
		}
		if raw, ok := lookupSetting(entry, "duration"); ok {
			if story.Duration, err = asDuration(raw); err != nil {
				return nil, fmt.Errorf("stories[%d].duration: %w", i, err)
			}
		}
		if story.URL == "" {
			return nil, fmt.Errorf("stories[%d]: needs a url", i)
		}
		stories = append(stories, story)
	}
	return stories, nil
}

// parseProbeSettings parses the probes map: probe name to settings
// block, an empty block enables the probe with defaults.
func parseProbeSettings(raw any) ([]ProbeConfig, error) {
	entries, err := toStringKeyMap(raw)
	if err != nil {
		return nil, fmt.Errorf("probes: %w", err)
	}
	var probes []ProbeConfig
	for name, block := range entries {
		probe := ProbeConfig{Name: name}
		if block != nil {
			if probe.Config, err = toStringKeyMap(block); err != nil {
				return nil, fmt.Errorf("probes.%s: %w", name, err)
			}
		}
		probes = append(probes, probe)
	}
	return probes, nil
}

func parseTracingSettings(cfg *Config, raw any) error {
	entry, err := toStringKeyMap(raw)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	if raw, ok := lookupSetting(entry, "endpoint"); ok {
		if cfg.Tracing.Endpoint, err = asString(raw); err != nil {
			return fmt.Errorf("tracing.endpoint: %w", err)
		}
	}
	if raw, ok := lookupSetting(entry, "protocol"); ok {
		if cfg.Tracing.Protocol, err = asString(raw); err != nil {
			return fmt.Errorf("tracing.protocol: %w", err)
		}
	}
	if raw, ok := lookupSetting(entry, "insecure"); ok {
		if cfg.Tracing.Insecure, err = asBool(raw); err != nil {
			return fmt.Errorf("tracing.insecure: %w", err)
		}
	}
	if raw, ok := lookupSetting(entry, "sampleratio", "sample_ratio", "sample-ratio"); ok {
		if cfg.Tracing.SampleRatio, err = asFloat64(raw); err != nil {
			return fmt.Errorf("tracing.sampleRatio: %w", err)
		}
	}
	return nil
}

// parseBrowserFlags parses repeated --browser values of the form
// [label=]ws://host:port.
func parseBrowserFlags(specs []string, headless bool) ([]BrowserConfig, error) {
	var browsers []BrowserConfig
	for i, spec := range specs {
		browser := BrowserConfig{Headless: headless}
		if label, url, found := strings.Cut(spec, "="); found && !strings.Contains(label, "://") {
			browser.Label = label
			browser.URL = url
		} else {
			browser.Label = fmt.Sprintf("browser-%d", i+1)
			browser.URL = spec
		}
		if browser.URL == "" {
			return nil, fmt.Errorf("browser spec %q has no url", spec)
		}
		browsers = append(browsers, browser)
	}
	return browsers, nil
}

// LoadProbeFile reads a standalone YAML probe configuration:
//
//	probes:
//	  system.stats:
//	    interval: 250ms
//	  performance.entries: {}
func LoadProbeFile(path string) ([]ProbeConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read probe file: %w", err)
	}
	var doc struct {
		Probes map[string]map[string]any `yaml:"probes"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("config: parse probe file %s: %w", path, err)
	}
	var probes []ProbeConfig
	for name, block := range doc.Probes {
		probes = append(probes, ProbeConfig{Name: name, Config: block})
	}
	return probes, nil
}
