package probes

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/jamienicol/xbench/internal/platform"
	"github.com/jamienicol/xbench/internal/runner"
)

// loadScale converts fractional load averages into the integer domain
// the histogram records.
const loadScale = 1000

// SystemStatsProbe periodically samples system-wide load while the
// story runs. Samples feed an HDR histogram so the result reports
// percentiles instead of a raw time series. The sampling goroutine is
// owned entirely by the scope: started in Start, joined in Stop.
type SystemStatsProbe struct {
	Base
	interval time.Duration
	// samplePath overrides /proc/loadavg, for tests.
	samplePath string
}

func NewSystemStatsProbe(interval time.Duration) *SystemStatsProbe {
	if interval <= 0 {
		interval = time.Second
	}
	return &SystemStatsProbe{
		Base:       NewBase("system.stats", "system.stats.json"),
		interval:   interval,
		samplePath: "/proc/loadavg",
	}
}

func (p *SystemStatsProbe) Interval() time.Duration { return p.interval }

// Load averages only exist on unix systems.
func (p *SystemStatsProbe) IsCompatible(browser runner.Browser) bool {
	return platform.New(nil).IsPosix()
}

func (p *SystemStatsProbe) PreCheck(pl *platform.Platform) error {
	if !pl.IsPosix() {
		return fmt.Errorf("probes: %s needs a unix host", p.Name())
	}
	if _, err := os.Stat(p.samplePath); err != nil {
		return fmt.Errorf("probes: %s cannot read %s: %w", p.Name(), p.samplePath, err)
	}
	return nil
}

func (p *SystemStatsProbe) NewScope(run *runner.Run) runner.Scope {
	return &sysStatsScope{
		ScopeBase: runner.NewScopeBase(p, run),
		probe:     p,
		histogram: hdrhistogram.New(1, 1024*loadScale, 3),
		done:      make(chan struct{}),
	}
}

type sysStatsScope struct {
	*runner.ScopeBase
	probe     *SystemStatsProbe
	histogram *hdrhistogram.Histogram
	done      chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	samples   int
	failures  int
}

func (s *sysStatsScope) Start(ctx context.Context, run *runner.Run) error {
	s.wg.Add(1)
	go s.poll()
	return nil
}

func (s *sysStatsScope) poll() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.probe.interval)
	defer ticker.Stop()
	for {
		s.sample()
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}
	}
}

func (s *sysStatsScope) sample() {
	load, err := readLoadAverage(s.probe.samplePath)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.failures++
		return
	}
	s.samples++
	if err := s.histogram.RecordValue(int64(load * loadScale)); err != nil {
		s.failures++
	}
}

func (s *sysStatsScope) Stop(ctx context.Context, run *runner.Run) error {
	close(s.done)
	s.wg.Wait()
	return nil
}

func (s *sysStatsScope) TearDown(ctx context.Context, run *runner.Run) (runner.ProbeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.samples == 0 {
		return runner.ProbeResult{}, fmt.Errorf("probes: %s collected no samples (%d failures)",
			s.probe.Name(), s.failures)
	}
	doc := map[string]any{
		"interval_seconds": s.probe.interval.Seconds(),
		"samples":          s.samples,
		"failures":         s.failures,
		"load": map[string]any{
			"min":  float64(s.histogram.Min()) / loadScale,
			"p50":  float64(s.histogram.ValueAtQuantile(50)) / loadScale,
			"p90":  float64(s.histogram.ValueAtQuantile(90)) / loadScale,
			"p99":  float64(s.histogram.ValueAtQuantile(99)) / loadScale,
			"max":  float64(s.histogram.Max()) / loadScale,
			"mean": s.histogram.Mean() / loadScale,
		},
	}
	if err := writeJSONFile(s.ResultsFile(), doc); err != nil {
		return runner.ProbeResult{}, err
	}
	return runner.FileResult(s.ResultsFile()), nil
}

// readLoadAverage parses the one-minute load from a loadavg-format
// file: "0.42 0.37 0.30 1/234 5678".
func readLoadAverage(path string) (float64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(string(raw))
	if len(fields) == 0 {
		return 0, fmt.Errorf("probes: empty loadavg file %s", path)
	}
	return strconv.ParseFloat(fields[0], 64)
}
