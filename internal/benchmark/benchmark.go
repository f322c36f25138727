// Package benchmark defines the workloads a session executes: named
// collections of stories plus the concrete story types.
package benchmark

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jamienicol/xbench/internal/runner"
)

// Benchmark is a named set of stories run against every browser.
type Benchmark struct {
	name    string
	stories []runner.Story
}

// New validates that story names are unique within the benchmark.
func New(name string, stories []runner.Story) (*Benchmark, error) {
	if name == "" {
		return nil, errors.New("benchmark: needs a name")
	}
	if len(stories) == 0 {
		return nil, fmt.Errorf("benchmark: %s has no stories", name)
	}
	seen := map[string]bool{}
	for _, story := range stories {
		if seen[story.Name()] {
			return nil, fmt.Errorf("benchmark: %s has duplicate story %q", name, story.Name())
		}
		seen[story.Name()] = true
	}
	return &Benchmark{name: name, stories: stories}, nil
}

func (b *Benchmark) Name() string            { return b.name }
func (b *Benchmark) Stories() []runner.Story { return b.stories }

// PageLoadStory loads one URL and keeps the page alive for a fixed
// duration so probes can observe the settled state.
type PageLoadStory struct {
	name     string
	url      string
	duration time.Duration
}

// NewPageLoadStory derives the story name from the URL host when name
// is empty.
func NewPageLoadStory(name, rawURL string, duration time.Duration) (*PageLoadStory, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("benchmark: story url %q: %w", rawURL, err)
	}
	if parsed.Scheme == "" {
		rawURL = "https://" + rawURL
		if parsed, err = url.Parse(rawURL); err != nil {
			return nil, fmt.Errorf("benchmark: story url %q: %w", rawURL, err)
		}
	}
	if name == "" {
		name = strings.TrimPrefix(parsed.Hostname(), "www.")
	}
	if name == "" {
		return nil, fmt.Errorf("benchmark: cannot derive a story name from %q", rawURL)
	}
	if duration <= 0 {
		duration = 15 * time.Second
	}
	return &PageLoadStory{name: name, url: rawURL, duration: duration}, nil
}

func (s *PageLoadStory) Name() string            { return s.name }
func (s *PageLoadStory) URL() string             { return s.url }
func (s *PageLoadStory) Duration() time.Duration { return s.duration }

func (s *PageLoadStory) Run(ctx context.Context, run *runner.Run) error {
	a := run.Actions("load " + s.name)
	var err error
	defer a.Close(&err)
	if err = a.Navigate(ctx, s.url); err != nil {
		return err
	}
	err = a.Wait(ctx, s.duration)
	return err
}

func (s *PageLoadStory) DetailsJSON() map[string]any {
	return map[string]any{
		"name":     s.name,
		"url":      s.url,
		"duration": s.duration.Seconds(),
	}
}
