// Package testutil provides in-memory fakes for the runner's external
// collaborators.
package testutil

import (
	"context"
	"time"

	"github.com/jamienicol/xbench/internal/runner"
)

// Browser is a fake that accepts every call and optionally evaluates
// scripts through the JSFn hook.
type Browser struct {
	BrowserLabel string
	Headless     bool
	// JSFn handles script evaluation; nil returns nil results.
	JSFn func(script string) (any, error)
	// SetupErr and QuitErr inject failures into the lifecycle.
	SetupErr error
	QuitErr  error

	NavigatedURLs []string
	LogFile       string
	Quits         int
	ForceQuits    int
}

func NewBrowser(label string) *Browser {
	return &Browser{BrowserLabel: label, Headless: true}
}

func (b *Browser) JS(ctx context.Context, script string, timeout time.Duration, args ...any) (any, error) {
	if b.JSFn == nil {
		return nil, nil
	}
	return b.JSFn(script)
}

func (b *Browser) ShowURL(ctx context.Context, url string) error {
	b.NavigatedURLs = append(b.NavigatedURLs, url)
	return nil
}

func (b *Browser) Label() string                  { return b.BrowserLabel }
func (b *Browser) ShortName() string              { return b.BrowserLabel }
func (b *Browser) IsHeadless() bool               { return b.Headless }
func (b *Browser) SetLogFile(path string)         { b.LogFile = path }
func (b *Browser) AttachProbe(probe runner.Probe) {}

func (b *Browser) Setup(ctx context.Context, run *runner.Run) error { return b.SetupErr }

func (b *Browser) Quit(ctx context.Context) error {
	b.Quits++
	return b.QuitErr
}

func (b *Browser) ForceQuit() { b.ForceQuits++ }

func (b *Browser) DetailsJSON() map[string]any {
	return map[string]any{"label": b.BrowserLabel, "headless": b.Headless}
}

// Story is a fake workload that counts its executions.
type Story struct {
	StoryName string
	RunErr    error
	Runs      int
}

func NewStory(name string) *Story {
	return &Story{StoryName: name}
}

func (s *Story) Name() string            { return s.StoryName }
func (s *Story) Duration() time.Duration { return time.Millisecond }

func (s *Story) Run(ctx context.Context, run *runner.Run) error {
	s.Runs++
	return s.RunErr
}

func (s *Story) DetailsJSON() map[string]any {
	return map[string]any{"name": s.StoryName}
}
