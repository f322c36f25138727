package benchmark

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jamienicol/xbench/internal/probes"
	"github.com/jamienicol/xbench/internal/runner"
	"github.com/jamienicol/xbench/internal/testutil"
)

func TestNewRejectsDuplicateStories(t *testing.T) {
	a, _ := NewPageLoadStory("", "https://example.com", time.Second)
	b, _ := NewPageLoadStory("", "http://example.com/other", time.Second)
	if _, err := New("loading", []runner.Story{a, b}); err == nil {
		t.Fatal("want duplicate story error, both derive the name example.com")
	}
	if _, err := New("loading", nil); err == nil {
		t.Fatal("want error for empty benchmark")
	}
}

func TestPageLoadStoryNameDerivation(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://www.example.com/page", "example.com"},
		{"example.org", "example.org"},
		{"http://sub.example.net", "sub.example.net"},
	}
	for _, tt := range tests {
		story, err := NewPageLoadStory("", tt.url, time.Second)
		if err != nil {
			t.Errorf("NewPageLoadStory(%q): %v", tt.url, err)
			continue
		}
		if story.Name() != tt.want {
			t.Errorf("NewPageLoadStory(%q).Name() = %q, want %q", tt.url, story.Name(), tt.want)
		}
	}
}

func TestPageLoadStoryNavigatesAndWaits(t *testing.T) {
	story, err := NewPageLoadStory("home", "https://example.com", time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	browser := testutil.NewBrowser("chrome")
	r, err := runner.New(runner.Options{
		OutDir:       filepath.Join(t.TempDir(), "results"),
		Browsers:     []runner.Browser{browser},
		Stories:      []runner.Story{story},
		Probes:       probes.Defaults(),
		CoolDownTime: time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Run(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	if len(browser.NavigatedURLs) != 1 || browser.NavigatedURLs[0] != "https://example.com" {
		t.Errorf("navigated %v, want the story url once", browser.NavigatedURLs)
	}
}
