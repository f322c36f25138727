package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

// newAgent serves a minimal browser agent that acknowledges every
// command.
func newAgent(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			req := map[string]any{}
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			if err := conn.WriteJSON(map[string]any{"id": req["id"]}); err != nil {
				return
			}
		}
	}))
}

func TestRunEndToEnd(t *testing.T) {
	server := newAgent(t)
	defer server.Close()

	outDir := filepath.Join(t.TempDir(), "results")
	err := run([]string{
		"--out-dir", outDir,
		"--browser", "chrome=" + "ws" + strings.TrimPrefix(server.URL, "http"),
		"--story", "https://example.com",
		"--story-duration", "10ms",
		"--cooldown", "1ms",
		"--env-validation", "skip",
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	for _, want := range []string{
		"system_details.json",
		filepath.Join("chrome", "example.com", "0", "results.json"),
		"results.json",
	} {
		if _, err := os.Stat(filepath.Join(outDir, want)); err != nil {
			t.Errorf("missing %s: %v", want, err)
		}
	}
}

func TestRunDryRunExecutesNothing(t *testing.T) {
	outDir := filepath.Join(t.TempDir(), "results")
	err := run([]string{
		"--out-dir", outDir,
		"--browser", "chrome=ws://localhost:1",
		"--story", "https://example.com",
		"--dry-run",
		"--env-validation", "skip",
	})
	if err != nil {
		t.Fatalf("dry run must not touch the unreachable browser: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outDir, "chrome")); !os.IsNotExist(err) {
		t.Error("dry run created run directories")
	}
}

func TestRunHelp(t *testing.T) {
	if err := run([]string{"--help"}); err != nil {
		t.Errorf("help must not be an error: %v", err)
	}
}

func TestRunUnknownProbe(t *testing.T) {
	err := run([]string{
		"--out-dir", filepath.Join(t.TempDir(), "results"),
		"--browser", "chrome=ws://localhost:1",
		"--story", "https://example.com",
		"--probe", "does.not.exist",
	})
	if err == nil || !strings.Contains(err.Error(), "unknown probe") {
		t.Errorf("err = %v, want unknown probe", err)
	}
}
