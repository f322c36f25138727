// Package browser connects the runner to real browsers. The only
// implementation talks to a debugging endpoint over a websocket; the
// agent on the other side owns the browser process.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jamienicol/xbench/internal/runner"
)

// request is one command sent to the browser agent.
type request struct {
	ID        int64  `json:"id"`
	Method    string `json:"method"`
	Script    string `json:"script,omitempty"`
	Args      []any  `json:"args,omitempty"`
	URL       string `json:"url,omitempty"`
	TimeoutMS int64  `json:"timeout_ms,omitempty"`
}

// response mirrors request by ID. A non-empty Error wins over Result.
type response struct {
	ID     int64           `json:"id"`
	Error  string          `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// RemoteConfig configures the connection to one browser agent.
type RemoteConfig struct {
	// Label distinguishes this browser in the session, ShortName is
	// the directory-safe identifier. ShortName defaults to Label.
	Label     string
	ShortName string
	// URL is the ws:// debugging endpoint.
	URL              string
	Headless         bool
	HandshakeTimeout time.Duration
}

// Remote drives a browser through its websocket debugging endpoint.
// The protocol is strictly sequential request/response, matching the
// runner's sequential execution; Remote is not safe for concurrent
// calls and does not try to be.
type Remote struct {
	cfg    RemoteConfig
	dialer *websocket.Dialer

	mu      sync.Mutex
	conn    *websocket.Conn
	nextID  int64
	logFile string
	probes  []runner.Probe
}

func NewRemote(cfg RemoteConfig) (*Remote, error) {
	if cfg.Label == "" {
		return nil, fmt.Errorf("browser: remote browser needs a label")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("browser: %s needs a websocket url", cfg.Label)
	}
	if cfg.ShortName == "" {
		cfg.ShortName = cfg.Label
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 30 * time.Second
	}
	return &Remote{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
			Proxy:            http.ProxyFromEnvironment,
		},
	}, nil
}

func (b *Remote) Label() string     { return b.cfg.Label }
func (b *Remote) ShortName() string { return b.cfg.ShortName }
func (b *Remote) IsHeadless() bool  { return b.cfg.Headless }

func (b *Remote) SetLogFile(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logFile = path
}

func (b *Remote) AttachProbe(probe runner.Probe) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probes = append(b.probes, probe)
}

// Setup dials the agent. The connection lives for exactly one run.
func (b *Remote) Setup(ctx context.Context, run *runner.Run) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		return fmt.Errorf("browser: %s already connected", b.cfg.Label)
	}
	conn, resp, err := b.dialer.DialContext(ctx, b.cfg.URL, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("browser: dial %s failed with status %d: %w",
				b.cfg.Label, resp.StatusCode, err)
		}
		return fmt.Errorf("browser: dial %s: %w", b.cfg.Label, err)
	}
	b.conn = conn
	return nil
}

// JS evaluates script in the active page and returns the JSON-decoded
// result.
func (b *Remote) JS(ctx context.Context, script string, timeout time.Duration, args ...any) (any, error) {
	resp, err := b.call(ctx, request{
		Method:    "eval",
		Script:    script,
		Args:      args,
		TimeoutMS: timeout.Milliseconds(),
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Result) == 0 {
		return nil, nil
	}
	var result any
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("browser: decode eval result: %w", err)
	}
	return result, nil
}

func (b *Remote) ShowURL(ctx context.Context, url string) error {
	_, err := b.call(ctx, request{Method: "navigate", URL: url})
	return err
}

// Quit asks the agent to shut the browser down cleanly, then drops the
// connection.
func (b *Remote) Quit(ctx context.Context) error {
	_, err := b.call(ctx, request{Method: "quit"})
	closeErr := b.close()
	if err != nil {
		return err
	}
	return closeErr
}

// ForceQuit drops the connection without the quit handshake. Used to
// clean up after a failed launch, so errors are swallowed.
func (b *Remote) ForceQuit() {
	b.close()
}

func (b *Remote) DetailsJSON() map[string]any {
	return map[string]any{
		"label":    b.cfg.Label,
		"short":    b.cfg.ShortName,
		"url":      b.cfg.URL,
		"headless": b.cfg.Headless,
		"log":      filepath.Base(b.logFile),
	}
}

func (b *Remote) call(ctx context.Context, req request) (*response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return nil, fmt.Errorf("browser: %s not connected", b.cfg.Label)
	}
	b.nextID++
	req.ID = b.nextID

	if deadline, ok := ctx.Deadline(); ok {
		b.conn.SetWriteDeadline(deadline)
		b.conn.SetReadDeadline(deadline)
	} else {
		b.conn.SetWriteDeadline(time.Time{})
		b.conn.SetReadDeadline(time.Time{})
	}
	if err := b.conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("browser: send %s: %w", req.Method, err)
	}
	var resp response
	if err := b.conn.ReadJSON(&resp); err != nil {
		return nil, fmt.Errorf("browser: read %s response: %w", req.Method, err)
	}
	if resp.ID != req.ID {
		return nil, fmt.Errorf("browser: response id %d, want %d", resp.ID, req.ID)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("browser: %s failed: %s", req.Method, resp.Error)
	}
	return &resp, nil
}

func (b *Remote) close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return nil
	}
	b.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(5*time.Second))
	err := b.conn.Close()
	b.conn = nil
	return err
}
