package browser

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// newAgentServer runs a fake browser agent that answers each request
// through handle.
func newAgentServer(t *testing.T, handle func(req map[string]any) (any, string)) *httptest.Server {
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
			result, errMsg := handle(req)
			resp := map[string]any{"id": req["id"]}
			if errMsg != "" {
				resp["error"] = errMsg
			} else if result != nil {
				raw, _ := json.Marshal(result)
				resp["result"] = json.RawMessage(raw)
			}
			if err := conn.WriteJSON(resp); err != nil {
				return
			}
		}
	}))
}

func dialRemote(t *testing.T, server *httptest.Server) *Remote {
	t.Helper()
	remote, err := NewRemote(RemoteConfig{
		Label: "chrome",
		URL:   "ws" + strings.TrimPrefix(server.URL, "http"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := remote.Setup(context.Background(), nil); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	return remote
}

func TestRemoteJSRoundTrip(t *testing.T) {
	var got map[string]any
	server := newAgentServer(t, func(req map[string]any) (any, string) {
		got = req
		return map[string]any{"answer": 42.0}, ""
	})
	defer server.Close()

	remote := dialRemote(t, server)
	defer remote.ForceQuit()

	result, err := remote.JS(context.Background(), "return compute()", 2*time.Second, "arg1", 7)
	if err != nil {
		t.Fatalf("JS failed: %v", err)
	}
	doc, ok := result.(map[string]any)
	if !ok || doc["answer"] != 42.0 {
		t.Errorf("result = %v, want {answer: 42}", result)
	}

	if got["method"] != "eval" {
		t.Errorf("method = %v, want eval", got["method"])
	}
	if got["script"] != "return compute()" {
		t.Errorf("script = %v", got["script"])
	}
	if got["timeout_ms"] != 2000.0 {
		t.Errorf("timeout_ms = %v, want 2000", got["timeout_ms"])
	}
	args, ok := got["args"].([]any)
	if !ok || len(args) != 2 || args[0] != "arg1" || args[1] != 7.0 {
		t.Errorf("args = %v, want [arg1 7]", got["args"])
	}
}

func TestRemoteAgentErrorSurfaces(t *testing.T) {
	server := newAgentServer(t, func(req map[string]any) (any, string) {
		return nil, "page crashed"
	})
	defer server.Close()

	remote := dialRemote(t, server)
	defer remote.ForceQuit()

	if _, err := remote.JS(context.Background(), "return 1", time.Second); err == nil {
		t.Fatal("want error from agent")
	} else if !strings.Contains(err.Error(), "page crashed") {
		t.Errorf("error %q missing the agent message", err)
	}
}

func TestRemoteNavigate(t *testing.T) {
	var navigated []string
	server := newAgentServer(t, func(req map[string]any) (any, string) {
		if req["method"] == "navigate" {
			navigated = append(navigated, req["url"].(string))
		}
		return nil, ""
	})
	defer server.Close()

	remote := dialRemote(t, server)
	defer remote.ForceQuit()

	if err := remote.ShowURL(context.Background(), "https://example.com"); err != nil {
		t.Fatal(err)
	}
	if len(navigated) != 1 || navigated[0] != "https://example.com" {
		t.Errorf("navigated = %v", navigated)
	}
}

func TestRemoteQuitHandshake(t *testing.T) {
	quits := 0
	server := newAgentServer(t, func(req map[string]any) (any, string) {
		if req["method"] == "quit" {
			quits++
		}
		return nil, ""
	})
	defer server.Close()

	remote := dialRemote(t, server)
	if err := remote.Quit(context.Background()); err != nil {
		t.Fatalf("Quit failed: %v", err)
	}
	if quits != 1 {
		t.Errorf("quit requests = %d, want 1", quits)
	}
	// The connection is gone afterwards.
	if _, err := remote.JS(context.Background(), "return 1", time.Second); err == nil {
		t.Error("want not-connected error after quit")
	}
}

func TestRemoteCallsWithoutSetup(t *testing.T) {
	remote, err := NewRemote(RemoteConfig{Label: "chrome", URL: "ws://localhost:1"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := remote.JS(context.Background(), "return 1", time.Second); err == nil {
		t.Error("want not-connected error")
	}
	if !strings.Contains(remote.DetailsJSON()["url"].(string), "ws://") {
		t.Error("details missing the endpoint url")
	}
}

func TestRemoteConfigValidation(t *testing.T) {
	if _, err := NewRemote(RemoteConfig{URL: "ws://x"}); err == nil {
		t.Error("want error for missing label")
	}
	if _, err := NewRemote(RemoteConfig{Label: "chrome"}); err == nil {
		t.Error("want error for missing url")
	}
	remote, err := NewRemote(RemoteConfig{Label: "Chrome Dev", ShortName: "chrome-dev", URL: "ws://x"})
	if err != nil {
		t.Fatal(err)
	}
	if remote.ShortName() != "chrome-dev" || remote.Label() != "Chrome Dev" {
		t.Errorf("label/short = %q/%q", remote.Label(), remote.ShortName())
	}
}
