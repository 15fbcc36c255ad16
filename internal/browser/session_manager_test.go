package browser

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/go-rod/rod/lib/input"

	"panelqa-runner/internal/config"
	"panelqa-runner/internal/dom"
	"panelqa-runner/internal/failure"
)

func TestNewSessionManager(t *testing.T) {
	manager := NewSessionManager(config.BrowserConfig{}, nil)

	if manager == nil {
		t.Fatal("expected non-nil manager")
	}
	if manager.sessions == nil {
		t.Error("expected initialized sessions map")
	}
	if manager.IsConnected() {
		t.Error("expected not connected")
	}
	if url := manager.ControlURL(); url != "" {
		t.Errorf("expected empty control URL, got %q", url)
	}
	if sessions := manager.List(); len(sessions) != 0 {
		t.Errorf("expected empty list, got %d sessions", len(sessions))
	}
}

func TestSessionManagerLookupsWithoutSessions(t *testing.T) {
	manager := NewSessionManager(config.BrowserConfig{}, nil)

	if _, found := manager.GetSession("nonexistent-id"); found {
		t.Error("expected session not found")
	}
	if page, found := manager.Page("nonexistent-id"); found || page != nil {
		t.Error("expected no page")
	}
	if _, found := manager.Active(); found {
		t.Error("expected no active session")
	}
}

func TestSessionManagerStartWithoutEndpoint(t *testing.T) {
	manager := NewSessionManager(config.BrowserConfig{}, nil)

	if err := manager.Start(context.Background()); err == nil {
		t.Fatal("expected error without debugger_url")
	}
}

func TestSessionManagerAcquireIsSessionFailure(t *testing.T) {
	manager := NewSessionManager(config.BrowserConfig{}, nil)

	_, err := manager.Acquire(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, failure.ErrSession) {
		t.Errorf("expected session failure, got %v", err)
	}
}

func TestSessionManagerCreateAndAttachNoBrowser(t *testing.T) {
	manager := NewSessionManager(config.BrowserConfig{}, nil)
	ctx := context.Background()

	if _, err := manager.CreateSession(ctx, "about:blank"); err == nil {
		t.Error("expected error creating session without browser")
	}
	if _, err := manager.Attach(ctx, "target-1"); err == nil {
		t.Error("expected error attaching without browser")
	}
}

func TestSessionManagerShutdownNoSessions(t *testing.T) {
	manager := NewSessionManager(config.BrowserConfig{}, nil)

	if err := manager.Shutdown(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if manager.IsConnected() {
		t.Error("expected not connected after shutdown")
	}
}

func TestCoalesceNonEmpty(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected string
	}{
		{"first non-empty", []string{"a", "b"}, "a"},
		{"skips blanks", []string{"", "  ", "c"}, "c"},
		{"all empty", []string{"", " "}, ""},
		{"none", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := coalesceNonEmpty(tt.input...); got != tt.expected {
				t.Errorf("coalesceNonEmpty(%v) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestIsInternalURL(t *testing.T) {
	tests := []struct {
		url      string
		expected bool
	}{
		{"chrome://newtab/", true},
		{"chrome-extension://abc/popup.html", true},
		{"devtools://devtools/bundled/inspector.html", true},
		{"https://admin.example.com/grabbags", false},
		{"about:blank", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := isInternalURL(tt.url); got != tt.expected {
				t.Errorf("isInternalURL(%q) = %v, want %v", tt.url, got, tt.expected)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		session bool
	}{
		{"closed socket", errors.New("write tcp 127.0.0.1:9222: use of closed network connection"), true},
		{"websocket", fmt.Errorf("call: %w", errors.New("websocket: close 1006 (abnormal closure)")), true},
		{"target closed", errors.New("{-32000 Target closed }"), true},
		{"stale node", errors.New("{-32000 Could not find node with given id }"), false},
		{"deadline", context.DeadlineExceeded, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify("browser.test", tt.err)
			if isSession := errors.Is(got, failure.ErrSession); isSession != tt.session {
				t.Errorf("classify(%v) session = %v, want %v", tt.err, isSession, tt.session)
			}
			if !errors.Is(got, tt.err) {
				t.Errorf("classify(%v) lost the cause", tt.err)
			}
		})
	}
	if classify("browser.test", nil) != nil {
		t.Error("nil stays nil")
	}
}

func TestKeyFor(t *testing.T) {
	tests := []struct {
		key  dom.Key
		want input.Key
	}{
		{dom.KeyEnter, input.Enter},
		{dom.KeyTab, input.Tab},
		{dom.KeyEscape, input.Escape},
	}
	for _, tt := range tests {
		got, err := keyFor(tt.key)
		if err != nil {
			t.Fatalf("keyFor(%q): %v", tt.key, err)
		}
		if got != tt.want {
			t.Errorf("keyFor(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
	if _, err := keyFor("F13"); err == nil {
		t.Error("expected error for unsupported key")
	}
}

func TestScriptsCoverEveryRoutine(t *testing.T) {
	if _, ok := scripts[dom.ScriptRemoveOverlays]; !ok {
		t.Error("remove-overlays has no source")
	}
}
