// Package browser attaches to the operator's already running Chrome over
// the DevTools protocol and exposes its tabs as dom.Page values.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"panelqa-runner/internal/config"
	"panelqa-runner/internal/dom"
	"panelqa-runner/internal/failure"
)

// Session describes a tracked browser tab.
type Session struct {
	ID         string    `json:"id"`
	TargetID   string    `json:"target_id,omitempty"`
	URL        string    `json:"url,omitempty"`
	Title      string    `json:"title,omitempty"`
	Status     string    `json:"status,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

type sessionRecord struct {
	meta Session
	page *rod.Page
}

// SessionManager owns the DevTools connection and the tabs runs execute
// against. The browser itself belongs to the operator: Shutdown detaches
// without closing it.
type SessionManager struct {
	cfg        config.BrowserConfig
	log        *zap.Logger
	mu         sync.RWMutex
	browser    *rod.Browser
	sessions   map[string]*sessionRecord
	active     string
	controlURL string // WebSocket URL for DevTools
}

func NewSessionManager(cfg config.BrowserConfig, log *zap.Logger) *SessionManager {
	if log == nil {
		log = zap.NewNop()
	}
	return &SessionManager{
		cfg:      cfg,
		log:      log.Named("browser"),
		sessions: make(map[string]*sessionRecord),
	}
}

// Start connects to the configured debugger endpoint. An http:// endpoint
// is resolved to its WebSocket URL first. A live connection is reused.
func (m *SessionManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != nil {
		if _, err := m.browser.Version(); err == nil {
			return nil
		}
		m.log.Warn("stale browser connection detected, reconnecting")
		m.browser = nil
		m.controlURL = ""
		m.sessions = make(map[string]*sessionRecord)
		m.active = ""
	}

	endpoint := strings.TrimSpace(m.cfg.DebuggerURL)
	if endpoint == "" {
		return errors.New("no debugger_url configured")
	}
	controlURL := endpoint
	if !strings.HasPrefix(endpoint, "ws://") && !strings.HasPrefix(endpoint, "wss://") {
		resolved, err := launcher.ResolveURL(endpoint)
		if err != nil {
			return fmt.Errorf("resolve debugger url %s: %w", endpoint, err)
		}
		controlURL = resolved
	}

	actx, cancel := context.WithTimeout(ctx, m.cfg.AttachTimeoutDuration())
	defer cancel()
	browser := rod.New().ControlURL(controlURL).Context(actx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	// the attach timeout only bounds the handshake
	m.browser = browser.Context(context.Background())
	m.controlURL = controlURL
	m.log.Info("browser connected", zap.String("control_url", controlURL))
	return nil
}

// ControlURL returns the WebSocket debugger URL for the connected browser.
func (m *SessionManager) ControlURL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.controlURL
}

// IsConnected returns whether the browser is currently connected.
func (m *SessionManager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser != nil
}

// Shutdown forgets every tracked tab and drops the connection. Tabs and
// the browser stay open.
func (m *SessionManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id := range m.sessions {
		delete(m.sessions, id)
	}
	m.browser = nil
	m.active = ""
	m.controlURL = ""
	m.log.Info("browser detached")
	return nil
}

// List returns metadata for all tracked tabs.
func (m *SessionManager) List() []Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]Session, 0, len(m.sessions))
	for _, record := range m.sessions {
		results = append(results, record.meta)
	}
	return results
}

// CreateSession opens a tab in the default browser context, so the
// operator's login cookies apply, and makes it the active one.
func (m *SessionManager) CreateSession(ctx context.Context, url string) (*Session, error) {
	browser := m.connected()
	if browser == nil {
		return nil, errors.New("browser not connected")
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	if url != "" {
		if err := page.Context(ctx).Timeout(m.cfg.NavigationTimeoutDuration()).WaitLoad(); err != nil {
			m.log.Warn("page load incomplete", zap.String("url", url), zap.Error(err))
		}
	}
	return m.track(page, url, "active"), nil
}

// Attach binds to an existing tab by TargetID and makes it active.
func (m *SessionManager) Attach(ctx context.Context, targetID string) (*Session, error) {
	browser := m.connected()
	if browser == nil {
		return nil, errors.New("browser not connected")
	}

	page, err := browser.PageFromTarget(proto.TargetTargetID(targetID))
	if err != nil {
		return nil, fmt.Errorf("attach to target %s: %w", targetID, err)
	}
	return m.track(page, "", "attached"), nil
}

func (m *SessionManager) track(page *rod.Page, url, status string) *Session {
	now := time.Now()
	meta := Session{
		ID:         uuid.NewString(),
		TargetID:   string(page.TargetID),
		URL:        url,
		Status:     status,
		CreatedAt:  now,
		LastActive: now,
	}
	if info, err := page.Info(); err == nil {
		meta.URL = coalesceNonEmpty(info.URL, url)
		meta.Title = info.Title
	}

	m.mu.Lock()
	m.sessions[meta.ID] = &sessionRecord{meta: meta, page: page}
	m.active = meta.ID
	m.mu.Unlock()

	m.log.Info("session tracked", zap.String("session_id", meta.ID), zap.String("target_id", meta.TargetID), zap.String("url", meta.URL))
	return &meta
}

// Page returns the underlying Rod page for a session when present.
func (m *SessionManager) Page(sessionID string) (*rod.Page, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[sessionID]
	if !ok || rec.page == nil {
		return nil, false
	}
	return rec.page, true
}

// GetSession returns the current session metadata when available.
func (m *SessionManager) GetSession(sessionID string) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		return Session{}, false
	}
	return rec.meta, true
}

// Active returns the session runs execute against.
func (m *SessionManager) Active() (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[m.active]
	if !ok {
		return Session{}, false
	}
	return rec.meta, true
}

// Acquire returns the active tab as a dom.Page. Without one it attaches to
// the first ordinary tab the browser has open, connecting first when
// needed. Every failure here is a session failure.
func (m *SessionManager) Acquire(ctx context.Context) (dom.Page, error) {
	if err := m.Start(ctx); err != nil {
		return nil, failure.Session("browser.acquire", err)
	}

	m.mu.Lock()
	rec, ok := m.sessions[m.active]
	if ok && rec.page != nil {
		rec.meta.LastActive = time.Now()
		page := rec.page
		m.mu.Unlock()
		return m.wrap(page), nil
	}
	m.mu.Unlock()

	page, err := m.firstTab()
	if err != nil {
		return nil, failure.Session("browser.acquire", err)
	}
	m.track(page, "", "attached")
	return m.wrap(page), nil
}

func (m *SessionManager) firstTab() (*rod.Page, error) {
	browser := m.connected()
	if browser == nil {
		return nil, errors.New("browser not connected")
	}
	targets, err := proto.TargetGetTargets{}.Call(browser)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	for _, t := range targets.TargetInfos {
		if t.Type != proto.TargetTargetInfoTypePage || isInternalURL(t.URL) {
			continue
		}
		return browser.PageFromTarget(t.TargetID)
	}
	return nil, errors.New("no open tab to attach to")
}

func (m *SessionManager) wrap(page *rod.Page) *Page {
	return &Page{page: page, browser: m.connected(), nav: m.cfg.NavigationTimeoutDuration(), log: m.log}
}

func (m *SessionManager) connected() *rod.Browser {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser
}

func coalesceNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// isInternalURL reports browser-internal pages that are never automation
// targets.
func isInternalURL(url string) bool {
	internalPrefixes := []string{
		"chrome://",
		"chrome-extension://",
		"devtools://",
		"chrome-untrusted://",
	}
	for _, prefix := range internalPrefixes {
		if strings.HasPrefix(url, prefix) {
			return true
		}
	}
	return false
}
