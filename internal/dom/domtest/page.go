// Package domtest provides an in-memory dom.Page parsed from an HTML
// fixture. Queries run through htmlquery with the same XPath expressions the
// production adapter sends to the browser, and every interaction is recorded
// so tests can assert on it.
package domtest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"panelqa-runner/internal/dom"
)

// Event is one recorded interaction.
type Event struct {
	Kind   string // click, jsclick, hover, fill, change, press, type, check, select, files, navigate, reload, script, choose, download
	Target string // element description, empty for page-level events
	Value  string
}

// Hook mutates the page in response to an interaction.
type Hook func(p *Page)

type hookEntry struct {
	xpath string
	fn    Hook
}

// Page is a fake browser tab.
type Page struct {
	mu     sync.Mutex
	doc    *html.Node
	events []Event

	clickHooks  []hookEntry
	keyHooks    map[dom.Key][]Hook
	scriptHooks map[dom.Script][]Hook
	uploadHook  func(p *Page, path string)
	download    []byte
	dialogs     int

	// FailFind makes every Find return this error.
	FailFind error
	// FailScroll makes every ScrollIntoView return this error.
	FailScroll error
}

// New parses fixture into a page. It panics on malformed HTML, which only
// happens with a broken test fixture.
func New(fixture string) *Page {
	doc, err := htmlquery.Parse(strings.NewReader(fixture))
	if err != nil {
		panic(fmt.Sprintf("domtest: parse fixture: %v", err))
	}
	return &Page{
		doc:         doc,
		keyHooks:    make(map[dom.Key][]Hook),
		scriptHooks: make(map[dom.Script][]Hook),
		download:    []byte("downloaded"),
	}
}

// OnClick runs fn after any element matching xpath is clicked.
func (p *Page) OnClick(xpath string, fn Hook) {
	p.mu.Lock()
	p.clickHooks = append(p.clickHooks, hookEntry{xpath: xpath, fn: fn})
	p.mu.Unlock()
}

// OnKey runs fn after key is pressed anywhere.
func (p *Page) OnKey(key dom.Key, fn Hook) {
	p.mu.Lock()
	p.keyHooks[key] = append(p.keyHooks[key], fn)
	p.mu.Unlock()
}

// OnScript runs fn when the named script executes, after the default
// behaviour.
func (p *Page) OnScript(s dom.Script, fn Hook) {
	p.mu.Lock()
	p.scriptHooks[s] = append(p.scriptHooks[s], fn)
	p.mu.Unlock()
}

// OnUpload simulates the server's response to a submitted file.
func (p *Page) OnUpload(fn func(p *Page, path string)) {
	p.mu.Lock()
	p.uploadHook = fn
	p.mu.Unlock()
}

// SetDownloadContent sets the bytes written by Download.
func (p *Page) SetDownloadContent(b []byte) {
	p.mu.Lock()
	p.download = b
	p.mu.Unlock()
}

// Events returns a copy of the interaction log.
func (p *Page) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

// EventsOf returns events of one kind.
func (p *Page) EventsOf(kind string) []Event {
	var out []Event
	for _, e := range p.Events() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// DialogsAccepted counts AcceptDialogs registrations.
func (p *Page) DialogsAccepted() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dialogs
}

func (p *Page) record(kind, target, value string) {
	p.mu.Lock()
	p.events = append(p.events, Event{Kind: kind, Target: target, Value: value})
	p.mu.Unlock()
}

// Find implements dom.Scope.
func (p *Page) Find(ctx context.Context, xpath string) ([]dom.Element, error) {
	return p.query(ctx, p.doc, xpath)
}

func (p *Page) query(ctx context.Context, root *html.Node, xpath string) ([]dom.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.FailFind != nil {
		return nil, p.FailFind
	}
	p.mu.Lock()
	nodes, err := htmlquery.QueryAll(root, xpath)
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	nodes = p.documentOrder(nodes)
	p.mu.Unlock()

	out := make([]dom.Element, 0, len(nodes))
	for _, n := range nodes {
		if n.Type != html.ElementNode {
			continue
		}
		out = append(out, &Element{page: p, node: n})
	}
	return out, nil
}

// documentOrder sorts and dedupes nodes the way document.evaluate returns
// an ordered snapshot.
func (p *Page) documentOrder(nodes []*html.Node) []*html.Node {
	index := make(map[*html.Node]int)
	i := 0
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		index[n] = i
		i++
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(p.doc)

	seen := make(map[*html.Node]bool, len(nodes))
	out := nodes[:0:0]
	for _, n := range nodes {
		if _, attached := index[n]; !attached || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.SliceStable(out, func(a, b int) bool { return index[out[a]] < index[out[b]] })
	return out
}

// Navigate implements dom.Page.
func (p *Page) Navigate(ctx context.Context, url string) error {
	p.record("navigate", "", url)
	return ctx.Err()
}

// Reload implements dom.Page.
func (p *Page) Reload(ctx context.Context) error {
	p.record("reload", "", "")
	return ctx.Err()
}

// WaitIdle implements dom.Page.
func (p *Page) WaitIdle(ctx context.Context, timeout time.Duration) error {
	return ctx.Err()
}

// Press implements dom.Page.
func (p *Page) Press(ctx context.Context, key dom.Key) error {
	p.record("press", "", string(key))
	p.runKeyHooks(key)
	return ctx.Err()
}

// Type implements dom.Page.
func (p *Page) Type(ctx context.Context, text string) error {
	p.record("type", "", text)
	return ctx.Err()
}

// Run implements dom.Page. ScriptRemoveOverlays has a built-in default
// mirroring the production script.
func (p *Page) Run(ctx context.Context, script dom.Script) error {
	p.record("script", "", string(script))
	if script == dom.ScriptRemoveOverlays {
		p.Remove("//*[" + dom.HasClass("swal2-container") + " or " + dom.HasClass("modal-backdrop") + "]")
		p.RemoveClass("//body", "swal2-shown", "swal2-height-auto", "modal-open")
	}
	p.mu.Lock()
	hooks := append([]Hook(nil), p.scriptHooks[script]...)
	p.mu.Unlock()
	for _, h := range hooks {
		h(p)
	}
	return ctx.Err()
}

// AcceptDialogs implements dom.Page.
func (p *Page) AcceptDialogs(ctx context.Context) (func(), error) {
	p.mu.Lock()
	p.dialogs++
	p.mu.Unlock()
	return func() {}, ctx.Err()
}

// ChooseFile implements dom.Page.
func (p *Page) ChooseFile(ctx context.Context, trigger dom.Element, path string) error {
	el, ok := trigger.(*Element)
	if !ok {
		return errors.New("domtest: foreign element")
	}
	if _, err := os.Stat(path); err != nil {
		return err
	}
	p.record("choose", el.describe(), path)
	p.mu.Lock()
	hook := p.uploadHook
	p.mu.Unlock()
	if hook != nil {
		hook(p, path)
	}
	return ctx.Err()
}

// Download implements dom.Page.
func (p *Page) Download(ctx context.Context, trigger dom.Element, dir, name string, timeout time.Duration) (string, error) {
	el, ok := trigger.(*Element)
	if !ok {
		return "", errors.New("domtest: foreign element")
	}
	p.record("download", el.describe(), name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	p.mu.Lock()
	content := append([]byte(nil), p.download...)
	p.mu.Unlock()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", err
	}
	return path, ctx.Err()
}

func (p *Page) runKeyHooks(key dom.Key) {
	p.mu.Lock()
	hooks := append([]Hook(nil), p.keyHooks[key]...)
	p.mu.Unlock()
	for _, h := range hooks {
		h(p)
	}
}

func (p *Page) runClickHooks(n *html.Node) {
	p.mu.Lock()
	var matched []Hook
	for _, h := range p.clickHooks {
		nodes, err := htmlquery.QueryAll(p.doc, h.xpath)
		if err != nil {
			continue
		}
		for _, m := range nodes {
			if m == n {
				matched = append(matched, h.fn)
				break
			}
		}
	}
	p.mu.Unlock()
	for _, h := range matched {
		h(p)
	}
}

var _ dom.Page = (*Page)(nil)

// atoiBox parses a data-box="x,y,w,h" fixture attribute.
func atoiBox(s string) (dom.Box, bool) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return dom.Box{}, false
	}
	var v [4]float64
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return dom.Box{}, false
		}
		v[i] = f
	}
	return dom.Box{X: v[0], Y: v[1], Width: v[2], Height: v[3]}, true
}
