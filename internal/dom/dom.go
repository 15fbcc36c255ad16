// Package dom is the browser-agnostic surface the automation components
// drive. Production pages are backed by rod; tests use domtest.
//
// Every query is an XPath expression evaluated relative to a Scope, so
// queries written as ".//input" work against both the whole page and a
// modal container.
package dom

import (
	"context"
	"time"
)

// Key is a named keyboard key.
type Key string

const (
	KeyEnter  Key = "Enter"
	KeyTab    Key = "Tab"
	KeyEscape Key = "Escape"
)

// Script names a page-level routine. The rod adapter maps each one to its
// JavaScript source; the fake page runs registered hooks.
type Script string

const (
	// ScriptRemoveOverlays deletes residual popup containers and backdrops
	// and restores body scrolling.
	ScriptRemoveOverlays Script = "remove-overlays"
)

// Box is an element's bounding rectangle in viewport coordinates.
type Box struct {
	X, Y, Width, Height float64
}

// Snapshot is a point-in-time copy of the element properties the
// heuristics look at.
type Snapshot struct {
	Tag         string            `json:"tag"`
	Type        string            `json:"type"`
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Class       string            `json:"class"`
	Placeholder string            `json:"placeholder"`
	Role        string            `json:"role"`
	For         string            `json:"for"`
	Title       string            `json:"title"`
	Text        string            `json:"text"`
	Value       string            `json:"value"`
	Visible     bool              `json:"visible"`
	Checked     bool              `json:"checked"`
	Disabled    bool              `json:"disabled"`
	Attrs       map[string]string `json:"attrs,omitempty"`
	Box         Box               `json:"box"`
}

// Attr returns a data-* or aria-* attribute captured in the snapshot.
func (s Snapshot) Attr(name string) string {
	if s.Attrs == nil {
		return ""
	}
	return s.Attrs[name]
}

// Scope is anything XPath queries can be evaluated against.
type Scope interface {
	// Find returns matches of xpath in document order. No match is not an
	// error.
	Find(ctx context.Context, xpath string) ([]Element, error)
}

// Element is a live handle to a DOM element.
type Element interface {
	Scope
	Snapshot(ctx context.Context) (Snapshot, error)
	Click(ctx context.Context) error
	// ClickJS dispatches a click from script, bypassing hit testing.
	ClickJS(ctx context.Context) error
	Hover(ctx context.Context) error
	ScrollIntoView(ctx context.Context) error
	// Fill focuses the element, clears it and types value.
	Fill(ctx context.Context, value string) error
	// DispatchChange fires input and change events.
	DispatchChange(ctx context.Context) error
	Press(ctx context.Context, key Key) error
	// SetChecked assigns the checked property from script and fires change.
	SetChecked(ctx context.Context, checked bool) error
	// SelectOption picks a native <select> option by visible text.
	SelectOption(ctx context.Context, text string) error
	SetFiles(ctx context.Context, paths []string) error
}

// Page is the active browser tab.
type Page interface {
	Scope
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	// WaitIdle waits up to timeout for network activity to settle. It never
	// fails on timeout.
	WaitIdle(ctx context.Context, timeout time.Duration) error
	Press(ctx context.Context, key Key) error
	Type(ctx context.Context, text string) error
	Run(ctx context.Context, script Script) error
	// AcceptDialogs auto-accepts native alert/confirm dialogs until stop is
	// called.
	AcceptDialogs(ctx context.Context) (stop func(), err error)
	// ChooseFile clicks trigger and answers the resulting file chooser with
	// path. When trigger is itself a file input its files are set directly.
	ChooseFile(ctx context.Context, trigger Element, path string) error
	// Download clicks trigger, waits up to timeout for the browser to
	// finish the download and stores it as dir/name. It returns the final
	// path.
	Download(ctx context.Context, trigger Element, dir, name string, timeout time.Duration) (string, error)
}

// Node pairs an element with the snapshot taken when it was collected.
type Node struct {
	El   Element
	Snap Snapshot
}
