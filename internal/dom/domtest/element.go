package domtest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"panelqa-runner/internal/dom"
)

// ErrNotInteractable mirrors the browser refusing to click or type into an
// element that is not rendered.
var ErrNotInteractable = errors.New("domtest: element is not visible")

// ErrDetached is returned for handles whose node left the document.
var ErrDetached = errors.New("domtest: element is detached")

// Element is a fake element handle.
type Element struct {
	page *Page
	node *html.Node
}

var _ dom.Element = (*Element)(nil)

func (e *Element) attached() bool {
	for cur := e.node; cur != nil; cur = cur.Parent {
		if cur == e.page.doc {
			return true
		}
	}
	return false
}

func (e *Element) describe() string {
	var b strings.Builder
	b.WriteString(e.node.Data)
	if id := attr(e.node, "id"); id != "" {
		b.WriteString("#" + id)
	}
	if name := attr(e.node, "name"); name != "" {
		b.WriteString("[name=" + name + "]")
	}
	if text := dom.NormalizeText(htmlquery.InnerText(e.node)); text != "" && len(text) <= 40 {
		b.WriteString(" " + fmt.Sprintf("%q", text))
	}
	return b.String()
}

// Find implements dom.Scope relative to this element.
func (e *Element) Find(ctx context.Context, xpath string) ([]dom.Element, error) {
	return e.page.query(ctx, e.node, xpath)
}

// Snapshot implements dom.Element.
func (e *Element) Snapshot(ctx context.Context) (dom.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return dom.Snapshot{}, err
	}
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	if !e.attached() {
		return dom.Snapshot{}, ErrDetached
	}
	n := e.node
	s := dom.Snapshot{
		Tag:         n.Data,
		Type:        strings.ToLower(attr(n, "type")),
		ID:          attr(n, "id"),
		Name:        attr(n, "name"),
		Class:       attr(n, "class"),
		Placeholder: attr(n, "placeholder"),
		Role:        attr(n, "role"),
		For:         attr(n, "for"),
		Title:       attr(n, "title"),
		Text:        strings.TrimSpace(htmlquery.InnerText(n)),
		Value:       valueOf(n),
		Visible:     visible(n),
		Checked:     hasAttr(n, "checked"),
		Disabled:    hasAttr(n, "disabled"),
	}
	for _, a := range n.Attr {
		if strings.HasPrefix(a.Key, "data-") || strings.HasPrefix(a.Key, "aria-") {
			if s.Attrs == nil {
				s.Attrs = make(map[string]string)
			}
			s.Attrs[a.Key] = a.Val
		}
	}
	if box, ok := atoiBox(attr(n, "data-box")); ok {
		s.Box = box
	} else if s.Visible {
		s.Box = dom.Box{X: 400, Y: 400, Width: 100, Height: 20}
	}
	return s, nil
}

func (e *Element) interactable() error {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	if !e.attached() {
		return ErrDetached
	}
	if !visible(e.node) {
		return ErrNotInteractable
	}
	return nil
}

// Click implements dom.Element.
func (e *Element) Click(ctx context.Context) error {
	if err := e.interactable(); err != nil {
		return err
	}
	e.page.record("click", e.describe(), "")
	e.activate()
	e.page.runClickHooks(e.node)
	return ctx.Err()
}

// ClickJS implements dom.Element.
func (e *Element) ClickJS(ctx context.Context) error {
	e.page.mu.Lock()
	ok := e.attached()
	e.page.mu.Unlock()
	if !ok {
		return ErrDetached
	}
	e.page.record("jsclick", e.describe(), "")
	e.activate()
	e.page.runClickHooks(e.node)
	return ctx.Err()
}

// activate applies the default action of a click: toggling checkboxes and
// radios, directly or through their label.
func (e *Element) activate() {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	target := e.node
	if target.Data == "label" {
		target = nil
		if id := attr(e.node, "for"); id != "" {
			if nodes := e.page.selectLocked(fmt.Sprintf("//*[@id=%s]", dom.Literal(id))); len(nodes) > 0 {
				target = nodes[0]
			}
		} else if nested := htmlquery.FindOne(e.node, ".//input"); nested != nil {
			target = nested
		}
		if target == nil {
			return
		}
	}
	if target.Data != "input" {
		return
	}
	switch strings.ToLower(attr(target, "type")) {
	case "checkbox":
		if hasAttr(target, "checked") {
			removeAttr(target, "checked")
		} else {
			setAttr(target, "checked", "")
		}
	case "radio":
		if name := attr(target, "name"); name != "" {
			for _, other := range e.page.selectLocked(fmt.Sprintf("//input[@type='radio' and @name=%s]", dom.Literal(name))) {
				removeAttr(other, "checked")
			}
		}
		setAttr(target, "checked", "")
	}
}

// Hover implements dom.Element.
func (e *Element) Hover(ctx context.Context) error {
	if err := e.interactable(); err != nil {
		return err
	}
	e.page.record("hover", e.describe(), "")
	return ctx.Err()
}

// ScrollIntoView implements dom.Element.
func (e *Element) ScrollIntoView(ctx context.Context) error {
	if e.page.FailScroll != nil {
		return e.page.FailScroll
	}
	return ctx.Err()
}

// Fill implements dom.Element.
func (e *Element) Fill(ctx context.Context, value string) error {
	if err := e.interactable(); err != nil {
		return err
	}
	e.page.mu.Lock()
	if e.node.Data == "textarea" {
		for c := e.node.FirstChild; c != nil; {
			next := c.NextSibling
			e.node.RemoveChild(c)
			c = next
		}
		e.node.AppendChild(&html.Node{Type: html.TextNode, Data: value})
	} else {
		setAttr(e.node, "value", value)
	}
	e.page.mu.Unlock()
	e.page.record("fill", e.describe(), value)
	return ctx.Err()
}

// DispatchChange implements dom.Element.
func (e *Element) DispatchChange(ctx context.Context) error {
	e.page.record("change", e.describe(), "")
	return ctx.Err()
}

// Press implements dom.Element.
func (e *Element) Press(ctx context.Context, key dom.Key) error {
	e.page.record("press", e.describe(), string(key))
	e.page.runKeyHooks(key)
	return ctx.Err()
}

// SetChecked implements dom.Element.
func (e *Element) SetChecked(ctx context.Context, checked bool) error {
	e.page.mu.Lock()
	if checked {
		setAttr(e.node, "checked", "")
	} else {
		removeAttr(e.node, "checked")
	}
	e.page.mu.Unlock()
	e.page.record("check", e.describe(), fmt.Sprint(checked))
	return ctx.Err()
}

// SelectOption implements dom.Element.
func (e *Element) SelectOption(ctx context.Context, text string) error {
	e.page.mu.Lock()
	var match *html.Node
	opts := htmlquery.Find(e.node, ".//option")
	for _, opt := range opts {
		if dom.EqualFold(htmlquery.InnerText(opt), text) || strings.EqualFold(attr(opt, "value"), text) {
			match = opt
			break
		}
	}
	if match != nil {
		for _, opt := range opts {
			removeAttr(opt, "selected")
		}
		setAttr(match, "selected", "")
	}
	e.page.mu.Unlock()
	if match == nil {
		return fmt.Errorf("domtest: no option %q", text)
	}
	e.page.record("select", e.describe(), text)
	return ctx.Err()
}

// SetFiles implements dom.Element.
func (e *Element) SetFiles(ctx context.Context, paths []string) error {
	e.page.record("files", e.describe(), strings.Join(paths, ","))
	return ctx.Err()
}
