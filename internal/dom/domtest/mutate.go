package domtest

import (
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

func (p *Page) selectLocked(xpath string) []*html.Node {
	nodes, err := htmlquery.QueryAll(p.doc, xpath)
	if err != nil {
		panic("domtest: bad xpath " + xpath + ": " + err.Error())
	}
	return nodes
}

// Remove detaches every node matching xpath.
func (p *Page) Remove(xpath string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, n := range p.selectLocked(xpath) {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}
}

// SetAttr sets an attribute on every node matching xpath.
func (p *Page) SetAttr(xpath, name, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, n := range p.selectLocked(xpath) {
		setAttr(n, name, value)
	}
}

// RemoveAttr deletes an attribute on every node matching xpath.
func (p *Page) RemoveAttr(xpath, name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, n := range p.selectLocked(xpath) {
		removeAttr(n, name)
	}
}

// AddClass adds class tokens to every node matching xpath.
func (p *Page) AddClass(xpath string, classes ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, n := range p.selectLocked(xpath) {
		tokens := strings.Fields(attr(n, "class"))
		for _, c := range classes {
			if !contains(tokens, c) {
				tokens = append(tokens, c)
			}
		}
		setAttr(n, "class", strings.Join(tokens, " "))
	}
}

// RemoveClass removes class tokens from every node matching xpath.
func (p *Page) RemoveClass(xpath string, classes ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, n := range p.selectLocked(xpath) {
		var kept []string
		for _, tok := range strings.Fields(attr(n, "class")) {
			if !contains(classes, tok) {
				kept = append(kept, tok)
			}
		}
		setAttr(n, "class", strings.Join(kept, " "))
	}
}

// Append parses fragment and appends it to the first node matching
// parentXPath.
func (p *Page) Append(parentXPath, fragment string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	parents := p.selectLocked(parentXPath)
	if len(parents) == 0 {
		panic("domtest: no parent for " + parentXPath)
	}
	parent := parents[0]
	nodes, err := html.ParseFragment(strings.NewReader(fragment), parent)
	if err != nil {
		panic("domtest: parse fragment: " + err.Error())
	}
	for _, n := range nodes {
		parent.AppendChild(n)
	}
}

// Count returns the number of nodes matching xpath.
func (p *Page) Count(xpath string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.selectLocked(xpath))
}

// Value returns the current value of the first node matching xpath.
func (p *Page) Value(xpath string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	nodes := p.selectLocked(xpath)
	if len(nodes) == 0 {
		return ""
	}
	return valueOf(nodes[0])
}

// Checked reports the checked state of the first node matching xpath.
func (p *Page) Checked(xpath string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	nodes := p.selectLocked(xpath)
	return len(nodes) > 0 && hasAttr(nodes[0], "checked")
}

// Visible reports whether the first node matching xpath is visible.
func (p *Page) Visible(xpath string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	nodes := p.selectLocked(xpath)
	return len(nodes) > 0 && visible(nodes[0])
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, name string) bool {
	for _, a := range n.Attr {
		if a.Key == name {
			return true
		}
	}
	return false
}

func setAttr(n *html.Node, name, value string) {
	for i, a := range n.Attr {
		if a.Key == name {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
}

func removeAttr(n *html.Node, name string) {
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Key != name {
			kept = append(kept, a)
		}
	}
	n.Attr = kept
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func classTokens(n *html.Node) []string {
	return strings.Fields(attr(n, "class"))
}

// visible approximates CSS visibility from fixture markup: the hidden
// attribute, inline display/visibility styles, the d-none and hidden
// utility classes, closed Bootstrap modals and dropdown menus.
func visible(n *html.Node) bool {
	if n.Type == html.ElementNode && strings.EqualFold(attr(n, "type"), "hidden") && n.Data == "input" {
		return false
	}
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Type != html.ElementNode {
			continue
		}
		switch cur.Data {
		case "script", "style", "head", "template":
			return false
		}
		if hasAttr(cur, "hidden") {
			return false
		}
		style := strings.ReplaceAll(strings.ToLower(attr(cur, "style")), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return false
		}
		tokens := classTokens(cur)
		if contains(tokens, "d-none") || contains(tokens, "hidden") {
			return false
		}
		if (contains(tokens, "modal") || contains(tokens, "dropdown-menu")) && !contains(tokens, "show") {
			return false
		}
	}
	return true
}

func valueOf(n *html.Node) string {
	switch n.Data {
	case "select":
		var first string
		for _, opt := range htmlquery.Find(n, ".//option") {
			text := strings.TrimSpace(htmlquery.InnerText(opt))
			if first == "" {
				first = text
			}
			if hasAttr(opt, "selected") {
				return text
			}
		}
		return first
	case "textarea":
		return htmlquery.InnerText(n)
	}
	return attr(n, "value")
}
