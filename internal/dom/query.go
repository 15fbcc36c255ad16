package dom

import (
	"context"
	"fmt"
	"strings"
)

// Collect runs xpath against scope and snapshots every match.
func Collect(ctx context.Context, scope Scope, xpath string) ([]Node, error) {
	els, err := scope.Find(ctx, xpath)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", xpath, err)
	}
	nodes := make([]Node, 0, len(els))
	for _, el := range els {
		snap, err := el.Snapshot(ctx)
		if err != nil {
			// detached between query and snapshot
			continue
		}
		nodes = append(nodes, Node{El: el, Snap: snap})
	}
	return nodes, nil
}

// CollectVisible is Collect filtered to visible nodes.
func CollectVisible(ctx context.Context, scope Scope, xpath string) ([]Node, error) {
	nodes, err := Collect(ctx, scope, xpath)
	if err != nil {
		return nil, err
	}
	return Filter(nodes, func(n Node) bool { return n.Snap.Visible }), nil
}

// Filter keeps nodes matching keep.
func Filter(nodes []Node, keep func(Node) bool) []Node {
	out := nodes[:0:0]
	for _, n := range nodes {
		if keep(n) {
			out = append(out, n)
		}
	}
	return out
}

// First returns the first node, if any.
func First(nodes []Node) (Node, bool) {
	if len(nodes) == 0 {
		return Node{}, false
	}
	return nodes[0], true
}

// Last returns the last node in document order. Dynamically inserted rows
// and dialogs render after static content, so the last match is preferred.
func Last(nodes []Node) (Node, bool) {
	if len(nodes) == 0 {
		return Node{}, false
	}
	return nodes[len(nodes)-1], true
}

// FirstVisible returns the first visible match of xpath.
func FirstVisible(ctx context.Context, scope Scope, xpath string) (Node, bool, error) {
	nodes, err := CollectVisible(ctx, scope, xpath)
	if err != nil {
		return Node{}, false, err
	}
	n, ok := First(nodes)
	return n, ok, nil
}

// LastVisible returns the last visible match of xpath.
func LastVisible(ctx context.Context, scope Scope, xpath string) (Node, bool, error) {
	nodes, err := CollectVisible(ctx, scope, xpath)
	if err != nil {
		return Node{}, false, err
	}
	n, ok := Last(nodes)
	return n, ok, nil
}

// AnyVisible reports whether any match of xpath is visible.
func AnyVisible(ctx context.Context, scope Scope, xpath string) (bool, error) {
	_, ok, err := FirstVisible(ctx, scope, xpath)
	return ok, err
}

// Literal quotes s as an XPath string literal, falling back to concat()
// when s contains both quote kinds.
func Literal(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		if p != "" {
			quoted = append(quoted, "'"+p+"'")
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

// HasClass is an XPath predicate body matching a whole class token.
func HasClass(class string) string {
	return fmt.Sprintf("contains(concat(' ', normalize-space(@class), ' '), ' %s ')", class)
}

// ClassContains is an XPath predicate body matching a class fragment.
func ClassContains(fragment string) string {
	return fmt.Sprintf("contains(@class, %s)", Literal(fragment))
}

// Union joins expressions with the XPath union operator.
func Union(exprs ...string) string {
	return strings.Join(exprs, " | ")
}
