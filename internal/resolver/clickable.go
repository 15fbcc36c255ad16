package resolver

import (
	"context"

	"panelqa-runner/internal/dom"
	"panelqa-runner/internal/failure"
)

const (
	StrategyExactText   Strategy = "exact-text"
	StrategyPartialText Strategy = "partial-text"
	StrategyDeepScan    Strategy = "deep-scan"
)

// ClickableXPath matches menu entries, buttons, tabs and links.
const ClickableXPath = ".//a | .//button | .//*[contains(@class, 'dropdown-item')] | .//*[contains(@class, 'nav-link')]" +
	" | .//*[@role='menuitem'] | .//div[@role='button']"

const deepScanXPath = ".//*[not(self::html) and not(self::head) and not(self::body) and not(self::script)" +
	" and not(self::style) and not(self::option)]"

// Pick selects among several exact matches.
type Pick int

const (
	// PickFirst suits top-level menu bars.
	PickFirst Pick = iota
	// PickLast suits nested menus, which render after their parent.
	PickLast
)

// Clickable resolves a visible clickable element by its text. Exact text
// beats partial; among partial matches the shortest text wins. When no
// clickable matches, any visible element containing the text is taken.
func (r *Resolver) Clickable(ctx context.Context, scope dom.Scope, label string, pick Pick) (Match, error) {
	nodes, err := dom.CollectVisible(ctx, scope, ClickableXPath)
	if err != nil {
		return Match{}, err
	}
	if m, ok := chooseByText(nodes, label, pick); ok {
		return m, nil
	}

	deep, err := dom.CollectVisible(ctx, scope, deepScanXPath)
	if err != nil {
		return Match{}, err
	}
	re := dom.LooseMatcher(label)
	deep = dom.Filter(deep, func(n dom.Node) bool { return re.MatchString(n.Snap.Text) })
	if n, ok := dom.Last(deep); ok {
		return Match{Node: n, Strategy: StrategyDeepScan, Term: label}, nil
	}
	return Match{}, failure.NotFound("resolver.clickable", "no visible element for %q", label)
}

// chooseByText applies the exact/partial preference to candidates.
func chooseByText(nodes []dom.Node, label string, pick Pick) (Match, bool) {
	re := dom.LooseMatcher(label)
	var exact, partial []dom.Node
	for _, n := range nodes {
		text := n.Snap.Text
		if text == "" {
			text = n.Snap.Value
		}
		switch {
		case dom.EqualFold(text, label) || dom.EqualFold(dom.FirstLine(text), label):
			exact = append(exact, n)
		case re.MatchString(text):
			partial = append(partial, n)
		}
	}
	if len(exact) > 0 {
		n := exact[0]
		if pick == PickLast {
			n = exact[len(exact)-1]
		}
		return Match{Node: n, Strategy: StrategyExactText, Term: label}, true
	}
	if len(partial) > 0 {
		best := partial[0]
		for _, n := range partial[1:] {
			if len(dom.NormalizeText(n.Snap.Text)) < len(dom.NormalizeText(best.Snap.Text)) {
				best = n
			}
		}
		return Match{Node: best, Strategy: StrategyPartialText, Term: label}, true
	}
	return Match{}, false
}

// ByText applies the clickable text preference to an arbitrary query.
func (r *Resolver) ByText(ctx context.Context, scope dom.Scope, xpath, label string, pick Pick) (Match, bool, error) {
	nodes, err := dom.CollectVisible(ctx, scope, xpath)
	if err != nil {
		return Match{}, false, err
	}
	m, ok := chooseByText(nodes, label, pick)
	return m, ok, nil
}
