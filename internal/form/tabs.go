package form

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"panelqa-runner/internal/dom"
	"panelqa-runner/internal/failure"
	"panelqa-runner/internal/plan"
)

const (
	tabPrimaryXPath   = ".//a | .//button | .//*[@role='tab']"
	tabSecondaryXPath = ".//li | .//span | .//div"
	tabFallbackXPath  = ".//*[contains(@class, 'sidebar')]//a | .//*[contains(@class, 'nav-link')] | .//li"
)

var sidebarLinksXPath = ".//*[contains(@class, 'sidebar')]//a | .//*[contains(@class, 'nav-pills')]//a | .//*[" + dom.HasClass("list-group-item") + "]"

// tabLike reports whether a box sits where sidebars (left edge) and modal
// tab strips (top) render, and is small enough not to be a container.
func tabLike(b dom.Box) bool {
	return (b.X < 300 || b.Y < 250) && b.Width < 300 && b.Height < 100
}

// sidebarLike is the stricter rule for scanning: left edge, below the
// header.
func sidebarLike(b dom.Box) bool {
	return b.X < 300 && b.Y > 80
}

func active(s dom.Snapshot) bool {
	for _, tok := range []string{"active", "selected", "current"} {
		if dom.HasClassToken(s.Class, tok) {
			return true
		}
	}
	return false
}

// SwitchTab activates the form tab or sidebar section named name. An
// already active tab is left alone.
func (f *Filler) SwitchTab(ctx context.Context, page dom.Page, name string) error {
	tab, ok, err := f.findTab(ctx, page, name)
	if err != nil {
		return err
	}
	if !ok {
		return failure.NotFound("form.tab", "tab %q", name)
	}
	if active(tab.Snap) {
		f.log.Debug("tab already active", zap.String("tab", name))
		return nil
	}
	if err := dom.Activate(ctx, tab); err != nil {
		return fmt.Errorf("click tab %q: %w", name, err)
	}
	return f.clock.Sleep(ctx, f.timing.TabSettle)
}

func (f *Filler) findTab(ctx context.Context, page dom.Page, name string) (dom.Node, bool, error) {
	for _, xp := range []string{tabPrimaryXPath, tabSecondaryXPath} {
		nodes, err := dom.CollectVisible(ctx, page, xp)
		if err != nil {
			return dom.Node{}, false, err
		}
		for _, n := range nodes {
			if dom.EqualFold(n.Snap.Text, name) && tabLike(n.Snap.Box) {
				return n, true, nil
			}
		}
	}
	nodes, err := dom.CollectVisible(ctx, page, tabFallbackXPath)
	if err != nil {
		return dom.Node{}, false, err
	}
	for _, n := range nodes {
		if dom.ContainsFold(n.Snap.Text, name) {
			return n, true, nil
		}
	}
	return dom.Node{}, false, nil
}

// ScanTabs applies fields to whichever tab holds them. It first tries the
// current view; when that fills everything it saves once and stops.
// Otherwise it walks every sidebar tab, filling strictly and saving any tab
// that accepted at least one field. Empty data leaves the form untouched.
func (f *Filler) ScanTabs(ctx context.Context, page dom.Page, fields plan.Fields) ([]plan.LogEntry, error) {
	const step = "Scan Tabs"
	if len(fields) == 0 {
		return []plan.LogEntry{plan.Warning(step, "No data to apply; form left unchanged")}, nil
	}

	scope, _, err := Scope(ctx, page)
	if err != nil {
		return nil, err
	}
	res, err := f.Fill(ctx, page, scope, fields, true)
	if err != nil {
		return nil, err
	}
	if res.Complete() {
		entry, err := f.saveEntry(ctx, page, step, "Current view: "+res.String())
		if err != nil {
			return nil, err
		}
		return []plan.LogEntry{entry}, nil
	}

	tabs, err := f.sidebarTabs(ctx, page)
	if err != nil {
		return nil, err
	}
	f.log.Info("scanning sidebar tabs", zap.Int("tabs", len(tabs)))
	if len(tabs) == 0 {
		return []plan.LogEntry{plan.Fail(step, "No sidebar tabs found; "+res.String())}, nil
	}

	var logs []plan.LogEntry
	for i, tab := range tabs {
		name := dom.FirstLine(tab.Snap.Text)
		tabStep := fmt.Sprintf("%s [%d] %s", step, i+1, name)
		if !active(tab.Snap) {
			if err := dom.Activate(ctx, tab); err != nil {
				logs = append(logs, plan.Warning(tabStep, "Tab not clickable: "+err.Error()))
				continue
			}
			if err := f.clock.Sleep(ctx, f.timing.TabSettle); err != nil {
				return logs, err
			}
		}
		scope, _, err := Scope(ctx, page)
		if err != nil {
			return logs, err
		}
		res, err := f.Fill(ctx, page, scope, fields, true)
		if err != nil {
			return logs, err
		}
		if res.Count() == 0 {
			continue
		}
		entry, err := f.saveEntry(ctx, page, tabStep, res.String())
		if err != nil {
			return logs, err
		}
		logs = append(logs, entry)
	}
	if len(logs) == 0 {
		logs = append(logs, plan.Fail(step, fmt.Sprintf("No tab accepted any of %d fields", len(fields))))
	}
	return logs, nil
}

func (f *Filler) saveEntry(ctx context.Context, page dom.Page, step, filled string) (plan.LogEntry, error) {
	out, err := f.Save(ctx, page, SaveContinue)
	if err != nil {
		if failure.KindOf(err) == failure.KindNotFound {
			return plan.Fail(step, filled+"; "+failure.DetailOf(err)), nil
		}
		return plan.LogEntry{}, err
	}
	return plan.Pass(step, fmt.Sprintf("%s; saved via %q", filled, out.Button)), nil
}

// sidebarTabs lists candidate tabs: configured section names first, then
// generic sidebar links. Only left-edge entries below the header count and
// each text appears once.
func (f *Filler) sidebarTabs(ctx context.Context, page dom.Page) ([]dom.Node, error) {
	var candidates []dom.Node
	for _, kw := range f.sidebarKeywords {
		xp := fmt.Sprintf(".//a[contains(., %[1]s)] | .//div[@role='button' and contains(., %[1]s)] | .//li[contains(., %[1]s)]", dom.Literal(kw))
		nodes, err := dom.CollectVisible(ctx, page, xp)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, nodes...)
	}
	if len(candidates) == 0 {
		nodes, err := dom.CollectVisible(ctx, page, sidebarLinksXPath)
		if err != nil {
			return nil, err
		}
		candidates = nodes
	}

	seen := make(map[string]bool)
	var tabs []dom.Node
	for _, n := range candidates {
		text := dom.NormalizeText(n.Snap.Text)
		if text == "" || seen[text] || !sidebarLike(n.Snap.Box) {
			continue
		}
		seen[text] = true
		tabs = append(tabs, n)
	}
	return tabs, nil
}
