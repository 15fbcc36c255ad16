package navigator

import (
	"context"

	"go.uber.org/zap"

	"panelqa-runner/internal/dom"
	"panelqa-runner/internal/failure"
	"panelqa-runner/internal/resolver"
	"panelqa-runner/internal/wait"
)

const (
	sidebarXPath = ".//*[contains(@class, 'sidebar') or self::aside or @id='sidebar']//a"
	tabXPath     = ".//*[contains(@class, 'nav-tabs') or contains(@class, 'nav-pills')]//a | .//*[@role='tab']"
	spinnerXPath = ".//*[contains(@class, 'spinner') or contains(@class, 'loader') or contains(@class, 'loading')" +
		" or contains(@class, 'fa-spin') or contains(@class, 'blockUI') or contains(@class, 'dataTables_processing')]"
)

// Click activates the element labelled target, looking in the sidebar,
// then tab strips, then anywhere on the page. It waits for any loading
// indicator the click triggers. The returned string names where the
// element was found.
func (n *Navigator) Click(ctx context.Context, page dom.Page, target string) (string, error) {
	scopes := []struct {
		name  string
		xpath string
	}{
		{"sidebar", sidebarXPath},
		{"tab", tabXPath},
	}
	for _, s := range scopes {
		m, ok, err := n.res.ByText(ctx, page, s.xpath, target, resolver.PickLast)
		if err != nil {
			return "", err
		}
		if ok {
			if err := dom.Activate(ctx, m.Node); err != nil {
				return "", err
			}
			n.log.Debug("clicked", zap.String("target", target), zap.String("via", s.name))
			return s.name, n.WaitForLoading(ctx, page)
		}
	}

	m, err := n.res.Clickable(ctx, page, target, resolver.PickLast)
	if err != nil {
		return "", failure.NotFound("navigator.click", "clickable %q", target)
	}
	if err := dom.Activate(ctx, m.Node); err != nil {
		return "", err
	}
	n.log.Debug("clicked", zap.String("target", target), zap.String("via", string(m.Strategy)))
	return string(m.Strategy), n.WaitForLoading(ctx, page)
}

// InSidebar reports whether a sidebar entry is labelled target.
func (n *Navigator) InSidebar(ctx context.Context, page dom.Page, target string) (bool, error) {
	_, ok, err := n.res.ByText(ctx, page, sidebarXPath, target, resolver.PickLast)
	return ok, err
}

// WaitForLoading waits for a loading indicator to appear and then vanish.
// No indicator within the appear window means the page is already ready.
// An indicator that outlives the spinner timeout is a failure.ErrTimeout.
func (n *Navigator) WaitForLoading(ctx context.Context, page dom.Page) error {
	spinning := func(ctx context.Context) (bool, error) {
		return dom.AnyVisible(ctx, page, spinnerXPath)
	}
	appeared, err := wait.Poll(ctx, n.clock, n.timing.SpinnerAppear, n.timing.PollInterval, spinning)
	if err != nil {
		return err
	}
	if appeared {
		gone, err := wait.Poll(ctx, n.clock, n.timing.SpinnerTimeout, n.timing.PollInterval, func(ctx context.Context) (bool, error) {
			on, err := spinning(ctx)
			return !on, err
		})
		if err != nil {
			return err
		}
		if !gone {
			return failure.Timeout("navigator.wait", "loading indicator still visible after %s", n.timing.SpinnerTimeout)
		}
	}
	return page.WaitIdle(ctx, n.timing.Idle)
}
