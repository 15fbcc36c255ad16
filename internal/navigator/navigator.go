// Package navigator walks menu paths, performs text-addressed clicks and
// waits for the panel's loading indicators.
package navigator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"panelqa-runner/internal/dom"
	"panelqa-runner/internal/failure"
	"panelqa-runner/internal/resolver"
	"panelqa-runner/internal/wait"
)

// Timings are the navigator's wait windows.
type Timings struct {
	MenuReveal     time.Duration
	SpinnerAppear  time.Duration
	SpinnerTimeout time.Duration
	ContentWait    time.Duration
	PollInterval   time.Duration
	Idle           time.Duration
}

// Navigator drives menus and clickable labels.
type Navigator struct {
	res    *resolver.Resolver
	clock  wait.Clock
	timing Timings
	log    *zap.Logger
}

// New creates a navigator.
func New(res *resolver.Resolver, clock wait.Clock, timing Timings, log *zap.Logger) *Navigator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Navigator{res: res, clock: clock, timing: timing, log: log.Named("navigator")}
}

// Walk follows a breadcrumb of menu labels. The first label picks the
// first exact match (top bar); later labels pick the last (nested menus
// render after their parent). A missing label is a failure.ErrNotFound,
// which callers treat as fatal for the plan.
func (n *Navigator) Walk(ctx context.Context, page dom.Page, path []string) error {
	if len(path) == 0 {
		return failure.NotFound("navigator.walk", "empty navigation path")
	}
	for i, label := range path {
		pick := resolver.PickLast
		if i == 0 {
			pick = resolver.PickFirst
		}
		m, err := n.res.Clickable(ctx, page, label, pick)
		if err != nil {
			if failure.KindOf(err) == failure.KindNotFound {
				return failure.NotFound("navigator.walk", "menu item %q not found (step %d of %d)", label, i+1, len(path))
			}
			return err
		}
		n.log.Debug("menu item located",
			zap.String("label", label),
			zap.Int("step", i),
			zap.String("strategy", string(m.Strategy)))

		if err := m.El.ScrollIntoView(ctx); err != nil {
			n.log.Debug("scroll into view failed", zap.String("label", label), zap.Error(err))
		}
		if i > 0 {
			if err := n.clock.Sleep(ctx, n.timing.MenuReveal); err != nil {
				return err
			}
		}

		if i == len(path)-1 {
			if err := dom.Activate(ctx, m.Node); err != nil {
				return fmt.Errorf("click %q: %w", label, err)
			}
			break
		}

		if m.Snap.Visible {
			if err := m.El.Hover(ctx); err != nil {
				n.log.Debug("hover failed", zap.String("label", label), zap.Error(err))
			}
			if err := n.clock.Sleep(ctx, n.timing.MenuReveal/2); err != nil {
				return err
			}
		}

		next := path[i+1]
		click := true
		if !dom.EqualFold(label, next) {
			// a parent whose child is already showing (hover menus) needs no click
			visible, err := n.exactVisible(ctx, page, next)
			if err != nil {
				return err
			}
			click = !visible
		}
		if click {
			if err := dom.Activate(ctx, m.Node); err != nil {
				return fmt.Errorf("click %q: %w", label, err)
			}
			if err := n.clock.Sleep(ctx, n.timing.MenuReveal); err != nil {
				return err
			}
		}
	}
	return page.WaitIdle(ctx, n.timing.Idle)
}

func (n *Navigator) exactVisible(ctx context.Context, page dom.Page, label string) (bool, error) {
	m, ok, err := n.res.ByText(ctx, page, resolver.ClickableXPath, label, resolver.PickLast)
	if err != nil {
		return false, err
	}
	return ok && m.Strategy == resolver.StrategyExactText, nil
}

// Open navigates a direct address.
func (n *Navigator) Open(ctx context.Context, page dom.Page, url string) error {
	if err := page.Navigate(ctx, url); err != nil {
		return failure.NotFound("navigator.open", "navigate %s: %v", url, err)
	}
	return page.WaitIdle(ctx, n.timing.Idle)
}
