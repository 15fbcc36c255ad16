package navigator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"panelqa-runner/internal/dom"
)

var (
	acquireLockXPath = ".//*[" + dom.HasClass("btn-acquire-lock") + "]"
	lockPopupXPath   = ".//*[" + dom.HasClass("modal-content") + " or " + dom.HasClass("swal2-popup") + "]"
)

// AcquireLock takes over an item another user holds open. It clicks a
// dedicated acquire-lock button, or the Acquire/Unlock/Kick button of a
// popup that mentions the item is locked. It reports whether it clicked.
func (n *Navigator) AcquireLock(ctx context.Context, page dom.Page) (bool, error) {
	btn, ok, err := dom.FirstVisible(ctx, page, acquireLockXPath)
	if err != nil {
		return false, err
	}
	if !ok {
		btn, ok, err = n.lockPopupButton(ctx, page)
		if err != nil || !ok {
			return false, err
		}
	}
	n.log.Info("item locked, acquiring", zap.String("button", dom.FirstLine(btn.Snap.Text)))
	if err := dom.Activate(ctx, btn); err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	if err := n.clock.Sleep(ctx, n.timing.MenuReveal*3); err != nil {
		return true, err
	}
	return true, page.WaitIdle(ctx, n.timing.Idle)
}

func (n *Navigator) lockPopupButton(ctx context.Context, page dom.Page) (dom.Node, bool, error) {
	popups, err := dom.CollectVisible(ctx, page, lockPopupXPath)
	if err != nil {
		return dom.Node{}, false, err
	}
	for i := len(popups) - 1; i >= 0; i-- {
		p := popups[i]
		if !dom.ContainsFold(p.Snap.Text, "locked") {
			continue
		}
		buttons, err := dom.CollectVisible(ctx, p.El, ".//button | .//a")
		if err != nil {
			return dom.Node{}, false, err
		}
		for _, b := range buttons {
			if dom.ContainsAnyFold(b.Snap.Text, "acquire", "unlock", "kick") {
				return b, true, nil
			}
		}
		n.log.Warn("locked popup without an acquire button")
	}
	return dom.Node{}, false, nil
}
