package dom

import "context"

// Activate scrolls n into view and clicks it, falling back to a script
// click when n is not rendered or the real click is refused.
func Activate(ctx context.Context, n Node) error {
	_ = n.El.ScrollIntoView(ctx)
	if n.Snap.Visible {
		if err := n.El.Click(ctx); err == nil {
			return nil
		}
	}
	return n.El.ClickJS(ctx)
}

// EnsureChecked drives a checkbox to the checked state: click, verify,
// then assign the property from script as a last resort. It never clicks
// a box that is already checked, so repeating it is harmless.
func EnsureChecked(ctx context.Context, el Element) (bool, error) {
	_ = el.ScrollIntoView(ctx)
	snap, err := el.Snapshot(ctx)
	if err != nil {
		return false, err
	}
	if snap.Checked {
		return true, nil
	}
	if err := el.Click(ctx); err == nil {
		if snap, err = el.Snapshot(ctx); err == nil && snap.Checked {
			return true, nil
		}
	}
	if err := el.SetChecked(ctx, true); err != nil {
		return false, err
	}
	snap, err = el.Snapshot(ctx)
	if err != nil {
		return false, err
	}
	return snap.Checked, nil
}
