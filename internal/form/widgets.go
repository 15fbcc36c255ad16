package form

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"panelqa-runner/internal/dom"
)

var (
	select2SearchXPath    = ".//*[" + dom.ClassContains("select2-container--open") + "]//input[" + dom.ClassContains("select2-search__field") + "]"
	select2HighlightXPath = ".//*[" + dom.ClassContains("select2-results__option--highlighted") + "]"
	select2OptionXPath    = ".//*[" + dom.HasClass("select2-results__option") + "]"
)

// write applies the fill protocol for the element's widget kind.
func (f *Filler) write(ctx context.Context, page dom.Page, n dom.Node, inTable bool, value string) error {
	kind := dom.Classify(n.Snap, inTable)
	f.log.Debug("writing field",
		zap.String("widget", kind.String()),
		zap.String("id", n.Snap.ID),
		zap.String("name", n.Snap.Name))

	switch kind {
	case dom.WidgetDropdown:
		return f.writeDropdown(ctx, page, n, value)
	case dom.WidgetToggle:
		return f.writeToggle(ctx, page, n, value)
	case dom.WidgetRadio:
		return dom.Activate(ctx, n)
	case dom.WidgetTableCell:
		if dom.IsNativeSelect(n.Snap) {
			return selectNative(ctx, n.El, value)
		}
		return writeText(ctx, n, value)
	default:
		return writeText(ctx, n, value)
	}
}

// writeText focuses, replaces the value, fires change and tabs away so
// bound listeners see the new value without submitting the form.
func writeText(ctx context.Context, n dom.Node, value string) error {
	_ = n.El.ScrollIntoView(ctx)
	if err := n.El.Click(ctx); err != nil {
		if err := n.El.ClickJS(ctx); err != nil {
			return fmt.Errorf("focus field: %w", err)
		}
	}
	if err := n.El.Fill(ctx, value); err != nil {
		return fmt.Errorf("fill field: %w", err)
	}
	if err := n.El.DispatchChange(ctx); err != nil {
		return fmt.Errorf("dispatch change: %w", err)
	}
	return n.El.Press(ctx, dom.KeyTab)
}

func selectNative(ctx context.Context, el dom.Element, value string) error {
	if err := el.SelectOption(ctx, value); err != nil {
		return fmt.Errorf("select option %q: %w", value, err)
	}
	return el.DispatchChange(ctx)
}

// writeDropdown drives a searchable dropdown: open it, type into the
// search box, then take the highlighted or exact-text option. Without a
// search box the typed text is committed with Enter.
func (f *Filler) writeDropdown(ctx context.Context, page dom.Page, n dom.Node, value string) error {
	trigger := n
	if dom.IsNativeSelect(n.Snap) {
		if !strings.Contains(strings.ToLower(n.Snap.Class), "select2") {
			return selectNative(ctx, n.El, value)
		}
		container, ok, err := select2Container(ctx, page, n)
		if err != nil {
			return err
		}
		if !ok {
			return selectNative(ctx, n.El, value)
		}
		trigger = container
	}

	if err := dom.Activate(ctx, trigger); err != nil {
		return fmt.Errorf("open dropdown: %w", err)
	}
	if err := f.clock.Sleep(ctx, f.timing.PollInterval); err != nil {
		return err
	}

	box, ok, err := dom.LastVisible(ctx, page, select2SearchXPath)
	if err != nil {
		return err
	}
	if !ok {
		if err := page.Type(ctx, value); err != nil {
			return err
		}
		return page.Press(ctx, dom.KeyEnter)
	}

	if err := box.El.Fill(ctx, value); err != nil {
		return fmt.Errorf("type dropdown search: %w", err)
	}
	if err := f.clock.Sleep(ctx, f.timing.PollInterval); err != nil {
		return err
	}

	opt, ok, err := dom.FirstVisible(ctx, page, select2HighlightXPath)
	if err != nil {
		return err
	}
	if !ok {
		options, err := dom.CollectVisible(ctx, page, select2OptionXPath)
		if err != nil {
			return err
		}
		for _, o := range options {
			if dom.EqualFold(o.Snap.Text, value) {
				opt, ok = o, true
				break
			}
		}
	}
	if ok {
		return dom.Activate(ctx, opt)
	}
	return box.El.Press(ctx, dom.KeyEnter)
}

// select2Container finds the rendered widget for a select2-enhanced
// <select>: its sibling container, or a selection labelled by its id.
func select2Container(ctx context.Context, page dom.Page, n dom.Node) (dom.Node, bool, error) {
	c, ok, err := dom.FirstVisible(ctx, n.El, "following-sibling::span["+dom.ClassContains("select2")+"][1]")
	if err != nil || ok {
		return c, ok, err
	}
	if n.Snap.ID == "" {
		return dom.Node{}, false, nil
	}
	xp := fmt.Sprintf(".//*[%s and contains(@aria-labelledby, %s)]", dom.ClassContains("select2-selection"), dom.Literal(n.Snap.ID))
	return dom.FirstVisible(ctx, page, xp)
}

// writeToggle sets a checkbox-like control to the truthiness of value,
// clicking only when the state differs. A styled toggle is clicked through
// its label; script assignment is the last resort.
func (f *Filler) writeToggle(ctx context.Context, page dom.Page, n dom.Node, value string) error {
	want := dom.Truthy(value)
	if n.Snap.Checked == want {
		return nil
	}

	clicked := false
	if n.Snap.ID != "" {
		xp := fmt.Sprintf(".//label[@for=%s]", dom.Literal(n.Snap.ID))
		labels, err := dom.CollectVisible(ctx, page, xp)
		if err != nil {
			return err
		}
		var lbl dom.Node
		for _, l := range labels {
			if dom.HasClassToken(l.Snap.Class, "tgl-btn") {
				lbl, clicked = l, true
				break
			}
		}
		if !clicked && !n.Snap.Visible && len(labels) > 0 {
			lbl, clicked = labels[0], true
		}
		if clicked {
			if err := dom.Activate(ctx, lbl); err != nil {
				return fmt.Errorf("click toggle label: %w", err)
			}
		}
	}
	if !clicked {
		if err := dom.Activate(ctx, n); err != nil {
			return fmt.Errorf("click toggle: %w", err)
		}
	}

	snap, err := n.El.Snapshot(ctx)
	if err != nil {
		return err
	}
	if snap.Checked != want {
		return n.El.SetChecked(ctx, want)
	}
	return nil
}
