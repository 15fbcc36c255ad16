package table

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"panelqa-runner/internal/dom"
	"panelqa-runner/internal/failure"
	"panelqa-runner/internal/memory"
)

// RowAction is a per-row icon action.
type RowAction string

const (
	Edit  RowAction = "edit"
	Clone RowAction = "clone"
)

var (
	iconXPaths = map[RowAction]string{
		Edit: ".//i[" + dom.ClassContains("edit") + " or " + dom.ClassContains("pencil") + "]" +
			" | .//*[" + dom.HasClass("btn-edit") + "]",
		Clone: ".//i[" + dom.ClassContains("clone") + " or " + dom.ClassContains("copy") + " or " + dom.ClassContains("share") + "]" +
			" | .//*[" + dom.HasClass("btn-clone") + "]",
	}
	rowButtonsXPath = ".//button | .//a[" + dom.ClassContains("btn") + "]"
	filterHints     = []string{"ID", "Search", "Name", "Filter", "Title"}
)

// Activate clicks the edit or clone control of the row containing target.
// The LAST_SELECTED sentinel reads the row from mem; with nothing remembered
// the first row is used. A missing row triggers one auto-filter and retry.
// It returns how the control was found.
func (o *Operator) Activate(ctx context.Context, page dom.Page, mem *memory.Memory, target string, action RowAction) (string, error) {
	text := mem.Resolve(target)
	if text == "" {
		first, err := o.firstRowID(ctx, page)
		if err != nil {
			return "", err
		}
		o.log.Info("no remembered row, using first row", zap.String("row", first))
		text = first
	}
	if text == "" {
		return "", failure.NotFound("table.row", "no row to %s", action)
	}

	via, ok, err := o.clickInRow(ctx, page, text, action)
	if err != nil || ok {
		return via, err
	}
	filtered, err := o.autoFilter(ctx, page, text)
	if err != nil {
		return "", err
	}
	if filtered {
		via, ok, err = o.clickInRow(ctx, page, text, action)
		if err != nil || ok {
			return via + " after filter", err
		}
	}
	return "", failure.NotFound("table.row", "row %q not found", text)
}

func (o *Operator) firstRowID(ctx context.Context, page dom.Page) (string, error) {
	if _, err := o.WaitForRows(ctx, page); err != nil {
		return "", err
	}
	rows, err := page.Find(ctx, rowsXPath)
	if err != nil || len(rows) == 0 {
		return "", err
	}
	return RowID(ctx, rows[0])
}

// clickInRow clicks the action icon of the first matching row, or a
// positional button: the first for edit, the second for clone when the row
// has two or more.
func (o *Operator) clickInRow(ctx context.Context, page dom.Page, text string, action RowAction) (string, bool, error) {
	rows, err := dom.Collect(ctx, page, ".//tbody/tr")
	if err != nil {
		return "", false, err
	}
	for _, row := range rows {
		if !dom.ContainsFold(row.Snap.Text, text) {
			continue
		}
		icons, err := row.El.Find(ctx, iconXPaths[action])
		if err != nil {
			return "", false, err
		}
		if len(icons) > 0 {
			target, err := clickTarget(ctx, icons[0])
			if err != nil {
				return "", false, err
			}
			if err := target.ClickJS(ctx); err != nil {
				return "", false, fmt.Errorf("%s icon: %w", action, err)
			}
			return "icon", true, nil
		}

		buttons, err := row.El.Find(ctx, rowButtonsXPath)
		if err != nil {
			return "", false, err
		}
		if len(buttons) == 0 {
			continue
		}
		btn := buttons[0]
		if action == Clone && len(buttons) >= 2 {
			btn = buttons[1]
		}
		if err := btn.ClickJS(ctx); err != nil {
			return "", false, fmt.Errorf("%s button: %w", action, err)
		}
		return "position", true, nil
	}
	return "", false, nil
}

// clickTarget is the button or link wrapping an icon, or the icon itself.
func clickTarget(ctx context.Context, icon dom.Element) (dom.Element, error) {
	for _, xp := range []string{"ancestor-or-self::button[1]", "ancestor-or-self::a[1]"} {
		els, err := icon.Find(ctx, xp)
		if err != nil {
			return nil, err
		}
		if len(els) > 0 {
			return els[0], nil
		}
	}
	return icon, nil
}

// autoFilter types text into the table's search box and presses Enter.
func (o *Operator) autoFilter(ctx context.Context, page dom.Page, text string) (bool, error) {
	inputs, err := dom.CollectVisible(ctx, page, ".//input[@placeholder]")
	if err != nil {
		return false, err
	}
	var box dom.Node
	found := false
	for _, hint := range filterHints {
		for _, in := range inputs {
			if dom.ContainsFold(in.Snap.Placeholder, hint) {
				box, found = in, true
				break
			}
		}
		if found {
			break
		}
	}
	if !found {
		box, found, err = dom.FirstVisible(ctx, page, ".//input[@type='text']")
		if err != nil || !found {
			return false, err
		}
	}

	o.log.Info("row not visible, filtering table", zap.String("filter", text))
	if err := box.El.Fill(ctx, text); err != nil {
		return false, fmt.Errorf("filter table: %w", err)
	}
	if err := box.El.Press(ctx, dom.KeyEnter); err != nil {
		return false, err
	}
	return true, o.clock.Sleep(ctx, o.timing.FilterSettle)
}
