package form

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"panelqa-runner/internal/dom"
	"panelqa-runner/internal/failure"
	"panelqa-runner/internal/plan"
)

// TabKey is the field-map key that selects a form tab before filling.
const TabKey = "Tab"

var (
	openModalXPath = ".//*[" + dom.HasClass("modal") + " and " + dom.HasClass("show") + "]//*[" + dom.HasClass("modal-content") + "]"
	anyModalXPath  = ".//*[" + dom.HasClass("modal-content") + "]"
)

// Scope returns the last open modal when one is visible, else the page.
func Scope(ctx context.Context, page dom.Page) (dom.Scope, bool, error) {
	for _, xp := range []string{openModalXPath, anyModalXPath} {
		n, ok, err := dom.LastVisible(ctx, page, xp)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return n.El, true, nil
		}
	}
	return page, false, nil
}

// Update fills fields into the open modal, or the page when none is open,
// with the blind fallback enabled.
func (f *Filler) Update(ctx context.Context, page dom.Page, fields plan.Fields) (Result, error) {
	scope, modal, err := Scope(ctx, page)
	if err != nil {
		return Result{}, err
	}
	f.log.Debug("updating form", zap.Bool("modal", modal), zap.Int("fields", len(fields)))
	return f.Fill(ctx, page, scope, fields, false)
}

// Fill writes fields into scope in order. A TabKey entry switches tabs
// first and is not counted. Fields that cannot be resolved or written are
// reported in Result.Missed; only context errors abort the fill.
func (f *Filler) Fill(ctx context.Context, page dom.Page, scope dom.Scope, fields plan.Fields, strict bool) (Result, error) {
	var res Result
	if tab, ok := fields.Get(TabKey); ok {
		fields = fields.Without(TabKey)
		if err := f.SwitchTab(ctx, page, tab); err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			f.log.Warn("tab switch failed", zap.String("tab", tab), zap.Error(err))
		}
	}

	for _, field := range fields {
		err := f.fillField(ctx, page, scope, field, strict)
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if err != nil {
			f.log.Info("field skipped", zap.String("field", field.Name), zap.Bool("strict", strict), zap.Error(err))
			res.Missed = append(res.Missed, field.Name)
			continue
		}
		res.Filled = append(res.Filled, field.Name)
	}
	return res, nil
}

func (f *Filler) fillField(ctx context.Context, page dom.Page, scope dom.Scope, field plan.Field, strict bool) error {
	var lastErr error
	for attempt := 0; attempt < f.timing.FieldAttempts; attempt++ {
		if attempt > 0 {
			if err := f.clock.Sleep(ctx, f.timing.FieldRetry); err != nil {
				return err
			}
		}

		done, err := f.radioByValue(ctx, scope, field)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		hint := f.res.HintFor(field.Name, field.Value, strict)
		m, err := f.res.Resolve(ctx, scope, hint)
		if err == nil {
			return f.write(ctx, page, m.Node, m.InTable(), field.Value)
		}
		if failure.KindOf(err) != failure.KindNotFound {
			return err
		}
		lastErr = err
	}
	return lastErr
}

// radioByValue selects the radio whose label reads exactly the value.
// Boolean words, identifier-like values and "...value" keys never match a
// radio label.
func (f *Filler) radioByValue(ctx context.Context, scope dom.Scope, field plan.Field) (bool, error) {
	v := strings.TrimSpace(field.Value)
	if v == "" || dom.IsBooleanWord(v) || strings.Contains(strings.ToLower(field.Name), "value") {
		return false, nil
	}
	if len(v) > 15 && !strings.Contains(v, " ") {
		return false, nil
	}

	labels, err := dom.CollectVisible(ctx, scope, ".//label")
	if err != nil {
		return false, err
	}
	for _, lbl := range labels {
		if !dom.EqualFold(lbl.Snap.Text, v) {
			continue
		}
		radio, ok, err := radioFor(ctx, scope, lbl)
		if err != nil {
			return false, err
		}
		if !ok {
			continue
		}
		if !radio.Snap.Checked {
			if err := dom.Activate(ctx, lbl); err != nil {
				return false, fmt.Errorf("select radio %q: %w", v, err)
			}
		}
		f.log.Debug("radio selected by label", zap.String("field", field.Name), zap.String("value", v))
		return true, nil
	}
	return false, nil
}

type query struct {
	scope dom.Scope
	xpath string
}

func radioFor(ctx context.Context, scope dom.Scope, lbl dom.Node) (dom.Node, bool, error) {
	var queries []query
	if lbl.Snap.For != "" {
		queries = append(queries, query{scope, fmt.Sprintf(".//input[@type='radio' and @id=%s]", dom.Literal(lbl.Snap.For))})
	}
	queries = append(queries,
		query{lbl.El, ".//input[@type='radio']"},
		query{lbl.El, "preceding-sibling::input[@type='radio'][1]"},
		query{lbl.El, "following-sibling::input[@type='radio'][1]"},
	)
	for _, q := range queries {
		nodes, err := dom.Collect(ctx, q.scope, q.xpath)
		if err != nil {
			return dom.Node{}, false, err
		}
		if n, ok := dom.First(nodes); ok {
			return n, true, nil
		}
	}
	return dom.Node{}, false, nil
}
