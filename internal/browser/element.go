package browser

import (
	"context"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"panelqa-runner/internal/dom"
)

// Element adapts a rod element to dom.Element.
type Element struct {
	el *rod.Element
}

var _ dom.Element = (*Element)(nil)

func wrapAll(els rod.Elements) []dom.Element {
	out := make([]dom.Element, 0, len(els))
	for _, el := range els {
		out = append(out, &Element{el: el})
	}
	return out
}

func (e *Element) Find(ctx context.Context, xpath string) ([]dom.Element, error) {
	els, err := e.el.Context(ctx).ElementsX(xpath)
	if err != nil {
		return nil, classify("browser.find", err)
	}
	return wrapAll(els), nil
}

func (e *Element) Snapshot(ctx context.Context) (dom.Snapshot, error) {
	res, err := e.el.Context(ctx).Eval(snapshotJS)
	if err != nil {
		return dom.Snapshot{}, classify("browser.snapshot", err)
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return dom.Snapshot{}, err
	}
	var snap dom.Snapshot
	if err := api.Unmarshal(raw, &snap); err != nil {
		return dom.Snapshot{}, err
	}
	return snap, nil
}

func (e *Element) Click(ctx context.Context) error {
	return classify("browser.click", e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1))
}

func (e *Element) ClickJS(ctx context.Context) error {
	_, err := e.el.Context(ctx).Eval(`() => this.click()`)
	return classify("browser.click", err)
}

func (e *Element) Hover(ctx context.Context) error {
	return classify("browser.hover", e.el.Context(ctx).Hover())
}

func (e *Element) ScrollIntoView(ctx context.Context) error {
	return classify("browser.scroll", e.el.Context(ctx).ScrollIntoView())
}

// Fill clears the element from script, then types value so the panel's
// key handlers see real input.
func (e *Element) Fill(ctx context.Context, value string) error {
	el := e.el.Context(ctx)
	if _, err := el.Eval(`() => { this.focus(); this.value = ''; }`); err != nil {
		return classify("browser.fill", err)
	}
	if value == "" {
		return e.DispatchChange(ctx)
	}
	return classify("browser.fill", el.Input(value))
}

func (e *Element) DispatchChange(ctx context.Context) error {
	_, err := e.el.Context(ctx).Eval(dispatchChangeJS)
	return classify("browser.change", err)
}

func (e *Element) Press(ctx context.Context, key dom.Key) error {
	k, err := keyFor(key)
	if err != nil {
		return err
	}
	return classify("browser.press", e.el.Context(ctx).Type(k))
}

func (e *Element) SetChecked(ctx context.Context, checked bool) error {
	_, err := e.el.Context(ctx).Eval(setCheckedJS, checked)
	return classify("browser.check", err)
}

func (e *Element) SelectOption(ctx context.Context, text string) error {
	return classify("browser.select", e.el.Context(ctx).Select([]string{text}, true, rod.SelectorTypeText))
}

func (e *Element) SetFiles(ctx context.Context, paths []string) error {
	return classify("browser.files", e.el.Context(ctx).SetFiles(paths))
}
