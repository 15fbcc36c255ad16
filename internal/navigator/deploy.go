package navigator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"panelqa-runner/internal/dom"
	"panelqa-runner/internal/failure"
	"panelqa-runner/internal/plan"
	"panelqa-runner/internal/resolver"
	"panelqa-runner/internal/wait"
)

const (
	brandXPath        = ".//*[contains(@class, 'navbar-brand') or contains(@class, 'logo')]"
	deployPanelText   = "Process Blueprints"
	submitButtonXPath = ".//button | .//input[@type='submit'] | .//a[contains(@class, 'btn')]"
)

// ProcessDeployment runs the blueprint deployment screen: open it from the
// brand logo, tick each requested option and press Process.
func (n *Navigator) ProcessDeployment(ctx context.Context, page dom.Page, options []string) ([]plan.LogEntry, error) {
	const step = "Process Deployment"
	var logs []plan.LogEntry

	if brand, ok, err := dom.FirstVisible(ctx, page, brandXPath); err != nil {
		return logs, err
	} else if ok {
		if err := dom.Activate(ctx, brand); err != nil {
			return logs, err
		}
	}

	found, err := wait.Poll(ctx, n.clock, n.timing.ContentWait, n.timing.PollInterval, func(ctx context.Context) (bool, error) {
		_, err := n.res.Clickable(ctx, page, deployPanelText, resolver.PickLast)
		if failure.KindOf(err) == failure.KindNotFound {
			return false, nil
		}
		return err == nil, err
	})
	if err != nil {
		return logs, err
	}
	if !found {
		return logs, failure.NotFound("navigator.deploy", "%q panel did not appear", deployPanelText)
	}

	for _, opt := range options {
		ok, err := n.checkOption(ctx, page, opt)
		if err != nil {
			return logs, err
		}
		if ok {
			logs = append(logs, plan.Pass(step, fmt.Sprintf("Checked option '%s'", opt)))
		} else {
			logs = append(logs, plan.Warning(step, fmt.Sprintf("Option '%s' not found", opt)))
		}
	}

	btn, ok, err := n.res.ByText(ctx, page, submitButtonXPath, "Process", resolver.PickLast)
	if err != nil {
		return logs, err
	}
	if !ok {
		return logs, failure.NotFound("navigator.deploy", "Process button")
	}
	if err := dom.Activate(ctx, btn.Node); err != nil {
		return logs, err
	}
	n.log.Info("deployment triggered", zap.Strings("options", options))
	logs = append(logs, plan.Pass(step, "Deployment triggered"))
	return logs, n.WaitForLoading(ctx, page)
}

// checkOption ticks the checkbox belonging to the label containing text.
func (n *Navigator) checkOption(ctx context.Context, page dom.Page, text string) (bool, error) {
	labels, err := dom.CollectVisible(ctx, page, ".//label")
	if err != nil {
		return false, err
	}
	for _, l := range labels {
		if !dom.ContainsFold(l.Snap.Text, text) {
			continue
		}
		queries := []string{
			".//input[@type='checkbox']",
			"preceding-sibling::input[@type='checkbox'][1]",
			"following-sibling::input[@type='checkbox'][1]",
			"following::input[@type='checkbox'][1]",
		}
		if l.Snap.For != "" {
			queries = append([]string{fmt.Sprintf("//input[@id=%s]", dom.Literal(l.Snap.For))}, queries...)
		}
		for _, xp := range queries {
			boxes, err := l.El.Find(ctx, xp)
			if err != nil {
				return false, err
			}
			if len(boxes) > 0 {
				return dom.EnsureChecked(ctx, boxes[0])
			}
		}
	}
	return false, nil
}
