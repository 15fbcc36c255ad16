package form

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"panelqa-runner/internal/dom"
	"panelqa-runner/internal/failure"
	"panelqa-runner/internal/wait"
)

// SaveMode picks which button family the save protocol prefers.
type SaveMode int

const (
	// SaveContinue prefers "Save & Continue" and falls back to plain save.
	SaveContinue SaveMode = iota
	// SavePlain skips the continue buttons.
	SavePlain
)

// ParseSaveMode maps a plan's mode string onto a SaveMode.
func ParseSaveMode(s string) SaveMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "save", "plain", "exit", "close":
		return SavePlain
	default:
		return SaveContinue
	}
}

// SaveOutcome describes the button pressed and what followed.
type SaveOutcome struct {
	Button  string
	Rule    string
	Toast   bool
	Settled bool
}

var (
	openModalRootXPath = ".//*[" + dom.HasClass("modal") + " and " + dom.HasClass("show") + "]"
	continueAttrXPath  = ".//button[@data-continue='1'] | .//input[@data-continue='1']"
	btnSaveXPath       = ".//*[" + dom.HasClass("btn-save") + " and not(@data-continue='1')]"
	actionButtonsXPath = ".//button | .//a[" + dom.ClassContains("btn") + "] | .//input[@type='submit']"
	toastXPath         = ".//*[" + dom.HasClass("toast-success") + " or " + dom.HasClass("alert-success") + "]"
	backdropXPath      = ".//*[" + dom.HasClass("modal-backdrop") + "]"

	saveContinueRe = regexp.MustCompile(`(?i)save.*continue`)
	saveRe         = regexp.MustCompile(`(?i)save`)

	genericSaveTexts = []string{"Save All", "Create", "Update", "Submit", "Duplicate", "Clone", "Confirm", "Yes", "Acquire Lock"}
	classFallbacks   = []string{
		".//button[" + dom.HasClass("btn-primary") + "]",
		".//button[" + dom.HasClass("btn-success") + "]",
		".//input[@type='submit']",
	}
)

// Save presses the best save/submit button inside the open modal, or the
// page when no modal is open, accepting any native confirm it raises. It
// then waits for a success toast and for the modal backdrop to clear.
func (f *Filler) Save(ctx context.Context, page dom.Page, mode SaveMode) (SaveOutcome, error) {
	stop, err := page.AcceptDialogs(ctx)
	if err != nil {
		return SaveOutcome{}, failure.Session("form.save", err)
	}
	defer stop()

	var scope dom.Scope = page
	if modal, ok, err := dom.LastVisible(ctx, page, openModalRootXPath); err != nil {
		return SaveOutcome{}, err
	} else if ok {
		scope = modal.El
	}

	btn, rule, ok, err := findSaveButton(ctx, scope, mode)
	if err != nil {
		return SaveOutcome{}, err
	}
	if !ok {
		return SaveOutcome{}, failure.NotFound("form.save", "no save or submit button")
	}

	out := SaveOutcome{Button: label(btn.Snap), Rule: rule}
	f.log.Info("saving form", zap.String("button", out.Button), zap.String("rule", rule))
	if err := dom.Activate(ctx, btn); err != nil {
		return out, fmt.Errorf("click %q: %w", out.Button, err)
	}

	out.Toast, err = wait.Poll(ctx, f.clock, f.timing.SaveToast, f.timing.PollInterval, func(ctx context.Context) (bool, error) {
		return dom.AnyVisible(ctx, page, toastXPath)
	})
	if err != nil {
		return out, err
	}
	out.Settled, err = wait.Poll(ctx, f.clock, f.timing.SaveBackdrop, f.timing.PollInterval, func(ctx context.Context) (bool, error) {
		shown, err := dom.AnyVisible(ctx, page, backdropXPath)
		return !shown, err
	})
	return out, err
}

func label(s dom.Snapshot) string {
	if t := dom.FirstLine(s.Text); t != "" {
		return t
	}
	if s.Value != "" {
		return s.Value
	}
	return s.Tag
}

// findSaveButton walks the button preference list. The returned rule names
// the tier that matched.
func findSaveButton(ctx context.Context, scope dom.Scope, mode SaveMode) (dom.Node, string, bool, error) {
	if mode == SaveContinue {
		if n, ok, err := dom.LastVisible(ctx, scope, continueAttrXPath); err != nil || ok {
			return n, "continue-marker", ok, err
		}
		nodes, err := dom.CollectVisible(ctx, scope, ".//button | .//a")
		if err != nil {
			return dom.Node{}, "", false, err
		}
		if n, ok := dom.Last(dom.Filter(nodes, func(n dom.Node) bool { return saveContinueRe.MatchString(n.Snap.Text) })); ok {
			return n, "save-continue", true, nil
		}
	}

	if n, ok, err := dom.LastVisible(ctx, scope, btnSaveXPath); err != nil || ok {
		return n, "btn-save", ok, err
	}
	buttons, err := dom.CollectVisible(ctx, scope, ".//button")
	if err != nil {
		return dom.Node{}, "", false, err
	}
	plainSave := dom.Filter(buttons, func(n dom.Node) bool {
		return saveRe.MatchString(n.Snap.Text) && !dom.ContainsFold(n.Snap.Text, "continue")
	})
	if n, ok := dom.Last(plainSave); ok {
		return n, "save", true, nil
	}

	actions, err := dom.CollectVisible(ctx, scope, actionButtonsXPath)
	if err != nil {
		return dom.Node{}, "", false, err
	}
	for _, text := range genericSaveTexts {
		matched := dom.Filter(actions, func(n dom.Node) bool {
			return dom.ContainsFold(n.Snap.Text, text) || dom.ContainsFold(n.Snap.Value, text)
		})
		if n, ok := dom.Last(matched); ok {
			return n, "text:" + text, true, nil
		}
	}

	for _, xp := range classFallbacks {
		if n, ok, err := dom.LastVisible(ctx, scope, xp); err != nil || ok {
			return n, "class", ok, err
		}
	}
	return dom.Node{}, "", false, nil
}
