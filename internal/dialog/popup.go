// Package dialog tracks the lifecycle of transient overlays (SweetAlert
// popups, toasts, Bootstrap modals) and runs the upload and download
// protocols built on top of them.
package dialog

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"panelqa-runner/internal/dom"
	"panelqa-runner/internal/wait"
)

// Signal is what a visible popup tells the tracker.
type Signal int

const (
	SignalNone Signal = iota
	SignalSuccess
	SignalError
	SignalConfirm
	SignalLoading
)

func (s Signal) String() string {
	switch s {
	case SignalSuccess:
		return "success"
	case SignalError:
		return "error"
	case SignalConfirm:
		return "confirm"
	case SignalLoading:
		return "loading"
	default:
		return "none"
	}
}

// Terminal reports whether the signal ends a wait.
func (s Signal) Terminal() bool { return s == SignalSuccess || s == SignalError }

var (
	successWords = []string{"success", "hoàn thành"}
	// doneWords signal success only once no error word matched.
	doneWords    = []string{"completed"}
	errorWords   = []string{"failed", "error", "invalid", "duplicate", "missing", "required", "not number", "format", "lỗi"}
	confirmWords = []string{"sure", "confirm"}
	loadingWords = []string{"importing", "uploading", "processing", "please wait"}

	errorClasses   = []string{"swal2-icon-error", "toast-error", "alert-danger", "error-message"}
	successClasses = []string{"swal2-icon-success", "toast-success", "alert-success"}
	loadingClasses = []string{"swal2-loading", "spinner", "spinner-border", "loading-mask"}
)

// ClassifyPopup reads a popup snapshot. Error styling is decided first.
// Then the text: explicit success words, error words unless the popup
// asks "are you sure", completion words, confirmation prompts and loading
// state. Success styling decides only when the text is inconclusive.
func ClassifyPopup(s dom.Snapshot) Signal {
	text := strings.ToLower(s.Text)
	if hasAnyClass(s.Class, errorClasses) {
		return SignalError
	}
	switch {
	case containsAny(text, successWords):
		return SignalSuccess
	case containsAny(text, errorWords) && !strings.Contains(text, "sure"):
		return SignalError
	case containsAny(text, doneWords):
		return SignalSuccess
	case containsAny(text, confirmWords):
		return SignalConfirm
	}
	if hasAnyClass(s.Class, loadingClasses) || containsAny(text, loadingWords) {
		return SignalLoading
	}
	if hasAnyClass(s.Class, successClasses) {
		return SignalSuccess
	}
	return SignalNone
}

func hasAnyClass(class string, tokens []string) bool {
	for _, c := range tokens {
		if dom.HasClassToken(class, c) {
			return true
		}
	}
	return false
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// Observation is the most decisive popup currently on screen.
type Observation struct {
	Signal Signal
	Text   string
	Popup  dom.Node
}

var (
	popupXPath = ".//*[" + dom.HasClass("swal2-popup") + " or " + dom.HasClass("toast") +
		" or " + dom.HasClass("toast-error") + " or " + dom.HasClass("toast-success") +
		" or " + dom.HasClass("alert-danger") + " or " + dom.HasClass("alert-success") + "]"
	loadingXPath = ".//*[" + dom.HasClass("swal2-loading") + " or " + dom.HasClass("spinner") +
		" or " + dom.HasClass("spinner-border") + " or " + dom.HasClass("loading-mask") + "]"
	confirmButtonXPath = ".//button[" + dom.HasClass("swal2-confirm") + "]"
	promptButtonXPath  = ".//button | .//a[" + dom.ClassContains("btn") + "]"

	// Tried in order by Cleanup.
	dismissXPaths = []string{
		".//button[" + dom.HasClass("swal2-confirm") + "]",
		".//button[" + dom.HasClass("swal2-close") + "]",
		".//*[" + dom.HasClass("modal") + " and " + dom.HasClass("show") + "]//button[@data-dismiss='modal' or @data-bs-dismiss='modal']",
	}
)

// Timings are the tracker's wait windows.
type Timings struct {
	// UploadWindow bounds the wait for a terminal signal after a file is
	// submitted.
	UploadWindow time.Duration
	// ConfirmWindow bounds the wait for the first reaction (any popup or
	// loading indicator). An attempt without one is retried.
	ConfirmWindow   time.Duration
	Attempts        int
	PollInterval    time.Duration
	DownloadTimeout time.Duration
}

// Tracker observes and dismisses popups.
type Tracker struct {
	clock  wait.Clock
	timing Timings
	log    *zap.Logger
}

// New creates a tracker. Attempts below one are raised to one.
func New(clock wait.Clock, timing Timings, log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	if timing.Attempts < 1 {
		timing.Attempts = 1
	}
	return &Tracker{clock: clock, timing: timing, log: log.Named("dialog")}
}

// Observe classifies every visible popup and returns the most decisive one:
// a terminal signal beats a confirmation prompt, which beats loading. Among
// equals the last rendered wins. A bare loading indicator outside any popup
// counts as loading.
func (t *Tracker) Observe(ctx context.Context, page dom.Page) (Observation, error) {
	popups, err := dom.CollectVisible(ctx, page, popupXPath)
	if err != nil {
		return Observation{}, err
	}
	best := Observation{}
	for _, p := range popups {
		sig := ClassifyPopup(p.Snap)
		if rank(sig) >= rank(best.Signal) && sig != SignalNone {
			best = Observation{Signal: sig, Text: dom.NormalizeText(p.Snap.Text), Popup: p}
		}
	}
	if best.Signal != SignalNone {
		return best, nil
	}
	loading, err := dom.AnyVisible(ctx, page, loadingXPath)
	if err != nil {
		return Observation{}, err
	}
	if loading {
		return Observation{Signal: SignalLoading}, nil
	}
	return best, nil
}

func rank(s Signal) int {
	switch s {
	case SignalSuccess, SignalError:
		return 3
	case SignalConfirm:
		return 2
	case SignalLoading:
		return 1
	default:
		return 0
	}
}

// Confirm answers a confirmation prompt with its confirm button, or the
// first button reading yes, ok, confirm, upload or import.
func (t *Tracker) Confirm(ctx context.Context, obs Observation) (bool, error) {
	if obs.Popup.El == nil {
		return false, nil
	}
	btn, ok, err := dom.FirstVisible(ctx, obs.Popup.El, confirmButtonXPath)
	if err != nil {
		return false, err
	}
	if !ok {
		buttons, err := dom.CollectVisible(ctx, obs.Popup.El, promptButtonXPath)
		if err != nil {
			return false, err
		}
		for _, b := range buttons {
			if dom.ContainsAnyFold(b.Snap.Text, "yes", "ok", "confirm", "upload", "import") {
				btn, ok = b, true
				break
			}
		}
	}
	if !ok {
		return false, nil
	}
	t.log.Info("confirming prompt", zap.String("prompt", dom.FirstLine(obs.Text)))
	return true, btn.El.ClickJS(ctx)
}

// Cleanup dismisses the current popup through its own button and then
// removes residual overlays and backdrop styling.
func (t *Tracker) Cleanup(ctx context.Context, page dom.Page) error {
	for _, xp := range dismissXPaths {
		btn, ok, err := dom.FirstVisible(ctx, page, xp)
		if err != nil {
			return err
		}
		if ok {
			if err := btn.El.ClickJS(ctx); err != nil {
				t.log.Debug("dismiss click failed", zap.Error(err))
			}
			break
		}
	}
	return page.Run(ctx, dom.ScriptRemoveOverlays)
}
