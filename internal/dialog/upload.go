package dialog

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"

	"panelqa-runner/internal/dom"
	"panelqa-runner/internal/failure"
)

const maxDiagnostic = 200

var (
	triggerXPath     = ".//button | .//a"
	importClassXPath = ".//*[" + dom.HasClass("btn-import") + " or @title='Import']"
	importIconXPath  = ".//button[.//i[" + dom.ClassContains("import") + " or " + dom.ClassContains("upload") + "]]"
	fileInputXPath   = ".//input[@type='file']"
	openModalButtons = ".//*[" + dom.HasClass("modal") + " and " + dom.HasClass("show") + "]//button"

	modalConfirmRe = regexp.MustCompile(`(?i)upload|confirm|yes|import`)
)

// Outcome is the result of an upload.
type Outcome struct {
	OK      bool
	Signal  Signal
	Message string
	// Text is the popup text that ended the wait, if any.
	Text     string
	Attempts int
}

// Upload submits path through the import trigger named by trigger (empty
// means any import control) and waits for the panel's verdict. A missing
// reaction is retried up to the configured attempts; a validation error is
// final since the same file would fail again.
func (t *Tracker) Upload(ctx context.Context, page dom.Page, path, trigger string) (Outcome, error) {
	var out Outcome
	for out.Attempts < t.timing.Attempts {
		out.Attempts++
		if err := t.Cleanup(ctx, page); err != nil {
			return out, err
		}
		res, err := t.submit(ctx, page, path, trigger, t.timing.ConfirmWindow)
		if err != nil {
			if failure.KindOf(err) == failure.KindNotFound || ctx.Err() != nil {
				return out, err
			}
			t.log.Warn("upload attempt failed", zap.Int("attempt", out.Attempts), zap.Error(err))
			if err := t.clock.Sleep(ctx, 2*t.timing.PollInterval); err != nil {
				return out, err
			}
			continue
		}
		if res.settled() {
			out.fill(res)
			return out, t.Cleanup(ctx, page)
		}
		t.log.Warn("no reaction to upload, retrying", zap.Int("attempt", out.Attempts), zap.String("state", res.state.String()))
	}
	out.Message = "Max retries exceeded"
	return out, nil
}

// UploadOnce is the fast variant used by fuzz campaigns: one attempt, no
// retry, and a loading indicator that vanishes without a verdict is
// reported instead of waited out.
func (t *Tracker) UploadOnce(ctx context.Context, page dom.Page, path, trigger string) (Outcome, error) {
	out := Outcome{Attempts: 1}
	res, err := t.submit(ctx, page, path, trigger, t.timing.UploadWindow)
	if err != nil {
		if ctx.Err() != nil {
			return out, err
		}
		out.Message = failure.DetailOf(err)
		return out, nil
	}
	switch {
	case res.settled():
		out.fill(res)
	case res.state == stateVanished:
		out.Message = "Process finished but No Popup found"
	default:
		out.Message = fmt.Sprintf("Timeout (%s)", t.timing.UploadWindow)
	}
	return out, t.Cleanup(ctx, page)
}

func (o *Outcome) fill(res awaitResult) {
	o.Signal = res.obs.Signal
	o.Text = res.obs.Text
	o.OK = res.obs.Signal == SignalSuccess
	if o.OK {
		o.Message = "Success"
		return
	}
	o.Message = "Error: " + truncate(res.obs.Text, maxDiagnostic)
}

// submit opens the file chooser, answers an intermediate modal and waits
// for a verdict. reactWindow bounds the wait for the first sign of life.
func (t *Tracker) submit(ctx context.Context, page dom.Page, path, trigger string, reactWindow time.Duration) (awaitResult, error) {
	el, err := t.FindUploadTrigger(ctx, page, trigger)
	if err != nil {
		return awaitResult{}, err
	}
	t.log.Info("submitting file", zap.String("file", path))
	if err := page.ChooseFile(ctx, el, path); err != nil {
		return awaitResult{}, fmt.Errorf("choose file: %w", err)
	}
	if err := t.clock.Sleep(ctx, t.timing.PollInterval); err != nil {
		return awaitResult{}, err
	}
	if err := t.confirmModal(ctx, page); err != nil {
		return awaitResult{}, err
	}
	return t.await(ctx, page, reactWindow)
}

// confirmModal clicks the first upload/confirm/yes/import button of an
// open Bootstrap modal.
func (t *Tracker) confirmModal(ctx context.Context, page dom.Page) error {
	buttons, err := dom.CollectVisible(ctx, page, openModalButtons)
	if err != nil {
		return err
	}
	for _, b := range buttons {
		if modalConfirmRe.MatchString(b.Snap.Text) {
			t.log.Debug("confirming upload modal", zap.String("button", dom.FirstLine(b.Snap.Text)))
			return b.El.ClickJS(ctx)
		}
	}
	return nil
}

type awaitState int

const (
	stateExpired awaitState = iota
	stateSettled
	stateVanished
)

func (s awaitState) String() string {
	switch s {
	case stateSettled:
		return "settled"
	case stateVanished:
		return "vanished"
	default:
		return "expired"
	}
}

type awaitResult struct {
	state awaitState
	obs   Observation
}

func (r awaitResult) settled() bool { return r.state == stateSettled }

// await polls for a terminal signal. Confirmation prompts are answered and
// polling continues. Until anything reacts the wait is bounded by
// reactWindow; afterwards by the upload window. A loading indicator that
// disappears without a verdict gets one more look before the wait gives up.
func (t *Tracker) await(ctx context.Context, page dom.Page, reactWindow time.Duration) (awaitResult, error) {
	start := t.clock.Now()
	window := reactWindow
	seenLoading := false
	for {
		obs, err := t.Observe(ctx, page)
		if err != nil {
			return awaitResult{}, err
		}
		switch obs.Signal {
		case SignalSuccess, SignalError:
			t.log.Info("upload verdict", zap.String("signal", obs.Signal.String()), zap.String("text", truncate(obs.Text, 80)))
			return awaitResult{state: stateSettled, obs: obs}, nil
		case SignalConfirm:
			window = t.timing.UploadWindow
			if _, err := t.Confirm(ctx, obs); err != nil {
				return awaitResult{}, err
			}
		case SignalLoading:
			window = t.timing.UploadWindow
			if !seenLoading {
				t.log.Info("panel is importing")
				seenLoading = true
			}
		default:
			if seenLoading {
				if err := t.clock.Sleep(ctx, 2*t.timing.PollInterval); err != nil {
					return awaitResult{}, err
				}
				obs, err := t.Observe(ctx, page)
				if err != nil {
					return awaitResult{}, err
				}
				if obs.Signal.Terminal() {
					return awaitResult{state: stateSettled, obs: obs}, nil
				}
				return awaitResult{state: stateVanished}, nil
			}
		}
		if t.clock.Now().Sub(start) >= window {
			return awaitResult{state: stateExpired}, nil
		}
		if err := t.clock.Sleep(ctx, t.timing.PollInterval); err != nil {
			return awaitResult{}, err
		}
	}
}

// FindUploadTrigger locates the control that opens the file chooser: a
// button or link reading name, an "Import CSV" button, an import-classed
// control, an Import/Upload button that is not an export, an
// import-iconed button, and finally a raw file input.
func (t *Tracker) FindUploadTrigger(ctx context.Context, page dom.Page, name string) (dom.Element, error) {
	candidates, err := dom.CollectVisible(ctx, page, triggerXPath)
	if err != nil {
		return nil, err
	}
	for _, label := range []string{name, "Import CSV"} {
		if label == "" {
			continue
		}
		for _, c := range candidates {
			if dom.ContainsFold(c.Snap.Text, label) {
				return c.El, nil
			}
		}
	}
	if n, ok, err := dom.FirstVisible(ctx, page, importClassXPath); err != nil || ok {
		return n.El, err
	}
	for _, c := range candidates {
		if c.Snap.Tag == "button" && dom.ContainsAnyFold(c.Snap.Text, "import", "upload") && !dom.ContainsFold(c.Snap.Text, "export") {
			return c.El, nil
		}
	}
	if n, ok, err := dom.FirstVisible(ctx, page, importIconXPath); err != nil || ok {
		return n.El, err
	}
	// File inputs are usually styled away, so visibility is not required.
	inputs, err := page.Find(ctx, fileInputXPath)
	if err != nil {
		return nil, err
	}
	if len(inputs) > 0 {
		return inputs[0], nil
	}
	return nil, failure.NotFound("dialog.upload", "Button not found")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
