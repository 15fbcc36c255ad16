package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"panelqa-runner/internal/csvdoc"
	"panelqa-runner/internal/dialog"
	"panelqa-runner/internal/dom"
	"panelqa-runner/internal/failure"
	"panelqa-runner/internal/form"
	"panelqa-runner/internal/fuzz"
	"panelqa-runner/internal/memory"
	"panelqa-runner/internal/plan"
	"panelqa-runner/internal/table"
)

var stepNames = map[plan.Kind]string{
	plan.KindNavigate:          "Navigate",
	plan.KindCheckbox:          "Checkbox",
	plan.KindClick:             "Click",
	plan.KindWait:              "Wait",
	plan.KindEditRow:           "Edit Row",
	plan.KindCloneRow:          "Clone Row",
	plan.KindUpdateForm:        "Form",
	plan.KindSaveForm:          "Save",
	plan.KindDownload:          "Download",
	plan.KindUpload:            "Upload",
	plan.KindManipulateCSV:     "CSV",
	plan.KindScanTabs:          "Scan Tabs",
	plan.KindProcessDeployment: "Process Deployment",
	plan.KindTestCycle:         "Smart Cycle",
	plan.KindSectionFuzz:       "RBE Fuzz",
}

func stepName(a plan.Action) string {
	if s, ok := stepNames[a.Kind]; ok {
		return s
	}
	return string(a.Kind)
}

// placeholderFile is the name planners use when they mean "the file the
// last fuzz cycle wrote".
const placeholderFile = "file.csv"

func (e *Engine) dispatch(ctx context.Context, page dom.Page, mem *memory.Memory, a plan.Action) ([]plan.LogEntry, error) {
	step := stepName(a)
	switch a.Kind {
	case plan.KindNavigate:
		return e.navigate(ctx, page, a)
	case plan.KindCheckbox:
		return e.checkbox(ctx, page, mem, a)
	case plan.KindClick:
		via, err := e.nav.Click(ctx, page, mem.Resolve(a.Target))
		if err != nil {
			return nil, err
		}
		return one(plan.Pass(step, fmt.Sprintf("%s (via %s)", a.Target, via)))
	case plan.KindWait:
		if err := e.nav.WaitForLoading(ctx, page); err != nil {
			return nil, err
		}
		if err := page.WaitIdle(ctx, e.idle); err != nil {
			return nil, err
		}
		return one(plan.Pass(step, "Waited for Spinner"))
	case plan.KindEditRow:
		return e.rowAction(ctx, page, mem, a, table.Edit)
	case plan.KindCloneRow:
		return e.rowAction(ctx, page, mem, a, table.Clone)
	case plan.KindUpdateForm:
		return e.updateForm(ctx, page, formFields(a))
	case plan.KindSaveForm:
		out, err := e.forms.Save(ctx, page, form.ParseSaveMode(a.Mode))
		if err != nil {
			return nil, err
		}
		detail := fmt.Sprintf("Saved via %q", out.Button)
		if out.Toast {
			detail += ", success toast shown"
		}
		if !out.Settled {
			return one(plan.Warning(step, detail+", modal still open"))
		}
		return one(plan.Pass(step, detail))
	case plan.KindDownload:
		return e.download(ctx, page, a)
	case plan.KindUpload:
		return e.upload(ctx, page, mem, a)
	case plan.KindManipulateCSV:
		return e.manipulate(a)
	case plan.KindScanTabs:
		return e.forms.ScanTabs(ctx, page, a.Data)
	case plan.KindProcessDeployment:
		return e.nav.ProcessDeployment(ctx, page, a.Options)
	case plan.KindTestCycle:
		return e.cycles.Cycle(ctx, page, mem, firstNonEmpty(a.Value, a.Target))
	case plan.KindSectionFuzz:
		return e.cycles.Campaign(ctx, page, fuzz.CleanFileName(firstNonEmpty(a.Value, a.Target)))
	default:
		e.log.Warn("unknown action", zap.String("action", string(a.Kind)))
		return one(plan.Skipped(step, "Unknown action: "+string(a.Kind)))
	}
}

func one(e plan.LogEntry) ([]plan.LogEntry, error) { return []plan.LogEntry{e}, nil }

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// navigate walks a menu path, or opens an address directly.
func (e *Engine) navigate(ctx context.Context, page dom.Page, a plan.Action) ([]plan.LogEntry, error) {
	path := a.Path
	if len(path) == 0 {
		path = plan.SplitPath(a.Target)
	}
	if len(path) == 1 && plan.LooksLikeURL(path[0]) {
		if err := e.nav.Open(ctx, page, path[0]); err != nil {
			return nil, err
		}
		return one(plan.Pass("Navigate", path[0]))
	}
	if err := e.nav.Walk(ctx, page, path); err != nil {
		return nil, err
	}
	return one(plan.Pass("Navigate", strings.Join(path, " > ")))
}

// checkbox is either a form toggle or a table selection. A toggle word as
// value means the former; anything else selects rows, after opening the
// sidebar section the target names, if any.
func (e *Engine) checkbox(ctx context.Context, page dom.Page, mem *memory.Memory, a plan.Action) ([]plan.LogEntry, error) {
	if dom.IsBooleanWord(a.Value) {
		res, err := e.forms.Update(ctx, page, plan.Fields{{Name: a.Target, Value: a.Value}})
		if err != nil {
			return nil, err
		}
		if !res.Complete() {
			return nil, failure.NotFound("engine.checkbox", "toggle %q not found", a.Target)
		}
		return one(plan.Pass("Form Toggle", fmt.Sprintf("%s=%s", a.Target, a.Value)))
	}

	var logs []plan.LogEntry
	target := a.Target
	if target != "" {
		inSidebar, err := e.nav.InSidebar(ctx, page, target)
		if err != nil {
			return nil, err
		}
		if inSidebar {
			if _, err := e.nav.Click(ctx, page, target); err != nil {
				return nil, err
			}
			logs = append(logs, plan.Pass("Sidebar Click", "Redirected from Checkbox: "+target))
			if strings.TrimSpace(a.Value) == "" {
				return logs, nil
			}
			target = ""
		}
	}

	sel, err := e.rows.Select(ctx, page, mem, table.ParseSelector(a.Value, target))
	if err != nil {
		return logs, err
	}
	if sel.Partial() {
		return append(logs, plan.Warning("Checkbox", sel.String())), nil
	}
	return append(logs, plan.Pass("Checkbox", sel.String())), nil
}

func (e *Engine) rowAction(ctx context.Context, page dom.Page, mem *memory.Memory, a plan.Action, action table.RowAction) ([]plan.LogEntry, error) {
	via, err := e.rows.Activate(ctx, page, mem, a.Target, action)
	if err != nil {
		return nil, err
	}
	target := mem.Resolve(a.Target)
	if target == "" {
		target = "first row"
	}
	return one(plan.Pass(stepName(a), fmt.Sprintf("%s (%s)", target, via)))
}

// formFields reads an update's fields: the data map, or target=value.
func formFields(a plan.Action) plan.Fields {
	if len(a.Data) > 0 {
		return a.Data
	}
	if a.Target != "" {
		return plan.Fields{{Name: a.Target, Value: a.Value}}
	}
	return nil
}

func (e *Engine) updateForm(ctx context.Context, page dom.Page, fields plan.Fields) ([]plan.LogEntry, error) {
	if len(fields) == 0 {
		return one(plan.Warning("Form", "No fields to update"))
	}
	var logs []plan.LogEntry
	acquired, err := e.nav.AcquireLock(ctx, page)
	if err != nil {
		return nil, err
	}
	if acquired {
		logs = append(logs, plan.Executed("Lock", "Acquired edit lock"))
	}
	res, err := e.forms.Update(ctx, page, fields)
	if err != nil {
		return logs, err
	}
	switch {
	case res.Complete():
		logs = append(logs, plan.Pass("Form", res.String()))
	case res.Count() > 0:
		logs = append(logs, plan.Warning("Form", res.String()))
	default:
		logs = append(logs, plan.Fail("Form", res.String()))
	}
	return logs, nil
}

func (e *Engine) download(ctx context.Context, page dom.Page, a plan.Action) ([]plan.LogEntry, error) {
	name := dialog.DownloadName(a.Target, a.Value)
	path, err := e.dialogs.Download(ctx, page, a.Target, e.store.Dir(), name)
	if err != nil {
		return nil, err
	}
	e.log.Info("downloaded", zap.String("path", path))
	return one(plan.Pass("Download", name))
}

// upload submits a work-dir file. An empty name or the placeholder name
// means the file the last fuzz cycle wrote.
func (e *Engine) upload(ctx context.Context, page dom.Page, mem *memory.Memory, a plan.Action) ([]plan.LogEntry, error) {
	name := strings.TrimSpace(a.Value)
	if name == "" || strings.EqualFold(name, placeholderFile) {
		if last, ok := mem.Get(memory.LastFuzzedFile); ok {
			name = last
		}
	}
	if name == "" || !e.store.Exists(name) {
		return one(plan.Fail("Upload", "File not found: "+name))
	}

	if err := e.dialogs.Cleanup(ctx, page); err != nil {
		return nil, err
	}
	out, err := e.dialogs.Upload(ctx, page, e.store.Path(name), a.Target)
	if err != nil {
		if failure.KindOf(err) == failure.KindNotFound || out.Message == "" {
			return nil, err
		}
		e.log.Warn("popup cleanup failed", zap.Error(err))
	}
	if out.OK {
		return one(plan.Pass("Upload", "Upload successfully"))
	}
	return one(plan.Fail("Upload", "Upload failed: "+out.Message))
}

// manipulate applies a CSV instruction to a work-dir file. Grammar errors
// and unknown columns are FAIL entries; nothing is written in that case.
func (e *Engine) manipulate(a plan.Action) ([]plan.LogEntry, error) {
	op, err := csvdoc.ParseOperation(a.Operation)
	if err != nil {
		return one(plan.Fail("CSV", err.Error()))
	}
	instr := a.Instruction
	if instr == "" && len(a.Data) > 0 {
		instr = fieldsInstruction(a.Data)
	}
	res, err := e.store.Manipulate(fuzz.CleanFileName(a.Target), op, instr)
	if err != nil {
		switch {
		case errors.Is(err, csvdoc.ErrSyntax), errors.Is(err, csvdoc.ErrUnknownColumn):
			return one(plan.Fail("CSV", err.Error()))
		default:
			return one(plan.Fail("CSV", fmt.Sprintf("%s %s: %v", op, a.Target, err)))
		}
	}
	return one(plan.Pass("CSV", "Success: "+res.Message))
}

// fieldsInstruction turns a data object into the textual grammar:
// {"ID": "A"} reads as "ID=A", two entries as an edit "ID=A|Cost=9".
func fieldsInstruction(f plan.Fields) string {
	parts := make([]string, 0, len(f))
	for _, field := range f {
		parts = append(parts, field.Name+"="+field.Value)
	}
	return strings.Join(parts, "|")
}
