package fuzz

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"panelqa-runner/internal/config"
	"panelqa-runner/internal/csvdoc"
	"panelqa-runner/internal/dialog"
	"panelqa-runner/internal/dom"
	"panelqa-runner/internal/failure"
	"panelqa-runner/internal/memory"
	"panelqa-runner/internal/plan"
	"panelqa-runner/internal/wait"
)

// Prefixes of the files the cycles write into the work dir.
const (
	FuzzedPrefix   = "fuzzed_"
	ValidPrefix    = "valid_"
	CampaignPrefix = "FUZZ_"
)

// CampaignTrigger is the import control used for multi-section files.
const CampaignTrigger = "Import RBE CSV"

const sectionMarker = "[" + csvdoc.SectionConfig + "]"

// Uploader is the part of the dialog tracker the cycles drive.
type Uploader interface {
	Upload(ctx context.Context, page dom.Page, path, trigger string) (dialog.Outcome, error)
	UploadOnce(ctx context.Context, page dom.Page, path, trigger string) (dialog.Outcome, error)
	Cleanup(ctx context.Context, page dom.Page) error
}

// Runner executes the negative/positive upload cycle and the multi-section
// campaign against the files of a store.
type Runner struct {
	store  *csvdoc.Store
	up     Uploader
	gen    *Generator
	heur   config.HeuristicsConfig
	clock  wait.Clock
	settle time.Duration
	log    *zap.Logger
}

// NewRunner wires a runner. settle is the pause between campaign uploads.
func NewRunner(store *csvdoc.Store, up Uploader, gen *Generator, heur config.HeuristicsConfig, clock wait.Clock, settle time.Duration, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	if clock == nil {
		clock = wait.RealClock{}
	}
	return &Runner{store: store, up: up, gen: gen, heur: heur, clock: clock, settle: settle, log: log.Named("fuzz")}
}

// CleanFileName strips button captions an instruction may have carried
// along with the file name.
func CleanFileName(target string) string {
	name := strings.NewReplacer("Import CSV", "", "Export CSV", "").Replace(target)
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return filepath.Base(name)
}

// Cycle runs the test cycle on the named CSV. Multi-section event files go
// to the campaign instead. The returned error is set only for failures that
// end the run; everything else is reported through the log entries.
func (r *Runner) Cycle(ctx context.Context, page dom.Page, mem *memory.Memory, target string) ([]plan.LogEntry, error) {
	name := CleanFileName(target)
	if name != "" && r.sectioned(name) {
		return r.Campaign(ctx, page, name)
	}

	var logs []plan.LogEntry
	if name == "" || !r.store.Exists(name) {
		newest, ok, err := r.store.Newest(".csv", FuzzedPrefix, ValidPrefix, CampaignPrefix)
		if err != nil || !ok {
			return append(logs, plan.Fail("Smart Cycle", "File not found: "+name)), nil
		}
		logs = append(logs, plan.Warning("Smart Cycle", fmt.Sprintf("%s not found, using newest file %s", name, newest)))
		name = newest
	}
	doc, err := r.store.Load(name)
	if err != nil {
		return append(logs, plan.Crash("Smart Cycle", err.Error())), nil
	}

	phase1, err := r.negative(ctx, page, mem, name, doc)
	logs = append(logs, phase1...)
	if err != nil {
		return logs, err
	}
	phase2, err := r.positive(ctx, page, name, doc)
	return append(logs, phase2...), err
}

// negative uploads every invalid variant in one file and scores each case
// against the popup text the panel showed.
func (r *Runner) negative(ctx context.Context, page dom.Page, mem *memory.Memory, name string, doc *csvdoc.Document) ([]plan.LogEntry, error) {
	cases := r.gen.Generate(doc)
	if len(cases) == 0 {
		return []plan.LogEntry{plan.Warning("Fuzzing", "No fuzzable columns in "+name)}, nil
	}
	fuzzName := FuzzedPrefix + name
	if err := r.store.Save(fuzzName, FuzzDocument(doc, cases)); err != nil {
		return []plan.LogEntry{plan.Crash("Fuzzing", err.Error())}, nil
	}
	if mem != nil {
		mem.Set(memory.LastFuzzedFile, fuzzName)
	}
	r.log.Info("uploading fuzz file", zap.String("file", fuzzName), zap.Int("cases", len(cases)))

	out, err := r.upload(ctx, page, fuzzName)
	if err != nil {
		if fatal(ctx, err) {
			return nil, err
		}
		if out.Message == "" {
			return []plan.LogEntry{plan.Fail("Fuzzing", failure.DetailOf(err))}, nil
		}
		r.log.Warn("popup cleanup failed", zap.Error(err))
	}
	logs := []plan.LogEntry{plan.Executed("Fuzzing", fmt.Sprintf("Uploaded %d invalid variants: %s", len(cases), out.Message))}
	popup := strings.ToLower(out.Text)
	if strings.TrimSpace(popup) == "" {
		popup = "no popup"
	}
	return append(logs, Score(cases, popup)...), nil
}

// positive uploads a regenerated clean row and records whether the panel
// accepted it.
func (r *Runner) positive(ctx context.Context, page dom.Page, name string, doc *csvdoc.Document) ([]plan.LogEntry, error) {
	validName := ValidPrefix + name
	if err := r.store.Save(validName, Regenerate(doc, r.heur, r.clock.Now())); err != nil {
		return []plan.LogEntry{plan.Crash("Final Sanity Check", err.Error())}, nil
	}
	out, err := r.upload(ctx, page, validName)
	if err != nil {
		if fatal(ctx, err) {
			return nil, err
		}
		if out.Message == "" {
			return []plan.LogEntry{plan.Fail("Final Sanity Check", failure.DetailOf(err))}, nil
		}
		r.log.Warn("popup cleanup failed", zap.Error(err))
	}
	if out.OK {
		return []plan.LogEntry{plan.Pass("Final Sanity Check", "Successfully imported valid user data")}, nil
	}
	return []plan.LogEntry{plan.Fail("Final Sanity Check", out.Message)}, nil
}

func (r *Runner) upload(ctx context.Context, page dom.Page, name string) (dialog.Outcome, error) {
	if err := r.up.Cleanup(ctx, page); err != nil {
		return dialog.Outcome{}, err
	}
	return r.up.Upload(ctx, page, r.store.Path(name), "")
}

// Score matches each case's expected keyword against the lowercased popup
// text.
func Score(cases []Case, popup string) []plan.LogEntry {
	popup = strings.ToLower(popup)
	out := make([]plan.LogEntry, 0, len(cases))
	for i, c := range cases {
		step := fmt.Sprintf("Test Case #%d: %s", i+1, c.Name)
		kw := strings.ToLower(c.Expected)
		if strings.Contains(popup, kw) {
			out = append(out, plan.Pass(step, fmt.Sprintf("Caught: '%s'", kw)))
		} else {
			out = append(out, plan.Fail(step, fmt.Sprintf("Missed: '%s'", kw)))
		}
	}
	return out
}

func (r *Runner) sectioned(name string) bool {
	if strings.Contains(strings.ToLower(name), "rbe") {
		return true
	}
	data, err := r.store.ReadFile(name)
	if err != nil {
		return false
	}
	if len(data) > 100 {
		data = data[:100]
	}
	return bytes.Contains(data, []byte(sectionMarker))
}

// fatal reports errors that end the whole run rather than one step.
func fatal(ctx context.Context, err error) bool {
	return ctx.Err() != nil || failure.KindOf(err) == failure.KindSession
}
