// Package engine interprets action plans against the active browser page.
// Actions run strictly in order; each one's outcome is appended to the
// execution log, which is the only thing returned to callers.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"panelqa-runner/internal/config"
	"panelqa-runner/internal/csvdoc"
	"panelqa-runner/internal/dialog"
	"panelqa-runner/internal/dom"
	"panelqa-runner/internal/failure"
	"panelqa-runner/internal/form"
	"panelqa-runner/internal/fuzz"
	"panelqa-runner/internal/memory"
	"panelqa-runner/internal/navigator"
	"panelqa-runner/internal/plan"
	"panelqa-runner/internal/resolver"
	"panelqa-runner/internal/table"
	"panelqa-runner/internal/wait"
)

// PageSource hands out the page a plan runs against. It is called once per
// execution.
type PageSource interface {
	Acquire(ctx context.Context) (dom.Page, error)
}

// PageFunc adapts a function to PageSource.
type PageFunc func(ctx context.Context) (dom.Page, error)

func (f PageFunc) Acquire(ctx context.Context) (dom.Page, error) { return f(ctx) }

// Run identifies one plan execution.
type Run struct {
	ID      string
	Started time.Time
	Actions int
}

// Observer receives a run's progress. The journal and the trace recorder
// implement it.
type Observer interface {
	RunStarted(run Run)
	StepRecorded(run Run, index int, action plan.Action, entry plan.LogEntry)
	RunFinished(run Run, logs []plan.LogEntry)
}

// Report is the outcome of one execution.
type Report struct {
	RunID string          `json:"run_id"`
	Logs  []plan.LogEntry `json:"logs"`
	Took  time.Duration   `json:"took"`
}

// Deps are the engine's collaborators.
type Deps struct {
	Pages     PageSource
	Store     *csvdoc.Store
	Clock     wait.Clock
	Rand      *rand.Rand
	Observers []Observer
}

// Engine is the action-plan interpreter.
type Engine struct {
	pages   PageSource
	store   *csvdoc.Store
	nav     *navigator.Navigator
	forms   *form.Filler
	rows    *table.Operator
	dialogs *dialog.Tracker
	cycles  *fuzz.Runner

	heur    config.HeuristicsConfig
	clock   wait.Clock
	timing  config.Timings
	idle    time.Duration
	pace    *rate.Limiter
	running *semaphore.Weighted
	obs     []Observer
	log     *zap.Logger
}

// New wires the components from cfg.
func New(cfg config.Config, deps Deps, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = wait.RealClock{}
	}
	timing := cfg.Timing.Resolve()
	idle := cfg.Browser.IdleTimeoutDuration()
	heur := cfg.Heuristics

	res := resolver.New(resolver.Options{
		Synonyms:     heur.Synonyms,
		IDAliases:    heur.IDAliases,
		QuantityKeys: heur.QuantityKeys,
	}, log)
	tracker := dialog.New(clock, dialog.Timings{
		UploadWindow:    timing.UploadWindow,
		ConfirmWindow:   timing.UploadConfirmWindow,
		Attempts:        timing.UploadAttempts,
		PollInterval:    timing.PollInterval,
		DownloadTimeout: timing.DownloadTimeout,
	}, log)
	seed := cfg.Fuzz.Seed
	if seed == 0 {
		seed = clock.Now().UnixNano()
	}

	limit := rate.Inf
	if timing.StepDelay > 0 {
		limit = rate.Every(timing.StepDelay)
	}

	return &Engine{
		pages: deps.Pages,
		store: deps.Store,
		nav: navigator.New(res, clock, navigator.Timings{
			MenuReveal:     timing.MenuReveal,
			SpinnerAppear:  timing.SpinnerAppear,
			SpinnerTimeout: timing.SpinnerTimeout,
			ContentWait:    timing.TableWait,
			PollInterval:   timing.PollInterval,
			Idle:           idle,
		}, log),
		forms: form.New(res, clock, form.Timings{
			FieldRetry:    timing.FieldRetry,
			FieldAttempts: timing.FieldAttempts,
			TabSettle:     timing.TabSettle,
			PollInterval:  timing.PollInterval,
			SaveToast:     timing.SaveToast,
			SaveBackdrop:  timing.SaveBackdrop,
		}, heur.SidebarKeywords, log),
		rows: table.New(clock, table.Timings{
			TableWait:    timing.TableWait,
			PollInterval: timing.PollInterval,
			FilterSettle: timing.FilterSettle,
		}, deps.Rand, log),
		dialogs: tracker,
		cycles:  fuzz.NewRunner(deps.Store, tracker, fuzz.NewGenerator(cfg.Fuzz.RandomPayloads, seed), heur, clock, timing.PollInterval, log),
		heur:    heur,
		clock:   clock,
		timing:  timing,
		idle:    idle,
		pace:    rate.NewLimiter(limit, 1),
		running: semaphore.NewWeighted(1),
		obs:     deps.Observers,
		log:     log.Named("engine"),
	}
}

// ExecuteText parses a textual plan and executes it. A document that does
// not parse yields a single FAIL entry and never touches the browser.
func (e *Engine) ExecuteText(ctx context.Context, text string) (Report, error) {
	p, err := plan.ParseText(text)
	if err != nil {
		e.log.Warn("rejected plan", zap.Error(err))
		return Report{Logs: []plan.LogEntry{plan.Fail("System", "Plan parse error: "+parseDetail(err))}}, nil
	}
	return e.Execute(ctx, p)
}

func parseDetail(err error) string {
	if inner := errors.Unwrap(err); inner != nil {
		return inner.Error()
	}
	return err.Error()
}

// Execute runs p. Only one plan runs at a time; a second caller waits for
// the first to finish. The returned error is set only when ctx ends before
// the plan could start.
func (e *Engine) Execute(ctx context.Context, p plan.Plan) (Report, error) {
	if err := e.running.Acquire(ctx, 1); err != nil {
		return Report{}, err
	}
	defer e.running.Release(1)

	run := Run{ID: uuid.NewString(), Started: e.clock.Now(), Actions: len(p)}
	log := e.log.With(zap.String("run_id", run.ID))
	log.Info("plan started", zap.Int("actions", len(p)))
	for _, o := range e.obs {
		o.RunStarted(run)
	}

	logs := e.execute(ctx, run, p, log)

	for _, o := range e.obs {
		o.RunFinished(run, logs)
	}
	took := e.clock.Now().Sub(run.Started)
	log.Info("plan finished", zap.Int("entries", len(logs)), zap.Duration("took", took))
	return Report{RunID: run.ID, Logs: logs, Took: took}, nil
}

func (e *Engine) execute(ctx context.Context, run Run, p plan.Plan, log *zap.Logger) []plan.LogEntry {
	var logs []plan.LogEntry
	record := func(i int, a plan.Action, entries ...plan.LogEntry) {
		for _, entry := range entries {
			logs = append(logs, entry)
			for _, o := range e.obs {
				o.StepRecorded(run, i, a, entry)
			}
		}
	}

	if e.pages == nil {
		record(-1, plan.Action{}, plan.Crash("System", "no browser session configured"))
		return logs
	}
	page, err := e.pages.Acquire(ctx)
	if err != nil {
		log.Error("browser session unavailable", zap.Error(err))
		record(-1, plan.Action{}, plan.Crash("System", failure.DetailOf(err)))
		return logs
	}
	defer e.refresh(page, log)

	mem := memory.New()
	for i, a := range p {
		if err := e.wait(ctx); err != nil {
			record(i, a, plan.Crash("System", "Session lost: "+err.Error()))
			return logs
		}
		log.Info("executing", zap.Int("index", i), zap.String("action", string(a.Kind)),
			zap.String("target", a.Target), zap.String("value", a.Value))

		entries, err := e.dispatchSafe(ctx, page, mem, a)
		record(i, a, entries...)
		if err == nil {
			continue
		}

		entry, stop := classify(stepName(a), err)
		if entry.Status == plan.StatusCrash {
			log.Error("action failed", zap.Int("index", i), zap.Error(err))
		} else {
			log.Warn("action failed", zap.Int("index", i), zap.Error(err))
		}
		record(i, a, entry)
		if stop {
			return logs
		}
		if a.Kind == plan.KindNavigate && failure.KindOf(err) == failure.KindNotFound {
			if rest := len(p) - i - 1; rest > 0 {
				record(i, a, plan.Skipped("Plan", fmt.Sprintf("%d remaining actions skipped: page context unknown", rest)))
			}
			return logs
		}
	}
	return logs
}

// wait paces consecutive actions on the engine clock.
func (e *Engine) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := e.clock.Now()
	r := e.pace.ReserveN(now, 1)
	if !r.OK() {
		return nil
	}
	return e.clock.Sleep(ctx, r.DelayFrom(now))
}

// dispatchSafe runs one action, turning a panic into a CRASH entry so the
// remaining actions still run.
func (e *Engine) dispatchSafe(ctx context.Context, page dom.Page, mem *memory.Memory, a plan.Action) (entries []plan.LogEntry, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("action panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			entries = append(entries, plan.Crash(stepName(a), fmt.Sprintf("panic: %v", r)))
			err = nil
		}
	}()
	return e.dispatch(ctx, page, mem, a)
}

// classify maps an action error onto its log entry and reports whether the
// run must stop.
func classify(step string, err error) (plan.LogEntry, bool) {
	detail := failure.DetailOf(err)
	switch failure.KindOf(err) {
	case failure.KindSession:
		return plan.Crash("System", "Session lost: "+detail), true
	case failure.KindMalformedPlan:
		return plan.Fail("System", detail), true
	case failure.KindNotFound, failure.KindValidationRejected:
		return plan.Fail(step, detail), false
	case failure.KindTimeout:
		return plan.Fail(step, "Timeout: "+detail), false
	default:
		return plan.Crash(step, err.Error()), false
	}
}

// refresh reloads the page after the last action so the next run starts
// clean. Failures are only logged.
func (e *Engine) refresh(page dom.Page, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), e.idle+e.timing.SpinnerAppear)
	defer cancel()
	if err := page.Reload(ctx); err != nil {
		log.Warn("final reload failed", zap.Error(err))
		return
	}
	if err := page.WaitIdle(ctx, e.idle); err != nil {
		log.Warn("page did not settle after reload", zap.Error(err))
	}
}
