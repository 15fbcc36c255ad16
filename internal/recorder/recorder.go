// Package recorder writes a JSONL trace per plan execution so a failed run
// can be replayed step by step after the fact.
package recorder

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"panelqa-runner/internal/engine"
	"panelqa-runner/internal/plan"
)

const (
	MaxRotatedFiles = 20
	TraceDir        = "traces"
)

var api = jsoniter.ConfigCompatibleWithStandardLibrary

// Event is one line of a trace.
type Event struct {
	Timestamp time.Time   `json:"ts"`
	Type      string      `json:"type"`
	RunID     string      `json:"run_id"`
	Index     *int        `json:"index,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

type stepData struct {
	Action  plan.Action   `json:"action"`
	Outcome plan.LogEntry `json:"outcome"`
}

type trace struct {
	file   afero.File
	stream *jsoniter.Stream
}

// Recorder keeps one open trace per active run and prunes old traces so
// only the newest MaxRotatedFiles remain.
type Recorder struct {
	fs   afero.Fs
	dir  string
	keep int
	log  *zap.Logger
	now  func() time.Time

	mu     sync.Mutex
	traces map[string]*trace
}

var _ engine.Observer = (*Recorder)(nil)

// NewRecorder creates dir on fs if needed.
func NewRecorder(fs afero.Fs, dir string, log *zap.Logger) (*Recorder, error) {
	if dir == "" {
		dir = TraceDir
	}
	if log == nil {
		log = zap.NewNop()
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create trace dir: %w", err)
	}
	return &Recorder{
		fs:     fs,
		dir:    dir,
		keep:   MaxRotatedFiles,
		log:    log.Named("recorder"),
		now:    time.Now,
		traces: make(map[string]*trace),
	}, nil
}

// Dir is the trace directory.
func (r *Recorder) Dir() string { return r.dir }

// Path is the trace file of runID.
func (r *Recorder) Path(runID string) string {
	return filepath.Join(r.dir, "trace_"+filepath.Base(runID)+".jsonl")
}

func (r *Recorder) RunStarted(run engine.Run) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.rotate(); err != nil {
		r.log.Warn("trace rotation failed", zap.Error(err))
	}
	f, err := r.fs.Create(r.Path(run.ID))
	if err != nil {
		r.log.Warn("trace not created", zap.String("run", run.ID), zap.Error(err))
		return
	}
	t := &trace{file: f, stream: jsoniter.NewStream(api, f, 512)}
	r.traces[run.ID] = t
	r.write(t, Event{
		Timestamp: run.Started,
		Type:      "run_started",
		RunID:     run.ID,
		Data:      map[string]int{"actions": run.Actions},
	})
}

func (r *Recorder) StepRecorded(run engine.Run, index int, action plan.Action, entry plan.LogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.traces[run.ID]
	if !ok {
		return
	}
	i := index
	r.write(t, Event{
		Timestamp: r.now(),
		Type:      "step",
		RunID:     run.ID,
		Index:     &i,
		Data:      stepData{Action: action, Outcome: entry},
	})
}

func (r *Recorder) RunFinished(run engine.Run, logs []plan.LogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.traces[run.ID]
	if !ok {
		return
	}
	delete(r.traces, run.ID)

	counts := make(map[plan.Status]int)
	for _, e := range logs {
		counts[e.Status]++
	}
	r.write(t, Event{
		Timestamp: r.now(),
		Type:      "run_finished",
		RunID:     run.ID,
		Data:      counts,
	})
	if err := t.file.Close(); err != nil {
		r.log.Warn("trace close failed", zap.String("run", run.ID), zap.Error(err))
	}
}

// Close flushes and closes any traces whose runs never finished.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var first error
	for id, t := range r.traces {
		_ = t.stream.Flush()
		if err := t.file.Close(); err != nil && first == nil {
			first = err
		}
		delete(r.traces, id)
	}
	return first
}

// Read returns the events of a finished trace.
func (r *Recorder) Read(runID string) ([]Event, error) {
	raw, err := afero.ReadFile(r.fs, r.Path(runID))
	if err != nil {
		return nil, err
	}
	var out []Event
	for _, line := range strings.Split(strings.TrimSpace(string(raw)), "\n") {
		if line == "" {
			continue
		}
		var ev Event
		if err := api.UnmarshalFromString(line, &ev); err != nil {
			return out, fmt.Errorf("decode trace line: %w", err)
		}
		out = append(out, ev)
	}
	return out, nil
}

func (r *Recorder) write(t *trace, ev Event) {
	t.stream.WriteVal(ev)
	t.stream.WriteRaw("\n")
	if err := t.stream.Flush(); err != nil {
		r.log.Warn("trace write failed", zap.String("run", ev.RunID), zap.Error(err))
	}
	if t.stream.Error != nil {
		r.log.Warn("trace encode failed", zap.String("run", ev.RunID), zap.Error(t.stream.Error))
		t.stream.Error = nil
	}
}

// rotate keeps only the newest keep-1 traces to make room for the next one.
func (r *Recorder) rotate() error {
	entries, err := afero.ReadDir(r.fs, r.dir)
	if err != nil {
		return err
	}

	type traceFile struct {
		name string
		mod  time.Time
	}
	var traces []traceFile
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".jsonl" {
			continue
		}
		if _, open := r.traces[strings.TrimSuffix(strings.TrimPrefix(e.Name(), "trace_"), ".jsonl")]; open {
			continue
		}
		traces = append(traces, traceFile{e.Name(), e.ModTime()})
	}
	sort.Slice(traces, func(i, j int) bool {
		if traces[i].mod.Equal(traces[j].mod) {
			return traces[i].name > traces[j].name
		}
		return traces[i].mod.After(traces[j].mod)
	})

	keep := r.keep - 1
	if keep < 0 {
		keep = 0
	}
	for i := keep; i < len(traces); i++ {
		if err := r.fs.Remove(filepath.Join(r.dir, traces[i].name)); err != nil {
			return err
		}
	}
	return nil
}
