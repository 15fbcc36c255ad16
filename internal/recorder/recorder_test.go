package recorder

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"panelqa-runner/internal/engine"
	"panelqa-runner/internal/plan"
)

func TestRecorderRotation(t *testing.T) {
	fs := afero.NewMemMapFs()
	r, err := NewRecorder(fs, "/traces", nil)
	if err != nil {
		t.Fatal(err)
	}
	r.keep = 3

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		run := engine.Run{ID: id, Started: time.Now(), Actions: 1}
		r.RunStarted(run)
		r.StepRecorded(run, 0, plan.Action{Kind: plan.KindWait}, plan.Pass("Wait", "Waited for Spinner"))
		r.RunFinished(run, []plan.LogEntry{plan.Pass("Wait", "Waited for Spinner")})
		time.Sleep(2 * time.Millisecond)
	}

	entries, err := afero.ReadDir(fs, "/traces")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 traces, got %d", len(entries))
	}
	for _, e := range entries {
		if e.Name() == "trace_a.jsonl" || e.Name() == "trace_b.jsonl" {
			t.Errorf("oldest trace %s survived rotation", e.Name())
		}
	}
}

func TestRecorderWritesRun(t *testing.T) {
	fs := afero.NewMemMapFs()
	r, err := NewRecorder(fs, "/traces", nil)
	if err != nil {
		t.Fatal(err)
	}

	run := engine.Run{ID: "run-1", Started: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), Actions: 2}
	logs := []plan.LogEntry{
		plan.Pass("Navigate", "Data Configs > Grab Bag"),
		plan.Fail("Upload", "File not found: bags.csv"),
	}
	r.RunStarted(run)
	r.StepRecorded(run, 0, plan.Action{Kind: plan.KindNavigate, Path: []string{"Data Configs", "Grab Bag"}}, logs[0])
	r.StepRecorded(run, 1, plan.Action{Kind: plan.KindUpload, Value: "bags.csv"}, logs[1])
	r.RunFinished(run, logs)

	raw, err := afero.ReadFile(fs, r.Path("run-1"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(raw), `{"ts":`) {
		t.Errorf("unexpected trace format: %s", raw)
	}

	events, err := r.Read("run-1")
	if err != nil {
		t.Fatalf("read trace: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
	types := []string{"run_started", "step", "step", "run_finished"}
	for i, ev := range events {
		if ev.Type != types[i] {
			t.Errorf("event %d type = %q, want %q", i, ev.Type, types[i])
		}
		if ev.RunID != "run-1" {
			t.Errorf("event %d run = %q", i, ev.RunID)
		}
	}
	if events[2].Index == nil || *events[2].Index != 1 {
		t.Errorf("second step index = %v", events[2].Index)
	}
	step, ok := events[2].Data.(map[string]interface{})
	if !ok {
		t.Fatalf("step data is %T", events[2].Data)
	}
	outcome, _ := step["outcome"].(map[string]interface{})
	if outcome["status"] != "FAIL" || outcome["details"] != "File not found: bags.csv" {
		t.Errorf("unexpected outcome %v", outcome)
	}
	counts, _ := events[3].Data.(map[string]interface{})
	if counts["PASS"] != float64(1) || counts["FAIL"] != float64(1) {
		t.Errorf("unexpected status counts %v", counts)
	}
}

func TestRecorderIgnoresUnknownRun(t *testing.T) {
	fs := afero.NewMemMapFs()
	r, err := NewRecorder(fs, "/traces", nil)
	if err != nil {
		t.Fatal(err)
	}
	run := engine.Run{ID: "ghost"}
	r.StepRecorded(run, 0, plan.Action{}, plan.Pass("Click", "x"))
	r.RunFinished(run, nil)

	if ok, _ := afero.Exists(fs, r.Path("ghost")); ok {
		t.Error("trace created for a run that never started")
	}
}

func TestRecorderCloseFlushesOpenRuns(t *testing.T) {
	fs := afero.NewMemMapFs()
	r, err := NewRecorder(fs, "/traces", nil)
	if err != nil {
		t.Fatal(err)
	}
	r.RunStarted(engine.Run{ID: "open", Started: time.Now()})
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	events, err := r.Read("open")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Type != "run_started" {
		t.Errorf("unexpected events %+v", events)
	}
}
