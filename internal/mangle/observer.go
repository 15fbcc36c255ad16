package mangle

import (
	"context"
	"time"

	"go.uber.org/zap"

	"panelqa-runner/internal/engine"
	"panelqa-runner/internal/plan"
)

var _ engine.Observer = (*Journal)(nil)

func (j *Journal) RunStarted(run engine.Run) {
	j.record(Fact{
		Predicate: "run_started",
		Args:      []interface{}{run.ID, run.Actions, run.Started.Unix()},
		Timestamp: run.Started,
	})
}

func (j *Journal) StepRecorded(run engine.Run, index int, action plan.Action, entry plan.LogEntry) {
	j.record(Fact{
		Predicate: "step_result",
		Args:      []interface{}{run.ID, index, string(action.Kind), entry.Step, string(entry.Status), entry.Details},
		Timestamp: time.Now(),
	})
}

func (j *Journal) RunFinished(run engine.Run, logs []plan.LogEntry) {
	j.record(Fact{
		Predicate: "run_finished",
		Args:      []interface{}{run.ID, len(logs)},
		Timestamp: time.Now(),
	})
	if !j.cfg.Enable {
		return
	}
	failed, err := j.Evaluate(context.Background(), "failed_step")
	if err != nil {
		return
	}
	for _, f := range failed {
		if len(f.Args) == 4 && f.Args[0] == run.ID {
			j.log.Info("failed step",
				zap.String("run", run.ID),
				zap.Any("index", f.Args[1]),
				zap.Any("step", f.Args[2]),
				zap.Any("details", f.Args[3]))
		}
	}
}

// record never fails the run; journal errors are logged.
func (j *Journal) record(f Fact) {
	if err := j.AddFacts(context.Background(), []Fact{f}); err != nil {
		j.log.Warn("journal write failed", zap.String("predicate", f.Predicate), zap.Error(err))
	}
}

// RunSummary is the journal's verdict on one run.
type RunSummary struct {
	RunID          string   `json:"run_id"`
	Healthy        bool     `json:"healthy"`
	FailedSteps    []string `json:"failed_steps,omitempty"`
	ValidationGaps []string `json:"validation_gaps,omitempty"`
	AcceptedFuzz   []string `json:"accepted_invalid,omitempty"`
}

// Summary collects the derived facts of runID.
func (j *Journal) Summary(ctx context.Context, runID string) (RunSummary, error) {
	sum := RunSummary{RunID: runID}
	for _, q := range []struct {
		pred string
		col  int
		dst  *[]string
	}{
		{"failed_step", 2, &sum.FailedSteps},
		{"validation_gap", 1, &sum.ValidationGaps},
		{"accepted_invalid", 1, &sum.AcceptedFuzz},
	} {
		facts, err := j.Evaluate(ctx, q.pred)
		if err != nil {
			return sum, err
		}
		for _, f := range facts {
			if len(f.Args) > q.col && f.Args[0] == runID {
				if s, ok := f.Args[q.col].(string); ok {
					*q.dst = append(*q.dst, s)
				}
			}
		}
	}
	healthy, err := j.Evaluate(ctx, "run_healthy")
	if err != nil {
		return sum, err
	}
	for _, f := range healthy {
		if len(f.Args) == 1 && f.Args[0] == runID {
			sum.Healthy = true
		}
	}
	return sum, nil
}
