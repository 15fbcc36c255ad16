package mcp

import (
	"context"
	"fmt"
	"strings"

	"panelqa-runner/internal/mangle"
	"panelqa-runner/internal/recorder"
)

type QueryJournalTool struct {
	journal *mangle.Journal
}

func (t *QueryJournalTool) Name() string { return "query-journal" }
func (t *QueryJournalTool) Description() string {
	return `Query the run journal with a Mangle atom.

BASE PREDICATES:
- run_started(RunID, Actions, Started)
- step_result(RunID, Index, Action, Step, Status, Details)
- run_finished(RunID, Entries)

DERIVED:
- failed_step(RunID, Index, Step, Details)
- run_unhealthy(RunID), run_healthy(RunID)
- validation_gap(RunID, Step)     fuzz case the panel let through
- accepted_invalid(RunID, Step)   campaign mutation the panel imported
- session_lost(RunID, Details)

Variables are bound in each result; "_" is ignored.
Pass "predicate" alone to list every fact of that predicate.

Returns: {results:[{Var:value}]} or {facts:[...]}`
}
func (t *QueryJournalTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query":     stringProp("Atom such as failed_step(R, I, Step, D)."),
			"predicate": stringProp("Predicate name to list"),
			"expect": map[string]interface{}{
				"type":        "array",
				"description": "Leading argument values that must be present (predicate mode)",
			},
		},
	}
}
func (t *QueryJournalTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	if pred := getStringArg(args, "predicate"); pred != "" {
		facts, err := t.journal.Evaluate(ctx, pred)
		if err != nil {
			return nil, err
		}
		out := map[string]interface{}{"predicate": pred, "count": len(facts), "facts": facts}
		if want, ok := args["expect"].([]interface{}); ok {
			out["matched"] = matchFact(facts, want)
		}
		return out, nil
	}

	query := strings.TrimSpace(getStringArg(args, "query"))
	if query == "" {
		return nil, fmt.Errorf("query or predicate is required")
	}
	if !strings.HasSuffix(query, ".") {
		query += "."
	}
	results, err := t.journal.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"count": len(results), "results": results}, nil
}

type RunSummaryTool struct {
	journal *mangle.Journal
}

func (t *RunSummaryTool) Name() string { return "run-summary" }
func (t *RunSummaryTool) Description() string {
	return `Summarize one run from the journal: health, failed steps, validation gaps
and invalid data the panel accepted.

Returns: {run_id, healthy, failed_steps, validation_gaps, accepted_invalid}`
}
func (t *RunSummaryTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"run_id": stringProp("Run ID returned by execute-plan"),
		},
		"required": []string{"run_id"},
	}
}
func (t *RunSummaryTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	runID := getStringArg(args, "run_id")
	if runID == "" {
		return nil, fmt.Errorf("run_id is required")
	}
	return t.journal.Summary(ctx, runID)
}

type SubmitRuleTool struct {
	journal *mangle.Journal
}

func (t *SubmitRuleTool) Name() string { return "submit-rule" }
func (t *SubmitRuleTool) Description() string {
	return `Add Mangle declarations and rules over the journal predicates.

New rules are evaluated after every later fact insertion; query their heads
with query-journal.

Example:
  Decl slow_upload(RunID, Index).
  slow_upload(R, I) :- step_result(R, I, "upload", _, "FAIL", _).`
}
func (t *SubmitRuleTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"rule": stringProp("Mangle source"),
		},
		"required": []string{"rule"},
	}
}
func (t *SubmitRuleTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	rule := getStringArg(args, "rule")
	if rule == "" {
		return nil, fmt.Errorf("rule is required")
	}
	if err := t.journal.AddRule(rule); err != nil {
		return nil, err
	}
	return map[string]interface{}{"status": "accepted"}, nil
}

type ReadTraceTool struct {
	recorder *recorder.Recorder
}

func (t *ReadTraceTool) Name() string { return "read-trace" }
func (t *ReadTraceTool) Description() string {
	return `Read the JSONL trace of a run: every action with its outcome, in order.

Only the most recent traces are kept.

Returns: {run_id, events:[{ts,type,index,data}]}`
}
func (t *ReadTraceTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"run_id": stringProp("Run ID returned by execute-plan"),
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Return only the last N events",
			},
		},
		"required": []string{"run_id"},
	}
}
func (t *ReadTraceTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	runID := getStringArg(args, "run_id")
	if runID == "" {
		return nil, fmt.Errorf("run_id is required")
	}
	events, err := t.recorder.Read(runID)
	if err != nil {
		return nil, fmt.Errorf("trace %s: %w", runID, err)
	}
	if limit := getIntArg(args, "limit", 0); limit > 0 && limit < len(events) {
		events = events[len(events)-limit:]
	}
	return map[string]interface{}{"run_id": runID, "events": events}, nil
}
