package mcp

import (
	"context"
	"fmt"

	"panelqa-runner/internal/engine"
	"panelqa-runner/internal/mangle"
	"panelqa-runner/internal/plan"
)

type ExecutePlanTool struct {
	engine  *engine.Engine
	journal *mangle.Journal
}

func (t *ExecutePlanTool) Name() string { return "execute-plan" }
func (t *ExecutePlanTool) Description() string {
	return `Execute an action plan against the active panel tab and return the execution log.

The plan is a JSON array of actions, or an object with a "plan" or "steps" array.
Line comments (//) and markdown code fences are tolerated.

ACTIONS:
- navigate {path:[...]} or {target:"url"}
- click, checkbox, wait, edit_row, clone_row
- update_form {data:{field:value}}, save_form {mode:"continue"|"save"}
- download, upload {value:"file.csv"}
- manipulate_csv {target, operation:add|edit|delete, instruction}
- scan_tabs, process_deployment
- smart_test_cycle {target:"file.csv"}, fuzz_rbe {target:"event.csv"}

Actions run strictly in order. A failed step is logged and the plan continues,
except for navigation failures and a lost browser session.

Returns: {run_id, logs:[{step,status,details}], counts, summary}`
}
func (t *ExecutePlanTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"plan": stringProp("Plan document (JSON text)"),
			"summary": map[string]interface{}{
				"type":        "boolean",
				"description": "Attach the journal's verdict for the run (default true)",
			},
		},
		"required": []string{"plan"},
	}
}
func (t *ExecutePlanTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	text := getStringArg(args, "plan")
	if text == "" {
		return nil, fmt.Errorf("plan is required")
	}

	report, err := t.engine.ExecuteText(ctx, text)
	if err != nil {
		return nil, err
	}

	out := map[string]interface{}{
		"run_id":  report.RunID,
		"logs":    report.Logs,
		"counts":  statusCounts(report.Logs),
		"took_ms": report.Took.Milliseconds(),
	}
	if t.journal != nil && report.RunID != "" && getBoolArg(args, "summary", true) {
		if sum, err := t.journal.Summary(ctx, report.RunID); err == nil {
			out["summary"] = sum
		}
	}
	return out, nil
}

type ValidatePlanTool struct{}

func (t *ValidatePlanTool) Name() string { return "validate-plan" }
func (t *ValidatePlanTool) Description() string {
	return `Parse a plan without executing it.

Returns the normalized actions (aliases resolved, unknown kinds kept) or the
parse error. Use it before execute-plan to catch malformed documents.`
}
func (t *ValidatePlanTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"plan": stringProp("Plan document (JSON text)"),
		},
		"required": []string{"plan"},
	}
}
func (t *ValidatePlanTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	p, err := plan.ParseText(getStringArg(args, "plan"))
	if err != nil {
		return map[string]interface{}{"valid": false, "error": err.Error()}, nil
	}
	return map[string]interface{}{"valid": true, "actions": p, "count": len(p)}, nil
}
