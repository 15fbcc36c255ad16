package mcp

import (
	"context"
	"fmt"

	"panelqa-runner/internal/browser"
)

// SessionStatusTool reports the browser attachment and connects on demand.
type SessionStatusTool struct {
	sessions *browser.SessionManager
}

func (t *SessionStatusTool) Name() string { return "session-status" }
func (t *SessionStatusTool) Description() string {
	return `Report whether the runner is attached to the operator's Chrome.

The runner never launches or closes Chrome. It attaches to the remote
debugging endpoint in browser.debugger_url (start Chrome with
--remote-debugging-port=9222 and log in to the panel first).

Set connect=true to attach now instead of on the first plan.

Returns: {connected, control_url, active, sessions}`
}
func (t *SessionStatusTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"connect": map[string]interface{}{
				"type":        "boolean",
				"description": "Attach if not connected (default false)",
			},
		},
	}
}
func (t *SessionStatusTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	if getBoolArg(args, "connect", false) && !t.sessions.IsConnected() {
		if err := t.sessions.Start(ctx); err != nil {
			return nil, err
		}
	}
	out := map[string]interface{}{
		"connected":   t.sessions.IsConnected(),
		"control_url": t.sessions.ControlURL(),
		"sessions":    t.sessions.List(),
	}
	if active, ok := t.sessions.Active(); ok {
		out["active"] = active
	}
	return out, nil
}

type ListSessionsTool struct {
	sessions *browser.SessionManager
}

func (t *ListSessionsTool) Name() string { return "list-sessions" }
func (t *ListSessionsTool) Description() string {
	return `List the tabs the runner has opened or attached to.

The most recently opened or attached tab is the one plans run against.

Returns: Array of {id, target_id, url, title} for each tracked tab.`
}
func (t *ListSessionsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *ListSessionsTool) Execute(_ context.Context, _ map[string]interface{}) (interface{}, error) {
	return map[string]interface{}{"sessions": t.sessions.List()}, nil
}

type CreateSessionTool struct {
	sessions *browser.SessionManager
}

func (t *CreateSessionTool) Name() string { return "create-session" }
func (t *CreateSessionTool) Description() string {
	return `Open a new tab in the attached Chrome and make it the active page.

The tab shares the browser's cookies, so an existing panel login applies.

Returns: {session: {id, url, title}}`
}
func (t *CreateSessionTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url": stringProp("Optional URL to open"),
		},
	}
}
func (t *CreateSessionTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	url := getStringArg(args, "url")
	if url == "" {
		url = "about:blank"
	}

	sess, err := t.sessions.CreateSession(ctx, url)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{"session": sess}, nil
}

type AttachSessionTool struct {
	sessions *browser.SessionManager
}

func (t *AttachSessionTool) Name() string { return "attach-session" }
func (t *AttachSessionTool) Description() string {
	return `Attach to an existing Chrome tab by its CDP TargetID and make it the active page.

Without an explicit attach, plans run against the first regular tab.

Returns: {session: {id, url, title}}`
}
func (t *AttachSessionTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"target_id": stringProp("CDP TargetID to attach"),
		},
		"required": []string{"target_id"},
	}
}
func (t *AttachSessionTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	targetID := getStringArg(args, "target_id")
	if targetID == "" {
		return nil, fmt.Errorf("target_id is required")
	}

	sess, err := t.sessions.Attach(ctx, targetID)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"session": sess}, nil
}
