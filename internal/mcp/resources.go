package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"panelqa-runner/internal/mangle"
)

const (
	resourceMIMEJSON = "application/json"
)

func (s *Server) registerAllResources() {
	if s == nil || s.mcpServer == nil {
		return
	}

	s.mcpServer.AddResource(
		mcp.NewResource(
			"panelqa://about",
			"PanelQA About",
			mcp.WithMIMEType(resourceMIMEJSON),
			mcp.WithResourceDescription("Server info, working directory and the plan action vocabulary."),
		),
		s.handleAboutResource,
	)

	s.mcpServer.AddResourceTemplate(
		mcp.NewResourceTemplate(
			"panelqa://run/{runId}/facts{?predicate,limit}",
			"Run Facts",
			mcp.WithTemplateMIMEType(resourceMIMEJSON),
			mcp.WithTemplateDescription("Journal facts of one run, optionally filtered by predicate."),
		),
		s.handleRunFactsResource,
	)
}

func (s *Server) handleAboutResource(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	payload := map[string]interface{}{
		"name":     s.cfg.Server.Name,
		"version":  s.cfg.Server.Version,
		"work_dir": s.cfg.Workspace.WorkDir,
		"actions": []string{
			"navigate", "checkbox", "click", "wait", "edit_row", "clone_row",
			"update_form", "save_form", "download", "upload", "manipulate_csv",
			"scan_tabs", "process_deployment", "smart_test_cycle", "fuzz_rbe",
		},
		"notes": []string{
			"Resources are read-only; use tools for actions.",
			"Plans run one at a time against the active tab.",
			"Run IDs from execute-plan address the journal and the trace.",
		},
		"timestamp_ms": time.Now().UnixMilli(),
	}

	text, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: resourceMIMEJSON,
			Text:     string(text),
		},
	}, nil
}

func (s *Server) handleRunFactsResource(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	if s.deps.Journal == nil {
		return nil, fmt.Errorf("journal unavailable")
	}

	runID := argString(request.Params.Arguments["runId"])
	if runID == "" {
		return nil, fmt.Errorf("missing runId")
	}
	predicate := argString(request.Params.Arguments["predicate"])
	limit := asInt(request.Params.Arguments["limit"])
	if limit <= 0 {
		limit = 25
	}
	if limit > 500 {
		limit = 500
	}

	facts := selectRecentRunFacts(s.deps.Journal, runID, predicate, limit)

	payload := map[string]interface{}{
		"run_id":    runID,
		"predicate": predicate,
		"limit":     limit,
		"count":     len(facts),
		"facts":     facts,
	}
	text, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: resourceMIMEJSON,
			Text:     string(text),
		},
	}, nil
}

func selectRecentRunFacts(journal *mangle.Journal, runID, predicate string, limit int) []mangle.Fact {
	if journal == nil || runID == "" || limit <= 0 {
		return []mangle.Fact{}
	}

	var source []mangle.Fact
	if predicate != "" {
		source = journal.FactsByPredicate(predicate)
	} else {
		source = journal.Facts()
	}

	out := make([]mangle.Fact, 0, min(limit, len(source)))
	for i := len(source) - 1; i >= 0 && len(out) < limit; i-- {
		f := source[i]
		if len(f.Args) == 0 {
			continue
		}
		if fmt.Sprintf("%v", f.Args[0]) != runID {
			continue
		}
		out = append(out, f)
	}

	// Chronological order (oldest -> newest).
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
