package mcp

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"panelqa-runner/internal/browser"
	"panelqa-runner/internal/config"
	"panelqa-runner/internal/csvdoc"
	"panelqa-runner/internal/engine"
	"panelqa-runner/internal/fuzz"
	"panelqa-runner/internal/mangle"
	"panelqa-runner/internal/recorder"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Deps are the runtime components the tools drive. Any of them may be nil;
// the tools that need a missing one are not registered.
type Deps struct {
	Sessions *browser.SessionManager
	Engine   *engine.Engine
	Store    *csvdoc.Store
	Journal  *mangle.Journal
	Recorder *recorder.Recorder
}

// Server wires the MCP runtime to the plan engine, the working-file store
// and the run journal.
type Server struct {
	cfg       config.Config
	deps      Deps
	fuzz      *fuzz.Generator
	tools     map[string]Tool
	mcpServer *mcpserver.MCPServer
	log       *zap.Logger
}

// Tool describes the contract for MCP tool implementations.
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

// NewServer constructs the MCP server and registers all tools.
func NewServer(cfg config.Config, deps Deps, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	mcpSrv := mcpserver.NewMCPServer(
		cfg.Server.Name,
		cfg.Server.Version,
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithLogging(),
		mcpserver.WithPromptCapabilities(false),
		mcpserver.WithRecovery(),
	)

	seed := cfg.Fuzz.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	server := &Server{
		cfg:       cfg,
		deps:      deps,
		fuzz:      fuzz.NewGenerator(cfg.Fuzz.RandomPayloads, seed),
		tools:     make(map[string]Tool),
		mcpServer: mcpSrv,
		log:       log.Named("mcp"),
	}

	server.registerAllTools()
	server.registerAllResources()
	return server, nil
}

// Start serves MCP over stdio.
func (s *Server) Start(ctx context.Context) error {
	stdio := mcpserver.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// StartSSE hosts the server over HTTP using SSE endpoints with graceful shutdown.
func (s *Server) StartSSE(ctx context.Context, port int) error {
	sseServer := mcpserver.NewSSEServer(s.mcpServer, mcpserver.WithBaseURL("http://localhost:"+strconv.Itoa(port)))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())

	httpServer := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.log.Info("SSE server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// ExecuteTool executes a tool directly (used by the run command and tests).
func (s *Server) ExecuteTool(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
	tool, exists := s.tools[name]
	if !exists {
		return nil, fmt.Errorf("tool not found: %s", name)
	}
	return tool.Execute(ctx, args)
}

// ToolNames lists the registered tools.
func (s *Server) ToolNames() []string {
	names := make([]string, 0, len(s.tools))
	for name := range s.tools {
		names = append(names, name)
	}
	return names
}

func (s *Server) registerAllTools() {
	s.registerTool(&ValidatePlanTool{})

	if s.deps.Sessions != nil {
		s.registerTool(&SessionStatusTool{sessions: s.deps.Sessions})
		s.registerTool(&ListSessionsTool{sessions: s.deps.Sessions})
		s.registerTool(&CreateSessionTool{sessions: s.deps.Sessions})
		s.registerTool(&AttachSessionTool{sessions: s.deps.Sessions})
	}

	if s.deps.Engine != nil {
		s.registerTool(&ExecutePlanTool{engine: s.deps.Engine, journal: s.deps.Journal})
	}

	if s.deps.Store != nil {
		s.registerTool(&ManipulateCSVTool{store: s.deps.Store})
		s.registerTool(&GenerateFuzzCasesTool{store: s.deps.Store, gen: s.fuzz})
		s.registerTool(&ListFilesTool{store: s.deps.Store})
	}

	if s.deps.Journal != nil {
		s.registerTool(&QueryJournalTool{journal: s.deps.Journal})
		s.registerTool(&RunSummaryTool{journal: s.deps.Journal})
		s.registerTool(&SubmitRuleTool{journal: s.deps.Journal})
	}

	if s.deps.Recorder != nil {
		s.registerTool(&ReadTraceTool{recorder: s.deps.Recorder})
	}
}

func (s *Server) registerTool(tool Tool) {
	s.tools[tool.Name()] = tool

	schema, err := json.Marshal(tool.InputSchema())
	if err != nil {
		schema = []byte(`{"type":"object"}`)
	}

	mcpTool := mcp.NewToolWithRawSchema(tool.Name(), tool.Description(), schema)
	s.mcpServer.AddTool(mcpTool, s.wrapTool(tool))
}

func (s *Server) wrapTool(tool Tool) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		if args == nil {
			args = map[string]interface{}{}
		}

		result, err := tool.Execute(ctx, args)
		if err != nil {
			s.log.Warn("tool failed", zap.String("tool", tool.Name()), zap.Error(err))
			return &mcp.CallToolResult{
				Content: []mcp.Content{mcp.NewTextContent(fmt.Sprintf("tool %s failed: %v", tool.Name(), err))},
				IsError: true,
			}, nil
		}

		payload := marshalToolPayload(tool.Name(), result)
		return &mcp.CallToolResult{
			Content: []mcp.Content{mcp.NewTextContent(string(payload))},
			IsError: false,
		}, nil
	}
}

func marshalToolPayload(toolName string, result interface{}) []byte {
	payload, marshalErr := json.Marshal(result)
	if marshalErr == nil {
		return payload
	}

	fallback := map[string]interface{}{
		"success": false,
		"error":   fmt.Sprintf("tool %s returned non-serializable payload: %v", toolName, marshalErr),
	}
	payload, fallbackErr := json.Marshal(fallback)
	if fallbackErr == nil {
		return payload
	}

	return []byte(fmt.Sprintf(`{"success":false,"error":"tool %s failed to encode payload"}`, toolName))
}
