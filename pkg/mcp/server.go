package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/nodeflow/internal/engine"
	"github.com/rendis/nodeflow/internal/scheduler"
	"github.com/rendis/nodeflow/internal/streaming"
	"github.com/rendis/nodeflow/pkg/schema"
)

// DefinitionLoader decodes and validates a JSON workflow document.
type DefinitionLoader interface {
	Load(data []byte) (*schema.WorkflowConfig, error)
}

// ServerDeps holds the dependencies for creating a Server.
type ServerDeps struct {
	Runs      *engine.RunManager
	Loader    DefinitionLoader
	Scheduler *scheduler.Scheduler
	// Hub is the event hub shared by every run's executor. When set, run
	// events are pushed to the session that started the run.
	Hub    streaming.EventHub
	Logger *slog.Logger
}

// Server wraps an MCP server with nodeflow tool handlers.
type Server struct {
	runs      *engine.RunManager
	loader    DefinitionLoader
	scheduler *scheduler.Scheduler
	hub       streaming.EventHub
	logger    *slog.Logger
	sessions  *SessionRegistry
	notifier  RunNotifier
	mcpServer *server.MCPServer
}

// NewServer creates a new Server with all 6 tools registered.
func NewServer(deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &Server{
		runs:      deps.Runs,
		loader:    deps.Loader,
		scheduler: deps.Scheduler,
		hub:       deps.Hub,
		logger:    logger,
		sessions:  NewSessionRegistry(),
	}

	mcpSrv := server.NewMCPServer(
		"nodeflow",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Nodeflow executes trees of actions, roles, conditions, sequences and parallel groups. Use nodeflow.define to register a workflow, nodeflow.run to start it, nodeflow.state to inspect runs, nodeflow.control to pause, resume or stop a run, nodeflow.schedule to trigger definitions on a cron schedule, and nodeflow.diagram to draw a definition or a run's progress."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	s.notifier = NewMCPNotifier(mcpSrv, s.sessions)
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *Server) Serve(ctx context.Context) error {
	if s.hub != nil {
		stop, err := s.forwardEvents(ctx)
		if err != nil {
			return err
		}
		defer stop()
	}
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the 6 registered MCP tools as ServerTool entries.
func (s *Server) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: defineTool(), Handler: s.handleDefine},
		{Tool: runTool(), Handler: s.handleRun},
		{Tool: stateTool(), Handler: s.handleState},
		{Tool: controlTool(), Handler: s.handleControl},
		{Tool: scheduleTool(), Handler: s.handleSchedule},
		{Tool: diagramTool(), Handler: s.handleDiagram},
	}
}

// --- Tool definitions ---

func defineTool() mcp.Tool {
	return mcp.NewTool("nodeflow.define",
		mcp.WithDescription("Register a workflow definition under a name"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Definition name")),
		mcp.WithObject("definition", mcp.Required(), mcp.Description("Workflow config: {id, name, version, root_id?, nodes[]}")),
	)
}

func runTool() mcp.Tool {
	return mcp.NewTool("nodeflow.run",
		mcp.WithDescription("Start a run of a registered workflow definition"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Name of the definition to run")),
		mcp.WithString("wait", mcp.Description("Block until the run finishes (default: false)")),
	)
}

func stateTool() mcp.Tool {
	return mcp.NewTool("nodeflow.state",
		mcp.WithDescription("Get the state of a run, or list runs and definitions"),
		mcp.WithString("run_id", mcp.Description("Run to inspect (omit to list everything)")),
	)
}

func controlTool() mcp.Tool {
	return mcp.NewTool("nodeflow.control",
		mcp.WithDescription("Pause, resume or stop a run"),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("ID of the target run")),
		mcp.WithString("action", mcp.Required(),
			mcp.Enum("pause", "resume", "stop"),
			mcp.Description("Control action"),
		),
	)
}

func scheduleTool() mcp.Tool {
	return mcp.NewTool("nodeflow.schedule",
		mcp.WithDescription("Manage cron schedules for workflow definitions"),
		mcp.WithString("action", mcp.Required(),
			mcp.Enum("add", "remove", "enable", "disable", "list"),
			mcp.Description("Schedule operation"),
		),
		mcp.WithString("name", mcp.Description("Definition name (add)")),
		mcp.WithString("cron", mcp.Description("Five-field cron expression (add)")),
		mcp.WithString("job_id", mcp.Description("Job ID (remove, enable, disable)")),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("nodeflow.diagram",
		mcp.WithDescription("Draw a workflow definition or a run's progress as a node tree"),
		mcp.WithString("name", mcp.Description("Definition name (omit when run_id is set)")),
		mcp.WithString("run_id", mcp.Description("Run whose status is overlaid on its workflow")),
		mcp.WithString("format", mcp.Enum("mermaid", "ascii"), mcp.Description("Output format (default: mermaid)")),
	)
}
