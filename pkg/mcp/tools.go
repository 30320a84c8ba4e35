package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/nodeflow/internal/diagram"
	"github.com/rendis/nodeflow/internal/engine"
	"github.com/rendis/nodeflow/pkg/schema"
)

// handleDefine validates a workflow document and stores it under a name.
func (s *Server) handleDefine(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name is required"), nil
	}
	defRaw := mcp.ParseStringMap(req, "definition", nil)
	if defRaw == nil {
		return mcp.NewToolResultError("definition is required"), nil
	}
	if s.loader == nil || s.runs == nil {
		return mcp.NewToolResultError("definitions are not available"), nil
	}

	defBytes, marshalErr := json.Marshal(defRaw)
	if marshalErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid definition: %v", marshalErr)), nil
	}
	cfg, loadErr := s.loader.Load(defBytes)
	if loadErr != nil {
		return toolError("invalid definition", loadErr)
	}
	if defErr := s.runs.Define(name, cfg); defErr != nil {
		return toolError("define failed", defErr)
	}

	return marshalResult(map[string]any{
		"name":        name,
		"workflow_id": cfg.ID,
		"nodes":       len(cfg.Nodes),
	})
}

// handleRun starts a definition, optionally waiting for it to finish.
func (s *Server) handleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name is required"), nil
	}
	if s.runs == nil {
		return mcp.NewToolResultError("runs are not available"), nil
	}

	runID, startErr := s.runs.StartDefinition(ctx, name)
	if startErr != nil {
		return toolError("run failed", startErr)
	}
	s.captureSession(ctx, runID)

	if req.GetString("wait", "false") != "true" {
		return marshalResult(map[string]any{"run_id": runID})
	}
	info, waitErr := s.runs.Wait(ctx, runID)
	if waitErr != nil {
		return toolError("wait failed", waitErr)
	}
	return marshalResult(info)
}

// handleState returns one run, or every run and definition.
func (s *Server) handleState(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.runs == nil {
		return mcp.NewToolResultError("runs are not available"), nil
	}
	runID := req.GetString("run_id", "")
	if runID == "" {
		return marshalResult(map[string]any{
			"definitions": s.runs.Definitions(),
			"runs":        s.runs.Runs(),
		})
	}
	info, err := s.runs.Get(runID)
	if err != nil {
		return toolError("state query failed", err)
	}
	return marshalResult(info)
}

// handleControl pauses, resumes or stops a run.
func (s *Server) handleControl(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, err := req.RequireString("run_id")
	if err != nil {
		return mcp.NewToolResultError("run_id is required"), nil
	}
	action, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError("action is required"), nil
	}
	if s.runs == nil {
		return mcp.NewToolResultError("runs are not available"), nil
	}

	var ctrlErr error
	switch action {
	case "pause":
		ctrlErr = s.runs.Pause(runID)
	case "resume":
		ctrlErr = s.runs.Resume(runID)
	case "stop":
		ctrlErr = s.runs.Stop(runID)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown control action: %s", action)), nil
	}
	if ctrlErr != nil {
		return toolError(action+" failed", ctrlErr)
	}

	info, err := s.runs.Get(runID)
	if err != nil {
		return toolError("state query failed", err)
	}
	return marshalResult(map[string]any{
		"ok":     true,
		"run_id": runID,
		"action": action,
		"state":  info.State,
	})
}

// handleSchedule manages cron jobs.
func (s *Server) handleSchedule(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError("action is required"), nil
	}
	if s.scheduler == nil {
		return mcp.NewToolResultError("scheduler is disabled"), nil
	}

	switch action {
	case "list":
		return marshalResult(map[string]any{"jobs": s.scheduler.Jobs()})
	case "add":
		return s.addJob(req)
	case "remove", "enable", "disable":
		jobID := req.GetString("job_id", "")
		if jobID == "" {
			return mcp.NewToolResultError("job_id is required"), nil
		}
		var opErr error
		switch action {
		case "remove":
			opErr = s.scheduler.Remove(jobID)
		case "enable":
			opErr = s.scheduler.SetEnabled(jobID, true)
		default:
			opErr = s.scheduler.SetEnabled(jobID, false)
		}
		if opErr != nil {
			return toolError(action+" failed", opErr)
		}
		return marshalResult(map[string]any{"ok": true, "job_id": jobID, "action": action})
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown schedule action: %s", action)), nil
	}
}

func (s *Server) addJob(req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("name", "")
	cronExpr := req.GetString("cron", "")
	if name == "" || cronExpr == "" {
		return mcp.NewToolResultError("name and cron are required"), nil
	}
	if s.runs != nil {
		if _, err := s.runs.Definition(name); err != nil {
			return toolError("schedule failed", err)
		}
	}
	job, err := s.scheduler.Add(name, cronExpr)
	if err != nil {
		return toolError("schedule failed", err)
	}
	return marshalResult(map[string]any{"job": job})
}

// handleDiagram renders a definition, or a run's workflow with its status overlay.
func (s *Server) handleDiagram(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.runs == nil {
		return mcp.NewToolResultError("runs are not available"), nil
	}
	name := req.GetString("name", "")
	runID := req.GetString("run_id", "")

	var (
		cfg   *schema.WorkflowConfig
		state *engine.WorkflowState
		err   error
	)
	switch {
	case runID != "":
		cfg, err = s.runs.RunConfig(runID)
		if err != nil {
			return toolError("diagram failed", err)
		}
		info, getErr := s.runs.Get(runID)
		if getErr != nil {
			return toolError("diagram failed", getErr)
		}
		state = &info.State
	case name != "":
		cfg, err = s.runs.Definition(name)
		if err != nil {
			return toolError("diagram failed", err)
		}
	default:
		return mcp.NewToolResultError("name or run_id is required"), nil
	}

	model, err := diagram.Build(cfg, state)
	if err != nil {
		return toolError("diagram failed", err)
	}
	format := req.GetString("format", diagram.FormatMermaid)
	out, err := diagram.Render(model, format)
	if err != nil {
		return toolError("diagram failed", err)
	}
	return marshalResult(map[string]any{
		"format":  format,
		"diagram": out,
	})
}

// --- Internal helpers ---

// captureSession maps the run ID to the current MCP session for notifications.
func (s *Server) captureSession(ctx context.Context, runID string) {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		s.sessions.Register(runID, session.SessionID())
	}
}

// toolError reports err as a tool-level error result.
func toolError(prefix string, err error) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", prefix, err)), nil
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
