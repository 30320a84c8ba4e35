package mcp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/nodeflow/internal/streaming"
	"github.com/rendis/nodeflow/pkg/schema"
)

// RunNotifier pushes run events to connected clients.
type RunNotifier interface {
	Notify(ctx context.Context, runID string, payload map[string]any) error
}

// MCPNotifier implements RunNotifier using MCP server notifications.
type MCPNotifier struct {
	mcpServer *server.MCPServer
	sessions  *SessionRegistry
}

// NewMCPNotifier creates a notifier that pushes via MCP.
func NewMCPNotifier(mcpServer *server.MCPServer, sessions *SessionRegistry) *MCPNotifier {
	return &MCPNotifier{mcpServer: mcpServer, sessions: sessions}
}

// Notify sends a notification to the session that started the run.
// Best-effort: returns nil if no session is registered for the run.
func (n *MCPNotifier) Notify(_ context.Context, runID string, payload map[string]any) error {
	sessionID, ok := n.sessions.SessionFor(runID)
	if !ok {
		return nil
	}
	err := n.mcpServer.SendNotificationToSpecificClient(sessionID, "notifications/message", payload)
	if errors.Is(err, server.ErrSessionNotFound) {
		// Session expired between lookup and send.
		n.sessions.Remove(sessionID)
		return nil
	}
	return err
}

func eventPayload(evt schema.WorkflowEvent) map[string]any {
	payload := map[string]any{
		"type":        string(evt.Type),
		"timestamp":   evt.Timestamp,
		"workflow_id": evt.WorkflowID,
		"run_id":      evt.RunID,
	}
	if evt.NodeID != "" {
		payload["node_id"] = evt.NodeID
	}
	if evt.Data != nil {
		payload["data"] = evt.Data
	}
	if evt.ErrorMessage != "" {
		payload["error"] = evt.ErrorMessage
	}
	return payload
}

func terminalEvent(t schema.EventType) bool {
	return t == schema.EventWorkflowComplete || t == schema.EventWorkflowFail || t == schema.EventWorkflowStop
}

// forwardEvents subscribes to the shared hub and relays every run event to
// its session. The returned func stops forwarding.
func (s *Server) forwardEvents(ctx context.Context) (func(), error) {
	ch, cancel, err := s.hub.Subscribe(ctx, streaming.EventFilter{})
	if err != nil {
		return nil, err
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for evt := range ch {
			if evt.RunID == "" {
				continue
			}
			if err := s.notifier.Notify(ctx, evt.RunID, eventPayload(evt)); err != nil {
				s.logger.Debug("run notification failed",
					slog.String("run_id", evt.RunID),
					slog.String("error", err.Error()),
				)
			}
			if terminalEvent(evt.Type) {
				s.sessions.Forget(evt.RunID)
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}, nil
}
