// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes capture tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dstanfill/inkwell/internal/capture"
	"github.com/dstanfill/inkwell/internal/ingress"
	"github.com/dstanfill/inkwell/internal/queue"
)

// Engine is the subset of the sync engine exposed over MCP.
type Engine interface {
	RequestSync()
	Status() queue.SyncStatus
}

// Server wraps the MCP server with capture tools.
type Server struct {
	mcp     *server.MCPServer
	ingress *ingress.Service
	store   queue.Store
	engine  Engine
}

// New creates a new MCP server with all capture tools registered.
// engine may be nil when no remote endpoint is configured.
func New(ing *ingress.Service, store queue.Store, engine Engine) *Server {
	s := &Server{ingress: ing, store: store, engine: engine}

	s.mcp = server.NewMCPServer(
		"Inkwell",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("capture_thought",
		mcp.WithDescription("Durably queue a thought for sync to the remote store. "+
			"Returns immediately; delivery happens in the background even if offline."),
		mcp.WithString("text", mcp.Required(), mcp.Description("The thought text to capture")),
		mcp.WithString("context", mcp.Description("Optional JSON object of context key/value pairs (e.g. {\"url\":\"...\"})")),
	), s.captureThought)

	s.mcp.AddTool(mcp.NewTool("sync_now",
		mcp.WithDescription("Request an immediate sync of the local capture queue. "+
			"Coalesced with any sync already in flight."),
	), s.syncNow)

	s.mcp.AddTool(mcp.NewTool("sync_status",
		mcp.WithDescription("Report connectivity, last sync outcome, and queue depth per state."),
	), s.syncStatus)

	s.mcp.AddTool(mcp.NewTool("list_pending",
		mcp.WithDescription("List captures still waiting to reach the remote store."),
	), s.listPending)

	s.mcp.AddTool(mcp.NewTool("retry_abandoned",
		mcp.WithDescription("Requeue captures that exhausted their retry budget."),
	), s.retryAbandoned)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) captureThought(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var captureCtx map[string]string
	if raw := req.GetString("context", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &captureCtx); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid context: %v", err)), nil
		}
	}

	c, err := s.ingress.Submit(capture.Draft{Text: text, Context: captureCtx, Source: capture.SourceAPI})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("queued capture %s", c.ID)), nil
}

func (s *Server) syncNow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.engine == nil {
		return mcp.NewToolResultError("no sync endpoint configured"), nil
	}
	s.engine.RequestSync()
	return mcp.NewToolResultText("sync requested"), nil
}

func (s *Server) syncStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	counts, err := s.store.Counts()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	status := struct {
		queue.SyncStatus
		Counts map[capture.SyncState]int `json:"counts"`
	}{Counts: counts}
	if s.engine != nil {
		status.SyncStatus = s.engine.Status()
	}
	out, _ := json.MarshalIndent(status, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listPending(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pending, err := s.store.ListPending(0)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if pending == nil {
		pending = []capture.Capture{}
	}
	out, _ := json.MarshalIndent(pending, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) retryAbandoned(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, err := s.store.RetryAbandoned()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if n > 0 && s.engine != nil {
		s.engine.RequestSync()
	}
	return mcp.NewToolResultText(fmt.Sprintf("requeued %d abandoned captures", n)), nil
}
