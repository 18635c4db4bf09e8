package mcp

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/jcdickinson/kbpress/internal/rpc"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

//go:embed instructions.md
var instructions string

// Daemon is the part of the server client the tools call.
type Daemon interface {
	Status(ctx context.Context, limit int) (*rpc.StatusResponse, error)
	Regenerate(ctx context.Context, bookID int) (*rpc.RegenerateResponse, error)
}

type Server struct {
	mcpServer *server.MCPServer
	client    Daemon
}

func NewServer(client Daemon, version string) *Server {
	s := &Server{client: client}

	mcpServer := server.NewMCPServer(
		"kbpress",
		version,
		server.WithInstructions(instructions),
		server.WithToolCapabilities(true),
	)

	s.registerTools(mcpServer)

	s.mcpServer = mcpServer
	return s
}

func (s *Server) registerTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(
		mcp.NewTool("status",
			mcp.WithDescription("List known books, pending regenerations and recent generation runs."),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of runs to return (default 20)"),
			),
		),
		s.handleStatus,
	)

	mcpServer.AddTool(
		mcp.NewTool("regenerate",
			mcp.WithDescription("Regenerate one book and rebuild the site. Synchronous; returns when the build finished."),
			mcp.WithNumber("book_id",
				mcp.Description("Numeric book id, as listed by status"),
				mcp.Required(),
			),
		),
		s.handleRegenerate,
	)
}

func (s *Server) handleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := 0
	if v, ok := req.GetArguments()["limit"].(float64); ok {
		limit = int(v)
	}

	resp, err := s.client.Status(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("status failed: %v", err)), nil
	}

	resultJSON, _ := json.MarshalIndent(resp, "", "  ")
	return mcp.NewToolResultText(string(resultJSON)), nil
}

func (s *Server) handleRegenerate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, ok := req.GetArguments()["book_id"].(float64)
	if !ok {
		return mcp.NewToolResultError("missing required parameter: book_id"), nil
	}

	resp, err := s.client.Regenerate(ctx, int(id))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("regenerate failed: %v", err)), nil
	}

	resultJSON, _ := json.MarshalIndent(resp, "", "  ")
	return mcp.NewToolResultText(string(resultJSON)), nil
}

func (s *Server) Run() error {
	return server.ServeStdio(s.mcpServer)
}
