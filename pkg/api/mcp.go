package api

import (
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hazyhaar/rostersync/pkg/importer"
	"github.com/hazyhaar/rostersync/pkg/kit"
)

// RegisterMCPTools registers the rostersync MCP tools on srv. They dispatch to
// the same endpoints as the HTTP routes.
func (s *Server) RegisterMCPTools(srv *server.MCPServer) {
	s.registerDeriveStage(srv)
	s.registerDecideWrite(srv)
	s.registerNormalizeName(srv)
	s.registerListRuns(srv)
}

func (s *Server) registerDeriveStage(srv *server.MCPServer) {
	tool := mcp.NewTool("derive_stage",
		mcp.WithDescription("Derive the pipeline stage of one roster row from its subscription, data-room and free-text status columns."),
		mcp.WithString("subscription_status", mcp.Description("Subscription document status, e.g. \"Countersigned\"")),
		mcp.WithString("data_room_detail", mcp.Description("Per-person data room activity, \"name: status\" segments separated by ';'")),
		mcp.WithString("data_room_last_accessed", mcp.Description("Last data room access date")),
		mcp.WithString("data_room_granted", mcp.Description("Data room access granted flag (yes/no)")),
		mcp.WithString("status", mcp.Description("Free-text status column")),
		mcp.WithString("notes", mcp.Description("Free-text notes column")),
	)

	kit.RegisterMCPTool(srv, tool, s.derive, func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		rec := importer.Record{
			SubscriptionStatus:   req.GetString("subscription_status", ""),
			DataRoomDetail:       req.GetString("data_room_detail", ""),
			DataRoomLastAccessed: req.GetString("data_room_last_accessed", ""),
			DataRoomGranted:      req.GetString("data_room_granted", ""),
			Status:               req.GetString("status", ""),
			Notes:                req.GetString("notes", ""),
		}
		return &kit.MCPDecodeResult{Request: &deriveReq{Record: rec}}, nil
	})
}

func (s *Server) registerDecideWrite(srv *server.MCPServer) {
	tool := mcp.NewTool("decide_write",
		mcp.WithDescription("Check whether a derived stage may overwrite the current registry stage (hard locks, minimum stage, no downgrade). Nothing is written."),
		mcp.WithString("current", mcp.Description("Current registry stage label, empty when unset")),
		mcp.WithString("derived", mcp.Required(), mcp.Description("Derived stage label")),
	)

	kit.RegisterMCPTool(srv, tool, s.decide, func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		derived, err := req.RequireString("derived")
		if err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &decideReq{
			Current: req.GetString("current", ""),
			Derived: derived,
		}}, nil
	})
}

func (s *Server) registerNormalizeName(srv *server.MCPServer) {
	tool := mcp.NewTool("normalize_name",
		mcp.WithDescription("Normalize an organization or person name into the matching keys used against the registry."),
		mcp.WithString("text", mcp.Required(), mcp.Description("The name to normalize")),
		mcp.WithString("role", mcp.Description("Force \"organization\" or \"person\"; empty classifies the name"), mcp.Enum("", "organization", "person")),
	)

	kit.RegisterMCPTool(srv, tool, s.normalize, func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &normalizeReq{Text: text, Role: req.GetString("role", "")}}, nil
	})
}

func (s *Server) registerListRuns(srv *server.MCPServer) {
	tool := mcp.NewTool("list_runs",
		mcp.WithDescription("List recent reconciliation runs with their summaries, newest first."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of runs (default 50, max 500)")),
	)

	kit.RegisterMCPTool(srv, tool, s.listRuns, func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		limit := req.GetInt("limit", 0)
		if limit < 0 {
			return nil, errors.New("limit must not be negative")
		}
		return &kit.MCPDecodeResult{Request: &listRunsReq{Limit: limit}}, nil
	})
}
