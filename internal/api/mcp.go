package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Auth    Authenticator
	Runs    RunLister
	Version string
}

// NewMCPServer creates an MCP server exposing the calendar handshake and
// run history.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"autott",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("autott turns timetable photos into Google Calendar events. Use these tools to manage calendar authorization."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("calendar_status",
			mcp.WithDescription("Report whether Google Calendar is authorized and for which account."),
		),
		mcpCalendarStatus(deps),
	)

	s.AddTool(
		mcp.NewTool("calendar_auth_start",
			mcp.WithDescription("Begin Google Calendar authorization and return the URL the user must open."),
		),
		mcpCalendarAuthStart(deps),
	)

	s.AddTool(
		mcp.NewTool("calendar_auth_complete",
			mcp.WithDescription("Finish Google Calendar authorization with the code shown after consent."),
			mcp.WithString("code", mcp.Description("Authorization code pasted by the user"), mcp.Required()),
		),
		mcpCalendarAuthComplete(deps),
	)

	s.AddTool(
		mcp.NewTool("calendar_logout",
			mcp.WithDescription("Sign out of Google Calendar and delete the stored token."),
		),
		mcpCalendarLogout(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"autott://runs",
			"Recent Runs",
			mcp.WithResourceDescription("Last 10 pipeline runs as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRuns(deps),
	)

	return s
}

func mcpCalendarStatus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		st, err := deps.Auth.Status(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("status check failed: %v", err)), nil
		}
		b, err := json.Marshal(userResponse{
			Success:       true,
			Authenticated: st.Authenticated,
			Email:         st.Email,
			Name:          st.Name,
			Message:       st.Message,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal status: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpCalendarAuthStart(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := deps.Auth.Start(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("authorization start failed: %v", err)), nil
		}
		return mcpText(url), nil
	}
}

func mcpCalendarAuthComplete(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		code, err := req.RequireString("code")
		if err != nil || code == "" {
			return mcpError("code is required"), nil
		}

		res, err := deps.Auth.Complete(ctx, code)
		if err != nil {
			return mcpError(fmt.Sprintf("authorization failed: %v", err)), nil
		}
		if !res.Success {
			return mcpError(fmt.Sprintf("authorization rejected: %s", res.Error)), nil
		}
		who := res.Email
		if who == "" {
			who = "Google account"
		}
		return mcpText(fmt.Sprintf("Authorized as %s", who)), nil
	}
}

func mcpCalendarLogout(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		msg, err := deps.Auth.Logout(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("logout failed: %v", err)), nil
		}
		return mcpText(msg), nil
	}
}

func mcpResourceRuns(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		runs, err := deps.Runs.ListRuns(10, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to list runs: %w", err)
		}

		type runSummary struct {
			ID        string `json:"id"`
			CreatedAt string `json:"created_at"`
			Mode      string `json:"mode"`
			Status    string `json:"status"`
			Error     string `json:"error,omitempty"`
		}

		summaries := make([]runSummary, len(runs))
		for i, r := range runs {
			summaries[i] = runSummary{
				ID:        r.ID,
				CreatedAt: r.CreatedAt.Format(time.RFC3339),
				Mode:      r.Mode,
				Status:    r.Status,
				Error:     r.Error,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal runs: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
