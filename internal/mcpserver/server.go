// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Eihwaz tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/eihwaz/internal/models"
	"github.com/starford/eihwaz/internal/service"
)

// Server wraps the MCP server with Eihwaz tools.
type Server struct {
	mcp *server.MCPServer
	svc *service.Service
}

// New creates a new MCP server with all Eihwaz tools registered.
func New(svc *service.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Eihwaz",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("append_message",
		mcp.WithDescription("Append a message node to a project's ledger on the given branch (default: current)."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project id")),
		mcp.WithString("role", mcp.Required(), mcp.Description("Message role: user, assistant, or system")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Message content")),
		mcp.WithString("branch", mcp.Description("Target branch (empty for the current one)")),
	), s.appendMessage)

	s.mcp.AddTool(mcp.NewTool("read_ledger",
		mcp.WithDescription("Read a project's node ledger, optionally at a historical ref. "+
			"Use a merge node's mergeFrom branch as the ref to dereference its sourceNodeIds."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project id")),
		mcp.WithString("ref", mcp.Description("Branch, commit, or empty for the live working copy")),
	), s.readLedger)

	s.mcp.AddTool(mcp.NewTool("list_branches",
		mcp.WithDescription("List a project's branches with head commit, node count, and trunk marker."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project id")),
	), s.listBranches)

	s.mcp.AddTool(mcp.NewTool("create_branch",
		mcp.WithDescription("Create a new reasoning branch and check it out."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project id")),
		mcp.WithString("name", mcp.Required(), mcp.Description("New branch name")),
		mcp.WithString("from", mcp.Description("Ref to branch from (empty for the current branch)")),
	), s.createBranch)

	s.mcp.AddTool(mcp.NewTool("merge_branch",
		mcp.WithDescription("Merge a source branch's unique nodes into the current branch as a single merge node manifest."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project id")),
		mcp.WithString("source", mcp.Required(), mcp.Description("Source branch name")),
		mcp.WithString("summary", mcp.Required(), mcp.Description("Human-readable merge summary")),
	), s.mergeBranch)

	s.mcp.AddTool(mcp.NewTool("get_artefact",
		mcp.WithDescription("Read the project's artefact document, optionally at a historical ref."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project id")),
		mcp.WithString("ref", mcp.Description("Branch, commit, or empty for the live working copy")),
	), s.getArtefact)

	s.mcp.AddTool(mcp.NewTool("update_artefact",
		mcp.WithDescription("Replace the project's artefact document. Produces one state node "+
			"whose snapshot hash links the ledger to the new content."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project id")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Full replacement content")),
		mcp.WithString("branch", mcp.Description("Target branch (empty for the current one)")),
	), s.updateArtefact)

	s.mcp.AddTool(mcp.NewTool("get_ledger_contract",
		mcp.WithDescription("Returns the canonical ledger record contract. "+
			"Call this before interpreting read_ledger output."),
	), s.getLedgerContract)

	// Resource: ledger format contract.
	s.mcp.AddResource(
		mcp.NewResource("eihwaz://ledger-format", "Ledger Format Contract",
			mcp.WithResourceDescription("Canonical node record format used in every project ledger."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readLedgerFormatResource,
	)

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

func (s *Server) appendMessage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project, err := req.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	role, err := req.RequireString("role")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	branch := ""
	if b, err := req.RequireString("branch"); err == nil {
		branch = b
	}

	node, err := s.svc.AppendNode(ctx, project, models.NewMessageNode(role, content), branch)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(node, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readLedger(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project, err := req.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ref := ""
	if r, err := req.RequireString("ref"); err == nil {
		ref = r
	}
	nodes, err := s.svc.ReadLedger(ctx, project, ref)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(nodes, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listBranches(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project, err := req.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	branches, err := s.svc.ListBranches(ctx, project)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var lines []string
	for _, b := range branches {
		marker := ""
		if b.IsTrunk {
			marker = " (trunk)"
		}
		lines = append(lines, fmt.Sprintf("%s%s\t%d nodes\t%s", b.Name, marker, b.NodeCount, b.HeadCommit))
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) createBranch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project, err := req.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	from := ""
	if f, err := req.RequireString("from"); err == nil {
		from = f
	}
	if err := s.svc.CreateBranch(ctx, project, name, from); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created and checked out: %s", name)), nil
}

func (s *Server) mergeBranch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project, err := req.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	source, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	summary, err := req.RequireString("summary")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	node, err := s.svc.MergeBranch(ctx, project, source, summary)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(node, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getArtefact(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project, err := req.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ref := ""
	if r, err := req.RequireString("ref"); err == nil {
		ref = r
	}
	content, err := s.svc.GetArtefactAt(ctx, project, ref)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(content), nil
}

func (s *Server) updateArtefact(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project, err := req.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	branch := ""
	if b, err := req.RequireString("branch"); err == nil {
		branch = b
	}
	node, err := s.svc.UpdateArtefact(ctx, project, content, branch)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("updated: state node %s, snapshot %s", node.ID, node.ArtefactSnapshot)), nil
}

func (s *Server) getLedgerContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(LedgerFormatContract), nil
}

func (s *Server) readLedgerFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "eihwaz://ledger-format",
			MIMEType: "text/markdown",
			Text:     LedgerFormatContract,
		},
	}, nil
}
