package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/eihwaz/internal/models"
	"github.com/starford/eihwaz/internal/service"
	"github.com/starford/eihwaz/internal/testutil"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	_, r := testutil.TestResolver(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.NewService(r, nil, logger)
	if _, err := svc.CreateProject(context.Background(), "p1", "one"); err != nil {
		t.Fatal(err)
	}
	return New(svc)
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so we invoke the
	// handler functions directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "append_message":
		result, err = srv.appendMessage(ctx, req)
	case "read_ledger":
		result, err = srv.readLedger(ctx, req)
	case "list_branches":
		result, err = srv.listBranches(ctx, req)
	case "create_branch":
		result, err = srv.createBranch(ctx, req)
	case "merge_branch":
		result, err = srv.mergeBranch(ctx, req)
	case "get_artefact":
		result, err = srv.getArtefact(ctx, req)
	case "update_artefact":
		result, err = srv.updateArtefact(ctx, req)
	case "get_ledger_contract":
		result, err = srv.getLedgerContract(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestAppendAndReadLedger(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "append_message", map[string]interface{}{
		"project": "p1",
		"role":    "user",
		"content": "what about caching?",
	})
	var node models.NodeRecord
	if err := json.Unmarshal([]byte(resultText(r)), &node); err != nil {
		t.Fatalf("append result not JSON: %v", err)
	}
	if node.Type != models.NodeMessage || node.ID == "" {
		t.Errorf("node = %+v", node)
	}

	r = callTool(t, srv, "read_ledger", map[string]interface{}{"project": "p1"})
	var nodes []models.NodeRecord
	if err := json.Unmarshal([]byte(resultText(r)), &nodes); err != nil {
		t.Fatalf("read result not JSON: %v", err)
	}
	if len(nodes) != 1 || nodes[0].ID != node.ID {
		t.Errorf("nodes = %+v", nodes)
	}
}

func TestAppendMissingArgs(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "append_message", map[string]interface{}{"project": "p1"})
	if !r.IsError {
		t.Error("missing role/content should be an error result")
	}
}

func TestBranchTools(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "create_branch", map[string]interface{}{
		"project": "p1",
		"name":    "side",
	})
	if r.IsError {
		t.Fatalf("create_branch: %s", resultText(r))
	}

	callTool(t, srv, "append_message", map[string]interface{}{
		"project": "p1", "role": "assistant", "content": "side idea",
	})

	r = callTool(t, srv, "list_branches", map[string]interface{}{"project": "p1"})
	text := resultText(r)
	if !strings.Contains(text, "main (trunk)") {
		t.Errorf("list missing trunk marker: %q", text)
	}
	if !strings.Contains(text, "side") {
		t.Errorf("list missing side: %q", text)
	}
}

func TestMergeTool(t *testing.T) {
	srv := testServer(t)

	callTool(t, srv, "create_branch", map[string]interface{}{"project": "p1", "name": "side"})
	callTool(t, srv, "append_message", map[string]interface{}{
		"project": "p1", "role": "user", "content": "exploration",
	})
	// Back to trunk before merging.
	r := callTool(t, srv, "merge_branch", map[string]interface{}{
		"project": "p1", "source": "side", "summary": "folded",
	})
	if !r.IsError {
		t.Fatal("merging a branch into itself should fail")
	}

	srvSwitch(t, srv, "p1", "main")
	r = callTool(t, srv, "merge_branch", map[string]interface{}{
		"project": "p1", "source": "side", "summary": "folded",
	})
	if r.IsError {
		t.Fatalf("merge_branch: %s", resultText(r))
	}
	var node models.NodeRecord
	if err := json.Unmarshal([]byte(resultText(r)), &node); err != nil {
		t.Fatal(err)
	}
	if node.Type != models.NodeMerge || len(node.SourceNodeIDs) != 1 {
		t.Errorf("merge node = %+v", node)
	}
}

func srvSwitch(t *testing.T, srv *Server, project, branch string) {
	t.Helper()
	if err := srv.svc.SwitchBranch(context.Background(), project, branch); err != nil {
		t.Fatal(err)
	}
}

func TestArtefactTools(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "update_artefact", map[string]interface{}{
		"project": "p1",
		"content": "# Draft",
	})
	text := resultText(r)
	if !strings.HasPrefix(text, "updated: state node ") {
		t.Errorf("update result = %q", text)
	}

	r = callTool(t, srv, "get_artefact", map[string]interface{}{"project": "p1"})
	if resultText(r) != "# Draft" {
		t.Errorf("artefact = %q", resultText(r))
	}
}

func TestLedgerContractTool(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "get_ledger_contract", nil)
	text := resultText(r)
	for _, want := range []string{"message", "state", "merge", "sourceNodeIds"} {
		if !strings.Contains(text, want) {
			t.Errorf("contract missing %q", want)
		}
	}
}
