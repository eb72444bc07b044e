package mcp

import (
	"context"
	"os"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/jllopis/rolecast/pkg/role"
)

const mcpStdioHelperEnv = "ROLECAST_MCP_STDIO_HELPER"

func TestHelperMCPStdioServer(t *testing.T) {
	if os.Getenv(mcpStdioHelperEnv) != "1" {
		return
	}

	s, _ := newTestServer(t)
	if err := s.ServeStdio(); err != nil {
		os.Exit(1)
	}
	os.Exit(0)
}

func TestClient_Stdio_RoleInfer(t *testing.T) {
	t.Setenv(mcpStdioHelperEnv, "1")

	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("os.Executable: %v", err)
	}

	client, err := NewClientWithStdioProtocol(exe, []string{"-test.run", "TestHelperMCPStdioServer"}, mcpgo.LATEST_PROTOCOL_VERSION)
	if err != nil {
		t.Fatalf("NewClientWithStdioProtocol error: %v", err)
	}
	defer client.Close()

	result, err := client.CallTool(context.Background(), ToolRoleInfer, map[string]interface{}{
		role.VarCognitiveLoad:   "low",
		role.VarTeamPerformance: "high",
		role.VarReliance:        "low",
	})
	if err != nil {
		t.Fatalf("CallTool error: %v", err)
	}
	if result == nil || result.IsError {
		t.Fatalf("Expected successful tool result, got %+v", result)
	}
	if got := resultText(t, result); got != string(role.Analyst) {
		t.Fatalf("expected Analyst, got %q", got)
	}
}
