package mcp

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	rerrors "github.com/jllopis/rolecast/pkg/errors"
	"github.com/jllopis/rolecast/pkg/role"
)

func TestClient_StreamableHTTP_ListToolsAndCall(t *testing.T) {
	s, _ := newTestServer(t)

	httpServer := mcpserver.NewTestStreamableHTTPServer(s.MCPServer())
	defer httpServer.Close()

	client, err := NewClientWithStreamableHTTPProtocol(httpServer.URL, mcpgo.LATEST_PROTOCOL_VERSION)
	if err != nil {
		t.Fatalf("NewClientWithStreamableHTTPProtocol error: %v", err)
	}
	defer client.Close()

	tools, err := client.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools error: %v", err)
	}
	var names []string
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	for _, want := range []string{ToolBanditSelect, ToolBanditUpdate, ToolRoleInfer, ToolRoleSignals} {
		if !slices.Contains(names, want) {
			t.Fatalf("expected tool %q, got %v", want, names)
		}
	}

	result, err := client.CallTool(context.Background(), ToolBanditSelect, map[string]interface{}{"arm_count": 4})
	if err != nil {
		t.Fatalf("CallTool error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, result))
	}
	// Fresh state with epsilon 0 picks the first arm.
	if got := resultText(t, result); got != "0" {
		t.Fatalf("expected arm 0, got %q", got)
	}

	result, err = client.CallTool(context.Background(), ToolBanditUpdate, map[string]interface{}{
		"arm_count": 4, "chosen_arm": 9, "reward": 1,
	})
	if err != nil {
		t.Fatalf("CallTool error: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected out-of-range update to fail, got %s", resultText(t, result))
	}
}

func TestClient_StreamableHTTP_TypedCalls(t *testing.T) {
	ctx := context.Background()
	s, store := newTestServer(t)

	httpServer := mcpserver.NewTestStreamableHTTPServer(s.MCPServer())
	defer httpServer.Close()

	client, err := NewClientWithStreamableHTTP(httpServer.URL)
	if err != nil {
		t.Fatalf("NewClientWithStreamableHTTP error: %v", err)
	}
	defer client.Close()

	if err := client.Update(ctx, 3, 2, 4.5); err != nil {
		t.Fatalf("Update error: %v", err)
	}
	arm, err := client.SelectArm(ctx, 3)
	if err != nil {
		t.Fatalf("SelectArm error: %v", err)
	}
	if arm != 2 {
		t.Fatalf("expected arm 2, got %d", arm)
	}
	state, err := store.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if state.Counts[2] != 1 || state.Values[2] != 4.5 {
		t.Fatalf("unexpected state %+v", state)
	}

	r, err := client.InferRole(ctx, role.High, role.High, role.Low)
	if err != nil {
		t.Fatalf("InferRole error: %v", err)
	}
	if r != role.Analyst {
		t.Fatalf("expected Analyst, got %s", r)
	}
	r, err = client.InferSignals(ctx, 1, 5, 0.9)
	if err != nil {
		t.Fatalf("InferSignals error: %v", err)
	}
	if r != role.Analyst {
		t.Fatalf("expected Analyst for low/high/high, got %s", r)
	}

	err = client.Update(ctx, 3, 7, 1)
	if !rerrors.HasCode(err, rerrors.CodeOutOfRange) {
		t.Fatalf("expected OUT_OF_RANGE, got %v", err)
	}
}

// flakyHandler serves every request but answers the first tool call naming
// tool with a 502, after the server has already handled it.
type flakyHandler struct {
	next  http.Handler
	tool  string
	calls atomic.Int32
	fired atomic.Bool
}

func (h *flakyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.next.ServeHTTP(w, r)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	if !bytes.Contains(body, []byte(`"name":"`+h.tool+`"`)) {
		h.next.ServeHTTP(w, r)
		return
	}
	h.calls.Add(1)
	if h.fired.CompareAndSwap(false, true) {
		h.next.ServeHTTP(httptest.NewRecorder(), r)
		http.Error(w, "upstream reset", http.StatusBadGateway)
		return
	}
	h.next.ServeHTTP(w, r)
}

func TestClient_UpdateIsNotReplayedAfterTransportError(t *testing.T) {
	ctx := context.Background()
	s, store := newTestServer(t)

	flaky := &flakyHandler{next: s.StreamableHTTPServer(), tool: ToolBanditUpdate}
	httpServer := httptest.NewServer(flaky)
	defer httpServer.Close()

	client, err := NewClientWithStreamableHTTP(httpServer.URL, WithRetry(2, time.Millisecond))
	if err != nil {
		t.Fatalf("NewClientWithStreamableHTTP error: %v", err)
	}
	defer client.Close()

	if err := client.Update(ctx, 3, 0, 1); err == nil {
		t.Fatal("expected the transport error to be returned")
	}
	if got := flaky.calls.Load(); got != 1 {
		t.Fatalf("bandit_update sent %d times, want 1", got)
	}
	state, err := store.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if state.Counts[0] != 1 {
		t.Fatalf("reward applied %d times, want 1", state.Counts[0])
	}
}

func TestClient_ReadOnlyToolIsRetried(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestServer(t)

	flaky := &flakyHandler{next: s.StreamableHTTPServer(), tool: ToolRoleInfer}
	httpServer := httptest.NewServer(flaky)
	defer httpServer.Close()

	client, err := NewClientWithStreamableHTTP(httpServer.URL, WithRetry(2, time.Millisecond))
	if err != nil {
		t.Fatalf("NewClientWithStreamableHTTP error: %v", err)
	}
	defer client.Close()

	r, err := client.InferRole(ctx, role.Low, role.Low, role.Low)
	if err != nil {
		t.Fatalf("InferRole error: %v", err)
	}
	if r != role.Facilitator {
		t.Fatalf("expected Facilitator, got %s", r)
	}
	if got := flaky.calls.Load(); got != 2 {
		t.Fatalf("role_infer sent %d times, want 2", got)
	}
}
