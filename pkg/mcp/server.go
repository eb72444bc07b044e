// Package mcp exposes the bandit and role engines as MCP tools.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jllopis/rolecast/pkg/bandit"
	rerrors "github.com/jllopis/rolecast/pkg/errors"
	"github.com/jllopis/rolecast/pkg/role"
)

// Tool names.
const (
	ToolBanditSelect = "bandit_select"
	ToolBanditUpdate = "bandit_update"
	ToolRoleInfer    = "role_infer"
	ToolRoleSignals  = "role_signals"
)

// ToolHandler handles a tool call with decoded arguments.
type ToolHandler func(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error)

// Server wraps the mcp-go server with the rolecast tools.
type Server struct {
	mcpServer *server.MCPServer
	engine    *bandit.Engine
	inferrer  *role.Inferrer
	logger    *slog.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the logger used for tool calls.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates an MCP server exposing engine and inferrer. Either may be
// nil, in which case its tools are not registered.
func NewServer(name, version string, engine *bandit.Engine, inferrer *role.Inferrer, opts ...ServerOption) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(name, version, server.WithToolCapabilities(false)),
		engine:    engine,
		inferrer:  inferrer,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if engine != nil {
		s.registerBanditTools()
	}
	if inferrer != nil {
		s.registerRoleTools()
	}
	return s
}

// RegisterTool registers a tool with the server.
func (s *Server) RegisterTool(name, description string, handler ToolHandler, opts ...mcp.ToolOption) {
	tool := mcp.NewTool(name, append([]mcp.ToolOption{mcp.WithDescription(description)}, opts...)...)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]interface{})
		if args == nil {
			args = map[string]interface{}{}
		}
		result, err := handler(ctx, args)
		if err != nil {
			s.logger.WarnContext(ctx, "mcp tool failed", "tool", name, "error", err)
			return toolError(err), nil
		}
		return result, nil
	})
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdio.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// StreamableHTTPServer returns a streamable HTTP transport for the server.
func (s *Server) StreamableHTTPServer() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(s.mcpServer)
}

// ServeStreamableHTTP serves the tools over streamable HTTP on addr.
func (s *Server) ServeStreamableHTTP(addr string) error {
	return s.StreamableHTTPServer().Start(addr)
}

func (s *Server) registerBanditTools() {
	s.RegisterTool(ToolBanditSelect, "Select an arm with epsilon-greedy exploration. Returns the arm index.",
		s.handleBanditSelect,
		mcp.WithNumber("arm_count", mcp.Required(), mcp.Description("Number of arms, at least 1")),
	)
	s.RegisterTool(ToolBanditUpdate, "Record the reward observed for a chosen arm.",
		s.handleBanditUpdate,
		mcp.WithNumber("arm_count", mcp.Required(), mcp.Description("Number of arms, at least 1")),
		mcp.WithNumber("chosen_arm", mcp.Required(), mcp.Description("Zero-based arm index")),
		mcp.WithNumber("reward", mcp.Required(), mcp.Description("Observed reward")),
	)
}

func (s *Server) registerRoleTools() {
	levels := []string{role.Low, role.High}
	s.RegisterTool(ToolRoleInfer, "Infer the most probable facilitation role from discrete evidence.",
		s.handleRoleInfer,
		mcp.WithString(role.VarCognitiveLoad, mcp.Required(), mcp.Enum(levels...)),
		mcp.WithString(role.VarTeamPerformance, mcp.Required(), mcp.Enum(levels...)),
		mcp.WithString(role.VarReliance, mcp.Required(), mcp.Enum(levels...)),
	)
	s.RegisterTool(ToolRoleSignals, "Infer the facilitation role from raw signal readings.",
		s.handleRoleSignals,
		mcp.WithNumber(role.VarCognitiveLoad, mcp.Required()),
		mcp.WithNumber(role.VarTeamPerformance, mcp.Required()),
		mcp.WithNumber(role.VarReliance, mcp.Required()),
	)
}

func (s *Server) handleBanditSelect(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	armCount, err := intArg(args, "arm_count")
	if err != nil {
		return nil, err
	}
	arm, err := s.engine.Select(ctx, armCount)
	if err != nil {
		return nil, err
	}
	return structured(fmt.Sprint(arm), map[string]any{"arm": arm}), nil
}

func (s *Server) handleBanditUpdate(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	armCount, err := intArg(args, "arm_count")
	if err != nil {
		return nil, err
	}
	arm, err := intArg(args, "chosen_arm")
	if err != nil {
		return nil, err
	}
	reward, err := floatArg(args, "reward")
	if err != nil {
		return nil, err
	}
	if err := s.engine.Update(ctx, armCount, arm, reward); err != nil {
		return nil, err
	}
	return structured("updated", map[string]any{"updated": true}), nil
}

func (s *Server) handleRoleInfer(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	var evidence [3]string
	for i, name := range []string{role.VarCognitiveLoad, role.VarTeamPerformance, role.VarReliance} {
		v, ok := args[name].(string)
		if !ok {
			return nil, rerrors.New(rerrors.CodeInvalidEvidence, fmt.Sprintf("%s must be \"low\" or \"high\"", name), nil).
				WithContext("argument", name)
		}
		evidence[i] = v
	}
	r, err := s.inferrer.Infer(ctx, evidence[0], evidence[1], evidence[2])
	if err != nil {
		return nil, err
	}
	return structured(string(r), map[string]any{"role": string(r)}), nil
}

func (s *Server) handleRoleSignals(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	var readings [3]float64
	for i, name := range []string{role.VarCognitiveLoad, role.VarTeamPerformance, role.VarReliance} {
		v, err := floatArg(args, name)
		if err != nil {
			return nil, err
		}
		readings[i] = v
	}
	r, err := s.inferrer.InferSignals(ctx, readings[0], readings[1], readings[2])
	if err != nil {
		return nil, err
	}
	return structured(string(r), map[string]any{"role": string(r)}), nil
}

func intArg(args map[string]interface{}, name string) (int, error) {
	f, err := floatArg(args, name)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, rerrors.New(rerrors.CodeInvalidInput, fmt.Sprintf("%s must be an integer", name), nil).
			WithContext("argument", name)
	}
	return int(f), nil
}

func floatArg(args map[string]interface{}, name string) (float64, error) {
	switch v := args[name].(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case nil:
		return 0, rerrors.New(rerrors.CodeInvalidInput, fmt.Sprintf("missing required argument %s", name), nil).
			WithContext("argument", name)
	default:
		return 0, rerrors.New(rerrors.CodeInvalidInput, fmt.Sprintf("%s must be a number, got %T", name, v), nil).
			WithContext("argument", name)
	}
}

func structured(text string, content map[string]any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content:           []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
		StructuredContent: content,
	}
}

// toolError reports err to the caller as a tool-level error carrying its code.
func toolError(err error) *mcp.CallToolResult {
	code := rerrors.CodeInternal
	if re := rerrors.AsRolecastError(err); re != nil {
		code = re.Code
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", code, err))
}
