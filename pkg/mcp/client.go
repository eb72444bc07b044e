package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	rerrors "github.com/jllopis/rolecast/pkg/errors"
	"github.com/jllopis/rolecast/pkg/role"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultRetries  = 2
	defaultBackoff  = 200 * time.Millisecond
	defaultCacheTTL = 30 * time.Second
)

// readOnlyTools are safe to send again after a transport error. Bandit tools
// write state and the decision log, so a lost response must not replay them.
var readOnlyTools = map[string]bool{
	ToolRoleInfer:   true,
	ToolRoleSignals: true,
}

// ClientOption customizes the MCP client wrapper behavior.
type ClientOption func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithRetry configures retry count and backoff for tool listing and
// read-only tools.
func WithRetry(retries int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		if retries >= 0 {
			c.maxRetries = retries
		}
		if backoff > 0 {
			c.backoff = backoff
		}
	}
}

// WithToolCacheTTL sets the tool discovery cache TTL. Use 0 to disable caching.
func WithToolCacheTTL(ttl time.Duration) ClientOption {
	return func(c *Client) {
		if ttl >= 0 {
			c.cacheTTL = ttl
		}
	}
}

// Client calls the rolecast tools of a remote MCP server.
type Client struct {
	mcpClient  client.MCPClient
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
	cacheTTL   time.Duration

	mu          sync.Mutex
	toolsCache  []mcp.Tool
	cacheExpiry time.Time
}

// NewClient creates a new Client with the given MCP client implementation.
func NewClient(c client.MCPClient, opts ...ClientOption) *Client {
	client := &Client{
		mcpClient:  c,
		timeout:    defaultTimeout,
		maxRetries: defaultRetries,
		backoff:    defaultBackoff,
		cacheTTL:   defaultCacheTTL,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// NewClientWithStdio starts command and talks to it over stdio.
func NewClientWithStdio(command string, args []string, opts ...ClientOption) (*Client, error) {
	return NewClientWithStdioProtocol(command, args, mcp.LATEST_PROTOCOL_VERSION, opts...)
}

// NewClientWithStdioProtocol is NewClientWithStdio with an explicit protocol version.
func NewClientWithStdioProtocol(command string, args []string, protocolVersion string, opts ...ClientOption) (*Client, error) {
	stdioClient, err := client.NewStdioMCPClient(command, nil, args...)
	if err != nil {
		return nil, err
	}
	if err := stdioClient.Start(context.Background()); err != nil {
		return nil, err
	}
	if err := initialize(stdioClient, protocolVersion); err != nil {
		_ = stdioClient.Close()
		return nil, err
	}
	return NewClient(stdioClient, opts...), nil
}

// NewClientWithStreamableHTTP connects to a `rolecast mcp serve --http` endpoint.
func NewClientWithStreamableHTTP(baseURL string, opts ...ClientOption) (*Client, error) {
	return NewClientWithStreamableHTTPProtocol(baseURL, mcp.LATEST_PROTOCOL_VERSION, opts...)
}

// NewClientWithStreamableHTTPProtocol is NewClientWithStreamableHTTP with an
// explicit protocol version.
func NewClientWithStreamableHTTPProtocol(baseURL, protocolVersion string, opts ...ClientOption) (*Client, error) {
	httpClient, err := client.NewStreamableHttpClient(baseURL)
	if err != nil {
		return nil, err
	}
	if err := httpClient.Start(context.Background()); err != nil {
		return nil, err
	}
	if err := initialize(httpClient, protocolVersion); err != nil {
		_ = httpClient.Close()
		return nil, err
	}
	return NewClient(httpClient, opts...), nil
}

func initialize(c *client.Client, protocolVersion string) error {
	if protocolVersion == "" {
		protocolVersion = mcp.LATEST_PROTOCOL_VERSION
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	initRequest := mcp.InitializeRequest{}
	initRequest.Params.ProtocolVersion = protocolVersion
	initRequest.Params.ClientInfo = mcp.Implementation{
		Name:    "rolecast-client",
		Version: "0.1.0",
	}
	_, err := c.Initialize(ctx, initRequest)
	return err
}

// SelectArm calls bandit_select and returns the chosen arm.
func (c *Client) SelectArm(ctx context.Context, armCount int) (int, error) {
	var out struct {
		Arm int `json:"arm"`
	}
	if err := c.callDomainTool(ctx, ToolBanditSelect, map[string]any{"arm_count": armCount}, &out); err != nil {
		return 0, err
	}
	return out.Arm, nil
}

// Update calls bandit_update. It is sent once: a transport error leaves it
// unknown whether the server applied the reward.
func (c *Client) Update(ctx context.Context, armCount, arm int, reward float64) error {
	var out struct {
		Updated bool `json:"updated"`
	}
	args := map[string]any{"arm_count": armCount, "chosen_arm": arm, "reward": reward}
	if err := c.callDomainTool(ctx, ToolBanditUpdate, args, &out); err != nil {
		return err
	}
	if !out.Updated {
		return rerrors.New(rerrors.CodeInternal, "bandit_update did not confirm the update", nil)
	}
	return nil
}

// InferRole calls role_infer with discrete evidence states.
func (c *Client) InferRole(ctx context.Context, cognitiveLoad, teamPerformance, reliance string) (role.Role, error) {
	return c.inferCall(ctx, ToolRoleInfer, map[string]any{
		role.VarCognitiveLoad:   cognitiveLoad,
		role.VarTeamPerformance: teamPerformance,
		role.VarReliance:        reliance,
	})
}

// InferSignals calls role_signals with raw readings.
func (c *Client) InferSignals(ctx context.Context, cognitiveLoad, teamPerformance, reliance float64) (role.Role, error) {
	return c.inferCall(ctx, ToolRoleSignals, map[string]any{
		role.VarCognitiveLoad:   cognitiveLoad,
		role.VarTeamPerformance: teamPerformance,
		role.VarReliance:        reliance,
	})
}

func (c *Client) inferCall(ctx context.Context, tool string, args map[string]any) (role.Role, error) {
	var out struct {
		Role string `json:"role"`
	}
	if err := c.callDomainTool(ctx, tool, args, &out); err != nil {
		return "", err
	}
	return role.Role(out.Role), nil
}

// callDomainTool calls tool and decodes its structured content into out.
// Tool-level errors come back as RolecastErrors carrying the server's code.
func (c *Client) callDomainTool(ctx context.Context, tool string, args map[string]any, out any) error {
	res, err := c.CallTool(ctx, tool, args)
	if err != nil {
		return err
	}
	if res.IsError {
		return toolFailure(tool, res)
	}
	if res.StructuredContent == nil {
		return rerrors.New(rerrors.CodeInternal, tool+" returned no structured content", nil)
	}
	raw, err := json.Marshal(res.StructuredContent)
	if err != nil {
		return rerrors.New(rerrors.CodeInternal, "encode "+tool+" result", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return rerrors.New(rerrors.CodeInternal, "decode "+tool+" result", err)
	}
	return nil
}

// ListTools retrieves the list of tools available on the server.
func (c *Client) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	if cached := c.cachedTools(); cached != nil {
		return cached, nil
	}
	var resp *mcp.ListToolsResult
	err := c.withRetry(ctx, c.maxRetries, func(reqCtx context.Context) error {
		var err error
		resp, err = c.mcpClient.ListTools(reqCtx, mcp.ListToolsRequest{})
		return err
	})
	if err != nil {
		return nil, err
	}
	c.storeTools(resp.Tools)
	return resp.Tools, nil
}

// CallTool executes a tool on the server. Only read-only tools are retried on
// transport errors.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	retries := 0
	if readOnlyTools[name] {
		retries = c.maxRetries
	}
	var res *mcp.CallToolResult
	err := c.withRetry(ctx, retries, func(reqCtx context.Context) error {
		var err error
		res, err = c.mcpClient.CallTool(reqCtx, req)
		return err
	})
	return res, err
}

// Close closes the client connection.
func (c *Client) Close() error {
	return c.mcpClient.Close()
}

// toolFailure turns a "CODE: message" tool error back into a RolecastError.
func toolFailure(tool string, res *mcp.CallToolResult) error {
	var parts []string
	for _, item := range res.Content {
		if text, ok := item.(mcp.TextContent); ok {
			parts = append(parts, text.Text)
		}
	}
	text := strings.Join(parts, "\n")
	code := rerrors.CodeInternal
	if prefix, rest, ok := strings.Cut(text, ": "); ok && prefix != "" && strings.ToUpper(prefix) == prefix && !strings.Contains(prefix, " ") {
		code, text = rerrors.ErrorCode(prefix), rest
	}
	return rerrors.New(code, fmt.Sprintf("%s: %s", tool, text), nil).
		WithContext("tool", tool)
}

func (c *Client) cachedTools() []mcp.Tool {
	if c.cacheTTL == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.toolsCache) == 0 || time.Now().After(c.cacheExpiry) {
		return nil
	}
	out := make([]mcp.Tool, len(c.toolsCache))
	copy(out, c.toolsCache)
	return out
}

func (c *Client) storeTools(tools []mcp.Tool) {
	if c.cacheTTL == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.toolsCache = make([]mcp.Tool, len(tools))
	copy(c.toolsCache, tools)
	c.cacheExpiry = time.Now().Add(c.cacheTTL)
}

func (c *Client) withRetry(ctx context.Context, retries int, fn func(context.Context) error) error {
	var lastErr error
	for i := 0; i <= retries; i++ {
		reqCtx, cancel := c.withTimeout(ctx)
		err := fn(reqCtx)
		cancel()
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		lastErr = err
		if i == retries {
			break
		}
		if err := c.sleepBackoff(ctx, i); err != nil {
			return err
		}
	}
	return lastErr
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) sleepBackoff(ctx context.Context, attempt int) error {
	wait := c.backoff * time.Duration(1<<attempt)
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
