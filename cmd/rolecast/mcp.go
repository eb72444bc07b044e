// Copyright 2026 © The Rolecast Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"github.com/jllopis/rolecast/pkg/config"
	rerrors "github.com/jllopis/rolecast/pkg/errors"
	rolecastmcp "github.com/jllopis/rolecast/pkg/mcp"
	"github.com/jllopis/rolecast/pkg/role"
)

const (
	usageMCPServe = "rolecast mcp serve [--http <addr>] [--watch]"
	usageMCPTools = "rolecast mcp tools <url>"
	usageMCPCall  = "rolecast mcp call <url> <tool> [key=value ...]"
)

type mcpToolResult struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (c *command) runMCP(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return NewUsageError("rolecast mcp serve|tools|call ...")
	}
	switch args[0] {
	case "serve":
		return c.mcpServe(ctx, args[1:])
	case "tools":
		return c.mcpTools(ctx, args[1:])
	case "call":
		return c.mcpCall(ctx, args[1:])
	default:
		return NewUsageError(fmt.Sprintf("unknown mcp mode %q", args[0]))
	}
}

func (c *command) mcpServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("mcp serve", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	httpAddr := fs.String("http", "", "serve streamable HTTP on this address instead of stdio")
	watch := fs.Bool("watch", false, "reload role thresholds when the config file changes")
	if err := fs.Parse(args); err != nil {
		return NewUsageError(usageMCPServe)
	}
	if err := ensureNoArgs(fs.Args(), usageMCPServe); err != nil {
		return err
	}

	engine, err := c.app.banditEngine()
	if err != nil {
		return err
	}
	logger := c.app.logger

	if *watch {
		path := configPath(c.global.ConfigArgs)
		if path == "" {
			return NewUsageError("--watch needs --config")
		}
		watcher, _, err := config.WatchConfig(ctx, path, configProfile(c.global.ConfigArgs),
			config.WithWatchLogger(logger))
		if err != nil {
			return NewConfigError(err, c.global.ConfigArgs)
		}
		defer watcher.Stop()
		watcher.OnChange(func(cfg *config.Config) {
			c.app.inferrer.SetThresholds(thresholds(cfg.Role))
			logger.Info("role thresholds reloaded",
				"cognitive_load", cfg.Role.CognitiveLoadThreshold,
				"team_performance", cfg.Role.TeamPerformanceThreshold,
				"reliance", cfg.Role.RelianceThreshold,
			)
		})
	}

	srv := rolecastmcp.NewServer(serviceName, version, engine, c.app.inferrer,
		rolecastmcp.WithServerLogger(logger))

	if *httpAddr == "" {
		logger.Info("serving MCP tools on stdio")
		return srv.ServeStdio()
	}

	httpSrv := srv.StreamableHTTPServer()
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.Start(*httpAddr)
	}()
	logger.Info("serving MCP tools over streamable HTTP", "addr", *httpAddr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	}
}

func (c *command) mcpTools(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return NewUsageError(usageMCPTools)
	}
	client, err := rolecastmcp.NewClientWithStreamableHTTP(args[0])
	if err != nil {
		return connectionError(err, args[0])
	}
	defer client.Close()

	tools, err := client.ListTools(ctx)
	if err != nil {
		return connectionError(err, args[0])
	}
	results := make([]mcpToolResult, 0, len(tools))
	for _, tool := range tools {
		results = append(results, mcpToolResult{Name: tool.Name, Description: strings.TrimSpace(tool.Description)})
	}
	if c.global.JSON {
		return c.printJSON(results)
	}
	w := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TOOL\tDESCRIPTION")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%s\n", r.Name, r.Description)
	}
	return w.Flush()
}

func (c *command) mcpCall(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return NewUsageError(usageMCPCall)
	}
	url, tool := args[0], args[1]
	toolArgs := make(map[string]string, len(args)-2)
	for _, arg := range args[2:] {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return NewInvalidArgumentError("tool argument", arg, "expected key=value")
		}
		toolArgs[key] = raw
	}

	client, err := rolecastmcp.NewClientWithStreamableHTTP(url)
	if err != nil {
		return connectionError(err, url)
	}
	defer client.Close()

	switch tool {
	case rolecastmcp.ToolBanditSelect:
		armCount, err := parseInt("arm_count", toolArgs["arm_count"])
		if err != nil {
			return err
		}
		arm, err := client.SelectArm(ctx, armCount)
		if err != nil {
			return remoteError(err, url)
		}
		if c.global.JSON {
			return c.printJSON(selectResult{Arm: arm})
		}
		fmt.Fprintln(c.stdout, arm)
		return nil

	case rolecastmcp.ToolBanditUpdate:
		armCount, err := parseInt("arm_count", toolArgs["arm_count"])
		if err != nil {
			return err
		}
		arm, err := parseInt("chosen_arm", toolArgs["chosen_arm"])
		if err != nil {
			return err
		}
		reward, err := strconv.ParseFloat(toolArgs["reward"], 64)
		if err != nil {
			return NewInvalidArgumentError("reward", toolArgs["reward"], "not a number")
		}
		if err := client.Update(ctx, armCount, arm, reward); err != nil {
			return remoteError(err, url)
		}
		if c.global.JSON {
			return c.printJSON(map[string]bool{"updated": true})
		}
		fmt.Fprintln(c.stdout, "updated")
		return nil

	case rolecastmcp.ToolRoleInfer:
		r, err := client.InferRole(ctx, toolArgs[role.VarCognitiveLoad],
			toolArgs[role.VarTeamPerformance], toolArgs[role.VarReliance])
		if err != nil {
			return remoteError(err, url)
		}
		return c.printRole(r, nil)

	case rolecastmcp.ToolRoleSignals:
		var readings [3]float64
		for i, name := range []string{role.VarCognitiveLoad, role.VarTeamPerformance, role.VarReliance} {
			v, err := strconv.ParseFloat(toolArgs[name], 64)
			if err != nil {
				return NewInvalidArgumentError(name, toolArgs[name], "not a number")
			}
			readings[i] = v
		}
		r, err := client.InferSignals(ctx, readings[0], readings[1], readings[2])
		if err != nil {
			return remoteError(err, url)
		}
		return c.printRole(r, nil)
	}

	generic := make(map[string]interface{}, len(toolArgs))
	for key, raw := range toolArgs {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		generic[key] = v
	}
	result, err := client.CallTool(ctx, tool, generic)
	if err != nil {
		return connectionError(err, url)
	}
	text := toolText(result)
	if result.IsError {
		return rerrors.New(rerrors.CodeInternal, "tool "+tool+" failed: "+text, nil)
	}
	if c.global.JSON && result.StructuredContent != nil {
		return c.printJSON(result.StructuredContent)
	}
	fmt.Fprintln(c.stdout, text)
	return nil
}

// remoteError keeps tool errors as they are and reports transport failures
// as connection errors.
func remoteError(err error, url string) error {
	var re *rerrors.RolecastError
	if errors.As(err, &re) {
		return err
	}
	return connectionError(err, url)
}

func toolText(result *mcptypes.CallToolResult) string {
	var parts []string
	for _, item := range result.Content {
		if text, ok := item.(mcptypes.TextContent); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func connectionError(err error, url string) *CLIError {
	re := rerrors.New(rerrors.CodeInternal, "mcp connection failed", err).
		WithContext("url", url).
		WithRecoverable(true)
	return NewCLIError(re, fmt.Sprintf("check that 'rolecast mcp serve --http' is running at %s", url))
}

// configProfile returns the --profile or --env value from the config args.
func configProfile(args []string) string {
	for i, arg := range args {
		if (arg == "--profile" || arg == "--env") && i+1 < len(args) {
			return args[i+1]
		}
		for _, prefix := range []string{"--profile=", "--env="} {
			if v, ok := strings.CutPrefix(arg, prefix); ok {
				return v
			}
		}
	}
	return ""
}
