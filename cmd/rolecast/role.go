// Copyright 2026 © The Rolecast Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/jllopis/rolecast/pkg/role"
)

const (
	usageRoleInfer     = "rolecast role infer <cognitive_load> <team_performance> <reliance>"
	usageRoleSignals   = "rolecast role signals <cognitive_load> <team_performance> <reliance>"
	usageRolePosterior = "rolecast role posterior [variable=state ...]"
	usageRoleNetwork   = "rolecast role network"
)

type inferResult struct {
	Role     string            `json:"role"`
	Evidence map[string]string `json:"evidence,omitempty"`
}

type posteriorRow struct {
	Role        string  `json:"role"`
	Probability float64 `json:"probability"`
}

func (c *command) runRole(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return NewUsageError("rolecast role infer|signals|posterior|network ...")
	}
	switch args[0] {
	case "infer":
		return c.roleInfer(ctx, args[1:])
	case "signals":
		return c.roleSignals(ctx, args[1:])
	case "posterior":
		return c.rolePosterior(ctx, args[1:])
	case "network":
		return c.roleNetwork(args[1:])
	default:
		return NewUsageError(fmt.Sprintf("unknown role mode %q", args[0]))
	}
}

func (c *command) roleInfer(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return NewUsageError(usageRoleInfer)
	}
	r, err := c.app.inferrer.Infer(ctx, args[0], args[1], args[2])
	if err != nil {
		return err
	}
	return c.printRole(r, nil)
}

func (c *command) roleSignals(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return NewUsageError(usageRoleSignals)
	}
	names := []string{role.VarCognitiveLoad, role.VarTeamPerformance, role.VarReliance}
	var readings [3]float64
	for i, raw := range args {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return NewInvalidArgumentError(names[i], raw, "not a number")
		}
		readings[i] = v
	}
	r, err := c.app.inferrer.InferSignals(ctx, readings[0], readings[1], readings[2])
	if err != nil {
		return err
	}
	evidence := c.app.inferrer.Thresholds().Evidence(readings[0], readings[1], readings[2])
	return c.printRole(r, evidence)
}

func (c *command) printRole(r role.Role, evidence map[string]string) error {
	if c.global.JSON {
		return c.printJSON(inferResult{Role: string(r), Evidence: evidence})
	}
	fmt.Fprintln(c.stdout, r)
	return nil
}

func (c *command) rolePosterior(ctx context.Context, args []string) error {
	evidence := make(map[string]string, len(args))
	for _, arg := range args {
		name, state, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return NewInvalidArgumentError("evidence", arg, "expected variable=state")
		}
		evidence[name] = state
	}
	d, err := c.app.inferrer.Posterior(ctx, evidence)
	if err != nil {
		return err
	}

	values := d.Values()
	rows := make([]posteriorRow, len(role.Roles))
	for i, r := range role.Roles {
		rows[i] = posteriorRow{Role: string(r), Probability: values[i]}
	}
	if c.global.JSON {
		return c.printJSON(rows)
	}
	w := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ROLE\tPROBABILITY")
	for _, row := range rows {
		fmt.Fprintf(w, "%s\t%.4f\n", row.Role, row.Probability)
	}
	return w.Flush()
}

func (c *command) roleNetwork(args []string) error {
	if err := ensureNoArgs(args, usageRoleNetwork); err != nil {
		return err
	}
	if c.global.JSON {
		return c.printJSON(role.Describe())
	}
	data, err := role.DescribeYAML()
	if err != nil {
		return err
	}
	_, err = c.stdout.Write(data)
	return err
}
