// Copyright 2026 © The Rolecast Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"strconv"
)

const (
	usageBanditSelect = "rolecast bandit select <arm_count>"
	usageBanditUpdate = "rolecast bandit update <arm_count> <chosen_arm> <reward>"
	usageBanditShow   = "rolecast bandit show <arm_count>"
)

type selectResult struct {
	Arm int `json:"arm"`
}

func (c *command) runBandit(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return NewUsageError("rolecast bandit select|update|show ...")
	}
	switch args[0] {
	case "select":
		return c.banditSelect(ctx, args[1:])
	case "update":
		return c.banditUpdate(ctx, args[1:])
	case "show":
		return c.banditShow(ctx, args[1:])
	default:
		return NewUsageError(fmt.Sprintf("unknown bandit mode %q", args[0]))
	}
}

func (c *command) banditSelect(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return NewUsageError(usageBanditSelect)
	}
	armCount, err := parseInt("arm_count", args[0])
	if err != nil {
		return err
	}
	engine, err := c.app.banditEngine()
	if err != nil {
		return err
	}
	arm, err := engine.Select(ctx, armCount)
	if err != nil {
		return err
	}
	if c.global.JSON {
		return c.printJSON(selectResult{Arm: arm})
	}
	fmt.Fprintln(c.stdout, arm)
	return nil
}

func (c *command) banditUpdate(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return NewUsageError(usageBanditUpdate)
	}
	armCount, err := parseInt("arm_count", args[0])
	if err != nil {
		return err
	}
	arm, err := parseInt("chosen_arm", args[1])
	if err != nil {
		return err
	}
	reward, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return NewInvalidArgumentError("reward", args[2], "not a number")
	}
	engine, err := c.app.banditEngine()
	if err != nil {
		return err
	}
	if err := engine.Update(ctx, armCount, arm, reward); err != nil {
		return err
	}
	if c.global.JSON {
		return c.printJSON(map[string]bool{"updated": true})
	}
	fmt.Fprintln(c.stdout, "updated")
	return nil
}

func (c *command) banditShow(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return NewUsageError(usageBanditShow)
	}
	armCount, err := parseInt("arm_count", args[0])
	if err != nil {
		return err
	}
	engine, err := c.app.banditEngine()
	if err != nil {
		return err
	}
	state, err := engine.Snapshot(ctx, armCount)
	if err != nil {
		return err
	}
	return c.printJSON(state)
}

func parseInt(name, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, NewInvalidArgumentError(name, value, "not an integer")
	}
	return n, nil
}
