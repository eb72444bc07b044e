package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jllopis/rolecast/pkg/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type globalFlags struct {
	ConfigArgs []string
	JSON       bool
	Help       bool
}

// command is the environment a subcommand runs in.
type command struct {
	global globalFlags
	app    *app
	stdout io.Writer
	stderr io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one CLI invocation and returns the exit status.
func run(ctx context.Context, argv []string, stdout, stderr io.Writer) int {
	global, args, err := parseGlobalFlags(argv)
	if err != nil {
		return report(stderr, global.JSON, err)
	}
	if global.Help || len(args) == 0 {
		printUsage(stdout)
		return exitOK
	}
	switch args[0] {
	case "help":
		printUsage(stdout)
		return exitOK
	case "version":
		fmt.Fprintln(stdout, version)
		return exitOK
	}

	cfg, err := config.LoadWithCLI(global.ConfigArgs)
	if err != nil {
		return report(stderr, global.JSON, NewConfigError(err, global.ConfigArgs))
	}
	a, err := newApp(cfg, stderr)
	if err != nil {
		return report(stderr, global.JSON, err)
	}
	defer func() {
		if err := a.close(); err != nil {
			a.logger.Warn("shutdown failed", "error", err)
		}
	}()

	cmd := &command{global: global, app: a, stdout: stdout, stderr: stderr}
	switch args[0] {
	case "bandit":
		err = cmd.runBandit(ctx, args[1:])
	case "role":
		err = cmd.runRole(ctx, args[1:])
	case "decisions":
		err = cmd.runDecisions(ctx, args[1:])
	case "mcp":
		err = cmd.runMCP(ctx, args[1:])
	default:
		err = NewUsageError(fmt.Sprintf("unknown command %q", args[0]))
	}
	if err != nil {
		return report(stderr, global.JSON, err)
	}
	return exitOK
}

func parseGlobalFlags(args []string) (globalFlags, []string, error) {
	var flags globalFlags

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return flags, args[i+1:], nil
		}
		if !strings.HasPrefix(arg, "-") {
			return flags, args[i:], nil
		}
		switch {
		case arg == "-h" || arg == "--help":
			flags.Help = true
			return flags, nil, nil
		case arg == "--json":
			flags.JSON = true
		case arg == "--config", arg == "--set", arg == "--profile", arg == "--env":
			if i+1 >= len(args) {
				return flags, nil, NewUsageError(fmt.Sprintf("missing value for %s", arg))
			}
			flags.ConfigArgs = append(flags.ConfigArgs, arg, args[i+1])
			i++
		case strings.HasPrefix(arg, "--config="), strings.HasPrefix(arg, "--set="),
			strings.HasPrefix(arg, "--profile="), strings.HasPrefix(arg, "--env="):
			flags.ConfigArgs = append(flags.ConfigArgs, arg)
		default:
			return flags, nil, NewUsageError(fmt.Sprintf("unknown global flag %q", arg))
		}
	}
	return flags, nil, nil
}

// configPath returns the --config value from the collected config args.
func configPath(args []string) string {
	for i, arg := range args {
		if arg == "--config" && i+1 < len(args) {
			return args[i+1]
		}
		if v, ok := strings.CutPrefix(arg, "--config="); ok {
			return v
		}
	}
	return ""
}

func report(stderr io.Writer, asJSON bool, err error) int {
	WrapDomainError(err).PrintError(stderr, asJSON)
	return exitCode(err)
}

func (c *command) printJSON(value any) error {
	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, string(payload))
	return nil
}

func ensureNoArgs(args []string, usage string) error {
	if len(args) > 0 {
		return NewUsageError(fmt.Sprintf("%s (unexpected args: %v)", usage, args))
	}
	return nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `rolecast picks the facilitation role to surface next.

Usage:
  rolecast [global flags] <command> [args]

Global flags:
  --config <path>      Path to a YAML or JSON config file
  --profile <name>     Merge <config>.<name>.yaml over the config file (alias --env)
  --set key=value      Override config (repeatable)
  --json               JSON output

Commands:
  bandit select <arm_count>
  bandit update <arm_count> <chosen_arm> <reward>
  bandit show <arm_count>
  role infer <cognitive_load> <team_performance> <reliance>    (low|high)
  role signals <cognitive_load> <team_performance> <reliance>  (numeric)
  role posterior [variable=state ...]
  role network
  decisions list [--kind select|update|infer] [--limit N] [--since 1h]
  mcp serve [--http <addr>] [--watch]
  mcp tools <url>
  mcp call <url> <tool> [key=value ...]
  version
  help`)
}
