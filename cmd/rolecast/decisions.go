package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/jllopis/rolecast/pkg/decisionlog"
)

const usageDecisionsList = "rolecast decisions list [--kind select|update|infer] [--limit N] [--since DURATION]"

func (c *command) runDecisions(ctx context.Context, args []string) error {
	if len(args) == 0 || args[0] != "list" {
		return NewUsageError(usageDecisionsList)
	}
	if c.app.decLog == nil {
		return NewUsageError("decision log is disabled; set decision_log.enabled=true")
	}

	fs := flag.NewFlagSet("decisions list", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	kind := fs.String("kind", "", "filter by kind")
	limit := fs.Int("limit", 50, "maximum entries")
	since := fs.Duration("since", 0, "only entries newer than this duration")
	if err := fs.Parse(args[1:]); err != nil {
		return NewUsageError(usageDecisionsList)
	}
	if err := ensureNoArgs(fs.Args(), usageDecisionsList); err != nil {
		return err
	}
	switch decisionlog.Kind(*kind) {
	case "", decisionlog.KindSelect, decisionlog.KindUpdate, decisionlog.KindInfer:
	default:
		return NewInvalidArgumentError("kind", *kind, "expected select, update or infer")
	}

	filter := decisionlog.Filter{Kind: decisionlog.Kind(*kind), Limit: *limit}
	if *since > 0 {
		filter.Since = time.Now().Add(-*since)
	}
	entries, err := c.app.decLog.List(ctx, filter)
	if err != nil {
		return err
	}
	if c.global.JSON {
		return c.printJSON(entries)
	}

	w := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tKIND\tDETAIL")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\n", e.RecordedAt.Format(time.RFC3339), e.Kind, describeEntry(e))
	}
	return w.Flush()
}

func describeEntry(e decisionlog.Entry) string {
	switch e.Kind {
	case decisionlog.KindSelect:
		detail := "arm " + strconv.Itoa(e.Arm) + " of " + strconv.Itoa(e.ArmCount)
		if e.Explored {
			detail += " (explored)"
		}
		return detail
	case decisionlog.KindUpdate:
		return fmt.Sprintf("arm %d of %d reward %g", e.Arm, e.ArmCount, e.Reward)
	default:
		return fmt.Sprintf("%s %v", e.Role, e.Evidence)
	}
}
