// SPDX-License-Identifier: Apache-2.0
// Package telemetry provides logging, tracing and decision metrics for rolecast.
package telemetry

import (
	"context"
	stderrors "errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jllopis/rolecast/pkg/errors"
)

// DecisionMetrics counts bandit and role decisions and the errors around them.
// A nil *DecisionMetrics is valid and records nothing.
type DecisionMetrics struct {
	selections metric.Int64Counter
	updates    metric.Int64Counter
	rewards    metric.Float64Histogram
	resets     metric.Int64Counter
	inferences metric.Int64Counter
	errors     metric.Int64Counter
	recoveries metric.Int64Counter
}

// NewDecisionMetrics creates the instruments on the global meter provider.
func NewDecisionMetrics(_ context.Context) (*DecisionMetrics, error) {
	meter := otel.Meter("rolecast/decisions")

	selections, err := meter.Int64Counter(
		"rolecast.bandit.selections",
		metric.WithDescription("Arm selections by arm and exploration"),
	)
	if err != nil {
		return nil, err
	}
	updates, err := meter.Int64Counter(
		"rolecast.bandit.updates",
		metric.WithDescription("Reward updates by arm"),
	)
	if err != nil {
		return nil, err
	}
	rewards, err := meter.Float64Histogram(
		"rolecast.bandit.reward",
		metric.WithDescription("Observed rewards"),
	)
	if err != nil {
		return nil, err
	}
	resets, err := meter.Int64Counter(
		"rolecast.bandit.state_resets",
		metric.WithDescription("Persisted states discarded by restore outcome"),
	)
	if err != nil {
		return nil, err
	}
	inferences, err := meter.Int64Counter(
		"rolecast.role.inferences",
		metric.WithDescription("Role inferences by inferred role"),
	)
	if err != nil {
		return nil, err
	}
	errCounter, err := meter.Int64Counter(
		"rolecast.errors.total",
		metric.WithDescription("Errors by code and component"),
	)
	if err != nil {
		return nil, err
	}
	recoveries, err := meter.Int64Counter(
		"rolecast.errors.recovered",
		metric.WithDescription("Errors recovered locally by code"),
	)
	if err != nil {
		return nil, err
	}

	return &DecisionMetrics{
		selections: selections,
		updates:    updates,
		rewards:    rewards,
		resets:     resets,
		inferences: inferences,
		errors:     errCounter,
		recoveries: recoveries,
	}, nil
}

// RecordSelection counts one arm selection.
func (m *DecisionMetrics) RecordSelection(ctx context.Context, armCount, arm int, explored bool) {
	if m == nil {
		return
	}
	m.selections.Add(ctx, 1, metric.WithAttributes(SelectionAttributes(armCount, arm, explored)...))
}

// RecordUpdate counts one reward update and records the reward.
func (m *DecisionMetrics) RecordUpdate(ctx context.Context, armCount, arm int, reward float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.Int(AttrBanditArmCount, armCount),
		attribute.Int(AttrBanditArm, arm),
	)
	m.updates.Add(ctx, 1, attrs)
	m.rewards.Record(ctx, reward, attrs)
}

// RecordStateReset counts a persisted state that was not reused.
func (m *DecisionMetrics) RecordStateReset(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.resets.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrBanditRestore, outcome)))
}

// RecordInference counts one role inference.
func (m *DecisionMetrics) RecordInference(ctx context.Context, role string) {
	if m == nil {
		return
	}
	m.inferences.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrRoleName, role)))
}

// RecordError counts err under its error code for component.
func (m *DecisionMetrics) RecordError(ctx context.Context, err error, component string) {
	if m == nil || err == nil {
		return
	}
	code, recoverable := "UNKNOWN", "unknown"
	var re *errors.RolecastError
	if stderrors.As(err, &re) {
		code = string(re.Code)
		recoverable = re.RecoverableString()
	}
	m.errors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String(AttrErrorCode, code),
			attribute.String(AttrComponent, component),
			attribute.String(AttrRecoverable, recoverable),
		),
	)
}

// RecordRecovery counts an error that was handled without failing the call.
func (m *DecisionMetrics) RecordRecovery(ctx context.Context, code errors.ErrorCode) {
	if m == nil {
		return
	}
	m.recoveries.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrErrorCode, string(code))))
}
