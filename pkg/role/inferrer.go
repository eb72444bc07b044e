// Copyright 2026 © The Rolecast Authors
// SPDX-License-Identifier: Apache-2.0

package role

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/rolecast/pkg/bayes"
	"github.com/jllopis/rolecast/pkg/decisionlog"
	"github.com/jllopis/rolecast/pkg/telemetry"
)

const component = "role"

// Inferrer runs role inferences with logging, tracing, metrics and an
// optional decision log. The network is immutable, so an Inferrer is safe for
// concurrent use as long as its decision log is.
type Inferrer struct {
	mu         sync.RWMutex
	thresholds Thresholds
	logger     *slog.Logger
	metrics    *telemetry.DecisionMetrics
	log        decisionlog.Store
	tracer     trace.Tracer
}

// InferrerOption configures an Inferrer.
type InferrerOption func(*Inferrer)

// WithThresholds sets the signal thresholds used by InferSignals.
func WithThresholds(t Thresholds) InferrerOption {
	return func(i *Inferrer) {
		i.thresholds = t
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) InferrerOption {
	return func(i *Inferrer) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// WithMetrics sets the decision metrics sink.
func WithMetrics(m *telemetry.DecisionMetrics) InferrerOption {
	return func(i *Inferrer) {
		i.metrics = m
	}
}

// WithDecisionLog records every inference in store.
func WithDecisionLog(store decisionlog.Store) InferrerOption {
	return func(i *Inferrer) {
		i.log = store
	}
}

// NewInferrer returns an Inferrer over the role network.
func NewInferrer(opts ...InferrerOption) *Inferrer {
	i := &Inferrer{
		thresholds: DefaultThresholds(),
		logger:     slog.Default(),
		tracer:     otel.Tracer("rolecast/role"),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Thresholds returns the configured signal thresholds.
func (i *Inferrer) Thresholds() Thresholds {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.thresholds
}

// SetThresholds replaces the signal thresholds, e.g. after a config reload.
func (i *Inferrer) SetThresholds(t Thresholds) {
	i.mu.Lock()
	i.thresholds = t
	i.mu.Unlock()
}

// Infer returns the most probable role for the given evidence states.
func (i *Inferrer) Infer(ctx context.Context, cognitiveLoad, teamPerformance, reliance string) (Role, error) {
	evidence := map[string]string{
		VarCognitiveLoad:   cognitiveLoad,
		VarTeamPerformance: teamPerformance,
		VarReliance:        reliance,
	}
	return i.infer(ctx, evidence)
}

// InferSignals discretises raw readings and infers the role.
func (i *Inferrer) InferSignals(ctx context.Context, cognitiveLoad, teamPerformance, reliance float64) (Role, error) {
	evidence := i.Thresholds().Evidence(cognitiveLoad, teamPerformance, reliance)
	i.logger.DebugContext(ctx, "signals discretised",
		"cognitive_load", cognitiveLoad,
		"team_performance", teamPerformance,
		"reliance", reliance,
		"evidence", evidence,
	)
	return i.infer(ctx, evidence)
}

// Posterior returns P(role | evidence) for partial or full evidence.
func (i *Inferrer) Posterior(ctx context.Context, evidence map[string]string) (*bayes.Distribution, error) {
	ctx, span := i.tracer.Start(ctx, "role.posterior",
		trace.WithAttributes(telemetry.EvidenceAttributes(evidence, "")...))
	defer span.End()

	d, err := Posterior(evidence)
	if err != nil {
		return nil, i.fail(ctx, span, "posterior", err)
	}
	return d, nil
}

func (i *Inferrer) infer(ctx context.Context, evidence map[string]string) (Role, error) {
	ctx, span := i.tracer.Start(ctx, "role.infer",
		trace.WithAttributes(telemetry.EvidenceAttributes(evidence, "")...))
	defer span.End()

	r, err := InferRole(evidence[VarCognitiveLoad], evidence[VarTeamPerformance], evidence[VarReliance])
	if err != nil {
		return "", i.fail(ctx, span, "infer", err)
	}

	span.SetAttributes(telemetry.EvidenceAttributes(nil, string(r))...)
	i.metrics.RecordInference(ctx, string(r))
	i.logger.DebugContext(ctx, "role inferred", "role", r, "evidence", evidence)
	if i.log != nil {
		entry := decisionlog.Entry{Kind: decisionlog.KindInfer, Role: string(r), Evidence: evidence}
		if err := i.log.Record(ctx, entry); err != nil {
			i.logger.WarnContext(ctx, "decision log write failed", "kind", entry.Kind, "error", err)
		}
	}
	return r, nil
}

func (i *Inferrer) fail(ctx context.Context, span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	i.metrics.RecordError(ctx, err, component)
	return fmt.Errorf("%s: %w", op, err)
}
