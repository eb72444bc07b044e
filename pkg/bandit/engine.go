// Copyright 2026 © The Rolecast Authors
// SPDX-License-Identifier: Apache-2.0

package bandit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/rolecast/pkg/decisionlog"
	rerrors "github.com/jllopis/rolecast/pkg/errors"
	"github.com/jllopis/rolecast/pkg/telemetry"
)

const component = "bandit"

// Engine runs one bandit decision per call against a Store. All working state
// lives in the store, so calls may arrive from separate processes as long as
// they do not overlap. Calls on one Engine are serialized: each holds mu from
// restore to save, which also guards rng.
type Engine struct {
	mu      sync.Mutex
	store   Store
	epsilon float64
	rng     Rand
	logger  *slog.Logger
	metrics *telemetry.DecisionMetrics
	log     decisionlog.Store
	tracer  trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithEpsilon sets the exploration probability used for fresh states.
func WithEpsilon(epsilon float64) Option {
	return func(e *Engine) {
		e.epsilon = epsilon
	}
}

// WithRand sets the randomness source used for exploration.
func WithRand(r Rand) Option {
	return func(e *Engine) {
		if r != nil {
			e.rng = r
		}
	}
}

// WithSeed seeds a PCG generator for reproducible exploration.
func WithSeed(seed uint64) Option {
	return func(e *Engine) {
		e.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics sets the decision metrics sink.
func WithMetrics(m *telemetry.DecisionMetrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithDecisionLog records every successful decision in store.
func WithDecisionLog(store decisionlog.Store) Option {
	return func(e *Engine) {
		e.log = store
	}
}

// NewEngine creates an engine over store.
func NewEngine(store Store, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("bandit: store is nil")
	}
	e := &Engine{
		store:   store,
		epsilon: DefaultEpsilon,
		logger:  slog.Default(),
		tracer:  otel.Tracer("rolecast/bandit"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64()))
	}
	if err := validateEpsilon(e.epsilon); err != nil {
		return nil, err
	}
	return e, nil
}

// Select restores the state for armCount arms, draws an arm and saves the
// state back. The save happens even though selection changes nothing, so a
// discarded or missing state is replaced by a fresh one on disk.
func (e *Engine) Select(ctx context.Context, armCount int) (int, error) {
	ctx, span := e.tracer.Start(ctx, "bandit.select",
		trace.WithAttributes(attribute.Int(telemetry.AttrBanditArmCount, armCount)))
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.restore(ctx, armCount)
	if err != nil {
		return 0, e.fail(ctx, span, "select", err)
	}

	choice := state.Choose(e.rng)
	if err := e.store.Save(ctx, state); err != nil {
		return 0, e.fail(ctx, span, "select", err)
	}

	span.SetAttributes(telemetry.SelectionAttributes(armCount, choice.Arm, choice.Explored)...)
	e.metrics.RecordSelection(ctx, armCount, choice.Arm, choice.Explored)
	e.logger.DebugContext(ctx, "bandit arm selected",
		"arm_count", armCount,
		"arm", choice.Arm,
		"explored", choice.Explored,
		"epsilon", state.Epsilon,
	)
	e.record(ctx, decisionlog.Entry{
		Kind:     decisionlog.KindSelect,
		ArmCount: armCount,
		Arm:      choice.Arm,
		Explored: choice.Explored,
	})
	return choice.Arm, nil
}

// Update restores the state for armCount arms, folds reward into arm's mean
// and saves the state. A rejected update writes nothing.
func (e *Engine) Update(ctx context.Context, armCount, arm int, reward float64) error {
	ctx, span := e.tracer.Start(ctx, "bandit.update",
		trace.WithAttributes(telemetry.UpdateAttributes(armCount, arm, reward)...))
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.restore(ctx, armCount)
	if err != nil {
		return e.fail(ctx, span, "update", err)
	}
	if err := state.Update(arm, reward); err != nil {
		return e.fail(ctx, span, "update", err)
	}
	if err := e.store.Save(ctx, state); err != nil {
		return e.fail(ctx, span, "update", err)
	}

	e.metrics.RecordUpdate(ctx, armCount, arm, reward)
	e.logger.DebugContext(ctx, "bandit reward recorded",
		"arm_count", armCount,
		"arm", arm,
		"reward", reward,
		"pulls", state.Counts[arm],
		"mean", state.Values[arm],
	)
	e.record(ctx, decisionlog.Entry{
		Kind:     decisionlog.KindUpdate,
		ArmCount: armCount,
		Arm:      arm,
		Reward:   reward,
	})
	return nil
}

// Snapshot returns the state a call for armCount arms would start from,
// without saving anything.
func (e *Engine) Snapshot(ctx context.Context, armCount int) (*State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.restore(ctx, armCount)
	if err != nil {
		e.metrics.RecordError(ctx, err, component)
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return state, nil
}

func (e *Engine) restore(ctx context.Context, armCount int) (*State, error) {
	r, err := Restore(ctx, e.store, armCount, e.epsilon)
	if err != nil {
		return nil, err
	}
	switch r.Outcome {
	case Reset:
		e.logger.WarnContext(ctx, "bandit state reset",
			"arm_count", armCount,
			"reason", r.Cause,
		)
		e.metrics.RecordStateReset(ctx, r.Outcome.String())
		e.metrics.RecordRecovery(ctx, rerrors.CodeConfigMismatch)
	case Fresh:
		if r.Cause != nil {
			e.logger.WarnContext(ctx, "bandit state unusable, starting fresh",
				"arm_count", armCount,
				"reason", r.Cause,
			)
			e.metrics.RecordStateReset(ctx, r.Outcome.String())
		}
	}
	return r.State, nil
}

func (e *Engine) record(ctx context.Context, entry decisionlog.Entry) {
	if e.log == nil {
		return
	}
	if err := e.log.Record(ctx, entry); err != nil {
		e.logger.WarnContext(ctx, "decision log write failed", "kind", entry.Kind, "error", err)
	}
}

func (e *Engine) fail(ctx context.Context, span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	e.metrics.RecordError(ctx, err, component)
	return fmt.Errorf("%s: %w", op, err)
}
