// SPDX-License-Identifier: Apache-2.0
package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/jllopis/rolecast/pkg/errors"
)

func newTestMetrics(t *testing.T) (*DecisionMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	previous := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() {
		otel.SetMeterProvider(previous)
		_ = provider.Shutdown(context.Background())
	})

	m, err := NewDecisionMetrics(context.Background())
	if err != nil {
		t.Fatalf("failed to create decision metrics: %v", err)
	}
	return m, reader
}

func counterTotal(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect failed: %v", err)
	}
	var total int64
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s is not an int64 sum: %T", name, m.Data)
			}
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestDecisionMetricsCounts(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordSelection(ctx, 3, 1, false)
	m.RecordSelection(ctx, 3, 2, true)
	m.RecordUpdate(ctx, 3, 1, 4.5)
	m.RecordStateReset(ctx, "reset")
	m.RecordInference(ctx, "Facilitator")
	m.RecordError(ctx, errors.New(errors.CodeOutOfRange, "bad arm", nil), "bandit")
	m.RecordRecovery(ctx, errors.CodeConfigMismatch)

	checks := map[string]int64{
		"rolecast.bandit.selections":   2,
		"rolecast.bandit.updates":      1,
		"rolecast.bandit.state_resets": 1,
		"rolecast.role.inferences":     1,
		"rolecast.errors.total":        1,
		"rolecast.errors.recovered":    1,
	}
	for name, want := range checks {
		if got := counterTotal(t, reader, name); got != want {
			t.Errorf("%s: expected %d, got %d", name, want, got)
		}
	}
}

func TestRecordErrorIgnoresNil(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.RecordError(context.Background(), nil, "bandit")
	if got := counterTotal(t, reader, "rolecast.errors.total"); got != 0 {
		t.Fatalf("expected no errors recorded, got %d", got)
	}
}

func TestNilDecisionMetrics(t *testing.T) {
	var m *DecisionMetrics
	ctx := context.Background()

	m.RecordSelection(ctx, 2, 0, false)
	m.RecordUpdate(ctx, 2, 0, 1)
	m.RecordStateReset(ctx, "fresh")
	m.RecordInference(ctx, "Observer")
	m.RecordError(ctx, errors.New(errors.CodeInternal, "boom", nil), "role")
	m.RecordRecovery(ctx, errors.CodeConfigMismatch)
}
