// Copyright 2026 © The Rolecast Authors
// SPDX-License-Identifier: Apache-2.0

package bayes

import (
	"math"
	"testing"
)

func mustFactor(t *testing.T, vars []string, card []int, values []float64) *Factor {
	t.Helper()
	f, err := NewFactor(vars, card, values)
	if err != nil {
		t.Fatalf("NewFactor failed: %v", err)
	}
	return f
}

func assertValues(t *testing.T, got, want []float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d values, got %d (%v)", len(want), len(got), got)
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Fatalf("value %d: expected %v, got %v (all %v)", i, want[i], got[i], got)
		}
	}
}

func TestNewFactorValidation(t *testing.T) {
	tests := []struct {
		name   string
		vars   []string
		card   []int
		values []float64
	}{
		{"card mismatch", []string{"a"}, []int{2, 2}, []float64{1, 2}},
		{"zero card", []string{"a"}, []int{0}, nil},
		{"duplicate", []string{"a", "a"}, []int{2, 2}, make([]float64, 4)},
		{"size", []string{"a", "b"}, []int{2, 3}, make([]float64, 5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewFactor(tt.vars, tt.card, tt.values); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestFactorValueRowMajor(t *testing.T) {
	f := mustFactor(t, []string{"a", "b"}, []int{2, 3}, []float64{1, 2, 3, 4, 5, 6})
	got, err := f.Value(1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got != 4 {
		t.Fatalf("expected 4, got %v", got)
	}
	if _, err := f.Value(2, 0); err == nil {
		t.Fatal("expected out of range error")
	}
}

func TestProduct(t *testing.T) {
	// phi(a, b) * psi(b, c)
	ab := mustFactor(t, []string{"a", "b"}, []int{2, 2}, []float64{0.5, 0.8, 0.1, 0.3})
	bc := mustFactor(t, []string{"b", "c"}, []int{2, 2}, []float64{0.5, 0.7, 0.1, 0.2})

	p, err := Product(ab, bc)
	if err != nil {
		t.Fatal(err)
	}
	scope := p.Scope()
	if len(scope) != 3 || scope[0] != "a" || scope[1] != "b" || scope[2] != "c" {
		t.Fatalf("unexpected scope %v", scope)
	}
	assertValues(t, p.Values(), []float64{
		0.25, 0.35, 0.08, 0.16, // a0: b0c0 b0c1 b1c0 b1c1
		0.05, 0.07, 0.03, 0.06, // a1
	})
}

func TestProductCardinalityMismatch(t *testing.T) {
	a := mustFactor(t, []string{"x"}, []int{2}, []float64{1, 1})
	b := mustFactor(t, []string{"x"}, []int{3}, []float64{1, 1, 1})
	if _, err := Product(a, b); err == nil {
		t.Fatal("expected cardinality error")
	}
}

func TestProductWithScalar(t *testing.T) {
	scalar := mustFactor(t, nil, nil, []float64{0.5})
	f := mustFactor(t, []string{"x"}, []int{3}, []float64{0.2, 0.2, 0.6})
	p, err := Product(scalar, f)
	if err != nil {
		t.Fatal(err)
	}
	assertValues(t, p.Values(), []float64{0.1, 0.1, 0.3})
}

func TestSumOut(t *testing.T) {
	f := mustFactor(t, []string{"a", "b"}, []int{2, 3}, []float64{1, 2, 3, 4, 5, 6})

	byA, err := f.SumOut("b")
	if err != nil {
		t.Fatal(err)
	}
	assertValues(t, byA.Values(), []float64{6, 15})

	byB, err := f.SumOut("a")
	if err != nil {
		t.Fatal(err)
	}
	assertValues(t, byB.Values(), []float64{5, 7, 9})

	if _, err := f.SumOut("z"); err == nil {
		t.Fatal("expected error for variable outside scope")
	}
}

func TestReduce(t *testing.T) {
	f := mustFactor(t, []string{"a", "b"}, []int{2, 3}, []float64{1, 2, 3, 4, 5, 6})

	r, err := f.Reduce("b", 2)
	if err != nil {
		t.Fatal(err)
	}
	assertValues(t, r.Values(), []float64{3, 6})

	r, err = f.Reduce("a", 1)
	if err != nil {
		t.Fatal(err)
	}
	assertValues(t, r.Values(), []float64{4, 5, 6})

	if _, err := f.Reduce("b", 3); err == nil {
		t.Fatal("expected state range error")
	}
}

func TestNormalize(t *testing.T) {
	f := mustFactor(t, []string{"x"}, []int{4}, []float64{1, 1, 2, 4})
	n, err := f.Normalize()
	if err != nil {
		t.Fatal(err)
	}
	assertValues(t, n.Values(), []float64{0.125, 0.125, 0.25, 0.5})
	// The original is untouched.
	assertValues(t, f.Values(), []float64{1, 1, 2, 4})

	zero := mustFactor(t, []string{"x"}, []int{2}, []float64{0, 0})
	if _, err := zero.Normalize(); err == nil {
		t.Fatal("expected error for zero mass")
	}
}

func TestReorder(t *testing.T) {
	f := mustFactor(t, []string{"a", "b"}, []int{2, 3}, []float64{1, 2, 3, 4, 5, 6})
	r, err := f.Reorder([]string{"b", "a"})
	if err != nil {
		t.Fatal(err)
	}
	assertValues(t, r.Values(), []float64{1, 4, 2, 5, 3, 6})

	if _, err := f.Reorder([]string{"a", "c"}); err == nil {
		t.Fatal("expected scope mismatch error")
	}
	if _, err := f.Reorder([]string{"a", "a"}); err == nil {
		t.Fatal("expected duplicate error")
	}
}
