// Copyright 2026 © The Rolecast Authors
// SPDX-License-Identifier: Apache-2.0

package bayes

import (
	"fmt"
	"math"
	"slices"
)

// Factor is a non-negative table over an ordered scope of discrete variables.
// Values are stored row-major with the last variable varying fastest.
type Factor struct {
	vars   []string
	card   []int
	values []float64
}

// NewFactor builds a factor. len(values) must equal the product of card.
func NewFactor(vars []string, card []int, values []float64) (*Factor, error) {
	if len(vars) != len(card) {
		return nil, fmt.Errorf("factor: %d variables but %d cardinalities", len(vars), len(card))
	}
	size := 1
	for i, name := range vars {
		if card[i] <= 0 {
			return nil, fmt.Errorf("factor: variable %q has cardinality %d", name, card[i])
		}
		if slices.Index(vars[:i], name) >= 0 {
			return nil, fmt.Errorf("factor: duplicate variable %q", name)
		}
		size *= card[i]
	}
	if len(values) != size {
		return nil, fmt.Errorf("factor: expected %d values, got %d", size, len(values))
	}
	return &Factor{
		vars:   slices.Clone(vars),
		card:   slices.Clone(card),
		values: slices.Clone(values),
	}, nil
}

// Scope returns the factor's variables in table order.
func (f *Factor) Scope() []string {
	return slices.Clone(f.vars)
}

// Cardinality returns the number of states of name, or 0 when name is not in scope.
func (f *Factor) Cardinality(name string) int {
	if i := slices.Index(f.vars, name); i >= 0 {
		return f.card[i]
	}
	return 0
}

// Values returns a copy of the table.
func (f *Factor) Values() []float64 {
	return slices.Clone(f.values)
}

// Value returns the entry at assignment, given as state indexes in scope order.
func (f *Factor) Value(assignment ...int) (float64, error) {
	if len(assignment) != len(f.vars) {
		return 0, fmt.Errorf("factor: expected %d indexes, got %d", len(f.vars), len(assignment))
	}
	for i, a := range assignment {
		if a < 0 || a >= f.card[i] {
			return 0, fmt.Errorf("factor: index %d out of range for %q", a, f.vars[i])
		}
	}
	return f.values[f.offset(assignment)], nil
}

// Sum returns the total mass of the table.
func (f *Factor) Sum() float64 {
	total := 0.0
	for _, v := range f.values {
		total += v
	}
	return total
}

// Product returns the factor over the union of both scopes. Variables of a
// come first, followed by those only in b.
func Product(a, b *Factor) (*Factor, error) {
	vars := slices.Clone(a.vars)
	card := slices.Clone(a.card)
	for i, name := range b.vars {
		if j := slices.Index(a.vars, name); j >= 0 {
			if a.card[j] != b.card[i] {
				return nil, fmt.Errorf("factor: %q has cardinality %d and %d", name, a.card[j], b.card[i])
			}
			continue
		}
		vars = append(vars, name)
		card = append(card, b.card[i])
	}

	aPos := positions(a.vars, vars)
	bPos := positions(b.vars, vars)
	aIdx := make([]int, len(a.vars))
	bIdx := make([]int, len(b.vars))

	out := &Factor{vars: vars, card: card, values: make([]float64, tableSize(card))}
	assignment := make([]int, len(vars))
	for k := range out.values {
		for i, p := range aPos {
			aIdx[i] = assignment[p]
		}
		for i, p := range bPos {
			bIdx[i] = assignment[p]
		}
		out.values[k] = a.values[a.offset(aIdx)] * b.values[b.offset(bIdx)]
		advance(assignment, card)
	}
	return out, nil
}

// SumOut marginalises name out of the factor.
func (f *Factor) SumOut(name string) (*Factor, error) {
	drop := slices.Index(f.vars, name)
	if drop < 0 {
		return nil, fmt.Errorf("factor: %q not in scope %v", name, f.vars)
	}
	out := f.without(drop)
	assignment := make([]int, len(f.vars))
	rest := make([]int, 0, len(f.vars)-1)
	for _, v := range f.values {
		rest = append(rest[:0], assignment[:drop]...)
		rest = append(rest, assignment[drop+1:]...)
		out.values[out.offset(rest)] += v
		advance(assignment, f.card)
	}
	return out, nil
}

// Reduce fixes name to the state at index state and drops it from the scope.
func (f *Factor) Reduce(name string, state int) (*Factor, error) {
	fix := slices.Index(f.vars, name)
	if fix < 0 {
		return nil, fmt.Errorf("factor: %q not in scope %v", name, f.vars)
	}
	if state < 0 || state >= f.card[fix] {
		return nil, fmt.Errorf("factor: state %d out of range for %q", state, name)
	}
	out := f.without(fix)
	assignment := make([]int, len(f.vars))
	rest := make([]int, 0, len(f.vars)-1)
	for _, v := range f.values {
		if assignment[fix] == state {
			rest = append(rest[:0], assignment[:fix]...)
			rest = append(rest, assignment[fix+1:]...)
			out.values[out.offset(rest)] = v
		}
		advance(assignment, f.card)
	}
	return out, nil
}

// Normalize scales the table so it sums to one. A factor with no positive
// mass cannot be normalised.
func (f *Factor) Normalize() (*Factor, error) {
	total := f.Sum()
	if !(total > 0) || math.IsInf(total, 0) {
		return nil, fmt.Errorf("factor: cannot normalize total mass %v", total)
	}
	out := &Factor{vars: slices.Clone(f.vars), card: slices.Clone(f.card), values: make([]float64, len(f.values))}
	for i, v := range f.values {
		out.values[i] = v / total
	}
	return out, nil
}

// Reorder returns the same factor with its scope permuted to vars.
func (f *Factor) Reorder(vars []string) (*Factor, error) {
	if len(vars) != len(f.vars) {
		return nil, fmt.Errorf("factor: reorder needs %d variables, got %d", len(f.vars), len(vars))
	}
	card := make([]int, len(vars))
	for i, name := range vars {
		c := f.Cardinality(name)
		if c == 0 || slices.Index(vars[:i], name) >= 0 {
			return nil, fmt.Errorf("factor: reorder scope %v does not match %v", vars, f.vars)
		}
		card[i] = c
	}
	pos := positions(f.vars, vars)
	src := make([]int, len(f.vars))
	out := &Factor{vars: slices.Clone(vars), card: card, values: make([]float64, len(f.values))}
	assignment := make([]int, len(vars))
	for k := range out.values {
		for i, p := range pos {
			src[i] = assignment[p]
		}
		out.values[k] = f.values[f.offset(src)]
		advance(assignment, card)
	}
	return out, nil
}

func (f *Factor) offset(assignment []int) int {
	idx := 0
	for i, a := range assignment {
		idx = idx*f.card[i] + a
	}
	return idx
}

func (f *Factor) without(i int) *Factor {
	vars := append(slices.Clone(f.vars[:i]), f.vars[i+1:]...)
	card := append(slices.Clone(f.card[:i]), f.card[i+1:]...)
	return &Factor{vars: vars, card: card, values: make([]float64, tableSize(card))}
}

// positions maps each variable of sub to its index in full.
func positions(sub, full []string) []int {
	out := make([]int, len(sub))
	for i, name := range sub {
		out[i] = slices.Index(full, name)
	}
	return out
}

func tableSize(card []int) int {
	size := 1
	for _, c := range card {
		size *= c
	}
	return size
}

// advance steps assignment to the next row-major position.
func advance(assignment, card []int) {
	for i := len(assignment) - 1; i >= 0; i-- {
		assignment[i]++
		if assignment[i] < card[i] {
			return
		}
		assignment[i] = 0
	}
}
