// Copyright 2026 © The Rolecast Authors
// SPDX-License-Identifier: Apache-2.0

package bayes

import (
	"fmt"
	"slices"

	rerrors "github.com/jllopis/rolecast/pkg/errors"
)

// VariableElimination answers exact queries against a network. It only reads
// the network, so one instance may serve concurrent queries.
type VariableElimination struct {
	net *Network
}

// NewVariableElimination returns an inference engine for net.
func NewVariableElimination(net *Network) *VariableElimination {
	return &VariableElimination{net: net}
}

// Query returns P(query | evidence). Evidence maps variable names to state
// names and may cover any subset of the remaining variables.
func (ve *VariableElimination) Query(query []string, evidence map[string]string) (*Distribution, error) {
	plan, err := ve.prepare(query, evidence)
	if err != nil {
		return nil, err
	}

	factors := plan.factors
	for _, name := range plan.order {
		factors, err = eliminate(factors, name)
		if err != nil {
			return nil, err
		}
	}

	joint := factors[0]
	for _, f := range factors[1:] {
		if joint, err = Product(joint, f); err != nil {
			return nil, err
		}
	}
	if joint, err = joint.Reorder(query); err != nil {
		return nil, err
	}
	posterior, err := joint.Normalize()
	if err != nil {
		return nil, rerrors.New(rerrors.CodeInvalidEvidence, "evidence has zero probability", err)
	}

	vars := make([]Variable, len(query))
	for i, name := range query {
		vars[i], _ = ve.net.Variable(name)
	}
	return &Distribution{vars: vars, factor: posterior}, nil
}

// MAP returns the most probable state of a single variable given evidence.
func (ve *VariableElimination) MAP(query string, evidence map[string]string) (string, error) {
	d, err := ve.Query([]string{query}, evidence)
	if err != nil {
		return "", err
	}
	return d.Argmax()[0], nil
}

// EliminationOrder returns the order in which Query would sum out the
// variables that are neither queried nor observed.
func (ve *VariableElimination) EliminationOrder(query []string, evidence map[string]string) ([]string, error) {
	plan, err := ve.prepare(query, evidence)
	if err != nil {
		return nil, err
	}
	return plan.order, nil
}

type queryPlan struct {
	factors []*Factor
	order   []string
}

// prepare validates the query, reduces every CPD by the evidence and picks the
// elimination order.
func (ve *VariableElimination) prepare(query []string, evidence map[string]string) (queryPlan, error) {
	if len(query) == 0 {
		return queryPlan{}, rerrors.New(rerrors.CodeInvalidInput, "query needs at least one variable", nil)
	}
	for i, name := range query {
		if _, ok := ve.net.index[name]; !ok {
			return queryPlan{}, rerrors.New(rerrors.CodeInvalidInput,
				fmt.Sprintf("unknown query variable %q", name), nil)
		}
		if slices.Index(query[:i], name) >= 0 {
			return queryPlan{}, rerrors.New(rerrors.CodeInvalidInput,
				fmt.Sprintf("query variable %q repeated", name), nil)
		}
		if _, observed := evidence[name]; observed {
			return queryPlan{}, rerrors.New(rerrors.CodeInvalidInput,
				fmt.Sprintf("query variable %q is also observed", name), nil)
		}
	}
	observed, err := ve.net.evidenceIndexes(evidence)
	if err != nil {
		return queryPlan{}, err
	}

	factors := make([]*Factor, 0, len(ve.net.nodes))
	for _, nd := range ve.net.nodes {
		f := nd.cpd
		for _, name := range f.vars {
			state, ok := observed[name]
			if !ok {
				continue
			}
			if f, err = f.Reduce(name, state); err != nil {
				return queryPlan{}, err
			}
		}
		factors = append(factors, f)
	}

	var hidden []string
	for _, nd := range ve.net.nodes {
		name := nd.variable.Name
		if _, ok := observed[name]; ok || slices.Contains(query, name) {
			continue
		}
		hidden = append(hidden, name)
	}
	return queryPlan{factors: factors, order: minSizeOrder(factors, hidden)}, nil
}

// minSizeOrder greedily picks the hidden variable whose elimination creates
// the smallest factor. Ties go to the variable declared first.
func minSizeOrder(factors []*Factor, hidden []string) []string {
	scopes := make([][]string, len(factors))
	card := make(map[string]int)
	for i, f := range factors {
		scopes[i] = slices.Clone(f.vars)
		for j, name := range f.vars {
			card[name] = f.card[j]
		}
	}

	remaining := slices.Clone(hidden)
	order := make([]string, 0, len(hidden))
	for len(remaining) > 0 {
		best, bestSize := 0, -1
		for i, name := range remaining {
			size := 1
			for _, v := range mergedScope(scopes, name) {
				if v != name {
					size *= card[v]
				}
			}
			if bestSize < 0 || size < bestSize {
				best, bestSize = i, size
			}
		}
		name := remaining[best]
		order = append(order, name)
		remaining = slices.Delete(remaining, best, best+1)

		merged := mergedScope(scopes, name)
		kept := scopes[:0]
		for _, s := range scopes {
			if !slices.Contains(s, name) {
				kept = append(kept, s)
			}
		}
		reduced := slices.DeleteFunc(merged, func(v string) bool { return v == name })
		scopes = append(kept, reduced)
	}
	return order
}

func mergedScope(scopes [][]string, name string) []string {
	var out []string
	for _, s := range scopes {
		if !slices.Contains(s, name) {
			continue
		}
		for _, v := range s {
			if !slices.Contains(out, v) {
				out = append(out, v)
			}
		}
	}
	return out
}

// eliminate multiplies every factor mentioning name and sums name out.
func eliminate(factors []*Factor, name string) ([]*Factor, error) {
	var (
		product *Factor
		rest    []*Factor
		err     error
	)
	for _, f := range factors {
		if f.Cardinality(name) == 0 {
			rest = append(rest, f)
			continue
		}
		if product == nil {
			product = f
			continue
		}
		if product, err = Product(product, f); err != nil {
			return nil, err
		}
	}
	if product == nil {
		return factors, nil
	}
	summed, err := product.SumOut(name)
	if err != nil {
		return nil, err
	}
	return append(rest, summed), nil
}

// Distribution is a normalised posterior over one or more query variables.
type Distribution struct {
	vars   []Variable
	factor *Factor
}

// Variables returns the query variables in table order.
func (d *Distribution) Variables() []Variable {
	out := make([]Variable, len(d.vars))
	for i, v := range d.vars {
		out[i] = Variable{Name: v.Name, States: slices.Clone(v.States)}
	}
	return out
}

// Probability returns the posterior of the joint assignment states, given in
// query order.
func (d *Distribution) Probability(states ...string) (float64, error) {
	if len(states) != len(d.vars) {
		return 0, fmt.Errorf("bayes: expected %d states, got %d", len(d.vars), len(states))
	}
	idx := make([]int, len(states))
	for i, s := range states {
		idx[i] = d.vars[i].StateIndex(s)
		if idx[i] < 0 {
			return 0, rerrors.New(rerrors.CodeInvalidEvidence,
				fmt.Sprintf("%q is not a state of %s", s, d.vars[i].Name), nil)
		}
	}
	return d.factor.Value(idx...)
}

// Values returns the posterior table, row-major in query order.
func (d *Distribution) Values() []float64 {
	return d.factor.Values()
}

// Sum returns the total probability mass, one up to rounding.
func (d *Distribution) Sum() float64 {
	return d.factor.Sum()
}

// Argmax returns the most probable joint assignment as state names in query
// order. Ties go to the assignment that comes first in declared state order.
func (d *Distribution) Argmax() []string {
	best := 0
	for i, v := range d.factor.values {
		if v > d.factor.values[best] {
			best = i
		}
	}
	out := make([]string, len(d.vars))
	for i := len(d.vars) - 1; i >= 0; i-- {
		c := len(d.vars[i].States)
		out[i] = d.vars[i].States[best%c]
		best /= c
	}
	return out
}
