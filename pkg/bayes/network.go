// Copyright 2026 © The Rolecast Authors
// SPDX-License-Identifier: Apache-2.0

// Package bayes implements discrete Bayesian networks with exact inference by
// variable elimination.
package bayes

import (
	"fmt"
	"math"
	"slices"

	rerrors "github.com/jllopis/rolecast/pkg/errors"
)

// ColumnTolerance bounds how far a CPT column may sum from one.
const ColumnTolerance = 1e-9

// Variable is a discrete random variable with named states.
type Variable struct {
	Name   string
	States []string
}

// StateIndex returns the index of state, or -1.
func (v Variable) StateIndex(state string) int {
	return slices.Index(v.States, state)
}

type node struct {
	variable Variable
	parents  []string
	cpd      *Factor // scope: variable, parents...
}

// Network is a discrete Bayesian network. Variables must be added after their
// parents, so the graph is acyclic by construction.
type Network struct {
	nodes []*node
	index map[string]int
}

// NewNetwork returns an empty network.
func NewNetwork() *Network {
	return &Network{index: make(map[string]int)}
}

// AddVariable adds v with the given parents and conditional probability table.
// cpt[s][c] is P(v = States[s] | parents = combination c), where combinations
// enumerate parent states with the last parent varying fastest. A root
// variable has a single column.
func (n *Network) AddVariable(v Variable, parents []string, cpt [][]float64) error {
	if v.Name == "" {
		return fmt.Errorf("bayes: variable name is required")
	}
	if _, exists := n.index[v.Name]; exists {
		return fmt.Errorf("bayes: duplicate variable %q", v.Name)
	}
	if len(v.States) == 0 {
		return fmt.Errorf("bayes: variable %q has no states", v.Name)
	}
	for i, s := range v.States {
		if slices.Index(v.States[:i], s) >= 0 {
			return fmt.Errorf("bayes: variable %q repeats state %q", v.Name, s)
		}
	}

	scope := []string{v.Name}
	card := []int{len(v.States)}
	columns := 1
	for _, p := range parents {
		i, ok := n.index[p]
		if !ok {
			return fmt.Errorf("bayes: parent %q of %q is not declared", p, v.Name)
		}
		if slices.Contains(scope, p) {
			return fmt.Errorf("bayes: parent %q of %q listed twice", p, v.Name)
		}
		scope = append(scope, p)
		card = append(card, len(n.nodes[i].variable.States))
		columns *= len(n.nodes[i].variable.States)
	}

	if len(cpt) != len(v.States) {
		return fmt.Errorf("bayes: %q table has %d rows, want %d", v.Name, len(cpt), len(v.States))
	}
	values := make([]float64, 0, len(v.States)*columns)
	for s, row := range cpt {
		if len(row) != columns {
			return fmt.Errorf("bayes: %q row %d has %d columns, want %d", v.Name, s, len(row), columns)
		}
		for c, p := range row {
			if p < 0 || math.IsNaN(p) || math.IsInf(p, 0) {
				return fmt.Errorf("bayes: %q[%d][%d] = %v is not a probability", v.Name, s, c, p)
			}
		}
		values = append(values, row...)
	}
	for c := 0; c < columns; c++ {
		total := 0.0
		for s := range cpt {
			total += cpt[s][c]
		}
		if math.Abs(total-1) > ColumnTolerance {
			return fmt.Errorf("bayes: %q column %d sums to %v", v.Name, c, total)
		}
	}

	cpd, err := NewFactor(scope, card, values)
	if err != nil {
		return err
	}
	n.index[v.Name] = len(n.nodes)
	n.nodes = append(n.nodes, &node{
		variable: Variable{Name: v.Name, States: slices.Clone(v.States)},
		parents:  slices.Clone(parents),
		cpd:      cpd,
	})
	return nil
}

// Variables returns every variable in declaration order.
func (n *Network) Variables() []Variable {
	out := make([]Variable, len(n.nodes))
	for i, nd := range n.nodes {
		out[i] = Variable{Name: nd.variable.Name, States: slices.Clone(nd.variable.States)}
	}
	return out
}

// Variable looks a variable up by name.
func (n *Network) Variable(name string) (Variable, bool) {
	i, ok := n.index[name]
	if !ok {
		return Variable{}, false
	}
	v := n.nodes[i].variable
	return Variable{Name: v.Name, States: slices.Clone(v.States)}, true
}

// Parents returns the parents of name in declaration order.
func (n *Network) Parents(name string) []string {
	i, ok := n.index[name]
	if !ok {
		return nil
	}
	return slices.Clone(n.nodes[i].parents)
}

// CPD returns the conditional probability factor of name, scoped as the
// variable followed by its parents.
func (n *Network) CPD(name string) (*Factor, bool) {
	i, ok := n.index[name]
	if !ok {
		return nil, false
	}
	f := n.nodes[i].cpd
	return &Factor{vars: slices.Clone(f.vars), card: slices.Clone(f.card), values: slices.Clone(f.values)}, true
}

// evidenceIndexes validates evidence and resolves state names to indexes.
func (n *Network) evidenceIndexes(evidence map[string]string) (map[string]int, error) {
	out := make(map[string]int, len(evidence))
	for name, state := range evidence {
		i, ok := n.index[name]
		if !ok {
			return nil, rerrors.New(rerrors.CodeInvalidEvidence,
				fmt.Sprintf("unknown variable %q", name), nil).
				WithContext("variable", name)
		}
		v := n.nodes[i].variable
		s := v.StateIndex(state)
		if s < 0 {
			return nil, rerrors.New(rerrors.CodeInvalidEvidence,
				fmt.Sprintf("%q is not a state of %s %v", state, name, v.States), nil).
				WithContext("variable", name).
				WithContext("state", state)
		}
		out[name] = s
	}
	return out, nil
}
