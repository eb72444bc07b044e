// Copyright 2026 © The Rolecast Authors
// SPDX-License-Identifier: Apache-2.0

// Package role infers the facilitation role to surface next from three
// observed signals, using a fixed Bayesian network.
package role

import (
	"fmt"

	"github.com/jllopis/rolecast/pkg/bayes"
	rerrors "github.com/jllopis/rolecast/pkg/errors"
)

// Role is one of the outcome states of the network.
type Role string

const (
	Facilitator   Role = "Facilitator"
	Observer      Role = "Observer"
	Analyst       Role = "Analyst"
	DevilAdvocate Role = "DevilAdvocate"
	Recommender   Role = "Recommender"
)

// Roles lists every role in declared order.
var Roles = []Role{Facilitator, Observer, Analyst, DevilAdvocate, Recommender}

// Network variable names.
const (
	VarCognitiveLoad   = "cognitive_load"
	VarTeamPerformance = "team_performance"
	VarReliance        = "reliance"
	VarRole            = "role"
)

// Evidence states.
const (
	Low  = "low"
	High = "high"
)

var levels = []string{Low, High}

// Priors of the evidence variables, as (low, high).
var priors = map[string][2]float64{
	VarCognitiveLoad:   {0.6, 0.4},
	VarTeamPerformance: {0.5, 0.5},
	VarReliance:        {0.7, 0.3},
}

// roleCPT[r][c] is P(role = Roles[r] | evidence column c). Columns enumerate
// (cognitive_load, team_performance, reliance) with reliance varying fastest:
// LLL LLH LHL LHH HLL HLH HHL HHH.
var roleCPT = [][]float64{
	{0.30, 0.10, 0.20, 0.10, 0.15, 0.05, 0.10, 0.05},
	{0.20, 0.30, 0.10, 0.20, 0.25, 0.40, 0.15, 0.30},
	{0.20, 0.30, 0.40, 0.30, 0.20, 0.30, 0.30, 0.20},
	{0.10, 0.10, 0.10, 0.10, 0.20, 0.10, 0.25, 0.15},
	{0.20, 0.20, 0.20, 0.30, 0.20, 0.15, 0.20, 0.30},
}

var (
	network = mustNetwork()
	engine  = bayes.NewVariableElimination(network)
)

func mustNetwork() *bayes.Network {
	n, err := buildNetwork()
	if err != nil {
		panic(fmt.Sprintf("role: invalid network tables: %v", err))
	}
	return n
}

func buildNetwork() (*bayes.Network, error) {
	n := bayes.NewNetwork()
	parents := []string{VarCognitiveLoad, VarTeamPerformance, VarReliance}
	for _, name := range parents {
		p := priors[name]
		if err := n.AddVariable(bayes.Variable{Name: name, States: levels}, nil,
			[][]float64{{p[0]}, {p[1]}}); err != nil {
			return nil, err
		}
	}
	states := make([]string, len(Roles))
	for i, r := range Roles {
		states[i] = string(r)
	}
	if err := n.AddVariable(bayes.Variable{Name: VarRole, States: states}, parents, roleCPT); err != nil {
		return nil, err
	}
	return n, nil
}

// Network returns the role network. It is shared and must not be modified;
// the bayes API only exposes read access.
func Network() *bayes.Network {
	return network
}

// InferRole returns the most probable role given all three evidence states.
// Ties go to the role declared first.
func InferRole(cognitiveLoad, teamPerformance, reliance string) (Role, error) {
	state, err := engine.MAP(VarRole, map[string]string{
		VarCognitiveLoad:   cognitiveLoad,
		VarTeamPerformance: teamPerformance,
		VarReliance:        reliance,
	})
	if err != nil {
		return "", err
	}
	return Role(state), nil
}

// Posterior returns P(role | evidence). Evidence may name any subset of the
// three signal variables.
func Posterior(evidence map[string]string) (*bayes.Distribution, error) {
	if _, ok := evidence[VarRole]; ok {
		return nil, rerrors.New(rerrors.CodeInvalidEvidence, "role cannot be observed", nil).
			WithContext("variable", VarRole)
	}
	return engine.Query([]string{VarRole}, evidence)
}
