// Copyright 2026 © The Rolecast Authors
// SPDX-License-Identifier: Apache-2.0

// Package bandit implements an epsilon-greedy multi-armed bandit whose whole
// working state is a small record that is restored and persisted around each
// decision.
package bandit

import (
	"fmt"
	"math"

	rerrors "github.com/jllopis/rolecast/pkg/errors"
)

// DefaultEpsilon is the exploration probability used when none is configured.
const DefaultEpsilon = 0.1

// Rand is the randomness source consumed by exploration.
// *math/rand/v2.Rand satisfies it.
type Rand interface {
	Float64() float64
	IntN(n int) int
}

// State is the persisted bandit record. Values[i] is the running mean of all
// rewards passed to Update for arm i.
type State struct {
	ArmCount int       `json:"arm_count" cbor:"arm_count"`
	Epsilon  float64   `json:"epsilon" cbor:"epsilon"`
	Counts   []int     `json:"counts" cbor:"counts"`
	Values   []float64 `json:"values" cbor:"values"`
}

// Selection is the outcome of one epsilon-greedy draw.
type Selection struct {
	Arm      int
	Explored bool
}

// NewState returns a zero-initialised state for armCount arms.
func NewState(armCount int, epsilon float64) (*State, error) {
	if armCount <= 0 {
		return nil, rerrors.New(rerrors.CodeInvalidInput,
			fmt.Sprintf("arm count must be positive, got %d", armCount), nil).
			WithContext("arm_count", armCount)
	}
	if err := validateEpsilon(epsilon); err != nil {
		return nil, err
	}
	return &State{
		ArmCount: armCount,
		Epsilon:  epsilon,
		Counts:   make([]int, armCount),
		Values:   make([]float64, armCount),
	}, nil
}

// Choose draws an arm. With probability Epsilon it explores a uniformly random
// arm, otherwise it exploits the first arm holding the highest mean. An
// epsilon of zero consumes no randomness.
func (s *State) Choose(r Rand) Selection {
	if s.Epsilon > 0 && r.Float64() < s.Epsilon {
		return Selection{Arm: r.IntN(s.ArmCount), Explored: true}
	}
	return Selection{Arm: s.BestArm()}
}

// SelectArm is Choose without the exploration flag.
func (s *State) SelectArm(r Rand) int {
	return s.Choose(r).Arm
}

// BestArm returns the first index holding the maximum mean reward.
func (s *State) BestArm() int {
	best := 0
	for i := 1; i < len(s.Values); i++ {
		if s.Values[i] > s.Values[best] {
			best = i
		}
	}
	return best
}

// Update records reward for arm and folds it into the arm's running mean.
// Invalid calls leave the state untouched.
func (s *State) Update(arm int, reward float64) error {
	if arm < 0 || arm >= s.ArmCount {
		return rerrors.New(rerrors.CodeOutOfRange,
			fmt.Sprintf("arm %d outside [0, %d)", arm, s.ArmCount), nil).
			WithContext("arm", arm).
			WithContext("arm_count", s.ArmCount)
	}
	if math.IsNaN(reward) || math.IsInf(reward, 0) {
		return rerrors.New(rerrors.CodeInvalidInput,
			fmt.Sprintf("reward must be finite, got %v", reward), nil).
			WithContext("arm", arm)
	}

	s.Counts[arm]++
	n := float64(s.Counts[arm])
	s.Values[arm] += (reward - s.Values[arm]) / n
	return nil
}

// Validate checks the structural invariants a persisted state must satisfy
// before it can be reused.
func (s *State) Validate() error {
	if s == nil {
		return fmt.Errorf("state is nil")
	}
	if s.ArmCount <= 0 {
		return fmt.Errorf("arm_count must be positive, got %d", s.ArmCount)
	}
	if len(s.Counts) != s.ArmCount || len(s.Values) != s.ArmCount {
		return fmt.Errorf("arm_count %d does not match %d counts and %d values",
			s.ArmCount, len(s.Counts), len(s.Values))
	}
	if err := validateEpsilon(s.Epsilon); err != nil {
		return err
	}
	for i, c := range s.Counts {
		if c < 0 {
			return fmt.Errorf("counts[%d] is negative", i)
		}
		if math.IsNaN(s.Values[i]) || math.IsInf(s.Values[i], 0) {
			return fmt.Errorf("values[%d] is not finite", i)
		}
	}
	return nil
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := *s
	out.Counts = append([]int(nil), s.Counts...)
	out.Values = append([]float64(nil), s.Values...)
	return &out
}

func validateEpsilon(epsilon float64) error {
	if math.IsNaN(epsilon) || epsilon < 0 || epsilon > 1 {
		return rerrors.New(rerrors.CodeInvalidInput,
			fmt.Sprintf("epsilon must be in [0, 1], got %v", epsilon), nil).
			WithContext("epsilon", epsilon)
	}
	return nil
}
