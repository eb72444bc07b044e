// Copyright 2026 © The Rolecast Authors
// SPDX-License-Identifier: Apache-2.0

package bandit

import (
	"context"
	"errors"
	"fmt"
	"sync"

	rerrors "github.com/jllopis/rolecast/pkg/errors"
)

var (
	// ErrStateNotFound is returned by stores holding no persisted state.
	ErrStateNotFound = errors.New("bandit: state not found")

	// ErrCorruptState is returned by stores whose persisted bytes cannot be decoded.
	ErrCorruptState = errors.New("bandit: corrupt state")
)

// Store loads and saves the persisted bandit state.
type Store interface {
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, state *State) error
}

// RestoreOutcome tells how Restore obtained its state.
type RestoreOutcome int

const (
	// Restored means the persisted state was reused.
	Restored RestoreOutcome = iota
	// Fresh means nothing usable was persisted.
	Fresh
	// Reset means persisted state for a different arm count was discarded.
	Reset
)

func (o RestoreOutcome) String() string {
	switch o {
	case Restored:
		return "restored"
	case Fresh:
		return "fresh"
	case Reset:
		return "reset"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Restoration is the result of Restore. Cause explains a Fresh or Reset
// outcome when a persisted state existed but was not reused.
type Restoration struct {
	State   *State
	Outcome RestoreOutcome
	Cause   error
}

// Restore returns the persisted state when it is structurally valid and was
// written for armCount arms. Otherwise it returns a zero state for armCount
// and epsilon. Read faults are returned instead of being masked as absence.
func Restore(ctx context.Context, store Store, armCount int, epsilon float64) (Restoration, error) {
	fresh, err := NewState(armCount, epsilon)
	if err != nil {
		return Restoration{}, err
	}

	stored, err := store.Load(ctx)
	switch {
	case errors.Is(err, ErrStateNotFound):
		return Restoration{State: fresh, Outcome: Fresh}, nil
	case errors.Is(err, ErrCorruptState):
		return Restoration{State: fresh, Outcome: Fresh, Cause: err}, nil
	case err != nil:
		return Restoration{}, err
	}

	if verr := stored.Validate(); verr != nil {
		return Restoration{
			State:   fresh,
			Outcome: Fresh,
			Cause:   fmt.Errorf("%w: %v", ErrCorruptState, verr),
		}, nil
	}
	if stored.ArmCount != armCount {
		mismatch := rerrors.New(rerrors.CodeConfigMismatch,
			fmt.Sprintf("persisted arm count %d differs from requested %d", stored.ArmCount, armCount), nil).
			WithContext("persisted_arm_count", stored.ArmCount).
			WithContext("arm_count", armCount).
			WithRecoverable(true)
		return Restoration{State: fresh, Outcome: Reset, Cause: mismatch}, nil
	}
	return Restoration{State: stored, Outcome: Restored}, nil
}

// MemoryStore keeps the state in memory. It copies on every load and save.
type MemoryStore struct {
	mu    sync.Mutex
	state *State
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns a copy of the stored state.
func (m *MemoryStore) Load(_ context.Context) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return nil, ErrStateNotFound
	}
	return m.state.Clone(), nil
}

// Save replaces the stored state with a copy of state.
func (m *MemoryStore) Save(_ context.Context, state *State) error {
	if state == nil {
		return errors.New("bandit: nil state")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state.Clone()
	return nil
}
