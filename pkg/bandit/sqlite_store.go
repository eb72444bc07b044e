// Copyright 2026 © The Rolecast Authors
// SPDX-License-Identifier: Apache-2.0

package bandit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	rerrors "github.com/jllopis/rolecast/pkg/errors"
)

// DefaultStateKey names the row used when no key is configured.
const DefaultStateKey = "default"

// SQLiteStore persists the state as one row of the bandit_state table.
type SQLiteStore struct {
	db  *sql.DB
	key string
}

// NewSQLiteStore creates a SQLite-backed store and ensures its schema.
func NewSQLiteStore(db *sql.DB, key string) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if key == "" {
		key = DefaultStateKey
	}
	if err := ensureBanditSchema(db); err != nil {
		return nil, rerrors.New(rerrors.CodePersistenceIO, "creating bandit_state schema", err)
	}
	return &SQLiteStore{db: db, key: key}, nil
}

// Load reads the row for the store's key.
func (s *SQLiteStore) Load(ctx context.Context) (*State, error) {
	var (
		state      State
		countsJSON string
		valuesJSON string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT arm_count, epsilon, counts_json, values_json
		FROM bandit_state
		WHERE state_key = ?
	`, s.key).Scan(&state.ArmCount, &state.Epsilon, &countsJSON, &valuesJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, rerrors.New(rerrors.CodePersistenceIO, "reading bandit state", err).
			WithContext("state_key", s.key)
	}
	if err := json.Unmarshal([]byte(countsJSON), &state.Counts); err != nil {
		return nil, fmt.Errorf("%w: counts: %v", ErrCorruptState, err)
	}
	if err := json.Unmarshal([]byte(valuesJSON), &state.Values); err != nil {
		return nil, fmt.Errorf("%w: values: %v", ErrCorruptState, err)
	}
	return &state, nil
}

// Save upserts the row for the store's key. The upsert is a single
// INSERT ... ON CONFLICT statement, so it commits atomically without an
// explicit transaction.
func (s *SQLiteStore) Save(ctx context.Context, state *State) error {
	if state == nil {
		return errors.New("bandit: nil state")
	}
	counts, err := json.Marshal(state.Counts)
	if err != nil {
		return rerrors.New(rerrors.CodeInternal, "encoding counts", err)
	}
	values, err := json.Marshal(state.Values)
	if err != nil {
		return rerrors.New(rerrors.CodeInternal, "encoding values", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bandit_state (state_key, arm_count, epsilon, counts_json, values_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(state_key) DO UPDATE SET
			arm_count = excluded.arm_count,
			epsilon = excluded.epsilon,
			counts_json = excluded.counts_json,
			values_json = excluded.values_json,
			updated_at = excluded.updated_at
	`,
		s.key,
		state.ArmCount,
		state.Epsilon,
		string(counts),
		string(values),
		time.Now().UTC(),
	)
	if err != nil {
		return rerrors.New(rerrors.CodePersistenceIO, "writing bandit state", err).
			WithContext("state_key", s.key)
	}
	return nil
}

func ensureBanditSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bandit_state (
			state_key TEXT PRIMARY KEY,
			arm_count INTEGER NOT NULL,
			epsilon REAL NOT NULL,
			counts_json TEXT NOT NULL,
			values_json TEXT NOT NULL,
			updated_at TIMESTAMP
		);
	`)
	return err
}
