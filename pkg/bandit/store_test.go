// Copyright 2026 © The Rolecast Authors
// SPDX-License-Identifier: Apache-2.0

package bandit

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	rerrors "github.com/jllopis/rolecast/pkg/errors"
)

func sampleState() *State {
	return &State{
		ArmCount: 3,
		Epsilon:  0.25,
		Counts:   []int{4, 0, 7},
		Values:   []float64{1.5, 0, -0.375},
	}
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "rolecast.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// storeFactories builds every Store implementation over fresh backing storage.
func storeFactories(t *testing.T) map[string]func() Store {
	t.Helper()
	return map[string]func() Store{
		"memory": func() Store { return NewMemoryStore() },
		"file-json": func() Store {
			return NewFileStore(filepath.Join(t.TempDir(), "state.json"), CodecJSON)
		},
		"file-cbor": func() Store {
			return NewFileStore(filepath.Join(t.TempDir(), "state.cbor"), CodecCBOR)
		},
		"sqlite": func() Store {
			s, err := NewSQLiteStore(openTestDB(t), "")
			if err != nil {
				t.Fatalf("NewSQLiteStore failed: %v", err)
			}
			return s
		},
	}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory()
			if _, err := store.Load(ctx); !errors.Is(err, ErrStateNotFound) {
				t.Fatalf("expected ErrStateNotFound on empty store, got %v", err)
			}

			want := sampleState()
			if err := store.Save(ctx, want); err != nil {
				t.Fatalf("save failed: %v", err)
			}
			got, err := store.Load(ctx)
			if err != nil {
				t.Fatalf("load failed: %v", err)
			}
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, want)
			}

			// A second save replaces the first.
			want.Counts[1] = 1
			want.Values[1] = 2
			if err := store.Save(ctx, want); err != nil {
				t.Fatalf("second save failed: %v", err)
			}
			got, err = store.Load(ctx)
			if err != nil {
				t.Fatalf("second load failed: %v", err)
			}
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("overwrite mismatch:\n got %+v\nwant %+v", got, want)
			}
		})
	}
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory()

			r, err := Restore(ctx, store, 3, 0.1)
			if err != nil {
				t.Fatalf("restore empty: %v", err)
			}
			if r.Outcome != Fresh || r.Cause != nil {
				t.Fatalf("expected clean fresh outcome, got %v (%v)", r.Outcome, r.Cause)
			}

			if err := store.Save(ctx, sampleState()); err != nil {
				t.Fatal(err)
			}
			r, err = Restore(ctx, store, 3, 0.9)
			if err != nil {
				t.Fatalf("restore matching: %v", err)
			}
			if r.Outcome != Restored {
				t.Fatalf("expected restored, got %v", r.Outcome)
			}
			if !reflect.DeepEqual(r.State, sampleState()) {
				t.Fatalf("restored state differs: %+v", r.State)
			}

			r, err = Restore(ctx, store, 5, 0.1)
			if err != nil {
				t.Fatalf("restore mismatch: %v", err)
			}
			if r.Outcome != Reset {
				t.Fatalf("expected reset, got %v", r.Outcome)
			}
			if !rerrors.HasCode(r.Cause, rerrors.CodeConfigMismatch) {
				t.Fatalf("expected CONFIG_MISMATCH cause, got %v", r.Cause)
			}
			if r.State.ArmCount != 5 || r.State.Epsilon != 0.1 {
				t.Fatalf("unexpected fresh header %+v", r.State)
			}
			for i := 0; i < 5; i++ {
				if r.State.Counts[i] != 0 || r.State.Values[i] != 0 {
					t.Fatalf("old state leaked into reset state: %+v", r.State)
				}
			}
		})
	}
}

func TestRestoreStructuralMismatchIsFresh(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	bad := &State{ArmCount: 3, Epsilon: 0.1, Counts: []int{1, 2}, Values: []float64{1, 2, 3}}
	if err := store.Save(ctx, bad); err != nil {
		t.Fatal(err)
	}
	r, err := Restore(ctx, store, 3, 0.1)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if r.Outcome != Fresh || !errors.Is(r.Cause, ErrCorruptState) {
		t.Fatalf("expected fresh with corrupt cause, got %v (%v)", r.Outcome, r.Cause)
	}
	if len(r.State.Counts) != 3 || r.State.Counts[0] != 0 {
		t.Fatalf("expected zero state, got %+v", r.State)
	}
}

func TestRestoreRejectsInvalidArmCount(t *testing.T) {
	_, err := Restore(context.Background(), NewMemoryStore(), 0, 0.1)
	if !rerrors.HasCode(err, rerrors.CodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
}

func TestFileStoreUnparsableIsCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte(`{"arm_count": 3, "counts": [1,`), 0o600); err != nil {
		t.Fatal(err)
	}
	store := NewFileStore(path, CodecJSON)
	if _, err := store.Load(context.Background()); !errors.Is(err, ErrCorruptState) {
		t.Fatalf("expected ErrCorruptState, got %v", err)
	}
	r, err := Restore(context.Background(), store, 3, 0.1)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if r.Outcome != Fresh {
		t.Fatalf("expected fresh, got %v", r.Outcome)
	}
}

func TestFileStoreReadFaultIsSurfaced(t *testing.T) {
	// A directory at the state path cannot be read as a file.
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatal(err)
	}
	store := NewFileStore(path, CodecJSON)

	_, err := store.Load(context.Background())
	if !rerrors.HasCode(err, rerrors.CodePersistenceIO) {
		t.Fatalf("expected PERSISTENCE_IO, got %v", err)
	}
	if _, err := Restore(context.Background(), store, 3, 0.1); !rerrors.HasCode(err, rerrors.CodePersistenceIO) {
		t.Fatalf("restore must not mask read faults, got %v", err)
	}
}

func TestFileStoreWriteFaultIsSurfaced(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	// The parent of the state path is a regular file.
	store := NewFileStore(filepath.Join(blocker, "state.json"), CodecJSON)
	err := store.Save(context.Background(), sampleState())
	if !rerrors.HasCode(err, rerrors.CodePersistenceIO) {
		t.Fatalf("expected PERSISTENCE_IO, got %v", err)
	}
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "state.json")
	store := NewFileStore(path, CodecJSON)
	for i := 0; i < 3; i++ {
		if err := store.Save(context.Background(), sampleState()); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "state.json" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("expected only state.json, found %v", names)
	}
}

func TestFileStoreJSONLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := NewFileStore(path, "")
	if err := store.Save(context.Background(), sampleState()); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{`"arm_count": 3`, `"epsilon": 0.25`, `"counts": [`, `"values": [`} {
		if !strings.Contains(string(data), key) {
			t.Fatalf("state file missing %s:\n%s", key, data)
		}
	}
}

func TestSQLiteStoreKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	a, err := NewSQLiteStore(db, "room-a")
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewSQLiteStore(db, "room-b")
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Save(ctx, sampleState()); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Load(ctx); !errors.Is(err, ErrStateNotFound) {
		t.Fatalf("expected room-b to be empty, got %v", err)
	}
}

func TestSQLiteStoreSaveReplacesRow(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	store, err := NewSQLiteStore(db, "room")
	if err != nil {
		t.Fatal(err)
	}
	first := sampleState()
	if err := store.Save(ctx, first); err != nil {
		t.Fatal(err)
	}
	second := first.Clone()
	if err := second.Update(1, 2.0); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(ctx, second); err != nil {
		t.Fatal(err)
	}

	var rows int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bandit_state WHERE state_key = ?`, "room").Scan(&rows); err != nil {
		t.Fatal(err)
	}
	if rows != 1 {
		t.Fatalf("expected one row for the key, got %d", rows)
	}
	got, err := store.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, second) {
		t.Fatalf("expected %+v, got %+v", second, got)
	}
}

func TestParseCodec(t *testing.T) {
	for in, want := range map[string]Codec{"": CodecJSON, "json": CodecJSON, "cbor": CodecCBOR} {
		got, err := ParseCodec(in)
		if err != nil || got != want {
			t.Fatalf("ParseCodec(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseCodec("xml"); !rerrors.HasCode(err, rerrors.CodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
}
