// Copyright 2026 © The Rolecast Authors
// SPDX-License-Identifier: Apache-2.0

package bandit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"

	rerrors "github.com/jllopis/rolecast/pkg/errors"
)

// Codec names the on-disk encoding of a FileStore.
type Codec string

const (
	CodecJSON Codec = "json"
	CodecCBOR Codec = "cbor"
)

// ParseCodec maps a configuration value to a Codec. Empty means JSON.
func ParseCodec(name string) (Codec, error) {
	switch Codec(name) {
	case "", CodecJSON:
		return CodecJSON, nil
	case CodecCBOR:
		return CodecCBOR, nil
	default:
		return "", rerrors.New(rerrors.CodeInvalidInput, fmt.Sprintf("unknown state codec %q", name), nil)
	}
}

// FileStore persists the state as a single file. Saves replace the file
// atomically, so a reader sees either the previous or the new state.
type FileStore struct {
	path  string
	codec Codec
}

// NewFileStore creates a file-backed store. An empty codec means JSON.
func NewFileStore(path string, codec Codec) *FileStore {
	if codec == "" {
		codec = CodecJSON
	}
	return &FileStore{path: path, codec: codec}
}

// Path returns the state file location.
func (f *FileStore) Path() string {
	return f.path
}

// Load reads and decodes the state file.
func (f *FileStore) Load(_ context.Context) (*State, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrStateNotFound
		}
		return nil, rerrors.New(rerrors.CodePersistenceIO, "reading bandit state", err).
			WithContext("path", f.path)
	}

	var state State
	if err := f.unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptState, f.path, err)
	}
	return &state, nil
}

// Save encodes state into a temporary file next to the target, syncs it and
// renames it into place.
func (f *FileStore) Save(_ context.Context, state *State) error {
	if state == nil {
		return errors.New("bandit: nil state")
	}
	data, err := f.marshal(state)
	if err != nil {
		return rerrors.New(rerrors.CodeInternal, "encoding bandit state", err)
	}
	if err := writeFileAtomic(f.path, data); err != nil {
		return rerrors.New(rerrors.CodePersistenceIO, "writing bandit state", err).
			WithContext("path", f.path)
	}
	return nil
}

func (f *FileStore) marshal(state *State) ([]byte, error) {
	switch f.codec {
	case CodecCBOR:
		return cbor.Marshal(state)
	default:
		data, err := json.MarshalIndent(state, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	}
}

func (f *FileStore) unmarshal(data []byte, state *State) error {
	switch f.codec {
	case CodecCBOR:
		return cbor.Unmarshal(data, state)
	default:
		return json.Unmarshal(data, state)
	}
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary state file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temporary state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temporary state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temporary state file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming state file into place: %w", err)
	}
	success = true

	// Best effort: make the rename itself durable.
	if parent, err := os.Open(dir); err == nil {
		parent.Sync()
		parent.Close()
	}
	return nil
}
