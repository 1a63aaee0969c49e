// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package journal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bureau-foundation/nvx/lib/clock"
	"github.com/bureau-foundation/nvx/lib/codec"
)

// Transition names the sequence in progress.
type Transition string

const (
	TransitionOn  Transition = "on"
	TransitionOff Transition = "off"
)

// State is one journal entry.
type State struct {
	// Transition is the sequence that was started.
	Transition Transition `cbor:"transition"`

	// Sessions is the session count when it started.
	Sessions int `cbor:"sessions"`

	// PID of the daemon that wrote the entry.
	PID int `cbor:"pid"`

	// Timestamp is when the sequence started.
	Timestamp time.Time `cbor:"timestamp"`
}

// Write atomically replaces the journal at path with state. The parent
// directory must exist.
func Write(path string, state State) error {
	data, err := codec.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding journal state: %w", err)
	}

	temporaryPath := path + ".tmp"
	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating temporary journal file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary journal file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary journal file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary journal file: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming journal file into place: %w", err)
	}

	if parent, err := os.Open(filepath.Dir(path)); err == nil {
		parent.Sync()
		parent.Close()
	}
	return nil
}

// Read decodes the journal at path. A missing file returns an error
// wrapping os.ErrNotExist.
func Read(path string) (State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return State{}, err
	}
	var state State
	if err := codec.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("decoding journal %s: %w", path, err)
	}
	return state, nil
}

// Check returns the journal entry and true when one exists and was
// written within maxAge of the clock's current time. A missing or stale
// file returns false with a nil error; unreadable or corrupt files
// return the error.
func Check(path string, maxAge time.Duration, now clock.Clock) (State, bool, error) {
	state, err := Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return State{}, false, nil
		}
		return State{}, false, err
	}
	if now.Now().Sub(state.Timestamp) > maxAge {
		return State{}, false, nil
	}
	return state, true, nil
}

// Clear removes the journal. Removing a missing journal is not an error.
func Clear(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing journal: %w", err)
	}
	return nil
}
