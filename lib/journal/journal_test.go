// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package journal

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/nvx/lib/clock"
)

var epoch = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func TestWriteReadClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nvx.journal")
	state := State{Transition: TransitionOff, Sessions: 0, PID: 4242, Timestamp: epoch}

	if err := Write(path, state); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind after Write")
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Transition != TransitionOff || got.PID != 4242 || !got.Timestamp.Equal(epoch) {
		t.Errorf("Read() = %+v, want %+v", got, state)
	}

	if err := Clear(path); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if err := Clear(path); err != nil {
		t.Errorf("second Clear: %v, want nil", err)
	}
	if _, err := Read(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Read after Clear err = %v, want ErrNotExist", err)
	}
}

func TestCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nvx.journal")
	fake := clock.Fake(epoch)

	if _, found, err := Check(path, time.Hour, fake); found || err != nil {
		t.Errorf("Check on missing file = (%v, %v), want (false, nil)", found, err)
	}

	if err := Write(path, State{Transition: TransitionOn, Sessions: 1, Timestamp: epoch}); err != nil {
		t.Fatal(err)
	}

	fake.Advance(30 * time.Minute)
	state, found, err := Check(path, time.Hour, fake)
	if err != nil || !found {
		t.Fatalf("Check on fresh entry = (%v, %v), want found", found, err)
	}
	if state.Transition != TransitionOn || state.Sessions != 1 {
		t.Errorf("state = %+v", state)
	}

	fake.Advance(2 * time.Hour)
	if _, found, err := Check(path, time.Hour, fake); found || err != nil {
		t.Errorf("Check on stale entry = (%v, %v), want (false, nil)", found, err)
	}
}

func TestCheckCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nvx.journal")
	if err := os.WriteFile(path, []byte{0xff, 0x00, 0x13}, 0600); err != nil {
		t.Fatal(err)
	}
	if _, _, err := Check(path, time.Hour, clock.Fake(epoch)); err == nil {
		t.Error("Check on corrupt file returned nil error")
	}
}

func TestRecorder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nvx.journal")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	recorder := NewRecorder(path, clock.Fake(epoch), logger)

	recorder.Begin(TransitionOff, 0)
	state, err := Read(path)
	if err != nil {
		t.Fatalf("Read after Begin: %v", err)
	}
	if state.Transition != TransitionOff || state.PID != os.Getpid() {
		t.Errorf("state = %+v, want off from this process", state)
	}

	recorder.Done()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("journal still present after Done: %v", err)
	}

	// A disabled recorder and a nil recorder are both no-ops.
	NewRecorder("", clock.Fake(epoch), logger).Begin(TransitionOn, 1)
	var nilRecorder *Recorder
	nilRecorder.Begin(TransitionOn, 1)
	nilRecorder.Done()
}
