// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package journal

import (
	"log/slog"
	"os"

	"github.com/bureau-foundation/nvx/lib/clock"
)

// Recorder writes and clears the journal around transitions. A
// Recorder with an empty path does nothing, which disables the journal.
// Journal I/O failures are logged and never block a transition.
type Recorder struct {
	path   string
	clock  clock.Clock
	logger *slog.Logger
}

// NewRecorder creates a Recorder for path.
func NewRecorder(path string, now clock.Clock, logger *slog.Logger) *Recorder {
	return &Recorder{path: path, clock: now, logger: logger}
}

// Begin records that transition is starting.
func (r *Recorder) Begin(transition Transition, sessions int) {
	if r == nil || r.path == "" {
		return
	}
	state := State{
		Transition: transition,
		Sessions:   sessions,
		PID:        os.Getpid(),
		Timestamp:  r.clock.Now(),
	}
	if err := Write(r.path, state); err != nil {
		r.logger.Warn("writing transition journal failed", "path", r.path, "error", err)
	}
}

// Done records that the transition finished.
func (r *Recorder) Done() {
	if r == nil || r.path == "" {
		return
	}
	if err := Clear(r.path); err != nil {
		r.logger.Warn("clearing transition journal failed", "path", r.path, "error", err)
	}
}
