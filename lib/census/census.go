// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package census

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/nvx/lib/runner"
)

// ErrCensusUnavailable is wrapped by Scan when the open-file census tool
// could not produce an answer.
var ErrCensusUnavailable = errors.New("census unavailable")

// Defaults for the NVIDIA proprietary driver.
const (
	DefaultDeviceGlob  = "/dev/nvidia*"
	DefaultControlNode = "/dev/nvidiactl"
)

// Signaler delivers a signal to a process.
type Signaler interface {
	Signal(pid int, signal unix.Signal) error
}

// UnixSignaler signals processes with kill(2).
type UnixSignaler struct{}

// Signal sends signal to pid.
func (UnixSignaler) Signal(pid int, signal unix.Signal) error {
	return unix.Kill(pid, signal)
}

// Census enumerates and reclaims processes using the device files.
type Census struct {
	runner       runner.Runner
	lsof         string
	deviceGlob   string
	controlNodes []string
	signaler     Signaler
	logger       *slog.Logger
}

// Config holds the Census collaborators and settings.
type Config struct {
	Runner runner.Runner

	// Lsof is the census tool binary. Empty means "lsof".
	Lsof string

	// DeviceGlob selects the device special files. Empty means
	// DefaultDeviceGlob.
	DeviceGlob string

	// ControlNodes are the shared control files excluded from routine
	// listings. Nil means DefaultControlNode.
	ControlNodes []string

	// Signaler defaults to UnixSignaler.
	Signaler Signaler

	Logger *slog.Logger
}

// New creates a Census.
func New(config Config) *Census {
	census := &Census{
		runner:       config.Runner,
		lsof:         config.Lsof,
		deviceGlob:   config.DeviceGlob,
		controlNodes: config.ControlNodes,
		signaler:     config.Signaler,
		logger:       config.Logger,
	}
	if census.lsof == "" {
		census.lsof = "lsof"
	}
	if census.deviceGlob == "" {
		census.deviceGlob = DefaultDeviceGlob
	}
	if census.controlNodes == nil {
		census.controlNodes = []string{DefaultControlNode}
	}
	if census.signaler == nil {
		census.signaler = UnixSignaler{}
	}
	return census
}

// Scan returns the processes holding device files open. With
// includeControlOnly false, rows for the shared control node are
// dropped before deduplication, so a process that also holds a real
// device file is still reported through that file.
func (c *Census) Scan(ctx context.Context, includeControlOnly bool) ([]Process, error) {
	files, err := filepath.Glob(c.deviceGlob)
	if err != nil {
		return nil, fmt.Errorf("%w: bad device glob %q: %w", ErrCensusUnavailable, c.deviceGlob, err)
	}
	if len(files) == 0 {
		// No device nodes: the driver is not loaded, nothing can hold them.
		return []Process{}, nil
	}

	result, err := c.runner.Run(ctx, c.lsof, append([]string{"-w"}, files...)...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCensusUnavailable, err)
	}
	// lsof exits 1 whenever any listed file is not open by anyone,
	// which is the normal case for most /dev/nvidia* nodes. Its stdout
	// still lists the files that are open.
	if !result.OK() && result.ExitCode != 1 {
		return nil, fmt.Errorf("%w: %s exited with status %d: %s",
			ErrCensusUnavailable, c.lsof, result.ExitCode, result.StderrText())
	}

	rows := Parse(string(result.Stdout))
	if !includeControlOnly {
		rows = slices.DeleteFunc(rows, func(row Process) bool {
			return slices.Contains(c.controlNodes, row.File)
		})
	}
	return dedupe(rows), nil
}

// List is Scan with failures logged and reported as no processes.
func (c *Census) List(ctx context.Context, includeControlOnly bool) []Process {
	processes, err := c.Scan(ctx, includeControlOnly)
	if err != nil {
		c.logger.Warn("process census failed", "error", err)
		return []Process{}
	}
	return processes
}

// Reclaim sends SIGTERM to every process holding any device file,
// control node included. It does not wait for the processes to exit;
// callers that need certainty list again afterwards. Signal failures
// (already exited, not permitted) are logged. Returns the processes that
// were signaled.
func (c *Census) Reclaim(ctx context.Context) []Process {
	processes := c.List(ctx, true)
	for _, process := range processes {
		c.logger.Info("terminating process",
			"pid", process.PID,
			"name", process.Name,
			"file", process.File,
		)
		if err := c.signaler.Signal(process.PID, unix.SIGTERM); err != nil {
			c.logger.Warn("signal failed",
				"pid", process.PID,
				"name", process.Name,
				"error", err,
			)
		}
	}
	return processes
}
