// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// ErrTimeout is wrapped by Run when a command exceeds its deadline.
var ErrTimeout = errors.New("command timed out")

// DefaultTimeout bounds a single external tool invocation when the
// configuration does not set one.
const DefaultTimeout = 30 * time.Second

// Result is the outcome of a command that ran to exit.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// OK reports whether the command exited zero.
func (r Result) OK() bool { return r.ExitCode == 0 }

// StderrText returns stderr trimmed for log attributes.
func (r Result) StderrText() string {
	return strings.TrimSpace(string(r.Stderr))
}

// Runner executes an external command and waits for it to exit.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// Exec runs commands with os/exec.
type Exec struct {
	// Timeout bounds each command. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Run executes name with args and captures stdout and stderr. The
// command runs in its own process group so a timeout kills any children
// it spawned along with it.
func (e Exec) Run(ctx context.Context, name string, args ...string) (Result, error) {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	// A grandchild holding stdout open must not keep Wait blocked after
	// the kill.
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	result := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err == nil {
		return result, nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return result, fmt.Errorf("%s after %v: %w", name, timeout, ErrTimeout)
	}

	var exitError *exec.ExitError
	if errors.As(err, &exitError) && exitError.Exited() {
		result.ExitCode = exitError.ExitCode()
		return result, nil
	}

	return result, fmt.Errorf("running %s: %w", name, err)
}
