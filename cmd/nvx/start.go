// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/nvx/cmd/nvx/cli"
	"github.com/bureau-foundation/nvx/lib/session"
)

// primeOffload routes OpenGL, GLX and Vulkan to the NVIDIA GPU for one
// process tree.
var primeOffload = []string{
	"__NV_PRIME_RENDER_OFFLOAD=1",
	"__VK_LAYER_NV_optimus=NVIDIA_only",
	"__GLX_VENDOR_LIBRARY_NAME=nvidia",
}

func startCommand() *cli.Command {
	var conn connection
	return &cli.Command{
		Name:    "start",
		Summary: "Run a command on the discrete GPU",
		Description: `Run a command on the discrete GPU.

Opens a session (powering the GPU on if this is the first), runs the
command with the PRIME offload environment, and closes the session when
the command exits. The GPU powers off when the last session closes.
nvx exits with the command's exit status.

Ctrl-C reaches the command; nvx itself keeps waiting so the session is
always closed. SIGTERM and SIGHUP sent to nvx are passed on to the
command, and the session is closed once it exits.`,
		Usage: "nvx start [flags] <command> [args...]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("start", pflag.ContinueOnError)
			conn.addFlags(flagSet)
			// Everything after the command name belongs to the command.
			flagSet.SetInterspersed(false)
			return flagSet
		},
		Examples: []cli.Example{
			{Command: "nvx start glxgears"},
			{
				Description: "Arguments are passed through untouched",
				Command:     "nvx start vkcube --gpu_number 0",
			},
		},
		Run: func(args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("no command given\n\nUsage: nvx start <command> [args...]")
			}
			sessionBracket := bracket{
				send:   conn.send,
				stdin:  os.Stdin,
				stdout: os.Stdout,
				stderr: os.Stderr,
				logger: cli.NewCommandLogger().With("command", "start"),
			}
			return sessionBracket.run(context.Background(), args)
		},
	}
}

// bracket runs one command inside a session.
type bracket struct {
	send   func(ctx context.Context, command string) (string, error)
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger

	// signals replaces the process's own signal subscription. Nil means
	// run subscribes to SIGINT, SIGTERM and SIGHUP itself.
	signals <-chan os.Signal
}

// run opens a session, runs argv, and closes the session however argv
// ends. A non-zero exit of argv is returned as a *cli.ExitError with
// the same code; a signal death maps to 128+signal like a shell would.
func (b bracket) run(ctx context.Context, argv []string) error {
	// Subscribed before the session opens so no signal can end nvx
	// between start and end.
	signals := b.signals
	if signals == nil {
		caught := make(chan os.Signal, 1)
		signal.Notify(caught, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
		defer signal.Stop(caught)
		signals = caught
	}

	status, err := b.send(ctx, session.CommandStart)
	if err != nil {
		return err
	}
	if status != session.StatusOn {
		b.logger.Warn("discrete GPU did not come up; running anyway", "status", status)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = b.stdin
	cmd.Stdout = b.stdout
	cmd.Stderr = b.stderr
	cmd.Env = offloadEnvironment(os.Environ())
	if err := cmd.Start(); err != nil {
		b.end(ctx)
		return fmt.Errorf("running %s: %w", argv[0], err)
	}

	exited := make(chan struct{})
	go b.forward(signals, cmd.Process, exited)
	runErr := cmd.Wait()
	close(exited)

	b.end(ctx)

	if runErr == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return &cli.ExitError{Code: exitCode(exitErr)}
	}
	return fmt.Errorf("running %s: %w", argv[0], runErr)
}

// forward relays termination signals to the child until it exits, so
// nvx outlives it and can close the session. A terminal Ctrl-C already
// reaches the whole foreground process group; relaying SIGINT would
// deliver it twice. SIGTERM and SIGHUP (closing the terminal) are
// aimed at nvx alone and are passed on.
func (b bracket) forward(signals <-chan os.Signal, child *os.Process, exited <-chan struct{}) {
	for {
		select {
		case received := <-signals:
			if received == os.Interrupt {
				continue
			}
			b.logger.Info("forwarding signal to command", "signal", received.String())
			if err := child.Signal(received); err != nil {
				b.logger.Debug("forwarding signal failed", "signal", received.String(), "error", err)
			}
		case <-exited:
			return
		}
	}
}

// end closes the session. It runs even when ctx is already cancelled.
func (b bracket) end(ctx context.Context) {
	if _, err := b.send(context.WithoutCancel(ctx), session.CommandEnd); err != nil {
		b.logger.Error("closing session failed; the GPU stays on until the daemon restarts", "error", err)
	}
}

func exitCode(exitErr *exec.ExitError) int {
	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return 128 + int(status.Signal())
	}
	return exitErr.ExitCode()
}

// offloadEnvironment returns base with the PRIME offload variables set,
// replacing any existing values for them.
func offloadEnvironment(base []string) []string {
	environment := slices.DeleteFunc(slices.Clone(base), func(entry string) bool {
		name, _, _ := strings.Cut(entry, "=")
		return slices.ContainsFunc(primeOffload, func(offload string) bool {
			return strings.HasPrefix(offload, name+"=")
		})
	})
	return append(environment, primeOffload...)
}
