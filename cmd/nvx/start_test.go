// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os"
	"slices"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/bureau-foundation/nvx/cmd/nvx/cli"
	"github.com/bureau-foundation/nvx/lib/control"
	"github.com/bureau-foundation/nvx/lib/testutil"
)

// recordingSender stands in for the daemon connection.
type recordingSender struct {
	sent      []string
	responses map[string]string
	err       error
}

func (r *recordingSender) send(_ context.Context, command string) (string, error) {
	r.sent = append(r.sent, command)
	if r.err != nil {
		return "", r.err
	}
	return r.responses[command], nil
}

func newBracket(sender *recordingSender, stdout *bytes.Buffer) bracket {
	return bracket{
		send:   sender.send,
		stdin:  strings.NewReader(""),
		stdout: stdout,
		stderr: &bytes.Buffer{},
		logger: discardLogger(),
	}
}

func TestBracketPassesExitCodeThrough(t *testing.T) {
	sender := &recordingSender{responses: map[string]string{"start": "on", "end": "off"}}
	var stdout bytes.Buffer

	err := newBracket(sender, &stdout).run(context.Background(), []string{"sh", "-c", "exit 3"})

	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 3 {
		t.Fatalf("run = %v, want ExitError with code 3", err)
	}
	if !slices.Equal(sender.sent, []string{"start", "end"}) {
		t.Errorf("sent %v, want [start end]", sender.sent)
	}
}

func TestBracketSuccess(t *testing.T) {
	sender := &recordingSender{responses: map[string]string{"start": "on", "end": "off"}}
	var stdout bytes.Buffer

	err := newBracket(sender, &stdout).run(context.Background(),
		[]string{"sh", "-c", `echo "$__NV_PRIME_RENDER_OFFLOAD $__GLX_VENDOR_LIBRARY_NAME $1"`, "sh", "two words"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := strings.TrimSpace(stdout.String()); got != "1 nvidia two words" {
		t.Errorf("child saw %q, want offload environment and untouched argv", got)
	}
}

func TestBracketSignalExit(t *testing.T) {
	sender := &recordingSender{responses: map[string]string{"start": "on"}}
	var stdout bytes.Buffer

	err := newBracket(sender, &stdout).run(context.Background(), []string{"sh", "-c", "kill -TERM $$"})

	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 128+15 {
		t.Fatalf("run = %v, want ExitError with code 143", err)
	}
}

func TestBracketEndsSessionWhenCommandIsMissing(t *testing.T) {
	sender := &recordingSender{responses: map[string]string{"start": "on"}}
	var stdout bytes.Buffer

	err := newBracket(sender, &stdout).run(context.Background(), []string{"nvx-test-no-such-binary"})
	if err == nil {
		t.Fatal("run succeeded for a missing binary")
	}
	var exitErr *cli.ExitError
	if errors.As(err, &exitErr) {
		t.Errorf("missing binary reported as exit code %d, want an error", exitErr.Code)
	}
	if !slices.Equal(sender.sent, []string{"start", "end"}) {
		t.Errorf("sent %v, want [start end]", sender.sent)
	}
}

func TestBracketDaemonUnreachable(t *testing.T) {
	sender := &recordingSender{err: control.ErrUnreachable}
	var stdout bytes.Buffer

	err := newBracket(sender, &stdout).run(context.Background(), []string{"sh", "-c", "echo ran"})
	if !errors.Is(err, control.ErrUnreachable) {
		t.Fatalf("run = %v, want ErrUnreachable", err)
	}
	if stdout.Len() != 0 {
		t.Errorf("command ran without a session: %q", stdout.String())
	}
	if !slices.Equal(sender.sent, []string{"start"}) {
		t.Errorf("sent %v, want only [start]", sender.sent)
	}
}

// trapScript announces itself, then exits 7 on SIGTERM or 8 on SIGHUP.
const trapScript = `trap 'exit 7' TERM; trap 'exit 8' HUP; echo ready; while :; do sleep 0.05; done`

// runTrapped starts the trap script inside a bracket and returns once
// the script is running. The bracket's result arrives on the returned
// channel.
func runTrapped(t *testing.T, sender *recordingSender, signals <-chan os.Signal) <-chan error {
	t.Helper()
	reader, writer, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { reader.Close() })

	b := bracket{
		send:    sender.send,
		stdin:   strings.NewReader(""),
		stdout:  writer,
		stderr:  &bytes.Buffer{},
		logger:  discardLogger(),
		signals: signals,
	}
	result := make(chan error, 1)
	go func() {
		result <- b.run(context.Background(), []string{"sh", "-c", trapScript})
		writer.Close()
	}()

	ready := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(reader).ReadString('\n')
		ready <- line
	}()
	if line := testutil.RequireReceive(t, ready, 5*time.Second, "waiting for the command to start"); line != "ready\n" {
		t.Fatalf("command printed %q, want ready", line)
	}
	return result
}

func TestBracketForwardsTerminationSignals(t *testing.T) {
	for _, test := range []struct {
		signal syscall.Signal
		code   int
	}{
		{syscall.SIGTERM, 7},
		{syscall.SIGHUP, 8},
	} {
		t.Run(test.signal.String(), func(t *testing.T) {
			sender := &recordingSender{responses: map[string]string{"start": "on", "end": "off"}}
			signals := make(chan os.Signal, 1)
			result := runTrapped(t, sender, signals)

			signals <- test.signal
			err := testutil.RequireReceive(t, result, 5*time.Second, "waiting for the bracket to finish")

			var exitErr *cli.ExitError
			if !errors.As(err, &exitErr) || exitErr.Code != test.code {
				t.Fatalf("run = %v, want ExitError with code %d", err, test.code)
			}
			if !slices.Equal(sender.sent, []string{"start", "end"}) {
				t.Errorf("sent %v, want [start end]", sender.sent)
			}
		})
	}
}

func TestBracketSurvivesSIGTERM(t *testing.T) {
	sender := &recordingSender{responses: map[string]string{"start": "on", "end": "off"}}
	result := runTrapped(t, sender, nil)

	// Delivered to this process, as a service manager or kill(1) would.
	if err := syscall.Kill(os.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatal(err)
	}
	err := testutil.RequireReceive(t, result, 5*time.Second, "waiting for the bracket to finish")

	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 7 {
		t.Fatalf("run = %v, want ExitError with code 7", err)
	}
	if !slices.Equal(sender.sent, []string{"start", "end"}) {
		t.Errorf("sent %v, want [start end]", sender.sent)
	}
}

func TestBracketIgnoresInterruptForChild(t *testing.T) {
	sender := &recordingSender{responses: map[string]string{"start": "on", "end": "off"}}
	signals := make(chan os.Signal, 2)
	result := runTrapped(t, sender, signals)

	// SIGINT is not relayed: the terminal already delivered it to the
	// command's process group. The command keeps running until SIGTERM.
	signals <- os.Interrupt
	select {
	case err := <-result:
		t.Fatalf("bracket finished after SIGINT: %v", err)
	case <-time.After(200 * time.Millisecond):
	}

	signals <- syscall.SIGTERM
	err := testutil.RequireReceive(t, result, 5*time.Second, "waiting for the bracket to finish")
	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 7 {
		t.Fatalf("run = %v, want ExitError with code 7", err)
	}
}

func TestOffloadEnvironment(t *testing.T) {
	base := []string{
		"HOME=/home/gamer",
		"__GLX_VENDOR_LIBRARY_NAME=mesa",
		"__NV_PRIME_RENDER_OFFLOAD_PROVIDER=NVIDIA-G0",
	}

	got := offloadEnvironment(base)

	want := []string{
		"HOME=/home/gamer",
		"__NV_PRIME_RENDER_OFFLOAD_PROVIDER=NVIDIA-G0",
		"__NV_PRIME_RENDER_OFFLOAD=1",
		"__VK_LAYER_NV_optimus=NVIDIA_only",
		"__GLX_VENDOR_LIBRARY_NAME=nvidia",
	}
	if !slices.Equal(got, want) {
		t.Errorf("offloadEnvironment = %v, want %v", got, want)
	}
	if base[1] != "__GLX_VENDOR_LIBRARY_NAME=mesa" {
		t.Error("offloadEnvironment modified its input")
	}
}
