// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bureau-foundation/nvx/lib/testutil"
)

// echoHandler answers with the command it was given and tracks how many
// commands run at once.
type echoHandler struct {
	mu       sync.Mutex
	received []string

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	delay       time.Duration
}

func (h *echoHandler) Handle(_ context.Context, command string) string {
	current := h.inFlight.Add(1)
	defer h.inFlight.Add(-1)
	for {
		previous := h.maxInFlight.Load()
		if current <= previous || h.maxInFlight.CompareAndSwap(previous, current) {
			break
		}
	}
	if h.delay > 0 {
		time.Sleep(h.delay)
	}

	h.mu.Lock()
	h.received = append(h.received, command)
	h.mu.Unlock()
	return "ack " + command
}

// startServer serves handler on a fresh socket. The returned stop
// function shuts the server down and reports what ServeListener
// returned; it is also registered as test cleanup.
func startServer(t *testing.T, handler Handler) (string, func() error) {
	t.Helper()
	socketPath := filepath.Join(testutil.SocketDir(t), "nvx.sock")
	server := NewServer(socketPath, handler, slog.New(slog.NewTextHandler(io.Discard, nil)))

	listener, err := server.Listen()
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.ServeListener(ctx, listener) }()

	var once sync.Once
	var serveErr error
	stop := func() error {
		once.Do(func() {
			cancel()
			serveErr = testutil.RequireReceive(t, done, 5*time.Second, "waiting for server shutdown")
		})
		return serveErr
	}
	t.Cleanup(func() { stop() })
	return socketPath, stop
}

func TestSendRoundTrip(t *testing.T) {
	handler := &echoHandler{}
	socketPath, _ := startServer(t, handler)

	response, err := Send(context.Background(), socketPath, "status")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if response != "ack status" {
		t.Errorf("response = %q, want %q", response, "ack status")
	}
}

func TestSocketIsWorldWritable(t *testing.T) {
	socketPath, _ := startServer(t, &echoHandler{})

	info, err := os.Stat(socketPath)
	if err != nil {
		t.Fatalf("stat socket: %v", err)
	}
	if info.Mode().Perm() != 0o777 {
		t.Errorf("socket mode = %v, want 0777", info.Mode().Perm())
	}
}

func TestCommandsAreSerialized(t *testing.T) {
	handler := &echoHandler{delay: 20 * time.Millisecond}
	socketPath, _ := startServer(t, handler)

	var clients sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		clients.Add(1)
		go func() {
			defer clients.Done()
			response, err := Send(context.Background(), socketPath, "start")
			if err == nil && response != "ack start" {
				err = errors.New("unexpected response " + response)
			}
			errs <- err
		}()
	}
	clients.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("client: %v", err)
		}
	}

	if got := handler.maxInFlight.Load(); got != 1 {
		t.Errorf("max concurrent commands = %d, want 1", got)
	}
	handler.mu.Lock()
	defer handler.mu.Unlock()
	if len(handler.received) != 8 {
		t.Errorf("handled %d commands, want 8", len(handler.received))
	}
}

func TestEmptyConnectionIsIgnored(t *testing.T) {
	handler := &echoHandler{}
	socketPath, _ := startServer(t, handler)

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	conn.(*net.UnixConn).CloseWrite()
	data, err := io.ReadAll(conn)
	conn.Close()
	if err != nil || len(data) != 0 {
		t.Errorf("empty request got (%q, %v), want no response", data, err)
	}

	// The server is still serving.
	if response, err := Send(context.Background(), socketPath, "ps"); err != nil || response != "ack ps" {
		t.Errorf("Send after empty connection = (%q, %v)", response, err)
	}
}

func TestShutdownRemovesSocket(t *testing.T) {
	socketPath, stop := startServer(t, &echoHandler{})

	if err := stop(); err != nil {
		t.Errorf("ServeListener returned %v, want nil", err)
	}

	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Errorf("socket still present after shutdown: %v", err)
	}
}

func TestListenReplacesStaleSocket(t *testing.T) {
	socketPath := filepath.Join(testutil.SocketDir(t), "nvx.sock")

	// A daemon that died without cleaning up leaves its socket file
	// behind with nothing listening on it.
	previous, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatal(err)
	}
	previous.(*net.UnixListener).SetUnlinkOnClose(false)
	previous.Close()
	if _, err := os.Lstat(socketPath); err != nil {
		t.Fatalf("stale socket missing: %v", err)
	}

	server := NewServer(socketPath, &echoHandler{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	listener, err := server.Listen()
	if err != nil {
		t.Fatalf("Listen over stale socket: %v", err)
	}
	listener.Close()
}

func TestListenRefusesNonSocket(t *testing.T) {
	socketPath := filepath.Join(testutil.SocketDir(t), "nvx.sock")
	if err := os.WriteFile(socketPath, []byte("not a socket"), 0644); err != nil {
		t.Fatal(err)
	}

	server := NewServer(socketPath, &echoHandler{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if listener, err := server.Listen(); err == nil {
		listener.Close()
		t.Fatal("Listen over a regular file succeeded")
	}

	data, err := os.ReadFile(socketPath)
	if err != nil || string(data) != "not a socket" {
		t.Errorf("regular file after Listen = (%q, %v), want it untouched", data, err)
	}
}

func TestListenRefusesLiveSocket(t *testing.T) {
	socketPath, _ := startServer(t, &echoHandler{})

	second := NewServer(socketPath, &echoHandler{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if _, err := second.Listen(); !errors.Is(err, ErrSocketInUse) {
		t.Fatalf("Listen on a live socket = %v, want ErrSocketInUse", err)
	}

	// The first server still owns the path.
	if response, err := Send(context.Background(), socketPath, "status"); err != nil || response != "ack status" {
		t.Errorf("Send after refused Listen = (%q, %v)", response, err)
	}
}

func TestServeFailsWhenSocketCannotBeBound(t *testing.T) {
	socketPath := filepath.Join(testutil.SocketDir(t), "missing-dir", "nvx.sock")
	server := NewServer(socketPath, &echoHandler{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if err := server.Serve(context.Background()); err == nil {
		t.Fatal("Serve succeeded on an unbindable path")
	}
}

func TestSendUnreachable(t *testing.T) {
	socketPath := filepath.Join(testutil.SocketDir(t), "absent.sock")
	_, err := Send(context.Background(), socketPath, "status")
	if !errors.Is(err, ErrUnreachable) {
		t.Errorf("Send err = %v, want ErrUnreachable", err)
	}
}
