// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"
)

// DefaultSocketPath is where the daemon listens unless configured
// otherwise.
const DefaultSocketPath = "/tmp/nvx.sock"

// socketMode lets any local user reach the daemon.
const socketMode = 0o777

// readTimeout bounds how long a client may take to send its command.
const readTimeout = 10 * time.Second

// writeTimeout bounds writing the response.
const writeTimeout = 10 * time.Second

// maxCommandSize caps a request. Commands are single words.
const maxCommandSize = 1024

// ErrSocketInUse is returned by Listen when another server is answering
// on the socket path.
var ErrSocketInUse = errors.New("control socket in use")

// Handler executes one command and returns the response text.
type Handler interface {
	Handle(ctx context.Context, command string) string
}

// Server serves the text protocol on a Unix socket.
type Server struct {
	socketPath string
	handler    Handler
	logger     *slog.Logger
}

// NewServer creates a server that will listen on socketPath.
func NewServer(socketPath string, handler Handler, logger *slog.Logger) *Server {
	return &Server{
		socketPath: socketPath,
		handler:    handler,
		logger:     logger,
	}
}

// Listen claims the socket path: a stale socket file is removed, the
// socket is bound, and its mode set so any local user can connect. A
// socket that still accepts connections belongs to a running daemon and
// is left alone, as is anything at the path that is not a socket. An
// error here means the daemon cannot run.
func (s *Server) Listen() (net.Listener, error) {
	if conn, err := net.DialTimeout("unix", s.socketPath, time.Second); err == nil {
		conn.Close()
		return nil, fmt.Errorf("%s: %w", s.socketPath, ErrSocketInUse)
	}
	info, err := os.Lstat(s.socketPath)
	switch {
	case err == nil && info.Mode().Type() != os.ModeSocket:
		return nil, fmt.Errorf("%s exists and is not a socket (%s)", s.socketPath, info.Mode().Type())
	case err == nil:
		if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("checking socket path %s: %w", s.socketPath, err)
	}
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, socketMode); err != nil {
		listener.Close()
		return nil, fmt.Errorf("setting permissions on %s: %w", s.socketPath, err)
	}
	return listener, nil
}

// Serve claims the socket and handles connections until ctx is
// cancelled. It returns an error only when the socket cannot be claimed.
// The socket file is removed on return.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := s.Listen()
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, listener)
}

// ServeListener handles connections from an already claimed listener
// until ctx is cancelled, then closes it.
func (s *Server) ServeListener(ctx context.Context, listener net.Listener) error {
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()

	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			listener.Close()
		case <-stopped:
		}
	}()

	s.logger.Info("control socket listening", "path", s.socketPath)

	// Commands must not be interrupted by shutdown: a power-off that
	// has begun runs to completion.
	commandContext := context.WithoutCancel(ctx)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}
		s.handleConnection(commandContext, conn)
	}
}

// handleConnection runs one request-response exchange.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	data, err := io.ReadAll(io.LimitReader(conn, maxCommandSize))
	if err != nil {
		s.logger.Warn("reading command failed", "error", err)
		return
	}
	command := strings.TrimSpace(string(data))
	if command == "" {
		// Connected and closed without a command; nothing to answer.
		s.logger.Debug("empty command")
		return
	}

	response := s.handler.Handle(ctx, command)

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := io.WriteString(conn, response); err != nil {
		// The command already ran; the client just missed the answer.
		s.logger.Debug("writing response failed", "command", command, "error", err)
	}
}
