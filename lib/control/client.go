// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
)

// ErrUnreachable is wrapped by Send when the daemon socket cannot be
// reached.
var ErrUnreachable = errors.New("nvx daemon unreachable")

// Send delivers command to the daemon at socketPath and returns its
// response. The command is written, the write side closed to signal the
// end of input, and the response read until the daemon closes the
// connection. Commands can take as long as a power sequence, so only
// ctx bounds the exchange.
func Send(ctx context.Context, socketPath, command string) (string, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return "", fmt.Errorf("%w at %s: %w", ErrUnreachable, socketPath, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	if _, err := io.WriteString(conn, command); err != nil {
		return "", fmt.Errorf("sending %q: %w", command, err)
	}
	if unixConn, ok := conn.(*net.UnixConn); ok {
		if err := unixConn.CloseWrite(); err != nil {
			return "", fmt.Errorf("closing write side: %w", err)
		}
	}

	response, err := io.ReadAll(conn)
	if err != nil {
		return "", fmt.Errorf("reading response to %q: %w", command, err)
	}
	return string(response), nil
}
