// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package control carries nvx commands over a local Unix socket.
//
// The protocol is plain text with one exchange per connection: the
// client writes a command, half-closes its side, and reads the response
// until the server closes the connection. There is no framing, no
// length prefix, and no structured error; "busy" and "unknown command"
// are ordinary responses.
//
// [Server] accepts connections one at a time and runs each command to
// completion before accepting the next, so commands execute strictly in
// arrival order and never concurrently. A command that has started
// finishes even if its client disconnects or the server is shutting
// down.
//
// [Send] is the client side used by the nvx CLI.
package control
