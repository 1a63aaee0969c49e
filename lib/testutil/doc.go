// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for nvx packages.
//
// [SocketDir] creates a short temporary directory in /tmp for Unix
// domain sockets. sun_path is limited to 108 bytes and t.TempDir() can
// produce paths longer than that under some test runners.
//
// [RequireReceive] encapsulates the select-with-timeout safety valve so
// a test blocked on a goroutine fails instead of hanging.
//
// All helpers call t.Fatalf on failure.
package testutil
