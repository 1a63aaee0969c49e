// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package runner invokes external tools (lshw, modprobe, lsof) as
// argument vectors with a bounded timeout.
//
// Commands never go through a shell. A tool that runs and exits
// non-zero is reported as a [Result] with a non-zero ExitCode and a nil
// error, because for several tools a non-zero status is an ordinary
// answer (lsof exits 1 when no file is open). An error means the tool
// could not produce an answer at all: the binary is missing, it was
// killed, or it ran past the timeout ([ErrTimeout]).
//
// Components depend on the [Runner] interface so tests substitute a
// scripted fake instead of executing real tools.
package runner
