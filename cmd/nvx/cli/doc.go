// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command tree for the nvx binary.
//
// A [Command] has a name, help text, lazily built pflag flags, and either
// subcommands or a Run function. [Command.Execute] dispatches by the
// first positional argument, suggests the closest command or flag on a
// typo, and prints structured help for -h, --help, and "help".
//
// Commands report a handled non-zero exit (the exit status of a
// bracketed child, for instance) with [ExitError]; main exits with that
// code without printing anything further.
//
// [NewCommandLogger] gives client commands a logger that is readable on
// a terminal and machine-parseable when redirected. [JSONOutput] and
// [WriteJSON] back the --json flag.
package cli
