// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Nvx keeps a hot-pluggable discrete GPU powered off until something
// needs it.
//
// "nvx daemon" runs as root. At boot it hides the NVIDIA EGL vendor,
// unloads the driver, and removes the GPU from the PCI bus. It then
// serves a Unix socket on which unprivileged clients ask for the GPU.
//
// "nvx start <command>" opens a session: the daemon rescans the bus,
// powers the GPU and loads the driver, the command runs with the PRIME
// offload environment, and when the last session ends the GPU is
// powered off again. The remaining subcommands query or drive the
// daemon directly.
package main

import (
	"os"

	"github.com/bureau-foundation/nvx/lib/process"
)

func main() {
	if err := run(); err != nil {
		// "nvx start" passes the child's exit status through as an
		// ExitError. Nothing else to print for those.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		process.Fatal(err)
	}
}

func run() error {
	return root().Execute(os.Args[1:])
}
