// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/bureau-foundation/nvx/cmd/nvx/cli"
	"github.com/bureau-foundation/nvx/lib/version"
)

// root builds the nvx command tree.
func root() *cli.Command {
	return &cli.Command{
		Name:    "nvx",
		Summary: "Discrete GPU power control",
		Description: `Discrete GPU power control.

The daemon keeps the discrete GPU off the PCI bus until a session needs
it. Clients talk to the daemon over a Unix socket.`,
		Subcommands: []*cli.Command{
			daemonCommand(),
			startCommand(),
			statusCommand(),
			onCommand(),
			offCommand(),
			devCommand(),
			psCommand(),
			killCommand(),
			versionCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "Run a program on the discrete GPU",
				Command:     "nvx start glxgears",
			},
			{
				Description: "See who is keeping the GPU busy",
				Command:     "nvx ps",
			},
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Run: func(args []string) error {
			fmt.Fprintf(os.Stdout, "nvx %s\n", version.Full())
			return nil
		},
	}
}
