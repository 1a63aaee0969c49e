// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/nvx/cmd/nvx/cli"
	"github.com/bureau-foundation/nvx/lib/config"
	"github.com/bureau-foundation/nvx/lib/control"
	"github.com/bureau-foundation/nvx/lib/session"
)

// connection carries the --socket flag shared by every client command.
type connection struct {
	socketPath string
}

func (c *connection) addFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&c.socketPath, "socket", defaultSocketPath(), "daemon control socket")
}

// send delivers one command to the daemon. An unreachable daemon gets a
// hint instead of a bare dial error.
func (c *connection) send(ctx context.Context, command string) (string, error) {
	response, err := control.Send(ctx, c.socketPath, command)
	if errors.Is(err, control.ErrUnreachable) {
		return "", fmt.Errorf("%w\n\nIs the daemon running? Start it with 'sudo nvx daemon', or point --socket at its socket.", err)
	}
	return response, err
}

// defaultSocketPath is the socket named by the config file when one can
// be loaded, and the built-in default otherwise. Clients run
// unprivileged and must not fail just because the config is unreadable.
func defaultSocketPath() string {
	cfg, err := config.Load()
	if err != nil || cfg.SocketPath == "" {
		return control.DefaultSocketPath
	}
	return cfg.SocketPath
}

// powerCommand builds on, off and status: send the command, print the
// status that comes back.
func powerCommand(name, summary, description string) *cli.Command {
	var conn connection
	return &cli.Command{
		Name:        name,
		Summary:     summary,
		Description: description,
		Usage:       "nvx " + name + " [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
			conn.addFlags(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			response, err := conn.send(context.Background(), name)
			if err != nil {
				return err
			}
			printStatus(os.Stdout, response, isTerminal(os.Stdout))
			if response == session.ResponseBusy {
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}

func statusCommand() *cli.Command {
	return powerCommand(session.CommandStatus, "Report whether the GPU is powered",
		`Report whether the discrete GPU is present on the PCI bus ("on") or
removed from it ("off").`)
}

func onCommand() *cli.Command {
	return powerCommand(session.CommandOn, "Power the GPU on and load the driver",
		`Power the discrete GPU on and load the driver modules, outside any
session. Prints "busy" and exits 1 while sessions are open.`)
}

func offCommand() *cli.Command {
	return powerCommand(session.CommandOff, "Unload the driver and power the GPU off",
		`Unload the driver modules and remove the discrete GPU from the PCI
bus. Prints "busy" and exits 1 while sessions are open. With
kill_on_off set, processes using the GPU are sent SIGTERM first.`)
}

// listCommand builds dev, ps and kill: the daemon answers with a JSON
// array which is printed as a table or passed through with --json.
func listCommand[T any](name, summary, description string, render func(io.Writer, []T)) *cli.Command {
	var conn connection
	var output cli.JSONOutput
	return &cli.Command{
		Name:        name,
		Summary:     summary,
		Description: description,
		Usage:       "nvx " + name + " [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
			conn.addFlags(flagSet)
			output.AddJSONFlag(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			response, err := conn.send(context.Background(), name)
			if err != nil {
				return err
			}
			var items []T
			if err := json.Unmarshal([]byte(response), &items); err != nil {
				return fmt.Errorf("unexpected response from daemon: %q", response)
			}
			if done, err := output.EmitJSON(os.Stdout, items); done {
				return err
			}
			render(os.Stdout, items)
			return nil
		},
	}
}

func devCommand() *cli.Command {
	return listCommand(session.CommandDev, "List the managed GPU devices",
		`List the discrete GPU functions and the PCI bridge above each. The
list is empty while the GPU is powered off.`,
		printDevices)
}

func psCommand() *cli.Command {
	return listCommand(session.CommandPS, "List processes using the GPU",
		`List processes holding a GPU device file open. Processes that only
hold the shared control node are left out.`,
		printProcesses)
}

func killCommand() *cli.Command {
	return listCommand(session.CommandKill, "Send SIGTERM to processes using the GPU",
		`Send SIGTERM to every process holding a GPU device file open,
including the shared control node, then list what is still running.`,
		printProcesses)
}
