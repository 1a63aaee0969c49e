// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/bureau-foundation/nvx/lib/census"
	"github.com/bureau-foundation/nvx/lib/session"
	"github.com/bureau-foundation/nvx/lib/topology"
)

var (
	statusOnStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	statusOffStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusBusyStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
)

func isTerminal(file *os.File) bool {
	return term.IsTerminal(int(file.Fd()))
}

// printStatus writes a status response, colored when color is set.
func printStatus(w io.Writer, response string, color bool) {
	if !color {
		fmt.Fprintln(w, response)
		return
	}
	switch response {
	case session.StatusOn:
		fmt.Fprintln(w, statusOnStyle.Render(response))
	case session.StatusOff:
		fmt.Fprintln(w, statusOffStyle.Render(response))
	case session.ResponseBusy:
		fmt.Fprintln(w, statusBusyStyle.Render(response))
	default:
		fmt.Fprintln(w, response)
	}
}

func printDevices(w io.Writer, devices []topology.DevicePair) {
	if len(devices) == 0 {
		fmt.Fprintln(w, "no devices (GPU powered off or not found)")
		return
	}
	tw := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "DEVICE\tBRIDGE\tNAME")
	for _, device := range devices {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", device.Device, device.Bridge, device.Name)
	}
	tw.Flush()
}

func printProcesses(w io.Writer, processes []census.Process) {
	if len(processes) == 0 {
		fmt.Fprintln(w, "no processes using the GPU")
		return
	}
	tw := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "PID\tCOMMAND\tFILE")
	for _, process := range processes {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", process.PID, process.Name, process.File)
	}
	tw.Flush()
}
