// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package topology

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/nvx/lib/runner"
)

// ErrTopologyUnavailable is wrapped by Discover when the topology source
// could not be asked: the tool failed to run, exited non-zero, or
// printed something that is not an lshw tree.
var ErrTopologyUnavailable = errors.New("topology unavailable")

// DefaultCommand is the lshw invocation. Disabling the slow probes that
// never report PCI display devices keeps a call well under a second.
func DefaultCommand() []string {
	command := []string{"lshw", "-json"}
	for _, probe := range []string{
		"cpuid", "cpuinfo", "device-tree", "dmi", "ide", "isapnp",
		"memory", "network", "pcmcia", "scsi", "spd", "usb",
	} {
		command = append(command, "-disable", probe)
	}
	return command
}

// Discoverer runs the topology source and collects device pairs.
type Discoverer struct {
	runner  runner.Runner
	filter  Filter
	command []string
	logger  *slog.Logger
}

// NewDiscoverer creates a Discoverer. An empty command uses
// DefaultCommand.
func NewDiscoverer(run runner.Runner, filter Filter, command []string, logger *slog.Logger) *Discoverer {
	if len(command) == 0 {
		command = DefaultCommand()
	}
	return &Discoverer{
		runner:  run,
		filter:  filter,
		command: command,
		logger:  logger,
	}
}

// Discover runs the topology source and returns the matching pairs. The
// error wraps ErrTopologyUnavailable.
func (d *Discoverer) Discover(ctx context.Context) ([]DevicePair, error) {
	result, err := d.runner.Run(ctx, d.command[0], d.command[1:]...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTopologyUnavailable, err)
	}
	if !result.OK() {
		return nil, fmt.Errorf("%w: %s exited with status %d: %s",
			ErrTopologyUnavailable, d.command[0], result.ExitCode, result.StderrText())
	}

	root, err := Parse(result.Stdout)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTopologyUnavailable, err)
	}
	return Collect(root, d.filter), nil
}

// Devices is Discover for callers that treat "could not ask" the same
// as "no GPU found": failures are logged at warning level and produce an
// empty list.
func (d *Discoverer) Devices(ctx context.Context) []DevicePair {
	pairs, err := d.Discover(ctx)
	if err != nil {
		d.logger.Warn("topology discovery failed", "error", err)
		return []DevicePair{}
	}
	d.logger.Debug("topology discovered", "devices", len(pairs))
	if pairs == nil {
		pairs = []DevicePair{}
	}
	return pairs
}
