// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"github.com/bureau-foundation/nvx/lib/census"
	"github.com/bureau-foundation/nvx/lib/journal"
	"github.com/bureau-foundation/nvx/lib/topology"
)

// Control channel commands.
const (
	CommandStatus = "status"
	CommandDev    = "dev"
	CommandPS     = "ps"
	CommandKill   = "kill"
	CommandOn     = "on"
	CommandOff    = "off"
	CommandStart  = "start"
	CommandEnd    = "end"
)

// Responses that are not a status or a listing.
const (
	StatusOn        = "on"
	StatusOff       = "off"
	ResponseBusy    = "busy"
	ResponseUnknown = "unknown command"
)

// Commands lists every command the dispatcher accepts.
var Commands = []string{
	CommandDev, CommandStatus, CommandPS, CommandKill,
	CommandOn, CommandOff, CommandStart, CommandEnd,
}

// DeviceSource discovers the managed device pairs.
type DeviceSource interface {
	Devices(ctx context.Context) []topology.DevicePair
}

// Power performs power and module sequences. Each method returns the
// number of steps that failed.
type Power interface {
	PowerOn(ctx context.Context) int
	PowerOff(ctx context.Context) int
	LoadModules(ctx context.Context) int
	UnloadModules(ctx context.Context) int
}

// Processes lists and reclaims device users.
type Processes interface {
	List(ctx context.Context, includeControlOnly bool) []census.Process
	Reclaim(ctx context.Context) []census.Process
}

// Config holds the Dispatcher collaborators.
type Config struct {
	Devices   DeviceSource
	Power     Power
	Processes Processes

	// Journal records on/off sequences in progress. Nil disables it.
	Journal *journal.Recorder

	// KillOnOff reclaims device users before the off sequence.
	KillOnOff bool

	Logger *slog.Logger
}

// Dispatcher executes control commands against the GPU. Construct one
// per daemon; Handle calls are serialized.
type Dispatcher struct {
	devices   DeviceSource
	power     Power
	processes Processes
	journal   *journal.Recorder
	killOnOff bool
	logger    *slog.Logger

	mu       sync.Mutex
	sessions int
}

// New creates a Dispatcher with no open sessions.
func New(config Config) *Dispatcher {
	return &Dispatcher{
		devices:   config.Devices,
		power:     config.Power,
		processes: config.Processes,
		journal:   config.Journal,
		killOnOff: config.KillOnOff,
		logger:    config.Logger,
	}
}

// Sessions returns the number of open sessions.
func (d *Dispatcher) Sessions() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions
}

// Handle executes one command and returns the response text. Unknown
// commands are not errors: they return ResponseUnknown and change
// nothing.
func (d *Dispatcher) Handle(ctx context.Context, command string) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	command = strings.TrimSpace(command)
	logger := d.logger.With("command", command, "sessions", d.sessions)
	logger.Info("handling command")

	switch command {
	case CommandStatus:
		return d.status(ctx)
	case CommandDev:
		return encodeList(logger, d.devices.Devices(ctx))
	case CommandPS:
		return encodeList(logger, d.processes.List(ctx, false))
	case CommandKill:
		d.processes.Reclaim(ctx)
		return encodeList(logger, d.processes.List(ctx, false))
	case CommandOn:
		if d.sessions > 0 {
			logger.Info("refusing manual power on while sessions are open")
			return ResponseBusy
		}
		d.turnOn(ctx)
		return d.status(ctx)
	case CommandOff:
		if d.sessions > 0 {
			logger.Info("refusing manual power off while sessions are open")
			return ResponseBusy
		}
		d.turnOff(ctx)
		return d.status(ctx)
	case CommandStart:
		d.sessions++
		if d.sessions == 1 {
			d.turnOn(ctx)
		}
		d.logger.Info("session started", "sessions", d.sessions)
		return d.status(ctx)
	case CommandEnd:
		if d.sessions > 0 {
			d.sessions--
		}
		d.logger.Info("session ended", "sessions", d.sessions)
		if d.sessions == 0 {
			d.turnOff(ctx)
		}
		return d.status(ctx)
	default:
		logger.Warn("unknown command")
		return ResponseUnknown
	}
}

func (d *Dispatcher) status(ctx context.Context) string {
	if len(d.devices.Devices(ctx)) > 0 {
		return StatusOn
	}
	return StatusOff
}

// turnOn powers the device and loads the driver.
func (d *Dispatcher) turnOn(ctx context.Context) {
	d.journal.Begin(journal.TransitionOn, d.sessions)
	failures := d.power.PowerOn(ctx)
	failures += d.power.LoadModules(ctx)
	d.journal.Done()
	d.logSequence("power on sequence finished", failures)
}

// turnOff optionally reclaims device users, unloads the driver, and
// powers the device off. Modules go first: the driver must release the
// device before it is removed from the bus.
func (d *Dispatcher) turnOff(ctx context.Context) {
	d.journal.Begin(journal.TransitionOff, d.sessions)
	if d.killOnOff {
		d.processes.Reclaim(ctx)
	}
	failures := d.power.UnloadModules(ctx)
	failures += d.power.PowerOff(ctx)
	d.journal.Done()
	d.logSequence("power off sequence finished", failures)
}

func (d *Dispatcher) logSequence(message string, failures int) {
	if failures > 0 {
		d.logger.Warn(message, "failed_steps", failures)
		return
	}
	d.logger.Info(message)
}

// encodeList renders a listing as a JSON array. A nil slice renders as
// [] rather than null.
func encodeList[T any](logger *slog.Logger, items []T) string {
	if items == nil {
		items = []T{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		logger.Error("encoding response failed", "error", err)
		return "[]"
	}
	return string(data)
}
