// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package power

import (
	"context"
	"log/slog"

	"github.com/bureau-foundation/nvx/lib/runner"
	"github.com/bureau-foundation/nvx/lib/sysfs"
	"github.com/bureau-foundation/nvx/lib/topology"
)

// DeviceSource returns the current device pairs. An unavailable
// topology yields an empty list.
type DeviceSource interface {
	Devices(ctx context.Context) []topology.DevicePair
}

// Engine performs power transitions over the current discovery result.
type Engine struct {
	sysfs    sysfs.Writer
	devices  DeviceSource
	runner   runner.Runner
	modprobe string
	modules  Modules
	logger   *slog.Logger
}

// Config holds the Engine's collaborators.
type Config struct {
	Sysfs   sysfs.Writer
	Devices DeviceSource
	Runner  runner.Runner

	// Modprobe is the module loader binary. Empty means "modprobe".
	Modprobe string

	Modules Modules
	Logger  *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(config Config) *Engine {
	modprobe := config.Modprobe
	if modprobe == "" {
		modprobe = "modprobe"
	}
	return &Engine{
		sysfs:    config.Sysfs,
		devices:  config.Devices,
		runner:   config.Runner,
		modprobe: modprobe,
		modules:  config.Modules,
		logger:   config.Logger,
	}
}

// PowerOn rescans the PCI bus and powers every discovered pair, bridge
// first. The rescan is unconditional: it is what makes a device removed
// by a previous PowerOff reappear.
func (e *Engine) PowerOn(ctx context.Context) int {
	e.logger.Info("power on")
	failures := 0
	if !e.write(sysfs.RescanPath(), sysfs.Trigger) {
		failures++
	}

	for _, pair := range e.devices.Devices(ctx) {
		e.logger.Info("powering on device",
			"name", pair.Name,
			"device", pair.Device,
			"bridge", pair.Bridge,
		)
		if !e.write(sysfs.PowerControlPath(pair.Bridge), sysfs.PowerOn) {
			failures++
		}
		if !e.write(sysfs.PowerControlPath(pair.Device), sysfs.PowerOn) {
			failures++
		}
	}
	return failures
}

// PowerOff removes every discovered device from the bus and hands its
// bridge back to runtime power management. Removal rather than a
// power/control "off" is used because a discrete GPU only reaches its
// low-power state reliably once its PCI node is gone.
func (e *Engine) PowerOff(ctx context.Context) int {
	e.logger.Info("power off")
	failures := 0
	for _, pair := range e.devices.Devices(ctx) {
		e.logger.Info("powering off device",
			"name", pair.Name,
			"device", pair.Device,
			"bridge", pair.Bridge,
		)
		if !e.write(sysfs.RemovePath(pair.Device), sysfs.Trigger) {
			failures++
		}
		if !e.write(sysfs.PowerControlPath(pair.Bridge), sysfs.PowerAuto) {
			failures++
		}
	}
	return failures
}

func (e *Engine) write(path, value string) bool {
	if err := e.sysfs.Write(path, value); err != nil {
		e.logger.Warn("sysfs write failed",
			"path", path,
			"value", value,
			"error", err,
		)
		return false
	}
	return true
}
