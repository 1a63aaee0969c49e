// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package power

import (
	"context"
	"slices"
	"strings"
)

// DefaultInbox is the in-tree display driver that is never loaded
// explicitly: it is either already resident or deliberately
// blacklisted.
const DefaultInbox = "nouveau"

// Modules is the configured kernel module order. Each entry is a module
// name optionally followed by parameters, e.g. "nvidia_drm modeset=1".
// The order lists dependencies first.
type Modules struct {
	Sequence []string
	Inbox    string
}

// Load is one modprobe invocation.
type Load struct {
	Module     string
	Parameters []string
}

// LoadSequence returns the modules to load, in configured order, with
// the inbox module skipped.
func (m Modules) LoadSequence() []Load {
	var loads []Load
	for _, entry := range m.Sequence {
		fields := strings.Fields(entry)
		if len(fields) == 0 || fields[0] == m.Inbox {
			continue
		}
		loads = append(loads, Load{Module: fields[0], Parameters: fields[1:]})
	}
	return loads
}

// UnloadSequence returns module names in the reverse of the configured
// order. Dependents must go before the modules they use or removal
// fails with the module still in use.
func (m Modules) UnloadSequence() []string {
	var names []string
	for _, entry := range slices.Backward(m.Sequence) {
		fields := strings.Fields(entry)
		if len(fields) == 0 {
			continue
		}
		names = append(names, fields[0])
	}
	return names
}

// LoadModules loads each module of the load sequence and returns the
// number that failed.
func (e *Engine) LoadModules(ctx context.Context) int {
	e.logger.Info("loading modules")
	failures := 0
	for _, load := range e.modules.LoadSequence() {
		args := append([]string{load.Module}, load.Parameters...)
		if !e.modprobeRun(ctx, "load", load.Module, args) {
			failures++
		}
	}
	return failures
}

// UnloadModules removes each module of the unload sequence and returns
// the number that failed. A failure does not stop the rest: later
// modules may still be removable, or already absent.
func (e *Engine) UnloadModules(ctx context.Context) int {
	e.logger.Info("unloading modules")
	failures := 0
	for _, module := range e.modules.UnloadSequence() {
		if !e.modprobeRun(ctx, "unload", module, []string{"--remove", module}) {
			failures++
		}
	}
	return failures
}

func (e *Engine) modprobeRun(ctx context.Context, operation, module string, args []string) bool {
	result, err := e.runner.Run(ctx, e.modprobe, args...)
	if err != nil {
		e.logger.Warn("module "+operation+" failed", "module", module, "error", err)
		return false
	}
	if !result.OK() {
		e.logger.Warn("module "+operation+" failed",
			"module", module,
			"exit_code", result.ExitCode,
			"stderr", result.StderrText(),
		)
		return false
	}
	e.logger.Info("module "+operation+" succeeded", "module", module)
	return true
}
