// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sysfs writes PCI power-control attributes. Paths are relative
// to the sysfs mount so tests can point [FS] at a synthetic tree, and
// callers depend on the [Writer] interface so the order of writes can be
// captured with [Recorder].
package sysfs

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Attribute values accepted by the PCI power-control interface.
const (
	PowerOn   = "on"
	PowerAuto = "auto"
	Trigger   = "1"
)

// RescanPath is the global hot-plug rescan trigger.
func RescanPath() string {
	return "bus/pci/rescan"
}

// PowerControlPath is the runtime power-management attribute of a PCI
// function, e.g. "bus/pci/devices/0000:01:00.0/power/control".
func PowerControlPath(address string) string {
	return filepath.Join("bus/pci/devices", address, "power/control")
}

// RemovePath is the attribute that detaches a PCI function from the bus.
func RemovePath(address string) string {
	return filepath.Join("bus/pci/devices", address, "remove")
}

// Writer writes a value to a sysfs attribute.
type Writer interface {
	Write(path, value string) error
}

// FS writes to a real sysfs mount.
type FS struct {
	// Root is the sysfs mount point, normally "/sys".
	Root string
}

// Write opens an existing attribute and writes value to it. Attributes
// are never created: a missing path means the device is absent.
func (f FS) Write(path, value string) error {
	fullPath := filepath.Join(f.Root, path)
	file, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return fmt.Errorf("opening %s: %w", fullPath, err)
	}
	if _, err := file.WriteString(value); err != nil {
		file.Close()
		return fmt.Errorf("writing %q to %s: %w", value, fullPath, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", fullPath, err)
	}
	return nil
}

// WriteRecord is one attribute write captured by a Recorder.
type WriteRecord struct {
	Path  string
	Value string
}

// Recorder is a Writer that records writes in order. Paths listed in
// Fail return an error instead of being recorded as successful, which
// simulates an absent device.
type Recorder struct {
	mu     sync.Mutex
	Fail   map[string]error
	writes []WriteRecord
}

// Write records the write, or returns the configured failure.
func (r *Recorder) Write(path, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, failing := r.Fail[path]; failing {
		return err
	}
	r.writes = append(r.writes, WriteRecord{Path: path, Value: value})
	return nil
}

// Writes returns the successful writes in order.
func (r *Recorder) Writes() []WriteRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]WriteRecord(nil), r.writes...)
}

// Reset clears recorded writes.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes = nil
}
