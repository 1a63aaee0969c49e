// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sysfs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestPaths(t *testing.T) {
	if got, want := PowerControlPath("0000:01:00.0"), "bus/pci/devices/0000:01:00.0/power/control"; got != want {
		t.Errorf("PowerControlPath = %q, want %q", got, want)
	}
	if got, want := RemovePath("0000:01:00.1"), "bus/pci/devices/0000:01:00.1/remove"; got != want {
		t.Errorf("RemovePath = %q, want %q", got, want)
	}
	if got, want := RescanPath(), "bus/pci/rescan"; got != want {
		t.Errorf("RescanPath = %q, want %q", got, want)
	}
}

func TestFSWriteExistingAttribute(t *testing.T) {
	root := t.TempDir()
	attribute := filepath.Join(root, PowerControlPath("0000:01:00.0"))
	if err := os.MkdirAll(filepath.Dir(attribute), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(attribute, []byte("auto"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := (FS{Root: root}).Write(PowerControlPath("0000:01:00.0"), PowerOn); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := os.ReadFile(attribute)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "on" {
		t.Errorf("attribute = %q, want %q", data, "on")
	}
}

func TestFSWriteMissingAttribute(t *testing.T) {
	root := t.TempDir()
	err := (FS{Root: root}).Write(RemovePath("0000:01:00.1"), Trigger)
	if err == nil {
		t.Fatal("expected error writing to a missing attribute")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want wrapping os.ErrNotExist", err)
	}
	if _, statErr := os.Stat(filepath.Join(root, RemovePath("0000:01:00.1"))); !os.IsNotExist(statErr) {
		t.Error("Write created the missing attribute")
	}
}

func TestRecorderFailures(t *testing.T) {
	recorder := &Recorder{Fail: map[string]error{RescanPath(): os.ErrPermission}}

	if err := recorder.Write(RescanPath(), Trigger); !errors.Is(err, os.ErrPermission) {
		t.Errorf("failing write err = %v, want ErrPermission", err)
	}
	if err := recorder.Write(PowerControlPath("a"), PowerAuto); err != nil {
		t.Fatalf("Write: %v", err)
	}
	writes := recorder.Writes()
	if len(writes) != 1 || writes[0].Value != PowerAuto {
		t.Errorf("Writes() = %+v, want one auto write", writes)
	}
}
