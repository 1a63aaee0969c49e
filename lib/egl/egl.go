// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package egl hides the NVIDIA EGL vendor from glvnd.
//
// glvnd picks EGL vendors from JSON files whose top-level key is "ICD".
// Renaming the key to "-ICD" makes glvnd skip the file, so applications
// default to the integrated GPU even while the discrete one is powered.
// Bracketed children still reach the NVIDIA stack through the PRIME
// offload environment.
package egl

import (
	"bytes"
	"fmt"
	"os"
)

var (
	enabledKey  = []byte(`"ICD"`)
	disabledKey = []byte(`"-ICD"`)
)

// Apply disables the vendor file at path. An empty path is a no-op.
// Applying twice leaves the file unchanged.
func Apply(path string) error {
	return rewrite(path, enabledKey, disabledKey)
}

// Revert re-enables the vendor file at path. An empty path is a no-op.
func Revert(path string) error {
	return rewrite(path, disabledKey, enabledKey)
}

// Applied reports whether the vendor file at path is currently disabled.
func Applied(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("reading EGL vendor file: %w", err)
	}
	return bytes.Contains(data, disabledKey), nil
}

func rewrite(path string, from, to []byte) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading EGL vendor file: %w", err)
	}
	updated := bytes.ReplaceAll(data, from, to)
	if bytes.Equal(updated, data) {
		return nil
	}
	// The file already exists, so its mode is kept.
	if err := os.WriteFile(path, updated, 0644); err != nil {
		return fmt.Errorf("writing EGL vendor file: %w", err)
	}
	return nil
}
