// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the nvx daemon
// and its client.
//
// Configuration comes from a single file: the path given with --config
// (via [LoadFile]) or the NVX_CONFIG environment variable (via [Load]).
// When neither is set, [Load] reads [DefaultPath] if it exists and
// otherwise uses the built-in defaults, so an unconfigured machine with
// the usual NVIDIA module set works without a file.
//
// Variable expansion is performed on path fields after loading:
// ${HOME} and ${VAR:-default} patterns are expanded. No other
// environment variables override config values.
//
// Key exports:
//
//   - [Config] -- master struct with device, module, tool and census
//     settings
//   - [Default] -- returns a Config with the stock NVIDIA setup
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other nvx packages.
package config
