// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package power sequences the PCI and kernel-module operations that
// bring the managed GPU online and take it offline.
//
// Ordering is the whole point of this package:
//
//   - Power-on: hot-plug rescan, rediscover, then per pair the bridge
//     power/control before the device power/control, both set to "on".
//   - Power-off: discover, then per pair the device is removed from the
//     bus before the bridge power/control is returned to "auto".
//   - Modules load in configured (dependency) order and unload in the
//     exact reverse order.
//
// No step aborts its sequence. A failed write or modprobe is logged and
// the engine moves on, because one stuck device or module must not keep
// the others from being released. Each sequence returns the number of
// steps that failed so callers can log a summary.
package power
