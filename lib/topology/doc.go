// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package topology discovers the PCI bridge/device pairs that make up
// the managed GPU.
//
// The hardware tree comes from lshw's JSON output. [Parse] turns it
// into a [Node] tree, [Collect] walks that tree in source order and
// emits one [DevicePair] for every child that matches the [Filter],
// paired with its immediate parent. [Discoverer] ties the two together
// with the external tool invocation.
//
// Discovery is never cached: removing a device during power-off deletes
// its node, so every caller re-derives the topology.
package topology
