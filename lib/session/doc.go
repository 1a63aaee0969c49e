// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package session arbitrates on/off requests for the managed GPU.
//
// A [Dispatcher] owns the session counter: the number of "keep the GPU
// powered" brackets currently open. The device is Idle when the counter
// is zero and Active otherwise; that state is derived from the counter,
// never stored.
//
// Two kinds of command change power state:
//
//   - "on" and "off" are manual overrides. They are refused with "busy"
//     while any session is open so an operator can never pull the GPU
//     out from under a client that depends on it.
//   - "start" and "end" bracket a client's GPU-using command. They are
//     always accepted and compose by reference counting: the on sequence
//     runs when the counter goes 0→1 and the off sequence runs when it
//     returns to 0. The counter never goes below zero.
//
// The command set is fixed; there is no dynamic dispatch.
package session
