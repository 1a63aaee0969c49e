// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds entrypoint helpers for the nvx binary: the
// pre-logger fatal path used by main when run returns an error.
package process
