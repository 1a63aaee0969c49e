// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build version information for the nvx binary.
// Values are injected with -ldflags at build time:
//
//	go build -ldflags "-X github.com/bureau-foundation/nvx/lib/version.GitCommit=$(git rev-parse --short HEAD)" ./cmd/nvx
package version
