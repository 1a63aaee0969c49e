// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package census lists processes holding the GPU's device files open
// and can ask them to exit.
//
// The list comes from lsof run over the device special files (the
// /dev/nvidia* glob is expanded here, never by a shell). Rows are
// deduplicated by pid. A process whose only handle is the driver's
// shared control node (/dev/nvidiactl) is excluded from routine
// listings: touching the control file is too weak a signal to kill a
// process over during a normal handoff. [Census.Reclaim] includes them,
// because a forced reclaim wants every holder gone.
package census
