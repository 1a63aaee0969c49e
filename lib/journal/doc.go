// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package journal records in-flight power transitions in a small state
// file so a restarted daemon can tell that its predecessor stopped
// half-way through powering the GPU on or off.
//
// The dispatcher calls [Write] before an on/off sequence and [Clear]
// after it. At boot the daemon calls [Check]: a fresh entry means the
// previous process died mid-transition (the device may be half powered
// or modules half loaded), which is logged before boot forces the
// device off. Entries older than the caller's maximum age are ignored.
//
// Files are CBOR-encoded through lib/codec and replaced atomically
// (temporary file, fsync, rename, fsync parent), so a reader never sees
// a partial entry.
package journal
