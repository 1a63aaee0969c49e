// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source. Production code
// holds a Clock and calls Now instead of time.Now so that tests can pin
// the current time with Fake.
//
//	journal.Check(path, maxAge, clock.Real())
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	fake.Advance(10 * time.Minute)
package clock
