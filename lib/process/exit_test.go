// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"bytes"
	"errors"
	"os"
	"testing"
)

func TestFatalWritesErrorAndExitsOne(t *testing.T) {
	var code int
	exit = func(c int) { code = c }
	t.Cleanup(func() { exit = os.Exit })

	var buffer bytes.Buffer
	fatalTo(&buffer, errors.New("listening on /tmp/nvx.sock: address in use"))

	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if got, want := buffer.String(), "error: listening on /tmp/nvx.sock: address in use\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}
