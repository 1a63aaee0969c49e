// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"
	"io"
	"os"
)

// exit is replaced in tests.
var exit = os.Exit

// Fatal writes "error: err" to stderr and exits with code 1. Use it in
// main() for errors from run(), where the structured logger may not be
// initialized yet. A control socket that cannot be bound ends here.
func Fatal(err error) {
	fatalTo(os.Stderr, err)
}

func fatalTo(w io.Writer, err error) {
	fmt.Fprintf(w, "error: %v\n", err)
	exit(1)
}
