// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"
	"io"
	"os"
)

// Fatal writes "error: err" to stderr and exits with code 1. Binaries
// call it from main() with the error returned by run().
func Fatal(err error) {
	writeDiagnostic(os.Stderr, err)
	os.Exit(1)
}

// writeDiagnostic flattens err onto one line so the diagnostic stays a
// single line even when a wrapped cause contains newlines.
func writeDiagnostic(w io.Writer, err error) {
	message := []rune(err.Error())
	for index, r := range message {
		if r == '\n' || r == '\r' {
			message[index] = ' '
		}
	}
	fmt.Fprintf(w, "error: %s\n", string(message))
}
