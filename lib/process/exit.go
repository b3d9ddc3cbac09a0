// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// exitCoder is implemented by errors that carry their own exit status.
type exitCoder interface {
	ExitCode() int
}

// Fatal reports err on stderr and exits. It is the last call in main.
func Fatal(err error) {
	os.Exit(Report(os.Stderr, err))
}

// Report writes err to w as "error: ..." and returns the exit code
// main should use. Errors that carry an exit code have already
// printed whatever they had to say, so only their code is returned.
func Report(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	var coder exitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	fmt.Fprintf(w, "error: %v\n", err)
	return 1
}
