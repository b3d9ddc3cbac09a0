// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// ExitError makes the binary exit with Code without printing an error
// line. Commands return it after writing their own explanation, for
// outcomes like "job is still running" that are answers rather than
// failures.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode is checked by process.Fatal.
func (e *ExitError) ExitCode() int {
	return e.Code
}
