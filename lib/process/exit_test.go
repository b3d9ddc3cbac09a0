// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

type codedError struct{ code int }

func (e codedError) Error() string { return fmt.Sprintf("exit %d", e.code) }
func (e codedError) ExitCode() int { return e.code }

func TestReport(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantText string
	}{
		{name: "nil", err: nil, wantCode: 0, wantText: ""},
		{name: "plain", err: errors.New("boom"), wantCode: 1, wantText: "error: boom\n"},
		{name: "coded", err: codedError{code: 3}, wantCode: 3, wantText: ""},
		{name: "wrapped coded", err: fmt.Errorf("summary: %w", codedError{code: 2}), wantCode: 2, wantText: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var output bytes.Buffer
			if code := Report(&output, tt.err); code != tt.wantCode {
				t.Errorf("code = %d, want %d", code, tt.wantCode)
			}
			if output.String() != tt.wantText {
				t.Errorf("output = %q, want %q", output.String(), tt.wantText)
			}
		})
	}
}
