// Copyright 2025 CorpusForge
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package errors

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
)

// TestUserError_Error verifies the Error() method implementation.
func TestUserError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *UserError
		want string
	}{
		{
			name: "with underlying error",
			err: &UserError{
				Message: "Cannot open corpus database",
				Err:     fmt.Errorf("file locked"),
			},
			want: "Cannot open corpus database: file locked",
		},
		{
			name: "without underlying error",
			err: &UserError{
				Message: "Invalid input",
				Err:     nil,
			},
			want: "Invalid input",
		},
		{
			name: "empty message without underlying error",
			err: &UserError{
				Message: "",
				Err:     nil,
			},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			if got != tt.want {
				t.Errorf("UserError.Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestUserError_Unwrap verifies error chain compatibility.
func TestUserError_Unwrap(t *testing.T) {
	underlying := fmt.Errorf("underlying error")
	ue := NewDatabaseError("msg", "cause", "fix", underlying)

	if !errors.Is(ue, underlying) {
		t.Error("errors.Is should find the underlying error through UserError")
	}
	if ue.Unwrap() != underlying {
		t.Errorf("Unwrap() = %v, want %v", ue.Unwrap(), underlying)
	}

	noWrap := NewInputError("msg", "cause", "fix")
	if noWrap.Unwrap() != nil {
		t.Errorf("Unwrap() = %v, want nil", noWrap.Unwrap())
	}
}

// TestExitCodes verifies that exit code constants keep the classification
// contract: 1 for bad code, 2 for ugly code.
func TestExitCodes(t *testing.T) {
	tests := []struct {
		name     string
		exitCode int
		want     int
	}{
		{"ExitSuccess", ExitSuccess, 0},
		{"ExitBadCode", ExitBadCode, 1},
		{"ExitUglyCode", ExitUglyCode, 2},
		{"ExitConfig", ExitConfig, 3},
		{"ExitDatabase", ExitDatabase, 4},
		{"ExitInput", ExitInput, 5},
		{"ExitInternal", ExitInternal, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.exitCode != tt.want {
				t.Errorf("%s = %d, want %d", tt.name, tt.exitCode, tt.want)
			}
		})
	}
}

// TestConstructors verifies each constructor assigns the right exit code.
func TestConstructors(t *testing.T) {
	underlying := fmt.Errorf("boom")

	tests := []struct {
		name     string
		err      *UserError
		wantCode int
	}{
		{"config", NewConfigError("m", "c", "f", underlying), ExitConfig},
		{"database", NewDatabaseError("m", "c", "f", underlying), ExitDatabase},
		{"input", NewInputError("m", "c", "f"), ExitInput},
		{"bad code", NewBadCodeError("m", "c"), ExitBadCode},
		{"ugly code", NewUglyCodeError("m", "c"), ExitUglyCode},
		{"internal", NewInternalError("m", "c", "f", underlying), ExitInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.ExitCode != tt.wantCode {
				t.Errorf("ExitCode = %d, want %d", tt.err.ExitCode, tt.wantCode)
			}
			if tt.err.Message != "m" {
				t.Errorf("Message = %q, want %q", tt.err.Message, "m")
			}
		})
	}
}

// TestFormat_NoColor verifies the plain-text format of a structured error.
func TestFormat_NoColor(t *testing.T) {
	// Ensure NO_COLOR does not leak in from the environment
	old := os.Getenv("NO_COLOR")
	os.Setenv("NO_COLOR", "1")
	defer os.Setenv("NO_COLOR", old)

	err := NewBadCodeError("Sample rejected", "clang: error: expected ';'")
	got := err.Format(true)

	if !strings.Contains(got, "Error: Sample rejected") {
		t.Errorf("Format() missing message: %q", got)
	}
	if !strings.Contains(got, "Cause: clang: error: expected ';'") {
		t.Errorf("Format() missing cause: %q", got)
	}
	if !strings.Contains(got, "Fix:") {
		t.Errorf("Format() missing fix: %q", got)
	}
}

// TestFormat_OmitsEmptySections verifies empty cause/fix are not printed.
func TestFormat_OmitsEmptySections(t *testing.T) {
	err := &UserError{Message: "just a message"}
	got := err.Format(true)

	if strings.Contains(got, "Cause:") {
		t.Errorf("Format() should omit empty cause: %q", got)
	}
	if strings.Contains(got, "Fix:") {
		t.Errorf("Format() should omit empty fix: %q", got)
	}
}

// TestToJSON verifies the JSON projection of a structured error.
func TestToJSON(t *testing.T) {
	err := NewUglyCodeError("Nothing to rewrite", "rewriter exited 204")
	j := err.ToJSON()

	if j.Error != "Nothing to rewrite" {
		t.Errorf("ToJSON().Error = %q", j.Error)
	}
	if j.Cause != "rewriter exited 204" {
		t.Errorf("ToJSON().Cause = %q", j.Cause)
	}
	if j.ExitCode != ExitUglyCode {
		t.Errorf("ToJSON().ExitCode = %d, want %d", j.ExitCode, ExitUglyCode)
	}
}
