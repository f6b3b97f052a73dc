// Copyright 2025 CorpusForge
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package toolchain wraps the external compiler tools the preprocessing
// pipeline depends on: clang (preprocess and bytecode emission), opt
// (instruction-count analysis), the source rewriter, and clang-format.
//
// Every tool is invoked as a synchronous subprocess: bytes in on stdin,
// bytes out on stdout, exit status inspected. The adapter knows nothing
// about classification; it reports exact exit codes and captured output
// and leaves the good/bad/ugly decision to the transformer.
package toolchain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Config holds the immutable toolchain configuration for one pipeline
// run. It is passed explicitly at Runner construction rather than read
// from ambient global state.
type Config struct {
	// Clang is the path to the clang binary (compile and preprocess).
	Clang string `yaml:"clang"`

	// Opt is the path to the LLVM opt binary (instruction counting).
	Opt string `yaml:"opt"`

	// Rewriter is the path to the source rewriter binary.
	Rewriter string `yaml:"rewriter"`

	// ClangFormat is the path to the clang-format binary.
	ClangFormat string `yaml:"clang_format"`

	// IncludeDir is prepended to the include path (libclc headers).
	IncludeDir string `yaml:"include_dir"`

	// ShimHeader is force-included into every compile (-include).
	ShimHeader string `yaml:"shim_header"`

	// Target is the compilation target triple.
	Target string `yaml:"target"`

	// ErrorLimit caps the number of diagnostics clang emits (0 = unlimited).
	ErrorLimit int `yaml:"error_limit"`

	// DisabledWarnings lists warning names passed as -Wno-<name>.
	DisabledWarnings []string `yaml:"disabled_warnings"`
}

// DefaultConfig returns the stock OpenCL toolchain configuration.
func DefaultConfig() Config {
	return Config{
		Clang:       "clang",
		Opt:         "opt",
		Rewriter:    "clprep-rewriter",
		ClangFormat: "clang-format",
		Target:      "nvptx64-nvidia-nvcl",
		ErrorLimit:  0,
		DisabledWarnings: []string{
			"ignored-pragmas",
			"implicit-function-declaration",
			"incompatible-library-redeclaration",
			"macro-redefined",
		},
	}
}

// ClangArgs builds the common clang argument list for OpenCL input.
func (c Config) ClangArgs() []string {
	var args []string
	if c.IncludeDir != "" {
		args = append(args, "-I"+c.IncludeDir)
	}
	if c.ShimHeader != "" {
		args = append(args, "-include", c.ShimHeader)
	}
	args = append(args,
		"-target", c.Target,
		fmt.Sprintf("-ferror-limit=%d", c.ErrorLimit),
		"-xcl",
	)
	for _, w := range c.DisabledWarnings {
		args = append(args, "-Wno-"+w)
	}
	return args
}

// formatStyle is the fixed clang-format style configuration: Google
// base, 2-space indent, 500-column limit, left pointer alignment, and
// no single-line collapsing of blocks, loops, ifs, functions, or case
// labels.
var formatStyle = map[string]any{
	"BasedOnStyle":                        "Google",
	"ColumnLimit":                         500,
	"IndentWidth":                         2,
	"AllowShortBlocksOnASingleLine":       false,
	"AllowShortCaseLabelsOnASingleLine":   false,
	"AllowShortFunctionsOnASingleLine":    false,
	"AllowShortLoopsOnASingleLine":        false,
	"AllowShortIfStatementsOnASingleLine": false,
	"DerivePointerAlignment":              false,
	"PointerAlignment":                    "Left",
}

// FormatStyleArg returns the -style flag value for clang-format.
func FormatStyleArg() string {
	// The style map contains only JSON-encodable values.
	b, _ := json.Marshal(formatStyle)
	return string(b)
}

// ExitError reports a tool that ran to completion with a nonzero exit
// status. Output carries the captured diagnostics (stderr, or the
// combined stream for tools that interleave).
type ExitError struct {
	Tool   string
	Code   int
	Output string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with code %d", e.Tool, e.Code)
}

// Runner invokes the external tools with a fixed Config.
type Runner struct {
	cfg Config
}

// NewRunner creates a Runner bound to cfg.
func NewRunner(cfg Config) *Runner {
	return &Runner{cfg: cfg}
}

// Config returns the runner's immutable configuration.
func (r *Runner) Config() Config {
	return r.cfg
}

// run executes one tool, feeding stdin and capturing stdout/stderr.
// A nonzero exit status maps to *ExitError; any other failure (binary
// missing, fork failure) is returned wrapped.
func run(ctx context.Context, tool string, argv []string, stdin []byte, combineOutput bool) (stdout, stderr []byte, err error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	if combineOutput {
		cmd.Stderr = &outBuf
	} else {
		cmd.Stderr = &errBuf
	}

	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			diag := errBuf.String()
			if combineOutput {
				diag = outBuf.String()
			}
			return outBuf.Bytes(), errBuf.Bytes(), &ExitError{
				Tool:   tool,
				Code:   exitErr.ExitCode(),
				Output: diag,
			}
		}
		return nil, nil, fmt.Errorf("run %s: %w", tool, err)
	}
	return outBuf.Bytes(), errBuf.Bytes(), nil
}

// Preprocess runs clang in preprocessor-only mode over src.
func (r *Runner) Preprocess(ctx context.Context, src string) (string, error) {
	argv := append([]string{r.cfg.Clang}, r.cfg.ClangArgs()...)
	argv = append(argv, "-E", "-c", "-", "-o", "-")

	out, _, err := run(ctx, "clang", argv, []byte(src), false)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// EmitBytecode compiles src to textual LLVM bytecode.
func (r *Runner) EmitBytecode(ctx context.Context, src string) ([]byte, error) {
	argv := append([]string{r.cfg.Clang}, r.cfg.ClangArgs()...)
	argv = append(argv, "-emit-llvm", "-S", "-c", "-", "-o", "-")

	out, _, err := run(ctx, "clang", argv, []byte(src), false)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Instcounts runs the instcount analysis pass over bytecode and returns
// the textual counter report. LLVM pass statistics print to stderr, so
// the streams are combined.
func (r *Runner) Instcounts(ctx context.Context, bytecode []byte) (string, error) {
	argv := []string{r.cfg.Opt, "-analyze", "-stats", "-instcount", "-"}

	out, _, err := run(ctx, "opt", argv, bytecode, true)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Rewrite invokes the source rewriter on the file at path. The rewriter
// cannot read from stdin, so the caller supplies a temp file path.
//
// Unlike the other tools the exit code is returned to the caller: a
// specific code signals "nothing to rewrite", while other nonzero exits
// are known to be non-fatal and stdout remains usable.
func (r *Runner) Rewrite(ctx context.Context, path string) (out string, exitCode int, err error) {
	argv := []string{r.cfg.Rewriter, path}
	for _, a := range r.cfg.ClangArgs() {
		argv = append(argv, "-extra-arg="+a)
	}
	argv = append(argv, "--")

	stdout, _, err := run(ctx, "rewriter", argv, nil, false)
	if err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return string(stdout), exitErr.Code, nil
		}
		return "", 0, err
	}
	return string(stdout), 0, nil
}

// Format runs clang-format over src with the fixed style configuration.
// Non-empty stderr is returned for logging even on success.
func (r *Runner) Format(ctx context.Context, src string) (out string, stderrText string, err error) {
	argv := []string{r.cfg.ClangFormat, "-style=" + FormatStyleArg()}

	stdout, stderr, err := run(ctx, "clang-format", argv, []byte(src), false)
	if err != nil {
		return "", string(stderr), err
	}
	return string(stdout), string(stderr), nil
}

// Describe returns a short human-readable summary of the configured
// tool binaries, used by status output.
func (c Config) Describe() string {
	return strings.Join([]string{c.Clang, c.Opt, c.Rewriter, c.ClangFormat}, ", ")
}
