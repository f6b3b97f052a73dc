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

// Package preprocess implements the parallel classify-and-cache
// pipeline that turns raw source samples into a normalized training
// corpus.
//
// Every sample ends in exactly one of three outcomes:
//
//  1. Good. The source is normalized and ready for the training set.
//  2. Bad. The source cannot be compiled.
//  3. Ugly. The source compiles but is not useful for training.
//
// All three are ordinary values, not errors: the transformer always
// returns a classified Result, and Go errors are reserved for
// infrastructure faults (temp file I/O, store access, sink writes).
package preprocess

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/corpusforge/clprep/pkg/toolchain"
)

// Status is the three-way classification outcome for one sample.
type Status int

const (
	// StatusGood marks a sample accepted into the training corpus.
	StatusGood Status = 0

	// StatusBad marks a sample that is not valid code.
	StatusBad Status = 1

	// StatusUgly marks a sample that compiles but carries no training
	// value.
	StatusUgly Status = 2
)

// String returns the lowercase name of the status.
func (s Status) String() string {
	switch s {
	case StatusGood:
		return "good"
	case StatusBad:
		return "bad"
	case StatusUgly:
		return "ugly"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result is the classified outcome for one sample. Contents holds the
// normalized source when Status is StatusGood, otherwise a
// human-readable failure message.
type Result struct {
	ID       string `json:"id"`
	Status   Status `json:"status"`
	Contents string `json:"contents"`
}

// rewriterNothingToRewrite is the rewriter exit code signalling that
// the source contained nothing worth rewriting.
const rewriterNothingToRewrite = 204

// stdinMarker is the preprocessor line marking the end of expanded
// standard includes; everything up to and including it is stripped.
const stdinMarker = `# 1 "<stdin>" 2`

// Transformer runs the per-sample transformation pipeline. It is
// stateless apart from its configuration and safe for concurrent use.
type Transformer struct {
	runner          *toolchain.Runner
	minInstructions int
	logger          *slog.Logger
}

// NewTransformer creates a Transformer using the given toolchain runner
// and minimum instruction count.
func NewTransformer(runner *toolchain.Runner, minInstructions int, logger *slog.Logger) *Transformer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transformer{
		runner:          runner,
		minInstructions: minInstructions,
		logger:          logger,
	}
}

// Transform runs one sample through the full pipeline and returns its
// classification. Stage failures never escape as errors; the returned
// error is non-nil only for infrastructure faults (context
// cancellation, temp file I/O).
func (t *Transformer) Transform(ctx context.Context, id, src string) (Result, error) {
	// Stage 1: compile to bytecode. A compiler rejection is the
	// canonical bad-code signal.
	bytecode, err := t.runner.EmitBytecode(ctx, src)
	if err != nil {
		return t.classifyToolFailure(ctx, id, "compile", StatusBad, err)
	}

	// Stage 2: extract features from the bytecode.
	report, err := t.runner.Instcounts(ctx, bytecode)
	if err != nil {
		// Analyzer failures are a toolchain problem rather than a
		// verdict on the code, but they are stored as bad all the same.
		return t.classifyToolFailure(ctx, id, "instcount", StatusBad, err)
	}
	ratios := Ratios(ParseInstcounts(report))

	// Stage 3: verify usefulness.
	if !AcceptFeatures(ratios, t.minInstructions) {
		total := int(ratios[EscapeKey(TotalInstructionsKey)])
		msg := fmt.Sprintf("Code contains %d instructions. The minimum allowed is %d", total, t.minInstructions)
		t.logger.Debug("transform.ugly", "id", id, "stage", "features", "instructions", total)
		return Result{ID: id, Status: StatusUgly, Contents: msg}, nil
	}

	// Stage 4: run the preprocessor and strip include expansion.
	preprocessed, err := t.runner.Preprocess(ctx, src)
	if err != nil {
		return t.classifyToolFailure(ctx, id, "preprocess", StatusBad, err)
	}
	stripped := StripPreprocessorLines(preprocessed)

	// Stage 5: rewrite. The rewriter cannot read stdin, so the source
	// goes through a scoped temp file.
	rewritten, err := t.rewrite(ctx, stripped)
	if err != nil {
		var nothing *nothingToRewriteError
		if errors.As(err, &nothing) {
			t.logger.Debug("transform.ugly", "id", id, "stage", "rewrite")
			return Result{ID: id, Status: StatusUgly, Contents: "rewriter found nothing to rewrite"}, nil
		}
		if isInfraError(err) {
			return Result{}, err
		}
		return t.classifyToolFailure(ctx, id, "rewrite", StatusBad, err)
	}

	// Stage 6: format with the fixed style.
	formatted, stderrText, err := t.runner.Format(ctx, rewritten)
	if stderrText != "" {
		// Non-empty stderr is logged but not itself fatal.
		t.logger.Warn("transform.format.stderr", "id", id, "stderr", strings.TrimSpace(stderrText))
	}
	if err != nil {
		return t.classifyToolFailure(ctx, id, "format", StatusBad, err)
	}

	// Stage 7: normalize the prototype onto a single line.
	final := SanitizePrototype(strings.TrimSpace(formatted))

	return Result{ID: id, Status: StatusGood, Contents: final}, nil
}

// nothingToRewriteError is an internal signal from the rewrite stage.
type nothingToRewriteError struct{}

func (*nothingToRewriteError) Error() string { return "nothing to rewrite" }

// rewrite writes src to a scoped temp file and runs the rewriter over
// it. Nonzero exits other than the nothing-to-rewrite code are
// tolerated: the rewriter is known to complain about unrelated
// toolchain issues while still producing usable output.
func (t *Transformer) rewrite(ctx context.Context, src string) (string, error) {
	tmp, err := os.CreateTemp("", "clprep-rewrite-*.cl")
	if err != nil {
		return "", &infraError{err: fmt.Errorf("create rewrite temp file: %w", err)}
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(src); err != nil {
		_ = tmp.Close()
		return "", &infraError{err: fmt.Errorf("write rewrite temp file: %w", err)}
	}
	if err := tmp.Close(); err != nil {
		return "", &infraError{err: fmt.Errorf("close rewrite temp file: %w", err)}
	}

	out, code, err := t.runner.Rewrite(ctx, tmp.Name())
	if err != nil {
		return "", err
	}
	if code == rewriterNothingToRewrite {
		return "", &nothingToRewriteError{}
	}
	return StripAttributes(out), nil
}

// classifyToolFailure converts a tool invocation failure into a
// classified Result. Context cancellation is the only failure allowed
// to propagate as an error.
func (t *Transformer) classifyToolFailure(ctx context.Context, id, stage string, status Status, err error) (Result, error) {
	if ctx.Err() != nil {
		return Result{}, ctx.Err()
	}

	var exitErr *toolchain.ExitError
	if errors.As(err, &exitErr) {
		t.logger.Debug("transform."+status.String(), "id", id, "stage", stage, "tool", exitErr.Tool, "exit_code", exitErr.Code)
		return Result{ID: id, Status: status, Contents: exitErr.Output}, nil
	}

	// The tool itself misbehaved (e.g. missing binary). Distinguished
	// in logs, stored as bad.
	t.logger.Warn("transform.toolchain_error", "id", id, "stage", stage, "err", err)
	return Result{ID: id, Status: StatusBad, Contents: err.Error()}, nil
}

// infraError marks a fault in the pipeline's own plumbing rather than
// in the sample or the toolchain. These propagate instead of being
// stored as a classification.
type infraError struct {
	err error
}

func (e *infraError) Error() string { return e.err.Error() }
func (e *infraError) Unwrap() error { return e.err }

// isInfraError reports whether err is an infrastructure fault that
// should propagate rather than classify.
func isInfraError(err error) bool {
	var infra *infraError
	return errors.As(err, &infra)
}

// StripPreprocessorLines removes the include expansion emitted by the
// preprocessor: everything up to and including the stdin marker line,
// then any remaining line beginning with the preprocessor directive
// marker. When no marker is present nothing precedes user code, so
// only directive lines are dropped.
func StripPreprocessorLines(src string) string {
	lines := strings.Split(src, "\n")

	for i, line := range lines {
		if line == stdinMarker {
			lines = lines[i+1:]
			break
		}
	}

	kept := make([]string, 0, len(lines))
	for _, line := range strings.Split(strings.TrimSpace(strings.Join(lines, "\n")), "\n") {
		if strings.HasPrefix(line, "#") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// StripAttributes removes __attribute__((...)) qualifiers, including
// the balanced double-parenthesized argument group.
func StripAttributes(src string) string {
	const marker = "__attribute__"

	var out strings.Builder
	for {
		idx := strings.Index(src, marker)
		if idx < 0 {
			out.WriteString(src)
			break
		}
		out.WriteString(src[:idx])
		rest := src[idx+len(marker):]

		// Skip whitespace between the keyword and the open paren.
		j := 0
		for j < len(rest) && (rest[j] == ' ' || rest[j] == '\t' || rest[j] == '\n') {
			j++
		}
		if j >= len(rest) || rest[j] != '(' {
			// No argument group; drop just the keyword.
			src = rest
			continue
		}

		depth := 0
		end := j
		for ; end < len(rest); end++ {
			switch rest[end] {
			case '(':
				depth++
			case ')':
				depth--
			}
			if depth == 0 {
				end++
				break
			}
		}
		src = rest[end:]
	}
	return out.String()
}

// SanitizePrototype normalizes whitespace within the function signature
// prefix (the text up to and including the first '{') onto one line,
// leaving the body untouched. Source without a '{' is returned
// unchanged; after the earlier transforms a missing body marker is
// acceptable, not an error.
func SanitizePrototype(src string) string {
	idx := strings.Index(src, "{")
	if idx < 0 {
		return src
	}
	end := idx + 1
	prototype := strings.Join(strings.Fields(src[:end]), " ")
	return prototype + src[end:]
}
