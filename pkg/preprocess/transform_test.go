// Copyright 2025 CorpusForge
// SPDX-License-Identifier: AGPL-3.0-or-later

package preprocess

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpusforge/clprep/pkg/toolchain"
)

// writeTool writes an executable shell script standing in for one of
// the external tools.
func writeTool(t *testing.T, dir, name, script string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

// defaultClangScript answers both compile and preprocess invocations:
// compile swallows stdin and emits placeholder bytecode, preprocess
// wraps stdin in a realistic include-expansion prelude.
const defaultClangScript = `case "$*" in
*-emit-llvm*)
  cat > /dev/null
  echo "; ModuleID = '-'"
  ;;
*)
  echo '# 1 "<stdin>"'
  echo '# 1 "/usr/include/opencl-c.h" 1'
  echo 'typedef unsigned int uint;'
  echo '# 1 "<stdin>" 2'
  cat
  ;;
esac
`

const defaultOptScript = `cat > /dev/null
echo '10 instcount - Number of instructions (of all types)'
echo '2 instcount - Number of basic blocks'
`

// The rewriter receives the source as a file path, not on stdin.
const defaultRewriterScript = `cat "$1"
`

const defaultFormatScript = `cat
`

type fakeTools struct {
	clang    string
	opt      string
	rewriter string
	format   string
}

func newFakeRunner(t *testing.T, tools fakeTools) *toolchain.Runner {
	t.Helper()
	dir := t.TempDir()

	if tools.clang == "" {
		tools.clang = defaultClangScript
	}
	if tools.opt == "" {
		tools.opt = defaultOptScript
	}
	if tools.rewriter == "" {
		tools.rewriter = defaultRewriterScript
	}
	if tools.format == "" {
		tools.format = defaultFormatScript
	}

	cfg := toolchain.DefaultConfig()
	cfg.Clang = writeTool(t, dir, "clang", tools.clang)
	cfg.Opt = writeTool(t, dir, "opt", tools.opt)
	cfg.Rewriter = writeTool(t, dir, "rewriter", tools.rewriter)
	cfg.ClangFormat = writeTool(t, dir, "clang-format", tools.format)
	return toolchain.NewRunner(cfg)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTransformGood(t *testing.T) {
	tr := NewTransformer(newFakeRunner(t, fakeTools{}), 0, testLogger())

	src := "__kernel void A(__global float* a)\n{\n  a[0] = 1;\n}"
	res, err := tr.Transform(context.Background(), "k1", src)
	require.NoError(t, err)

	assert.Equal(t, StatusGood, res.Status)
	assert.Equal(t, "k1", res.ID)
	assert.Equal(t, "__kernel void A(__global float* a) {\n  a[0] = 1;\n}", res.Contents)
}

func TestTransformBadCompile(t *testing.T) {
	tr := NewTransformer(newFakeRunner(t, fakeTools{
		clang: `cat > /dev/null
echo "error: expected ';'" >&2
exit 1
`,
	}), 0, testLogger())

	res, err := tr.Transform(context.Background(), "k1", "not a kernel")
	require.NoError(t, err)

	assert.Equal(t, StatusBad, res.Status)
	assert.Contains(t, res.Contents, "expected ';'")
}

func TestTransformBadAnalyzerFailure(t *testing.T) {
	tr := NewTransformer(newFakeRunner(t, fakeTools{
		opt: `cat > /dev/null
echo 'opt: invalid bitcode'
exit 1
`,
	}), 0, testLogger())

	res, err := tr.Transform(context.Background(), "k1", "__kernel void A() {}")
	require.NoError(t, err)

	assert.Equal(t, StatusBad, res.Status)
	assert.Contains(t, res.Contents, "invalid bitcode")
}

func TestTransformUglyTooFewInstructions(t *testing.T) {
	tr := NewTransformer(newFakeRunner(t, fakeTools{}), 100, testLogger())

	res, err := tr.Transform(context.Background(), "k1", "__kernel void A() {}")
	require.NoError(t, err)

	assert.Equal(t, StatusUgly, res.Status)
	assert.Equal(t, "Code contains 10 instructions. The minimum allowed is 100", res.Contents)
}

func TestTransformUglyNothingToRewrite(t *testing.T) {
	tr := NewTransformer(newFakeRunner(t, fakeTools{
		rewriter: `exit 204
`,
	}), 0, testLogger())

	res, err := tr.Transform(context.Background(), "k1", "__kernel void A() {}")
	require.NoError(t, err)

	assert.Equal(t, StatusUgly, res.Status)
	assert.Contains(t, res.Contents, "nothing to rewrite")
}

// Rewriter exits other than the nothing-to-rewrite code are tolerated
// and the rewritten output on stdout is still used.
func TestTransformRewriterNonFatalExit(t *testing.T) {
	tr := NewTransformer(newFakeRunner(t, fakeTools{
		rewriter: `cat "$1"
echo 'rewriter: unrelated complaint' >&2
exit 1
`,
	}), 0, testLogger())

	res, err := tr.Transform(context.Background(), "k1", "__kernel void A() {\n}")
	require.NoError(t, err)

	assert.Equal(t, StatusGood, res.Status)
	assert.Contains(t, res.Contents, "__kernel void A()")
}

func TestTransformMissingBinaryIsBad(t *testing.T) {
	runner := newFakeRunner(t, fakeTools{})
	cfg := runner.Config()
	cfg.Clang = filepath.Join(t.TempDir(), "no-such-clang")
	tr := NewTransformer(toolchain.NewRunner(cfg), 0, testLogger())

	res, err := tr.Transform(context.Background(), "k1", "__kernel void A() {}")
	require.NoError(t, err)

	assert.Equal(t, StatusBad, res.Status)
	assert.NotEmpty(t, res.Contents)
}

func TestTransformCanceledContext(t *testing.T) {
	tr := NewTransformer(newFakeRunner(t, fakeTools{}), 0, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tr.Transform(ctx, "k1", "__kernel void A() {}")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStripPreprocessorLines(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "strips include expansion through marker",
			in: `# 1 "<stdin>"
# 1 "/usr/include/opencl-c.h" 1
typedef unsigned int uint;
# 1 "<stdin>" 2
__kernel void A() {}`,
			want: "__kernel void A() {}",
		},
		{
			name: "drops remaining directive lines",
			in: `# 1 "<stdin>" 2
# 42 "somewhere"
__kernel void A() {}
# 7 "elsewhere"
int x;`,
			want: "__kernel void A() {}\nint x;",
		},
		{
			name: "no marker keeps user code",
			in:   "__kernel void A() {}",
			want: "__kernel void A() {}",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripPreprocessorLines(tt.in))
		})
	}
}

func TestStripAttributes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "no attributes",
			in:   "__kernel void A() {}",
			want: "__kernel void A() {}",
		},
		{
			name: "single attribute with nested parens",
			in:   "__attribute__((reqd_work_group_size(64, 1, 1))) __kernel void A() {}",
			want: " __kernel void A() {}",
		},
		{
			name: "multiple attributes",
			in:   "__attribute__((a)) int x; __attribute__((b)) int y;",
			want: " int x;  int y;",
		},
		{
			name: "keyword without argument group",
			in:   "__attribute__ int x;",
			want: " int x;",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripAttributes(tt.in))
		})
	}
}

func TestSanitizePrototype(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "multiline prototype collapsed",
			in:   "__kernel void A(__global float* a,\n                __global float* b)\n{\n  a[0] = b[0];\n}",
			want: "__kernel void A(__global float* a, __global float* b) {\n  a[0] = b[0];\n}",
		},
		{
			name: "no body marker unchanged",
			in:   "typedef unsigned int uint;",
			want: "typedef unsigned int uint;",
		},
		{
			name: "body untouched",
			in:   "void A() {\n  int  spaced =  1;\n}",
			want: "void A() {\n  int  spaced =  1;\n}",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizePrototype(tt.in))
		})
	}
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "good", StatusGood.String())
	assert.Equal(t, "bad", StatusBad.String())
	assert.Equal(t, "ugly", StatusUgly.String())
}
