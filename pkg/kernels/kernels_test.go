// Copyright 2025 CorpusForge
// SPDX-License-Identifier: AGPL-3.0-or-later

package kernels

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func extract(t *testing.T, src string) []Kernel {
	t.Helper()
	found, err := NewExtractor(nil).Extract(context.Background(), src)
	require.NoError(t, err)
	return found
}

func TestExtractSingleKernel(t *testing.T) {
	src := "__kernel void A(__global float* a, const int n) {\n  a[0] = n;\n}"

	found := extract(t, src)
	require.Len(t, found, 1)
	assert.Equal(t, "A", found[0].Name)
	assert.Equal(t, 2, found[0].NumArgs)
	assert.Equal(t, "__kernel void A(__global float* a, const int n)", found[0].Prototype)
}

func TestExtractIgnoresHelperFunctions(t *testing.T) {
	src := `float helper(float x) {
  return x * 2;
}

__kernel void A(__global float* a) {
  a[0] = helper(a[0]);
}`

	found := extract(t, src)
	require.Len(t, found, 1)
	assert.Equal(t, "A", found[0].Name)
}

func TestExtractIgnoresKernelLikeTypeNames(t *testing.T) {
	src := `typedef struct { int id; } kernel_t;

kernel_t helper(int id) {
  kernel_t k;
  k.id = id;
  return k;
}

__kernel void A(__global int* a) {
  a[0] = helper(0).id;
}`

	found := extract(t, src)
	require.Len(t, found, 1)
	assert.Equal(t, "A", found[0].Name)
}

func TestExtractMultipleKernels(t *testing.T) {
	src := `__kernel void A(__global int* a) { a[0] = 1; }
__kernel void B(__global int* b, __local int* scratch, int n) { b[0] = n; }`

	found := extract(t, src)
	require.Len(t, found, 2)
	assert.Equal(t, "A", found[0].Name)
	assert.Equal(t, 1, found[0].NumArgs)
	assert.Equal(t, "B", found[1].Name)
	assert.Equal(t, 3, found[1].NumArgs)
}

func TestExtractVoidParameterList(t *testing.T) {
	found := extract(t, "__kernel void A(void) { }")
	require.Len(t, found, 1)
	assert.Equal(t, 0, found[0].NumArgs)
}

func TestExtractNoKernels(t *testing.T) {
	assert.Empty(t, extract(t, "int add(int a, int b) { return a + b; }"))
	assert.Empty(t, extract(t, ""))
}

func TestExtractToleratesSyntaxErrors(t *testing.T) {
	src := `__kernel void A(__global float* a) { a[0] = 1; }
this is not C at all ~~~`

	found := extract(t, src)
	require.Len(t, found, 1)
	assert.Equal(t, "A", found[0].Name)
}
