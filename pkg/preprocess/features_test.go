// Copyright 2025 CorpusForge
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package preprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseInstcounts(t *testing.T) {
	report := `===-------------------------------------------------------------------------===
                          ... Statistics Collected ...
===-------------------------------------------------------------------------===

 2 instcount - Number of Add insts
 5 instcount - Number of Load insts
10 instcount - Number of instructions (of all types)
some unrelated line
`
	counts := ParseInstcounts(report)

	assert.Equal(t, 2.0, counts["Add insts"])
	assert.Equal(t, 5.0, counts["Load insts"])
	assert.Equal(t, 10.0, counts[TotalInstructionsKey])
	assert.Len(t, counts, 3)
}

// Repeated lines for the same type are summed, tolerating segmented
// reports.
func TestParseInstcounts_SumsRepeatedTypes(t *testing.T) {
	report := `3 instcount - Number of Add insts
4 instcount - Number of Add insts`

	counts := ParseInstcounts(report)
	assert.Equal(t, 7.0, counts["Add insts"])
}

func TestParseInstcounts_EmptyReport(t *testing.T) {
	assert.Empty(t, ParseInstcounts(""))
	assert.Empty(t, ParseInstcounts("no counters here\n"))
}

func TestEscapeKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"instructions (of all types)", "instructions_of_all_types"},
		{"basic blocks", "basic_blocks"},
		{"non-external functions", "non_external_functions"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EscapeKey(tt.in), "EscapeKey(%q)", tt.in)
	}
}

func TestRatios(t *testing.T) {
	counts := FeatureSet{
		TotalInstructionsKey: 100,
		"basic blocks":       10,
	}

	ratios := Ratios(counts)

	assert.Equal(t, FeatureSet{
		"instructions_of_all_types": 100,
		"basic_blocks":              10,
		"ratio_basic_blocks":        0.1,
	}, ratios)
}

func TestRatios_Empty(t *testing.T) {
	assert.Empty(t, Ratios(FeatureSet{}))
	assert.Empty(t, Ratios(nil))
}

func TestAcceptFeatures(t *testing.T) {
	ratios := Ratios(FeatureSet{TotalInstructionsKey: 5})

	// Stock minimum of zero is permissive.
	assert.True(t, AcceptFeatures(ratios, 0))
	assert.True(t, AcceptFeatures(ratios, 5))
	assert.False(t, AcceptFeatures(ratios, 6))

	// Missing total counts as zero.
	assert.True(t, AcceptFeatures(FeatureSet{}, 0))
	assert.False(t, AcceptFeatures(FeatureSet{}, 1))
}
