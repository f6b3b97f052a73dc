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

package preprocess

import (
	"regexp"
	"strconv"
	"strings"
)

// FeatureSet maps named counters extracted from the instcount report to
// numeric values. Derived ratio entries use the ratio_ prefix. Keys are
// sanitized with EscapeKey before use, so a FeatureSet is safe to
// serialize under column-name constraints.
type FeatureSet map[string]float64

// TotalInstructionsKey is the reserved raw counter name denoting the
// total instruction count. All other counters derive a ratio against it.
const TotalInstructionsKey = "instructions (of all types)"

// instCountRe matches one line of the analyzer's statistics report,
// e.g. "8 instcount - Number of Add insts".
var instCountRe = regexp.MustCompile(`^(\d+) instcount - Number of (.+)$`)

// ParseInstcounts scans the analyzer's textual report and accumulates a
// count per instruction type. Multiple lines for the same type are
// summed, not overwritten, which tolerates repeated or segmented
// reports.
func ParseInstcounts(report string) FeatureSet {
	counts := make(FeatureSet)
	for _, line := range strings.Split(report, "\n") {
		m := instCountRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		// The regexp guarantees a digit string.
		n, _ := strconv.ParseFloat(m[1], 64)
		counts[m[2]] += n
	}
	return counts
}

var (
	escapeRemove  = strings.NewReplacer("(", "", ")", "")
	escapeReplace = strings.NewReplacer("-", "_")
)

// EscapeKey sanitizes a counter name for use as a store column or field
// name: spaces become underscores, parentheses are stripped, and
// hyphens become underscores.
func EscapeKey(key string) string {
	joined := strings.Join(strings.Split(key, " "), "_")
	return escapeReplace.Replace(escapeRemove.Replace(joined))
}

// Ratios derives the normalized feature set from raw instruction
// counts. The reserved total key is copied verbatim (under its escaped
// name); every other counter is emitted both raw and as
// ratio_<key> = count/total. An empty input yields an empty output.
//
// Division by zero is possible only when the reserved total is itself
// zero; the resulting Inf/NaN ratio is accepted as a degenerate but
// valid value rather than specially guarded.
func Ratios(counts FeatureSet) FeatureSet {
	ratios := make(FeatureSet)
	if len(counts) == 0 {
		return ratios
	}

	total := counts[TotalInstructionsKey]
	ratios[EscapeKey(TotalInstructionsKey)] = total

	for key, count := range counts {
		if key == TotalInstructionsKey {
			continue
		}
		ratios[EscapeKey(key)] = count
		ratios[EscapeKey("ratio_"+key)] = count / total
	}
	return ratios
}

// AcceptFeatures evaluates the usefulness predicate over a derived
// feature set: a sample is rejected only when its total instruction
// count is strictly below minInstructions.
//
// The stock minimum is zero, which makes the predicate permissive; the
// threshold is kept configurable rather than hard-coded because the
// zero default looks more like a placeholder than a decision.
func AcceptFeatures(ratios FeatureSet, minInstructions int) bool {
	total := ratios[EscapeKey(TotalInstructionsKey)]
	return total >= float64(minInstructions)
}
