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

package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/corpusforge/clprep/internal/errors"
	"github.com/corpusforge/clprep/internal/ui"
	"github.com/corpusforge/clprep/pkg/store"
)

// runVacuum executes the 'vacuum' CLI command, replacing the contents
// of rejected samples with a deletion sentinel and compacting the
// store file.
//
// This is destructive: rejected contents (compiler diagnostics, raw
// rejected sources) are gone afterwards. Verdicts themselves are kept,
// so idempotent runs still skip the scrubbed samples.
//
// Flags:
//   - --force: Skip the confirmation prompt
//   - --dry-run: Report what would be scrubbed without touching the store
//
// Examples:
//
//	clprep vacuum corpus.db
//	clprep vacuum corpus.db --force
func runVacuum(args []string, configPath string) {
	fs := pflag.NewFlagSet("vacuum", pflag.ExitOnError)
	force := fs.BoolP("force", "f", false, "Skip the confirmation prompt")
	dryRun := fs.Bool("dry-run", false, "Report what would be scrubbed without modifying the store")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: clprep vacuum [options] <corpus.db>

Replaces the contents of rejected samples with a deletion sentinel and
compacts the store file. Destructive: scrubbed contents cannot be
recovered.

Options:
%s`, fs.FlagUsages())
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := loadConfigOrDefaults(configPath)
	if err != nil {
		errors.FatalError(err, false)
	}

	dbPath := cfg.DBPath
	if fs.NArg() > 0 {
		dbPath = fs.Arg(0)
	}
	if _, err := os.Stat(dbPath); err != nil {
		errors.FatalError(errors.NewDatabaseError(
			"corpus store not found",
			fmt.Sprintf("cannot stat %s: %v", dbPath, err),
			"pass the store path: clprep vacuum corpus.db",
			err,
		), false)
	}

	st, err := store.Open(dbPath)
	if err != nil {
		errors.FatalError(err, false)
	}
	defer st.Close()

	counts, err := st.StatusCounts()
	if err != nil {
		errors.FatalError(err, false)
	}
	rejected := 0
	for status, n := range counts {
		if status != 0 {
			rejected += n
		}
	}

	sizeBefore, err := st.FileSize()
	if err != nil {
		errors.FatalError(err, false)
	}

	if *dryRun {
		fmt.Printf("Would scrub %d rejected samples in %s (%s on disk).\n",
			rejected, dbPath, formatBytes(sizeBefore))
		return
	}

	if rejected == 0 {
		ui.Info("No rejected samples to scrub.")
		return
	}

	if !*force && !confirmVacuum(dbPath, rejected) {
		fmt.Println("Aborted.")
		return
	}

	spinner := NewSpinner(NewProgressConfig(GlobalFlags{}), "vacuuming")

	scrubbed, err := st.ScrubRejected()
	if err != nil {
		errors.FatalError(errors.NewDatabaseError("scrub failed", err.Error(), "", err), false)
	}
	if err := st.Vacuum(); err != nil {
		errors.FatalError(errors.NewDatabaseError("vacuum failed", err.Error(), "", err), false)
	}

	if spinner != nil {
		_ = spinner.Finish()
	}

	sizeAfter, err := st.FileSize()
	if err != nil {
		errors.FatalError(err, false)
	}

	ui.Successf("Scrubbed %d rejected samples.", scrubbed)
	fmt.Printf("Store size: %s -> %s", formatBytes(sizeBefore), formatBytes(sizeAfter))
	if sizeBefore > 0 && sizeAfter < sizeBefore {
		fmt.Printf(" (%.1f%% smaller)", float64(sizeBefore-sizeAfter)/float64(sizeBefore)*100)
	}
	fmt.Println()
}

func confirmVacuum(dbPath string, rejected int) bool {
	fmt.Printf("This will permanently erase the contents of %d rejected samples in %s.\n", rejected, dbPath)
	fmt.Print("Continue? [y/N]: ")

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// formatBytes renders a size in the nearest binary unit.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
