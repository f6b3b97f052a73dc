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
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/corpusforge/clprep/internal/output"
	"github.com/corpusforge/clprep/internal/ui"
	"github.com/corpusforge/clprep/pkg/kernels"
	"github.com/corpusforge/clprep/pkg/preprocess"
	"github.com/corpusforge/clprep/pkg/store"
)

// StatusResult represents the corpus status for JSON output.
type StatusResult struct {
	DBPath      string    `json:"db_path"`
	SizeBytes   int64     `json:"size_bytes"`
	Candidates  int       `json:"candidates"`
	Classified  int       `json:"classified"`
	Accepted    int       `json:"accepted"`
	Bad         int       `json:"bad"`
	Ugly        int       `json:"ugly"`
	UpToDate    bool      `json:"up_to_date"`
	Fingerprint string    `json:"fingerprint"`
	Lines       int64     `json:"accepted_lines"`
	Chars       int64     `json:"accepted_chars"`
	Kernels     int       `json:"kernels"`
	MaxArgs     int       `json:"kernel_max_args"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// runStatus executes the 'status' CLI command, displaying corpus
// statistics: classification counts, accepted-text volume, freshness
// of the cached verdicts, and a census of kernel definitions found in
// the accepted sources.
//
// Flags:
//   - --json: Output results as JSON (default: false)
//   - --no-kernels: Skip the kernel census (faster on large corpora)
//
// Examples:
//
//	clprep status corpus.db           Display formatted status
//	clprep status corpus.db --json    Output as JSON for programmatic use
func runStatus(args []string, configPath string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	noKernels := fs.Bool("no-kernels", false, "Skip the kernel census")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: clprep status [options] <corpus.db>

Shows corpus statistics.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := loadConfigOrDefaults(configPath)
	if err != nil {
		statusFatal(*jsonOutput, err)
	}

	dbPath := cfg.DBPath
	if fs.NArg() > 0 {
		dbPath = fs.Arg(0)
	}

	result := &StatusResult{DBPath: dbPath, Timestamp: time.Now()}

	st, err := store.Open(dbPath)
	if err != nil {
		statusFatal(*jsonOutput, err)
	}
	defer st.Close()
	if err := st.EnsureSchema(); err != nil {
		statusFatal(*jsonOutput, err)
	}

	if err := collectStatus(st, result, !*noKernels); err != nil {
		statusFatal(*jsonOutput, err)
	}

	if *jsonOutput {
		output.JSON(result)
		return
	}
	printStatus(result, !*noKernels)
}

func collectStatus(st *store.Store, result *StatusResult, withKernels bool) error {
	var err error
	if result.SizeBytes, err = st.FileSize(); err != nil {
		return err
	}
	if result.Candidates, err = st.ContentFileCount(); err != nil {
		return err
	}
	if result.Classified, err = st.PreprocessedFileCount(); err != nil {
		return err
	}

	counts, err := st.StatusCounts()
	if err != nil {
		return err
	}
	result.Accepted = counts[int(preprocess.StatusGood)]
	result.Bad = counts[int(preprocess.StatusBad)]
	result.Ugly = counts[int(preprocess.StatusUgly)]

	fingerprint, err := st.Checksum()
	if err != nil {
		return err
	}
	result.Fingerprint = fingerprint
	recorded, found, err := st.Meta(store.MetaChecksumKey)
	if err != nil {
		return err
	}
	result.UpToDate = found && recorded == fingerprint

	stats, err := st.AcceptedTextStats()
	if err != nil {
		return err
	}
	result.Lines = stats.Lines
	result.Chars = stats.Chars

	if withKernels {
		extractor := kernels.NewExtractor(slog.Default())
		err = st.ForEachAccepted(func(id, contents string) error {
			found, err := extractor.Extract(context.Background(), contents)
			if err != nil {
				return err
			}
			result.Kernels += len(found)
			for _, k := range found {
				if k.NumArgs > result.MaxArgs {
					result.MaxArgs = k.NumArgs
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func printStatus(r *StatusResult, withKernels bool) {
	ui.Header("Corpus Status")
	fmt.Printf("%s %s (%s)\n", ui.Label("Store:"), r.DBPath, formatBytes(r.SizeBytes))
	fmt.Println()

	fmt.Printf("%s %s\n", ui.Label("Candidates:"), ui.CountText(r.Candidates))
	fmt.Printf("%s %s\n", ui.Label("Classified:"), ui.CountText(r.Classified))
	fmt.Printf("%s %s\n", ui.Label("Accepted:"), ui.CountText(r.Accepted))
	fmt.Printf("%s %s\n", ui.Label("Bad:"), ui.CountText(r.Bad))
	fmt.Printf("%s %s\n", ui.Label("Ugly:"), ui.CountText(r.Ugly))
	fmt.Println()

	fmt.Printf("%s %d lines, %d chars across accepted samples\n", ui.Label("Text:"), r.Lines, r.Chars)
	if withKernels {
		fmt.Printf("%s %s kernel definitions (max %d args)\n",
			ui.Label("Kernels:"), ui.CountText(r.Kernels), r.MaxArgs)
	}
	fmt.Println()

	if r.UpToDate {
		ui.Success("Verdicts are up to date with the corpus contents.")
	} else if r.Classified == 0 {
		ui.Warning("Corpus is not classified yet. Run 'clprep db'.")
	} else {
		ui.Warning("Corpus contents changed since the last run. Run 'clprep db' to refresh.")
	}
	fmt.Printf("%s\n", ui.DimText("fingerprint "+r.Fingerprint))
}

func statusFatal(jsonOutput bool, err error) {
	if jsonOutput {
		output.JSON(&StatusResult{Error: err.Error(), Timestamp: time.Now()})
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
