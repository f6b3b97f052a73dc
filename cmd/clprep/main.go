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

// Package main implements the clprep CLI for building normalized
// training corpora from raw source-code samples.
//
// Usage:
//
//	clprep init                   Create .clprep/config.yaml configuration
//	clprep db <corpus.db>         Classify every sample in a corpus store
//	clprep file <path>...         Classify individual source files
//	clprep vacuum <corpus.db>     Scrub rejected samples and reclaim space
//	clprep status <corpus.db>     Show corpus statistics
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/corpusforge/clprep/internal/ui"
)

// Version information (set via ldflags during build)
var (
	version = "dev"     // Version string
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// main parses global flags and dispatches to the command handlers.
//
// Global flags:
//   - --version: Display version information and exit
//   - --config: Path to .clprep/config.yaml configuration file
func main() {
	var (
		showVersion = flag.Bool("version", false, "Show version and exit")
		configPath  = flag.String("config", "", "Path to .clprep/config.yaml (default: ./.clprep/config.yaml)")
		noColor     = flag.Bool("no-color", false, "Disable colored output")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `clprep - corpus preprocessor

clprep turns a store of raw source-code samples into a normalized
training corpus. Every sample is compiled, analyzed, rewritten and
formatted, then classified as accepted, bad (does not compile) or
ugly (compiles but not useful). Verdicts are cached, so re-running
over an unchanged corpus is free.

Usage:
  clprep <command> [options]

Commands:
  init      Create .clprep/config.yaml configuration
  db        Classify every sample in a corpus store
  file      Classify individual source files
  vacuum    Scrub rejected samples and reclaim space (destructive!)
  status    Show corpus statistics

Global Options:
  --config      Path to .clprep/config.yaml
  --no-color    Disable colored output
  --version     Show version and exit

Examples:
  clprep init                        Create configuration interactively
  clprep db corpus.db                Classify the whole corpus
  clprep db corpus.db --workers 16   Use 16 parallel workers
  clprep file kernel.cl              Print the normalized kernel
  clprep file --inplace *.cl         Normalize files in place
  clprep vacuum corpus.db            Drop rejected contents, shrink the file
  clprep status corpus.db --json     Output statistics as JSON

Exit Codes (file command):
  0   accepted, 1 bad (does not compile), 2 ugly (not useful)

For detailed command help: clprep <command> --help

`)
	}

	flag.Parse()
	ui.InitColors(*noColor)

	if *showVersion {
		fmt.Printf("clprep version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "init":
		runInit(cmdArgs)
	case "db":
		runDB(cmdArgs, *configPath)
	case "file":
		runFile(cmdArgs, *configPath)
	case "vacuum":
		runVacuum(cmdArgs, *configPath)
	case "status":
		runStatus(cmdArgs, *configPath)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}
