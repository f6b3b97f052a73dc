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
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/corpusforge/clprep/internal/ui"
	"github.com/corpusforge/clprep/pkg/store"
)

// initFlags holds parsed flags for the init command.
type initFlags struct {
	force, nonInteractive bool
	dbPath                string
	clang, opt            string
	rewriter, clangFormat string
	includeDir, shim      string
	workers               int
	minInstructions       int
	createDB              bool
}

// runInit executes the 'init' CLI command, creating the
// .clprep/config.yaml configuration file and, optionally, an empty
// corpus store.
//
// Flags:
//   - --force: Overwrite existing configuration
//   - -y: Non-interactive mode, use all defaults
//   - --db: Corpus store path
//   - --clang, --opt, --rewriter, --clang-format: Tool binaries
//   - --include-dir: Header search directory passed to the compiler
//   - --shim: Forced-include shim header
//   - --workers: Parallel transform workers (0 = one per CPU)
//   - --min-instructions: Usefulness threshold
//   - --create-db: Also create an empty corpus store at the db path
func runInit(args []string) {
	flags := parseInitFlags(args)

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot get current directory: %v\n", err)
		os.Exit(1)
	}

	configPath := ConfigPath(cwd)
	if _, err := os.Stat(configPath); err == nil && !flags.force {
		fmt.Fprintf(os.Stderr, "Error: %s already exists. Use --force to overwrite.\n", configPath)
		os.Exit(1)
	}

	cfg := createInitConfig(flags)

	if !flags.nonInteractive {
		runInteractiveConfig(bufio.NewReader(os.Stdin), cfg)
	}

	if err := SaveConfig(configPath, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot write configuration: %v\n", err)
		os.Exit(1)
	}
	ui.Successf("Created %s", configPath)

	if flags.createDB {
		st, err := store.Open(cfg.DBPath)
		if err == nil {
			err = st.EnsureSchema()
			st.Close()
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot create corpus store: %v\n", err)
			os.Exit(1)
		}
		ui.Successf("Created empty corpus store at %s", cfg.DBPath)
	}

	printNextSteps(cfg)
}

func parseInitFlags(args []string) initFlags {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	var f initFlags
	fs.BoolVar(&f.force, "force", false, "Overwrite existing configuration")
	fs.BoolVar(&f.nonInteractive, "y", false, "Non-interactive mode (use defaults)")
	fs.StringVar(&f.dbPath, "db", "", "Corpus store path")
	fs.StringVar(&f.clang, "clang", "", "clang binary")
	fs.StringVar(&f.opt, "opt", "", "opt binary")
	fs.StringVar(&f.rewriter, "rewriter", "", "source rewriter binary")
	fs.StringVar(&f.clangFormat, "clang-format", "", "clang-format binary")
	fs.StringVar(&f.includeDir, "include-dir", "", "Header search directory")
	fs.StringVar(&f.shim, "shim", "", "Forced-include shim header")
	fs.IntVar(&f.workers, "workers", -1, "Parallel transform workers (0 = one per CPU)")
	fs.IntVar(&f.minInstructions, "min-instructions", -1, "Minimum instruction count for accepted samples")
	fs.BoolVar(&f.createDB, "create-db", false, "Also create an empty corpus store")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: clprep init [options]

Creates .clprep/config.yaml configuration file.

Examples:
  clprep init -y                        # Use all defaults
  clprep init --db corpus.db --create-db
  clprep init --clang /opt/llvm/bin/clang --force

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	return f
}

func createInitConfig(f initFlags) *Config {
	cfg := DefaultConfig()
	if f.dbPath != "" {
		cfg.DBPath = f.dbPath
	}
	if f.clang != "" {
		cfg.Toolchain.Clang = f.clang
	}
	if f.opt != "" {
		cfg.Toolchain.Opt = f.opt
	}
	if f.rewriter != "" {
		cfg.Toolchain.Rewriter = f.rewriter
	}
	if f.clangFormat != "" {
		cfg.Toolchain.ClangFormat = f.clangFormat
	}
	if f.includeDir != "" {
		cfg.Toolchain.IncludeDir = f.includeDir
	}
	if f.shim != "" {
		cfg.Toolchain.ShimHeader = f.shim
	}
	if f.workers >= 0 {
		cfg.Preprocess.Workers = f.workers
	}
	if f.minInstructions >= 0 {
		cfg.Preprocess.MinInstructions = f.minInstructions
	}
	return cfg
}

func runInteractiveConfig(reader *bufio.Reader, cfg *Config) {
	fmt.Println("clprep Project Configuration")
	fmt.Println("============================")
	fmt.Println()

	cfg.DBPath = prompt(reader, "Corpus store path", cfg.DBPath)

	fmt.Println()
	fmt.Println("Toolchain binaries (must be LLVM with OpenCL support)")
	cfg.Toolchain.Clang = prompt(reader, "clang", cfg.Toolchain.Clang)
	cfg.Toolchain.Opt = prompt(reader, "opt", cfg.Toolchain.Opt)
	cfg.Toolchain.Rewriter = prompt(reader, "rewriter", cfg.Toolchain.Rewriter)
	cfg.Toolchain.ClangFormat = prompt(reader, "clang-format", cfg.Toolchain.ClangFormat)

	fmt.Println()
	cfg.Preprocess.MinInstructions = promptInt(reader, "Minimum instruction count", cfg.Preprocess.MinInstructions)
	fmt.Println()
}

func printNextSteps(cfg *Config) {
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Printf("  1. Load raw samples into:     %s\n", cfg.DBPath)
	fmt.Printf("  2. Classify the corpus:       clprep db %s\n", cfg.DBPath)
	fmt.Printf("  3. Check corpus statistics:   clprep status %s\n", cfg.DBPath)
	fmt.Printf("  4. Reclaim rejected space:    clprep vacuum %s\n", cfg.DBPath)
}

// prompt reads one line with a default value shown in brackets.
func prompt(reader *bufio.Reader, label, defaultValue string) string {
	if defaultValue != "" {
		fmt.Printf("%s [%s]: ", label, defaultValue)
	} else {
		fmt.Printf("%s: ", label)
	}

	line, err := reader.ReadString('\n')
	if err != nil {
		return defaultValue
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return defaultValue
	}
	return line
}

func promptInt(reader *bufio.Reader, label string, defaultValue int) int {
	for {
		raw := prompt(reader, label, strconv.Itoa(defaultValue))
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			fmt.Println("Please enter a non-negative integer.")
			continue
		}
		return n
	}
}
