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

	"github.com/corpusforge/clprep/internal/errors"
	"github.com/corpusforge/clprep/internal/ui"
	"github.com/corpusforge/clprep/pkg/preprocess"
	"github.com/corpusforge/clprep/pkg/toolchain"
)

// runFile executes the 'file' CLI command, classifying individual
// source files without a corpus store.
//
// An accepted file prints its normalized contents to stdout (or
// replaces the file with --inplace). A rejected file prints the
// failure and sets the exit code: 1 for bad (does not compile), 2 for
// ugly (compiles but not useful). With several paths the worst verdict
// wins the exit code.
//
// Flags:
//   - --inplace: Rewrite accepted files with their normalized contents
//   - --min-instructions: Usefulness threshold override
//   - --debug: Enable debug logging
//
// Examples:
//
//	clprep file kernel.cl             Print the normalized kernel
//	clprep file --inplace *.cl        Normalize files in place
func runFile(args []string, configPath string) {
	fs := flag.NewFlagSet("file", flag.ExitOnError)
	inplace := fs.Bool("inplace", false, "Rewrite accepted files with their normalized contents")
	minInstructions := fs.Int("min-instructions", -1, "Minimum instruction count for accepted samples")
	debug := fs.Bool("debug", false, "Enable debug logging")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: clprep file [options] <path>...

Classifies individual source files. Accepted files print their
normalized contents; rejections report why and set the exit code
(1 bad, 2 ugly).

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() == 0 {
		errors.FatalError(errors.NewInputError(
			"no input files",
			"the file command needs at least one path",
			"clprep file kernel.cl",
		), false)
	}

	cfg, err := loadConfigOrDefaults(configPath)
	if err != nil {
		errors.FatalError(err, false)
	}
	if *minInstructions >= 0 {
		cfg.Preprocess.MinInstructions = *minInstructions
	}

	logLevel := slog.LevelWarn
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	transformer := preprocess.NewTransformer(
		toolchain.NewRunner(cfg.Toolchain),
		cfg.Preprocess.MinInstructions,
		logger,
	)

	exitCode := errors.ExitSuccess
	multiple := fs.NArg() > 1

	for _, path := range fs.Args() {
		src, err := os.ReadFile(path)
		if err != nil {
			errors.FatalError(errors.NewInputError(
				"cannot read input file",
				fmt.Sprintf("%s: %v", path, err),
				"check the path and permissions",
			), false)
		}

		res, err := transformer.Transform(context.Background(), path, string(src))
		if err != nil {
			errors.FatalError(errors.NewInternalError("transform failed", err.Error(), "", err), false)
		}

		switch res.Status {
		case preprocess.StatusGood:
			if *inplace {
				if err := os.WriteFile(path, []byte(res.Contents+"\n"), 0o644); err != nil {
					errors.FatalError(errors.NewInputError(
						"cannot rewrite input file",
						fmt.Sprintf("%s: %v", path, err),
						"check the path and permissions",
					), false)
				}
				ui.Successf("%s", path)
			} else {
				if multiple {
					fmt.Printf("// %s\n", path)
				}
				fmt.Println(res.Contents)
			}
		default:
			ue := rejectionError(path, res)
			if ue.ExitCode == errors.ExitBadCode {
				ui.Errorf("%s", ue.Message)
			} else {
				ui.Warningf("%s", ue.Message)
			}
			fmt.Fprintln(os.Stderr, ue.Cause)
			exitCode = worseExit(exitCode, ue.ExitCode)
		}
	}

	os.Exit(exitCode)
}

// rejectionError maps a rejected classification to its UserError. An
// accepted result maps to nil.
func rejectionError(path string, res preprocess.Result) *errors.UserError {
	switch res.Status {
	case preprocess.StatusBad:
		return errors.NewBadCodeError(
			fmt.Sprintf("%s: bad (does not compile)", path),
			res.Contents,
		)
	case preprocess.StatusUgly:
		return errors.NewUglyCodeError(
			fmt.Sprintf("%s: ugly (not useful)", path),
			res.Contents,
		)
	}
	return nil
}

// worseExit aggregates rejection exit codes over several files: bad
// always wins, ugly only upgrades success.
func worseExit(current, next int) int {
	if next == errors.ExitBadCode || current == errors.ExitSuccess {
		return next
	}
	return current
}
