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
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/corpusforge/clprep/internal/errors"
	"github.com/corpusforge/clprep/internal/output"
	"github.com/corpusforge/clprep/pkg/preprocess"
	"github.com/corpusforge/clprep/pkg/store"
)

// runDB executes the 'db' CLI command, classifying every raw sample in
// a corpus store.
//
// The run is incremental: samples already classified are skipped, and
// a corpus whose content fingerprint matches the recorded one is a
// no-op. Interrupting a run is safe; finished verdicts are merged into
// the store before exit and the next run resumes where it stopped.
//
// Flags:
//   - --workers: Number of parallel transform workers (0 = one per CPU)
//   - --min-instructions: Usefulness threshold override
//   - --json: Output the run summary as JSON
//   - --quiet: Suppress the progress bar
//   - --debug: Enable debug logging
//   - --metrics-addr: HTTP address for Prometheus metrics (default: disabled)
//
// Examples:
//
//	clprep db corpus.db                 Classify the corpus
//	clprep db corpus.db --workers 16    Use 16 parallel workers
//	clprep db corpus.db --json          Machine-readable summary
func runDB(args []string, configPath string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	workers := fs.Int("workers", -1, "Number of parallel transform workers (0 = one per CPU)")
	minInstructions := fs.Int("min-instructions", -1, "Minimum instruction count for accepted samples")
	jsonOutput := fs.Bool("json", false, "Output summary as JSON")
	quiet := fs.Bool("quiet", false, "Suppress progress output")
	debug := fs.Bool("debug", false, "Enable debug logging")
	metricsAddr := fs.String("metrics-addr", "", "HTTP listen address for Prometheus metrics (empty to disable)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: clprep db [options] <corpus.db>

Classifies every raw sample in the corpus store. Verdicts are cached;
re-running over an unchanged corpus is a no-op.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := loadConfigOrDefaults(configPath)
	if err != nil {
		errors.FatalError(err, *jsonOutput)
	}

	dbPath := cfg.DBPath
	if fs.NArg() > 0 {
		dbPath = fs.Arg(0)
	}
	if dbPath == "" {
		errors.FatalError(errors.NewInputError(
			"no corpus store given",
			"neither a path argument nor db_path in the configuration was provided",
			"pass the store path: clprep db corpus.db",
		), *jsonOutput)
	}
	if _, err := os.Stat(dbPath); err != nil {
		errors.FatalError(errors.NewDatabaseError(
			"corpus store not found",
			fmt.Sprintf("cannot stat %s: %v", dbPath, err),
			"load raw samples into a store first, or run 'clprep init --create-db'",
			err,
		), *jsonOutput)
	}

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Prometheus metrics endpoint (optional)
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			srv := &http.Server{Addr: *metricsAddr, Handler: mux}
			logger.Info("metrics.http.start", "addr", *metricsAddr, "path", "/metrics")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics.http.error", "err", err)
			}
		}()
	}

	// Graceful shutdown: a signal cancels the run, but classified
	// verdicts are merged before exit.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("shutdown.signal", "signal", sig.String())
		cancel()
	}()

	opts := preprocess.Options{
		Workers:         cfg.Preprocess.Workers,
		MinInstructions: cfg.Preprocess.MinInstructions,
		Toolchain:       cfg.Toolchain,
		Logger:          logger,
	}
	if *workers >= 0 {
		opts.Workers = *workers
	}
	if *minInstructions >= 0 {
		opts.MinInstructions = *minInstructions
	}

	progressCfg := NewProgressConfig(GlobalFlags{Quiet: *quiet || *jsonOutput})
	bar := NewProgressBar(progressCfg, int64(countCandidates(dbPath)), "classifying")
	if bar != nil {
		opts.Progress = func() { _ = bar.Add(1) }
	}

	summary, err := preprocess.Run(ctx, dbPath, opts)
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		if summary != nil {
			logger.Warn("preprocess.partial",
				"processed", summary.Processed, "skipped", summary.Skipped)
		}
		errors.FatalError(errors.NewInternalError(
			"preprocessing failed",
			err.Error(),
			"re-run 'clprep db'; finished verdicts are kept and will be skipped",
			err,
		), *jsonOutput)
	}

	if *jsonOutput {
		output.JSON(summary)
		return
	}
	printSummary(summary)
}

// countCandidates returns the number of raw samples in the store, or
// zero when it cannot be read; the progress bar total is cosmetic.
func countCandidates(dbPath string) int {
	st, err := store.Open(dbPath)
	if err != nil {
		return 0
	}
	defer st.Close()
	if err := st.EnsureSchema(); err != nil {
		return 0
	}
	n, err := st.ContentFileCount()
	if err != nil {
		return 0
	}
	return n
}

// printSummary prints the run summary to stdout.
func printSummary(s *preprocess.Summary) {
	fmt.Println()
	if s.UpToDate {
		fmt.Println("Corpus is up to date; nothing to do.")
		fmt.Printf("Fingerprint: %s\n", s.Fingerprint)
		return
	}

	fmt.Println("=== Preprocessing Complete ===")
	fmt.Printf("Candidates: %d\n", s.Candidates)
	fmt.Printf("Processed:  %d\n", s.Processed)
	fmt.Printf("Skipped:    %d\n", s.Skipped)
	fmt.Println()
	fmt.Printf("Accepted:   %d\n", s.Good)
	fmt.Printf("Bad:        %d (does not compile)\n", s.Bad)
	fmt.Printf("Ugly:       %d (not useful)\n", s.Ugly)
	fmt.Println()
	fmt.Printf("Fingerprint: %s\n", s.Fingerprint)
	fmt.Printf("Elapsed:     %s\n", s.Elapsed)
}
