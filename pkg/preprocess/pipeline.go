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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/corpusforge/clprep/pkg/store"
	"github.com/corpusforge/clprep/pkg/toolchain"
)

// Options configures a pipeline run over a corpus store.
type Options struct {
	// Workers caps the number of concurrent transform workers. Zero
	// means one worker per CPU.
	Workers int

	// MinInstructions is the usefulness threshold; samples below it are
	// classified ugly.
	MinInstructions int

	// Toolchain locates the external tool binaries.
	Toolchain toolchain.Config

	Logger *slog.Logger

	// Progress, when non-nil, is called once per finished sample
	// (processed or skipped).
	Progress func()
}

// Summary reports the outcome of one pipeline run.
type Summary struct {
	Candidates  int    `json:"candidates"`
	Processed   int    `json:"processed"`
	Skipped     int    `json:"skipped"`
	Good        int    `json:"good"`
	Bad         int    `json:"bad"`
	Ugly        int    `json:"ugly"`
	Fingerprint string `json:"fingerprint"`
	UpToDate    bool   `json:"up_to_date"`
	Elapsed     string `json:"elapsed"`
}

// workerState accumulates one worker's tallies; merged into the
// Summary after the pool drains.
type workerState struct {
	processed int
	skipped   int
	good      int
	bad       int
	ugly      int
	err       error
}

// Run executes the full classify-and-cache pipeline over the store at
// dbPath. The run is idempotent: a corpus whose fingerprint matches the
// recorded one is a no-op, and within a run samples that already carry
// a classification are skipped. Worker results stream through
// append-only sink files that are merged into the store even when a
// worker fails, so progress survives interruption.
func Run(ctx context.Context, dbPath string, opts Options) (*Summary, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	start := time.Now()

	st, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	if err := st.EnsureSchema(); err != nil {
		return nil, err
	}

	fingerprint, err := st.Checksum()
	if err != nil {
		return nil, err
	}
	recorded, found, err := st.Meta(store.MetaChecksumKey)
	if err != nil {
		return nil, err
	}
	if found && recorded == fingerprint {
		logger.Info("preprocess.up_to_date", "fingerprint", fingerprint)
		return &Summary{Fingerprint: fingerprint, UpToDate: true, Elapsed: time.Since(start).String()}, nil
	}

	total, err := st.ContentFileCount()
	if err != nil {
		return nil, err
	}
	logger.Info("preprocess.start", "candidates", total, "workers", workers, "fingerprint", fingerprint)

	sinkDir, err := os.MkdirTemp("", "clprep-sinks-*")
	if err != nil {
		return nil, fmt.Errorf("create sink dir: %w", err)
	}
	defer os.RemoveAll(sinkDir)

	jobs := makeJobs(total, workers)
	states := make([]workerState, len(jobs))

	var wg sync.WaitGroup
	for i, j := range jobs {
		wg.Add(1)
		go func(i int, j job) {
			defer wg.Done()
			states[i] = runWorker(ctx, dbPath, sinkDir, j, opts, logger)
		}(i, j)
	}
	wg.Wait()

	// Merge sinks unconditionally: whatever the workers managed to
	// classify is kept even when one of them failed.
	mergeStart := time.Now()
	merged, mergeErr := mergeSinks(st, sinkDir, logger)
	observeMerge(time.Since(mergeStart))
	logger.Info("preprocess.merged", "records", merged, "elapsed", time.Since(mergeStart).String())

	summary := &Summary{Candidates: total, Fingerprint: fingerprint}
	var firstErr error
	for i := range states {
		s := &states[i]
		summary.Processed += s.processed
		summary.Skipped += s.skipped
		summary.Good += s.good
		summary.Bad += s.bad
		summary.Ugly += s.ugly
		if s.err != nil && firstErr == nil {
			firstErr = s.err
		}
	}
	summary.Elapsed = time.Since(start).String()
	observeTotal(time.Since(start))

	if mergeErr != nil {
		return summary, mergeErr
	}
	if firstErr != nil {
		return summary, firstErr
	}

	// Only a fully successful pass earns the fingerprint; a partial run
	// repeats (skipping finished rows) next time.
	if err := st.SetMeta(store.MetaChecksumKey, fingerprint); err != nil {
		return summary, err
	}
	logger.Info("preprocess.done",
		"processed", summary.Processed, "skipped", summary.Skipped,
		"good", summary.Good, "bad", summary.Bad, "ugly", summary.Ugly,
		"elapsed", summary.Elapsed)
	return summary, nil
}

// runWorker classifies one contiguous window of candidate rows,
// appending each result to the worker's private sink file as soon as
// it is known. Every worker opens its own store handle; SQLite
// serializes them via the busy timeout.
func runWorker(ctx context.Context, dbPath, sinkDir string, j job, opts Options, logger *slog.Logger) workerState {
	var ws workerState

	st, err := store.Open(dbPath)
	if err != nil {
		ws.err = fmt.Errorf("worker %d: %w", j.workerID, err)
		return ws
	}
	defer st.Close()

	samples, err := st.ContentFilesRange(j.limit, j.offset)
	if err != nil {
		ws.err = fmt.Errorf("worker %d: %w", j.workerID, err)
		return ws
	}

	sinkPath := filepath.Join(sinkDir, fmt.Sprintf("worker-%d.jsonl", j.workerID))
	sink, err := os.OpenFile(sinkPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		ws.err = fmt.Errorf("worker %d: open sink: %w", j.workerID, err)
		return ws
	}
	defer sink.Close()
	enc := json.NewEncoder(sink)

	transformer := NewTransformer(toolchain.NewRunner(opts.Toolchain), opts.MinInstructions, logger)

	for _, sample := range samples {
		if ctx.Err() != nil {
			ws.err = ctx.Err()
			return ws
		}

		done, err := st.HasPreprocessed(sample.ID)
		if err != nil {
			ws.err = fmt.Errorf("worker %d: %w", j.workerID, err)
			return ws
		}
		if done {
			ws.skipped++
			recordSkipped()
			if opts.Progress != nil {
				opts.Progress()
			}
			continue
		}

		tStart := time.Now()
		res, err := transformer.Transform(ctx, sample.ID, sample.Contents)
		observeTransform(time.Since(tStart))
		if err != nil {
			ws.err = fmt.Errorf("worker %d: sample %s: %w", j.workerID, sample.ID, err)
			return ws
		}

		// One JSON document per line, written immediately so a crash
		// loses at most the record in flight.
		if err := enc.Encode(store.PreprocessedRow{ID: res.ID, Status: int(res.Status), Contents: res.Contents}); err != nil {
			ws.err = fmt.Errorf("worker %d: sink write: %w", j.workerID, err)
			return ws
		}
		recordSinkRecord()

		ws.processed++
		recordOutcome(res.Status)
		switch res.Status {
		case StatusGood:
			ws.good++
		case StatusBad:
			ws.bad++
		case StatusUgly:
			ws.ugly++
		}
		if opts.Progress != nil {
			opts.Progress()
		}
	}
	return ws
}

// mergeSinks drains every sink file in dir into the store. A truncated
// trailing record (interrupted writer) is tolerated: complete records
// before it are kept.
func mergeSinks(st *store.Store, dir string, logger *slog.Logger) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read sink dir: %w", err)
	}

	merged := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".jsonl" {
			continue
		}
		rows, err := readSink(filepath.Join(dir, entry.Name()), logger)
		if err != nil {
			return merged, err
		}
		if len(rows) == 0 {
			continue
		}
		if err := st.UpsertPreprocessedBatch(rows); err != nil {
			return merged, fmt.Errorf("merge %s: %w", entry.Name(), err)
		}
		merged += len(rows)
		recordSinkMerge()
	}
	return merged, nil
}

func readSink(path string, logger *slog.Logger) ([]store.PreprocessedRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sink %s: %w", path, err)
	}
	defer f.Close()

	var rows []store.PreprocessedRow
	dec := json.NewDecoder(f)
	for {
		var row store.PreprocessedRow
		if err := dec.Decode(&row); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			// A malformed tail means the writer died mid-record.
			logger.Warn("preprocess.sink.truncated", "sink", filepath.Base(path), "kept", len(rows), "err", err)
			break
		}
		rows = append(rows, row)
	}
	return rows, nil
}
