// Copyright 2025 CorpusForge
// SPDX-License-Identifier: AGPL-3.0-or-later

package preprocess

// job describes one worker's contiguous slice of the candidate rows,
// expressed as a limit/offset window over the stable row order.
type job struct {
	workerID int
	offset   int
	limit    int
}

// makeJobs splits candidateCount rows into at most maxWorkers
// contiguous, non-overlapping windows that together cover every row
// exactly once. The last window may be short. Fewer candidates than
// workers yields fewer jobs, never empty ones.
func makeJobs(candidateCount, maxWorkers int) []job {
	if candidateCount <= 0 || maxWorkers <= 0 {
		return nil
	}

	workers := maxWorkers
	if candidateCount < workers {
		workers = candidateCount
	}
	perWorker := (candidateCount + workers - 1) / workers

	jobs := make([]job, 0, workers)
	for i := 0; i < workers; i++ {
		offset := i * perWorker
		if offset >= candidateCount {
			break
		}
		limit := perWorker
		if offset+limit > candidateCount {
			limit = candidateCount - offset
		}
		jobs = append(jobs, job{workerID: i, offset: offset, limit: limit})
	}
	return jobs
}
