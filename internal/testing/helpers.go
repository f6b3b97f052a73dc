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

package testing

import (
	"path/filepath"
	"testing"

	"github.com/corpusforge/clprep/pkg/store"
)

// SetupTestStore creates a file-backed corpus store for testing. The
// store is automatically closed when the test finishes.
func SetupTestStore(t *testing.T) *store.Store {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "corpus.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	if err := st.EnsureSchema(); err != nil {
		t.Fatalf("failed to ensure schema: %v", err)
	}

	t.Cleanup(func() {
		st.Close()
	})

	return st
}

// SeedContentFiles loads raw samples into the candidate table.
func SeedContentFiles(t *testing.T, st *store.Store, samples map[string]string) {
	t.Helper()

	for id, contents := range samples {
		if err := st.AddContentFile(id, contents); err != nil {
			t.Fatalf("failed to seed content file %s: %v", id, err)
		}
	}
}

// SeedPreprocessed inserts classified rows directly, bypassing the
// pipeline.
func SeedPreprocessed(t *testing.T, st *store.Store, rows []store.PreprocessedRow) {
	t.Helper()

	if err := st.UpsertPreprocessedBatch(rows); err != nil {
		t.Fatalf("failed to seed preprocessed rows: %v", err)
	}
}
