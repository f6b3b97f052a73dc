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

// Package testing provides test helpers for clprep integration tests.
//
// # Quick Start
//
// Use SetupTestStore to create a file-backed corpus store with schema:
//
//	func TestMyFeature(t *testing.T) {
//	    st := testing.SetupTestStore(t)
//
//	    // Store is ready with the corpus schema initialized
//	    testing.SeedContentFiles(t, st, map[string]string{
//	        "k0": "__kernel void A() {}",
//	    })
//
//	    // Run your tests...
//	}
//
// # Seeding Test Data
//
// The package provides helpers for inserting common test rows:
//   - SeedContentFiles: add raw samples to the candidate table
//   - SeedPreprocessed: add classified rows directly
package testing
