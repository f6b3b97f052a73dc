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

// Package store provides access to the corpus database.
//
// The database holds three tables:
//
//   - ContentFiles(id, contents): raw input samples, written by external
//     collectors and treated as read-only by the preprocessing pipeline.
//   - PreprocessedFiles(id, status, contents): one row per processed
//     sample with replace-on-conflict semantics keyed by id.
//   - Meta(key, value): a small key/value table for run bookkeeping,
//     notably the aggregate fingerprint of the input set.
//
// The backend is SQLite via the pure-Go modernc.org/sqlite driver, so no
// cgo or system SQLite is required. During a pipeline run many read-only
// handles may be open concurrently (one per worker); only the merger
// writes, so there is no write contention.
package store

import (
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"

	_ "modernc.org/sqlite"
)

// MetaChecksumKey is the well-known Meta key holding the aggregate
// fingerprint of the ContentFiles id set at the end of the last
// successful preprocessing run.
const MetaChecksumKey = "preprocessed_checksum"

// DeletedSentinel replaces the contents of rejected rows during Scrub.
const DeletedSentinel = "[DELETED]"

// Sample is one raw input row from ContentFiles.
type Sample struct {
	ID       string
	Contents string
}

// PreprocessedRow is one classified result destined for PreprocessedFiles.
type PreprocessedRow struct {
	ID       string `json:"id"`
	Status   int    `json:"status"`
	Contents string `json:"contents"`
}

// Store wraps a SQLite corpus database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the corpus database at path and applies the
// standard connection pragmas. Each pipeline worker opens its own Store;
// handles are not shared across goroutines beyond database/sql's own
// pooling.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// busy_timeout lets concurrent readers wait out the merger's write
	// transaction instead of failing with SQLITE_BUSY.
	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the filesystem path of the database file.
func (s *Store) Path() string {
	return s.path
}

// EnsureSchema creates the corpus tables if they do not exist.
// It is idempotent and safe to call on every open.
func (s *Store) EnsureSchema() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS ContentFiles (
			id TEXT NOT NULL UNIQUE,
			contents TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS PreprocessedFiles (
			id TEXT NOT NULL UNIQUE,
			status INTEGER NOT NULL,
			contents TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS Meta (
			key TEXT NOT NULL UNIQUE,
			value TEXT NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// AddContentFile inserts a raw sample into ContentFiles.
// Raw samples are immutable once stored; conflicting ids are replaced so
// re-ingesting the same content hash is harmless.
func (s *Store) AddContentFile(id, contents string) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO ContentFiles (id, contents) VALUES (?, ?)",
		id, contents,
	)
	if err != nil {
		return fmt.Errorf("insert content file: %w", err)
	}
	return nil
}

// ContentFileCount returns the number of raw samples.
func (s *Store) ContentFileCount() (int, error) {
	return s.count("ContentFiles")
}

// PreprocessedFileCount returns the number of processed samples.
func (s *Store) PreprocessedFileCount() (int, error) {
	return s.count("PreprocessedFiles")
}

func (s *Store) count(table string) (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// StatusCounts returns the number of preprocessed rows per status value.
func (s *Store) StatusCounts() (map[int]int, error) {
	rows, err := s.db.Query("SELECT status, COUNT(*) FROM PreprocessedFiles GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("status counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[int]int)
	for rows.Next() {
		var status, n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// ContentFilesRange returns up to limit raw samples starting at row
// offset. The pipeline partitions the input set into contiguous
// index ranges, so a final range may extend past the table; the
// over-read simply returns fewer rows.
//
// Range partitioning assumes the underlying row order is stable and
// append-only for the duration of a run. Concurrent insertion into
// ContentFiles during a run can skew partitions.
func (s *Store) ContentFilesRange(limit, offset int) ([]Sample, error) {
	rows, err := s.db.Query(
		"SELECT id, contents FROM ContentFiles LIMIT ? OFFSET ?",
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("select content range: %w", err)
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var smp Sample
		if err := rows.Scan(&smp.ID, &smp.Contents); err != nil {
			return nil, fmt.Errorf("scan content file: %w", err)
		}
		samples = append(samples, smp)
	}
	return samples, rows.Err()
}

// HasPreprocessed reports whether a result already exists for id.
// The pipeline uses this per-row check to skip already-processed
// samples on re-runs.
func (s *Store) HasPreprocessed(id string) (bool, error) {
	var found string
	err := s.db.QueryRow("SELECT id FROM PreprocessedFiles WHERE id = ?", id).Scan(&found)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup preprocessed %s: %w", id, err)
	}
	return true, nil
}

// UpsertPreprocessedBatch writes classified results into
// PreprocessedFiles inside one transaction, replacing any existing row
// with the same id. Later runs overwrite earlier ones for the same
// sample.
func (s *Store) UpsertPreprocessedBatch(results []PreprocessedRow) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	stmt, err := tx.Prepare("INSERT OR REPLACE INTO PreprocessedFiles (id, status, contents) VALUES (?, ?, ?)")
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range results {
		if _, err := stmt.Exec(r.ID, r.Status, r.Contents); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert %s: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

// GetPreprocessed returns the classified result for id, if any.
func (s *Store) GetPreprocessed(id string) (*PreprocessedRow, error) {
	var row PreprocessedRow
	err := s.db.QueryRow(
		"SELECT id, status, contents FROM PreprocessedFiles WHERE id = ?", id,
	).Scan(&row.ID, &row.Status, &row.Contents)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get preprocessed %s: %w", id, err)
	}
	return &row, nil
}

// Checksum computes the aggregate fingerprint over all ContentFiles ids.
//
// The hash is an MD5 accumulated over the id column in insertion order.
// Invariant: the fingerprint changes if and only if the id collection
// changes. SQLite custom aggregates are not available through the
// modernc driver, so the accumulation runs application-side over a
// streamed scan; tens of thousands of short ids hash in well under a
// millisecond of CPU.
func (s *Store) Checksum() (string, error) {
	rows, err := s.db.Query("SELECT id FROM ContentFiles ORDER BY rowid")
	if err != nil {
		return "", fmt.Errorf("scan ids for checksum: %w", err)
	}
	defer rows.Close()

	h := md5.New()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", fmt.Errorf("scan id: %w", err)
		}
		h.Write([]byte(id))
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("checksum scan: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Meta returns the value stored under key, with found=false when the
// key is absent.
func (s *Store) Meta(key string) (value string, found bool, err error) {
	err = s.db.QueryRow("SELECT value FROM Meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get meta %s: %w", key, err)
	}
	return value, true, nil
}

// SetMeta upserts a Meta key/value pair.
func (s *Store) SetMeta(key, value string) error {
	_, err := s.db.Exec("INSERT OR REPLACE INTO Meta (key, value) VALUES (?, ?)", key, value)
	if err != nil {
		return fmt.Errorf("set meta %s: %w", key, err)
	}
	return nil
}

// ScrubRejected replaces the contents of every Bad or Ugly preprocessed
// row with DeletedSentinel and returns the number of rows affected.
// This is destructive and irreversible for the diagnostic payloads of
// rejected rows; accepted rows are untouched.
func (s *Store) ScrubRejected() (int64, error) {
	res, err := s.db.Exec(
		"UPDATE PreprocessedFiles SET contents = ? WHERE status = 1 OR status = 2",
		DeletedSentinel,
	)
	if err != nil {
		return 0, fmt.Errorf("scrub rejected: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("scrub rows affected: %w", err)
	}
	return n, nil
}

// Vacuum reclaims storage space at the database level.
// Call after ScrubRejected to return the freed pages to the filesystem.
func (s *Store) Vacuum() error {
	if _, err := s.db.Exec("VACUUM"); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	return nil
}

// FileSize returns the size of the database file in bytes.
func (s *Store) FileSize() (int64, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return 0, fmt.Errorf("stat database: %w", err)
	}
	return info.Size(), nil
}

// TextStats holds aggregate line and character counts over the accepted
// portion of the preprocessed table. Used for reporting, not
// classification.
type TextStats struct {
	Lines int64
	Chars int64
}

// AcceptedTextStats computes total line and character counts over
// accepted samples. The line count is derived in SQL by counting
// newline characters.
func (s *Store) AcceptedTextStats() (TextStats, error) {
	var stats TextStats
	err := s.db.QueryRow(`
		SELECT
			COALESCE(SUM(LENGTH(contents) - LENGTH(REPLACE(contents, CHAR(10), '')) + 1), 0),
			COALESCE(SUM(LENGTH(contents)), 0)
		FROM PreprocessedFiles WHERE status = 0`,
	).Scan(&stats.Lines, &stats.Chars)
	if err != nil {
		return TextStats{}, fmt.Errorf("accepted text stats: %w", err)
	}
	return stats, nil
}

// ForEachAccepted streams every accepted preprocessed sample to fn.
// Iteration stops at the first error returned by fn.
func (s *Store) ForEachAccepted(fn func(id, contents string) error) error {
	rows, err := s.db.Query("SELECT id, contents FROM PreprocessedFiles WHERE status = 0")
	if err != nil {
		return fmt.Errorf("select accepted: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, contents string
		if err := rows.Scan(&id, &contents); err != nil {
			return fmt.Errorf("scan accepted: %w", err)
		}
		if err := fn(id, contents); err != nil {
			return err
		}
	}
	return rows.Err()
}
