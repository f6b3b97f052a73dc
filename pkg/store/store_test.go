// Copyright 2025 CorpusForge
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "corpus.db"))
	require.NoError(t, err)
	require.NoError(t, s.EnsureSchema())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestEnsureSchema_Idempotent(t *testing.T) {
	s := newTestStore(t)
	// Second call must not fail on existing tables.
	require.NoError(t, s.EnsureSchema())
}

func TestContentFiles_CountAndRange(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.AddContentFile("a", "kernel void A() {}"))
	require.NoError(t, s.AddContentFile("b", "kernel void B() {}"))
	require.NoError(t, s.AddContentFile("c", "kernel void C() {}"))

	n, err := s.ContentFileCount()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Over-read past the end of the table is tolerated.
	samples, err := s.ContentFilesRange(10, 1)
	require.NoError(t, err)
	assert.Len(t, samples, 2)

	samples, err = s.ContentFilesRange(10, 5)
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestUpsertPreprocessed_ReplaceSemantics(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.UpsertPreprocessedBatch([]PreprocessedRow{
		{ID: "a", Status: 1, Contents: "clang: error"},
	}))

	// A later run overwrites the earlier row for the same id.
	require.NoError(t, s.UpsertPreprocessedBatch([]PreprocessedRow{
		{ID: "a", Status: 0, Contents: "kernel void A() {}"},
	}))

	row, err := s.GetPreprocessed("a")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, 0, row.Status)
	assert.Equal(t, "kernel void A() {}", row.Contents)

	n, err := s.PreprocessedFileCount()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestHasPreprocessed(t *testing.T) {
	s := newTestStore(t)

	found, err := s.HasPreprocessed("missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.UpsertPreprocessedBatch([]PreprocessedRow{
		{ID: "a", Status: 0, Contents: "x"},
	}))
	found, err = s.HasPreprocessed("a")
	require.NoError(t, err)
	assert.True(t, found)
}

// TestChecksum verifies the fingerprint invariant: it changes if and
// only if the id collection changes.
func TestChecksum(t *testing.T) {
	s := newTestStore(t)

	empty, err := s.Checksum()
	require.NoError(t, err)

	require.NoError(t, s.AddContentFile("a", "one"))
	first, err := s.Checksum()
	require.NoError(t, err)
	assert.NotEqual(t, empty, first)

	// Unchanged id set, unchanged fingerprint.
	again, err := s.Checksum()
	require.NoError(t, err)
	assert.Equal(t, first, again)

	require.NoError(t, s.AddContentFile("b", "two"))
	second, err := s.Checksum()
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestMeta_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	_, found, err := s.Meta(MetaChecksumKey)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.SetMeta(MetaChecksumKey, "abc123"))
	v, found, err := s.Meta(MetaChecksumKey)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "abc123", v)

	// Upsert replaces.
	require.NoError(t, s.SetMeta(MetaChecksumKey, "def456"))
	v, _, err = s.Meta(MetaChecksumKey)
	require.NoError(t, err)
	assert.Equal(t, "def456", v)
}

func TestScrubRejected(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.UpsertPreprocessedBatch([]PreprocessedRow{
		{ID: "good", Status: 0, Contents: "kernel void A() {}"},
		{ID: "bad", Status: 1, Contents: "clang: error: expected ';'"},
		{ID: "ugly", Status: 2, Contents: "instruction count below minimum"},
	}))

	n, err := s.ScrubRejected()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// Accepted payloads survive, rejected payloads are replaced.
	row, err := s.GetPreprocessed("good")
	require.NoError(t, err)
	assert.Equal(t, "kernel void A() {}", row.Contents)

	for _, id := range []string{"bad", "ugly"} {
		row, err := s.GetPreprocessed(id)
		require.NoError(t, err)
		assert.Equal(t, DeletedSentinel, row.Contents)
	}

	require.NoError(t, s.Vacuum())
}

func TestStatusCountsAndTextStats(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.UpsertPreprocessedBatch([]PreprocessedRow{
		{ID: "g1", Status: 0, Contents: "a\nb\nc"},
		{ID: "g2", Status: 0, Contents: "d"},
		{ID: "b1", Status: 1, Contents: "error"},
	}))

	counts, err := s.StatusCounts()
	require.NoError(t, err)
	assert.Equal(t, 2, counts[0])
	assert.Equal(t, 1, counts[1])

	stats, err := s.AcceptedTextStats()
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.Lines) // 3 lines + 1 line
	assert.Equal(t, int64(6), stats.Chars) // "a\nb\nc" is 5 + "d" is 1
}

func TestForEachAccepted(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.UpsertPreprocessedBatch([]PreprocessedRow{
		{ID: "g1", Status: 0, Contents: "one"},
		{ID: "b1", Status: 1, Contents: "error"},
		{ID: "g2", Status: 0, Contents: "two"},
	}))

	seen := map[string]string{}
	err := s.ForEachAccepted(func(id, contents string) error {
		seen[id] = contents
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"g1": "one", "g2": "two"}, seen)
}
