// Copyright 2025 CorpusForge
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpusforge/clprep/internal/errors"
)

func TestConfigRoundTrip(t *testing.T) {
	root := t.TempDir()
	path := ConfigPath(root)

	cfg := DefaultConfig()
	cfg.DBPath = "my-corpus.db"
	cfg.Preprocess.Workers = 8
	cfg.Preprocess.MinInstructions = 3
	cfg.Toolchain.Clang = "/opt/llvm/bin/clang"

	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "my-corpus.db", loaded.DBPath)
	assert.Equal(t, 8, loaded.Preprocess.Workers)
	assert.Equal(t, 3, loaded.Preprocess.MinInstructions)
	assert.Equal(t, "/opt/llvm/bin/clang", loaded.Toolchain.Clang)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), ".clprep", "config.yaml"))
	require.Error(t, err)

	ue, ok := err.(*errors.UserError)
	require.True(t, ok)
	assert.Equal(t, errors.ExitConfig, ue.ExitCode)
	assert.Contains(t, ue.Fix, "clprep init")
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("db_path: [unclosed"), 0o644))

	_, err := LoadConfig(path)
	require.Error(t, err)

	ue, ok := err.(*errors.UserError)
	require.True(t, ok)
	assert.Equal(t, errors.ExitConfig, ue.ExitCode)
}

// Partial files keep defaults for everything they do not mention.
func TestLoadConfigPartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("db_path: other.db\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "other.db", cfg.DBPath)
	assert.Equal(t, DefaultConfig().Toolchain.Target, cfg.Toolchain.Target)
}

func TestLoadConfigOrDefaults(t *testing.T) {
	cfg, err := loadConfigOrDefaults(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().DBPath, cfg.DBPath)
}

func TestCreateInitConfigOverrides(t *testing.T) {
	cfg := createInitConfig(initFlags{
		dbPath:          "x.db",
		clang:           "/usr/bin/clang-17",
		workers:         4,
		minInstructions: 2,
	})
	assert.Equal(t, "x.db", cfg.DBPath)
	assert.Equal(t, "/usr/bin/clang-17", cfg.Toolchain.Clang)
	assert.Equal(t, 4, cfg.Preprocess.Workers)
	assert.Equal(t, 2, cfg.Preprocess.MinInstructions)

	// Unset numeric flags (-1) leave defaults alone.
	cfg = createInitConfig(initFlags{workers: -1, minInstructions: -1})
	assert.Equal(t, DefaultConfig().Preprocess.Workers, cfg.Preprocess.Workers)
}
