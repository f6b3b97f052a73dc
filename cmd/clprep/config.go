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
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/corpusforge/clprep/internal/errors"
	"github.com/corpusforge/clprep/pkg/toolchain"
)

// GlobalFlags carries CLI state that spans subcommands and feeds UI
// decisions (progress bars, colors, JSON mode).
type GlobalFlags struct {
	Quiet   bool
	NoColor bool
	JSON    bool
	Verbose int
}

// PreprocessConfig holds the pipeline tunables.
type PreprocessConfig struct {
	// Workers caps parallel transform workers; zero means one per CPU.
	Workers int `yaml:"workers"`

	// MinInstructions rejects samples whose total instruction count is
	// below the threshold.
	MinInstructions int `yaml:"min_instructions"`
}

// Config is the persisted project configuration at
// .clprep/config.yaml.
type Config struct {
	// DBPath is the default corpus store; command arguments override it.
	DBPath string `yaml:"db_path"`

	Preprocess PreprocessConfig `yaml:"preprocess"`

	Toolchain toolchain.Config `yaml:"toolchain"`
}

// DefaultConfig returns the stock configuration for a new project.
func DefaultConfig() *Config {
	return &Config{
		DBPath:     "corpus.db",
		Preprocess: PreprocessConfig{Workers: 0, MinInstructions: 0},
		Toolchain:  toolchain.DefaultConfig(),
	}
}

// ConfigDir returns the configuration directory under root.
func ConfigDir(root string) string {
	return filepath.Join(root, ".clprep")
}

// ConfigPath returns the configuration file path under root.
func ConfigPath(root string) string {
	return filepath.Join(ConfigDir(root), "config.yaml")
}

// LoadConfig reads the configuration at path, or at
// ./.clprep/config.yaml when path is empty.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		path = ConfigPath(cwd)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewConfigError(
				"configuration not found",
				fmt.Sprintf("no configuration file at %s", path),
				"run 'clprep init' to create one",
				err,
			)
		}
		return nil, errors.NewConfigError("cannot read configuration", err.Error(), "", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.NewConfigError(
			"invalid configuration",
			fmt.Sprintf("%s: %v", path, err),
			"fix the YAML syntax or re-run 'clprep init --force'",
			err,
		)
	}
	return cfg, nil
}

// SaveConfig writes cfg to path, creating the directory if needed.
func SaveConfig(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal configuration: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// loadConfigOrDefaults is used by commands that work without a
// project: a missing configuration falls back to defaults, any other
// error is still fatal.
func loadConfigOrDefaults(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		if ue, ok := err.(*errors.UserError); ok && os.IsNotExist(ue.Unwrap()) {
			return DefaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}
