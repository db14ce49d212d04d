// Copyright (C) Bennett Meares.
// All rights reserved. This file is part of mrsm.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package config

import (
	"os"
	"path/filepath"
)

// Resource directories, overridable through the environment.

func RootDir() string {
	if dir := os.Getenv("MRSM_ROOT_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mrsm"
	}
	return filepath.Join(home, ".config", "meerschaum")
}

func ConfigDir() string {
	if dir := os.Getenv("MRSM_CONFIG_DIR"); dir != "" {
		return dir
	}
	return filepath.Join(RootDir(), "config")
}

func PluginsDir() string {
	if dir := os.Getenv("MRSM_PLUGINS_DIR"); dir != "" {
		return dir
	}
	return filepath.Join(RootDir(), "plugins")
}

func VenvsDir() string {
	if dir := os.Getenv("MRSM_VENVS_DIR"); dir != "" {
		return dir
	}
	return filepath.Join(RootDir(), "venvs")
}
