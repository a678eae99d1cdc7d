// Package dotdir resolves the .shelf/ state directory that holds the config
// file, the catalog, the vector index and the local ownership database.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DirName is the name of the shelf state directory.
	DirName = ".shelf"
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the absolute path to a .shelf/ directory.
// Order of precedence is as follows:
//  1. Provided override
//  2. Local ./.shelf/ dir
//  3. Home ~/.shelf/ dir, created if missing
func (m *Manager) Target(overrideDir string) (string, error) {
	var dir string

	switch {
	case overrideDir != "":
		dir = overrideDir

	case m.localDirExists():
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting current directory: %w", err)
		}
		dir = filepath.Join(cwd, DirName)

	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		dir = filepath.Join(home, DirName)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating shelf directory %s: %w", dir, err)
	}

	return filepath.Abs(dir)
}

// Resolve returns path unchanged when it is absolute, otherwise joins it onto
// the resolved .shelf/ directory. State file settings in config.toml are
// relative to the state directory by default.
func (m *Manager) Resolve(overrideDir, path string) (string, error) {
	if path == "" || filepath.IsAbs(path) || path == ":memory:" {
		return path, nil
	}

	target, err := m.Target(overrideDir)
	if err != nil {
		return "", err
	}

	return filepath.Join(target, path), nil
}

// localDirExists checks whether a .shelf/ directory exists in the current
// working directory.
func (m *Manager) localDirExists() bool {
	cwd, err := os.Getwd()
	if err != nil {
		return false
	}

	info, err := os.Stat(filepath.Join(cwd, DirName))
	return err == nil && info.IsDir()
}
