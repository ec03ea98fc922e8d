// Package home manages the coldpack home directory layout.
//
// The home directory owns all persistent state: the dataset/store config
// database, the metadata store, and per-dataset workspace directories.
//
// Layout:
//
//	<root>/
//	  config.db                        (config store, sqlite)
//	  metadata.db                      (bbolt metadata store)
//	  datasets/
//	    <dataset-id>/                  (per-dataset workspace for in-flight packs)
package home

import (
	"fmt"
	"os"
	"path/filepath"
)

// Dir represents a coldpack home directory.
type Dir struct {
	root string
}

// New creates a Dir with an explicit root path.
func New(root string) Dir {
	return Dir{root: root}
}

// Default returns a Dir using the platform-appropriate default location:
//   - Linux:   ~/.config/coldpack
//   - macOS:   ~/Library/Application Support/coldpack
//   - Windows: %APPDATA%/coldpack
func Default() (Dir, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return Dir{}, fmt.Errorf("determine config directory: %w", err)
	}
	return Dir{root: filepath.Join(base, "coldpack")}, nil
}

// Root returns the home directory path.
func (d Dir) Root() string {
	return d.root
}

// ConfigPath returns the path to the sqlite config database.
func (d Dir) ConfigPath() string {
	return filepath.Join(d.root, "config.db")
}

// MetadataPath returns the path to the bbolt metadata store file.
func (d Dir) MetadataPath() string {
	return filepath.Join(d.root, "metadata.db")
}

// WorkspaceDir returns the workspace directory for a specific dataset's
// in-flight pack files.
func (d Dir) WorkspaceDir(datasetID string) string {
	return filepath.Join(d.root, "datasets", datasetID)
}

// EnsureExists creates the home directory (and parents) if it doesn't exist.
func (d Dir) EnsureExists() error {
	if err := os.MkdirAll(d.root, 0o750); err != nil {
		return fmt.Errorf("create home directory %s: %w", d.root, err)
	}
	return nil
}
