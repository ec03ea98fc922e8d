// Package config provides configuration persistence for the system.
//
// Store persists and reloads the desired system configuration across
// restarts: the set of configured Datasets and the Stores they back up
// to. This is control-plane state, not data-plane state — the metadata
// store (internal/mdstore) owns everything produced by a backup run.
//
// Store does not:
//   - Walk filesystems or hold chunk data
//   - Drive backup or restore runs itself
//   - Watch for live changes (v1 is load-on-start only)
package config

import (
	"context"

	"coldpack/internal/model"
)

// Store persists and loads the dataset/store configuration.
//
// Config describes the desired system shape: which datasets exist and
// which stores they back up to. cmd/coldpack loads config at startup and
// hands it to the Supervisor and Backup Driver. Config changes are not
// hot-reloaded in v1.
type Store interface {
	// Load reads the configuration. Returns nil config if none exists.
	Load(ctx context.Context) (*Config, error)

	// Save persists the configuration.
	Save(ctx context.Context, cfg *Config) error

	// Close releases any underlying resources.
	Close() error
}

// Config describes the desired system shape: the declarative set of
// datasets and stores to instantiate.
type Config struct {
	Datasets []model.Dataset
	Stores   []model.Store
}
