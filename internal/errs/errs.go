// Package errs collects the sentinel errors shared across the backup
// engine's components, so callers can use errors.Is regardless of which
// package raised the wrapped error.
package errs

import "errors"

var (
	// ErrNotFound is returned when a metadata-store key, dataset, store, or
	// pack object does not exist.
	ErrNotFound = errors.New("coldpack: not found")

	// ErrIntegrity is returned when a restored chunk's digest does not
	// match its recorded address.
	ErrIntegrity = errors.New("coldpack: integrity check failed")

	// ErrOutOfTime is returned when a backup run exceeds its configured
	// time window and stops partway through.
	ErrOutOfTime = errors.New("coldpack: backup run exceeded its time window")

	// ErrCollision is returned when two stores would otherwise write to
	// the same bucket name and a remapping could not resolve it.
	ErrCollision = errors.New("coldpack: bucket name collision")

	// ErrPackIntegrity is returned when a freshly built pack's archive
	// entries do not line up one-to-one with its accumulated chunk
	// digests. This is fatal for the run: uploading such a pack would
	// leave chunk/pack records pointing at the wrong archive entry.
	ErrPackIntegrity = errors.New("coldpack: pack integrity check failed")
)
