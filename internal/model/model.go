// Package model defines the entities shared across the backup engine:
// chunks, files, trees, snapshots, packs, datasets, and stores. Every
// entity serializes with github.com/vmihailenco/msgpack/v5, matching the
// record codec used by internal/mdstore.
package model

import (
	"time"

	"coldpack/internal/digest"
)

// EntryKind distinguishes the three kinds of directory entry a Tree holds.
type EntryKind string

const (
	KindFile    EntryKind = "file"
	KindDir     EntryKind = "dir"
	KindSymlink EntryKind = "symlink"
)

// Chunk is one content-defined slice of a file's bytes, named by the digest
// of those bytes.
type Chunk struct {
	Digest digest.Digest `msgpack:"d"`
	Offset int64         `msgpack:"o"`
	Length int64         `msgpack:"l"`
}

// File is the full content address of one regular file: the digest of its
// complete bytes plus the ordered list of chunks that reconstruct it.
type File struct {
	Digest digest.Digest `msgpack:"d"`
	Size   int64         `msgpack:"s"`
	Chunks []digest.Digest `msgpack:"c"`
}

// Entry is one named member of a Tree.
type Entry struct {
	Name       string            `msgpack:"n"`
	Kind       EntryKind         `msgpack:"k"`
	Mode       uint32            `msgpack:"m"`
	ModTime    time.Time         `msgpack:"t"`
	Digest     digest.Digest     `msgpack:"d,omitempty"` // file content or subtree digest
	Size       int64             `msgpack:"sz,omitempty"`
	LinkTarget string            `msgpack:"lt,omitempty"`
	UID        uint32            `msgpack:"u,omitempty"`
	GID        uint32            `msgpack:"g,omitempty"`
	Xattrs     map[string]string `msgpack:"x,omitempty"`
}

// Tree is one directory's worth of entries, named by the digest of its own
// serialized form. Subdirectories reference their own Tree by digest,
// forming a Merkle tree over the whole snapshot.
type Tree struct {
	Entries []Entry `msgpack:"e"`
}

// Snapshot is one point-in-time capture of a dataset: the root tree digest
// plus bookkeeping for incremental comparison against the next run.
type Snapshot struct {
	ID        string        `msgpack:"id"`
	DatasetID string        `msgpack:"ds"`
	StartTime time.Time     `msgpack:"t0"`
	EndTime   time.Time     `msgpack:"t1,omitempty"`
	RootTree  digest.Digest `msgpack:"root"`
	Parent    string        `msgpack:"parent,omitempty"` // previous Snapshot.ID for this dataset, empty for the first
	FileCount int64         `msgpack:"fc"`
	ByteCount int64         `msgpack:"bc"`
}

// Complete reports whether the snapshot finished without being interrupted.
func (s Snapshot) Complete() bool { return !s.EndTime.IsZero() }

// PackEntry locates one chunk's bytes inside a pack file.
type PackEntry struct {
	Digest digest.Digest `msgpack:"d"`
	Offset int64         `msgpack:"o"`
	Length int64         `msgpack:"l"`
}

// Pack describes one uploaded archive: its object name in a Store's bucket,
// and the chunks it contains.
type Pack struct {
	ID        string        `msgpack:"id"`
	DatasetID string        `msgpack:"ds"`
	StoreID   string        `msgpack:"store"`
	Bucket    string        `msgpack:"bucket"`
	Object    string        `msgpack:"object"`
	Digest    digest.Digest `msgpack:"digest"` // digest of the encrypted archive bytes, for integrity verification
	Size      int64         `msgpack:"size"`
	Entries   []PackEntry   `msgpack:"entries"`
	Salt      []byte        `msgpack:"salt"` // Argon2id salt for this pack's single derived key; carried out-of-band, never in the archive itself
	CreatedAt time.Time     `msgpack:"created"`
}

// ChunkRecord locates one chunk inside the pack that carries it, so restore
// can look a chunk up directly instead of scanning every pack record.
type ChunkRecord struct {
	Digest     digest.Digest `msgpack:"d"`
	PackDigest digest.Digest `msgpack:"pack"`
	EntryIndex int           `msgpack:"idx"`
}

// Schedule describes when a dataset's backup should run. Frequency governs
// which of the optional fields apply, matching spec.md's readiness algorithm.
type Schedule struct {
	Frequency  string     `msgpack:"freq"` // "hourly", "daily", "weekly", "monthly"
	Weekday    *int       `msgpack:"weekday,omitempty"`    // 0=Sunday, for "weekly"
	DayOfMonth *int       `msgpack:"dom,omitempty"`        // for "monthly", exact day of month
	NthWeekday *int       `msgpack:"nth,omitempty"`        // for "monthly": 0=Sunday..6=Saturday, matched against the Nth occurrence bucket (DayOfMonth used as 1..5 -> First..Fifth)
	RangeStart *int       `msgpack:"range_start,omitempty"` // minutes since midnight
	RangeStop  *int       `msgpack:"range_stop,omitempty"`
	StopTime   *time.Time `msgpack:"stop_time,omitempty"`
}

// Dataset is one configured backup source: a filesystem path, the store it
// uploads to, exclusion patterns, and its chunking policy.
type Dataset struct {
	ID             string     `msgpack:"id"`
	Name           string     `msgpack:"name"`
	BasePath       string     `msgpack:"path"`
	StoreID        string     `msgpack:"store"`
	Excludes       []string   `msgpack:"excludes,omitempty"`
	Schedules      []Schedule `msgpack:"schedules,omitempty"`
	PackSizeTarget int64      `msgpack:"pack_size"` // bytes
	Algorithm      digest.Algorithm `msgpack:"algo"`
	ChunkerSeed    uint64     `msgpack:"chunker_seed"` // seeds the dataset's content-defined-chunking polynomial
	LatestSnapshot string     `msgpack:"latest,omitempty"`
	Paused         bool       `msgpack:"paused,omitempty"` // operator-set; a paused dataset is never treated as "still running" for readiness purposes
}

// StoreType tags which PackStore adapter backs a Store.
type StoreType string

const (
	StoreLocal StoreType = "LOCAL"
	StoreAmazon StoreType = "AMAZON"
	StoreMinio  StoreType = "MINIO"
	StoreAzure  StoreType = "AZURE"
	StoreGoogle StoreType = "GOOGLE"
	StoreSFTP   StoreType = "SFTP"
)

// Store is one configured upload destination.
type Store struct {
	ID         string            `msgpack:"id"`
	Label      string            `msgpack:"label"`
	Type       StoreType         `msgpack:"type"`
	Properties map[string]string `msgpack:"props"`
}
