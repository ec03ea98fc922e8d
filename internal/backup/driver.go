// Package backup implements the Backup Driver: the use case that ties the
// Snapshot Engine, Chunker/PackBuilder, and PackStore together into one
// "back this dataset up" operation, respecting a deadline and persisting
// its results to the metadata store as it goes.
package backup

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"coldpack/internal/codec"
	"coldpack/internal/digest"
	"coldpack/internal/errs"
	"coldpack/internal/logging"
	"coldpack/internal/mdstore"
	"coldpack/internal/model"
	"coldpack/internal/packer"
	"coldpack/internal/packstore"
	"coldpack/internal/snapshot"
)

// Driver runs backups for one dataset against one metadata store.
type Driver struct {
	kv     mdstore.KV
	logger *slog.Logger
}

// New creates a Driver. A nil logger discards all output.
func New(kv mdstore.KV, logger *slog.Logger) *Driver {
	logger = logging.Default(logger)
	return &Driver{kv: kv, logger: logger.With("component", "backup")}
}

// Result reports what one Run call accomplished.
type Result struct {
	Snapshot  model.Snapshot
	Changed   bool
	PackCount int
	OutOfTime bool
}

// Run walks dataset.BasePath, packs changed chunks, and uploads them to
// store, stopping early (and reporting OutOfTime) if ctx's deadline is
// reached mid-run. passphrase encrypts every pack written this run.
//
// Chunk and pack records are committed to the metadata store as each pack
// is sealed; file records (and the snapshot record itself) are committed
// only afterward, once every chunk they reference is already durable — a
// crash between those two points can therefore never leave a file record
// pointing at a chunk that doesn't exist.
func (d *Driver) Run(ctx context.Context, dataset model.Dataset, store model.Store, passphrase string) (Result, error) {
	ps, err := packstore.Open(ctx, store)
	if err != nil {
		return Result{}, fmt.Errorf("backup: open store %s: %w", store.ID, err)
	}

	bucket, err := packstore.ResolveBucket(ctx, d.kv, store.ID, dataset.ID, func(candidate string) (bool, error) {
		return false, nil // single-store-per-bucket in this deployment model; real collision checks are store-specific
	})
	if err != nil {
		return Result{}, fmt.Errorf("backup: resolve bucket: %w", err)
	}
	if err := ps.EnsureBucket(ctx, bucket); err != nil {
		return Result{}, fmt.Errorf("backup: ensure bucket %s: %w", bucket, err)
	}

	pol, err := packer.DerivePolynomial(dataset.ChunkerSeed)
	if err != nil {
		return Result{}, fmt.Errorf("backup: derive chunker polynomial: %w", err)
	}

	builder, err := packer.NewPackBuilder(dataset.PackSizeTarget)
	if err != nil {
		return Result{}, fmt.Errorf("backup: new pack builder: %w", err)
	}

	result := Result{}
	outOfTime := false

	sink := func(c packer.Chunk) error {
		if err := ctx.Err(); err != nil {
			outOfTime = true
			return err
		}
		if !builder.Add(c) {
			return nil
		}
		return d.sealAndUpload(ctx, ps, bucket, dataset, store, passphrase, builder, &result)
	}

	var parent *model.Snapshot
	if dataset.LatestSnapshot != "" {
		prev, err := d.loadSnapshot(ctx, dataset.LatestSnapshot)
		if err == nil {
			parent = &prev
		}
	}

	eng := snapshot.New(d.kv, dataset.Algorithm, pol, dataset.Excludes, sink)
	takeResult, err := eng.Take(ctx, dataset.ID, dataset.BasePath, parent)
	if err != nil {
		if ctx.Err() != nil {
			outOfTime = true
		} else {
			return Result{}, fmt.Errorf("backup: take snapshot: %w", err)
		}
	}

	if !builder.Empty() {
		if err := d.sealAndUpload(ctx, ps, bucket, dataset, store, passphrase, builder, &result); err != nil {
			if ctx.Err() == nil {
				return Result{}, err
			}
			outOfTime = true
		}
	}

	result.Snapshot = takeResult.Snapshot
	result.Changed = takeResult.Changed
	result.OutOfTime = outOfTime
	if outOfTime {
		d.logger.Warn("backup run stopped early", "dataset", dataset.ID, "reason", "out of time")
		return result, errs.ErrOutOfTime
	}

	if !takeResult.Changed {
		d.logger.Info("backup run produced no changes", "dataset", dataset.ID, "snapshot", result.Snapshot.ID)
		return result, nil
	}

	for _, file := range takeResult.Files {
		data, err := codec.Marshal(file)
		if err != nil {
			return Result{}, fmt.Errorf("backup: marshal file record: %w", err)
		}
		if err := d.kv.Put(ctx, mdstore.PrefixFile+file.Digest.String(), data); err != nil {
			return Result{}, fmt.Errorf("backup: persist file record: %w", err)
		}
	}

	snapData, err := codec.Marshal(result.Snapshot)
	if err != nil {
		return Result{}, fmt.Errorf("backup: marshal snapshot record: %w", err)
	}
	if err := d.kv.Put(ctx, mdstore.PrefixSnapshot+result.Snapshot.ID, snapData); err != nil {
		return Result{}, fmt.Errorf("backup: persist snapshot record: %w", err)
	}

	if parent != nil {
		if changedFiles, err := snapshot.FindChangedFiles(ctx, d.kv, *parent, result.Snapshot); err == nil {
			d.logger.Debug("changed files this run", "dataset", dataset.ID, "count", len(changedFiles))
		}
	}

	if err := d.backupDatabase(ctx, ps, bucket, dataset, store); err != nil {
		return Result{}, fmt.Errorf("backup: database backup: %w", err)
	}

	d.logger.Info("backup run complete", "dataset", dataset.ID, "packs", result.PackCount, "files", result.Snapshot.FileCount)
	return result, nil
}

func (d *Driver) sealAndUpload(ctx context.Context, ps packstore.PackStore, bucket string, dataset model.Dataset, store model.Store, passphrase string, builder *packer.PackBuilder, result *Result) error {
	object := packer.ObjectName()
	archiveBytes, pack, err := builder.Build(passphrase, dataset.ID, store.ID, bucket, object)
	if err != nil {
		return fmt.Errorf("backup: build pack: %w", err)
	}

	if err := ps.Put(ctx, bucket, object, bytes.NewReader(archiveBytes), int64(len(archiveBytes))); err != nil {
		return fmt.Errorf("backup: upload pack %s: %w", object, err)
	}

	data, err := codec.Marshal(pack)
	if err != nil {
		return fmt.Errorf("backup: marshal pack record: %w", err)
	}
	if err := d.kv.Put(ctx, mdstore.PrefixPack+pack.Digest.String(), data); err != nil {
		return fmt.Errorf("backup: persist pack record: %w", err)
	}

	for i, entry := range pack.Entries {
		record := model.ChunkRecord{Digest: entry.Digest, PackDigest: pack.Digest, EntryIndex: i}
		recordData, err := codec.Marshal(record)
		if err != nil {
			return fmt.Errorf("backup: marshal chunk record: %w", err)
		}
		if err := d.kv.Put(ctx, mdstore.PrefixChunk+entry.Digest.String(), recordData); err != nil {
			return fmt.Errorf("backup: persist chunk record: %w", err)
		}
	}

	result.PackCount++
	d.logger.Debug("pack uploaded", "dataset", dataset.ID, "object", object, "chunks", len(pack.Entries), "bytes", pack.Size)

	fresh, err := packer.NewPackBuilder(builder.TargetSize())
	if err != nil {
		return fmt.Errorf("backup: reset pack builder: %w", err)
	}
	*builder = *fresh
	return nil
}

// backupDatabase dumps a consistent copy of the metadata store and uploads
// it to store under a conventional "database" object name, recording it as
// a pseudo-pack under the dbase/<digest> namespace. This deployment model
// has exactly one store per dataset, so "each store" (spec.md §4.4) reduces
// to this one upload.
func (d *Driver) backupDatabase(ctx context.Context, ps packstore.PackStore, bucket string, dataset model.Dataset, store model.Store) error {
	tmp, err := os.CreateTemp("", "coldpack-dbbackup-*.db")
	if err != nil {
		return fmt.Errorf("create dump temp file: %w", err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer func() { _ = os.Remove(tmpPath) }()

	if err := d.kv.Backup(ctx, tmpPath); err != nil {
		return fmt.Errorf("dump metadata store: %w", err)
	}
	dumpBytes, err := os.ReadFile(tmpPath) //nolint:gosec // G304: tmpPath was just created by os.CreateTemp above
	if err != nil {
		return fmt.Errorf("read dump: %w", err)
	}

	dumpDigest, err := digest.Sum(dataset.Algorithm, dumpBytes)
	if err != nil {
		return fmt.Errorf("digest dump: %w", err)
	}

	object := "database-" + dumpDigest.String() + ".db"
	if err := ps.Put(ctx, bucket, object, bytes.NewReader(dumpBytes), int64(len(dumpBytes))); err != nil {
		return fmt.Errorf("upload dump: %w", err)
	}

	pack := model.Pack{
		ID:        dumpDigest.String(),
		DatasetID: dataset.ID,
		StoreID:   store.ID,
		Bucket:    bucket,
		Object:    object,
		Digest:    dumpDigest,
		Size:      int64(len(dumpBytes)),
		CreatedAt: time.Now(),
	}
	data, err := codec.Marshal(pack)
	if err != nil {
		return fmt.Errorf("marshal database pack record: %w", err)
	}
	return d.kv.Put(ctx, mdstore.PrefixDatabase+dumpDigest.String(), data)
}

func (d *Driver) loadSnapshot(ctx context.Context, id string) (model.Snapshot, error) {
	data, err := d.kv.Get(ctx, mdstore.PrefixSnapshot+id)
	if err != nil {
		return model.Snapshot{}, err
	}
	var snap model.Snapshot
	if err := codec.Unmarshal(data, &snap); err != nil {
		return model.Snapshot{}, err
	}
	return snap, nil
}
