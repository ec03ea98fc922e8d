// Package restore implements the Restorer: a FIFO queue of restore
// requests, each naming a tree entry to reconstruct on disk, drained by a
// supervisor that fetches and decrypts whichever packs the requested
// entries' chunks live in. A pack fetched once is reused across every
// request in the same drain (and, here, across the Restorer's whole
// lifetime) rather than re-downloaded per file.
package restore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"coldpack/internal/callgroup"
	"coldpack/internal/codec"
	"coldpack/internal/digest"
	"coldpack/internal/errs"
	"coldpack/internal/logging"
	"coldpack/internal/mdstore"
	"coldpack/internal/model"
	"coldpack/internal/notify"
	"coldpack/internal/packer"
	"coldpack/internal/packstore"
)

const ringCapacity = 32

// Request asks the Restorer to reconstruct one named entry out of a tree
// (a file, a directory, or a symlink) at outPath. Requesting a directory
// entry recursively restores its whole subtree.
type Request struct {
	TreeDigest digest.Digest
	EntryName  string
	OutPath    string
	DatasetID  string
	Passphrase string
}

// Completion records the outcome of one drained Request.
type Completion struct {
	Request       Request
	FilesRestored int
	Err           error
	FinishedAt    time.Time
}

// Restorer reconstructs files from the metadata store and a PackStore.
// Requests are enqueued with Enqueue and processed in FIFO order by Drain;
// the last ringCapacity completions are kept for callers to inspect.
type Restorer struct {
	kv     mdstore.KV
	ps     packstore.PackStore
	logger *slog.Logger

	group     callgroup.Group[string]
	cacheMu   sync.Mutex
	packCache map[string][]codec.ArchiveEntry

	queueMu sync.Mutex
	queue   []Request

	ringMu sync.Mutex
	ring   []Completion

	signal *notify.Signal
}

// New creates a Restorer reading metadata from kv and pack bodies from ps.
// A nil logger discards all output.
func New(kv mdstore.KV, ps packstore.PackStore, logger *slog.Logger) *Restorer {
	return &Restorer{
		kv:        kv,
		ps:        ps,
		logger:    logging.Default(logger).With("component", "restore"),
		packCache: make(map[string][]codec.ArchiveEntry),
		signal:    notify.NewSignal(),
	}
}

// Enqueue appends req to the pending FIFO queue.
func (r *Restorer) Enqueue(req Request) {
	r.queueMu.Lock()
	r.queue = append(r.queue, req)
	r.queueMu.Unlock()
}

// Drain processes every request currently queued, in order, returning once
// the queue (as it stood when Drain was called) is empty. Requests
// enqueued concurrently during the drain are left for the next Drain call.
func (r *Restorer) Drain(ctx context.Context) []Completion {
	r.queueMu.Lock()
	pending := r.queue
	r.queue = nil
	r.queueMu.Unlock()

	completions := make([]Completion, 0, len(pending))
	for _, req := range pending {
		completions = append(completions, r.process(ctx, req))
	}
	return completions
}

// Wait returns a channel that is closed the next time a request completes.
func (r *Restorer) Wait() <-chan struct{} { return r.signal.C() }

// Recent returns the most recently completed requests, most recent first,
// up to ringCapacity of them.
func (r *Restorer) Recent() []Completion {
	r.ringMu.Lock()
	defer r.ringMu.Unlock()
	out := make([]Completion, len(r.ring))
	copy(out, r.ring)
	return out
}

func (r *Restorer) process(ctx context.Context, req Request) Completion {
	completion := Completion{Request: req, FinishedAt: time.Now()}

	tree, err := r.loadTree(ctx, req.TreeDigest)
	if err != nil {
		completion.Err = fmt.Errorf("restore: load tree %s: %w", req.TreeDigest, err)
		r.record(completion)
		return completion
	}

	entry, ok := findEntry(tree, req.EntryName)
	if !ok {
		completion.Err = fmt.Errorf("restore: entry %q: %w", req.EntryName, errs.ErrNotFound)
		r.record(completion)
		return completion
	}

	n, err := r.restoreEntry(ctx, entry, req.OutPath, req.Passphrase)
	completion.FilesRestored = n
	completion.Err = err
	r.record(completion)
	return completion
}

func (r *Restorer) record(c Completion) {
	r.ringMu.Lock()
	r.ring = append([]Completion{c}, r.ring...)
	if len(r.ring) > ringCapacity {
		r.ring = r.ring[:ringCapacity]
	}
	r.ringMu.Unlock()
	r.signal.Notify()
}

// restoreEntry reconstructs entry at outPath, recursing into directories.
// A sub-entry failure is logged and skipped rather than aborting the whole
// request; only a failure loading the root tree or entry itself (handled
// in process) fails the request as a whole.
func (r *Restorer) restoreEntry(ctx context.Context, entry model.Entry, outPath, passphrase string) (int, error) {
	switch entry.Kind {
	case model.KindSymlink:
		if err := os.Symlink(entry.LinkTarget, outPath); err != nil {
			return 0, fmt.Errorf("restore symlink %s: %w", outPath, err)
		}
		return 0, nil

	case model.KindDir:
		return r.restoreDir(ctx, entry.Digest, outPath, passphrase)

	default:
		if err := r.RestoreFile(ctx, entry.Digest, passphrase, outPath); err != nil {
			return 0, err
		}
		return 1, nil
	}
}

func (r *Restorer) restoreDir(ctx context.Context, treeDigest digest.Digest, outPath, passphrase string) (int, error) {
	tree, err := r.loadTree(ctx, treeDigest)
	if err != nil {
		return 0, fmt.Errorf("restore dir %s: %w", outPath, err)
	}
	if err := os.MkdirAll(outPath, 0o750); err != nil {
		return 0, fmt.Errorf("restore dir %s: %w", outPath, err)
	}

	var total int
	for _, child := range tree.Entries {
		childPath := filepath.Join(outPath, child.Name)
		n, err := r.restoreEntry(ctx, child, childPath, passphrase)
		if err != nil {
			r.logger.Error("skipping entry", "path", childPath, "error", err)
			continue
		}
		total += n
	}
	return total, nil
}

func findEntry(tree model.Tree, name string) (model.Entry, bool) {
	for _, e := range tree.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return model.Entry{}, false
}

func (r *Restorer) loadTree(ctx context.Context, treeDigest digest.Digest) (model.Tree, error) {
	data, err := r.kv.Get(ctx, mdstore.PrefixTree+treeDigest.String())
	if err != nil {
		return model.Tree{}, err
	}
	var tree model.Tree
	if err := codec.Unmarshal(data, &tree); err != nil {
		return model.Tree{}, err
	}
	return tree, nil
}

// RestoreFile writes the regular file named by fileDigest to outPath,
// fetching and decrypting every pack that holds one of its chunks.
func (r *Restorer) RestoreFile(ctx context.Context, fileDigest digest.Digest, passphrase, outPath string) error {
	file, err := r.loadFile(ctx, fileDigest)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o750); err != nil {
		return fmt.Errorf("restore: create output directory: %w", err)
	}
	out, err := os.Create(outPath) //nolint:gosec // G304: outPath is operator-supplied, not web input
	if err != nil {
		return fmt.Errorf("restore: create %s: %w", outPath, err)
	}
	defer func() { _ = out.Close() }()

	for _, chunkDigest := range file.Chunks {
		data, err := r.fetchChunk(ctx, chunkDigest, passphrase)
		if err != nil {
			return fmt.Errorf("restore: fetch chunk %s: %w", chunkDigest, err)
		}
		if _, err := out.Write(data); err != nil {
			return fmt.Errorf("restore: write %s: %w", outPath, err)
		}
	}
	return nil
}

// fetchChunk locates which pack holds chunkDigest, fetches that pack
// (deduplicating concurrent fetches of the same pack), and extracts the
// chunk's plaintext bytes, verifying them against chunkDigest.
func (r *Restorer) fetchChunk(ctx context.Context, chunkDigest digest.Digest, passphrase string) ([]byte, error) {
	pack, entryIdx, err := r.locateChunk(ctx, chunkDigest)
	if err != nil {
		return nil, err
	}

	entries, err := r.fetchPack(ctx, pack)
	if err != nil {
		return nil, err
	}
	if entryIdx >= len(entries) {
		return nil, fmt.Errorf("restore: pack %s: entry index %d out of range", pack.Digest, entryIdx)
	}

	data, err := packer.ExtractChunk(passphrase, pack.Salt, entries[entryIdx])
	if err != nil {
		return nil, fmt.Errorf("restore: extract chunk: %w", err)
	}

	verify, err := digest.Sum(chunkDigest.Algorithm(), data)
	if err != nil {
		return nil, fmt.Errorf("restore: verify chunk: %w", err)
	}
	if !verify.Equal(chunkDigest) {
		return nil, fmt.Errorf("%w: chunk %s", errs.ErrIntegrity, chunkDigest)
	}
	return data, nil
}

// fetchPack downloads and parses pack's archive, verifying the archive's
// own digest against the pack record before trusting its contents, and
// shares the download across any other goroutine currently restoring a
// different chunk from the same pack.
func (r *Restorer) fetchPack(ctx context.Context, pack model.Pack) ([]codec.ArchiveEntry, error) {
	key := pack.Digest.String()

	r.cacheMu.Lock()
	if entries, ok := r.packCache[key]; ok {
		r.cacheMu.Unlock()
		return entries, nil
	}
	r.cacheMu.Unlock()

	errCh := r.group.DoChan(key, func() error {
		rc, err := r.ps.Get(ctx, pack.Bucket, pack.Object)
		if err != nil {
			return fmt.Errorf("fetch pack object %s/%s: %w", pack.Bucket, pack.Object, err)
		}
		defer func() { _ = rc.Close() }()

		body, err := io.ReadAll(rc)
		if err != nil {
			return fmt.Errorf("read pack body: %w", err)
		}

		bodyDigest, err := digest.Sum(pack.Digest.Algorithm(), body)
		if err != nil {
			return fmt.Errorf("digest pack body: %w", err)
		}
		if !bodyDigest.Equal(pack.Digest) {
			return fmt.Errorf("%w: pack %s", errs.ErrIntegrity, pack.Digest)
		}

		var manifest model.Pack
		entries, err := codec.ReadArchive(bytes.NewReader(body), &manifest)
		if err != nil {
			return fmt.Errorf("parse pack archive: %w", err)
		}

		r.cacheMu.Lock()
		r.packCache[key] = entries
		r.cacheMu.Unlock()
		return nil
	})

	select {
	case err := <-errCh:
		if err != nil {
			return nil, err
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	r.cacheMu.Lock()
	entries := r.packCache[key]
	r.cacheMu.Unlock()
	return entries, nil
}

// locateChunk looks up chunkDigest's chunk record, which names the pack
// that holds it and the archive entry index within that pack, and loads
// the pack record it points to.
func (r *Restorer) locateChunk(ctx context.Context, chunkDigest digest.Digest) (model.Pack, int, error) {
	data, err := r.kv.Get(ctx, mdstore.PrefixChunk+chunkDigest.String())
	if err != nil {
		return model.Pack{}, 0, fmt.Errorf("restore: locate chunk %s: %w", chunkDigest, err)
	}
	var record model.ChunkRecord
	if err := codec.Unmarshal(data, &record); err != nil {
		return model.Pack{}, 0, fmt.Errorf("restore: decode chunk record %s: %w", chunkDigest, err)
	}

	pack, err := r.loadPack(ctx, record.PackDigest)
	if err != nil {
		return model.Pack{}, 0, fmt.Errorf("restore: load pack %s for chunk %s: %w", record.PackDigest, chunkDigest, err)
	}
	return pack, record.EntryIndex, nil
}

func (r *Restorer) loadPack(ctx context.Context, packDigest digest.Digest) (model.Pack, error) {
	data, err := r.kv.Get(ctx, mdstore.PrefixPack+packDigest.String())
	if err != nil {
		return model.Pack{}, err
	}
	var pack model.Pack
	if err := codec.Unmarshal(data, &pack); err != nil {
		return model.Pack{}, err
	}
	return pack, nil
}

func (r *Restorer) loadFile(ctx context.Context, fileDigest digest.Digest) (model.File, error) {
	data, err := r.kv.Get(ctx, mdstore.PrefixFile+fileDigest.String())
	if err != nil {
		return model.File{}, fmt.Errorf("restore: load file %s: %w", fileDigest, err)
	}
	var file model.File
	if err := codec.Unmarshal(data, &file); err != nil {
		return model.File{}, fmt.Errorf("restore: decode file %s: %w", fileDigest, err)
	}
	return file, nil
}
