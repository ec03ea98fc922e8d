package packer

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/dustinkirkland/golang-petname"
	"github.com/klauspost/compress/zstd"

	"coldpack/internal/codec"
	"coldpack/internal/digest"
	"coldpack/internal/errs"
	"coldpack/internal/model"
)

// state mirrors the teacher's rotation-policy idea of "should this
// container seal now": a PackBuilder accumulates chunks while Idle, moves
// to Ready once it has at least one chunk, and reports Full once its
// target size is reached, at which point the caller should call Build and
// start a new PackBuilder.
type state int

const (
	stateIdle state = iota
	stateReady
	stateFull
)

// PackBuilder accumulates chunks up to a target size, then assembles them
// into a single compressed, encrypted archive ready for upload.
type PackBuilder struct {
	targetSize int64
	curSize    int64
	st         state

	chunks  []encodedChunk
	encoder *zstd.Encoder
}

type encodedChunk struct {
	digest digest.Digest
	data   []byte // zstd-compressed
}

// NewPackBuilder creates a builder that seals once accumulated (compressed)
// size reaches targetSize bytes.
func NewPackBuilder(targetSize int64) (*PackBuilder, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("packer: new zstd encoder: %w", err)
	}
	return &PackBuilder{targetSize: targetSize, st: stateIdle, encoder: enc}, nil
}

// Add appends one chunk to the pack being built, compressing its bytes
// with zstd before accumulating them. It returns true if the pack should
// now be sealed with Build.
func (b *PackBuilder) Add(c Chunk) bool {
	compressed := b.encoder.EncodeAll(c.Data, nil)
	b.chunks = append(b.chunks, encodedChunk{digest: c.Digest, data: compressed})
	b.curSize += int64(len(compressed))
	b.st = stateReady
	if b.curSize >= b.targetSize {
		b.st = stateFull
	}
	return b.st == stateFull
}

// Empty reports whether no chunks have been added yet.
func (b *PackBuilder) Empty() bool { return b.st == stateIdle }

// Full reports whether the pack has reached its target size.
func (b *PackBuilder) Full() bool { return b.st == stateFull }

// TargetSize returns the size threshold this builder seals at.
func (b *PackBuilder) TargetSize() int64 { return b.targetSize }

// ObjectName generates a random, human-legible object name for the pack
// being built: three petname words (e.g. "briefly-purple-badger.pack"),
// the naming scheme backup tools commonly use instead of raw UUIDs for
// object names meant to be browsable in a bucket listing. The name is not
// checked against objects already in the bucket.
func ObjectName() string {
	return petname.Generate(3, "-") + ".pack"
}

// Build encrypts and frames every accumulated chunk into a single archive,
// returning the archive bytes and the model.Pack manifest describing them.
// One Argon2id key is derived per pack (not per chunk): the salt is carried
// out-of-band on the returned Pack's Salt field rather than inside the
// archive, so the archive format itself never needs to change to add or
// remove encryption metadata.
func (b *PackBuilder) Build(passphrase, datasetID, storeID, bucket, object string) ([]byte, model.Pack, error) {
	key, salt, err := codec.DeriveKey(passphrase)
	if err != nil {
		return nil, model.Pack{}, fmt.Errorf("packer: derive pack key: %w", err)
	}

	entries := make([]codec.ArchiveEntry, 0, len(b.chunks))
	packEntries := make([]model.PackEntry, 0, len(b.chunks))

	var offset int64
	for _, c := range b.chunks {
		sealed, err := codec.Seal(key, c.data)
		if err != nil {
			return nil, model.Pack{}, fmt.Errorf("packer: seal chunk: %w", err)
		}
		entries = append(entries, codec.ArchiveEntry{Body: sealed})
		packEntries = append(packEntries, model.PackEntry{
			Digest: c.digest,
			Offset: offset,
			Length: int64(len(sealed)),
		})
		offset += int64(len(sealed))
	}

	if err := verifyIntegrity(entries, packEntries); err != nil {
		return nil, model.Pack{}, err
	}

	pack := model.Pack{
		DatasetID: datasetID,
		StoreID:   storeID,
		Bucket:    bucket,
		Object:    object,
		Entries:   packEntries,
		Salt:      salt,
		CreatedAt: time.Now(),
	}

	manifest := pack
	manifest.Salt = nil
	archiveBytes, err := codec.ArchiveToBytes(manifest, entries)
	if err != nil {
		return nil, model.Pack{}, fmt.Errorf("packer: write archive: %w", err)
	}

	packDigest, err := digest.Sum(digest.Default, archiveBytes)
	if err != nil {
		return nil, model.Pack{}, fmt.Errorf("packer: digest archive: %w", err)
	}
	pack.Digest = packDigest
	pack.Size = int64(len(archiveBytes))

	return archiveBytes, pack, nil
}

// verifyIntegrity asserts that there are exactly as many archive entries as
// chunk records for this pack and that no chunk digest appears twice. A
// mismatch means
// the archive and its manifest would disagree about what entry index holds
// which chunk, which would corrupt every restore that consults it.
func verifyIntegrity(entries []codec.ArchiveEntry, packEntries []model.PackEntry) error {
	if len(entries) != len(packEntries) {
		return fmt.Errorf("%w: %d archive entries, %d chunk records", errs.ErrPackIntegrity, len(entries), len(packEntries))
	}
	seen := make(map[digest.Digest]bool, len(packEntries))
	for _, pe := range packEntries {
		if seen[pe.Digest] {
			return fmt.Errorf("%w: duplicate chunk digest %s", errs.ErrPackIntegrity, pe.Digest)
		}
		seen[pe.Digest] = true
	}
	return nil
}

// ExtractChunk decrypts and decompresses a single chunk's bytes out of an
// archive body, given the pack's salt and the archive's decoded entry.
func ExtractChunk(passphrase string, salt []byte, entry codec.ArchiveEntry) ([]byte, error) {
	key := codec.DeriveKeyWithSalt(passphrase, salt)
	compressed, err := codec.Open(key, entry.Body)
	if err != nil {
		return nil, fmt.Errorf("packer: open chunk: %w", err)
	}
	dec, err := zstd.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("packer: new zstd reader: %w", err)
	}
	defer dec.Close()
	data, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("packer: decompress chunk: %w", err)
	}
	return data, nil
}
