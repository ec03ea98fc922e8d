// Package packer implements content-defined chunking and pack assembly:
// splitting file bytes into chunks at content-defined boundaries, and
// accumulating those chunks into size-bounded, compressed, encrypted pack
// archives ready for upload.
package packer

import (
	"fmt"
	"io"
	"math/rand"

	resticchunker "github.com/restic/chunker"

	"coldpack/internal/digest"
)

// Default chunk size bounds, matching restic's own defaults: content-defined
// boundaries average 1 MiB, never smaller than 512 KiB or larger than 8 MiB.
const (
	MinChunkSize = 512 * 1024
	MaxChunkSize = 8 * 1024 * 1024
)

// Polynomial seeds one dataset's content-defined-chunking boundary
// function. Two datasets using different polynomials produce different
// chunk boundaries for identical content, which is why each dataset's
// polynomial is derived from a seed persisted in its dataset record
// (Dataset.ChunkerSeed) and re-derived identically on every run.
type Polynomial = resticchunker.Pol

// DerivePolynomial deterministically derives a chunker polynomial from a
// seed (the dataset's ChunkerSeed), so the same dataset always
// gets the same polynomial without needing to persist the raw value
// separately from the seed.
func DerivePolynomial(seed uint64) (Polynomial, error) {
	pol, err := resticchunker.RandomPolynomial(rand.New(rand.NewSource(int64(seed)))) //nolint:gosec // G404: deterministic seeding is the point, not a security boundary
	if err != nil {
		return 0, fmt.Errorf("packer: derive polynomial: %w", err)
	}
	return pol, nil
}

// Chunk is one content-defined slice of a file, as read from a Chunker.
type Chunk struct {
	Data   []byte
	Digest digest.Digest
	Offset int64
}

// Chunker splits an io.Reader's content into content-defined chunks using
// a dataset-specific Rabin fingerprint polynomial.
type Chunker struct {
	algo digest.Algorithm
	c    *resticchunker.Chunker
	buf  []byte
	off  int64
}

// NewChunker wraps r, producing chunks bounded by [MinChunkSize,
// MaxChunkSize] and digested under algo.
func NewChunker(r io.Reader, pol Polynomial, algo digest.Algorithm) *Chunker {
	c := resticchunker.NewWithBoundaries(r, pol, MinChunkSize, MaxChunkSize)
	return &Chunker{
		algo: algo,
		c:    c,
		buf:  make([]byte, MaxChunkSize),
	}
}

// Next returns the next chunk, or io.EOF when the reader is exhausted.
func (ck *Chunker) Next() (Chunk, error) {
	piece, err := ck.c.Next(ck.buf)
	if err != nil {
		if err == io.EOF { //nolint:errorlint // resticchunker.Next returns io.EOF by value, not wrapped
			return Chunk{}, io.EOF
		}
		return Chunk{}, fmt.Errorf("packer: read chunk: %w", err)
	}

	data := make([]byte, len(piece.Data))
	copy(data, piece.Data)

	d, err := digest.Sum(ck.algo, data)
	if err != nil {
		return Chunk{}, fmt.Errorf("packer: digest chunk: %w", err)
	}

	chunk := Chunk{Data: data, Digest: d, Offset: ck.off}
	ck.off += int64(len(data))
	return chunk, nil
}
