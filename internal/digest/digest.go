// Package digest implements the content-addressing primitive shared by
// every entity in the backup engine: chunks, files, trees, and packs are all
// named by the digest of their contents.
package digest

import (
	"crypto/sha1" //nolint:gosec // G505: SHA-1 is a supported legacy algorithm tag, not used for security
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"strings"

	"github.com/zeebo/blake3"
)

// Algorithm identifies which hash function produced a Digest.
type Algorithm string

const (
	AlgoSHA1   Algorithm = "sha1"
	AlgoSHA256 Algorithm = "sha256"
	AlgoBLAKE3 Algorithm = "blake3"
)

// Default is the algorithm used for newly created chunk, file, and tree
// digests unless a dataset's build policy overrides it.
const Default = AlgoBLAKE3

// ErrUnknownAlgorithm is returned when parsing a textual digest whose
// algorithm tag is not one of the supported Algorithm constants.
var ErrUnknownAlgorithm = errors.New("digest: unknown algorithm")

// Digest is an immutable content address: an algorithm tag plus the raw
// hash bytes it produced. The zero value is not a valid Digest.
type Digest struct {
	algo Algorithm
	sum  []byte
}

// New wraps raw hash bytes with their algorithm tag.
func New(algo Algorithm, sum []byte) Digest {
	cp := make([]byte, len(sum))
	copy(cp, sum)
	return Digest{algo: algo, sum: cp}
}

// Parse decodes the canonical textual form "<algo>-<hex>" (case-insensitive
// hex) produced by String.
func Parse(s string) (Digest, error) {
	algo, hexSum, ok := strings.Cut(s, "-")
	if !ok {
		return Digest{}, fmt.Errorf("digest: malformed %q: missing '-' separator", s)
	}
	a := Algorithm(strings.ToLower(algo))
	switch a {
	case AlgoSHA1, AlgoSHA256, AlgoBLAKE3:
	default:
		return Digest{}, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algo)
	}
	sum, err := hex.DecodeString(strings.ToLower(hexSum))
	if err != nil {
		return Digest{}, fmt.Errorf("digest: malformed hex in %q: %w", s, err)
	}
	return Digest{algo: a, sum: sum}, nil
}

// Algorithm reports which hash function produced this digest.
func (d Digest) Algorithm() Algorithm { return d.algo }

// Bytes returns the raw hash sum. The caller must not mutate the result.
func (d Digest) Bytes() []byte { return d.sum }

// IsZero reports whether d is the unset zero value.
func (d Digest) IsZero() bool { return d.algo == "" && len(d.sum) == 0 }

// String renders the canonical "<algo>-<hex>" textual form, e.g.
// "blake3-3a7bd3e2360a3d...".
func (d Digest) String() string {
	return string(d.algo) + "-" + hex.EncodeToString(d.sum)
}

// Equal reports whether two digests have the same algorithm and sum.
func (d Digest) Equal(other Digest) bool {
	return d.algo == other.algo && strings.EqualFold(hex.EncodeToString(d.sum), hex.EncodeToString(other.sum))
}

// MarshalText implements encoding.TextMarshaler so a Digest serializes as
// its canonical string form inside msgpack and JSON alike.
func (d Digest) MarshalText() ([]byte, error) {
	if d.IsZero() {
		return nil, nil
	}
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, tolerating mixed-case
// hex as produced by older writers.
func (d *Digest) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*d = Digest{}
		return nil
	}
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Hasher returns a streaming hash.Hash for algo, or an error if algo is not
// supported.
func Hasher(algo Algorithm) (hash.Hash, error) {
	switch algo {
	case AlgoSHA1:
		return sha1.New(), nil //nolint:gosec // G401: legacy algorithm tag support
	case AlgoSHA256:
		return sha256.New(), nil
	case AlgoBLAKE3:
		return blake3.New(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algo)
	}
}

// Sum computes the digest of data under algo in a single call.
func Sum(algo Algorithm, data []byte) (Digest, error) {
	h, err := Hasher(algo)
	if err != nil {
		return Digest{}, err
	}
	h.Write(data)
	return New(algo, h.Sum(nil)), nil
}
