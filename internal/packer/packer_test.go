package packer

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"coldpack/internal/codec"
	"coldpack/internal/digest"
	"coldpack/internal/errs"
)

func TestChunkerSplitsAndDigestsDeterministically(t *testing.T) {
	pol, err := DerivePolynomial(42)
	if err != nil {
		t.Fatalf("DerivePolynomial: %v", err)
	}

	data := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 200000)

	readChunks := func() []Chunk {
		c := NewChunker(bytes.NewReader(data), pol, digest.AlgoBLAKE3)
		var out []Chunk
		for {
			chunk, err := c.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Fatalf("Next: %v", err)
			}
			out = append(out, chunk)
		}
		return out
	}

	first := readChunks()
	second := readChunks()

	if len(first) == 0 {
		t.Fatal("expected at least one chunk")
	}
	if len(first) != len(second) {
		t.Fatalf("chunk count not deterministic: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if !first[i].Digest.Equal(second[i].Digest) {
			t.Errorf("chunk %d digest mismatch between runs", i)
		}
	}

	var reassembled bytes.Buffer
	for _, c := range first {
		reassembled.Write(c.Data)
	}
	if !bytes.Equal(reassembled.Bytes(), data) {
		t.Error("reassembled chunks do not match original data")
	}
}

func TestPackBuilderRoundTrip(t *testing.T) {
	b, err := NewPackBuilder(1024 * 1024)
	if err != nil {
		t.Fatalf("NewPackBuilder: %v", err)
	}
	if !b.Empty() {
		t.Error("new builder should be Empty")
	}

	chunks := []Chunk{
		{Data: []byte("alpha chunk data"), Digest: mustSum(t, "alpha chunk data")},
		{Data: []byte("beta chunk data"), Digest: mustSum(t, "beta chunk data")},
	}
	for _, c := range chunks {
		b.Add(c)
	}
	if b.Empty() {
		t.Error("builder with chunks should not be Empty")
	}

	passphrase := "test passphrase"
	archiveBytes, pack, err := b.Build(passphrase, "ds1", "store1", "bucket1", "object1.pack")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if pack.Size != int64(len(archiveBytes)) {
		t.Errorf("pack.Size = %d, want %d", pack.Size, len(archiveBytes))
	}
	if len(pack.Entries) != len(chunks) {
		t.Fatalf("pack.Entries = %d, want %d", len(pack.Entries), len(chunks))
	}

	var gotPack struct {
		DatasetID string `msgpack:"ds"`
	}
	entries, err := codec.ReadArchive(bytes.NewReader(archiveBytes), &gotPack)
	if err != nil {
		t.Fatalf("ReadArchive: %v", err)
	}
	if gotPack.DatasetID != "ds1" {
		t.Errorf("manifest DatasetID = %q, want %q", gotPack.DatasetID, "ds1")
	}
	if len(entries) != len(chunks) {
		t.Fatalf("archive entries = %d, want %d", len(entries), len(chunks))
	}

	for i, e := range entries {
		got, err := ExtractChunk(passphrase, pack.Salt, e)
		if err != nil {
			t.Fatalf("ExtractChunk(%d): %v", i, err)
		}
		if !bytes.Equal(got, chunks[i].Data) {
			t.Errorf("ExtractChunk(%d) = %q, want %q", i, got, chunks[i].Data)
		}
	}
}

func TestBuildDerivesOneSaltPerPack(t *testing.T) {
	newBuilder := func() *PackBuilder {
		b, err := NewPackBuilder(1024 * 1024)
		if err != nil {
			t.Fatalf("NewPackBuilder: %v", err)
		}
		b.Add(Chunk{Data: []byte("chunk one"), Digest: mustSum(t, "chunk one")})
		b.Add(Chunk{Data: []byte("chunk two"), Digest: mustSum(t, "chunk two")})
		return b
	}

	_, packA, err := newBuilder().Build("shared passphrase", "ds1", "store1", "bucket1", "a.pack")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	_, packB, err := newBuilder().Build("shared passphrase", "ds1", "store1", "bucket1", "b.pack")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(packA.Salt) == 0 || len(packB.Salt) == 0 {
		t.Fatal("expected both packs to carry a non-empty salt")
	}
	if bytes.Equal(packA.Salt, packB.Salt) {
		t.Error("two independently built packs should not share a salt")
	}
}

func TestBuildRejectsDuplicateChunkDigest(t *testing.T) {
	b, err := NewPackBuilder(1024 * 1024)
	if err != nil {
		t.Fatalf("NewPackBuilder: %v", err)
	}
	dup := mustSum(t, "same bytes")
	b.Add(Chunk{Data: []byte("same bytes"), Digest: dup})
	b.Add(Chunk{Data: []byte("same bytes"), Digest: dup})

	_, _, err = b.Build("passphrase", "ds1", "store1", "bucket1", "object1.pack")
	if !errors.Is(err, errs.ErrPackIntegrity) {
		t.Errorf("Build error = %v, want errs.ErrPackIntegrity", err)
	}
}

func mustSum(t *testing.T, s string) digest.Digest {
	t.Helper()
	d, err := digest.Sum(digest.AlgoBLAKE3, []byte(s))
	if err != nil {
		t.Fatalf("digest.Sum: %v", err)
	}
	return d
}
