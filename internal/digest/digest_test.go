package digest

import "testing"

func TestSumAndString(t *testing.T) {
	cases := []struct {
		name string
		algo Algorithm
	}{
		{"sha1", AlgoSHA1},
		{"sha256", AlgoSHA256},
		{"blake3", AlgoBLAKE3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := Sum(tc.algo, []byte("hello world"))
			if err != nil {
				t.Fatalf("Sum: %v", err)
			}
			if d.Algorithm() != tc.algo {
				t.Errorf("Algorithm() = %q, want %q", d.Algorithm(), tc.algo)
			}
			roundTrip, err := Parse(d.String())
			if err != nil {
				t.Fatalf("Parse(%q): %v", d.String(), err)
			}
			if !roundTrip.Equal(d) {
				t.Errorf("round-trip mismatch: %q != %q", roundTrip, d)
			}
		})
	}
}

func TestParseMixedCase(t *testing.T) {
	d, err := Sum(AlgoBLAKE3, []byte("data"))
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}
	upper := string(d.Algorithm()) + "-" + upperHex(d.Bytes())
	parsed, err := Parse(upper)
	if err != nil {
		t.Fatalf("Parse(%q): %v", upper, err)
	}
	if !parsed.Equal(d) {
		t.Errorf("mixed-case parse mismatch")
	}
}

func upperHex(b []byte) string {
	const hexDigits = "0123456789ABCDEF"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexDigits[c>>4]
		out[i*2+1] = hexDigits[c&0xf]
	}
	return string(out)
}

func TestParseErrors(t *testing.T) {
	if _, err := Parse("blake3-zz"); err == nil {
		t.Error("expected error for bad hex")
	}
	if _, err := Parse("nodash"); err == nil {
		t.Error("expected error for missing separator")
	}
	if _, err := Parse("md5-deadbeef"); err == nil {
		t.Error("expected error for unknown algorithm")
	}
}

func TestEqualDifferentAlgorithms(t *testing.T) {
	a, _ := Sum(AlgoSHA256, []byte("x"))
	b, _ := Sum(AlgoBLAKE3, []byte("x"))
	if a.Equal(b) {
		t.Error("digests with different algorithms must not be equal")
	}
}

func TestMarshalUnmarshalText(t *testing.T) {
	d, _ := Sum(AlgoBLAKE3, []byte("payload"))
	text, err := d.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	var got Digest
	if err := got.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if !got.Equal(d) {
		t.Error("unmarshal did not round-trip")
	}
}

func TestZeroValue(t *testing.T) {
	var d Digest
	if !d.IsZero() {
		t.Error("zero Digest should report IsZero")
	}
	text, err := d.MarshalText()
	if err != nil || text != nil {
		t.Errorf("zero Digest MarshalText = %q, %v; want nil, nil", text, err)
	}
}
