package main

import (
	"testing"

	"github.com/kulupu-go/kulupu/consensus"
)

func TestDecodeH256(t *testing.T) {
	if h, err := decodeH256("0x00"); err == nil {
		t.Fatalf("expected error decoding a short hex string, got %x", h)
	}

	valid := "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	h, err := decodeH256("0x" + valid)
	if err != nil {
		t.Fatalf("decodeH256: %v", err)
	}
	if h[0] != 0x00 || h[1] != 0x01 || h[31] != 0x1f {
		t.Fatalf("decodeH256 produced unexpected bytes: %x", h)
	}

	h2, err := decodeH256(valid)
	if err != nil {
		t.Fatalf("decodeH256 without prefix: %v", err)
	}
	if h != h2 {
		t.Fatalf("decodeH256 with and without 0x prefix disagree")
	}

	if _, err := decodeH256("zz"); err == nil {
		t.Fatalf("expected an error for non-hex input")
	}
}

func TestTrimHexPrefix(t *testing.T) {
	cases := map[string]string{
		"0xabcd": "abcd",
		"0Xabcd": "abcd",
		"abcd":   "abcd",
		"a":      "a",
	}
	for in, want := range cases {
		if got := trimHexPrefix(in); got != want {
			t.Fatalf("trimHexPrefix(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestVersionLabel(t *testing.T) {
	if got := versionLabel(consensus.VersionV1); got != "v1" {
		t.Fatalf("versionLabel(V1) = %q, want v1", got)
	}
	if got := versionLabel(consensus.VersionV2); got != "v2" {
		t.Fatalf("versionLabel(V2) = %q, want v2", got)
	}
}
