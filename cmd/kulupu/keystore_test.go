package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestKeyFileRoundTrip(t *testing.T) {
	key, err := generateKey()
	if err != nil {
		t.Fatalf("generateKey: %v", err)
	}

	path := filepath.Join(t.TempDir(), "mining.key")
	if err := writeKeyFile(path, key); err != nil {
		t.Fatalf("writeKeyFile: %v", err)
	}

	got, err := readKeyFile(path)
	if err != nil {
		t.Fatalf("readKeyFile: %v", err)
	}
	if !bytes.Equal(got.Serialize(), key.Serialize()) {
		t.Fatalf("round-tripped key does not match the original")
	}
}

func TestReadKeyFileRejectsMalformedInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mining.key")
	if err := os.WriteFile(path, []byte(`{"private_key":"not-hex"}`), 0o600); err != nil {
		t.Fatalf("os.WriteFile: %v", err)
	}
	if _, err := readKeyFile(path); err == nil {
		t.Fatalf("expected an error decoding a malformed key file")
	}
}

func TestFileKeystoreSigner(t *testing.T) {
	key, err := generateKey()
	if err != nil {
		t.Fatalf("generateKey: %v", err)
	}
	ks := newFileKeystore(key)
	own := signerPublicKey(key)

	if _, err := ks.Signer(own); err != nil {
		t.Fatalf("Signer(own): %v", err)
	}

	other, err := generateKey()
	if err != nil {
		t.Fatalf("generateKey (other): %v", err)
	}
	if _, err := ks.Signer(signerPublicKey(other)); err == nil {
		t.Fatalf("expected Signer to reject a public key it does not hold")
	}
}
