package signer

import (
	"testing"

	"github.com/kulupu-go/kulupu/primitives"
)

func TestSignAndVerifyRoundTrip(t *testing.T) {
	s, err := GenerateSecp256k1Signer()
	if err != nil {
		t.Fatalf("GenerateSecp256k1Signer: %v", err)
	}

	msg := primitives.Blake2_256([]byte("a calculation worth signing"))
	sig, err := s.Sign(msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if !s.Verify(msg, sig, s.PublicKey()) {
		t.Fatalf("expected signature to verify against its own public key")
	}
}

func TestVerifyRejectsWrongMessage(t *testing.T) {
	s, err := GenerateSecp256k1Signer()
	if err != nil {
		t.Fatalf("GenerateSecp256k1Signer: %v", err)
	}

	msg := primitives.Blake2_256([]byte("original"))
	sig, err := s.Sign(msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	other := primitives.Blake2_256([]byte("tampered"))
	if s.Verify(other, sig, s.PublicKey()) {
		t.Fatalf("expected verification against a different message to fail")
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	s1, err := GenerateSecp256k1Signer()
	if err != nil {
		t.Fatalf("GenerateSecp256k1Signer 1: %v", err)
	}
	s2, err := GenerateSecp256k1Signer()
	if err != nil {
		t.Fatalf("GenerateSecp256k1Signer 2: %v", err)
	}

	msg := primitives.Blake2_256([]byte("whose signature is this"))
	sig, err := s1.Sign(msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if s2.Verify(msg, sig, s2.PublicKey()) {
		t.Fatalf("expected verification against an unrelated key to fail")
	}
	if !VerifyCompact(msg, sig, s1.PublicKey()) {
		t.Fatalf("expected VerifyCompact to succeed against the signing key")
	}
}

func TestVerifyRejectsMalformedSignature(t *testing.T) {
	s, err := GenerateSecp256k1Signer()
	if err != nil {
		t.Fatalf("GenerateSecp256k1Signer: %v", err)
	}
	msg := primitives.Blake2_256([]byte("x"))
	if s.Verify(msg, []byte{1, 2, 3}, s.PublicKey()) {
		t.Fatalf("expected short signature to be rejected")
	}
}
