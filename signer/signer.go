// Package signer implements the secp256k1 recoverable-signature scheme V2
// seals use to bind a proof-of-work solution to its author: the signing
// key is held by the miner, and the signature recovers to a public key the
// runtime can map to an on-chain account.
package signer

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"

	"github.com/kulupu-go/kulupu/compute"
	"github.com/kulupu-go/kulupu/primitives"
)

// ErrInvalidSignature is returned when a signature cannot be parsed or
// recovery otherwise fails.
var ErrInvalidSignature = errors.New("signer: invalid signature")

// ErrInvalidPublicKey is returned when a public key blob cannot be parsed.
var ErrInvalidPublicKey = errors.New("signer: invalid public key")

// Secp256k1Signer signs and verifies the blake2_256 messages V2 seals use,
// via secp256k1 compact recoverable signatures.
type Secp256k1Signer struct {
	key *btcec.PrivateKey
}

// NewSecp256k1Signer wraps an existing private key.
func NewSecp256k1Signer(key *btcec.PrivateKey) *Secp256k1Signer {
	return &Secp256k1Signer{key: key}
}

// GenerateSecp256k1Signer creates a fresh signer backed by a newly
// generated private key, suitable for a miner with no persisted identity
// yet.
func GenerateSecp256k1Signer() (*Secp256k1Signer, error) {
	key, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("signer: generate key: %w", err)
	}
	return &Secp256k1Signer{key: key}, nil
}

// PublicKey returns the signer's public key in 33-byte compressed form.
func (s *Secp256k1Signer) PublicKey() []byte {
	return s.key.PubKey().SerializeCompressed()
}

// Sign implements compute.Signer: it produces a 65-byte compact
// recoverable signature over message.
func (s *Secp256k1Signer) Sign(message primitives.H256) (compute.Signature, error) {
	sig, err := btcecdsa.SignCompact(s.key, message[:], true)
	if err != nil {
		return nil, fmt.Errorf("signer: sign: %w", err)
	}
	return compute.Signature(sig), nil
}

// Verify implements compute.Signer: it recovers the public key embedded in
// sig and checks it matches public (33-byte compressed form).
func (s *Secp256k1Signer) Verify(message primitives.H256, sig compute.Signature, public []byte) bool {
	return VerifyCompact(message, sig, public)
}

// VerifyCompact recovers the public key from a 65-byte compact recoverable
// signature over message and checks it matches public, without needing a
// Secp256k1Signer instance. Every V2 seal verifier in this module calls
// this free function rather than constructing a signer just to check.
func VerifyCompact(message primitives.H256, sig compute.Signature, public []byte) bool {
	if len(sig) != 65 {
		return false
	}
	recovered, _, err := btcecdsa.RecoverCompact(sig, message[:])
	if err != nil {
		return false
	}
	want, err := btcec.ParsePubKey(public)
	if err != nil {
		return false
	}
	return recovered.IsEqual(want)
}
