package compute

import "github.com/kulupu-go/kulupu/primitives"

// Signature is an opaque, algorithm-agnostic signature blob. The signer
// package supplies concrete secp256k1 recoverable signatures; compute only
// needs to carry the bytes and hash the message they sign over.
type Signature []byte

// Signer produces and checks Signatures over 32-byte messages. Concrete
// implementations live in the signer package so this package stays free of
// any particular curve's dependency.
type Signer interface {
	Sign(message primitives.H256) (Signature, error)
	Verify(message primitives.H256, sig Signature, public []byte) bool
}

// SealV2 is the algorithm-V2 seal digest item: a SealV1 plus the signature
// binding the work to the author who produced it.
type SealV2 struct {
	Difficulty primitives.Difficulty
	Nonce      [32]byte
	Signature  Signature
}

// ComputeV2 carries everything needed to derive a V2 seal, its signing
// message, and its work hash for a single block.
type ComputeV2 struct {
	KeyHash    primitives.H256
	PreHash    primitives.H256
	Difficulty primitives.Difficulty
	Nonce      [32]byte
}

// InputV2 pairs a Calculation with the signature over it: encoding both
// together is what binds the RandomX work hash to one author, so a seal
// cannot be stripped of its signature and resubmitted by somebody else.
type InputV2 struct {
	Calculation Calculation
	Signature   Signature
}

// Encode appends the signature bytes after the Calculation's own encoding.
func (i InputV2) Encode() []byte {
	out := i.Calculation.Encode()
	out = append(out, i.Signature...)
	return out
}

// Input builds the (Calculation, Signature) pair whose RandomX hash is this
// block's work: the signature is folded into the hashed pre-image, not just
// carried alongside it.
func (c ComputeV2) Input(signature Signature) InputV2 {
	return InputV2{
		Calculation: Calculation{
			PreHash:    c.PreHash,
			Difficulty: c.Difficulty,
			Nonce:      c.Nonce,
		},
		Signature: signature,
	}
}

// SigningMessage is the blake2_256 digest authors sign to bind a seal to
// their identity.
func (c ComputeV2) SigningMessage() primitives.H256 {
	calc := Calculation{
		PreHash:    c.PreHash,
		Difficulty: c.Difficulty,
		Nonce:      c.Nonce,
	}
	return primitives.Blake2_256(calc.Encode())
}

// Sign produces the V2 signing signature for c using signer.
func (c ComputeV2) Sign(signer Signer) (Signature, error) {
	return signer.Sign(c.SigningMessage())
}

// Verify checks that sig is a valid signature over c's signing message under
// public, using signer.
func (c ComputeV2) Verify(signer Signer, sig Signature, public []byte) bool {
	return signer.Verify(c.SigningMessage(), sig, public)
}

// SealAndWork computes the work hash for c under mode and returns it paired
// with the seal (including signature) that should be attached to the block.
func (c ComputeV2) SealAndWork(m *Machines, mode Mode, signature Signature) (SealV2, primitives.H256, error) {
	input := c.Input(signature)
	work, err := Compute(m, mode, c.KeyHash, input.Encode())
	if err != nil {
		return SealV2{}, primitives.H256{}, err
	}
	return c.Seal(signature), work, nil
}

// Seal returns the V2 seal for c, attaching signature, without computing
// any work.
func (c ComputeV2) Seal(signature Signature) SealV2 {
	return SealV2{Nonce: c.Nonce, Difficulty: c.Difficulty, Signature: signature}
}
