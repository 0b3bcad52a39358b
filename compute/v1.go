package compute

import "github.com/kulupu-go/kulupu/primitives"

// SealV1 is the algorithm-V1 seal digest item: just the nonce and the
// difficulty the block claims to have mined against.
type SealV1 struct {
	Difficulty primitives.Difficulty
	Nonce      [32]byte
}

// ComputeV1 carries everything needed to derive a V1 seal and its work hash
// for a single block.
type ComputeV1 struct {
	KeyHash    primitives.H256
	PreHash    primitives.H256
	Difficulty primitives.Difficulty
	Nonce      [32]byte
}

// Input builds the Calculation whose RandomX hash is this block's work.
func (c ComputeV1) Input() Calculation {
	return Calculation{
		PreHash:    c.PreHash,
		Difficulty: c.Difficulty,
		Nonce:      c.Nonce,
	}
}

// SealAndWork computes the work hash for c under mode and returns it paired
// with the seal that should be attached to the block.
func (c ComputeV1) SealAndWork(m *Machines, mode Mode) (SealV1, primitives.H256, error) {
	input := c.Input()
	work, err := Compute(m, mode, c.KeyHash, input.Encode())
	if err != nil {
		return SealV1{}, primitives.H256{}, err
	}
	return c.Seal(), work, nil
}

// Seal returns the V1 seal for c without computing any work.
func (c ComputeV1) Seal() SealV1 {
	return SealV1{Nonce: c.Nonce, Difficulty: c.Difficulty}
}
