// Package weaksub implements a weak-subjectivity reorg guard: a decision
// function that blocks deep chain reorganizations unless the competing
// chain's extra accumulated difficulty clears an exponentially rising bar,
// so a long-range attacker with a slightly heavier low-difficulty chain
// can't casually displace the canonical one.
package weaksub

import (
	"math"
	"math/big"
)

// Decision is the outcome of a weak-subjectivity check.
type Decision int

const (
	// Continue allows the import/reorg to proceed normally.
	Continue Decision = iota
	// BlockReorg vetoes the reorg; the new block is still accepted into
	// the fork-choice set, but it won't become best via this route.
	BlockReorg
)

// String implements fmt.Stringer.
func (d Decision) String() string {
	if d == BlockReorg {
		return "BlockReorg"
	}
	return "Continue"
}

// Params carries the total-difficulty figures needed to decide whether a
// reorg should be permitted.
type Params struct {
	// BestTotalDifficulty is the total difficulty of the current best
	// block.
	BestTotalDifficulty *big.Int
	// CommonTotalDifficulty is the total difficulty of the common
	// ancestor between the best chain and the chain being imported.
	CommonTotalDifficulty *big.Int
	// NewTotalDifficulty is the total difficulty the new block's chain
	// would have if imported.
	NewTotalDifficulty *big.Int
	// RetractedLen is how many best-chain blocks would be retracted if
	// the reorg proceeds.
	RetractedLen int
}

// Algorithm decides whether a reorg should be blocked given Params.
type Algorithm interface {
	Decide(p Params) Decision
}

// Exponential is the standard weak-subjectivity algorithm: reorgs that
// retract no more than Threshold blocks are always allowed; beyond that,
// the challenger's extra difficulty (relative to the incumbent's) must
// exceed Base raised to the number of blocks past Threshold.
type Exponential struct {
	Threshold int
	Base      float64
}

// NewExponential builds the standard algorithm with the given threshold
// and exponential base (e.g. 30, 1.1 per the long-standing defaults).
func NewExponential(threshold int, base float64) Exponential {
	return Exponential{Threshold: threshold, Base: base}
}

var maxUint128 = func() *big.Int {
	one := big.NewInt(1)
	shifted := new(big.Int).Lsh(one, 128)
	return new(big.Int).Sub(shifted, one)
}()

func saturatingSub(a, b *big.Int) *big.Int {
	d := new(big.Int).Sub(a, b)
	if d.Sign() < 0 {
		return big.NewInt(0)
	}
	return d
}

// Decide implements Algorithm.
func (e Exponential) Decide(p Params) Decision {
	if p.RetractedLen <= e.Threshold {
		return Continue
	}

	bestDiff := saturatingSub(p.BestTotalDifficulty, p.CommonTotalDifficulty)
	newDiff := saturatingSub(p.NewTotalDifficulty, p.CommonTotalDifficulty)

	two := big.NewInt(2)
	for bestDiff.Cmp(maxUint128) > 0 || newDiff.Cmp(maxUint128) > 0 {
		bestDiff = new(big.Int).Div(bestDiff, two)
		newDiff = new(big.Int).Div(newDiff, two)
	}

	bestF := new(big.Float).SetInt(bestDiff)
	newF := new(big.Float).SetInt(newDiff)
	if bestF.Sign() == 0 {
		// No incumbent difficulty at all: any challenger clears the bar.
		return Continue
	}
	left, _ := new(big.Float).Quo(newF, bestF).Float64()

	right := math.Pow(e.Base, float64(p.RetractedLen-e.Threshold))

	if left > right {
		return Continue
	}
	return BlockReorg
}
