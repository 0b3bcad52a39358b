package primitives

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// Difficulty is a 256-bit unsigned integer bounded by MinDifficulty and
// MaxDifficulty. The zero value is not a valid Difficulty; use
// NewDifficultyFromUint64 / NewDifficultyFromBig, or MinDifficulty /
// MaxDifficulty.
type Difficulty struct {
	inner uint256.Int
}

// MinDifficulty is the lowest difficulty the controller will ever emit.
var MinDifficulty = NewDifficultyFromUint64(3)

// MaxDifficulty is 2^128 - 1, the highest difficulty the controller will
// ever emit.
var MaxDifficulty = func() Difficulty {
	one := uint256.NewInt(1)
	shifted := new(uint256.Int).Lsh(one, 128)
	max := new(uint256.Int).Sub(shifted, one)
	return Difficulty{inner: *max}
}()

// NewDifficultyFromUint64 builds a Difficulty from a small integer, useful
// for constants and tests.
func NewDifficultyFromUint64(v uint64) Difficulty {
	return Difficulty{inner: *uint256.NewInt(v)}
}

// NewDifficultyFromBig builds a Difficulty from a math/big.Int, clamping into
// [MinDifficulty, MaxDifficulty].
func NewDifficultyFromBig(v *big.Int) Difficulty {
	u, overflow := uint256.FromBig(v)
	if overflow {
		return MaxDifficulty
	}
	d := Difficulty{inner: *u}
	return d.Clamped()
}

// Clamped returns d bounded to [MinDifficulty, MaxDifficulty].
func (d Difficulty) Clamped() Difficulty {
	if d.inner.Lt(&MinDifficulty.inner) {
		return MinDifficulty
	}
	if d.inner.Gt(&MaxDifficulty.inner) {
		return MaxDifficulty
	}
	return d
}

// Uint64 returns d truncated to a uint64 (used only where the caller already
// knows the value is small, e.g. tests and logging).
func (d Difficulty) Uint64() uint64 {
	return d.inner.Uint64()
}

// Big returns d as a math/big.Int.
func (d Difficulty) Big() *big.Int {
	return d.inner.ToBig()
}

// String implements fmt.Stringer.
func (d Difficulty) String() string {
	return d.inner.Dec()
}

// Cmp compares d and other the way bytes.Compare does: -1, 0, 1.
func (d Difficulty) Cmp(other Difficulty) int {
	return d.inner.Cmp(&other.inner)
}

// Add returns d + other, saturating at MaxDifficulty on overflow.
func (d Difficulty) Add(other Difficulty) Difficulty {
	sum, overflow := new(uint256.Int).AddOverflow(&d.inner, &other.inner)
	if overflow {
		return MaxDifficulty
	}
	return Difficulty{inner: *sum}
}

// maxUint256 is the all-ones 256-bit value, used only as a saturation
// ceiling for intermediate arithmetic that is immediately re-clamped to
// MaxDifficulty by callers.
var maxUint256 = func() uint256.Int {
	var m uint256.Int
	return *m.Not(&m)
}()

// MulUint64 returns d * v, saturating at the maximum uint256 value on
// overflow (used by diff_sum accumulation, not by the target check).
func (d Difficulty) MulUint64(v uint64) Difficulty {
	prod, overflow := new(uint256.Int).MulOverflow(&d.inner, uint256.NewInt(v))
	if overflow {
		sat := maxUint256
		return Difficulty{inner: sat}
	}
	return Difficulty{inner: *prod}
}

// DivUint64 returns d / v. Division by zero returns MaxDifficulty, matching
// the "treat as saturated" behavior used throughout the damp/clamp pipeline.
func (d Difficulty) DivUint64(v uint64) Difficulty {
	if v == 0 {
		return MaxDifficulty
	}
	return Difficulty{inner: *new(uint256.Int).Div(&d.inner, uint256.NewInt(v))}
}

// H256 is a 32-byte hash: a RandomX output, a key hash, or a block hash.
type H256 [32]byte

// String renders h as lowercase hex.
func (h H256) String() string {
	return fmt.Sprintf("%x", h[:])
}

// IsZero reports whether h is the zero hash.
func (h H256) IsZero() bool {
	return h == H256{}
}

// MeetsTarget reports whether work satisfies difficulty, i.e. whether
// U256(work) * difficulty does not overflow 256 bits. This is the single
// target-check primitive every verifier and miner in this module calls.
func MeetsTarget(work H256, difficulty Difficulty) bool {
	w := new(uint256.Int).SetBytes(work[:])
	_, overflow := new(uint256.Int).MulOverflow(w, &difficulty.inner)
	return !overflow
}
