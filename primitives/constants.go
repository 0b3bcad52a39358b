// Package primitives holds the chain-wide constants and base types shared by
// every consensus package: difficulty arithmetic, hashes, and the inherent /
// pre-runtime digest plumbing that carries data across the block boundary.
package primitives

import "time"

// Epoch rotation, per the key-hash resolver (see package keyhash).
const (
	// Period is the number of blocks a single RandomX key hash is in force for.
	Period uint64 = 4096

	// Offset is the hysteresis window: a parent within the first Offset blocks
	// of its epoch still uses the previous epoch's key hash.
	Offset uint64 = 128
)

// Difficulty controller constants (see package difficulty).
const (
	DifficultyAdjustWindow uint64 = 60
	DampFactor             uint64 = 3
	ClampFactor            uint64 = 2
)

// BlockTimeTarget is the goal inter-block interval used by the difficulty
// controller's goal window (DifficultyAdjustWindow * BlockTimeTarget).
const BlockTimeTarget = 60 * time.Second

// Weak-subjectivity guard constants (see package weaksub).
const (
	WeakSubjectivityThreshold uint64  = 30
	WeakSubjectivityBase      float64 = 1.1
)

// RewardsLockID is the 8-byte lock identifier used for the vesting lock placed
// on an author's balance by the reward pipeline.
var RewardsLockID = [8]byte{'r', 'e', 'w', 'a', 'r', 'd', 's', ' '}

// PowEngineID is the 8-byte well-known pre-runtime digest tag exchanged with
// the runtime to identify the PoW author digest.
var PowEngineID = [8]byte{'p', 'o', 'w', '_', 'r', 'a', 'n', 'd'}

// Algorithm identifiers returned by the runtime's algorithm-identifier API.
var (
	AlgorithmV1 = [8]byte{'r', 'a', 'n', 'd', 'o', 'm', 'x', '0'}
	AlgorithmV2 = [8]byte{'r', 'a', 'n', 'd', 'o', 'm', 'x', '1'}
)

// Inherent identifiers for the reward pipeline. InherentIdentifierLegacy is
// recognized but deliberately treated as a no-op on non-legacy chains: see
// DESIGN.md "Open Question decisions".
var (
	InherentIdentifier       = [8]byte{'r', 'e', 'w', 'a', 'r', 'd', 's', '1'}
	InherentIdentifierLegacy = [8]byte{'r', 'e', 'w', 'a', 'r', 'd', 's', '_'}
)

// DayHeight is the number of blocks in a day at BlockTimeTarget spacing;
// the lock-schedule generator floors lock maturity dates to this grid.
const DayHeight uint64 = 24 * 60

// Default lock-schedule shape (see package rewards).
const (
	DefaultLockDivide uint16 = 10
	DefaultLockPeriod uint16 = 100 // days
)

// LockBounds constrains privileged updates to LockParameters.
type LockBounds struct {
	PeriodMax uint16
	PeriodMin uint16
	DivideMax uint16
	DivideMin uint16
}

// DefaultLockBounds mirrors the bounds the original runtime wires its
// GenerateRewardLocks implementation with.
func DefaultLockBounds() LockBounds {
	return LockBounds{
		PeriodMax: 500,
		PeriodMin: 20,
		DivideMax: 50,
		DivideMin: 2,
	}
}
