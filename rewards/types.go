// Package rewards implements the block-reward pipeline: author
// identification from a pre-runtime digest, reward minting, vesting lock
// schedules, scheduled reward/mint changes, and the one-shot storage
// migration from a legacy curve-based schedule representation.
package rewards

import (
	"errors"
	"math/big"

	"github.com/kulupu-go/kulupu/primitives"
)

// AccountID is a 32-byte account identifier, decoded from the pre-runtime
// digest's raw payload.
type AccountID [32]byte

// BlockNumber indexes chain height; unlock schedules are keyed by it.
type BlockNumber = uint64

// Balance is an arbitrary-precision amount. No pack library models
// arbitrary-precision ledger balances better than math/big: this is a
// plain accumulate/compare/subtract workload with no bit-width ceiling
// the way Difficulty has, so the stdlib type is the correct fit rather
// than forcing holiman/uint256's fixed 256-bit representation onto it.
type Balance = *big.Int

// ZeroBalance returns a fresh zero-valued Balance.
func ZeroBalance() Balance { return new(big.Int) }

// LockParameters configures a non-default vesting schedule: divide equal
// tranches spread evenly across period days.
type LockParameters struct {
	Period uint16
	Divide uint16
}

// Validate checks params against bounds and the period%divide==0 rule.
func (p LockParameters) Validate(bounds primitives.LockBounds) error {
	if p.Period < bounds.PeriodMin || p.Period > bounds.PeriodMax {
		return ErrLockParamsOutOfBounds
	}
	if p.Divide < bounds.DivideMin || p.Divide > bounds.DivideMax {
		return ErrLockParamsOutOfBounds
	}
	if p.Period%p.Divide != 0 {
		return ErrLockPeriodNotDivisible
	}
	return nil
}

var (
	ErrRewardTooLow           = errors.New("rewards: reward below existential deposit")
	ErrMintTooLow             = errors.New("rewards: mint below existential deposit")
	ErrLockParamsOutOfBounds  = errors.New("rewards: lock parameters out of bounds")
	ErrLockPeriodNotDivisible = errors.New("rewards: lock period not divisible by divide")
)

// Event mirrors the runtime events the pipeline emits, for callers (e.g.
// the dashboard or ledger projection) that want to observe state changes
// without re-deriving them from storage.
type Event struct {
	Kind        EventKind
	Author      AccountID
	Destination AccountID
	Amount      Balance
	Reward      Balance
	Mints       map[AccountID]Balance
	LockParams  LockParameters
}

// EventKind enumerates the distinct Event shapes the pipeline emits.
type EventKind int

const (
	EventScheduleSet EventKind = iota
	EventRewarded
	EventRewardChanged
	EventMinted
	EventMintsChanged
	EventLockParamsChanged
)
