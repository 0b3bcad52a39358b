package rewards

import (
	"math/big"

	"github.com/kulupu-go/kulupu/primitives"
)

// DefaultUnlockedReserve is the portion of a reward that is never locked,
// available to the author immediately (the original runtime subtracts a
// fixed "1 DOLLARS" before dividing the remainder into tranches).
func DefaultUnlockedReserve() Balance {
	return big.NewInt(1)
}

// GenerateRewardLocks produces the vesting-lock schedule for a reward of
// totalReward minted at currentBlock, per SPEC_FULL §4.9's default-schedule
// rule (divide the post-reserve portion into `divide` equal tranches,
// spread evenly over `period` days, each floored to a day boundary) or the
// caller-supplied lockParams when non-nil. dayHeight is the number of
// blocks per day (primitives.DayHeight on a production chain); it is an
// explicit parameter so tests can exercise the tranche arithmetic at a
// tractable block scale.
func GenerateRewardLocks(currentBlock BlockNumber, totalReward Balance, lockParams *LockParameters, dayHeight uint64, reserve Balance) map[BlockNumber]Balance {
	locks := make(map[BlockNumber]Balance)

	lockedReward := new(big.Int).Sub(totalReward, reserve)
	if lockedReward.Sign() <= 0 {
		return locks
	}

	period := uint64(primitives.DefaultLockPeriod)
	divide := uint64(primitives.DefaultLockDivide)
	if lockParams != nil {
		period = uint64(lockParams.Period)
		divide = uint64(lockParams.Divide)
	}
	if divide == 0 {
		return locks
	}

	totalLockBlocks := period * dayHeight
	perTranche := new(big.Int).Div(lockedReward, big.NewInt(int64(divide)))

	for i := uint64(0); i < divide; i++ {
		estimate := currentBlock + (i+1)*(totalLockBlocks/divide)
		actual := (estimate / dayHeight) * dayHeight
		locks[actual] = new(big.Int).Set(perTranche)
	}

	return locks
}

// MergeLocks sums amounts at colliding unlock-block keys, the way the
// reward pipeline merges a freshly generated schedule into an author's
// existing RewardLocks entry.
func MergeLocks(existing, additional map[BlockNumber]Balance) map[BlockNumber]Balance {
	merged := make(map[BlockNumber]Balance, len(existing))
	for k, v := range existing {
		merged[k] = new(big.Int).Set(v)
	}
	for k, v := range additional {
		if cur, ok := merged[k]; ok {
			merged[k] = new(big.Int).Add(cur, v)
		} else {
			merged[k] = new(big.Int).Set(v)
		}
	}
	return merged
}

// ActiveLockTotal sums every tranche still locked (unlock block strictly
// greater than now) and returns the pruned map with expired tranches
// removed, matching do_update_reward_locks's expire-then-sum pass.
func ActiveLockTotal(locks map[BlockNumber]Balance, now BlockNumber) (Balance, map[BlockNumber]Balance) {
	total := ZeroBalance()
	pruned := make(map[BlockNumber]Balance, len(locks))
	for block, amount := range locks {
		if block <= now {
			continue
		}
		pruned[block] = amount
		total = new(big.Int).Add(total, amount)
	}
	return total, pruned
}
