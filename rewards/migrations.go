package rewards

// StorageVersion marks which on-disk representation of the reward
// schedule a chain is using, so a one-shot migration can run exactly once
// per chain.
type StorageVersion int

const (
	// StorageVersionV0 is the legacy (curve, additional_rewards)
	// representation.
	StorageVersionV0 StorageVersion = iota
	// StorageVersionV1 is the current (reward_changes, mints) map
	// representation.
	StorageVersionV1
)

// CurvePointV0 is one point of the legacy piecewise reward curve: from
// block Start onward, Reward is the active per-block reward (taxation was
// tracked but never consumed by this pipeline, and is dropped by the
// migration).
type CurvePointV0 struct {
	Start  BlockNumber
	Reward Balance
}

// AdditionalRewardV0 is one entry of the legacy flat additional-mints
// list.
type AdditionalRewardV0 struct {
	Destination AccountID
	Amount      Balance
}

// MigrateV0ToV1 converts the legacy curve/additional-rewards
// representation into the current RewardChanges/Mints maps, and advances
// s's StorageVersion. Calling it on a State already at V1 is a no-op.
func MigrateV0ToV1(s *State, curve []CurvePointV0, additionalRewards []AdditionalRewardV0) {
	if s.StorageVersion != StorageVersionV0 {
		return
	}

	rewardChanges := make(map[BlockNumber]Balance, len(curve))
	for _, point := range curve {
		rewardChanges[point.Start] = point.Reward
	}
	s.RewardChanges = rewardChanges

	mints := make(map[AccountID]Balance, len(additionalRewards))
	for _, entry := range additionalRewards {
		mints[entry.Destination] = entry.Amount
	}
	s.Mints = mints

	s.StorageVersion = StorageVersionV1
}
