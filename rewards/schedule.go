package rewards

import "github.com/kulupu-go/kulupu/primitives"

// State holds every piece of runtime-owned reward state the reward pipeline
// reads and mutates. Callers own persistence (e.g. the node's key-value
// store); the pipeline methods only ever mutate the State they are called on.
type State struct {
	Author    AccountID
	HasAuthor bool

	Reward        Balance
	RewardChanges map[BlockNumber]Balance

	Mints       map[AccountID]Balance
	MintChanges map[BlockNumber]map[AccountID]Balance

	RewardLocks map[AccountID]map[BlockNumber]Balance

	LockParams     *LockParameters
	LockBounds     primitives.LockBounds
	StorageVersion StorageVersion
}

// NewState returns an empty State with the standard lock bounds and V1
// storage version, ready for genesis configuration.
func NewState(lockBounds primitives.LockBounds) *State {
	return &State{
		Reward:         ZeroBalance(),
		RewardChanges:  make(map[BlockNumber]Balance),
		Mints:          make(map[AccountID]Balance),
		MintChanges:    make(map[BlockNumber]map[AccountID]Balance),
		RewardLocks:    make(map[AccountID]map[BlockNumber]Balance),
		LockBounds:     lockBounds,
		StorageVersion: StorageVersionV1,
	}
}

// SetSchedule replaces the reward/mint schedule, enforcing that every
// individual amount clears existentialDeposit before mutating any state.
func (s *State) SetSchedule(reward Balance, mints map[AccountID]Balance, rewardChanges map[BlockNumber]Balance, mintChanges map[BlockNumber]map[AccountID]Balance, existentialDeposit Balance) ([]Event, error) {
	if reward.Cmp(existentialDeposit) < 0 {
		return nil, ErrRewardTooLow
	}
	for _, amount := range mints {
		if amount.Cmp(existentialDeposit) < 0 {
			return nil, ErrMintTooLow
		}
	}
	for _, amount := range rewardChanges {
		if amount.Cmp(existentialDeposit) < 0 {
			return nil, ErrRewardTooLow
		}
	}
	for _, change := range mintChanges {
		for _, amount := range change {
			if amount.Cmp(existentialDeposit) < 0 {
				return nil, ErrMintTooLow
			}
		}
	}

	s.Reward = reward
	s.Mints = mints
	s.RewardChanges = rewardChanges
	s.MintChanges = mintChanges

	return []Event{
		{Kind: EventRewardChanged, Reward: reward},
		{Kind: EventMintsChanged, Mints: mints},
		{Kind: EventScheduleSet},
	}, nil
}

// SetLockParams validates and installs a new LockParameters.
func (s *State) SetLockParams(params LockParameters) ([]Event, error) {
	if err := params.Validate(s.LockBounds); err != nil {
		return nil, err
	}
	s.LockParams = &params
	return []Event{{Kind: EventLockParamsChanged, LockParams: params}}, nil
}
