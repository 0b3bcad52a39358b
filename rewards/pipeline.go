package rewards

import (
	"sort"

	"github.com/kulupu-go/kulupu/primitives"
)

// dueBlocks returns the keys of a BlockNumber-keyed map that are <= now,
// sorted ascending, so callers iterate due scheduled changes in a
// deterministic order instead of Go's randomized map iteration order.
func dueBlocks[V any](changes map[BlockNumber]V, now BlockNumber) []BlockNumber {
	due := make([]BlockNumber, 0, len(changes))
	for block := range changes {
		if block <= now {
			due = append(due, block)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i] < due[j] })
	return due
}

// OnInitialize runs the per-block start-of-block work: recording the
// block's author from its pre-runtime digest, then applying every
// scheduled reward/mint change whose block number has arrived, in
// ascending block-number order so that when several changes are
// simultaneously due, the highest-numbered one deterministically wins.
func (s *State) OnInitialize(now BlockNumber, digest []primitives.DigestItem) []Event {
	if author, ok := ExtractAuthor(digest); ok {
		s.Author = author
		s.HasAuthor = true
	}

	var events []Event

	for _, block := range dueBlocks(s.RewardChanges, now) {
		reward := s.RewardChanges[block]
		s.Reward = reward
		events = append(events, Event{Kind: EventRewardChanged, Reward: reward})
		delete(s.RewardChanges, block)
	}

	for _, block := range dueBlocks(s.MintChanges, now) {
		mints := s.MintChanges[block]
		s.Mints = mints
		events = append(events, Event{Kind: EventMintsChanged, Mints: mints})
		delete(s.MintChanges, block)
	}

	return events
}

// OnFinalize runs the per-block end-of-block work: rewarding and locking
// the recorded author, applying every standing mint, and clearing Author
// for the next block.
func (s *State) OnFinalize(now BlockNumber, dayHeight uint64) []Event {
	var events []Event

	if s.HasAuthor {
		events = append(events, s.doReward(s.Author, s.Reward, now, dayHeight)...)
	}

	for destination, amount := range s.Mints {
		events = append(events, Event{Kind: EventMinted, Destination: destination, Amount: amount})
	}

	s.HasAuthor = false
	s.Author = AccountID{}

	return events
}

func (s *State) doReward(author AccountID, reward Balance, now BlockNumber, dayHeight uint64) []Event {
	events := []Event{{Kind: EventRewarded, Author: author, Amount: reward}}

	newLocks := GenerateRewardLocks(now, reward, s.LockParams, dayHeight, DefaultUnlockedReserve())
	if len(newLocks) == 0 {
		return events
	}

	existing := s.RewardLocks[author]
	merged := MergeLocks(existing, newLocks)
	s.updateRewardLocks(author, merged, now)

	return events
}

// updateRewardLocks prunes expired tranches from locks and installs the
// result, mirroring do_update_reward_locks.
func (s *State) updateRewardLocks(author AccountID, locks map[BlockNumber]Balance, now BlockNumber) Balance {
	_, pruned := ActiveLockTotal(locks, now)
	if s.RewardLocks == nil {
		s.RewardLocks = make(map[AccountID]map[BlockNumber]Balance)
	}
	s.RewardLocks[author] = pruned
	total, _ := ActiveLockTotal(pruned, now)
	return total
}

// Unlock recomputes and re-installs target's active lock total at the
// current block, pruning anything that has expired. It is idempotent and
// emits no event, matching the public `unlock` extrinsic.
func (s *State) Unlock(target AccountID, now BlockNumber) Balance {
	return s.updateRewardLocks(target, s.RewardLocks[target], now)
}
